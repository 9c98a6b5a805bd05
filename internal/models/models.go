package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	ThumbnailURL *string         `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// CartItem is a line in a cart. Price is locked at the time the item was added.
type CartItem struct {
	ID         int64           `db:"id" json:"id"`
	CartID     int64           `db:"cart_id" json:"cart_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	Quantity   int             `db:"quantity" json:"quantity"`
	Price      decimal.Decimal `db:"price" json:"price"`
	DiscountID *int64          `db:"discount_id" json:"discount_id,omitempty"`
}

// CartLine is a cart item joined with product display data.
// Stock is a point-in-time read, not a reservation.
type CartLine struct {
	CartItem
	ProductName  string  `db:"product_name" json:"product_name"`
	ThumbnailURL *string `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Stock        int     `db:"stock" json:"stock"`
}

// Subtotal returns price * quantity for the line
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount is a percent-off code scoped to a single product
type Discount struct {
	ID        int64           `db:"id" json:"id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Code      string          `db:"code" json:"code"`
	Percent   decimal.Decimal `db:"percent" json:"percent"`
	Remaining int             `db:"remaining" json:"remaining"`
	Total     int             `db:"total" json:"total"`
	StartsAt  time.Time       `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time       `db:"ends_at" json:"ends_at"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether now falls inside the validity window (inclusive)
func (d *Discount) ActiveAt(now time.Time) bool {
	return !now.Before(d.StartsAt) && !now.After(d.EndsAt)
}

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	Total           decimal.Decimal `db:"total" json:"total"`
	Status          string          `db:"status" json:"status"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	StockDebitedAt  *time.Time      `db:"stock_debited_at" json:"stock_debited_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	DiscountID  *int64          `db:"discount_id" json:"discount_id,omitempty"`
}

// StatusChange describes the outcome of an order status transition
type StatusChange struct {
	Order        *Order
	StockDebited bool
	CartsPurged  int64
}

// User is an account that can authenticate against the API
type User struct {
	ID                int64     `db:"id" json:"id"`
	Email             string    `db:"email" json:"email"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	Role              string    `db:"role" json:"role"`
	PasswordChangedAt time.Time `db:"password_changed_at" json:"password_changed_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Cart statuses
const (
	CartStatusPending   = "pending"
	CartStatusCompleted = "completed"
)

// Order statuses. Any operator string is accepted as a status;
// these are the ones the service itself knows about.
const (
	OrderStatusPending   = "pending"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
)

// IsFulfillmentTerminal reports whether reaching status debits stock and purges the owner's cart
func IsFulfillmentTerminal(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCompleted
}

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)
