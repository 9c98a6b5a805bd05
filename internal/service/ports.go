package service

import (
	"context"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// CatalogReader gives read-only access to current product price and stock
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// CartStore owns pending carts and their lines
type CartStore interface {
	GetOrCreatePendingCart(ctx context.Context, userID int64) (int64, error)
	FindPendingCart(ctx context.Context, userID int64) (int64, error)
	UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal, discountID *int64) (*models.CartItem, error)
	CartItemQuantity(ctx context.Context, cartID, productID int64) (int, error)
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartLine, error)
	ClearCart(ctx context.Context, cartID int64) error
}

// DiscountStore persists discount codes. Consumption happens inside
// OrderStore.CreateOrder.
type DiscountStore interface {
	FindDiscount(ctx context.Context, productID int64, code string) (*models.Discount, error)
	CreateDiscount(ctx context.Context, discount *models.Discount) error
}

// OrderStore persists orders. CreateOrder and UpdateOrderStatus are each
// one atomic unit of work.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.StatusChange, error)
}

// EventPublisher publishes order domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// IdempotencyStore remembers which order a client-supplied key produced.
// Claim reports claimed=false with the stored order id when the key already
// completed, or with orderID 0 while another request holds it.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, token string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, key, token string, orderID int64) error
	Release(ctx context.Context, key, token string) error
}
