package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeFulfillmentUpdate  = "FULFILLMENT_UPDATE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after an order commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	CheckoutType string          `json:"checkout_type"`
	Total        decimal.Decimal `json:"total"`
	Items        []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a lifecycle transition commits
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	UserID       int64  `json:"user_id"`
	Status       string `json:"status"`
	StockDebited bool   `json:"stock_debited"`
}

// FulfillmentUpdateEvent is consumed from the fulfillment system and
// drives the order lifecycle
type FulfillmentUpdateEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
