package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxStatusLength = 32

// LifecycleService advances order status. Reaching a fulfillment terminal
// status commits the stock debit.
type LifecycleService struct {
	orders    OrderStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewLifecycleService creates a new lifecycle service. publisher may be nil.
func NewLifecycleService(orders OrderStore, publisher EventPublisher) *LifecycleService {
	return &LifecycleService{
		orders:    orders,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// SetStatus moves an order to status. Stock is debited at most once per
// order, on the first transition into delivered or completed.
func (s *LifecycleService) SetStatus(ctx context.Context, orderID int64, status string) (*models.StatusChange, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.SetStatus")
	defer span.End()

	status = strings.ToLower(strings.TrimSpace(status))
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: order id must be positive", models.ErrInvalidInput)
	}
	if status == "" || len(status) > maxStatusLength {
		return nil, fmt.Errorf("%w: status must be 1-%d characters", models.ErrInvalidInput, maxStatusLength)
	}

	change, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(statusLabel(status)).Inc()
	if change.StockDebited {
		util.StockDebitsTotal.Inc()
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", status),
		zap.Bool("stock_debited", change.StockDebited),
		zap.Int64("carts_purged", change.CartsPurged))

	s.publishStatusChanged(ctx, change)
	return change, nil
}

// GetOrder retrieves an order with its items
func (s *LifecycleService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

func (s *LifecycleService) publishStatusChanged(ctx context.Context, change *models.StatusChange) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:      change.Order.ID,
		UserID:       change.Order.UserID,
		Status:       change.Order.Status,
		StockDebited: change.StockDebited,
	}

	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", change.Order.ID),
			zap.Error(err))
	}
}

// statusLabel keeps free-form operator statuses out of metric labels
func statusLabel(status string) string {
	switch status {
	case models.OrderStatusPending, models.OrderStatusDelivered, models.OrderStatusCompleted:
		return status
	default:
		return "other"
	}
}
