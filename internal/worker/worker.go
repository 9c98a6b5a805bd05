package worker

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// StatusSetter applies a lifecycle transition to an order
type StatusSetter interface {
	SetStatus(ctx context.Context, orderID int64, status string) (*models.StatusChange, error)
}

// EventLedger records which events have already been applied
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// FulfillmentWorker applies fulfillment updates to the order lifecycle
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	lifecycle    StatusSetter
	ledger       EventLedger
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, lifecycle StatusSetter, ledger EventLedger) *FulfillmentWorker {
	w := &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		lifecycle:    lifecycle,
		ledger:       ledger,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnFulfillmentUpdate(w.HandleFulfillmentUpdate)
	return w
}

// Start consumes until ctx is cancelled
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

// HandleFulfillmentUpdate applies one update. Redelivered events are
// skipped; updates naming an unknown order or a bad status are recorded
// and dropped since retrying cannot fix them.
func (w *FulfillmentWorker) HandleFulfillmentUpdate(ctx context.Context, event *models.FulfillmentUpdateEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentWorker.HandleFulfillmentUpdate")
	defer func() { util.EndSpan(span, err) }()

	if event.EventID == "" {
		w.logger.Warn("Dropping fulfillment update without event id", zap.Int64("order_id", event.OrderID))
		return nil
	}

	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("check processed event: %w", err)
	}
	if processed {
		w.logger.Info("Skipping already processed event", zap.String("event_id", event.EventID))
		return nil
	}

	_, err = w.lifecycle.SetStatus(ctx, event.OrderID, event.Status)
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidInput):
		w.logger.Warn("Rejected fulfillment update",
			zap.String("event_id", event.EventID),
			zap.Int64("order_id", event.OrderID),
			zap.String("status", event.Status),
			zap.Error(err))
	case err != nil:
		return fmt.Errorf("apply fulfillment update %s: %w", event.EventID, err)
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
