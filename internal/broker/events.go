package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes order domain events, keyed by order so that all
// events of one order land on the same partition
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event.EventType, event)
}

// EventHandler routes incoming messages by event type
type EventHandler struct {
	onFulfillmentUpdate func(context.Context, *models.FulfillmentUpdateEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnFulfillmentUpdate registers a handler for FulfillmentUpdate events
func (eh *EventHandler) OnFulfillmentUpdate(handler func(context.Context, *models.FulfillmentUpdateEvent) error) {
	eh.onFulfillmentUpdate = handler
}

// HandleMessage routes messages to appropriate handlers. Malformed payloads
// are logged and dropped so they do not block the partition.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Warn("Dropping undecodable message",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeFulfillmentUpdate:
		if eh.onFulfillmentUpdate == nil {
			return nil
		}
		var event models.FulfillmentUpdateEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			eh.logger.Warn("Dropping malformed FulfillmentUpdate event",
				zap.String("event_id", baseEvent.EventID),
				zap.Error(err))
			return nil
		}
		return eh.onFulfillmentUpdate(ctx, &event)

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
