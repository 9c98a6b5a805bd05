package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fulfillmentMessage(t *testing.T, orderID int64, status string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(models.FulfillmentUpdateEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeFulfillmentUpdate,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Status:  status,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(orderKey(orderID)), Value: value}
}

func TestHandleMessageRoutesFulfillmentUpdate(t *testing.T) {
	handler := NewEventHandler()

	var got *models.FulfillmentUpdateEvent
	handler.OnFulfillmentUpdate(func(_ context.Context, event *models.FulfillmentUpdateEvent) error {
		got = event
		return nil
	})

	require.NoError(t, handler.HandleMessage(context.Background(), fulfillmentMessage(t, 12, "delivered")))
	require.NotNil(t, got)
	assert.Equal(t, int64(12), got.OrderID)
	assert.Equal(t, "delivered", got.Status)
	assert.Equal(t, "evt-1", got.EventID)
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	handler := NewEventHandler()
	boom := errors.New("db down")
	handler.OnFulfillmentUpdate(func(context.Context, *models.FulfillmentUpdateEvent) error { return boom })

	err := handler.HandleMessage(context.Background(), fulfillmentMessage(t, 1, "delivered"))
	assert.ErrorIs(t, err, boom)
}

func TestHandleMessageDropsUnknownAndMalformed(t *testing.T) {
	handler := NewEventHandler()
	called := false
	handler.OnFulfillmentUpdate(func(context.Context, *models.FulfillmentUpdateEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, handler.HandleMessage(context.Background(),
		kafka.Message{Value: []byte(`{"event_id":"x","event_type":"ORDER_CREATED"}`)}))
	assert.NoError(t, handler.HandleMessage(context.Background(),
		kafka.Message{Value: []byte(`{"event_id":"x","event_type":"FULFILLMENT_UPDATE","order_id":"twelve"}`)}))
	assert.False(t, called)
}

func TestMessageCarrier(t *testing.T) {
	msg := kafka.Message{}
	carrier := NewMessageCarrier(&msg)

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("traceparent", "00-abc-123-01")
	carrier.Set("baggage", "k=v")

	assert.Equal(t, "00-abc-123-01", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}
