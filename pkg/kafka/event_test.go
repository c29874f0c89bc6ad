package kafka

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPlacedData struct {
	OrderID string `json:"order_id"`
	Total   int64  `json:"total"`
}

func TestNewEvent(t *testing.T) {
	data := orderPlacedData{OrderID: "order-1", Total: 5371}

	event, err := NewEvent("fulfillment.order.created", "order-1", "order", "fulfillment-service", data)
	require.NoError(t, err)

	_, err = uuid.Parse(event.EventID)
	assert.NoError(t, err, "event id should be a valid UUID")
	assert.Equal(t, "fulfillment.order.created", event.EventType)
	assert.Equal(t, "order-1", event.AggregateID)
	assert.Equal(t, "order", event.AggregateType)
	assert.Equal(t, "fulfillment-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)

	var decoded orderPlacedData
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("fulfillment.order.created", "order-1", "order", "fulfillment-service", make(chan int))
	assert.Error(t, err)
}

func TestEvent_WithCorrelationID(t *testing.T) {
	event, err := NewEvent("fulfillment.stock.adjusted", "var-1", "variant", "fulfillment-service", nil)
	require.NoError(t, err)

	event.WithCorrelationID("corr-123")
	assert.Equal(t, "corr-123", event.CorrelationID)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	event, err := NewEvent("fulfillment.order.cancelled", "order-2", "order", "fulfillment-service",
		orderPlacedData{OrderID: "order-2", Total: 100})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	raw, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.EventType, decoded.EventType)
	assert.Equal(t, event.CorrelationID, decoded.CorrelationID)

	var data orderPlacedData
	require.NoError(t, decoded.UnmarshalData(&data))
	assert.Equal(t, int64(100), data.Total)
}
