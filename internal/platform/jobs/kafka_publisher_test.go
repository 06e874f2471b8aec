package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibek01/ECOM-D1/internal/platform/config"
	"github.com/vibek01/ECOM-D1/internal/services"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaOrderEventPublisherWritesKeyedMessage(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	writer := &recordingWriter{}
	publisher := newKafkaOrderEventPublisher(writer, "orders.events")

	event := services.OrderEvent{ID: "evt-1", Type: "order.status_changed", OrderID: "ord_1", PreviousStatus: "PENDING", CurrentStatus: "SHIPPED", TrackingNumber: "TRK-1"}
	require.NoError(t, publisher.PublishOrderEvent(ctx, event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "ord_1", string(msg.Key))

	var payload services.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "TRK-1", payload.TrackingNumber)
	assert.Equal(t, "SHIPPED", payload.CurrentStatus)

	carrier := newHeaderCarrier(&msg)
	assert.Equal(t, "order.status_changed", carrier.Get("event-type"))
	assert.Equal(t, "evt-1", carrier.Get("event-id"))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.ElementsMatch(t, []string{"event-type", "event-id", "traceparent"}, carrier.Keys())

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaOrderEventPublisherWrapsWriteErrors(t *testing.T) {
	writer := &recordingWriter{err: errors.New("leader not available")}
	publisher := newKafkaOrderEventPublisher(writer, "orders.events")

	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{ID: "evt", OrderID: "ord_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, writer.err)
}

func TestHeaderCarrierOverwritesExistingKey(t *testing.T) {
	msg := kafka.Message{}
	carrier := newHeaderCarrier(&msg)
	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Empty(t, carrier.Get("missing"))
}

func TestNewKafkaOrderEventPublisherValidatesArguments(t *testing.T) {
	_, err := NewKafkaOrderEventPublisher(nil, "orders.events")
	assert.Error(t, err)
	_, err = NewKafkaOrderEventPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	publisher, err := NewKafkaOrderEventPublisher([]string{"localhost:9092"}, "orders.events", WithKafkaBatchTimeout(0))
	require.NoError(t, err)
	assert.NoError(t, publisher.Close())
}

func TestNewOrderEventPublisherSelectsBackend(t *testing.T) {
	ctx := context.Background()

	publisher, err := NewOrderEventPublisher(ctx, config.Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, publisher)
	assert.NoError(t, publisher.PublishOrderEvent(ctx, services.OrderEvent{}))

	cfg := config.Config{Events: config.EventsConfig{Backend: config.EventsBackendKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "orders.events"}}
	publisher, err = NewOrderEventPublisher(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaOrderEventPublisher{}, publisher)
	assert.NoError(t, publisher.Close())

	_, err = NewOrderEventPublisher(ctx, config.Config{Events: config.EventsConfig{Backend: "carrier-pigeon"}}, nil)
	assert.Error(t, err)
}
