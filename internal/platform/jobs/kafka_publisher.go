package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibek01/ECOM-D1/internal/services"
)

const kafkaTracerName = "github.com/vibek01/ECOM-D1/internal/platform/jobs"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEventPublisher writes order events to a Kafka topic keyed by order id, so every event of
// one order lands on the same partition.
type KafkaOrderEventPublisher struct {
	writer messageWriter
	topic  string
}

// KafkaOption customises the underlying kafka writer.
type KafkaOption func(*kafka.Writer)

// WithKafkaErrorLogger routes the writer's error logs.
func WithKafkaErrorLogger(logger kafka.Logger) KafkaOption {
	return func(w *kafka.Writer) {
		w.ErrorLogger = logger
	}
}

// WithKafkaBatchTimeout overrides how long the writer waits to fill a batch.
func WithKafkaBatchTimeout(timeout time.Duration) KafkaOption {
	return func(w *kafka.Writer) {
		if timeout > 0 {
			w.BatchTimeout = timeout
		}
	}
}

// NewKafkaOrderEventPublisher constructs a publisher over a synchronous kafka-go writer.
func NewKafkaOrderEventPublisher(brokers []string, topic string, opts ...KafkaOption) (*KafkaOrderEventPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka order event publisher: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka order event publisher: topic is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(writer)
		}
	}
	return newKafkaOrderEventPublisher(writer, topic), nil
}

func newKafkaOrderEventPublisher(writer messageWriter, topic string) *KafkaOrderEventPublisher {
	return &KafkaOrderEventPublisher{writer: writer, topic: topic}
}

// PublishOrderEvent writes the event inside a producer span and injects the trace context into the
// message headers.
func (p *KafkaOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka order event publisher: not initialised")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	ctx, span := otel.Tracer(kafkaTracerName).Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(event.OrderID),
			semconv.MessagingMessageID(event.ID),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, newHeaderCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Close flushes buffered messages and closes broker connections.
func (p *KafkaOrderEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// headerCarrier exposes kafka message headers to OpenTelemetry propagators.
type headerCarrier struct {
	msg *kafka.Message
}

func newHeaderCarrier(msg *kafka.Message) headerCarrier {
	return headerCarrier{msg: msg}
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
