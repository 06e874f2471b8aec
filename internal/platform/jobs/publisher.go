package jobs

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/vibek01/ECOM-D1/internal/platform/config"
	"github.com/vibek01/ECOM-D1/internal/platform/observability"
	"github.com/vibek01/ECOM-D1/internal/services"
)

// OrderEventPublisher is a services.OrderEventPublisher that owns transport resources.
type OrderEventPublisher interface {
	services.OrderEventPublisher
	Close() error
}

// NoopPublisher drops every event. It backs the "none" events backend.
type NoopPublisher struct{}

// PublishOrderEvent implements services.OrderEventPublisher.
func (NoopPublisher) PublishOrderEvent(context.Context, services.OrderEvent) error { return nil }

// Close implements OrderEventPublisher.
func (NoopPublisher) Close() error { return nil }

// NewOrderEventPublisher builds the publisher selected by the events configuration.
func NewOrderEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (OrderEventPublisher, error) {
	switch cfg.Events.Backend {
	case "", config.EventsBackendNone:
		return NoopPublisher{}, nil
	case config.EventsBackendPubSub:
		projectID := cfg.Firebase.ProjectID
		if projectID == "" {
			projectID = cfg.Firestore.ProjectID
		}
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("events: pubsub client: %w", err)
		}
		publisher, err := NewPubSubOrderEventPublisher(client.Topic(cfg.Events.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &pubsubClientPublisher{PubSubOrderEventPublisher: publisher, client: client}, nil
	case config.EventsBackendKafka:
		if logger == nil {
			logger = zap.NewNop()
		}
		return NewKafkaOrderEventPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic,
			WithKafkaErrorLogger(observability.NewPrintfAdapter(logger.Named("kafka"), zap.ErrorLevel)),
		)
	default:
		return nil, fmt.Errorf("events: unsupported backend %q", cfg.Events.Backend)
	}
}

type pubsubClientPublisher struct {
	*PubSubOrderEventPublisher
	client *pubsub.Client
}

func (p *pubsubClientPublisher) Close() error {
	_ = p.PubSubOrderEventPublisher.Close()
	return p.client.Close()
}
