package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vibek01/ECOM-D1/internal/services"
)

func newTestTopic(t *testing.T, ordered bool) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, false)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	defer func() { _ = publisher.Close() }()

	event := services.OrderEvent{
		ID:            "7f6c4a52-3c0e-4b8e-9d59-5a0f7c1a9e11",
		Type:          "order.created",
		OrderID:       "ord_01HZX",
		UserID:        "user-1",
		CurrentStatus: "PENDING",
		TotalAmount:   "39.98",
		Items:         []services.OrderEventItem{{ProductID: "prod-1", VariantID: "var-1", Quantity: 2}},
		OccurredAt:    time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.TotalAmount != "39.98" || len(payload.Items) != 1 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != "order.created" || attrs["orderId"] != "ord_01HZX" || attrs["eventId"] != event.ID {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	if _, ok := attrs["previousStatus"]; ok {
		t.Fatalf("previousStatus attribute should not be present")
	}
	if messages[0].OrderingKey != "" {
		t.Fatalf("expected no ordering key on an unordered topic, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubOrderEventPublisherUsesOrderingKey(t *testing.T) {
	srv, topic := newTestTopic(t, true)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	event := services.OrderEvent{ID: "evt", Type: "order.status_changed", OrderID: "ord_1", PreviousStatus: "PENDING", CurrentStatus: "SHIPPED"}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 || messages[0].OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key ord_1, got %#v", messages)
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
