package services

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	OrderID        string           `json:"orderId"`
	UserID         string           `json:"userId,omitempty"`
	PreviousStatus string           `json:"previousStatus,omitempty"`
	CurrentStatus  string           `json:"currentStatus"`
	TrackingNumber string           `json:"trackingNumber,omitempty"`
	ActorID        string           `json:"actorId,omitempty"`
	TotalAmount    string           `json:"totalAmount,omitempty"`
	Items          []OrderEventItem `json:"items,omitempty"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// OrderEventItem is the compact line item carried on order.created.
type OrderEventItem struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

func newOrderCreatedEvent(order Order, now time.Time) OrderEvent {
	items := make([]OrderEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderEventItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return OrderEvent{
		ID:            uuid.NewString(),
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       order.UserID,
		TotalAmount:   order.TotalAmount.String(),
		Items:         items,
		OccurredAt:    now,
	}
}

func newOrderStatusChangedEvent(order Order, previous OrderStatus, actorID string, now time.Time) OrderEvent {
	event := OrderEvent{
		ID:             uuid.NewString(),
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actorID,
		OccurredAt:     now,
	}
	if order.TrackingNumber != nil {
		event.TrackingNumber = *order.TrackingNumber
	}
	return event
}
