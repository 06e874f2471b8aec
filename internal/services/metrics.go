package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "github.com/vibek01/ECOM-D1/internal/services"

// orderMetrics records order placement outcomes. Instruments that fail to register stay nil and
// are skipped.
type orderMetrics struct {
	placed        metric.Int64Counter
	failures      metric.Int64Counter
	statusUpdates metric.Int64Counter
	unitsReserved metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter) *orderMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	m := &orderMetrics{}
	m.placed, _ = meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders committed successfully"))
	m.failures, _ = meter.Int64Counter("order_placement_failures_total",
		metric.WithDescription("Order placements rejected or aborted, by reason"))
	m.statusUpdates, _ = meter.Int64Counter("order_status_updates_total",
		metric.WithDescription("Order status updates applied, by target status"))
	m.unitsReserved, _ = meter.Int64Counter("stock_units_reserved_total",
		metric.WithDescription("Variant stock units decremented by committed orders"))
	return m
}

func (m *orderMetrics) orderPlaced(ctx context.Context, units int) {
	if m.placed != nil {
		m.placed.Add(ctx, 1)
	}
	if m.unitsReserved != nil {
		m.unitsReserved.Add(ctx, int64(units))
	}
}

func (m *orderMetrics) placementFailed(ctx context.Context, reason string) {
	if m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *orderMetrics) statusUpdated(ctx context.Context, status OrderStatus) {
	if m.statusUpdates != nil {
		m.statusUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}
