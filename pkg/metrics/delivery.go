package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DeliveryMetrics records what each delivery tick did.
type DeliveryMetrics interface {
	// RecordOutcome counts one resolved item. Outcome is sent, retry or failed.
	RecordOutcome(ctx context.Context, outcome string)
	// RecordTick records a tick's duration, claimed batch size and result status.
	RecordTick(ctx context.Context, duration time.Duration, claimed int, status string)
	// RecordReleased counts items returned to pending by the lease reaper.
	RecordReleased(ctx context.Context, n int)
	// RecordCampaignCompleted counts campaigns moved to completed.
	RecordCampaignCompleted(ctx context.Context, n int)
}

type deliveryMetrics struct {
	outcomes  metric.Int64Counter
	ticks     metric.Int64Counter
	claimed   metric.Int64Histogram
	duration  metric.Float64Histogram
	released  metric.Int64Counter
	completed metric.Int64Counter
}

// NewDeliveryMetrics creates the delivery instruments on the given meter provider.
func NewDeliveryMetrics(mp metric.MeterProvider, namespace string) (DeliveryMetrics, error) {
	meter := mp.Meter(namespace)
	m := &deliveryMetrics{}

	var err error
	if m.outcomes, err = meter.Int64Counter(
		fmt.Sprintf("%s_delivery_items_total", namespace),
		metric.WithDescription("Queue items resolved by the delivery worker"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create outcome counter: %w", err)
	}
	if m.ticks, err = meter.Int64Counter(
		fmt.Sprintf("%s_delivery_ticks_total", namespace),
		metric.WithDescription("Delivery worker ticks"),
		metric.WithUnit("{tick}"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create tick counter: %w", err)
	}
	if m.claimed, err = meter.Int64Histogram(
		fmt.Sprintf("%s_delivery_batch_size", namespace),
		metric.WithDescription("Items claimed per tick"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create batch histogram: %w", err)
	}
	if m.duration, err = meter.Float64Histogram(
		fmt.Sprintf("%s_delivery_tick_duration_seconds", namespace),
		metric.WithDescription("Duration of delivery ticks in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create duration histogram: %w", err)
	}
	if m.released, err = meter.Int64Counter(
		fmt.Sprintf("%s_delivery_leases_released_total", namespace),
		metric.WithDescription("Expired leases returned to pending"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create released counter: %w", err)
	}
	if m.completed, err = meter.Int64Counter(
		fmt.Sprintf("%s_campaigns_completed_total", namespace),
		metric.WithDescription("Campaigns moved to completed"),
		metric.WithUnit("{campaign}"),
	); err != nil {
		return nil, fmt.Errorf("metrics: create campaign counter: %w", err)
	}

	return m, nil
}

func (m *deliveryMetrics) RecordOutcome(ctx context.Context, outcome string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *deliveryMetrics) RecordTick(ctx context.Context, duration time.Duration, claimed int, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ticks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.claimed.Record(ctx, int64(claimed))
}

func (m *deliveryMetrics) RecordReleased(ctx context.Context, n int) {
	if n > 0 {
		m.released.Add(ctx, int64(n))
	}
}

func (m *deliveryMetrics) RecordCampaignCompleted(ctx context.Context, n int) {
	if n > 0 {
		m.completed.Add(ctx, int64(n))
	}
}

// NoOp discards every measurement.
type NoOp struct{}

// NewNoOp returns a DeliveryMetrics that records nothing.
func NewNoOp() DeliveryMetrics { return NoOp{} }

func (NoOp) RecordOutcome(context.Context, string) {}
func (NoOp) RecordTick(context.Context, time.Duration, int, string) {}
func (NoOp) RecordReleased(context.Context, int) {}
func (NoOp) RecordCampaignCompleted(context.Context, int) {}
