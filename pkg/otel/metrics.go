package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/erain9/exchange/pkg/otel"
)

var (
	engineMetrics     *EngineMetrics
	engineMetricsOnce sync.Once
)

// EngineMetrics holds the metric instruments of the matching engine.
// All methods are safe on a nil receiver.
type EngineMetrics struct {
	// Traffic metrics
	ordersTotal  metric.Int64Counter
	fillsTotal   metric.Int64Counter
	cancelsTotal metric.Int64Counter

	// Latency metrics
	latency metric.Float64Histogram

	// Error metrics
	rejectedTotal      metric.Int64Counter
	collaboratorErrors metric.Int64Counter
}

// NewEngineMetrics creates the instruments on meter
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	ordersTotal, err := meter.Int64Counter(
		"engine.orders.total",
		metric.WithDescription("Total number of orders accepted"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	fillsTotal, err := meter.Int64Counter(
		"engine.fills.total",
		metric.WithDescription("Total number of fills executed"),
		metric.WithUnit("{fill}"),
	)
	if err != nil {
		return nil, err
	}

	cancelsTotal, err := meter.Int64Counter(
		"engine.cancels.total",
		metric.WithDescription("Total number of orders cancelled"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"engine.operation.duration",
		metric.WithDescription("Latency (seconds) of engine operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rejectedTotal, err := meter.Int64Counter(
		"engine.rejected.total",
		metric.WithDescription("Total number of operations rejected"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	collaboratorErrors, err := meter.Int64Counter(
		"engine.collaborator.errors.total",
		metric.WithDescription("Total number of journal and settlement delivery failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		ordersTotal:        ordersTotal,
		fillsTotal:         fillsTotal,
		cancelsTotal:       cancelsTotal,
		latency:            latency,
		rejectedTotal:      rejectedTotal,
		collaboratorErrors: collaboratorErrors,
	}, nil
}

// GetEngineMetrics returns a singleton built on the global meter provider.
// If the instruments cannot be created the returned metrics record nothing.
func GetEngineMetrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		m, err := NewEngineMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		if err != nil {
			m = &EngineMetrics{}
		}
		engineMetrics = m
	})
	return engineMetrics
}

// RecordOrder counts an accepted order
func (m *EngineMetrics) RecordOrder(ctx context.Context, symbol, kind, side string) {
	if m == nil || m.ordersTotal == nil {
		return
	}
	m.ordersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
		attribute.String(AttributeOrderKind, kind),
		attribute.String(AttributeOrderSide, side),
	))
}

// RecordFills counts fills produced by one operation
func (m *EngineMetrics) RecordFills(ctx context.Context, symbol string, count int) {
	if m == nil || m.fillsTotal == nil || count == 0 {
		return
	}
	m.fillsTotal.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
	))
}

// RecordCancel counts a cancelled order
func (m *EngineMetrics) RecordCancel(ctx context.Context, symbol string) {
	if m == nil || m.cancelsTotal == nil {
		return
	}
	m.cancelsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
	))
}

// RecordRejected counts an operation that returned an error
func (m *EngineMetrics) RecordRejected(ctx context.Context, operation, reason string) {
	if m == nil || m.rejectedTotal == nil {
		return
	}
	m.rejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	))
}

// RecordLatency records how long an operation took
func (m *EngineMetrics) RecordLatency(ctx context.Context, operation string, d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordCollaboratorError counts a failed journal or settlement delivery
func (m *EngineMetrics) RecordCollaboratorError(ctx context.Context, collaborator string) {
	if m == nil || m.collaboratorErrors == nil {
		return
	}
	m.collaboratorErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collaborator", collaborator),
	))
}
