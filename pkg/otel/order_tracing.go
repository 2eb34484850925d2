package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanSubmitLimitOrder  = "submit_limit_order"
	SpanSubmitMarketOrder = "submit_market_order"
	SpanCancelOrder       = "cancel_order"
	SpanPublishEvents     = "publish_events"

	// Attribute keys
	AttributeSymbol            = "order.symbol"
	AttributeOrderID           = "order.id"
	AttributeOrderSide         = "order.side"
	AttributeOrderKind         = "order.kind"
	AttributeOrderQuantity     = "order.quantity"
	AttributeOrderPrice        = "order.price"
	AttributeExecutedQuantity  = "order.executed_quantity"
	AttributeRemainingQuantity = "order.remaining_quantity"
	AttributeFillCount         = "fill.count"
	AttributeEventCount        = "event.count"
)

// StartOrderSpan starts a span on the matching engine tracer. Without a
// configured tracer it returns the span already in ctx, which is a no-op
// span when there is none, so callers can always End it.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetMatchingEngineTracer()
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
