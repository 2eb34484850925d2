package messaging

import (
	"context"
	"errors"
	"time"
)

// EventType identifies what happened to an order book
type EventType string

// Event types emitted by the matching engine
const (
	EventOrderAccepted  EventType = "ORDER_ACCEPTED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventOrderFilled    EventType = "ORDER_FILLED"
)

// Event is a single journal entry produced by the matching engine.
// Prices and quantities are decimal strings so that sinks do not need the
// engine's numeric types.
type Event struct {
	Type     EventType `json:"type"`
	Symbol   string    `json:"symbol"`
	Sequence uint64    `json:"sequence"`
	Time     time.Time `json:"time"`

	// Set for ORDER_ACCEPTED and ORDER_CANCELLED
	OrderID   string `json:"orderID,omitempty"`
	Side      string `json:"side,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Price     string `json:"price,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	Remaining string `json:"remaining,omitempty"`

	// Set for ORDER_FILLED
	MakerOrderID string `json:"makerOrderID,omitempty"`
	TakerOrderID string `json:"takerOrderID,omitempty"`
}

// SettlementInstruction asks the settlement collaborator to move funds and
// shares for one fill.
type SettlementInstruction struct {
	Symbol        string    `json:"symbol"`
	Sequence      uint64    `json:"sequence"`
	BuyerOrderID  string    `json:"buyerOrderID"`
	SellerOrderID string    `json:"sellerOrderID"`
	Price         string    `json:"price"`
	Quantity      string    `json:"quantity"`
	Time          time.Time `json:"time"`
}

// EventSink receives journal events, e.g. for write-ahead logging.
// This decouples the core package from specific storage implementations.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// SettlementSink receives one instruction per fill
type SettlementSink interface {
	Settle(ctx context.Context, instruction *SettlementInstruction) error
}

// BatchSink is implemented by sinks that take all events of one engine
// operation in a single call
type BatchSink interface {
	EventSink
	PublishBatch(ctx context.Context, events []*Event) error
}

// PublishAll hands events to sink in one call when it supports batches and
// one by one otherwise. Every event is attempted; the failures come back
// joined.
func PublishAll(ctx context.Context, sink EventSink, events []*Event) error {
	if b, ok := sink.(BatchSink); ok {
		return b.PublishBatch(ctx, events)
	}

	var errs []error
	for _, event := range events {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiSink fans an event out to several sinks. Every sink is tried; the
// failures come back joined.
type MultiSink []EventSink

// Publish implements EventSink
func (m MultiSink) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishBatch implements BatchSink, passing the batch on whole to every
// sink that supports it
func (m MultiSink) PublishBatch(ctx context.Context, events []*Event) error {
	var errs []error
	for _, sink := range m {
		if err := PublishAll(ctx, sink, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiSettler hands an instruction to several settlement sinks. Every sink
// is tried; the failures come back joined.
type MultiSettler []SettlementSink

// Settle implements SettlementSink
func (m MultiSettler) Settle(ctx context.Context, in *SettlementInstruction) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Settle(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards everything
type NopSink struct{}

// Publish implements EventSink
func (NopSink) Publish(context.Context, *Event) error { return nil }

// Settle implements SettlementSink
func (NopSink) Settle(context.Context, *SettlementInstruction) error { return nil }

var (
	_ EventSink      = MultiSink(nil)
	_ EventSink      = NopSink{}
	_ SettlementSink = MultiSettler(nil)
	_ SettlementSink = NopSink{}
)
