package core

import (
	"context"

	"github.com/erain9/exchange/pkg/messaging"
)

// JournalBackend stores the event stream of every book. The engine writes
// to it only through messaging.EventSink; Events reads the history of one
// symbol back in sequence order.
type JournalBackend interface {
	messaging.EventSink
	SequenceSource

	// Events returns up to limit events of symbol with a sequence greater
	// than after. limit <= 0 means no limit.
	Events(ctx context.Context, symbol string, after uint64, limit int) ([]*messaging.Event, error)

	// Close releases the backend's resources
	Close() error
}

// SequenceSource reports the last event sequence already recorded for a
// symbol. A book registered against it continues numbering after that
// sequence instead of starting again at 1.
type SequenceSource interface {
	LastSequence(ctx context.Context, symbol string) (uint64, error)
}
