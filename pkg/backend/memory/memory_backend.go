package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/erain9/exchange/pkg/messaging"
)

// MemoryBackend is an in-process event journal. Events of each symbol are
// kept ordered by sequence even when they arrive out of order.
type MemoryBackend struct {
	sync.RWMutex
	streams map[string][]*messaging.Event
	closed  bool
}

// NewMemoryBackend creates an empty journal
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		streams: make(map[string][]*messaging.Event),
	}
}

// Publish stores a copy of event
func (b *MemoryBackend) Publish(_ context.Context, event *messaging.Event) error {
	b.Lock()
	defer b.Unlock()

	if b.closed {
		return ErrClosed
	}

	stored := *event
	stream := b.streams[event.Symbol]

	// nearly always an append; collaborators deliver after the book lock
	// is released so neighbouring events can swap
	i := len(stream)
	for i > 0 && stream[i-1].Sequence > stored.Sequence {
		i--
	}
	stream = append(stream, nil)
	copy(stream[i+1:], stream[i:])
	stream[i] = &stored

	b.streams[event.Symbol] = stream
	return nil
}

// Events returns up to limit events of symbol after the given sequence
func (b *MemoryBackend) Events(_ context.Context, symbol string, after uint64, limit int) ([]*messaging.Event, error) {
	b.RLock()
	defer b.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	stream := b.streams[symbol]
	start := sort.Search(len(stream), func(i int) bool {
		return stream[i].Sequence > after
	})

	end := len(stream)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := make([]*messaging.Event, 0, end-start)
	for _, e := range stream[start:end] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// LastSequence returns the highest stored sequence of symbol, 0 if none
func (b *MemoryBackend) LastSequence(_ context.Context, symbol string) (uint64, error) {
	b.RLock()
	defer b.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}
	stream := b.streams[symbol]
	if len(stream) == 0 {
		return 0, nil
	}
	return stream[len(stream)-1].Sequence, nil
}

// Symbols returns the symbols with at least one event
func (b *MemoryBackend) Symbols() []string {
	b.RLock()
	defer b.RUnlock()

	symbols := make([]string, 0, len(b.streams))
	for s := range b.streams {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Len returns the number of events stored for symbol
func (b *MemoryBackend) Len(symbol string) int {
	b.RLock()
	defer b.RUnlock()
	return len(b.streams[symbol])
}

// Close drops all events
func (b *MemoryBackend) Close() error {
	b.Lock()
	defer b.Unlock()
	b.closed = true
	b.streams = make(map[string][]*messaging.Event)
	return nil
}
