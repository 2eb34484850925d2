package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.JournalBackend = (*MemoryBackend)(nil)

func event(symbol string, seq uint64, t messaging.EventType) *messaging.Event {
	return &messaging.Event{Type: t, Symbol: symbol, Sequence: seq, OrderID: fmt.Sprintf("%s-%d", symbol, seq)}
}

func TestNewMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	assert.NotNil(t, backend)
	assert.NotNil(t, backend.streams)
	assert.Empty(t, backend.Symbols())
}

func TestMemoryBackend_PublishAndRead(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, backend.Publish(ctx, event("ABC", seq, messaging.EventOrderAccepted)))
	}
	require.NoError(t, backend.Publish(ctx, event("XYZ", 1, messaging.EventOrderAccepted)))

	all, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	page, err := backend.Events(ctx, "ABC", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Sequence)
	assert.Equal(t, uint64(4), page[1].Sequence)

	none, err := backend.Events(ctx, "ABC", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	missing, err := backend.Events(ctx, "NOPE", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.Equal(t, []string{"ABC", "XYZ"}, backend.Symbols())
	assert.Equal(t, 5, backend.Len("ABC"))
}

func TestMemoryBackend_OutOfOrderDelivery(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	for _, seq := range []uint64{1, 3, 2, 5, 4} {
		require.NoError(t, backend.Publish(ctx, event("ABC", seq, messaging.EventOrderFilled)))
	}

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	last, err := backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	last, err = backend.LastSequence(ctx, "NOPE")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestMemoryBackend_StoresCopies(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	e := event("ABC", 1, messaging.EventOrderAccepted)
	require.NoError(t, backend.Publish(ctx, e))
	e.OrderID = "mutated"

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "ABC-1", events[0].OrderID)

	events[0].OrderID = "mutated again"
	again, _ := backend.Events(ctx, "ABC", 0, 0)
	assert.Equal(t, "ABC-1", again[0].OrderID)
}

func TestMemoryBackend_Close(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Publish(ctx, event("ABC", 1, messaging.EventOrderAccepted)))
	require.NoError(t, backend.Close())

	assert.ErrorIs(t, backend.Publish(ctx, event("ABC", 2, messaging.EventOrderAccepted)), ErrClosed)
	_, err := backend.Events(ctx, "ABC", 0, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBackend_AsEngineJournal(t *testing.T) {
	backend := NewMemoryBackend()
	engine := core.NewEngine(core.WithJournal(backend))
	ctx := context.Background()
	_, err := engine.RegisterSymbol(ctx, "ABC")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				side := core.Side((i + j) % 2)
				_, err := engine.SubmitLimitOrder(ctx, "ABC", side, fpdecimal.FromInt(int64(100+j%3)), fpdecimal.FromInt(1))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence, "journal must hold a gap-free sequence")
	}
	assert.Len(t, backend.streams["ABC"], len(events))
	assert.Equal(t, 200, len(filterType(events, messaging.EventOrderAccepted)))
}

func filterType(events []*messaging.Event, t messaging.EventType) []*messaging.Event {
	var out []*messaging.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
