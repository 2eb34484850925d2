package pebble

import (
	"context"
	"fmt"
	"testing"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.JournalBackend = (*PebbleBackend)(nil)
	_ messaging.BatchSink = (*PebbleBackend)(nil)
)

func openTestBackend(t *testing.T) (*PebbleBackend, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	return backend, dir
}

func TestPebbleBackend_PublishAndRead(t *testing.T) {
	backend, _ := openTestBackend(t)
	defer backend.Close()
	ctx := context.Background()

	for _, seq := range []uint64{3, 1, 2, 300, 256} {
		require.NoError(t, backend.Publish(ctx, &messaging.Event{
			Type:     messaging.EventOrderAccepted,
			Symbol:   "ABC",
			Sequence: seq,
			OrderID:  fmt.Sprintf("o-%d", seq),
		}))
	}
	// a symbol sharing the prefix must not leak into ABC's range
	require.NoError(t, backend.Publish(ctx, &messaging.Event{Symbol: "ABCD", Sequence: 1}))
	require.NoError(t, backend.Publish(ctx, &messaging.Event{Symbol: "AB", Sequence: 9}))

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	var seqs []uint64
	for _, e := range events {
		assert.Equal(t, "ABC", e.Symbol)
		seqs = append(seqs, e.Sequence)
	}
	assert.Equal(t, []uint64{1, 2, 3, 256, 300}, seqs)

	page, err := backend.Events(ctx, "ABC", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Sequence)
	assert.Equal(t, uint64(256), page[1].Sequence)

	last, err := backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), last)

	last, err = backend.LastSequence(ctx, "NOPE")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestPebbleBackend_Truncate(t *testing.T) {
	backend, _ := openTestBackend(t)
	defer backend.Close()
	ctx := context.Background()

	for seq := uint64(1); seq <= 10; seq++ {
		require.NoError(t, backend.Publish(ctx, &messaging.Event{Symbol: "ABC", Sequence: seq}))
	}
	require.NoError(t, backend.Truncate("ABC", 7))

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(8), events[0].Sequence)

	// the high-water mark survives truncating everything
	require.NoError(t, backend.Truncate("ABC", 10))
	events, err = backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	last, err := backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)

	// a lower truncate does not move it back
	require.NoError(t, backend.Truncate("ABC", 3))
	last, err = backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
}

func TestPebbleBackend_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := Open(Options{Dir: dir, Sync: true})
	require.NoError(t, err)
	require.NoError(t, backend.Publish(ctx, &messaging.Event{
		Type:     messaging.EventOrderFilled,
		Symbol:   "ABC",
		Sequence: 42,
		Price:    "40.000",
	}))
	require.NoError(t, backend.Close())

	backend, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer backend.Close()

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderFilled, events[0].Type)
	assert.Equal(t, "40.000", events[0].Price)
}

func TestPebbleBackend_RejectsNulSymbol(t *testing.T) {
	backend, _ := openTestBackend(t)
	defer backend.Close()
	ctx := context.Background()

	err := backend.Publish(ctx, &messaging.Event{Symbol: "A\x00B", Sequence: 1})
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	// nothing of a rejected batch is committed
	err = backend.PublishBatch(ctx, []*messaging.Event{
		{Symbol: "ABC", Sequence: 1},
		{Symbol: "A\x00B", Sequence: 2},
	})
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPebbleBackend_AsEngineJournal(t *testing.T) {
	backend, _ := openTestBackend(t)
	defer backend.Close()
	ctx := context.Background()

	engine := core.NewEngine(core.WithJournal(backend))
	_, err := engine.RegisterSymbol(ctx, "ABC")
	require.NoError(t, err)

	res, err := engine.SubmitLimitOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(50), fpdecimal.FromInt(100))
	require.NoError(t, err)
	require.NoError(t, engine.CancelOrder(ctx, res.RestingOrderID))

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, messaging.EventOrderAccepted, events[0].Type)
	assert.Equal(t, messaging.EventOrderCancelled, events[1].Type)
	assert.Equal(t, res.RestingOrderID, events[1].OrderID)
}

func TestPebbleBackend_EngineRestartContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	run := func(price int64) {
		backend, err := Open(Options{Dir: dir, Sync: true})
		require.NoError(t, err)
		defer func() { require.NoError(t, backend.Close()) }()

		engine := core.NewEngine(core.WithJournal(backend), core.WithSequenceSource(backend))
		_, err = engine.RegisterSymbol(ctx, "ABC")
		require.NoError(t, err)

		_, err = engine.SubmitLimitOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(price), fpdecimal.FromInt(10))
		require.NoError(t, err)
	}

	run(50)
	run(60)

	backend, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer backend.Close()

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2, "second run must not overwrite the first")
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, "50.000", events[0].Price)
	assert.Equal(t, uint64(2), events[1].Sequence)
	assert.Equal(t, "60.000", events[1].Price)
}
