package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/erain9/exchange/pkg/testutil"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var _ core.JournalBackend = (*RedisBackend)(nil)

// setupTestRedis initializes a Redis client for testing, skipping when no
// server is reachable. Flushes the DB before returning the client.
func setupTestRedis(t *testing.T) *redis.Client {
	addr := testutil.RedisAddr()
	testutil.SkipIfRedisUnavailable(t, addr)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	err := client.FlushDB(context.Background()).Err()
	if err != nil {
		t.Fatalf("Failed to flush Redis DB: %v", err)
	}
	return client
}

func TestNewRedisBackend(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	backend := NewRedisBackend(client, "test", nil)
	assert.NotNil(t, backend.logger)
	assert.Equal(t, "test:symbols", backend.symbolsKey)
	assert.Equal(t, "test:journal:ABC", backend.streamKey("ABC"))
}

func TestRedisBackend_PublishAndRead(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client, "test", zaptest.NewLogger(t))
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, backend.Ping(ctx))

	for _, seq := range []uint64{1, 2, 4, 3, 5} {
		require.NoError(t, backend.Publish(ctx, &messaging.Event{
			Type:     messaging.EventOrderAccepted,
			Symbol:   "ABC",
			Sequence: seq,
			OrderID:  fmt.Sprintf("o-%d", seq),
			Quantity: "1.000",
		}))
	}

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
		assert.Equal(t, fmt.Sprintf("o-%d", i+1), e.OrderID)
	}

	page, err := backend.Events(ctx, "ABC", 3, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(4), page[0].Sequence)

	n, err := backend.Len(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	symbols, err := backend.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC"}, symbols)

	require.NoError(t, backend.Truncate(ctx, "ABC", 2))
	rest, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, uint64(3), rest[0].Sequence)

	last, err := backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	require.NoError(t, backend.Truncate(ctx, "ABC", 5))
	last, err = backend.LastSequence(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last, "truncated events still count")

	last, err = backend.LastSequence(ctx, "NOPE")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestRedisBackend_AsEngineJournal(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client, "engine", zaptest.NewLogger(t))
	defer backend.Close()
	ctx := context.Background()

	engine := core.NewEngine(core.WithJournal(backend))
	_, err := engine.RegisterSymbol(ctx, "ABC")
	require.NoError(t, err)

	_, err = engine.SubmitLimitOrder(ctx, "ABC", core.Sell, fpdecimal.FromInt(40), fpdecimal.FromInt(50))
	require.NoError(t, err)
	_, err = engine.SubmitLimitOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(45), fpdecimal.FromInt(100))
	require.NoError(t, err)

	events, err := backend.Events(ctx, "ABC", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, messaging.EventOrderFilled, events[2].Type)
	assert.Equal(t, "40.000", events[2].Price)
}
