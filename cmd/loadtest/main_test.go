package main

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/erain9/exchange/pkg/backend/memory"
	"github.com/erain9/exchange/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestGenerateConservesQuantity(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewMemoryBackend()
	engine := core.NewEngine(core.WithJournal(journal))
	symbols := []string{"A", "B"}
	for _, s := range symbols {
		_, err := engine.RegisterSymbol(ctx, s)
		require.NoError(t, err)
	}

	opts := options{workers: 8, ordersPerWorker: 300, marketRatio: 0.2, cancelRatio: 0.15}
	limiter := rate.NewLimiter(rate.Inf, 1)

	stats := make([]*workerStats, opts.workers)
	var wg sync.WaitGroup
	for w := range stats {
		stats[w] = newWorkerStats()
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			generate(ctx, engine, limiter, symbols, opts, rand.New(rand.NewSource(int64(id))), stats[id])
		}(w)
	}
	wg.Wait()

	for _, ws := range stats {
		assert.Equal(t, opts.ordersPerWorker, ws.submitted)
		assert.Zero(t, ws.rejected)
		assert.Equal(t, int64(opts.ordersPerWorker), ws.latency.TotalCount())
	}

	for _, s := range symbols {
		events, err := journal.Events(ctx, s, 0, 0)
		require.NoError(t, err)
		book, err := engine.Book(s)
		require.NoError(t, err)
		bid, ask := book.Volumes()

		accepted, gone := conservation(events)
		assert.True(t, accepted.Equal(gone.Add(bid).Add(ask)), "%s: accepted %s, gone %s, resting %s", s, accepted, gone, bid.Add(ask))
	}
}
