package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/exchange/pkg/backend/memory"
	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/logging"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type options struct {
	workers         int
	ordersPerWorker int
	rate            float64
	symbols         int
	marketRatio     float64
	cancelRatio     float64
}

type workerStats struct {
	latency   *hdrhistogram.Histogram
	submitted int
	rejected  int
	shortfall int
}

func newWorkerStats() *workerStats {
	// 1µs .. 10s in nanoseconds
	return &workerStats{latency: hdrhistogram.New(1000, 10_000_000_000, 3)}
}

func main() {
	var opts options
	flag.IntVar(&opts.workers, "workers", 64, "concurrent order generators")
	flag.IntVar(&opts.ordersPerWorker, "orders", 2000, "orders per worker")
	flag.Float64Var(&opts.rate, "rate", 0, "orders per second across all workers, 0 for unlimited")
	flag.IntVar(&opts.symbols, "symbols", 4, "number of books")
	flag.Float64Var(&opts.marketRatio, "market", 0.2, "share of market orders")
	flag.Float64Var(&opts.cancelRatio, "cancel", 0.1, "share of cancels")
	flag.Parse()

	logging.Setup(logging.Config{Level: "warn", Pretty: true, Output: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	journal := memory.NewMemoryBackend()
	engine := core.NewEngine(core.WithJournal(journal))

	symbols := make([]string, opts.symbols)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%d", i)
		if _, err := engine.RegisterSymbol(ctx, symbols[i]); err != nil {
			log.Fatal().Err(err).Msg("Failed to register symbol")
		}
	}

	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	limiter := rate.NewLimiter(limit, opts.workers)

	stats := make([]*workerStats, opts.workers)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < opts.workers; w++ {
		stats[w] = newWorkerStats()
		wg.Add(1)
		go func(id int, ws *workerStats) {
			defer wg.Done()
			generate(ctx, engine, limiter, symbols, opts, rand.New(rand.NewSource(int64(id)+1)), ws)
		}(w, stats[w])
	}
	wg.Wait()
	elapsed := time.Since(start)

	report(engine, journal, symbols, stats, elapsed)
}

func generate(ctx context.Context, engine *core.Engine, limiter *rate.Limiter, symbols []string, opts options, r *rand.Rand, ws *workerStats) {
	var resting []string

	for i := 0; i < opts.ordersPerWorker; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		symbol := symbols[r.Intn(len(symbols))]
		side := core.Side(r.Intn(2))
		qty := fpdecimal.FromInt(int64(1 + r.Intn(20)))

		began := time.Now()
		var err error
		switch roll := r.Float64(); {
		case roll < opts.cancelRatio && len(resting) > 0:
			idx := r.Intn(len(resting))
			err = engine.CancelOrder(ctx, resting[idx])
			resting = append(resting[:idx], resting[idx+1:]...)
			if errors.Is(err, core.ErrOrderNotFound) {
				err = nil
			}
		case roll < opts.cancelRatio+opts.marketRatio:
			_, err = engine.SubmitMarketOrder(ctx, symbol, side, qty)
			if errors.Is(err, core.ErrInsufficientLiquidity) {
				ws.shortfall++
				err = nil
			}
		default:
			price := fpdecimal.FromInt(int64(95 + r.Intn(11)))
			var res *core.LimitResult
			res, err = engine.SubmitLimitOrder(ctx, symbol, side, price, qty)
			if err == nil && res.Rested() {
				resting = append(resting, res.RestingOrderID)
			}
		}
		_ = ws.latency.RecordValue(time.Since(began).Nanoseconds())

		ws.submitted++
		if err != nil {
			ws.rejected++
		}
	}
}

func report(engine *core.Engine, journal *memory.MemoryBackend, symbols []string, stats []*workerStats, elapsed time.Duration) {
	bold := color.New(color.Bold).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()

	merged := newWorkerStats()
	for _, ws := range stats {
		merged.latency.Merge(ws.latency)
		merged.submitted += ws.submitted
		merged.rejected += ws.rejected
		merged.shortfall += ws.shortfall
	}

	fmt.Println(bold("Load test completed in %v", elapsed))
	fmt.Printf("  operations:  %d (%.0f/s)\n", merged.submitted, float64(merged.submitted)/elapsed.Seconds())
	fmt.Printf("  rejected:    %d\n", merged.rejected)
	fmt.Printf("  shortfalls:  %d market orders ran out of liquidity\n", merged.shortfall)

	h := merged.latency
	fmt.Println(bold("Latency"))
	for _, q := range []float64{50, 90, 99, 99.9} {
		fmt.Printf("  p%-5v %v\n", q, time.Duration(h.ValueAtQuantile(q)))
	}
	fmt.Printf("  max    %v\n", time.Duration(h.Max()))

	fmt.Println(bold("Conservation"))
	ok := true
	for _, symbol := range symbols {
		events, err := journal.Events(context.Background(), symbol, 0, 0)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read journal")
			ok = false
			continue
		}
		book, err := engine.Book(symbol)
		if err != nil {
			ok = false
			continue
		}
		bid, ask := book.Volumes()

		accepted, booked := conservation(events)
		resting := bid.Add(ask)
		if accepted.Equal(booked.Add(resting)) {
			fmt.Printf("  %s %s accepted=%s resting=%s events=%d\n", green("OK  "), symbol, accepted, resting, len(events))
		} else {
			ok = false
			fmt.Printf("  %s %s accepted=%s filled+cancelled=%s resting=%s\n", red("FAIL"), symbol, accepted, booked, resting)
		}
	}
	if !ok {
		os.Exit(1)
	}
}

// conservation sums accepted quantity and the quantity that left the book
// through fills (both sides) or cancellations
func conservation(events []*messaging.Event) (accepted, gone fpdecimal.Decimal) {
	accepted, gone = fpdecimal.Zero, fpdecimal.Zero
	for _, ev := range events {
		switch ev.Type {
		case messaging.EventOrderAccepted:
			q, _ := fpdecimal.FromString(ev.Quantity)
			accepted = accepted.Add(q)
		case messaging.EventOrderFilled:
			q, _ := fpdecimal.FromString(ev.Quantity)
			gone = gone.Add(q).Add(q)
		case messaging.EventOrderCancelled:
			q, _ := fpdecimal.FromString(ev.Remaining)
			gone = gone.Add(q)
		}
	}
	return accepted, gone
}
