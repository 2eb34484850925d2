package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/logging"
	"github.com/erain9/exchange/pkg/marketmaker"
	"github.com/erain9/exchange/pkg/settlement"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog/log"
)

// Runs a market maker against an in-process engine together with a random
// taker, and logs the top of the book and traded volume every second.
func main() {
	logging.Setup(logging.Config{Level: os.Getenv("LOG_LEVEL"), Pretty: true, Output: os.Stderr})

	cfg, err := marketmaker.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger := settlement.NewLedger()
	engine := core.NewEngine(core.WithSettlement(ledger))
	if _, err := engine.RegisterSymbol(ctx, cfg.Symbol); err != nil {
		log.Fatal().Err(err).Msg("Failed to register symbol")
	}

	priceFetcher := marketmaker.NewPriceFetcher(cfg, log.Logger)
	defer priceFetcher.Close()

	strategy, err := marketmaker.NewLayeredSymmetricQuoting(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create strategy")
	}

	mm := marketmaker.NewMarketMaker(cfg, log.Logger, engine, priceFetcher, strategy)
	mm.Start(ctx)

	go takeLiquidity(ctx, engine, cfg.Symbol)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			q, _ := engine.BestBidAsk(cfg.Symbol)
			stats, _ := ledger.Stats(cfg.Symbol)
			log.Info().
				Str("bid", q.Bid.String()).
				Str("ask", q.Ask.String()).
				Int("trades", stats.Trades).
				Str("volume", stats.Volume.String()).
				Str("vwap", stats.VWAP().StringFixed(3)).
				Msg("Book")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mm.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}
}

// takeLiquidity sends small market orders at random intervals
func takeLiquidity(ctx context.Context, engine *core.Engine, symbol string) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(100+r.Intn(400)) * time.Millisecond):
		}

		side := core.Side(r.Intn(2))
		qty := fpdecimal.FromInt(int64(1 + r.Intn(3)))
		_, err := engine.SubmitMarketOrder(ctx, symbol, side, qty)
		if err != nil && !errors.Is(err, core.ErrInsufficientLiquidity) {
			log.Error().Err(err).Msg("Taker order failed")
		}
	}
}
