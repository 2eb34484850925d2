package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erain9/exchange/pkg/core"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MarketMaker keeps a ladder of quotes on one book, replacing it every
// UpdateInterval
type MarketMaker struct {
	cfg          *Config
	logger       zerolog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     Strategy
	limiter      *rate.Limiter

	mu           sync.Mutex
	activeOrders map[string]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMarketMaker creates a new market maker
func NewMarketMaker(cfg *Config, logger zerolog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy Strategy) *MarketMaker {
	limit := rate.Inf
	if cfg.OrdersPerSecond > 0 {
		limit = rate.Limit(cfg.OrdersPerSecond)
	}
	burst := cfg.NumLevels * 2
	if burst < 1 {
		burst = 1
	}

	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With().Str("component", "MarketMaker").Str("symbol", cfg.Symbol).Logger(),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		limiter:      rate.NewLimiter(limit, burst),
		activeOrders: make(map[string]struct{}),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the market making loop
func (m *MarketMaker) Start(ctx context.Context) {
	m.logger.Info().Dur("update_interval", m.cfg.UpdateInterval).Msg("Starting market maker")

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop ends the loop and cancels every resting quote
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info().Msg("Stopping market maker")
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}
	m.logger.Info().Msg("Market maker stopped")
	return nil
}

func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	if err := m.UpdateOrders(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to update orders")
	}

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.UpdateOrders(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Failed to update orders")
			}
		}
	}
}

// UpdateOrders runs one cancel-and-replace cycle
func (m *MarketMaker) UpdateOrders(ctx context.Context) error {
	price, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	quotes, err := m.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, q := range quotes {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := m.orderPlacer.SubmitLimitOrder(ctx, m.cfg.Symbol, q.Side, q.Price, q.Quantity)
		if err != nil {
			m.logger.Error().Err(err).
				Int("level", q.Level).
				Str("side", q.Side.String()).
				Str("price", q.Price.String()).
				Msg("Failed to place order")
			continue
		}

		if res.Rested() {
			m.mu.Lock()
			m.activeOrders[res.RestingOrderID] = struct{}{}
			m.mu.Unlock()
		}

		m.logger.Debug().
			Str("order_id", res.OrderID).
			Str("side", q.Side.String()).
			Str("price", q.Price.String()).
			Str("executed", res.Executed().String()).
			Msg("Placed order")
	}
	return nil
}

// ActiveOrders returns the ids of quotes believed to be resting
func (m *MarketMaker) ActiveOrders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeOrders))
	for id := range m.activeOrders {
		ids = append(ids, id)
	}
	return ids
}

// cancelAllOrders cancels every tracked order. Orders that were filled in the
// meantime are forgotten silently.
func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	for _, orderID := range m.ActiveOrders() {
		err := m.orderPlacer.CancelOrder(ctx, orderID)
		if err != nil && !errors.Is(err, core.ErrOrderNotFound) {
			m.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to cancel order")
			lastErr = err
			continue
		}

		m.mu.Lock()
		delete(m.activeOrders, orderID)
		m.mu.Unlock()
	}
	return lastErr
}
