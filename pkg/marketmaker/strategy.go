package marketmaker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/erain9/exchange/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
)

// LayeredSymmetricQuoting places NumLevels bids and asks at equal distances
// below and above the reference price
type LayeredSymmetricQuoting struct {
	cfg    *Config
	size   fpdecimal.Decimal
	logger zerolog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger zerolog.Logger) (*LayeredSymmetricQuoting, error) {
	size, err := fpdecimal.FromString(cfg.OrderSize)
	if err != nil {
		return nil, fmt.Errorf("invalid order size %q: %w", cfg.OrderSize, err)
	}
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		size:   size,
		logger: logger.With().Str("component", "LayeredSymmetricQuoting").Logger(),
	}, nil
}

// CalculateOrders implements Strategy. Levels whose bid would not be positive
// are skipped.
func (s *LayeredSymmetricQuoting) CalculateOrders(_ context.Context, currentPrice float64) ([]Quote, error) {
	if currentPrice <= 0 {
		return nil, fmt.Errorf("reference price must be positive, got %v", currentPrice)
	}

	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	quotes := make([]Quote, 0, s.cfg.NumLevels*2)
	for i := 1; i <= s.cfg.NumLevels; i++ {
		bid, err := roundPrice(currentPrice - baseHalfSpread - float64(i-1)*priceStep)
		if err != nil {
			return nil, err
		}
		ask, err := roundPrice(currentPrice + baseHalfSpread + float64(i-1)*priceStep)
		if err != nil {
			return nil, err
		}
		if !bid.GreaterThan(fpdecimal.Zero) {
			continue
		}

		quotes = append(quotes,
			Quote{Level: i, Side: core.Buy, Price: bid, Quantity: s.size},
			Quote{Level: i, Side: core.Sell, Price: ask, Quantity: s.size},
		)

		s.logger.Debug().
			Int("level", i).
			Str("bid_price", bid.String()).
			Str("ask_price", ask.String()).
			Str("quantity", s.size.String()).
			Msg("Calculated order pair")
	}
	return quotes, nil
}

// roundPrice rounds to the three decimals a price carries
func roundPrice(p float64) (fpdecimal.Decimal, error) {
	return fpdecimal.FromString(strconv.FormatFloat(p, 'f', 3, 64))
}
