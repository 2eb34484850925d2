package marketmaker

import (
	"context"

	"github.com/erain9/exchange/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current reference price for the configured symbol
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer places and cancels orders. *core.Engine satisfies it.
type OrderPlacer interface {
	SubmitLimitOrder(ctx context.Context, symbol string, side core.Side, price, quantity fpdecimal.Decimal) (*core.LimitResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Quote is one order the strategy wants on the book
type Quote struct {
	Level    int
	Side     core.Side
	Price    fpdecimal.Decimal
	Quantity fpdecimal.Decimal
}

// Strategy defines the interface for market making strategies
type Strategy interface {
	// CalculateOrders calculates the quotes to be placed around the current price
	CalculateOrders(ctx context.Context, currentPrice float64) ([]Quote, error)
}

var _ OrderPlacer = (*core.Engine)(nil)
