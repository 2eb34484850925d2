package core

import (
	"encoding/json"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Fill is one trade between an incoming (taker) order and a resting (maker)
// order. Price is always the maker's price.
type Fill struct {
	Symbol       string
	MakerOrderID string
	TakerOrderID string
	TakerSide    Side
	Price        fpdecimal.Decimal
	Quantity     fpdecimal.Decimal
	Sequence     uint64
	Time         time.Time
	// MakerFilled is true when this fill consumed the maker completely
	MakerFilled bool
}

// CounterpartyOrderID returns the resting order the taker traded against
func (f Fill) CounterpartyOrderID() string {
	return f.MakerOrderID
}

// BuyerOrderID returns the id of the buying order
func (f Fill) BuyerOrderID() string {
	if f.TakerSide == Buy {
		return f.TakerOrderID
	}
	return f.MakerOrderID
}

// SellerOrderID returns the id of the selling order
func (f Fill) SellerOrderID() string {
	if f.TakerSide == Sell {
		return f.TakerOrderID
	}
	return f.MakerOrderID
}

// Notional returns Price * Quantity
func (f Fill) Notional() fpdecimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

// MarshalJSON implements Marshaler interface
func (f Fill) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol              string `json:"symbol"`
		CounterpartyOrderID string `json:"counterpartyOrderID"`
		TakerOrderID        string `json:"takerOrderID"`
		Price               string `json:"price"`
		Quantity            string `json:"quantity"`
		Sequence            uint64 `json:"sequence"`
	}{
		Symbol:              f.Symbol,
		CounterpartyOrderID: f.MakerOrderID,
		TakerOrderID:        f.TakerOrderID,
		Price:               f.Price.String(),
		Quantity:            f.Quantity.String(),
		Sequence:            f.Sequence,
	})
}

// LimitResult is returned by SubmitLimitOrder
type LimitResult struct {
	// RestingOrderID is empty when the order was fully filled on arrival
	RestingOrderID string
	// OrderID identifies the incoming order in fills and journal events
	OrderID   string
	Remaining fpdecimal.Decimal
	Fills     []Fill
}

// Rested reports whether a remainder was placed on the book
func (r *LimitResult) Rested() bool {
	return r.RestingOrderID != ""
}

// Executed returns the total filled quantity
func (r *LimitResult) Executed() fpdecimal.Decimal {
	return sumFills(r.Fills)
}

// MarshalJSON implements json.Marshaler interface
func (r *LimitResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RestingOrderID string `json:"restingOrderID,omitempty"`
		OrderID        string `json:"orderID"`
		Remaining      string `json:"remaining"`
		Fills          []Fill `json:"fills"`
	}{
		RestingOrderID: r.RestingOrderID,
		OrderID:        r.OrderID,
		Remaining:      r.Remaining.String(),
		Fills:          nonNilFills(r.Fills),
	})
}

// MarketResult is returned by SubmitMarketOrder. It accompanies
// ErrInsufficientLiquidity when only part of the order could execute.
type MarketResult struct {
	OrderID   string
	Remaining fpdecimal.Decimal
	Fills     []Fill
}

// Executed returns the total filled quantity
func (r *MarketResult) Executed() fpdecimal.Decimal {
	return sumFills(r.Fills)
}

// MarshalJSON implements json.Marshaler interface
func (r *MarketResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OrderID   string `json:"orderID"`
		Remaining string `json:"remaining"`
		Fills     []Fill `json:"fills"`
	}{
		OrderID:   r.OrderID,
		Remaining: r.Remaining.String(),
		Fills:     nonNilFills(r.Fills),
	})
}

// LevelSnapshot is one aggregated price level
type LevelSnapshot struct {
	Price  fpdecimal.Decimal
	Volume fpdecimal.Decimal
	Orders int
}

// MarshalJSON implements json.Marshaler interface
func (l LevelSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Price  string `json:"price"`
		Volume string `json:"volume"`
		Orders int    `json:"orders"`
	}{l.Price.String(), l.Volume.String(), l.Orders})
}

// BookSnapshot is a consistent view of both sides, best price first
type BookSnapshot struct {
	Symbol string          `json:"symbol"`
	Bids   []LevelSnapshot `json:"bids"`
	Asks   []LevelSnapshot `json:"asks"`
}

func sumFills(fills []Fill) fpdecimal.Decimal {
	total := fpdecimal.Zero
	for _, f := range fills {
		total = total.Add(f.Quantity)
	}
	return total
}

func nonNilFills(fills []Fill) []Fill {
	if fills == nil {
		return []Fill{}
	}
	return fills
}
