// Package settlement holds a reference settlement collaborator that books
// every fill instruction it receives.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/shopspring/decimal"
)

// SymbolStats aggregates the fills of one symbol
type SymbolStats struct {
	Symbol       string          `json:"symbol"`
	Trades       int             `json:"trades"`
	Volume       decimal.Decimal `json:"volume"`
	Notional     decimal.Decimal `json:"notional"`
	LastPrice    decimal.Decimal `json:"lastPrice"`
	LastSequence uint64          `json:"lastSequence"`
}

// VWAP is the volume weighted average price, zero without trades
func (s SymbolStats) VWAP() decimal.Decimal {
	if s.Volume.IsZero() {
		return decimal.Zero
	}
	return s.Notional.Div(s.Volume)
}

type fillKey struct {
	symbol   string
	sequence uint64
}

// Ledger is an in-memory SettlementSink. Instructions are idempotent per
// (symbol, sequence), so redelivery does not double count.
type Ledger struct {
	mu      sync.RWMutex
	bought  map[string]decimal.Decimal
	sold    map[string]decimal.Decimal
	symbols map[string]*SymbolStats
	seen    map[fillKey]struct{}
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		bought:  make(map[string]decimal.Decimal),
		sold:    make(map[string]decimal.Decimal),
		symbols: make(map[string]*SymbolStats),
		seen:    make(map[fillKey]struct{}),
	}
}

// Settle implements messaging.SettlementSink
func (l *Ledger) Settle(_ context.Context, in *messaging.SettlementInstruction) error {
	price, err := decimal.NewFromString(in.Price)
	if err != nil {
		return fmt.Errorf("settlement %s/%d: invalid price %q: %w", in.Symbol, in.Sequence, in.Price, err)
	}
	quantity, err := decimal.NewFromString(in.Quantity)
	if err != nil {
		return fmt.Errorf("settlement %s/%d: invalid quantity %q: %w", in.Symbol, in.Sequence, in.Quantity, err)
	}
	if !quantity.IsPositive() || !price.IsPositive() {
		return fmt.Errorf("settlement %s/%d: non-positive price or quantity", in.Symbol, in.Sequence)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := fillKey{in.Symbol, in.Sequence}
	if _, dup := l.seen[key]; dup {
		return nil
	}
	l.seen[key] = struct{}{}

	l.bought[in.BuyerOrderID] = l.bought[in.BuyerOrderID].Add(quantity)
	l.sold[in.SellerOrderID] = l.sold[in.SellerOrderID].Add(quantity)

	stats, ok := l.symbols[in.Symbol]
	if !ok {
		stats = &SymbolStats{Symbol: in.Symbol}
		l.symbols[in.Symbol] = stats
	}
	stats.Trades++
	stats.Volume = stats.Volume.Add(quantity)
	stats.Notional = stats.Notional.Add(price.Mul(quantity))
	if in.Sequence >= stats.LastSequence {
		stats.LastSequence = in.Sequence
		stats.LastPrice = price
	}
	return nil
}

// Bought returns the quantity settled with orderID as the buyer
func (l *Ledger) Bought(orderID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bought[orderID]
}

// Sold returns the quantity settled with orderID as the seller
func (l *Ledger) Sold(orderID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sold[orderID]
}

// Stats returns a copy of the aggregates of symbol
func (l *Ledger) Stats(symbol string) (SymbolStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.symbols[symbol]
	if !ok {
		return SymbolStats{Symbol: symbol}, false
	}
	return *s, true
}

// AllStats returns every symbol's aggregates sorted by symbol
func (l *Ledger) AllStats() []SymbolStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SymbolStats, 0, len(l.symbols))
	for _, s := range l.symbols {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Balanced reports whether total bought equals total sold, which holds as
// long as every instruction names both counterparties
func (l *Ledger) Balanced() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bought, sold := decimal.Zero, decimal.Zero
	for _, q := range l.bought {
		bought = bought.Add(q)
	}
	for _, q := range l.sold {
		sold = sold.Add(q)
	}
	return bought.Equal(sold)
}

var _ messaging.SettlementSink = (*Ledger)(nil)
