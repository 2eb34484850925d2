package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Sell Side = iota
	Buy
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side of the book
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide converts "BUY"/"SELL" (any case) into a Side
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY", "B":
		return Buy, true
	case "SELL", "S":
		return Sell, true
	default:
		return Sell, false
	}
}

// OrderKind represents type of the order
type OrderKind string

// Order kinds
const (
	KindLimit  OrderKind = "LIMIT"
	KindMarket OrderKind = "MARKET"
)

// OrderStatus tracks an order through matching
type OrderStatus string

// Order statuses. Filled and Cancelled are terminal.
const (
	StatusResting         OrderStatus = "RESTING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// IsLive reports whether an order in this status may still be matched or cancelled
func (s OrderStatus) IsLive() bool {
	return s == StatusResting || s == StatusPartiallyFilled
}

// Order stores information about order
type Order struct {
	id          string
	symbol      string
	side        Side
	kind        OrderKind
	price       fpdecimal.Decimal
	originalQty fpdecimal.Decimal
	remaining   fpdecimal.Decimal
	sequence    uint64
	status      OrderStatus
	createdAt   time.Time

	// intrusive FIFO links, owned by the PriceLevel holding the order
	level *PriceLevel
	prev  *Order
	next  *Order
}

// NewLimitOrder creates a limit order. Validation of quantity and price
// happens here so callers cannot build an order that breaks the invariants.
func NewLimitOrder(id, symbol string, side Side, price, quantity fpdecimal.Decimal, seq uint64) (*Order, error) {
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidPrice
	}

	return &Order{
		id:          id,
		symbol:      symbol,
		side:        side,
		kind:        KindLimit,
		price:       price,
		originalQty: quantity,
		remaining:   quantity,
		sequence:    seq,
		status:      StatusResting,
		createdAt:   time.Now(),
	}, nil
}

// NewMarketOrder creates a market order, which has no price
func NewMarketOrder(id, symbol string, side Side, quantity fpdecimal.Decimal, seq uint64) (*Order, error) {
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}

	return &Order{
		id:          id,
		symbol:      symbol,
		side:        side,
		kind:        KindMarket,
		price:       fpdecimal.Zero,
		originalQty: quantity,
		remaining:   quantity,
		sequence:    seq,
		status:      StatusResting,
		createdAt:   time.Now(),
	}, nil
}

// ID returns the order id
func (o *Order) ID() string {
	return o.id
}

// Symbol returns the symbol the order trades
func (o *Order) Symbol() string {
	return o.symbol
}

// Side returns side of the Order
func (o *Order) Side() Side {
	return o.side
}

// Kind returns LIMIT or MARKET
func (o *Order) Kind() OrderKind {
	return o.kind
}

// IsMarketOrder returns true if Order is MARKET
func (o *Order) IsMarketOrder() bool {
	return o.kind == KindMarket
}

// Price returns the limit price, zero for market orders
func (o *Order) Price() fpdecimal.Decimal {
	return o.price
}

// OriginalQty returns the quantity the order was accepted with
func (o *Order) OriginalQty() fpdecimal.Decimal {
	return o.originalQty
}

// Remaining returns the unfilled quantity
func (o *Order) Remaining() fpdecimal.Decimal {
	return o.remaining
}

// Filled returns OriginalQty - Remaining
func (o *Order) Filled() fpdecimal.Decimal {
	return o.originalQty.Sub(o.remaining)
}

// Sequence returns the entry sequence used for time priority
func (o *Order) Sequence() uint64 {
	return o.sequence
}

// Status returns the current status
func (o *Order) Status() OrderStatus {
	return o.status
}

// CreatedAt returns the acceptance time
func (o *Order) CreatedAt() time.Time {
	return o.createdAt
}

// fill decreases the remaining quantity and moves the status forward.
// quantity must be > 0 and <= Remaining().
func (o *Order) fill(quantity fpdecimal.Decimal) {
	o.remaining = o.remaining.Sub(quantity)
	if o.remaining.Equal(fpdecimal.Zero) {
		o.status = StatusFilled
		return
	}
	o.status = StatusPartiallyFilled
}

// cancel marks the order terminal, keeping the remaining quantity for reporting
func (o *Order) cancel() {
	o.status = StatusCancelled
}

// snapshot returns a detached copy without the level links
func (o *Order) snapshot() *Order {
	return &Order{
		id:          o.id,
		symbol:      o.symbol,
		side:        o.side,
		kind:        o.kind,
		price:       o.price,
		originalQty: o.originalQty,
		remaining:   o.remaining,
		sequence:    o.sequence,
		status:      o.status,
		createdAt:   o.createdAt,
	}
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string      `json:"id"`
		Symbol      string      `json:"symbol"`
		Side        string      `json:"side"`
		Kind        OrderKind   `json:"kind"`
		Price       string      `json:"price"`
		OriginalQty string      `json:"originalQty"`
		Remaining   string      `json:"remaining"`
		Sequence    uint64      `json:"sequence"`
		Status      OrderStatus `json:"status"`
		CreatedAt   time.Time   `json:"createdAt"`
	}{
		ID:          o.id,
		Symbol:      o.symbol,
		Side:        o.side.String(),
		Kind:        o.kind,
		Price:       o.price.String(),
		OriginalQty: o.originalQty.String(),
		Remaining:   o.remaining.String(),
		Sequence:    o.sequence,
		Status:      o.status,
		CreatedAt:   o.createdAt,
	})
}

// String implements Stringer interface
func (o *Order) String() string {
	j, _ := o.MarshalJSON()
	return string(j)
}
