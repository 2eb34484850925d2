package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
)

// OrderBook holds both sides of one symbol's book.
//
// Every operation, including read snapshots, holds both side locks for its
// whole duration. Locks are always taken bid first, then ask, whatever the
// direction of the order, so two operations on the same book cannot
// deadlock. Books of different symbols share nothing.
type OrderBook struct {
	symbol string

	bidMu sync.Mutex
	askMu sync.Mutex

	bids   *BookSide
	asks   *BookSide
	orders map[string]*Order

	// guarded by both side locks
	eventSeq       uint64
	lastTradePrice fpdecimal.Decimal

	index *orderIndex
}

// Quote is the top of the book
type Quote struct {
	Bid    fpdecimal.Decimal
	Ask    fpdecimal.Decimal
	HasBid bool
	HasAsk bool
}

// execution collects everything one locked operation produced. It is
// handed to the collaborators after the locks are released.
type execution struct {
	order  *Order
	fills  []Fill
	events []*messaging.Event
	rested bool
}

// NewOrderBook creates an empty book that is not attached to a registry
func NewOrderBook(symbol string) *OrderBook {
	return newOrderBook(symbol, nil)
}

func newOrderBook(symbol string, index *orderIndex) *OrderBook {
	return &OrderBook{
		symbol:         symbol,
		bids:           NewBookSide(Buy),
		asks:           NewBookSide(Sell),
		orders:         make(map[string]*Order),
		lastTradePrice: fpdecimal.Zero,
		index:          index,
	}
}

// Symbol returns the traded symbol
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) lock() {
	ob.bidMu.Lock()
	ob.askMu.Lock()
}

func (ob *OrderBook) unlock() {
	ob.askMu.Unlock()
	ob.bidMu.Unlock()
}

func (ob *OrderBook) sideOf(side Side) *BookSide {
	if side == Buy {
		return ob.bids
	}
	return ob.asks
}

// submit crosses o against the opposite side and rests any limit remainder.
// A market order that meets an empty opposite side is rejected without
// touching the book. A market remainder left after the opposite side ran
// out is cancelled.
func (ob *OrderBook) submit(o *Order) (*execution, error) {
	ob.lock()
	defer ob.unlock()

	if o.IsMarketOrder() && ob.sideOf(o.side.Opposite()).Len() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	now := time.Now()
	exec := &execution{}
	exec.events = append(exec.events, ob.orderEvent(messaging.EventOrderAccepted, o, now))

	ob.cross(o, now, exec)

	if o.remaining.GreaterThan(fpdecimal.Zero) {
		if o.IsMarketOrder() {
			o.cancel()
			exec.events = append(exec.events, ob.orderEvent(messaging.EventOrderCancelled, o, now))
		} else {
			ob.rest(o)
			exec.rested = true
		}
	}

	exec.order = o.snapshot()
	return exec, nil
}

// cross walks the opposite side from its best price while the taker still
// has quantity and the level price is acceptable. Trades execute at the
// maker's price. Levels emptied by the walk are deleted after it, since the
// tree must not change while it is being iterated.
func (ob *OrderBook) cross(taker *Order, now time.Time, exec *execution) {
	opposite := ob.sideOf(taker.side.Opposite())

	var emptied []fpdecimal.Decimal
	opposite.Ascend(func(level *PriceLevel) bool {
		if taker.remaining.LessThanOrEqual(fpdecimal.Zero) {
			return false
		}
		if !taker.IsMarketOrder() && !crosses(taker.side, taker.price, level.price) {
			return false
		}

		for maker := level.Front(); maker != nil && taker.remaining.GreaterThan(fpdecimal.Zero); {
			next := maker.next
			quantity := minDecimal(maker.remaining, taker.remaining)

			maker.fill(quantity)
			level.Reduce(quantity)
			taker.fill(quantity)

			ob.eventSeq++
			fill := Fill{
				Symbol:       ob.symbol,
				MakerOrderID: maker.id,
				TakerOrderID: taker.id,
				TakerSide:    taker.side,
				Price:        maker.price,
				Quantity:     quantity,
				Sequence:     ob.eventSeq,
				Time:         now,
				MakerFilled:  maker.status == StatusFilled,
			}
			exec.fills = append(exec.fills, fill)
			exec.events = append(exec.events, fillEvent(fill))

			if fill.MakerFilled {
				level.Remove(maker)
				ob.forget(maker.id)
			}
			maker = next
		}

		if level.Empty() {
			emptied = append(emptied, level.price)
		}
		return true
	})

	for _, price := range emptied {
		opposite.RemoveIfEmpty(price)
	}

	if n := len(exec.fills); n > 0 {
		ob.lastTradePrice = exec.fills[n-1].Price
	}
}

// crosses is the limit price test: a buy accepts asks at or below its
// limit, a sell accepts bids at or above it.
func crosses(side Side, limit, levelPrice fpdecimal.Decimal) bool {
	if side == Buy {
		return levelPrice.LessThanOrEqual(limit)
	}
	return levelPrice.GreaterThanOrEqual(limit)
}

func (ob *OrderBook) rest(o *Order) {
	ob.sideOf(o.side).InsertOrGet(o.price).Enqueue(o)
	ob.orders[o.id] = o
	if ob.index != nil {
		ob.index.add(o.id, ob.symbol)
	}
}

func (ob *OrderBook) forget(orderID string) {
	delete(ob.orders, orderID)
	if ob.index != nil {
		ob.index.remove(orderID)
	}
}

// cancel removes a live order from its level. Unknown and terminal ids
// return ErrOrderNotFound, so a second cancel of the same id fails.
func (ob *OrderBook) cancel(orderID string) (*execution, error) {
	ob.lock()
	defer ob.unlock()

	o, ok := ob.orders[orderID]
	if !ok || !o.status.IsLive() {
		return nil, ErrOrderNotFound
	}

	side := ob.sideOf(o.side)
	if level := o.level; level != nil {
		level.Remove(o)
		side.RemoveIfEmpty(o.price)
	}
	o.cancel()
	ob.forget(orderID)

	return &execution{
		order:  o.snapshot(),
		events: []*messaging.Event{ob.orderEvent(messaging.EventOrderCancelled, o, time.Now())},
	}, nil
}

// Order returns a copy of a live order
func (ob *OrderBook) Order(orderID string) (*Order, bool) {
	ob.lock()
	defer ob.unlock()

	o, ok := ob.orders[orderID]
	if !ok {
		return nil, false
	}
	return o.snapshot(), true
}

// Len returns the number of live orders
func (ob *OrderBook) Len() int {
	ob.lock()
	defer ob.unlock()
	return len(ob.orders)
}

// BestBidAsk returns the top of the book
func (ob *OrderBook) BestBidAsk() Quote {
	ob.lock()
	defer ob.unlock()

	var q Quote
	q.Bid, q.HasBid = ob.bids.BestPrice()
	q.Ask, q.HasAsk = ob.asks.BestPrice()
	return q
}

// LastTradePrice returns the price of the most recent fill, zero if none
func (ob *OrderBook) LastTradePrice() fpdecimal.Decimal {
	ob.lock()
	defer ob.unlock()
	return ob.lastTradePrice
}

// Volumes returns the total remaining quantity on each side
func (ob *OrderBook) Volumes() (bid, ask fpdecimal.Decimal) {
	ob.lock()
	defer ob.unlock()
	return ob.bids.Volume(), ob.asks.Volume()
}

// Depth returns up to levels aggregated levels per side, best first.
// levels <= 0 returns every level.
func (ob *OrderBook) Depth(levels int) *BookSnapshot {
	ob.lock()
	defer ob.unlock()

	return &BookSnapshot{
		Symbol: ob.symbol,
		Bids:   depthOf(ob.bids, levels),
		Asks:   depthOf(ob.asks, levels),
	}
}

func depthOf(side *BookSide, limit int) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, side.Len())
	side.Ascend(func(level *PriceLevel) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		out = append(out, LevelSnapshot{
			Price:  level.price,
			Volume: level.volume,
			Orders: level.count,
		})
		return true
	})
	return out
}

// QuoteMarketPrice returns the total amount a market order of quantity on
// side would pay (buy) or receive (sell) against the current book.
func (ob *OrderBook) QuoteMarketPrice(side Side, quantity fpdecimal.Decimal) (fpdecimal.Decimal, error) {
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return fpdecimal.Zero, ErrInvalidQuantity
	}

	ob.lock()
	defer ob.unlock()

	total := fpdecimal.Zero
	remaining := quantity
	ob.sideOf(side.Opposite()).Ascend(func(level *PriceLevel) bool {
		take := minDecimal(level.volume, remaining)
		total = total.Add(level.price.Mul(take))
		remaining = remaining.Sub(take)
		return remaining.GreaterThan(fpdecimal.Zero)
	})

	if remaining.GreaterThan(fpdecimal.Zero) {
		return total, ErrInsufficientLiquidity
	}
	return total, nil
}

// String implements fmt.Stringer interface
func (ob *OrderBook) String() string {
	ob.lock()
	defer ob.unlock()

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s\n------------------------------------------", ob.symbol))
	sb.WriteString(ob.asks.String())
	sb.WriteString("\n------------------------------------------")
	sb.WriteString(ob.bids.String())
	return sb.String()
}

// orderEvent stamps the next book sequence. Callers hold the book lock.
func (ob *OrderBook) orderEvent(t messaging.EventType, o *Order, now time.Time) *messaging.Event {
	ob.eventSeq++
	event := &messaging.Event{
		Type:      t,
		Symbol:    ob.symbol,
		Sequence:  ob.eventSeq,
		Time:      now,
		OrderID:   o.id,
		Side:      o.side.String(),
		Kind:      string(o.kind),
		Quantity:  o.originalQty.String(),
		Remaining: o.remaining.String(),
	}
	if !o.IsMarketOrder() {
		event.Price = o.price.String()
	}
	return event
}

func fillEvent(f Fill) *messaging.Event {
	return &messaging.Event{
		Type:         messaging.EventOrderFilled,
		Symbol:       f.Symbol,
		Sequence:     f.Sequence,
		Time:         f.Time,
		Side:         f.TakerSide.String(),
		Price:        f.Price.String(),
		Quantity:     f.Quantity.String(),
		MakerOrderID: f.MakerOrderID,
		TakerOrderID: f.TakerOrderID,
	}
}

func minDecimal(a, b fpdecimal.Decimal) fpdecimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
