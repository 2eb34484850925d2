package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erain9/exchange/pkg/logging"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/erain9/exchange/pkg/otel"
	"github.com/erain9/exchange/pkg/sequence"
	"github.com/google/uuid"
	"github.com/nikolaydubina/fpdecimal"
	"go.opentelemetry.io/otel/attribute"
)

// Collaborator names used in logs and metrics
const (
	collaboratorJournal    = "journal"
	collaboratorSettlement = "settlement"
)

// Engine routes orders and cancels to per-symbol books and hands what they
// produce to the journal and settlement collaborators. It is safe for
// concurrent use.
type Engine struct {
	registry   *BookRegistry
	journal    messaging.EventSink
	settlement messaging.SettlementSink
	sequencer  *sequence.Sequencer
	sequences  SequenceSource
	metrics    *otel.EngineMetrics
	newID      func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithJournal sets the sink that receives every accepted, cancelled and
// filled event
func WithJournal(sink messaging.EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.journal = sink
		}
	}
}

// WithSettlement sets the sink that receives one instruction per fill
func WithSettlement(sink messaging.SettlementSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.settlement = sink
		}
	}
}

// WithSequenceSource makes RegisterSymbol resume each book's event sequence
// from src, so events of a restarted process do not collide with the ones
// already journalled.
func WithSequenceSource(src SequenceSource) Option {
	return func(e *Engine) {
		e.sequences = src
	}
}

// WithMetrics overrides the metrics instruments
func WithMetrics(m *otel.EngineMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator overrides order id generation. Ids must be unique.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine with no registered symbols
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry:   NewBookRegistry(),
		journal:    messaging.NopSink{},
		settlement: messaging.NopSink{},
		sequencer:  sequence.New(0),
		metrics:    otel.GetEngineMetrics(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterSymbol creates an empty book for symbol
func (e *Engine) RegisterSymbol(ctx context.Context, symbol string) (*BookInfo, error) {
	if e.sequences == nil || strings.TrimSpace(symbol) == "" {
		return e.registry.Register(ctx, symbol)
	}

	last, err := e.sequences.LastSequence(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read last sequence of %s: %w", symbol, err)
	}
	return e.registry.register(ctx, symbol, last)
}

// Books returns metadata for every registered book, sorted by symbol
func (e *Engine) Books() []*BookInfo {
	return e.registry.List()
}

// Symbols returns the registered symbols, sorted
func (e *Engine) Symbols() []string {
	return e.registry.Symbols()
}

// Book returns the book of symbol
func (e *Engine) Book(symbol string) (*OrderBook, error) {
	book, err := e.registry.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, symbol)
	}
	return book, nil
}

// SubmitLimitOrder matches a limit order against the book of symbol and
// rests whatever is left. Fills execute at the resting order's price.
func (e *Engine) SubmitLimitOrder(ctx context.Context, symbol string, side Side, price, quantity fpdecimal.Decimal) (result *LimitResult, err error) {
	start := time.Now()
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanSubmitLimitOrder,
		attribute.String(otel.AttributeSymbol, symbol),
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.String(otel.AttributeOrderPrice, price.String()),
		attribute.String(otel.AttributeOrderQuantity, quantity.String()),
	)
	defer func() {
		otel.EndSpan(span, err)
		e.observe(ctx, otel.SpanSubmitLimitOrder, start, err)
	}()

	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidPrice
	}
	book, err := e.Book(symbol)
	if err != nil {
		return nil, err
	}

	order, err := NewLimitOrder(e.newID(), symbol, side, price, quantity, e.sequencer.Next())
	if err != nil {
		return nil, err
	}

	exec, err := book.submit(order)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordOrder(ctx, symbol, string(KindLimit), side.String())
	e.deliver(ctx, exec)

	result = &LimitResult{
		OrderID:   exec.order.id,
		Remaining: exec.order.remaining,
		Fills:     exec.fills,
	}
	if exec.rested {
		result.RestingOrderID = exec.order.id
	}

	otel.AddAttributes(span,
		attribute.String(otel.AttributeOrderID, result.OrderID),
		attribute.String(otel.AttributeExecutedQuantity, result.Executed().String()),
		attribute.String(otel.AttributeRemainingQuantity, result.Remaining.String()),
		attribute.Int(otel.AttributeFillCount, len(result.Fills)),
	)
	return result, nil
}

// SubmitMarketOrder matches a market order against every opposing level
// until it is filled. It never rests. If the opposing side is empty the
// book is left untouched and ErrInsufficientLiquidity is returned with a nil
// result. If the side runs out part way, the executed fills stand, the
// remainder is cancelled, and the result is returned together with
// ErrInsufficientLiquidity.
func (e *Engine) SubmitMarketOrder(ctx context.Context, symbol string, side Side, quantity fpdecimal.Decimal) (result *MarketResult, err error) {
	start := time.Now()
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanSubmitMarketOrder,
		attribute.String(otel.AttributeSymbol, symbol),
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.String(otel.AttributeOrderQuantity, quantity.String()),
	)
	defer func() {
		otel.EndSpan(span, err)
		e.observe(ctx, otel.SpanSubmitMarketOrder, start, err)
	}()

	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	book, err := e.Book(symbol)
	if err != nil {
		return nil, err
	}

	order, err := NewMarketOrder(e.newID(), symbol, side, quantity, e.sequencer.Next())
	if err != nil {
		return nil, err
	}

	exec, err := book.submit(order)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordOrder(ctx, symbol, string(KindMarket), side.String())
	e.deliver(ctx, exec)

	result = &MarketResult{
		OrderID:   exec.order.id,
		Remaining: exec.order.remaining,
		Fills:     exec.fills,
	}

	otel.AddAttributes(span,
		attribute.String(otel.AttributeOrderID, result.OrderID),
		attribute.String(otel.AttributeExecutedQuantity, result.Executed().String()),
		attribute.String(otel.AttributeRemainingQuantity, result.Remaining.String()),
		attribute.Int(otel.AttributeFillCount, len(result.Fills)),
	)

	if result.Remaining.GreaterThan(fpdecimal.Zero) {
		return result, ErrInsufficientLiquidity
	}
	return result, nil
}

// CancelOrder removes a live order from its book. It fails with
// ErrOrderNotFound for unknown ids and for orders already filled or
// cancelled.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (err error) {
	start := time.Now()
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeOrderID, orderID),
	)
	defer func() {
		otel.EndSpan(span, err)
		e.observe(ctx, otel.SpanCancelOrder, start, err)
	}()

	book, ok := e.registry.Locate(orderID)
	if !ok {
		return ErrOrderNotFound
	}

	exec, err := book.cancel(orderID)
	if err != nil {
		return err
	}
	e.metrics.RecordCancel(ctx, book.symbol)
	e.deliver(ctx, exec)
	return nil
}

// Order returns a copy of a live order
func (e *Engine) Order(orderID string) (*Order, error) {
	book, ok := e.registry.Locate(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	order, ok := book.Order(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Depth returns up to levels aggregated price levels per side of symbol,
// best first. levels <= 0 returns the whole book.
func (e *Engine) Depth(symbol string, levels int) (*BookSnapshot, error) {
	book, err := e.Book(symbol)
	if err != nil {
		return nil, err
	}
	return book.Depth(levels), nil
}

// BestBidAsk returns the top of the book of symbol
func (e *Engine) BestBidAsk(symbol string) (Quote, error) {
	book, err := e.Book(symbol)
	if err != nil {
		return Quote{}, err
	}
	return book.BestBidAsk(), nil
}

// QuoteMarketPrice returns what a market order of quantity on side would
// pay or receive in total against the current book of symbol
func (e *Engine) QuoteMarketPrice(symbol string, side Side, quantity fpdecimal.Decimal) (fpdecimal.Decimal, error) {
	book, err := e.Book(symbol)
	if err != nil {
		return fpdecimal.Zero, err
	}
	return book.QuoteMarketPrice(side, quantity)
}

// deliver hands events and settlement instructions to the collaborators.
// It runs after the book lock is released. Failures are logged and counted
// but never change the outcome of the order.
func (e *Engine) deliver(ctx context.Context, exec *execution) {
	if exec == nil || len(exec.events) == 0 {
		return
	}

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPublishEvents,
		attribute.Int(otel.AttributeEventCount, len(exec.events)),
		attribute.Int(otel.AttributeFillCount, len(exec.fills)),
	)
	defer span.End()

	logger := logging.FromContext(ctx)

	if err := messaging.PublishAll(ctx, e.journal, exec.events); err != nil {
		first := exec.events[0]
		logger.Warn().Err(err).
			Str("symbol", first.Symbol).
			Uint64("first_sequence", first.Sequence).
			Int("events", len(exec.events)).
			Msg("Failed to journal events")
		e.metrics.RecordCollaboratorError(ctx, collaboratorJournal)
	}

	for _, fill := range exec.fills {
		if err := e.settlement.Settle(ctx, settlementInstruction(fill)); err != nil {
			logger.Warn().Err(err).
				Str("symbol", fill.Symbol).
				Str("maker_order_id", fill.MakerOrderID).
				Str("taker_order_id", fill.TakerOrderID).
				Uint64("sequence", fill.Sequence).
				Msg("Failed to send settlement instruction")
			e.metrics.RecordCollaboratorError(ctx, collaboratorSettlement)
		}
	}

	if n := len(exec.fills); n > 0 {
		e.metrics.RecordFills(ctx, exec.fills[0].Symbol, n)
	}
}

func (e *Engine) observe(ctx context.Context, operation string, start time.Time, err error) {
	e.metrics.RecordLatency(ctx, operation, time.Since(start))

	logger := logging.FromContext(ctx)
	switch {
	case err == nil:
		logger.Debug().Str("operation", operation).Dur("duration", time.Since(start)).Msg("Operation completed")
	case errors.Is(err, ErrInsufficientLiquidity):
		e.metrics.RecordRejected(ctx, operation, err.Error())
		logger.Info().Str("operation", operation).Err(err).Msg("Market order not fully filled")
	default:
		e.metrics.RecordRejected(ctx, operation, rejectReason(err))
		logger.Debug().Str("operation", operation).Err(err).Msg("Operation rejected")
	}
}

// rejectReason maps an error to its sentinel text so metric attributes stay
// low-cardinality
func rejectReason(err error) string {
	for _, sentinel := range []error{
		ErrSymbolNotFound,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrOrderNotFound,
		ErrInsufficientLiquidity,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "other"
}

func settlementInstruction(f Fill) *messaging.SettlementInstruction {
	return &messaging.SettlementInstruction{
		Symbol:        f.Symbol,
		Sequence:      f.Sequence,
		BuyerOrderID:  f.BuyerOrderID(),
		SellerOrderID: f.SellerOrderID(),
		Price:         f.Price.String(),
		Quantity:      f.Quantity.String(),
		Time:          f.Time,
	}
}
