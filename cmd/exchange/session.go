package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/db/queue"
	"github.com/erain9/exchange/pkg/logging"
	"github.com/erain9/exchange/pkg/settlement"
	"github.com/nikolaydubina/fpdecimal"
)

// command is one line of input
type command struct {
	Op       string `json:"op"`
	Symbol   string `json:"symbol,omitempty"`
	Side     string `json:"side,omitempty"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Levels   int    `json:"levels,omitempty"`
	After    uint64 `json:"after,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// reply is one line of output
type reply struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// statsView is the ledger's view of settled trades plus the instructions
// the settlement queue gave up on
type statsView struct {
	Ledger            []settlement.SymbolStats `json:"ledger"`
	SettlementDropped uint64                   `json:"settlementDropped"`
}

type quoteView struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid,omitempty"`
	Ask    string `json:"ask,omitempty"`
}

var errUnknownOp = errors.New("unknown op")

// session drives an engine from newline-delimited JSON commands
type session struct {
	engine  *core.Engine
	journal core.JournalBackend
	ledger  *settlement.Ledger
	// queue is nil when no remote settlement sink is configured
	queue *queue.Dispatcher
	out   io.Writer
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(s.out)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := enc.Encode(s.handleLine(ctx, line)); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (s *session) handleLine(ctx context.Context, line string) reply {
	var cmd command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return reply{Error: fmt.Sprintf("invalid command: %v", err)}
	}

	ctx = logging.WithRequestID(ctx, "")
	done := logging.Track(ctx, cmd.Op)
	result, err := s.handle(ctx, cmd)
	done(err)

	if err != nil {
		// a market order that ran out of liquidity still reports what executed
		return reply{Result: result, Error: err.Error()}
	}
	return reply{OK: true, Result: result}
}

func (s *session) handle(ctx context.Context, cmd command) (interface{}, error) {
	switch strings.ToLower(cmd.Op) {
	case "register":
		info, err := s.engine.RegisterSymbol(ctx, cmd.Symbol)
		if err != nil {
			return nil, err
		}
		return info, nil

	case "symbols":
		return s.engine.Symbols(), nil

	case "books":
		return s.engine.Books(), nil

	case "limit":
		side, err := parseSide(cmd.Side)
		if err != nil {
			return nil, err
		}
		price, err := parseDecimal("price", cmd.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal("quantity", cmd.Quantity)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.SubmitLimitOrder(ctx, cmd.Symbol, side, price, qty)
		if err != nil {
			return nil, err
		}
		return res, nil

	case "market":
		side, err := parseSide(cmd.Side)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal("quantity", cmd.Quantity)
		if err != nil {
			return nil, err
		}
		res, err := s.engine.SubmitMarketOrder(ctx, cmd.Symbol, side, qty)
		if res == nil {
			return nil, err
		}
		return res, err

	case "cancel":
		if err := s.engine.CancelOrder(ctx, cmd.OrderID); err != nil {
			return nil, err
		}
		return map[string]string{"orderID": cmd.OrderID}, nil

	case "order":
		o, err := s.engine.Order(cmd.OrderID)
		if err != nil {
			return nil, err
		}
		return o, nil

	case "depth":
		snap, err := s.engine.Depth(cmd.Symbol, cmd.Levels)
		if err != nil {
			return nil, err
		}
		return snap, nil

	case "book":
		snap, err := s.engine.Depth(cmd.Symbol, cmd.Levels)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		if err := printBook(&sb, snap); err != nil {
			return nil, err
		}
		return sb.String(), nil

	case "bbo":
		q, err := s.engine.BestBidAsk(cmd.Symbol)
		if err != nil {
			return nil, err
		}
		view := quoteView{Symbol: cmd.Symbol}
		if q.HasBid {
			view.Bid = q.Bid.String()
		}
		if q.HasAsk {
			view.Ask = q.Ask.String()
		}
		return view, nil

	case "quote":
		side, err := parseSide(cmd.Side)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal("quantity", cmd.Quantity)
		if err != nil {
			return nil, err
		}
		total, err := s.engine.QuoteMarketPrice(cmd.Symbol, side, qty)
		if err != nil {
			return nil, err
		}
		return map[string]string{"symbol": cmd.Symbol, "total": total.String()}, nil

	case "history":
		if s.journal == nil {
			return nil, errors.New("no journal configured")
		}
		events, err := s.journal.Events(ctx, cmd.Symbol, cmd.After, cmd.Limit)
		if err != nil {
			return nil, err
		}
		return events, nil

	case "stats":
		if s.ledger == nil {
			return nil, errors.New("no ledger configured")
		}
		view := statsView{Ledger: []settlement.SymbolStats{}}
		if cmd.Symbol == "" {
			view.Ledger = s.ledger.AllStats()
		} else if stats, ok := s.ledger.Stats(cmd.Symbol); ok {
			view.Ledger = append(view.Ledger, stats)
		}
		if s.queue != nil {
			view.SettlementDropped = s.queue.Dropped()
		}
		return view, nil
	}

	return nil, fmt.Errorf("%w %q", errUnknownOp, cmd.Op)
}

func parseSide(s string) (core.Side, error) {
	side, ok := core.ParseSide(s)
	if !ok {
		return side, fmt.Errorf("invalid side %q", s)
	}
	return side, nil
}

func parseDecimal(field, s string) (fpdecimal.Decimal, error) {
	d, err := fpdecimal.FromString(s)
	if err != nil {
		return fpdecimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
