package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
)

func main() {
	ctx := context.Background()

	scenarioA(ctx)
	scenarioB(ctx)
	scenarioC(ctx)
	scenarioD(ctx)
}

func newEngine(ctx context.Context) (*core.Engine, *messaging.Recorder) {
	journal := messaging.NewRecorder()
	engine := core.NewEngine(core.WithJournal(journal))
	if _, err := engine.RegisterSymbol(ctx, "ABC"); err != nil {
		panic(err)
	}
	return engine, journal
}

func limit(ctx context.Context, e *core.Engine, side core.Side, price, qty int64) *core.LimitResult {
	res, err := e.SubmitLimitOrder(ctx, "ABC", side, fpdecimal.FromInt(price), fpdecimal.FromInt(qty))
	if err != nil {
		panic(err)
	}
	return res
}

func printDepth(e *core.Engine) {
	snap, err := e.Depth("ABC", 0)
	if err != nil {
		panic(err)
	}
	for _, l := range snap.Asks {
		fmt.Printf("    ask %s x %s (%d orders)\n", l.Price, l.Volume, l.Orders)
	}
	for _, l := range snap.Bids {
		fmt.Printf("    bid %s x %s (%d orders)\n", l.Price, l.Volume, l.Orders)
	}
}

func printFills(fills []core.Fill) {
	for _, f := range fills {
		fmt.Printf("    fill %s @ %s maker=%s filled=%v\n", f.Quantity, f.Price, f.MakerOrderID, f.MakerFilled)
	}
}

func scenarioA(ctx context.Context) {
	fmt.Println("A: buy limit 100@50 on an empty book")
	e, _ := newEngine(ctx)

	res := limit(ctx, e, core.Buy, 50, 100)
	fmt.Printf("  resting=%s remaining=%s fills=%d\n", res.RestingOrderID, res.Remaining, len(res.Fills))
	printDepth(e)
}

func scenarioB(ctx context.Context) {
	fmt.Println("B: sell 50@40 resting, buy limit 100@45")
	e, _ := newEngine(ctx)

	limit(ctx, e, core.Sell, 40, 50)
	res := limit(ctx, e, core.Buy, 45, 100)
	printFills(res.Fills)
	fmt.Printf("  remainder %s rests as %s\n", res.Remaining, res.RestingOrderID)
	printDepth(e)
}

func scenarioC(ctx context.Context) {
	fmt.Println("C: sells 20@40 then 30@40 resting, buy market 30")
	e, journal := newEngine(ctx)

	limit(ctx, e, core.Sell, 40, 20)
	limit(ctx, e, core.Sell, 40, 30)
	res, err := e.SubmitMarketOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(30))
	if err != nil {
		panic(err)
	}
	printFills(res.Fills)
	printDepth(e)
	fmt.Printf("  journal: %d events, %d fills\n", len(journal.Events()), len(journal.EventsOfType(messaging.EventOrderFilled)))
}

func scenarioD(ctx context.Context) {
	fmt.Println("D: buy market 10 with no asks")
	e, journal := newEngine(ctx)

	_, err := e.SubmitMarketOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(10))
	fmt.Printf("  error=%v insufficient=%v events=%d\n", err, errors.Is(err, core.ErrInsufficientLiquidity), len(journal.Events()))
	printDepth(e)
}
