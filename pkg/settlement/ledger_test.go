package settlement

import (
	"context"
	"testing"

	"github.com/erain9/exchange/pkg/core"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instruction(seq uint64, buyer, seller, price, qty string) *messaging.SettlementInstruction {
	return &messaging.SettlementInstruction{
		Symbol:        "ABC",
		Sequence:      seq,
		BuyerOrderID:  buyer,
		SellerOrderID: seller,
		Price:         price,
		Quantity:      qty,
	}
}

func TestLedger_Settle(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, l.Settle(ctx, instruction(2, "b1", "s1", "40.000", "10.000")))
	require.NoError(t, l.Settle(ctx, instruction(3, "b1", "s2", "41.000", "5.000")))

	assert.True(t, l.Bought("b1").Equal(decimal.NewFromInt(15)))
	assert.True(t, l.Sold("s1").Equal(decimal.NewFromInt(10)))
	assert.True(t, l.Sold("s2").Equal(decimal.NewFromInt(5)))
	assert.True(t, l.Bought("nobody").IsZero())

	stats, ok := l.Stats("ABC")
	require.True(t, ok)
	assert.Equal(t, 2, stats.Trades)
	assert.True(t, stats.Volume.Equal(decimal.NewFromInt(15)))
	assert.True(t, stats.Notional.Equal(decimal.NewFromInt(605)))
	assert.True(t, stats.LastPrice.Equal(decimal.NewFromInt(41)))
	assert.Equal(t, uint64(3), stats.LastSequence)
	assert.Equal(t, "40.3333", stats.VWAP().StringFixed(4))
	assert.True(t, l.Balanced())
}

func TestLedger_IdempotentAndOutOfOrder(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, l.Settle(ctx, instruction(5, "b", "s", "10", "1")))
	require.NoError(t, l.Settle(ctx, instruction(4, "b", "s", "9", "1")))
	require.NoError(t, l.Settle(ctx, instruction(5, "b", "s", "10", "1")))

	stats, _ := l.Stats("ABC")
	assert.Equal(t, 2, stats.Trades)
	assert.True(t, stats.LastPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, l.Bought("b").Equal(decimal.NewFromInt(2)))
}

func TestLedger_RejectsBadInstructions(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	assert.Error(t, l.Settle(ctx, instruction(1, "b", "s", "abc", "1")))
	assert.Error(t, l.Settle(ctx, instruction(2, "b", "s", "1", "")))
	assert.Error(t, l.Settle(ctx, instruction(3, "b", "s", "0", "1")))
	assert.Empty(t, l.AllStats())

	stats, ok := l.Stats("ABC")
	assert.False(t, ok)
	assert.True(t, stats.VWAP().IsZero())
}

func TestLedger_WithEngine(t *testing.T) {
	l := NewLedger()
	engine := core.NewEngine(core.WithSettlement(l))
	ctx := context.Background()
	_, err := engine.RegisterSymbol(ctx, "ABC")
	require.NoError(t, err)

	maker, err := engine.SubmitLimitOrder(ctx, "ABC", core.Sell, fpdecimal.FromInt(40), fpdecimal.FromInt(100))
	require.NoError(t, err)
	taker, err := engine.SubmitLimitOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(41), fpdecimal.FromInt(30))
	require.NoError(t, err)
	_, err = engine.SubmitMarketOrder(ctx, "ABC", core.Buy, fpdecimal.FromInt(20))
	require.NoError(t, err)

	assert.True(t, l.Sold(maker.OrderID).Equal(decimal.NewFromInt(50)))
	assert.True(t, l.Bought(taker.OrderID).Equal(decimal.NewFromInt(30)))

	stats, ok := l.Stats("ABC")
	require.True(t, ok)
	assert.Equal(t, 2, stats.Trades)
	assert.True(t, stats.Volume.Equal(decimal.NewFromInt(50)))
	assert.True(t, stats.VWAP().Equal(decimal.NewFromInt(40)))
	assert.True(t, l.Balanced())
}
