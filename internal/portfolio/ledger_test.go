package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradequorum/quorum-bot/internal/broker"
)

func fill(side broker.Side, symbol string, qty, price, stop float64) (broker.Order, *broker.OrderResult) {
	order := broker.Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		StopLoss: stop,
	}
	result := &broker.OrderResult{
		Status:    broker.StatusFilled,
		FilledQty: qty,
		AvgPrice:  price,
		Timestamp: time.Now(),
	}
	return order, result
}

// TestApplyFill_BuyOpensPosition verifies a buy fill debits cash and
// opens a position at the fill price.
func TestApplyFill_BuyOpensPosition(t *testing.T) {
	l := NewLedger(10_000)

	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))

	snap := l.Snapshot()
	assert.InDelta(t, 9_000.0, snap.Balance, 0.001)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 10.0, snap.Positions[0].Quantity)
	assert.Equal(t, 100.0, snap.Positions[0].EntryPrice)
}

// TestApplyFill_BuyExtendsAveragesEntry verifies adding to a position
// averages the entry price by quantity.
func TestApplyFill_BuyExtendsAveragesEntry(t *testing.T) {
	l := NewLedger(10_000)

	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))
	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 120, 95))

	snap := l.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 20.0, snap.Positions[0].Quantity)
	assert.InDelta(t, 110.0, snap.Positions[0].EntryPrice, 0.001)
}

// TestApplyFill_SellRealizesPnL verifies a sell credits cash and books
// realized PnL against the entry.
func TestApplyFill_SellRealizesPnL(t *testing.T) {
	l := NewLedger(10_000)

	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))
	l.ApplyFill(fill(broker.SideSell, "BTCUSDT", 10, 110, 0))

	snap := l.Snapshot()
	assert.InDelta(t, 10_100.0, snap.Balance, 0.001)
	assert.InDelta(t, 100.0, snap.DailyRealizedPnL, 0.001)
	assert.Empty(t, snap.Positions)
}

// TestSnapshot_RealizedPnLSurvivesDayRoll verifies the cumulative
// figure persists when the daily one resets at midnight.
func TestSnapshot_RealizedPnLSurvivesDayRoll(t *testing.T) {
	l := NewLedger(10_000)

	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))
	l.ApplyFill(fill(broker.SideSell, "BTCUSDT", 10, 110, 0))

	snap := l.Snapshot()
	assert.InDelta(t, 100.0, snap.DailyRealizedPnL, 0.001)
	assert.InDelta(t, 100.0, snap.RealizedPnL, 0.001)

	// advance the clock past midnight
	l.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	snap = l.Snapshot()
	assert.Zero(t, snap.DailyRealizedPnL)
	assert.InDelta(t, 100.0, snap.RealizedPnL, 0.001)
}

// TestApplyFill_IgnoresUnconfirmed verifies pending and rejected
// results never mutate the ledger.
func TestApplyFill_IgnoresUnconfirmed(t *testing.T) {
	l := NewLedger(10_000)

	order, result := fill(broker.SideBuy, "BTCUSDT", 10, 100, 95)
	result.Status = broker.StatusPending
	l.ApplyFill(order, result)

	result.Status = broker.StatusRejected
	l.ApplyFill(order, result)

	l.ApplyFill(order, nil)

	snap := l.Snapshot()
	assert.Equal(t, 10_000.0, snap.Balance)
	assert.Empty(t, snap.Positions)
}

// TestMarkPrice_UpdatesValuationOnly verifies marking refreshes
// unrealized PnL without touching quantity or entry.
func TestMarkPrice_UpdatesValuationOnly(t *testing.T) {
	l := NewLedger(10_000)
	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))

	l.MarkPrice("BTCUSDT", 120)

	snap := l.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 10.0, snap.Positions[0].Quantity)
	assert.Equal(t, 100.0, snap.Positions[0].EntryPrice)
	assert.InDelta(t, 200.0, snap.UnrealizedPnL, 0.001)
	assert.InDelta(t, 10_200.0, snap.Equity, 0.001)
}

// TestSnapshot_RiskUsed verifies the risk calculation: stop distance
// for stopped positions, full value for stopless ones.
func TestSnapshot_RiskUsed(t *testing.T) {
	l := NewLedger(100_000)
	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95)) // risk 50
	l.ApplyFill(fill(broker.SideBuy, "ETHUSDT", 5, 200, 0))   // risk 1000 (no stop)

	snap := l.Snapshot()
	assert.InDelta(t, 1_050.0, snap.RiskUsed, 0.001)
}

// TestSnapshot_Drawdown verifies peak tracking and drawdown percent.
func TestSnapshot_Drawdown(t *testing.T) {
	l := NewLedger(10_000)
	l.ApplyFill(fill(broker.SideBuy, "BTCUSDT", 10, 100, 95))

	l.MarkPrice("BTCUSDT", 200) // equity 10,000 - 1,000 + 2,000 = 11,000 -> new peak
	l.MarkPrice("BTCUSDT", 100) // equity back to 10,000

	snap := l.Snapshot()
	assert.InDelta(t, 11_000.0, snap.PeakEquity, 0.001)
	assert.InDelta(t, (11_000.0-10_000.0)/11_000.0*100, snap.DrawdownPct, 0.01)
}

// TestApplyFill_SellWithoutPosition verifies a stray sell fill is a
// no-op rather than creating negative inventory.
func TestApplyFill_SellWithoutPosition(t *testing.T) {
	l := NewLedger(10_000)
	l.ApplyFill(fill(broker.SideSell, "BTCUSDT", 10, 100, 0))

	snap := l.Snapshot()
	assert.Equal(t, 10_000.0, snap.Balance)
	assert.Equal(t, 0.0, snap.DailyRealizedPnL)
}
