package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/config"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/risk"
	"github.com/tradequorum/quorum-bot/internal/signal"
	"github.com/tradequorum/quorum-bot/internal/sizing"
	"github.com/tradequorum/quorum-bot/pkg/types"
)

// votingSource always answers with a fixed direction.
type votingSource struct {
	name      string
	direction signal.Direction
}

func (s votingSource) Name() string      { return s.name }
func (s votingSource) IsAvailable() bool { return true }
func (s votingSource) Reset()            {}
func (s votingSource) GetSignal(_ context.Context, symbol string) (signal.RawSignal, error) {
	return signal.RawSignal{
		Source:     s.name,
		Symbol:     symbol,
		Direction:  s.direction,
		Confidence: 80,
		Timestamp:  time.Now(),
	}, nil
}

// fixedFeed serves one constant price and a gently varying history.
type fixedFeed struct {
	price float64
}

func (f fixedFeed) GetCurrentPrice(context.Context, string, string) (float64, error) {
	return f.price, nil
}

func (f fixedFeed) GetHistoricalData(_ context.Context, _, _ string, days int) ([]types.OHLCV, error) {
	n := days * 24
	out := make([]types.OHLCV, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		c := f.price * (1 + 0.01*float64(i%5-2)/2)
		out[i] = types.OHLCV{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c * 1.005, Low: c * 0.995, Close: c,
			Volume: 1000,
		}
	}
	return out, nil
}

func newCycleController(t *testing.T, directions []signal.Direction, constraints risk.Constraints) (*Controller, *broker.PaperBroker, *portfolio.Ledger) {
	t.Helper()

	sources := make([]signal.Source, len(directions))
	for i, d := range directions {
		sources[i] = votingSource{name: string(rune('a' + i)), direction: d}
	}

	paper := broker.NewPaperBroker(100_000, zerolog.Nop())
	require.NoError(t, paper.Initialize(context.Background()))
	ledger := portfolio.NewLedger(100_000)

	c, err := NewController(Config{
		Symbols: []string{"BTCUSDT"},
		Market:  "spot",
		Sizing: config.SizingConfig{
			InitialBalance:  100_000,
			RiskPerTradePct: 2,
			WinRatePct:      55,
			AvgWin:          1.5,
			AvgLoss:         1.0,
		},
	}, Deps{
		Aggregator: signal.NewAggregator(sources, signal.AggregatorOptions{
			Timeout:    time.Second,
			MinSources: 2,
			Logger:     zerolog.Nop(),
		}),
		Sizer: sizing.NewSizer(sizing.Config{
			RiskPerTradePct:     2,
			MinPositionSize:     10,
			MaxPositionSize:     constraints.MaxPositionSize,
			MaxPortfolioRiskPct: constraints.MaxPortfolioRiskPct,
		}),
		Risk:   risk.NewManager(constraints, nil, zerolog.Nop()),
		Ledger: ledger,
		Broker: paper,
		Feed:   fixedFeed{price: 100},
		Bus:    events.NewBus(),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	// give the cycle a session to attribute audit records to
	c.session = &Session{ID: "test-session", Status: StatusActive, StartTime: time.Now()}
	return c, paper, ledger
}

// TestRunCycle_ConsensusBuyExecutes verifies a unanimous buy vote flows
// through sizing and risk into a confirmed fill on the ledger.
func TestRunCycle_ConsensusBuyExecutes(t *testing.T) {
	c, paper, ledger := newCycleController(t,
		[]signal.Direction{signal.Buy, signal.Buy, signal.Buy},
		risk.Constraints{
			MaxPositionSize:     50_000,
			MaxPortfolioRiskPct: 10,
			PerTradeRiskPct:     2,
			StopLossPct:         5,
			TakeProfitPct:       10,
			MaxDailyLoss:        5_000,
			MaxDrawdownPct:      20,
		})

	c.runCycle(context.Background())

	snap := ledger.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "BTCUSDT", snap.Positions[0].Symbol)
	assert.Greater(t, snap.Positions[0].Quantity, 0.0)
	assert.InDelta(t, 95.0, snap.Positions[0].StopLoss, 0.001)
	assert.InDelta(t, 110.0, snap.Positions[0].TakeProfit, 0.001)
	assert.Equal(t, 1, c.Session().TradesCount)

	positions, err := paper.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
}

// ackOnlyBroker accepts every order but never confirms a fill.
type ackOnlyBroker struct{}

func (ackOnlyBroker) Name() string                        { return "ack-only" }
func (ackOnlyBroker) Initialize(context.Context) error    { return nil }
func (ackOnlyBroker) TestConnection(context.Context) bool { return true }
func (ackOnlyBroker) PlaceOrder(_ context.Context, order broker.Order) (*broker.OrderResult, error) {
	return &broker.OrderResult{
		OrderID:       "o-1",
		ClientOrderID: order.ClientOrderID,
		Status:        broker.StatusPending,
		Timestamp:     time.Now(),
	}, nil
}
func (ackOnlyBroker) CancelOrder(context.Context, string) error { return nil }
func (ackOnlyBroker) GetPositions(context.Context) ([]broker.Position, error) {
	return nil, nil
}
func (ackOnlyBroker) GetAccount(context.Context) (*broker.Account, error) {
	return &broker.Account{Balance: 100_000, Equity: 100_000}, nil
}

// TestRunCycle_UnconfirmedOrderStaysPending verifies an accepted but
// unconfirmed order never mutates the ledger and remains in the
// pending set so it can still be cancelled.
func TestRunCycle_UnconfirmedOrderStaysPending(t *testing.T) {
	c, _, ledger := newCycleController(t,
		[]signal.Direction{signal.Buy, signal.Buy, signal.Buy},
		risk.Constraints{
			MaxPositionSize:     50_000,
			MaxPortfolioRiskPct: 10,
			PerTradeRiskPct:     2,
			StopLossPct:         5,
			TakeProfitPct:       10,
			MaxDailyLoss:        5_000,
			MaxDrawdownPct:      20,
		})
	c.deps.Broker = ackOnlyBroker{}

	c.runCycle(context.Background())

	assert.Empty(t, ledger.Snapshot().Positions)
	assert.Equal(t, 0, c.Session().TradesCount)

	c.mu.Lock()
	pendingCount := len(c.pending)
	c.mu.Unlock()
	assert.Equal(t, 1, pendingCount)
}

// TestRunCycle_NoConsensusSkips verifies a split vote places no order.
func TestRunCycle_NoConsensusSkips(t *testing.T) {
	c, _, ledger := newCycleController(t,
		[]signal.Direction{signal.Buy, signal.Hold, signal.Sell},
		risk.Constraints{
			MaxPositionSize:     50_000,
			MaxPortfolioRiskPct: 10,
			PerTradeRiskPct:     2,
			StopLossPct:         5,
			TakeProfitPct:       10,
			MaxDailyLoss:        5_000,
			MaxDrawdownPct:      20,
		})

	c.runCycle(context.Background())

	assert.Empty(t, ledger.Snapshot().Positions)
	assert.Equal(t, 0, c.Session().TradesCount)
}

// TestRunCycle_RiskGateBlocks verifies the risk gate keeps a consensus
// buy out of the market when limits are tight.
func TestRunCycle_RiskGateBlocks(t *testing.T) {
	c, _, ledger := newCycleController(t,
		[]signal.Direction{signal.Buy, signal.Buy, signal.Buy},
		risk.Constraints{
			MaxPositionSize:     50, // tighter than any sized order
			MaxPortfolioRiskPct: 10,
			PerTradeRiskPct:     2,
			StopLossPct:         5,
			TakeProfitPct:       10,
			MaxDailyLoss:        5_000,
			MaxDrawdownPct:      20,
		})

	c.runCycle(context.Background())

	assert.Empty(t, ledger.Snapshot().Positions)
}

// TestRunCycle_TakeProfitCloses verifies a position past its take
// profit is sold on the next cycle.
func TestRunCycle_TakeProfitCloses(t *testing.T) {
	c, _, ledger := newCycleController(t,
		[]signal.Direction{signal.Hold, signal.Hold, signal.Hold},
		risk.Constraints{
			MaxPositionSize:     50_000,
			MaxPortfolioRiskPct: 10,
			PerTradeRiskPct:     2,
			StopLossPct:         5,
			TakeProfitPct:       10,
			MaxDailyLoss:        5_000,
			MaxDrawdownPct:      20,
		})

	// seed an open position bought at 90 with take profit at 99
	ledger.ApplyFill(
		broker.Order{Symbol: "BTCUSDT", Side: broker.SideBuy, Quantity: 5, Price: 90, StopLoss: 85, TakeProfit: 99},
		&broker.OrderResult{Status: broker.StatusFilled, FilledQty: 5, AvgPrice: 90, Timestamp: time.Now()},
	)
	// paper broker needs the matching position to accept the exit
	_, err := c.deps.Broker.PlaceOrder(context.Background(), broker.Order{
		ClientOrderID: "seed", Symbol: "BTCUSDT", Side: broker.SideBuy, Quantity: 5, Price: 90,
	})
	require.NoError(t, err)

	// feed price is 100, above the 99 take profit
	c.runCycle(context.Background())

	snap := ledger.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 50.0, snap.DailyRealizedPnL, 0.001) // (100-90)*5
}
