package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/risk"
	"github.com/tradequorum/quorum-bot/internal/signal"
	"github.com/tradequorum/quorum-bot/internal/sizing"
)

// unreachableBroker always fails to connect.
type unreachableBroker struct{}

func (unreachableBroker) Name() string                       { return "unreachable" }
func (unreachableBroker) Initialize(context.Context) error   { return errors.New("connection refused") }
func (unreachableBroker) TestConnection(context.Context) bool { return false }
func (unreachableBroker) PlaceOrder(context.Context, broker.Order) (*broker.OrderResult, error) {
	return nil, errors.New("not connected")
}
func (unreachableBroker) CancelOrder(context.Context, string) error { return nil }
func (unreachableBroker) GetPositions(context.Context) ([]broker.Position, error) {
	return nil, errors.New("not connected")
}
func (unreachableBroker) GetAccount(context.Context) (*broker.Account, error) {
	return nil, errors.New("not connected")
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	paper := broker.NewPaperBroker(10_000, zerolog.Nop())
	feed := broker.NewSyntheticFeed(50_000)

	c, err := NewController(Config{
		Symbols:         []string{"BTCUSDT"},
		Market:          "spot",
		CycleInterval:   time.Hour, // never fires during tests
		MonitorInterval: time.Hour,
	}, Deps{
		Aggregator: signal.NewAggregator(nil, signal.AggregatorOptions{Logger: zerolog.Nop()}),
		Sizer:      sizing.NewSizer(sizing.Config{RiskPerTradePct: 2, MaxPositionSize: 3000, MaxPortfolioRiskPct: 10}),
		Risk:       risk.NewManager(risk.Constraints{MaxPositionSize: 3000, MaxPortfolioRiskPct: 10, PerTradeRiskPct: 2, MaxDailyLoss: 500, MaxDrawdownPct: 20, EmergencyStop: true}, nil, zerolog.Nop()),
		Ledger:     portfolio.NewLedger(10_000),
		Broker:     paper,
		Feed:       feed,
		Bus:        events.NewBus(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

// TestController_StartActivates verifies a fresh start ends ACTIVE with
// a session identity.
func TestController_StartActivates(t *testing.T) {
	c := newTestController(t)
	defer c.Stop(context.Background())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StatusActive, c.Status())
	require.NotNil(t, c.Session())
	assert.NotEmpty(t, c.Session().ID)
}

// TestController_StartIdempotent verifies a second start on a running
// session is a warned no-op that keeps the same session.
func TestController_StartIdempotent(t *testing.T) {
	c := newTestController(t)
	defer c.Stop(context.Background())

	require.NoError(t, c.Start(context.Background()))
	firstID := c.Session().ID

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, firstID, c.Session().ID)
	assert.Equal(t, StatusActive, c.Status())
}

// TestController_PauseResume verifies the ACTIVE <-> PAUSED transitions
// and that the operations are no-ops in other states.
func TestController_PauseResume(t *testing.T) {
	c := newTestController(t)
	defer c.Stop(context.Background())

	c.Pause() // before start: no session, no-op
	assert.Equal(t, StatusInitialized, c.Status())

	require.NoError(t, c.Start(context.Background()))

	c.Resume() // already active: no-op
	assert.Equal(t, StatusActive, c.Status())

	c.Pause()
	assert.Equal(t, StatusPaused, c.Status())

	c.Pause() // already paused: no-op
	assert.Equal(t, StatusPaused, c.Status())

	c.Resume()
	assert.Equal(t, StatusActive, c.Status())
}

// TestController_StopIdempotent verifies stop is terminal and repeated
// stops are harmless.
func TestController_StopIdempotent(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Start(context.Background()))
	c.Stop(context.Background())
	assert.Equal(t, StatusStopped, c.Status())
	assert.False(t, c.Session().EndTime.IsZero())

	c.Stop(context.Background()) // no-op
	assert.Equal(t, StatusStopped, c.Status())
}

// TestController_RestartAfterStop verifies a manual restart after a
// stop creates a fresh session.
func TestController_RestartAfterStop(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Start(context.Background()))
	firstID := c.Session().ID
	c.Stop(context.Background())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(context.Background())

	assert.Equal(t, StatusActive, c.Status())
	assert.NotEqual(t, firstID, c.Session().ID)
}

// TestController_EmergencyStop verifies an emergency stop halts the
// session immediately and refuses cycles until a manual restart.
func TestController_EmergencyStop(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Start(context.Background()))
	c.EmergencyStop(context.Background(), risk.RuleDailyLoss)

	assert.Equal(t, StatusStopped, c.Status())
	assert.False(t, c.Session().EndTime.IsZero())

	// restart is manual and allowed
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(context.Background())
	assert.Equal(t, StatusActive, c.Status())
}

// TestController_EmergencyStopRestartJoinsScheduler verifies a restart
// right after an emergency stop waits for the old scheduler goroutine
// before launching a new one.
func TestController_EmergencyStopRestartJoinsScheduler(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Start(context.Background()))
	c.mu.Lock()
	oldDone := c.doneCh
	c.mu.Unlock()

	c.EmergencyStop(context.Background(), risk.RuleDailyLoss)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(context.Background())

	select {
	case <-oldDone:
	default:
		t.Fatal("previous scheduler still running after restart")
	}
}

// TestController_ConnectFailureIsTerminal verifies exhausted reconnect
// attempts surface an error and leave the session in ERROR.
func TestController_ConnectFailureIsTerminal(t *testing.T) {
	c, err := NewController(Config{
		Symbols:           []string{"BTCUSDT"},
		ReconnectRetries:  2,
		ReconnectInterval: 10 * time.Millisecond,
	}, Deps{
		Broker: unreachableBroker{},
		Ledger: portfolio.NewLedger(10_000),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, c.Status())
}

// TestController_InvalidTimezone verifies construction rejects an
// unknown timezone.
func TestController_InvalidTimezone(t *testing.T) {
	_, err := NewController(Config{Timezone: "Mars/Olympus"}, Deps{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

// TestWithinTradingHours verifies the daily window check, including
// the wrap-past-midnight case.
func TestWithinTradingHours(t *testing.T) {
	c := newTestController(t)

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 31, hour, minute, 0, 0, time.UTC)
	}

	c.cfg.TradingHoursStart = "09:00"
	c.cfg.TradingHoursEnd = "17:00"
	assert.False(t, c.withinTradingHours(at(8, 59)))
	assert.True(t, c.withinTradingHours(at(9, 0)))
	assert.True(t, c.withinTradingHours(at(12, 30)))
	assert.False(t, c.withinTradingHours(at(17, 0)))

	// window wrapping past midnight
	c.cfg.TradingHoursStart = "22:00"
	c.cfg.TradingHoursEnd = "04:00"
	assert.True(t, c.withinTradingHours(at(23, 0)))
	assert.True(t, c.withinTradingHours(at(2, 0)))
	assert.False(t, c.withinTradingHours(at(12, 0)))

	// unset window is always open
	c.cfg.TradingHoursStart = ""
	c.cfg.TradingHoursEnd = ""
	assert.True(t, c.withinTradingHours(at(3, 0)))
}

// TestWithinTradingHours_Timezone verifies the window is evaluated in
// the configured timezone, not UTC.
func TestWithinTradingHours_Timezone(t *testing.T) {
	c, err := NewController(Config{
		TradingHoursStart: "09:00",
		TradingHoursEnd:   "17:00",
		Timezone:          "America/New_York",
	}, Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)

	// 14:00 UTC in late August is 10:00 in New York: inside the window
	utcMorning := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	assert.True(t, c.withinTradingHours(utcMorning))

	// 09:00 UTC is 05:00 in New York: outside
	utcEarly := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	assert.False(t, c.withinTradingHours(utcEarly))
}
