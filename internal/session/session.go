// Package session drives the trading decision pipeline on a schedule.
// One goroutine owns all session and portfolio mutation: the cycle tick
// and the monitoring tick are handled by the same loop, so they can
// never overlap on the same session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/config"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/monitoring"
	"github.com/tradequorum/quorum-bot/internal/persistence"
	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/risk"
	"github.com/tradequorum/quorum-bot/internal/signal"
	"github.com/tradequorum/quorum-bot/internal/sizing"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusActive      Status = "ACTIVE"
	StatusPaused      Status = "PAUSED"
	StatusStopped     Status = "STOPPED"
	StatusError       Status = "ERROR"
)

// Session is one trading session's identity and tallies.
type Session struct {
	ID          string
	Status      Status
	StartTime   time.Time
	EndTime     time.Time
	TradesCount int
	TotalPnL    float64
}

// Config configures the scheduler.
type Config struct {
	Symbols           []string
	Market            string
	CycleInterval     time.Duration
	MonitorInterval   time.Duration
	TradingHoursStart string
	TradingHoursEnd   string
	Timezone          string
	ReconnectRetries  int
	ReconnectInterval time.Duration
	Sizing            config.SizingConfig
}

// Deps are the collaborators injected into a controller. Everything is
// constructor-injected so tests can isolate the pipeline and multiple
// sessions can coexist in one process.
type Deps struct {
	Aggregator *signal.Aggregator
	Sizer      *sizing.Sizer
	Risk       *risk.Manager
	Ledger     *portfolio.Ledger
	Broker     broker.Adapter
	Feed       broker.PriceFeed
	Store      *persistence.Store
	Bus        *events.Bus
	Health     *monitoring.HealthChecker
	Logger     zerolog.Logger
}

// Controller owns one session and its scheduler loop.
type Controller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	loc  *time.Location

	mu           sync.Mutex
	session      *Session
	connected    bool
	reconnecting bool
	pending      map[string]broker.Order // clientOrderID -> order awaiting confirmation

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewController creates a session controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Minute
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.ReconnectRetries <= 0 {
		cfg.ReconnectRetries = 5
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 10 * time.Second
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With().Str("component", "session").Logger(),
		loc:     loc,
		pending: make(map[string]broker.Order),
	}, nil
}

// Session returns a copy of the current session, or nil before the
// first Start.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StatusInitialized
	}
	return c.session.Status
}

// Start creates a session and launches the scheduler loop. Calling
// Start while a session is ACTIVE logs a warning and is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil && (c.session.Status == StatusActive || c.session.Status == StatusPaused) {
		c.mu.Unlock()
		c.log.Warn().Msg("start ignored: session already running")
		return nil
	}
	prevDone := c.doneCh
	c.mu.Unlock()

	// an emergency stop signals the scheduler but does not wait for it;
	// join it here so two loops never share the ledger
	if prevDone != nil {
		<-prevDone
	}

	c.mu.Lock()
	c.session = &Session{
		ID:        uuid.NewString(),
		Status:    StatusInitialized,
		StartTime: time.Now(),
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.pending = make(map[string]broker.Order)
	sessionID := c.session.ID
	c.mu.Unlock()

	if err := c.connectWithRetry(ctx); err != nil {
		c.transition(StatusError)
		return err
	}
	c.setConnected(true)

	if c.deps.Store != nil {
		if err := c.deps.Store.CreateSession(ctx, sessionID, string(StatusActive), time.Now()); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist session start")
		}
	}

	c.transition(StatusActive)
	go c.run(ctx)
	c.log.Info().Str("session_id", sessionID).Msg("trading session started")
	return nil
}

// Pause suspends cycle processing. A no-op unless ACTIVE.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Status != StatusActive {
		return
	}
	c.transitionLocked(StatusPaused)
}

// Resume reactivates a paused session. A no-op unless PAUSED.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Status != StatusPaused {
		return
	}
	c.transitionLocked(StatusActive)
}

// Stop ends the session. Stopping an already stopped session is a
// no-op.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil || c.session.Status == StatusStopped {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(StatusStopped)
	c.session.EndTime = time.Now()
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	c.finalize(ctx)
}

// EmergencyStop forces the session to STOPPED immediately, cancels
// pending orders and refuses further cycles until a manual Start.
func (c *Controller) EmergencyStop(ctx context.Context, rule string) {
	c.mu.Lock()
	if c.session == nil || c.session.Status == StatusStopped {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(StatusStopped)
	c.session.EndTime = time.Now()
	pending := make([]string, 0, len(c.pending))
	for id := range c.pending {
		pending = append(pending, id)
	}
	c.pending = make(map[string]broker.Order)
	stopCh := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	for _, clientOrderID := range pending {
		if err := c.deps.Broker.CancelOrder(ctx, clientOrderID); err != nil {
			c.log.Warn().Err(err).Str("client_order_id", clientOrderID).Msg("failed to cancel pending order")
		}
	}
	if stopCh != nil {
		close(stopCh)
	}

	c.log.Error().Str("rule", rule).Msg("emergency stop: session halted, manual restart required")
	if c.deps.Bus != nil {
		c.deps.Bus.Publish(events.TopicEmergencyStop, events.RiskAlert{
			Rule:      rule,
			Message:   "emergency stop triggered",
			Breach:    true,
			Timestamp: time.Now(),
		})
	}
	c.finalize(ctx)
}

// run is the single-owner scheduler loop. Cycle and monitor ticks are
// handled sequentially here; a tick arriving while the previous one is
// still executing coalesces instead of running concurrently.
func (c *Controller) run(ctx context.Context) {
	defer close(c.doneCh)

	cycleTicker := time.NewTicker(c.cfg.CycleInterval)
	defer cycleTicker.Stop()
	monitorTicker := time.NewTicker(c.cfg.MonitorInterval)
	defer monitorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-cycleTicker.C:
			if c.Status() != StatusActive {
				continue
			}
			if !c.withinTradingHours(time.Now()) {
				// outside the window the tick is a silent no-op
				continue
			}
			if !c.isConnected() {
				c.ensureReconnect(ctx)
				continue
			}
			c.runCycle(ctx)
			if c.deps.Health != nil {
				c.deps.Health.TouchCycle()
			}
		case <-monitorTicker.C:
			if c.Status() != StatusActive {
				continue
			}
			c.runMonitor(ctx)
		}
	}
}

// runMonitor refreshes portfolio gauges and enforces hard limits.
func (c *Controller) runMonitor(ctx context.Context) {
	if !c.deps.Broker.TestConnection(ctx) {
		c.setConnected(false)
		if c.deps.Health != nil {
			c.deps.Health.SetConnected(false)
		}
		c.ensureReconnect(ctx)
		return
	}

	snap := c.deps.Ledger.Snapshot()
	monitoring.UpdatePortfolio(snap.Equity, snap.DrawdownPct)

	if breached, rule := c.deps.Risk.BreachCheck(snap); breached && c.deps.Risk.EmergencyStopEnabled() {
		c.EmergencyStop(ctx, rule)
	}
}

// withinTradingHours checks the configured daily window in the session
// timezone. An unset or equal start/end means always open; a window
// with start after end wraps past midnight.
func (c *Controller) withinTradingHours(now time.Time) bool {
	start, end := c.cfg.TradingHoursStart, c.cfg.TradingHoursEnd
	if start == "" || end == "" || start == end {
		return true
	}
	local := now.In(c.loc)
	minutes := local.Hour()*60 + local.Minute()

	startMin, err1 := parseClock(start)
	endMin, err2 := parseClock(end)
	if err1 != nil || err2 != nil {
		return true
	}
	if startMin <= endMin {
		return minutes >= startMin && minutes < endMin
	}
	return minutes >= startMin || minutes < endMin
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (c *Controller) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Controller) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
	if c.deps.Health != nil {
		c.deps.Health.SetConnected(v)
	}
}

func (c *Controller) transition(to Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(to)
}

func (c *Controller) transitionLocked(to Status) {
	if c.session == nil {
		return
	}
	from := c.session.Status
	if from == to {
		return
	}
	c.session.Status = to
	c.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("session state changed")
	if c.deps.Health != nil {
		c.deps.Health.SetSessionStatus(string(to))
	}
	if c.deps.Bus != nil {
		c.deps.Bus.Publish(events.TopicSessionState, events.SessionState{
			SessionID: c.session.ID,
			From:      string(from),
			To:        string(to),
			Timestamp: time.Now(),
		})
	}
}

// finalize flushes session totals to the audit store.
func (c *Controller) finalize(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	var snapshotPnL float64
	if session != nil {
		snapshotPnL = session.TotalPnL
	}
	c.mu.Unlock()

	if session == nil || c.deps.Store == nil {
		return
	}
	err := c.deps.Store.CloseSession(ctx, session.ID, string(StatusStopped), time.Now(), session.TradesCount, snapshotPnL)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to persist session end")
	}
}
