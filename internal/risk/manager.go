// Package risk gates orders through ordered portfolio-level checks.
// The check order is fixed and short-circuits on the first violation,
// so a rejection always names exactly one rule and tests stay
// deterministic. Checks read a snapshot and never mutate the portfolio.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/portfolio"
)

// Rule names are stable identifiers for operator tooling and tests.
const (
	RuleMaxPositionSize = "max_position_size"
	RulePerTradeRisk    = "per_trade_risk"
	RulePortfolioRisk   = "portfolio_risk"
	RuleDailyLoss       = "daily_loss"
	RuleDrawdown        = "drawdown"
)

// Recommended portfolio actions from AnalyzePortfolioRisk.
const (
	ActionReduce   = "REDUCE"
	ActionHold     = "HOLD"
	ActionIncrease = "INCREASE"
)

// Constraints are the portfolio risk limits. They are set at session
// start and may be hot-updated between cycles.
type Constraints struct {
	MaxPositionSize     float64
	MaxPortfolioRiskPct float64
	PerTradeRiskPct     float64
	StopLossPct         float64
	TakeProfitPct       float64
	MaxDailyLoss        float64
	MaxDrawdownPct      float64
	EmergencyStop       bool
}

// Decision is the outcome of a risk check.
type Decision struct {
	Allowed bool
	Rule    string // violated rule name when not allowed
	Reason  string // stable human-readable reason
}

// Analysis summarizes current portfolio risk.
type Analysis struct {
	RiskPercentage    float64
	RecommendedAction string
}

// Manager evaluates orders against the constraints.
type Manager struct {
	mu          sync.RWMutex
	constraints Constraints
	bus         *events.Bus
	log         zerolog.Logger
}

// NewManager creates a risk manager.
func NewManager(constraints Constraints, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		constraints: constraints,
		bus:         bus,
		log:         log.With().Str("component", "risk").Logger(),
	}
}

// Constraints returns the active limits.
func (m *Manager) Constraints() Constraints {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.constraints
}

// UpdateConstraints swaps the limits between cycles.
func (m *Manager) UpdateConstraints(c Constraints) {
	m.mu.Lock()
	m.constraints = c
	m.mu.Unlock()
	m.log.Info().Msg("risk constraints updated")
}

// CheckOrderRisk gates one order against the snapshot. The evaluation
// order is binding: position size, per-trade risk, portfolio risk,
// daily loss, drawdown.
func (m *Manager) CheckOrderRisk(order broker.Order, snap portfolio.Snapshot) Decision {
	c := m.Constraints()

	// 1. notional against the absolute position cap
	notional := order.Notional()
	if notional > c.MaxPositionSize {
		return m.reject(RuleMaxPositionSize,
			fmt.Sprintf("order notional %.2f exceeds max position size %.2f", notional, c.MaxPositionSize))
	}

	// 2. this trade's worst-case loss against the per-trade budget
	tradeRisk := order.Quantity * math.Abs(order.Price-order.StopLoss)
	if order.StopLoss <= 0 {
		tradeRisk = notional // without a stop the whole position is at risk
	}
	perTradeBudget := c.PerTradeRiskPct / 100 * snap.Equity
	if tradeRisk > perTradeBudget {
		return m.reject(RulePerTradeRisk,
			fmt.Sprintf("trade risk %.2f exceeds per-trade budget %.2f (%.1f%% of equity)", tradeRisk, perTradeBudget, c.PerTradeRiskPct))
	}

	// 3. projected total portfolio risk after the trade
	portfolioBudget := c.MaxPortfolioRiskPct / 100 * snap.Equity
	if snap.RiskUsed+tradeRisk > portfolioBudget {
		return m.reject(RulePortfolioRisk,
			fmt.Sprintf("projected portfolio risk %.2f exceeds budget %.2f (%.1f%% of equity)", snap.RiskUsed+tradeRisk, portfolioBudget, c.MaxPortfolioRiskPct))
	}

	// 4. projected daily loss: realized losses plus this trade's worst case
	realizedLoss := math.Max(0, -snap.DailyRealizedPnL)
	if realizedLoss+tradeRisk > c.MaxDailyLoss {
		return m.reject(RuleDailyLoss,
			fmt.Sprintf("projected daily loss %.2f exceeds max daily loss %.2f", realizedLoss+tradeRisk, c.MaxDailyLoss))
	}

	// 5. current drawdown
	if snap.DrawdownPct > c.MaxDrawdownPct {
		return m.reject(RuleDrawdown,
			fmt.Sprintf("drawdown %.2f%% exceeds max drawdown %.2f%%", snap.DrawdownPct, c.MaxDrawdownPct))
	}

	return Decision{Allowed: true}
}

func (m *Manager) reject(rule, reason string) Decision {
	m.log.Warn().Str("rule", rule).Msg(reason)
	if m.bus != nil {
		m.bus.Publish(events.TopicRiskRejected, events.RiskAlert{
			Rule:      rule,
			Message:   reason,
			Timestamp: time.Now(),
		})
	}
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}

// AnalyzePortfolioRisk reports how much of the equity is at risk and
// what to do about it.
func (m *Manager) AnalyzePortfolioRisk(positions []broker.Position, equity float64) Analysis {
	c := m.Constraints()
	if equity <= 0 {
		return Analysis{RiskPercentage: 100, RecommendedAction: ActionReduce}
	}

	atRisk := 0.0
	for _, pos := range positions {
		if pos.StopLoss > 0 && pos.StopLoss < pos.EntryPrice {
			atRisk += (pos.EntryPrice - pos.StopLoss) * pos.Quantity
		} else {
			atRisk += pos.EntryPrice * pos.Quantity
		}
	}
	riskPct := atRisk / equity * 100

	action := ActionHold
	switch {
	case riskPct > c.MaxPortfolioRiskPct:
		action = ActionReduce
	case riskPct < c.MaxPortfolioRiskPct/2:
		action = ActionIncrease
	}
	return Analysis{RiskPercentage: riskPct, RecommendedAction: action}
}

// BreachCheck inspects the snapshot for hard-limit breaches. When a
// breach is found and EmergencyStop is enabled, the session must stop
// immediately. The breach is published as a risk alert either way.
func (m *Manager) BreachCheck(snap portfolio.Snapshot) (breached bool, rule string) {
	c := m.Constraints()

	switch {
	case math.Max(0, -snap.DailyRealizedPnL) > c.MaxDailyLoss:
		rule = RuleDailyLoss
	case snap.DrawdownPct > c.MaxDrawdownPct:
		rule = RuleDrawdown
	default:
		return false, ""
	}

	m.log.Error().Str("rule", rule).Msg("hard risk limit breached")
	if m.bus != nil {
		m.bus.Publish(events.TopicRiskAlert, events.RiskAlert{
			Rule:      rule,
			Message:   fmt.Sprintf("hard risk limit breached: %s", rule),
			Breach:    true,
			Timestamp: time.Now(),
		})
	}
	return true, rule
}

// EmergencyStopEnabled reports whether a breach forces a session stop.
func (m *Manager) EmergencyStopEnabled() bool {
	return m.Constraints().EmergencyStop
}
