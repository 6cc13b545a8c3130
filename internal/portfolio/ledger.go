// Package portfolio tracks the account's positions and PnL. The ledger
// mutates only on confirmed fills; risk checks read a consistent
// snapshot and never write.
package portfolio

import (
	"sync"
	"time"

	"github.com/tradequorum/quorum-bot/internal/broker"
)

// Snapshot is a consistent pre-trade view of the portfolio.
type Snapshot struct {
	Balance          float64
	Equity           float64
	RealizedPnL      float64 // cumulative since ledger creation
	DailyRealizedPnL float64
	UnrealizedPnL    float64
	PeakEquity       float64
	DrawdownPct      float64
	RiskUsed         float64 // cash at risk across open stops
	Positions        []broker.Position
	TakenAt          time.Time
}

// Ledger is the single mutable portfolio aggregate.
type Ledger struct {
	mu               sync.RWMutex
	balance          float64
	positions        map[string]*broker.Position
	realizedPnL      float64 // cumulative, never reset
	dailyRealizedPnL float64
	dailyAnchor      time.Time
	peakEquity       float64
	now              func() time.Time
}

// NewLedger creates a ledger with the given starting cash balance.
func NewLedger(balance float64) *Ledger {
	return &Ledger{
		balance:     balance,
		positions:   make(map[string]*broker.Position),
		dailyAnchor: time.Now().Truncate(24 * time.Hour),
		peakEquity:  balance,
		now:         time.Now,
	}
}

// ApplyFill records a confirmed fill. Buys open or extend a position;
// sells realize PnL against the position's entry price. Rejected or
// pending results never reach this method.
func (l *Ledger) ApplyFill(order broker.Order, result *broker.OrderResult) {
	if result == nil || result.Status != broker.StatusFilled || result.FilledQty <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	qty := result.FilledQty
	price := result.AvgPrice
	if price <= 0 {
		price = order.Price
	}

	switch order.Side {
	case broker.SideBuy:
		l.balance -= qty * price
		pos, ok := l.positions[order.Symbol]
		if !ok {
			l.positions[order.Symbol] = &broker.Position{
				Symbol:       order.Symbol,
				Quantity:     qty,
				EntryPrice:   price,
				CurrentPrice: price,
				StopLoss:     order.StopLoss,
				TakeProfit:   order.TakeProfit,
				OpenedAt:     result.Timestamp,
			}
		} else {
			total := pos.Quantity + qty
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*qty) / total
			pos.Quantity = total
		}
	case broker.SideSell:
		pos, ok := l.positions[order.Symbol]
		if !ok {
			return
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		l.balance += qty * price
		realized := (price - pos.EntryPrice) * qty
		l.realizedPnL += realized
		l.dailyRealizedPnL += realized
		pos.Quantity -= qty
		if pos.Quantity <= 0 {
			delete(l.positions, order.Symbol)
		}
	}

	l.updatePeakLocked()
}

// MarkPrice refreshes a position's market price. This is a valuation
// update, not a ledger mutation: quantities and entries never change.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[symbol]; ok && price > 0 {
		pos.CurrentPrice = price
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
	}
	l.updatePeakLocked()
}

// Snapshot returns a consistent copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	snap := Snapshot{
		Balance:          l.balance,
		RealizedPnL:      l.realizedPnL,
		DailyRealizedPnL: l.dailyRealizedPnL,
		PeakEquity:       l.peakEquity,
		Positions:        make([]broker.Position, 0, len(l.positions)),
		TakenAt:          time.Now(),
	}
	for _, pos := range l.positions {
		snap.Positions = append(snap.Positions, *pos)
		snap.UnrealizedPnL += pos.UnrealizedPnL
		snap.RiskUsed += positionRisk(pos)
	}
	snap.Equity = l.equityLocked()
	if snap.PeakEquity > 0 {
		snap.DrawdownPct = (snap.PeakEquity - snap.Equity) / snap.PeakEquity * 100
		if snap.DrawdownPct < 0 {
			snap.DrawdownPct = 0
		}
	}
	return snap
}

// positionRisk is the cash lost if the position's stop is hit. Without
// a stop the full position value is at risk.
func positionRisk(pos *broker.Position) float64 {
	if pos.StopLoss > 0 && pos.StopLoss < pos.EntryPrice {
		return (pos.EntryPrice - pos.StopLoss) * pos.Quantity
	}
	return pos.EntryPrice * pos.Quantity
}

func (l *Ledger) equityLocked() float64 {
	equity := l.balance
	for _, pos := range l.positions {
		equity += pos.Quantity * pos.CurrentPrice
	}
	return equity
}

func (l *Ledger) updatePeakLocked() {
	if equity := l.equityLocked(); equity > l.peakEquity {
		l.peakEquity = equity
	}
}

// rollDayLocked zeroes daily realized PnL when the calendar day turns.
// Cumulative realized PnL is untouched.
func (l *Ledger) rollDayLocked() {
	today := l.now().Truncate(24 * time.Hour)
	if today.After(l.dailyAnchor) {
		l.dailyAnchor = today
		l.dailyRealizedPnL = 0
	}
}
