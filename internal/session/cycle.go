package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/events"
	"github.com/tradequorum/quorum-bot/internal/indicators"
	"github.com/tradequorum/quorum-bot/internal/monitoring"
	"github.com/tradequorum/quorum-bot/internal/persistence"
	"github.com/tradequorum/quorum-bot/internal/signal"
	"github.com/tradequorum/quorum-bot/internal/sizing"
)

const volatilityLookbackDays = 30

// runCycle executes one full pass of the decision pipeline:
// aggregate signals across symbols, pick the strongest buy candidate,
// size it, gate it through risk, and submit. Every pass leaves a
// decision audit record whether or not it trades.
func (c *Controller) runCycle(ctx context.Context) {
	c.refreshPositions(ctx)
	c.manageOpenPositions(ctx)

	aggs := c.deps.Aggregator.AggregateMany(ctx, c.cfg.Symbols)
	for _, agg := range aggs {
		verdict := "hold"
		switch {
		case agg.ShouldBuy:
			verdict = "buy"
		case agg.ShouldSell:
			verdict = "sell"
		}
		monitoring.RecordAggregation(agg.Symbol, verdict)
	}

	best := signal.SelectBestBuyCandidate(aggs)
	if best == nil {
		c.log.Debug().Int("symbols", len(aggs)).Msg("no buy candidate this cycle")
		monitoring.RecordCycle("skipped")
		return
	}

	price, err := c.deps.Feed.GetCurrentPrice(ctx, best.Symbol, c.cfg.Market)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", best.Symbol).Msg("price fetch failed")
		monitoring.RecordCycle("error")
		return
	}
	if price <= 0 {
		c.log.Debug().Str("symbol", best.Symbol).Msg("no price data, skipping")
		monitoring.RecordCycle("skipped")
		return
	}

	constraints := c.deps.Risk.Constraints()
	stop := price * (1 - constraints.StopLossPct/100)
	takeProfit := price * (1 + constraints.TakeProfitPct/100)

	snap := c.deps.Ledger.Snapshot()
	sized := c.deps.Sizer.Integrated(sizing.IntegratedInput{
		Balance:           snap.Equity,
		Entry:             price,
		Stop:              stop,
		VolatilityPct:     c.estimateVolatility(ctx, best.Symbol),
		WinRatePct:        c.cfg.Sizing.WinRatePct,
		AvgWin:            c.cfg.Sizing.AvgWin,
		AvgLoss:           c.cfg.Sizing.AvgLoss,
		PortfolioRiskUsed: snap.RiskUsed,
	})

	if sized.RecommendedSize <= 0 {
		c.log.Info().Str("symbol", best.Symbol).Msg("sizer recommends no position")
		c.auditDecision(ctx, best, 0, true, "zero size recommended")
		monitoring.RecordCycle("skipped")
		return
	}

	order := broker.Order{
		ClientOrderID: uuid.NewString(),
		Symbol:        best.Symbol,
		Side:          broker.SideBuy,
		Quantity:      float64(sized.RecommendedSize),
		Price:         price,
		StopLoss:      stop,
		TakeProfit:    takeProfit,
		CreatedAt:     time.Now(),
	}

	decision := c.deps.Risk.CheckOrderRisk(order, snap)
	c.auditDecision(ctx, best, sized.RecommendedSize, decision.Allowed, decision.Reason)
	if !decision.Allowed {
		c.log.Warn().
			Str("symbol", best.Symbol).
			Str("rule", decision.Rule).
			Msg("🚫 order rejected by risk gate")
		monitoring.RecordRiskRejection(decision.Rule)
		monitoring.RecordCycle("rejected")
		return
	}

	c.submitOrder(ctx, order)
}

// submitOrder tracks the order as pending, submits it, and applies the
// fill on confirmation. An ambiguous failure leaves the order pending
// so a later reconciliation (or cancel on emergency stop) can resolve
// it without double-submitting.
func (c *Controller) submitOrder(ctx context.Context, order broker.Order) {
	c.mu.Lock()
	c.pending[order.ClientOrderID] = order
	sessionID := c.session.ID
	c.mu.Unlock()

	result, err := c.deps.Broker.PlaceOrder(ctx, order)
	if err != nil {
		c.log.Error().Err(err).
			Str("symbol", order.Symbol).
			Str("client_order_id", order.ClientOrderID).
			Msg("order submission failed, left pending")
		c.auditTransaction(ctx, sessionID, order, "", string(broker.StatusPending))
		monitoring.RecordCycle("error")
		return
	}

	c.auditTransaction(ctx, sessionID, order, result.OrderID, string(result.Status))

	if result.Status == broker.StatusPending {
		// accepted but not yet confirmed: stays in the pending set,
		// the ledger does not move
		c.log.Info().
			Str("symbol", order.Symbol).
			Str("client_order_id", order.ClientOrderID).
			Msg("order accepted, awaiting fill confirmation")
		monitoring.RecordCycle("pending")
		return
	}

	c.mu.Lock()
	delete(c.pending, order.ClientOrderID)
	c.mu.Unlock()

	if result.Status != broker.StatusFilled {
		c.log.Warn().
			Str("symbol", order.Symbol).
			Str("status", string(result.Status)).
			Str("reason", result.Reason).
			Msg("order not filled")
		monitoring.RecordCycle("rejected")
		return
	}

	c.deps.Ledger.ApplyFill(order, result)
	c.recordTrade(order, result)
	monitoring.RecordTrade(order.Symbol, string(order.Side))
	monitoring.RecordCycle("traded")
	c.log.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", result.FilledQty).
		Float64("price", result.AvgPrice).
		Msg("✅ trade executed")
}

// manageOpenPositions closes positions whose stop-loss or take-profit
// level has been crossed. Exits bypass the risk gate: reducing
// exposure must never be blocked by it.
func (c *Controller) manageOpenPositions(ctx context.Context) {
	snap := c.deps.Ledger.Snapshot()
	for _, pos := range snap.Positions {
		if pos.CurrentPrice <= 0 {
			continue
		}
		var reason string
		switch {
		case pos.StopLoss > 0 && pos.CurrentPrice <= pos.StopLoss:
			reason = "stop loss"
		case pos.TakeProfit > 0 && pos.CurrentPrice >= pos.TakeProfit:
			reason = "take profit"
		default:
			continue
		}

		c.log.Info().
			Str("symbol", pos.Symbol).
			Float64("price", pos.CurrentPrice).
			Str("trigger", reason).
			Msg("closing position")

		order := broker.Order{
			ClientOrderID: uuid.NewString(),
			Symbol:        pos.Symbol,
			Side:          broker.SideSell,
			Quantity:      pos.Quantity,
			Price:         pos.CurrentPrice,
			CreatedAt:     time.Now(),
		}
		c.submitExit(ctx, order)
	}
}

func (c *Controller) submitExit(ctx context.Context, order broker.Order) {
	c.mu.Lock()
	c.pending[order.ClientOrderID] = order
	sessionID := c.session.ID
	c.mu.Unlock()

	result, err := c.deps.Broker.PlaceOrder(ctx, order)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", order.Symbol).Msg("exit order failed, left pending")
		c.auditTransaction(ctx, sessionID, order, "", string(broker.StatusPending))
		return
	}

	c.auditTransaction(ctx, sessionID, order, result.OrderID, string(result.Status))
	if result.Status == broker.StatusPending {
		c.log.Info().
			Str("symbol", order.Symbol).
			Str("client_order_id", order.ClientOrderID).
			Msg("exit order accepted, awaiting fill confirmation")
		return
	}

	c.mu.Lock()
	delete(c.pending, order.ClientOrderID)
	c.mu.Unlock()

	if result.Status == broker.StatusFilled {
		c.deps.Ledger.ApplyFill(order, result)
		c.recordTrade(order, result)
		monitoring.RecordTrade(order.Symbol, string(order.Side))
		if c.deps.Store != nil {
			if err := c.deps.Store.DeletePosition(ctx, order.Symbol); err != nil {
				c.log.Warn().Err(err).Msg("failed to delete closed position")
			}
		}
	}
}

// refreshPositions marks open positions to the latest price so exit
// triggers and risk snapshots see current valuations.
func (c *Controller) refreshPositions(ctx context.Context) {
	snap := c.deps.Ledger.Snapshot()
	for _, pos := range snap.Positions {
		price, err := c.deps.Feed.GetCurrentPrice(ctx, pos.Symbol, c.cfg.Market)
		if err != nil || price <= 0 {
			continue
		}
		c.deps.Ledger.MarkPrice(pos.Symbol, price)
	}
}

// estimateVolatility derives a volatility percentage from recent
// Bollinger band width. Zero on any failure; the sizer treats that as
// "volatility method unavailable" and blends without it.
func (c *Controller) estimateVolatility(ctx context.Context, symbol string) float64 {
	data, err := c.deps.Feed.GetHistoricalData(ctx, symbol, c.cfg.Market, volatilityLookbackDays)
	if err != nil || len(data) == 0 {
		return 0
	}
	bb := indicators.NewBollingerBands(20, 2.0)
	vol, err := bb.Volatility(data)
	if err != nil {
		return 0
	}
	return vol
}

func (c *Controller) recordTrade(order broker.Order, result *broker.OrderResult) {
	c.mu.Lock()
	if c.session != nil {
		c.session.TradesCount++
		if order.Side == broker.SideSell {
			// cumulative, so a session spanning midnight keeps its total
			c.session.TotalPnL = c.deps.Ledger.Snapshot().RealizedPnL
		}
	}
	c.mu.Unlock()

	if c.deps.Bus != nil {
		c.deps.Bus.Publish(events.TopicTradeExecuted, events.TradeExecuted{
			Symbol:    order.Symbol,
			Side:      string(order.Side),
			Quantity:  result.FilledQty,
			Price:     result.AvgPrice,
			OrderID:   result.OrderID,
			Timestamp: result.Timestamp,
		})
	}

	if c.deps.Store != nil {
		pos := c.findPosition(order.Symbol)
		if pos != nil {
			if err := c.deps.Store.UpsertPosition(context.Background(), *pos); err != nil {
				c.log.Warn().Err(err).Msg("failed to persist position")
			}
		}
	}
}

func (c *Controller) findPosition(symbol string) *broker.Position {
	snap := c.deps.Ledger.Snapshot()
	for i := range snap.Positions {
		if snap.Positions[i].Symbol == symbol {
			return &snap.Positions[i]
		}
	}
	return nil
}

func (c *Controller) auditDecision(ctx context.Context, agg *signal.AggregatedSignal, size int, allowed bool, reason string) {
	if c.deps.Store == nil {
		return
	}
	c.mu.Lock()
	sessionID := ""
	if c.session != nil {
		sessionID = c.session.ID
	}
	c.mu.Unlock()

	err := c.deps.Store.RecordDecision(ctx, persistence.Decision{
		SessionID:    sessionID,
		Symbol:       agg.Symbol,
		TotalSources: agg.TotalSources,
		BuySignals:   agg.BuySignals,
		HoldSignals:  agg.HoldSignals,
		SellSignals:  agg.SellSignals,
		BuyPct:       agg.BuyPercentage,
		ShouldBuy:    agg.ShouldBuy,
		Size:         size,
		Allowed:      allowed,
		Reason:       reason,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to record decision audit")
	}
}

func (c *Controller) auditTransaction(ctx context.Context, sessionID string, order broker.Order, orderID, status string) {
	if c.deps.Store == nil {
		return
	}
	err := c.deps.Store.RecordTransaction(ctx, persistence.Transaction{
		SessionID:     sessionID,
		ClientOrderID: order.ClientOrderID,
		OrderID:       orderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      order.Quantity,
		Price:         order.Price,
		Status:        status,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to record transaction audit")
	}
}
