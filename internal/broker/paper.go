package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PaperBroker simulates a broker for dry runs. Orders fill immediately
// and deterministically at their expected entry price, so test runs are
// reproducible.
type PaperBroker struct {
	mu          sync.Mutex
	balance     float64
	positions   map[string]*Position
	seenOrders  map[string]*OrderResult // clientOrderID -> result, for idempotent retries
	connected   bool
	log         zerolog.Logger
}

// NewPaperBroker creates a paper broker with the given starting balance.
func NewPaperBroker(balance float64, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		balance:    balance,
		positions:  make(map[string]*Position),
		seenOrders: make(map[string]*OrderResult),
		log:        log.With().Str("component", "paper-broker").Logger(),
	}
}

func (b *PaperBroker) Name() string { return "paper" }

func (b *PaperBroker) Initialize(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.log.Info().Float64("balance", b.balance).Msg("paper broker ready")
	return nil
}

func (b *PaperBroker) TestConnection(_ context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// PlaceOrder fills the order at its expected price. Replayed client
// order ids return the original result instead of filling twice.
func (b *PaperBroker) PlaceOrder(_ context.Context, order Order) (*OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, fmt.Errorf("paper broker not connected")
	}
	if prev, ok := b.seenOrders[order.ClientOrderID]; ok {
		return prev, nil
	}
	if order.Quantity <= 0 || order.Price <= 0 {
		result := &OrderResult{
			ClientOrderID: order.ClientOrderID,
			Status:        StatusRejected,
			Reason:        "invalid quantity or price",
			Timestamp:     time.Now(),
		}
		b.seenOrders[order.ClientOrderID] = result
		return result, nil
	}

	notional := order.Notional()
	if order.Side == SideBuy && notional > b.balance {
		result := &OrderResult{
			ClientOrderID: order.ClientOrderID,
			Status:        StatusRejected,
			Reason:        "insufficient balance",
			Timestamp:     time.Now(),
		}
		b.seenOrders[order.ClientOrderID] = result
		return result, nil
	}

	switch order.Side {
	case SideBuy:
		b.balance -= notional
		pos, ok := b.positions[order.Symbol]
		if !ok {
			b.positions[order.Symbol] = &Position{
				Symbol:       order.Symbol,
				Quantity:     order.Quantity,
				EntryPrice:   order.Price,
				CurrentPrice: order.Price,
				StopLoss:     order.StopLoss,
				TakeProfit:   order.TakeProfit,
				OpenedAt:     time.Now(),
			}
		} else {
			total := pos.Quantity + order.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + order.Price*order.Quantity) / total
			pos.Quantity = total
		}
	case SideSell:
		pos, ok := b.positions[order.Symbol]
		if !ok || pos.Quantity < order.Quantity {
			result := &OrderResult{
				ClientOrderID: order.ClientOrderID,
				Status:        StatusRejected,
				Reason:        "no position to sell",
				Timestamp:     time.Now(),
			}
			b.seenOrders[order.ClientOrderID] = result
			return result, nil
		}
		b.balance += notional
		pos.Quantity -= order.Quantity
		if pos.Quantity == 0 {
			delete(b.positions, order.Symbol)
		}
	}

	result := &OrderResult{
		OrderID:       fmt.Sprintf("paper-%d", len(b.seenOrders)+1),
		ClientOrderID: order.ClientOrderID,
		Status:        StatusFilled,
		FilledQty:     order.Quantity,
		AvgPrice:      order.Price,
		Timestamp:     time.Now(),
	}
	b.seenOrders[order.ClientOrderID] = result
	b.log.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Quantity).
		Float64("price", order.Price).
		Msg("paper order filled")
	return result, nil
}

func (b *PaperBroker) CancelOrder(_ context.Context, clientOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if result, ok := b.seenOrders[clientOrderID]; ok && result.Status == StatusPending {
		result.Status = StatusCancelled
	}
	return nil
}

func (b *PaperBroker) GetPositions(_ context.Context) ([]Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (b *PaperBroker) GetAccount(_ context.Context) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.balance
	for _, pos := range b.positions {
		equity += pos.Quantity * pos.CurrentPrice
	}
	return &Account{Balance: b.balance, Equity: equity}, nil
}

// MarkPrice updates the simulated market price for a symbol so
// unrealized PnL and stop checks reflect it.
func (b *PaperBroker) MarkPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[symbol]; ok {
		pos.CurrentPrice = price
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
	}
}
