package broker

import (
	"context"
	"time"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus tracks an order through its lifecycle. Orders stay
// PENDING until the broker confirms a fill or rejection; the portfolio
// ledger only moves on confirmation.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Order is a trade intent. ClientOrderID is supplied by the caller so a
// retry after an ambiguous failure cannot double-submit.
type Order struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      float64
	Price         float64 // expected entry price
	StopLoss      float64
	TakeProfit    float64
	CreatedAt     time.Time
}

// Notional returns the order's cash value at the expected entry price.
func (o Order) Notional() float64 {
	return o.Quantity * o.Price
}

// OrderResult is the broker's confirmation for an order.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	FilledQty     float64
	AvgPrice      float64
	Reason        string
	Timestamp     time.Time
}

// Position is one open holding as reported by the broker.
type Position struct {
	Symbol        string
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// Account is the broker's view of available funds.
type Account struct {
	Balance float64
	Equity  float64
}

// Adapter is the boundary to one broker. Implementations translate the
// wire protocol; everything above this interface is broker-agnostic.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context) error
	PlaceOrder(ctx context.Context, order Order) (*OrderResult, error)
	CancelOrder(ctx context.Context, clientOrderID string) error
	GetPositions(ctx context.Context) ([]Position, error)
	GetAccount(ctx context.Context) (*Account, error)
	TestConnection(ctx context.Context) bool
}

// PriceFeed supplies market data. A zero current price with a nil error
// means "no data this cycle, skip the symbol" rather than a failure.
type PriceFeed interface {
	GetCurrentPrice(ctx context.Context, symbol, market string) (float64, error)
	GetHistoricalData(ctx context.Context, symbol, market string, days int) ([]types.OHLCV, error)
}
