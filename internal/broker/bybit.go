package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// BybitConfig configures the Bybit-backed adapter.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Category  string // "spot", "linear", "inverse"
}

// BybitAdapter implements Adapter and PriceFeed against the Bybit v5
// unified trading API.
type BybitAdapter struct {
	client   *bybit_api.Client
	category string
	log      zerolog.Logger
}

// NewBybitAdapter creates a Bybit adapter.
func NewBybitAdapter(cfg BybitConfig, log zerolog.Logger) *BybitAdapter {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	category := cfg.Category
	if category == "" {
		category = "spot"
	}
	return &BybitAdapter{
		client:   bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category: category,
		log:      log.With().Str("component", "bybit-broker").Logger(),
	}
}

func (b *BybitAdapter) Name() string { return "bybit" }

func (b *BybitAdapter) Initialize(ctx context.Context) error {
	if !b.TestConnection(ctx) {
		return fmt.Errorf("bybit connection check failed")
	}
	b.log.Info().Str("category", b.category).Msg("bybit adapter connected")
	return nil
}

func (b *BybitAdapter) TestConnection(ctx context.Context) bool {
	params := map[string]interface{}{"category": b.category, "symbol": "BTCUSDT"}
	_, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	return err == nil
}

// decodeResult checks the envelope return code and unmarshals the
// result payload into out.
func decodeResult(response any, out any) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return fmt.Errorf("bybit API error: %s (code %d)", serverResp.RetMsg, serverResp.RetCode)
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to re-encode result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (b *BybitAdapter) GetCurrentPrice(ctx context.Context, symbol, market string) (float64, error) {
	if market == "" {
		market = b.category
	}
	params := map[string]interface{}{"category": market, "symbol": symbol}
	response, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeResult(response, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		// no data is a skip signal, not an error
		return 0, nil
	}
	price, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price: %w", err)
	}
	return price, nil
}

func (b *BybitAdapter) GetHistoricalData(ctx context.Context, symbol, market string, days int) ([]types.OHLCV, error) {
	if market == "" {
		market = b.category
	}
	if days <= 0 {
		days = 30
	}
	params := map[string]interface{}{
		"category": market,
		"symbol":   symbol,
		"interval": "D",
		"limit":    days,
	}
	response, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult(response, &result); err != nil {
		return nil, err
	}

	// Bybit returns newest first; callers expect chronological order.
	candles := make([]types.OHLCV, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKlineRow(row []string) (types.OHLCV, error) {
	startMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return types.OHLCV{}, err
	}
	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return types.OHLCV{}, err
		}
		values[i] = v
	}
	return types.OHLCV{
		Timestamp: time.UnixMilli(startMs),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func (b *BybitAdapter) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	side := "Buy"
	if order.Side == SideSell {
		side = "Sell"
	}
	params := map[string]interface{}{
		"category":    b.category,
		"symbol":      order.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(order.Quantity, 'f', -1, 64),
		"orderLinkId": order.ClientOrderID,
	}
	if order.StopLoss > 0 {
		params["stopLoss"] = strconv.FormatFloat(order.StopLoss, 'f', -1, 64)
	}
	if order.TakeProfit > 0 {
		params["takeProfit"] = strconv.FormatFloat(order.TakeProfit, 'f', -1, 64)
	}

	response, err := b.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(response, &result); err != nil {
		return nil, err
	}

	// The create-order response only means accepted. The real fill
	// price and quantity come from the realtime order query; until a
	// terminal status shows up there the order stays pending.
	return b.confirmOrder(ctx, order, result.OrderID)
}

const (
	fillPollAttempts = 5
	fillPollInterval = 300 * time.Millisecond
)

// orderStatusFromBybit maps Bybit v5 order states onto the adapter's
// lifecycle. Anything non-terminal stays pending.
func orderStatusFromBybit(s string) OrderStatus {
	switch s {
	case "Filled":
		return StatusFilled
	case "Rejected", "Deactivated":
		return StatusRejected
	case "Cancelled", "PartiallyFilledCanceled":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// confirmOrder polls the realtime order endpoint until the order
// reaches a terminal state or the poll budget runs out. A still-open
// order is reported as pending; the caller keeps it in its pending set
// and never applies a fill for it.
func (b *BybitAdapter) confirmOrder(ctx context.Context, order Order, orderID string) (*OrderResult, error) {
	pending := &OrderResult{
		OrderID:       orderID,
		ClientOrderID: order.ClientOrderID,
		Status:        StatusPending,
		Timestamp:     time.Now(),
	}

	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		result, err := b.queryOrder(ctx, order.Symbol, order.ClientOrderID)
		if err != nil {
			b.log.Warn().Err(err).
				Str("client_order_id", order.ClientOrderID).
				Msg("order status query failed")
		} else if result != nil {
			if result.OrderID == "" {
				result.OrderID = orderID
			}
			if result.Status != StatusPending {
				return result, nil
			}
			pending = result
		}

		select {
		case <-ctx.Done():
			return pending, nil
		case <-time.After(fillPollInterval):
		}
	}

	b.log.Warn().
		Str("client_order_id", order.ClientOrderID).
		Msg("order still unconfirmed after poll, left pending")
	return pending, nil
}

// queryOrder fetches one order by its client order id. A nil result
// with a nil error means the order is not visible yet.
func (b *BybitAdapter) queryOrder(ctx context.Context, symbol, clientOrderID string) (*OrderResult, error) {
	params := map[string]interface{}{
		"category":    b.category,
		"symbol":      symbol,
		"orderLinkId": clientOrderID,
	}
	response, err := b.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query order %s: %w", clientOrderID, err)
	}

	var result struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderStatus  string `json:"orderStatus"`
			AvgPrice     string `json:"avgPrice"`
			CumExecQty   string `json:"cumExecQty"`
			RejectReason string `json:"rejectReason"`
		} `json:"list"`
	}
	if err := decodeResult(response, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}

	row := result.List[0]
	avgPrice, _ := strconv.ParseFloat(row.AvgPrice, 64)
	filledQty, _ := strconv.ParseFloat(row.CumExecQty, 64)
	return &OrderResult{
		OrderID:       row.OrderID,
		ClientOrderID: clientOrderID,
		Status:        orderStatusFromBybit(row.OrderStatus),
		FilledQty:     filledQty,
		AvgPrice:      avgPrice,
		Reason:        row.RejectReason,
		Timestamp:     time.Now(),
	}, nil
}

func (b *BybitAdapter) CancelOrder(ctx context.Context, clientOrderID string) error {
	params := map[string]interface{}{
		"category":    b.category,
		"orderLinkId": clientOrderID,
	}
	if _, err := b.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", clientOrderID, err)
	}
	return nil
}

func (b *BybitAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	params := map[string]interface{}{"category": b.category, "settleCoin": "USDT"}
	response, err := b.client.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			StopLoss      string `json:"stopLoss"`
			TakeProfit    string `json:"takeProfit"`
			CreatedTime   string `json:"createdTime"`
		} `json:"list"`
	}
	if err := decodeResult(response, &result); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(result.List))
	for _, p := range result.List {
		qty, _ := strconv.ParseFloat(p.Size, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealisedPnl, 64)
		sl, _ := strconv.ParseFloat(p.StopLoss, 64)
		tp, _ := strconv.ParseFloat(p.TakeProfit, 64)
		openedAt := time.Time{}
		if ms, err := strconv.ParseInt(p.CreatedTime, 10, 64); err == nil {
			openedAt = time.UnixMilli(ms)
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Quantity:      qty,
			EntryPrice:    entry,
			CurrentPrice:  mark,
			StopLoss:      sl,
			TakeProfit:    tp,
			UnrealizedPnL: pnl,
			OpenedAt:      openedAt,
		})
	}
	return positions, nil
}

func (b *BybitAdapter) GetAccount(ctx context.Context) (*Account, error) {
	params := map[string]interface{}{"accountType": "UNIFIED"}
	response, err := b.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	var result struct {
		List []struct {
			TotalEquity        string `json:"totalEquity"`
			TotalWalletBalance string `json:"totalWalletBalance"`
		} `json:"list"`
	}
	if err := decodeResult(response, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("empty wallet response")
	}
	equity, _ := strconv.ParseFloat(result.List[0].TotalEquity, 64)
	balance, _ := strconv.ParseFloat(result.List[0].TotalWalletBalance, 64)
	return &Account{Balance: balance, Equity: equity}, nil
}
