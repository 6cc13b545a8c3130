// Package providers holds the concrete signal fetchers registered with
// the aggregator: local indicator-driven providers computing opinions
// from market history, and remote HTTP providers proxying external
// signal services.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/tradequorum/quorum-bot/internal/broker"
	"github.com/tradequorum/quorum-bot/internal/indicators"
	"github.com/tradequorum/quorum-bot/internal/signal"
)

// DefaultLookbackDays bounds the history window local providers request.
const DefaultLookbackDays = 60

// IndicatorProvider derives a signal from market history through one
// technical indicator.
type IndicatorProvider struct {
	indicator    indicators.Indicator
	feed         broker.PriceFeed
	market       string
	lookbackDays int
}

// NewIndicatorProvider wraps an indicator as a signal fetcher.
func NewIndicatorProvider(ind indicators.Indicator, feed broker.PriceFeed, market string) *IndicatorProvider {
	return &IndicatorProvider{
		indicator:    ind,
		feed:         feed,
		market:       market,
		lookbackDays: DefaultLookbackDays,
	}
}

func (p *IndicatorProvider) Name() string { return p.indicator.Name() }

func (p *IndicatorProvider) Fetch(ctx context.Context, symbol string) (signal.RawSignal, error) {
	data, err := p.feed.GetHistoricalData(ctx, symbol, p.market, p.lookbackDays)
	if err != nil {
		return signal.RawSignal{}, fmt.Errorf("history fetch failed: %w", err)
	}
	if len(data) < p.indicator.RequiredPeriods() {
		return signal.RawSignal{}, fmt.Errorf("only %d candles available, %d required", len(data), p.indicator.RequiredPeriods())
	}

	verdict, confidence, reason, err := p.indicator.Evaluate(data)
	if err != nil {
		return signal.RawSignal{}, err
	}

	return signal.RawSignal{
		Source:     p.indicator.Name(),
		Symbol:     symbol,
		Direction:  toDirection(verdict),
		Confidence: confidence,
		Reason:     reason,
		Timestamp:  time.Now(),
	}, nil
}

func toDirection(v indicators.Verdict) signal.Direction {
	switch v {
	case indicators.VerdictBuy:
		return signal.Buy
	case indicators.VerdictSell:
		return signal.Sell
	default:
		return signal.Hold
	}
}

// BuildLocal constructs the built-in indicator providers selected by
// name. Unknown names are reported rather than silently skipped.
func BuildLocal(names []string, feed broker.PriceFeed, market string) ([]signal.Fetcher, error) {
	fetchers := make([]signal.Fetcher, 0, len(names))
	for _, name := range names {
		var ind indicators.Indicator
		switch name {
		case "rsi":
			ind = indicators.NewRSI(14)
		case "sma":
			ind = indicators.NewSMACross(10, 30)
		case "macd":
			ind = indicators.NewMACD(12, 26, 9)
		case "bollinger":
			ind = indicators.NewBollingerBands(20, 2.0)
		default:
			return nil, fmt.Errorf("unknown signal provider %q", name)
		}
		fetchers = append(fetchers, NewIndicatorProvider(ind, feed, market))
	}
	return fetchers, nil
}
