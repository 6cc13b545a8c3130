package broker

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// SyntheticFeed generates a deterministic price series for paper
// trading. The same symbol always produces the same curve, so dry runs
// are reproducible end to end.
type SyntheticFeed struct {
	basePrice float64
	origin    time.Time
}

// NewSyntheticFeed creates a feed oscillating around basePrice.
func NewSyntheticFeed(basePrice float64) *SyntheticFeed {
	return &SyntheticFeed{basePrice: basePrice, origin: time.Now().Truncate(24 * time.Hour)}
}

func (f *SyntheticFeed) priceAt(symbol string, t time.Time) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	phase := float64(h.Sum32()%360) * math.Pi / 180

	elapsed := t.Sub(f.origin).Hours()
	// two overlapping waves: a slow trend and a faster oscillation
	trend := math.Sin(elapsed/48+phase) * 0.10
	wobble := math.Sin(elapsed/3+phase*2) * 0.03
	return f.basePrice * (1 + trend + wobble)
}

func (f *SyntheticFeed) GetCurrentPrice(_ context.Context, symbol, _ string) (float64, error) {
	return f.priceAt(symbol, time.Now()), nil
}

func (f *SyntheticFeed) GetHistoricalData(_ context.Context, symbol, _ string, days int) ([]types.OHLCV, error) {
	if days <= 0 {
		days = 30
	}
	now := time.Now()
	candles := make([]types.OHLCV, 0, days)
	for i := days - 1; i >= 0; i-- {
		ts := now.Add(-time.Duration(i) * 24 * time.Hour)
		open := f.priceAt(symbol, ts.Add(-12*time.Hour))
		closePrice := f.priceAt(symbol, ts)
		high := math.Max(open, closePrice) * 1.005
		low := math.Min(open, closePrice) * 0.995
		candles = append(candles, types.OHLCV{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000,
			Timestamp: ts,
		})
	}
	return candles, nil
}
