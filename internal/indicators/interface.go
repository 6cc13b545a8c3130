package indicators

import "github.com/tradequorum/quorum-bot/pkg/types"

// Verdict is an indicator's opinion on the current market.
type Verdict int

const (
	VerdictHold Verdict = iota
	VerdictBuy
	VerdictSell
)

func (v Verdict) String() string {
	switch v {
	case VerdictBuy:
		return "BUY"
	case VerdictSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Indicator evaluates a candle series into a directional verdict with a
// confidence score in [0,100] and a human-readable reason.
type Indicator interface {
	Name() string
	RequiredPeriods() int
	Evaluate(data []types.OHLCV) (Verdict, float64, string, error)
}

func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func ema(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	value := sma(prices[:period])
	for _, p := range prices[period:] {
		value = (p-value)*multiplier + value
	}
	return value
}
