package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// RSI votes BUY when the market is oversold and SELL when overbought.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSI creates an RSI indicator with the standard 30/70 bands.
func NewRSI(period int) *RSI {
	return &RSI{period: period, oversold: 30, overbought: 70}
}

func (r *RSI) Name() string { return "rsi" }

func (r *RSI) RequiredPeriods() int { return r.period + 1 }

// Calculate computes the RSI value for the latest candle.
func (r *RSI) Calculate(prices []float64) (float64, error) {
	if len(prices) < r.period+1 {
		return 0, errors.New("insufficient data for RSI calculation")
	}

	gains := make([]float64, 0, r.period)
	losses := make([]float64, 0, r.period)
	for i := len(prices) - r.period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, math.Abs(change))
		}
	}

	avgGain := sma(gains)
	avgLoss := sma(losses)
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

func (r *RSI) Evaluate(data []types.OHLCV) (Verdict, float64, string, error) {
	value, err := r.Calculate(types.Closes(data))
	if err != nil {
		return VerdictHold, 0, "", err
	}

	switch {
	case value < r.oversold:
		// deeper oversold reads as stronger conviction
		confidence := math.Min(100, 60+(r.oversold-value)*2)
		return VerdictBuy, confidence, fmt.Sprintf("RSI %.1f below %.0f (oversold)", value, r.oversold), nil
	case value > r.overbought:
		confidence := math.Min(100, 60+(value-r.overbought)*2)
		return VerdictSell, confidence, fmt.Sprintf("RSI %.1f above %.0f (overbought)", value, r.overbought), nil
	default:
		return VerdictHold, 50, fmt.Sprintf("RSI %.1f in neutral zone", value), nil
	}
}
