package indicators

import (
	"errors"
	"fmt"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// MACD votes on crossovers between the MACD line and its signal line.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD indicator (typically 12/26/9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fastPeriod: fast, slowPeriod: slow, signalPeriod: signal}
}

func (m *MACD) Name() string { return "macd" }

func (m *MACD) RequiredPeriods() int { return m.slowPeriod + m.signalPeriod }

// macdSeries computes the MACD line for every index where it is defined.
func (m *MACD) macdSeries(prices []float64) []float64 {
	if len(prices) < m.slowPeriod {
		return nil
	}
	series := make([]float64, 0, len(prices)-m.slowPeriod+1)
	for i := m.slowPeriod; i <= len(prices); i++ {
		window := prices[:i]
		series = append(series, ema(window, m.fastPeriod)-ema(window, m.slowPeriod))
	}
	return series
}

func (m *MACD) Evaluate(data []types.OHLCV) (Verdict, float64, string, error) {
	prices := types.Closes(data)
	series := m.macdSeries(prices)
	if len(series) < m.signalPeriod+1 {
		return VerdictHold, 0, "", errors.New("insufficient data for MACD analysis")
	}

	macdLine := series[len(series)-1]
	prevMACD := series[len(series)-2]
	signalLine := ema(series, m.signalPeriod)
	prevSignal := ema(series[:len(series)-1], m.signalPeriod)
	histogram := macdLine - signalLine

	bullishCross := prevMACD <= prevSignal && macdLine > signalLine
	bearishCross := prevMACD >= prevSignal && macdLine < signalLine

	switch {
	case bullishCross:
		return VerdictBuy, 75, fmt.Sprintf("MACD bullish crossover (histogram %.4f)", histogram), nil
	case bearishCross:
		return VerdictSell, 75, fmt.Sprintf("MACD bearish crossover (histogram %.4f)", histogram), nil
	case histogram > 0:
		return VerdictBuy, 55, "MACD above signal line", nil
	case histogram < 0:
		return VerdictSell, 55, "MACD below signal line", nil
	default:
		return VerdictHold, 50, "MACD flat", nil
	}
}
