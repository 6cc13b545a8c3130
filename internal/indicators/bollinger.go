package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// BollingerBands votes on the price position within the bands.
type BollingerBands struct {
	period         int
	stdDevMultiple float64
}

// NewBollingerBands creates a Bollinger Bands indicator (typically 20, 2.0).
func NewBollingerBands(period int, stdDev float64) *BollingerBands {
	return &BollingerBands{period: period, stdDevMultiple: stdDev}
}

func (bb *BollingerBands) Name() string { return "bollinger" }

func (bb *BollingerBands) RequiredPeriods() int { return bb.period }

// Calculate returns the band levels and the price position within them
// as a percentage (0 = lower band, 100 = upper band).
func (bb *BollingerBands) Calculate(prices []float64) (upper, middle, lower, position float64, err error) {
	if len(prices) < bb.period {
		return 0, 0, 0, 0, errors.New("insufficient data for Bollinger Bands")
	}

	recent := prices[len(prices)-bb.period:]
	middle = sma(recent)

	variance := 0.0
	for _, p := range recent {
		variance += (p - middle) * (p - middle)
	}
	stdDev := math.Sqrt(variance / float64(len(recent)))

	upper = middle + bb.stdDevMultiple*stdDev
	lower = middle - bb.stdDevMultiple*stdDev

	current := prices[len(prices)-1]
	if upper == lower {
		position = 50
	} else {
		position = (current - lower) / (upper - lower) * 100
	}
	return upper, middle, lower, position, nil
}

func (bb *BollingerBands) Evaluate(data []types.OHLCV) (Verdict, float64, string, error) {
	_, _, _, position, err := bb.Calculate(types.Closes(data))
	if err != nil {
		return VerdictHold, 0, "", err
	}

	switch {
	case position < 20:
		confidence := math.Min(100, 60+(20-position)*2)
		return VerdictBuy, confidence, fmt.Sprintf("price at %.0f%% of band range (near lower band)", position), nil
	case position > 80:
		confidence := math.Min(100, 60+(position-80)*2)
		return VerdictSell, confidence, fmt.Sprintf("price at %.0f%% of band range (near upper band)", position), nil
	default:
		return VerdictHold, 50, fmt.Sprintf("price at %.0f%% of band range", position), nil
	}
}

// Volatility estimates recent volatility as the band width relative to
// the middle band, in percent. The sizer uses it for volatility-scaled
// position sizing.
func (bb *BollingerBands) Volatility(data []types.OHLCV) (float64, error) {
	upper, middle, lower, _, err := bb.Calculate(types.Closes(data))
	if err != nil {
		return 0, err
	}
	if middle == 0 {
		return 0, errors.New("degenerate middle band")
	}
	return (upper - lower) / middle * 100, nil
}
