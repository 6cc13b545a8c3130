package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/tradequorum/quorum-bot/pkg/types"
)

// SMACross votes on the fast/slow moving-average relationship.
type SMACross struct {
	fastPeriod int
	slowPeriod int
}

// NewSMACross creates a moving-average crossover indicator.
func NewSMACross(fast, slow int) *SMACross {
	return &SMACross{fastPeriod: fast, slowPeriod: slow}
}

func (s *SMACross) Name() string { return "sma" }

func (s *SMACross) RequiredPeriods() int { return s.slowPeriod }

func (s *SMACross) Evaluate(data []types.OHLCV) (Verdict, float64, string, error) {
	if len(data) < s.slowPeriod {
		return VerdictHold, 0, "", errors.New("insufficient data for SMA crossover")
	}

	prices := types.Closes(data)
	fast := sma(prices[len(prices)-s.fastPeriod:])
	slow := sma(prices[len(prices)-s.slowPeriod:])
	if slow == 0 {
		return VerdictHold, 0, "", errors.New("degenerate SMA value")
	}

	// spread between the averages, as a fraction of the slow average
	spread := (fast - slow) / slow
	confidence := math.Min(100, 50+math.Abs(spread)*2000)

	switch {
	case spread > 0.005:
		return VerdictBuy, confidence, fmt.Sprintf("SMA%d above SMA%d by %.2f%%", s.fastPeriod, s.slowPeriod, spread*100), nil
	case spread < -0.005:
		return VerdictSell, confidence, fmt.Sprintf("SMA%d below SMA%d by %.2f%%", s.fastPeriod, s.slowPeriod, -spread*100), nil
	default:
		return VerdictHold, 50, "moving averages converged", nil
	}
}
