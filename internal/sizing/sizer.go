// Package sizing converts a trade verdict into a risk-bounded position
// size. All methods are pure: the same inputs always produce the same
// result, and degenerate inputs produce a zero-size result rather than
// an error.
package sizing

import (
	"math"
)

// Method names reported in sizing results.
const (
	MethodFixedRisk  = "fixed_risk"
	MethodKelly      = "kelly_criterion"
	MethodVolatility = "volatility_based"
	MethodIntegrated = "integrated"
)

const (
	kellyCap       = 0.25 // never bet more than a quarter of the bankroll
	kellyThreshold = 0.05 // below this edge Kelly is not worth acting on
)

// Config bounds every sizing result.
type Config struct {
	RiskPerTradePct     float64 // percent of balance risked per trade
	MinPositionSize     float64 // cash floor to avoid dust orders
	MaxPositionSize     float64 // cash ceiling, always wins
	MaxPortfolioRiskPct float64 // percent of balance allowed at risk in total
}

// Result is one sizing recommendation.
type Result struct {
	Method          string
	RecommendedSize int     // units, always >= 0
	PositionValue   float64 // RecommendedSize x entry
	RiskAmount      float64 // cash lost if the stop is hit
	RiskPercent     float64 // RiskAmount as percent of balance
	Confidence      float64 // [0,100]
}

// KellyResult augments a Result with the raw Kelly fraction.
type KellyResult struct {
	Result
	KellyPercent  float64 // clamped fraction of bankroll, [0,0.25]
	IsRecommended bool    // true when the clamped fraction exceeds the threshold
}

// Sizer computes position sizes under a fixed configuration.
type Sizer struct {
	cfg Config
}

// NewSizer creates a position sizer.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// clampToMax shrinks size so size x entry never exceeds MaxPositionSize.
func (s *Sizer) clampToMax(size int, entry float64) int {
	if entry <= 0 {
		return 0
	}
	maxUnits := int(math.Floor(s.cfg.MaxPositionSize / entry))
	if size > maxUnits {
		return maxUnits
	}
	return size
}

func (s *Sizer) result(method string, size int, entry, riskPerShare, balance, confidence float64) Result {
	if size < 0 {
		size = 0
	}
	riskAmount := float64(size) * riskPerShare
	riskPercent := 0.0
	if balance > 0 {
		riskPercent = riskAmount / balance * 100
	}
	return Result{
		Method:          method,
		RecommendedSize: size,
		PositionValue:   float64(size) * entry,
		RiskAmount:      riskAmount,
		RiskPercent:     riskPercent,
		Confidence:      confidence,
	}
}

// FixedRisk sizes so that hitting the stop loses riskPct percent of the
// balance. A zero distance between entry and stop yields a zero-size
// result, not an error.
func (s *Sizer) FixedRisk(balance, entry, stop, riskPct float64) Result {
	riskPerShare := math.Abs(entry - stop)
	if riskPerShare == 0 || entry <= 0 || balance <= 0 || riskPct <= 0 {
		return s.result(MethodFixedRisk, 0, entry, riskPerShare, balance, 0)
	}

	riskAmount := balance * riskPct / 100
	size := int(math.Floor(riskAmount / riskPerShare))
	size = s.clampToMax(size, entry)
	return s.result(MethodFixedRisk, size, entry, riskPerShare, balance, 80)
}

// KellyCriterion sizes by the Kelly bankroll fraction, clamped to
// [0, 0.25]. Degenerate statistics always produce a zero fraction.
func (s *Sizer) KellyCriterion(balance, entry, winRatePct, avgWin, avgLoss float64) KellyResult {
	degenerate := winRatePct <= 0 || winRatePct >= 100 || avgLoss <= 0 || avgWin <= 0 || entry <= 0 || balance <= 0
	if degenerate {
		return KellyResult{
			Result:        s.result(MethodKelly, 0, entry, 0, balance, 0),
			KellyPercent:  0,
			IsRecommended: false,
		}
	}

	p := winRatePct / 100
	kelly := (p*avgWin - (1-p)*avgLoss) / avgWin
	kelly = math.Max(0, math.Min(kelly, kellyCap))
	recommended := kelly > kellyThreshold

	size := int(math.Floor(balance * kelly / entry))
	size = s.clampToMax(size, entry)

	confidence := 0.0
	if recommended {
		confidence = math.Min(100, kelly/kellyCap*100)
	}
	// the whole stake is at risk under the Kelly model
	return KellyResult{
		Result:        s.result(MethodKelly, size, entry, entry, balance, confidence),
		KellyPercent:  kelly,
		IsRecommended: recommended,
	}
}

// VolatilityBased derives the stop from recent volatility and scales
// the risk budget down as volatility rises.
func (s *Sizer) VolatilityBased(balance, entry, volatilityPct, riskPct float64) Result {
	if volatilityPct <= 0 || entry <= 0 || balance <= 0 || riskPct <= 0 {
		return s.result(MethodVolatility, 0, entry, 0, balance, 0)
	}

	impliedStop := entry * (1 - volatilityPct/100)
	riskPerShare := entry - impliedStop
	if riskPerShare <= 0 {
		return s.result(MethodVolatility, 0, entry, 0, balance, 0)
	}

	baseRisk := balance * riskPct / 100
	scale := math.Min(volatilityPct/20, 2)
	size := int(math.Floor(baseRisk / (riskPerShare * scale)))
	size = s.clampToMax(size, entry)
	return s.result(MethodVolatility, size, entry, riskPerShare, balance, 70)
}

// IntegratedInput carries everything the blended method needs.
type IntegratedInput struct {
	Balance           float64
	Entry             float64
	Stop              float64
	VolatilityPct     float64
	WinRatePct        float64
	AvgWin            float64
	AvgLoss           float64
	PortfolioRiskUsed float64 // cash already at risk across open positions
}

// Integrated blends the three methods, weighting Kelly in only when its
// edge clears the recommendation threshold. Clamps apply in a fixed
// order: the remaining portfolio-risk budget first, then the absolute
// minimum (which overrides a tighter risk cap to avoid dust orders),
// then the absolute maximum, which always wins.
func (s *Sizer) Integrated(in IntegratedInput) Result {
	fixed := s.FixedRisk(in.Balance, in.Entry, in.Stop, s.cfg.RiskPerTradePct)
	vol := s.VolatilityBased(in.Balance, in.Entry, in.VolatilityPct, s.cfg.RiskPerTradePct)
	kelly := s.KellyCriterion(in.Balance, in.Entry, in.WinRatePct, in.AvgWin, in.AvgLoss)

	var blended float64
	var confidence float64
	if kelly.IsRecommended {
		blended = 0.4*float64(fixed.RecommendedSize) +
			0.3*float64(vol.RecommendedSize) +
			0.3*float64(kelly.RecommendedSize)
		confidence = 90
	} else {
		blended = 0.6*float64(fixed.RecommendedSize) + 0.4*float64(vol.RecommendedSize)
		confidence = 75
	}

	size := int(math.Floor(blended))
	riskPerShare := math.Abs(in.Entry - in.Stop)

	// 1. remaining portfolio-risk budget
	if riskPerShare > 0 {
		remaining := s.cfg.MaxPortfolioRiskPct/100*in.Balance - in.PortfolioRiskUsed
		if remaining < 0 {
			remaining = 0
		}
		budgetUnits := int(math.Floor(remaining / riskPerShare))
		if size > budgetUnits {
			size = budgetUnits
		}
	}

	// 2. absolute minimum, raised back up even past a tighter risk cap.
	// Degenerate inputs (blended zero) stay zero: no dust-avoidance bump
	// for a trade no method wanted.
	if blended > 0 && in.Entry > 0 && float64(size)*in.Entry < s.cfg.MinPositionSize {
		size = int(math.Ceil(s.cfg.MinPositionSize / in.Entry))
	}

	// 3. absolute maximum always wins
	size = s.clampToMax(size, in.Entry)

	return s.result(MethodIntegrated, size, in.Entry, riskPerShare, in.Balance, confidence)
}
