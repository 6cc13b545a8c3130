package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSizer() *Sizer {
	return NewSizer(Config{
		RiskPerTradePct:     2,
		MinPositionSize:     10,
		MaxPositionSize:     1_000_000,
		MaxPortfolioRiskPct: 10,
	})
}

// TestFixedRisk_Reference checks the canonical case: a $1,000,000
// balance risking 2% with a $50 stop distance buys 400 units.
func TestFixedRisk_Reference(t *testing.T) {
	s := newTestSizer()

	result := s.FixedRisk(1_000_000, 1000, 950, 2)

	assert.Equal(t, 400, result.RecommendedSize)
	assert.InDelta(t, 400_000.0, result.PositionValue, 0.001)
	assert.InDelta(t, 20_000.0, result.RiskAmount, 0.001)
	assert.InDelta(t, 2.0, result.RiskPercent, 0.001)
}

// TestFixedRisk_ZeroStopDistance verifies a stop at the entry yields a
// zero-size result instead of an error or a division blowup.
func TestFixedRisk_ZeroStopDistance(t *testing.T) {
	s := newTestSizer()

	result := s.FixedRisk(10_000, 1000, 1000, 2)
	assert.Equal(t, 0, result.RecommendedSize)
	assert.Equal(t, 0.0, result.RiskAmount)
}

// TestFixedRisk_DegenerateInputs verifies all degenerate inputs return
// zero-size results.
func TestFixedRisk_DegenerateInputs(t *testing.T) {
	s := newTestSizer()

	tests := []struct {
		name                     string
		balance, entry, stop, pct float64
	}{
		{"zero balance", 0, 1000, 950, 2},
		{"zero entry", 10_000, 0, 950, 2},
		{"zero risk pct", 10_000, 1000, 950, 0},
		{"negative balance", -5000, 1000, 950, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.FixedRisk(tt.balance, tt.entry, tt.stop, tt.pct)
			assert.Equal(t, 0, result.RecommendedSize)
		})
	}
}

// TestKellyCriterion_PositiveEdge verifies a clear edge produces a
// recommended non-zero fraction capped at a quarter of the bankroll.
func TestKellyCriterion_PositiveEdge(t *testing.T) {
	s := newTestSizer()

	// p=0.6, avgWin=100, avgLoss=50: kelly = (0.6*100 - 0.4*50)/100 = 0.40 -> capped to 0.25
	result := s.KellyCriterion(10_000, 100, 60, 100, 50)

	assert.True(t, result.IsRecommended)
	assert.InDelta(t, 0.25, result.KellyPercent, 0.0001)
	assert.Equal(t, 25, result.RecommendedSize)
}

// TestKellyCriterion_NegativeEdge verifies a losing edge clamps to zero
// and is not recommended.
func TestKellyCriterion_NegativeEdge(t *testing.T) {
	s := newTestSizer()

	// p=0.3, avgWin=50, avgLoss=100: kelly = (0.3*50 - 0.7*100)/50 < 0 -> 0
	result := s.KellyCriterion(10_000, 100, 30, 50, 100)

	assert.False(t, result.IsRecommended)
	assert.Equal(t, 0.0, result.KellyPercent)
	assert.Equal(t, 0, result.RecommendedSize)
}

// TestKellyCriterion_DegenerateStats verifies impossible statistics
// yield a zero, non-recommended result.
func TestKellyCriterion_DegenerateStats(t *testing.T) {
	s := newTestSizer()

	tests := []struct {
		name                               string
		winRate, avgWin, avgLoss float64
	}{
		{"zero win rate", 0, 100, 50},
		{"full win rate", 100, 100, 50},
		{"zero avg win", 60, 0, 50},
		{"zero avg loss", 60, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.KellyCriterion(10_000, 100, tt.winRate, tt.avgWin, tt.avgLoss)
			assert.False(t, result.IsRecommended)
			assert.Equal(t, 0, result.RecommendedSize)
		})
	}
}

// TestVolatilityBased_ScalesDown verifies higher volatility shrinks the
// position.
func TestVolatilityBased_ScalesDown(t *testing.T) {
	s := newTestSizer()

	calm := s.VolatilityBased(10_000, 100, 2, 2)
	wild := s.VolatilityBased(10_000, 100, 10, 2)

	assert.Greater(t, calm.RecommendedSize, wild.RecommendedSize)
	assert.Greater(t, wild.RecommendedSize, 0)
}

// TestVolatilityBased_ZeroVolatility verifies missing volatility data
// yields a zero-size result.
func TestVolatilityBased_ZeroVolatility(t *testing.T) {
	s := newTestSizer()
	result := s.VolatilityBased(10_000, 100, 0, 2)
	assert.Equal(t, 0, result.RecommendedSize)
}

// TestIntegrated_BlendsWithKelly verifies the Kelly-weighted blend and
// higher confidence when Kelly recommends.
func TestIntegrated_BlendsWithKelly(t *testing.T) {
	s := newTestSizer()

	result := s.Integrated(IntegratedInput{
		Balance:       100_000,
		Entry:         100,
		Stop:          95,
		VolatilityPct: 5,
		WinRatePct:    60,
		AvgWin:        100,
		AvgLoss:       50,
	})

	assert.Equal(t, MethodIntegrated, result.Method)
	assert.Greater(t, result.RecommendedSize, 0)
	assert.Equal(t, 90.0, result.Confidence)
}

// TestIntegrated_WithoutKelly verifies the two-way blend and lower
// confidence when the Kelly edge is below threshold.
func TestIntegrated_WithoutKelly(t *testing.T) {
	s := newTestSizer()

	result := s.Integrated(IntegratedInput{
		Balance:       100_000,
		Entry:         100,
		Stop:          95,
		VolatilityPct: 5,
		WinRatePct:    30,
		AvgWin:        50,
		AvgLoss:       100,
	})

	assert.Greater(t, result.RecommendedSize, 0)
	assert.Equal(t, 75.0, result.Confidence)
}

// TestIntegrated_PortfolioBudgetCap verifies risk already deployed
// shrinks the new position.
func TestIntegrated_PortfolioBudgetCap(t *testing.T) {
	s := newTestSizer()

	free := s.Integrated(IntegratedInput{
		Balance: 100_000, Entry: 100, Stop: 95, VolatilityPct: 5,
	})
	committed := s.Integrated(IntegratedInput{
		Balance: 100_000, Entry: 100, Stop: 95, VolatilityPct: 5,
		PortfolioRiskUsed: 9_000, // 9% of the 10% budget already in use
	})

	assert.Greater(t, free.RecommendedSize, committed.RecommendedSize)
}

// TestIntegrated_MinimumBumpSkipsDegenerate verifies the dust-avoidance
// bump never inflates a trade no method wanted.
func TestIntegrated_MinimumBumpSkipsDegenerate(t *testing.T) {
	s := newTestSizer()

	result := s.Integrated(IntegratedInput{
		Balance: 0, Entry: 100, Stop: 95,
	})
	assert.Equal(t, 0, result.RecommendedSize)
}

// TestIntegrated_MaxAlwaysWins verifies the absolute maximum overrides
// every other clamp, including the minimum bump.
func TestIntegrated_MaxAlwaysWins(t *testing.T) {
	s := NewSizer(Config{
		RiskPerTradePct:     50,
		MinPositionSize:     10,
		MaxPositionSize:     500,
		MaxPortfolioRiskPct: 100,
	})

	result := s.Integrated(IntegratedInput{
		Balance: 1_000_000, Entry: 100, Stop: 50, VolatilityPct: 5,
	})

	assert.LessOrEqual(t, result.PositionValue, 500.0)
}

// TestIntegrated_MaxExactBoundary verifies a position worth exactly the
// maximum passes unclamped while one more unit is cut back down.
func TestIntegrated_MaxExactBoundary(t *testing.T) {
	s := NewSizer(Config{
		RiskPerTradePct:     2,
		MaxPositionSize:     4_000,
		MaxPortfolioRiskPct: 100,
	})

	// every method saturates at the 40-unit cap, so the blend lands on
	// the boundary exactly: 40 x 100 == 4,000
	result := s.Integrated(IntegratedInput{
		Balance:       100_000,
		Entry:         100,
		Stop:          70,
		VolatilityPct: 30,
		WinRatePct:    60,
		AvgWin:        2,
		AvgLoss:       1,
	})
	assert.Equal(t, 40, result.RecommendedSize)
	assert.Equal(t, 4_000.0, result.PositionValue)

	assert.Equal(t, 40, s.clampToMax(40, 100)) // on the cap, untouched
	assert.Equal(t, 40, s.clampToMax(41, 100)) // one unit over, clamped
}
