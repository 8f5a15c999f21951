package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

func TestScorer_AllBelowThreshold(t *testing.T) {
	scorer := DefaultScorer()

	observations := []domain.Observation{
		{AFP: 10, PIVKAII: 20, TumorBurden: 3.0},
		{AFP: 0, PIVKAII: 0, TumorBurden: 0},
		{AFP: 19.99, PIVKAII: 34.99, TumorBurden: 6.39},
	}

	for _, obs := range observations {
		result := scorer.Evaluate(obs)
		assert.Equal(t, 0, result.Points, obs.String())
		assert.Equal(t, 30.8, result.Probability, obs.String())
		assert.Equal(t, domain.LOW, result.RiskTier, obs.String())
	}
}

func TestScorer_AllAtOrAboveThreshold(t *testing.T) {
	scorer := DefaultScorer()

	observations := []domain.Observation{
		{AFP: 25, PIVKAII: 40, TumorBurden: 7.0},
		{AFP: 20, PIVKAII: 35, TumorBurden: 6.4},
		{AFP: 10000, PIVKAII: 5000, TumorBurden: 30},
	}

	for _, obs := range observations {
		result := scorer.Evaluate(obs)
		assert.Equal(t, 4, result.Points, obs.String())
		assert.Equal(t, 86.7, result.Probability, obs.String())
		assert.Equal(t, domain.HIGH, result.RiskTier, obs.String())
	}
}

func TestScorer_Score(t *testing.T) {
	scorer := DefaultScorer()

	tests := []struct {
		name     string
		obs      domain.Observation
		expected int
	}{
		{"afp only", domain.Observation{AFP: 20, PIVKAII: 0, TumorBurden: 0}, 1},
		{"pivka only", domain.Observation{AFP: 0, PIVKAII: 35, TumorBurden: 0}, 2},
		{"burden only", domain.Observation{AFP: 0, PIVKAII: 0, TumorBurden: 6.4}, 1},
		{"afp and burden", domain.Observation{AFP: 21, PIVKAII: 10, TumorBurden: 8}, 2},
		{"pivka and burden", domain.Observation{AFP: 1, PIVKAII: 100, TumorBurden: 8}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Score(tt.obs))
		})
	}
}

func TestScorer_ProbabilityFromPoints(t *testing.T) {
	scorer := DefaultScorer()

	for points, expected := range DefaultProbabilityTable {
		assert.Equal(t, expected, scorer.ProbabilityFromPoints(points))
	}

	// Totals outside the table fall back to 0 rather than failing.
	assert.Equal(t, 0.0, scorer.ProbabilityFromPoints(-1))
	assert.Equal(t, 0.0, scorer.ProbabilityFromPoints(5))
	assert.Equal(t, domain.LOW, RiskTierFromProbability(scorer.ProbabilityFromPoints(99)))
}

func TestRiskTierFromProbability(t *testing.T) {
	tests := []struct {
		probability float64
		expected    domain.RiskTier
	}{
		{0, domain.LOW},
		{30.8, domain.LOW},
		{39.999, domain.LOW},
		{40.0, domain.MODERATE},
		{63.1, domain.MODERATE},
		{69.999, domain.MODERATE},
		{70.0, domain.HIGH},
		{86.7, domain.HIGH},
		{100, domain.HIGH},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RiskTierFromProbability(tt.probability), "probability %v", tt.probability)
	}
}

func TestRiskTierFromProbability_Monotonic(t *testing.T) {
	rank := map[domain.RiskTier]int{domain.LOW: 0, domain.MODERATE: 1, domain.HIGH: 2}

	previous := RiskTierFromProbability(0)
	for p := 0.0; p <= 100.0; p += 0.25 {
		current := RiskTierFromProbability(p)
		require.GreaterOrEqual(t, rank[current], rank[previous], "tier decreased at %v", p)
		previous = current
	}
}

func TestScorer_Explain(t *testing.T) {
	scorer := DefaultScorer()

	contributions := scorer.Explain(domain.Observation{AFP: 25, PIVKAII: 10, TumorBurden: 7}, domain.DefaultCoefficients)

	require.Len(t, contributions, 2)
	assert.Equal(t, "AFP", contributions[0].Factor)
	assert.Equal(t, 1, contributions[0].Points)
	assert.Equal(t, 20.0, contributions[0].Threshold)
	assert.Equal(t, 0.647, contributions[0].Coefficient)
	assert.Equal(t, "Tumor Burden", contributions[1].Factor)
	assert.Equal(t, 0.916, contributions[1].Coefficient)

	assert.Empty(t, scorer.Explain(domain.Observation{}, domain.DefaultCoefficients))
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(domain.ScoringConfig{AFPThreshold: 200, PIVKAIIPoints: 3})

	assert.Equal(t, 200.0, rules.Thresholds.AFP)
	assert.Equal(t, 35.0, rules.Thresholds.PIVKAII)
	assert.Equal(t, 3, rules.Points.PIVKAII)
	assert.Equal(t, 1, rules.Points.AFP)
	assert.Equal(t, DefaultProbabilityTable, rules.ProbabilityTable)
}

func TestScorer_RulesReturnsCopy(t *testing.T) {
	scorer := DefaultScorer()

	rules := scorer.Rules()
	rules.ProbabilityTable[0] = 99

	assert.Equal(t, 30.8, scorer.ProbabilityFromPoints(0))
}

func TestRecommendations(t *testing.T) {
	low := Recommendations(domain.LOW)
	require.Len(t, low, 4)
	assert.Equal(t, "Regular follow-up every 6 months.", low[0])

	high := Recommendations(domain.HIGH)
	assert.Equal(t, "Proceed with adjuvant therapy.", high[0])

	assert.Equal(t, "Regular follow-up every 4 months.", Recommendations(domain.MODERATE)[0])

	// The returned slice is a copy.
	low[0] = "changed"
	assert.Equal(t, "Regular follow-up every 6 months.", Recommendations(domain.LOW)[0])
}

func TestNewScorer_RejectsUnreachableTotals(t *testing.T) {
	rules := DefaultRules()
	rules.Points.AFP = 2

	scorer, err := NewScorer(rules)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
	assert.Nil(t, scorer)

	rules = DefaultRules()
	delete(rules.ProbabilityTable, 3)
	_, err = NewScorer(rules)
	assert.Error(t, err)

	rules = DefaultRules()
	rules.Points.PIVKAII = -1
	_, err = NewScorer(rules)
	assert.Error(t, err)
}

func TestNewScorer_EveryReachableTotalHasProbability(t *testing.T) {
	rules := DefaultRules()
	rules.Points = domain.PointWeights{AFP: 2, PIVKAII: 1, TumorBurden: 1}

	scorer, err := NewScorer(rules)
	require.NoError(t, err)

	result := scorer.Evaluate(domain.Observation{AFP: 25, PIVKAII: 40, TumorBurden: 7})
	assert.Equal(t, 4, result.Points)
	assert.Equal(t, 86.7, result.Probability)
	assert.Equal(t, domain.HIGH, result.RiskTier)
}
