// Package scoring implements the rule-based MVI risk score: fixed clinical
// thresholds award points, the point total maps to a probability through the
// published lookup table, and the probability maps to a risk tier.
package scoring

import (
	"fmt"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// Tier boundaries in percent. Lower bounds are inclusive.
const (
	ModerateTierFloor = 40.0
	HighTierFloor     = 70.0
)

// DefaultProbabilityTable maps the legacy point total to the published MVI
// probability in percent.
var DefaultProbabilityTable = map[int]float64{
	0: 30.8,
	1: 46.6,
	2: 63.1,
	3: 77.0,
	4: 86.7,
}

// Rules holds the thresholds, points and probability table of the legacy score.
type Rules struct {
	Thresholds       domain.Coefficients
	Points           domain.PointWeights
	ProbabilityTable map[int]float64
}

// DefaultRules returns AFP >= 20 (1 point), PIVKA-II >= 35 (2 points) and
// tumor burden >= 6.4 (1 point) with the published probability table.
func DefaultRules() Rules {
	return Rules{
		Thresholds:       domain.Coefficients{AFP: 20, PIVKAII: 35, TumorBurden: 6.4},
		Points:           domain.PointWeights{AFP: 1, PIVKAII: 2, TumorBurden: 1},
		ProbabilityTable: CopyTable(DefaultProbabilityTable),
	}
}

// RulesFromConfig overlays configured thresholds and points on the defaults.
// Zero values keep the default.
func RulesFromConfig(cfg domain.ScoringConfig) Rules {
	r := DefaultRules()
	if cfg.AFPThreshold > 0 {
		r.Thresholds.AFP = cfg.AFPThreshold
	}
	if cfg.PIVKAIIThreshold > 0 {
		r.Thresholds.PIVKAII = cfg.PIVKAIIThreshold
	}
	if cfg.TumorBurdenThreshold > 0 {
		r.Thresholds.TumorBurden = cfg.TumorBurdenThreshold
	}
	if cfg.AFPPoints > 0 {
		r.Points.AFP = cfg.AFPPoints
	}
	if cfg.PIVKAIIPoints > 0 {
		r.Points.PIVKAII = cfg.PIVKAIIPoints
	}
	if cfg.TumorBurdenPoints > 0 {
		r.Points.TumorBurden = cfg.TumorBurdenPoints
	}
	return r
}

// Scorer is the deterministic threshold scorer. The zero value is not usable;
// construct with NewScorer.
type Scorer struct {
	rules Rules
}

// Validate checks that every point total the rules can produce has a
// probability table entry.
func (r Rules) Validate() error {
	points := r.Points.Vector()
	for i, p := range points {
		if p < 0 {
			return fmt.Errorf("%s points must not be negative, got %d", domain.Features[i], p)
		}
	}
	table := r.ProbabilityTable
	if table == nil {
		table = DefaultProbabilityTable
	}
	for mask := 0; mask < 1<<len(points); mask++ {
		total := 0
		for i, p := range points {
			if mask&(1<<i) != 0 {
				total += p
			}
		}
		if _, ok := table[total]; !ok {
			return fmt.Errorf("point total %d has no probability table entry (points %d/%d/%d)",
				total, r.Points.AFP, r.Points.PIVKAII, r.Points.TumorBurden)
		}
	}
	return nil
}

// NewScorer creates a scorer over the given rules. Rules that can reach a
// point total missing from the probability table are rejected.
func NewScorer(rules Rules) (*Scorer, error) {
	if rules.ProbabilityTable == nil {
		rules.ProbabilityTable = CopyTable(DefaultProbabilityTable)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return &Scorer{rules: rules}, nil
}

// DefaultScorer returns a scorer over DefaultRules.
func DefaultScorer() *Scorer {
	s, err := NewScorer(DefaultRules())
	if err != nil {
		panic(err)
	}
	return s
}

// Rules returns a copy of the scorer's rules.
func (s *Scorer) Rules() Rules {
	r := s.rules
	r.ProbabilityTable = CopyTable(s.rules.ProbabilityTable)
	return r
}

// Score adds the points of every feature whose value meets or exceeds its threshold.
func (s *Scorer) Score(obs domain.Observation) int {
	thresholds := s.rules.Thresholds.Vector()
	points := s.rules.Points.Vector()

	score := 0
	for i, v := range obs.Vector() {
		if v >= thresholds[i] {
			score += points[i]
		}
	}
	return score
}

// ProbabilityFromPoints looks up the probability for a point total. Totals
// outside the table return 0.
func (s *Scorer) ProbabilityFromPoints(points int) float64 {
	return s.rules.ProbabilityTable[points]
}

// Evaluate scores an observation end to end on the legacy ladder.
func (s *Scorer) Evaluate(obs domain.Observation) domain.ScoreResult {
	points := s.Score(obs)
	probability := s.ProbabilityFromPoints(points)
	return domain.ScoreResult{
		Points:      points,
		Probability: probability,
		RiskTier:    RiskTierFromProbability(probability),
	}
}

// Explain lists the factors that contributed points, with the coefficient
// currently associated with each.
func (s *Scorer) Explain(obs domain.Observation, coefficients domain.Coefficients) []domain.Contribution {
	thresholds := s.rules.Thresholds.Vector()
	points := s.rules.Points.Vector()

	contributions := make([]domain.Contribution, 0, domain.NumFeatures)
	for i, v := range obs.Vector() {
		if v < thresholds[i] {
			continue
		}
		feature := domain.Features[i]
		contributions = append(contributions, domain.Contribution{
			Factor:      feature.Label(),
			Feature:     feature,
			Value:       v,
			Threshold:   thresholds[i],
			Points:      points[i],
			Coefficient: coefficients.Get(feature),
		})
	}
	return contributions
}

// RiskTierFromProbability maps a probability in percent to a tier:
// below 40 is LOW, below 70 is MODERATE, anything else HIGH.
func RiskTierFromProbability(probability float64) domain.RiskTier {
	switch {
	case probability < ModerateTierFloor:
		return domain.LOW
	case probability < HighTierFloor:
		return domain.MODERATE
	default:
		return domain.HIGH
	}
}

// CopyTable returns a copy of a probability table.
func CopyTable(table map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}
