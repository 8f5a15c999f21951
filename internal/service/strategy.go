package service

import (
	"github.com/hcc-mvi-risk-server/internal/calibration"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/scoring"
)

// Strategy turns an observation into points, probability and tier. One
// strategy produces all three so they are never mixed across models.
type Strategy interface {
	Name() domain.Strategy
	Version() int64
	Evaluate(obs domain.Observation) domain.ScoreResult
}

// LegacyStrategy scores with the fixed thresholds and published table.
type LegacyStrategy struct {
	Scorer *scoring.Scorer
}

func (LegacyStrategy) Name() domain.Strategy { return domain.StrategyLegacy }
func (LegacyStrategy) Version() int64        { return 0 }

func (s LegacyStrategy) Evaluate(obs domain.Observation) domain.ScoreResult {
	return s.Scorer.Evaluate(obs)
}

// CalibratedStrategy scores with a published model state: the logistic
// probability decides the bucket, and the tier follows the probability.
type CalibratedStrategy struct {
	State *domain.ModelState
}

func (CalibratedStrategy) Name() domain.Strategy { return domain.StrategyCalibrated }
func (s CalibratedStrategy) Version() int64      { return s.State.Version }

func (s CalibratedStrategy) Evaluate(obs domain.Observation) domain.ScoreResult {
	p := calibration.PredictProbability(s.State, obs)
	probability := p * 100
	return domain.ScoreResult{
		Points:      calibration.PointsFromProbability(p, s.State.CutPoints),
		Probability: probability,
		RiskTier:    scoring.RiskTierFromProbability(probability),
	}
}
