// Package service wires scoring, calibration and storage into the operations
// exposed by the API, MCP and CLI front ends.
package service

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/cache"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/scoring"
)

// Predictor is the prediction facade. It uses the calibrated model when one is
// resident and falls back to the legacy score otherwise.
type Predictor struct {
	logger *logrus.Logger
	scorer *scoring.Scorer
	holder *modelstate.Holder
	cache  *cache.MemoryCache
}

// NewPredictor creates a predictor. The cache is optional.
func NewPredictor(logger *logrus.Logger, scorer *scoring.Scorer, holder *modelstate.Holder, predictionCache *cache.MemoryCache) *Predictor {
	return &Predictor{
		logger: logger,
		scorer: scorer,
		holder: holder,
		cache:  predictionCache,
	}
}

// Strategy returns the strategy currently in effect.
func (p *Predictor) Strategy() Strategy {
	if state := p.holder.Load(); state != nil {
		return CalibratedStrategy{State: state}
	}
	return LegacyStrategy{Scorer: p.scorer}
}

// Predict scores an observation. adjustment is added to the point total for
// TotalScore only; it does not affect probability or tier.
func (p *Predictor) Predict(obs domain.Observation, adjustment int) (*domain.Prediction, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	strategy := p.Strategy()

	var key string
	if p.cache != nil {
		key = cache.PredictionKey(strategy.Name(), strategy.Version(), obs, adjustment)
		if cached, ok := p.cache.Get(key); ok {
			return cached, nil
		}
	}

	result := strategy.Evaluate(obs)
	if math.IsNaN(result.Probability) || math.IsInf(result.Probability, 0) {
		p.logger.WithFields(logrus.Fields{
			"strategy":      strategy.Name(),
			"model_version": strategy.Version(),
		}).Warn("Model produced a non-finite probability, falling back to legacy score")
		strategy = LegacyStrategy{Scorer: p.scorer}
		result = strategy.Evaluate(obs)
		key = ""
	}

	prediction := &domain.Prediction{
		Probability:     result.Probability,
		Points:          result.Points,
		TotalScore:      result.Points + adjustment,
		RiskTier:        result.RiskTier,
		Strategy:        strategy.Name(),
		ModelVersion:    strategy.Version(),
		Recommendations: scoring.Recommendations(result.RiskTier),
	}

	if p.cache != nil && key != "" {
		p.cache.Set(key, prediction)
	}

	p.logger.WithFields(logrus.Fields(prediction.LogFields())).Debug("Prediction computed")
	return prediction, nil
}

// Explain lists the threshold factors the observation meets, annotated with the
// coefficients currently in effect.
func (p *Predictor) Explain(obs domain.Observation) ([]domain.Contribution, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return p.scorer.Explain(obs, p.Coefficients()), nil
}

// Coefficients returns the calibrated coefficients, or the published defaults
// before any calibration.
func (p *Predictor) Coefficients() domain.Coefficients {
	if state := p.holder.Load(); state != nil {
		return state.Coefficients
	}
	return domain.DefaultCoefficients
}

// Summary describes the model in effect.
func (p *Predictor) Summary() domain.Summary {
	state := p.holder.Load()
	if state == nil {
		rules := p.scorer.Rules()
		return domain.Summary{
			Strategy:           domain.StrategyLegacy,
			Coefficients:       domain.DefaultCoefficients,
			PointWeights:       rules.Points,
			ProbabilityByScore: rules.ProbabilityTable,
		}
	}

	trainedAt := state.TrainedAt
	return domain.Summary{
		Strategy:           domain.StrategyCalibrated,
		Version:            state.Version,
		TrainedAt:          &trainedAt,
		SampleSize:         state.SampleSize,
		Coefficients:       state.Coefficients,
		PointWeights:       state.PointWeights,
		ProbabilityByScore: scoring.CopyTable(state.ProbabilityByScore),
	}
}
