// Package calibration refits the MVI risk model from labeled outcomes. A run
// standardizes the batch, fits an L2-regularized logistic regression, derives
// integer point weights from the coefficients and rebuilds the
// probability-by-score table from the model's own predictions.
package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/scoring"
)

// DefaultCutPoints split predicted probability into five buckets.
var DefaultCutPoints = []float64{0.30, 0.45, 0.60, 0.75}

// Options tunes a calibration run.
type Options struct {
	MinCases       int
	CutPoints      []float64
	Epsilon        float64
	Regularization float64
	MaxIterations  int
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinCases:       10,
		CutPoints:      append([]float64(nil), DefaultCutPoints...),
		Epsilon:        1e-9,
		Regularization: 1.0,
		MaxIterations:  1000,
	}
}

// OptionsFromConfig overlays configured values on the defaults.
func OptionsFromConfig(cfg domain.ScoringConfig) Options {
	opts := DefaultOptions()
	if cfg.MinTrainingCases > 0 {
		opts.MinCases = cfg.MinTrainingCases
	}
	if len(cfg.CutPoints) > 0 {
		opts.CutPoints = append([]float64(nil), cfg.CutPoints...)
	}
	if cfg.Epsilon > 0 {
		opts.Epsilon = cfg.Epsilon
	}
	if cfg.Regularization > 0 {
		opts.Regularization = cfg.Regularization
	}
	if cfg.MaxIterations > 0 {
		opts.MaxIterations = cfg.MaxIterations
	}
	return opts
}

// Engine runs calibrations. It holds no model state and never persists;
// callers decide whether to publish the result.
type Engine struct {
	opts   Options
	logger *logrus.Logger
	now    func() time.Time
}

// NewEngine creates a calibration engine.
func NewEngine(opts Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Options returns the engine settings.
func (e *Engine) Options() Options {
	return e.opts
}

// Calibrate fits a new model state from labeled cases. The previous state, if
// any, supplies the version base and the fallback for empty probability
// buckets. On any failure the returned error is a *domain.CalibrationError and
// no state is produced.
func (e *Engine) Calibrate(cases []domain.LabeledCase, previous *domain.ModelState) (*domain.ModelState, error) {
	if len(cases) < e.opts.MinCases {
		e.logger.WithFields(logrus.Fields{
			"cases":    len(cases),
			"required": e.opts.MinCases,
		}).Info("Skipping calibration: not enough labeled cases")
		return nil, &domain.CalibrationError{
			Kind:     domain.CalibrationInsufficientData,
			Cases:    len(cases),
			Required: e.opts.MinCases,
			Reason:   fmt.Sprintf("need at least %d labeled cases, have %d", e.opts.MinCases, len(cases)),
		}
	}

	positives := 0
	for _, c := range cases {
		if c.ActualMVI {
			positives++
		}
	}
	if positives == 0 || positives == len(cases) {
		return nil, e.degenerate(len(cases), "labels contain a single class", nil)
	}

	scaler := FitScaler(cases)
	x, y := standardize(scaler, cases)

	model, err := fitLogistic(x, y, e.opts.Regularization, e.opts.MaxIterations)
	if err != nil {
		return nil, e.degenerate(len(cases), "logistic fit did not converge", err)
	}

	significant := false
	for _, w := range model.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, e.degenerate(len(cases), "non-finite coefficients", nil)
		}
		if math.Abs(w) > e.opts.Epsilon {
			significant = true
		}
	}
	if math.IsNaN(model.Intercept) || math.IsInf(model.Intercept, 0) {
		return nil, e.degenerate(len(cases), "non-finite intercept", nil)
	}
	if !significant {
		return nil, e.degenerate(len(cases), "all coefficients are effectively zero", nil)
	}

	state := &domain.ModelState{
		ID:            uuid.New(),
		Version:       1,
		TrainedAt:     e.now(),
		SampleSize:    len(cases),
		PositiveCases: positives,
		Scaler:        scaler,
		Coefficients:  domain.CoefficientsFromVector(model.Weights),
		Intercept:     model.Intercept,
		PointWeights:  domain.PointWeightsFromVector(DerivePointWeights(model.Weights, e.opts.Epsilon)),
		CutPoints:     append([]float64(nil), e.opts.CutPoints...),
	}

	fallback := scoring.DefaultProbabilityTable
	if previous != nil {
		state.Version = previous.Version + 1
		if len(previous.ProbabilityByScore) > 0 {
			fallback = previous.ProbabilityByScore
		}
	}

	probabilities := make([]float64, len(cases))
	for i, c := range cases {
		probabilities[i] = PredictProbability(state, c.Observation)
	}
	state.ProbabilityByScore = RebuildProbabilityTable(probabilities, state.CutPoints, fallback)

	if err := state.Validate(); err != nil {
		return nil, e.degenerate(len(cases), "fitted state failed validation", err)
	}

	e.logger.WithFields(logrus.Fields{
		"version":       state.Version,
		"sample_size":   state.SampleSize,
		"positives":     positives,
		"coefficients":  state.Coefficients,
		"point_weights": state.PointWeights,
	}).Info("Calibration produced new model state")

	return state, nil
}

func (e *Engine) degenerate(cases int, reason string, err error) *domain.CalibrationError {
	fields := logrus.Fields{"cases": cases, "reason": reason}
	if err != nil {
		fields["error"] = err.Error()
	}
	e.logger.WithFields(fields).Warn("Calibration rejected degenerate fit")

	return &domain.CalibrationError{
		Kind:   domain.CalibrationDegenerateFit,
		Cases:  cases,
		Reason: reason,
		Err:    err,
	}
}
