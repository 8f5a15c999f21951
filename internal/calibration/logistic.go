package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// convergedGradientNorm is the per-case gradient norm below which a fit counts
// as converged.
const convergedGradientNorm = 1e-4

var errNoResult = errors.New("optimizer returned no result")

// logisticModel is a fitted binary logistic classifier over standardized features.
type logisticModel struct {
	Weights   [domain.NumFeatures]float64
	Intercept float64
}

// Sigmoid is the numerically stable logistic function.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

// logisticObjective is the L2-regularized negative log-likelihood. The
// parameter vector holds the feature weights followed by the intercept; the
// intercept is not penalized. c is the inverse regularization strength.
type logisticObjective struct {
	x [][domain.NumFeatures]float64
	y []float64
	c float64
}

func (o *logisticObjective) linear(params []float64, row [domain.NumFeatures]float64) float64 {
	return floats.Dot(params[:domain.NumFeatures], row[:]) + params[domain.NumFeatures]
}

func (o *logisticObjective) value(params []float64) float64 {
	loss := 0.0
	for i, row := range o.x {
		z := o.linear(params, row)
		loss += softplus(z) - o.y[i]*z
	}
	penalty := floats.Dot(params[:domain.NumFeatures], params[:domain.NumFeatures])
	return loss + penalty/(2*o.c)
}

func (o *logisticObjective) gradient(grad, params []float64) {
	for k := range grad {
		grad[k] = 0
	}
	for i, row := range o.x {
		residual := Sigmoid(o.linear(params, row)) - o.y[i]
		for j := 0; j < domain.NumFeatures; j++ {
			grad[j] += residual * row[j]
		}
		grad[domain.NumFeatures] += residual
	}
	for j := 0; j < domain.NumFeatures; j++ {
		grad[j] += params[j] / o.c
	}
}

// fitLogistic minimizes the objective with L-BFGS from the origin, which makes
// the fit deterministic for a given training set.
func fitLogistic(x [][domain.NumFeatures]float64, y []float64, c float64, maxIterations int) (logisticModel, error) {
	obj := &logisticObjective{x: x, y: y, c: c}
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   maxIterations,
	}

	result, err := optimize.Minimize(problem, make([]float64, domain.NumFeatures+1), settings, &optimize.LBFGS{})
	if result == nil {
		if err == nil {
			err = errNoResult
		}
		return logisticModel{}, err
	}
	// Whatever status the optimizer reports, the fit must end near a stationary
	// point. The loss is a sum over cases so the tolerance scales with the batch.
	grad := make([]float64, domain.NumFeatures+1)
	obj.gradient(grad, result.X)
	tolerance := convergedGradientNorm * math.Max(1, float64(len(x)))
	if norm := floats.Norm(grad, 2); math.IsNaN(norm) || norm > tolerance {
		if err == nil {
			err = fmt.Errorf("optimizer status %v", result.Status)
		}
		return logisticModel{}, fmt.Errorf("optimizer stopped with gradient norm %g: %w", norm, err)
	}

	var model logisticModel
	copy(model.Weights[:], result.X[:domain.NumFeatures])
	model.Intercept = result.X[domain.NumFeatures]
	return model, nil
}

// PredictProbability returns the calibrated MVI probability in [0, 1] for an
// observation under a model state.
func PredictProbability(state *domain.ModelState, obs domain.Observation) float64 {
	xs := state.Scaler.Transform(obs)
	w := state.Coefficients.Vector()
	return Sigmoid(floats.Dot(w[:], xs[:]) + state.Intercept)
}
