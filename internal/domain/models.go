package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Coefficients holds one real value per feature. Serialized with the same keys
// as the legacy coefficients.json artifact.
type Coefficients struct {
	AFP         float64 `json:"afp"`
	PIVKAII     float64 `json:"pivka_ii"`
	TumorBurden float64 `json:"tumor_burden"`
}

// DefaultCoefficients are the published regression coefficients behind the
// fixed scoring table. Shown for display until a model has been calibrated.
var DefaultCoefficients = Coefficients{AFP: 0.647, PIVKAII: 1.206, TumorBurden: 0.916}

// CoefficientsFromVector builds Coefficients from canonical feature order.
func CoefficientsFromVector(v [NumFeatures]float64) Coefficients {
	return Coefficients{AFP: v[0], PIVKAII: v[1], TumorBurden: v[2]}
}

// Vector returns the coefficients in canonical feature order.
func (c Coefficients) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{c.AFP, c.PIVKAII, c.TumorBurden}
}

// Get returns the coefficient for a feature.
func (c Coefficients) Get(f Feature) float64 {
	switch f {
	case FeatureAFP:
		return c.AFP
	case FeaturePIVKAII:
		return c.PIVKAII
	case FeatureTumorBurden:
		return c.TumorBurden
	default:
		return 0
	}
}

// PointWeights holds the integer points awarded per feature.
type PointWeights struct {
	AFP         int `json:"afp"`
	PIVKAII     int `json:"pivka_ii"`
	TumorBurden int `json:"tumor_burden"`
}

// PointWeightsFromVector builds PointWeights from canonical feature order.
func PointWeightsFromVector(v [NumFeatures]int) PointWeights {
	return PointWeights{AFP: v[0], PIVKAII: v[1], TumorBurden: v[2]}
}

// Vector returns the weights in canonical feature order.
func (w PointWeights) Vector() [NumFeatures]int {
	return [NumFeatures]int{w.AFP, w.PIVKAII, w.TumorBurden}
}

// Total returns the maximum attainable score.
func (w PointWeights) Total() int {
	return w.AFP + w.PIVKAII + w.TumorBurden
}

// Scaler holds per-feature standardization parameters fitted on a training batch.
type Scaler struct {
	Mean  [NumFeatures]float64 `json:"mean"`
	Scale [NumFeatures]float64 `json:"scale"`
}

// Transform standardizes an observation. A zero scale is treated as 1.
func (s Scaler) Transform(o Observation) [NumFeatures]float64 {
	var out [NumFeatures]float64
	for i, v := range o.Vector() {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// ModelState is one complete calibration result: the fitted classifier, its
// feature scaling, the derived point weights and the probability-by-score table.
// A ModelState is never modified after it is published; a new calibration
// produces a new value.
type ModelState struct {
	ID                 uuid.UUID       `json:"id"`
	Version            int64           `json:"version"`
	TrainedAt          time.Time       `json:"trained_at"`
	SampleSize         int             `json:"sample_size"`
	PositiveCases      int             `json:"positive_cases"`
	Scaler             Scaler          `json:"scaler"`
	Coefficients       Coefficients    `json:"coefficients"`
	Intercept          float64         `json:"intercept"`
	PointWeights       PointWeights    `json:"point_weights"`
	CutPoints          []float64       `json:"cut_points"`
	ProbabilityByScore map[int]float64 `json:"probability_by_score"`
}

// MaxPoints is the highest probability bucket of the state.
func (m *ModelState) MaxPoints() int {
	return len(m.CutPoints)
}

// Validate checks that the state is complete and usable for prediction.
func (m *ModelState) Validate() error {
	if m == nil {
		return fmt.Errorf("model state is nil")
	}
	if len(m.CutPoints) == 0 {
		return fmt.Errorf("model state %d has no cut points", m.Version)
	}
	for i := 1; i < len(m.CutPoints); i++ {
		if m.CutPoints[i] <= m.CutPoints[i-1] {
			return fmt.Errorf("model state %d cut points are not strictly increasing", m.Version)
		}
	}
	for score := 0; score <= m.MaxPoints(); score++ {
		if _, ok := m.ProbabilityByScore[score]; !ok {
			return fmt.Errorf("model state %d probability table missing score %d", m.Version, score)
		}
	}
	params := m.Coefficients.Vector()
	for _, v := range append(params[:], m.Intercept) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model state %d has non-finite parameters", m.Version)
		}
	}
	return nil
}

// Summary is the display view of the model currently used for prediction.
type Summary struct {
	Strategy           Strategy        `json:"strategy"`
	Version            int64           `json:"version"`
	TrainedAt          *time.Time      `json:"trained_at,omitempty"`
	SampleSize         int             `json:"sample_size"`
	Coefficients       Coefficients    `json:"coefficients"`
	PointWeights       PointWeights    `json:"point_weights"`
	ProbabilityByScore map[int]float64 `json:"probability_by_score"`
}
