// Package domain contains core entities and types for postoperative hepatocellular
// carcinoma (HCC) recurrence and microvascular invasion (MVI) risk assessment.
//
// The score combines three preoperative markers: alpha-fetoprotein (AFP),
// protein induced by vitamin K absence or antagonist-II (PIVKA-II) and the
// tumor burden score. Each marker at or above its clinical cut-off adds points,
// and the point total maps to an MVI probability and a risk tier.
package domain

import (
	"errors"
	"fmt"
	"math"
)

// RiskTier is the categorical risk bucket derived from an MVI probability.
type RiskTier string

const (
	LOW      RiskTier = "LOW"
	MODERATE RiskTier = "MODERATE"
	HIGH     RiskTier = "HIGH"
)

// Feature names a clinical input of the score. The string values double as
// JSON keys and database column names.
type Feature string

const (
	FeatureAFP         Feature = "afp"
	FeaturePIVKAII     Feature = "pivka_ii"
	FeatureTumorBurden Feature = "tumor_burden"
)

// Features lists the score inputs in their canonical column order. Vectors,
// scalers and coefficient arrays throughout the module follow this order.
var Features = [NumFeatures]Feature{FeatureAFP, FeaturePIVKAII, FeatureTumorBurden}

// NumFeatures is the number of clinical inputs.
const NumFeatures = 3

// Strategy names the scoring ladder that produced a prediction.
type Strategy string

const (
	// StrategyLegacy counts fixed-threshold points and reads the published
	// probability table.
	StrategyLegacy Strategy = "legacy"
	// StrategyCalibrated runs the fitted classifier and buckets its probability.
	StrategyCalibrated Strategy = "calibrated"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrMalformedInput        = errors.New("malformed clinical input")
	ErrInsufficientData      = errors.New("insufficient labeled data")
	ErrDegenerateFit         = errors.New("degenerate classifier fit")
	ErrCalibrationInProgress = errors.New("calibration already in progress")
	ErrInvalidRiskTier       = errors.New("invalid risk tier")
	ErrInvalidModelState     = errors.New("persisted model state is unreadable")
)

// IsValid reports whether the tier is one of LOW, MODERATE or HIGH.
func (t RiskTier) IsValid() bool {
	switch t {
	case LOW, MODERATE, HIGH:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tier.
func (t RiskTier) String() string {
	return string(t)
}

// Label returns the display name of a feature.
func (f Feature) Label() string {
	switch f {
	case FeatureAFP:
		return "AFP"
	case FeaturePIVKAII:
		return "PIVKA-II"
	case FeatureTumorBurden:
		return "Tumor Burden"
	default:
		return string(f)
	}
}

// Observation holds the three clinical measurements captured for one
// assessment. It is treated as immutable once captured.
type Observation struct {
	AFP         float64 `json:"afp"`          // ng/mL
	PIVKAII     float64 `json:"pivka_ii"`     // ng/mL
	TumorBurden float64 `json:"tumor_burden"` // unitless composite
}

// Vector returns the observation in canonical feature order.
func (o Observation) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{o.AFP, o.PIVKAII, o.TumorBurden}
}

// Validate rejects NaN, infinite and negative measurements.
func (o Observation) Validate() error {
	for i, v := range o.Vector() {
		field := string(Features[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(field, "must be a finite number", v)
		}
		if v < 0 {
			return NewValidationError(field, "must not be negative", v)
		}
	}
	return nil
}

// String renders the observation for logs.
func (o Observation) String() string {
	return fmt.Sprintf("afp=%g pivka_ii=%g tumor_burden=%g", o.AFP, o.PIVKAII, o.TumorBurden)
}

// ScoreResult is the output of the rule-based threshold scorer.
type ScoreResult struct {
	Points      int      `json:"points"`
	Probability float64  `json:"probability"` // percent, 0-100
	RiskTier    RiskTier `json:"risk_tier"`
}

// LabeledCase is an observation with a confirmed MVI outcome. Only labeled
// cases participate in calibration.
type LabeledCase struct {
	Observation
	ActualMVI bool `json:"actual_mvi"`
}

// Contribution explains how one factor added to a threshold score.
type Contribution struct {
	Factor      string  `json:"factor"`
	Feature     Feature `json:"feature"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Points      int     `json:"points"`
	Coefficient float64 `json:"coefficient"`
}

// Prediction is the response of the prediction facade. Probability and points
// always come from the same Strategy.
type Prediction struct {
	Probability     float64  `json:"probability"` // percent, 0-100
	Points          int      `json:"points"`
	TotalScore      int      `json:"total_score"`
	RiskTier        RiskTier `json:"risk_tier"`
	Strategy        Strategy `json:"strategy"`
	ModelVersion    int64    `json:"model_version,omitempty"`
	Recommendations []string `json:"recommendations"`
}

// LogFields returns structured logging fields for audit trails.
func (p *Prediction) LogFields() map[string]any {
	return map[string]any{
		"probability":   p.Probability,
		"points":        p.Points,
		"total_score":   p.TotalScore,
		"risk_tier":     string(p.RiskTier),
		"strategy":      string(p.Strategy),
		"model_version": p.ModelVersion,
	}
}
