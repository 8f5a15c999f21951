// Package patient stores HCC assessments and their confirmed MVI outcomes.
// Records with a known outcome form the calibration training corpus.
package patient

import (
	"context"
	"io"
	"time"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// Record is one scored assessment for a patient.
type Record struct {
	ID             int64           `json:"id,omitempty"`
	PatientID      string          `json:"patient_id"`
	AssessmentDate time.Time       `json:"assessment_date"`
	AFP            float64         `json:"afp"`
	PIVKAII        float64         `json:"pivka_ii"`
	TumorBurden    float64         `json:"tumor_burden"`
	TotalScore     int             `json:"total_score"`
	Points         int             `json:"points"`
	Probability    float64         `json:"probability"`
	RiskLevel      domain.RiskTier `json:"risk_level"`
	ModelVersion   int64           `json:"model_version"`
	Strategy       domain.Strategy `json:"strategy"`
	ActualMVI      *bool           `json:"actual_mvi"`             // nil until the outcome is confirmed
	Source         string          `json:"source,omitempty"`       // manual, hospital_api, file import
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Observation returns the lab values of the record.
func (r *Record) Observation() domain.Observation {
	return domain.Observation{AFP: r.AFP, PIVKAII: r.PIVKAII, TumorBurden: r.TumorBurden}
}

// Adjustment is the clinical adjustment recorded on top of the model points.
func (r *Record) Adjustment() int {
	return r.TotalScore - r.Points
}

// ApplyPrediction copies a prediction onto the record.
func (r *Record) ApplyPrediction(p *domain.Prediction) {
	r.Points = p.Points
	r.TotalScore = p.TotalScore
	r.Probability = p.Probability
	r.RiskLevel = p.RiskTier
	r.ModelVersion = p.ModelVersion
	r.Strategy = p.Strategy
}

// Store defines the interface for assessment storage operations.
type Store interface {
	// Save stores or updates an assessment. Records are unique per patient_id.
	Save(ctx context.Context, record *Record) error

	// Get retrieves the assessment for a patient, or nil if none exists.
	Get(ctx context.Context, patientID string) (*Record, error)

	// List returns assessments, newest first.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Count returns the total number of assessments.
	Count(ctx context.Context) (int64, error)

	// UpdateOutcome sets or clears the confirmed MVI outcome.
	// Returns domain.ErrNotFound when the patient has no assessment.
	UpdateOutcome(ctx context.Context, patientID string, actualMVI *bool) error

	// LabeledCases returns every assessment with a confirmed outcome.
	LabeledCases(ctx context.Context) ([]domain.LabeledCase, error)

	// Delete removes an assessment by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all assessments to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// ExportFormatVersion is written into every export.
const ExportFormatVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
