package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// exportJSON writes every record returned by list in the export format.
func exportJSON(ctx context.Context, list func(ctx context.Context, limit, offset int) ([]*Record, error), writer io.Writer) error {
	all, err := list(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list assessments: %w", err)
	}

	export := &Export{
		Version:    ExportFormatVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportEntry is one record of an export as read back for import. Lab values
// are pointers so a missing key is distinguishable from zero. Stored scores are
// read only to recover the clinical adjustment; they are recomputed on import.
type ImportEntry struct {
	PatientID      string    `json:"patient_id"`
	AssessmentDate time.Time `json:"assessment_date"`
	AFP            *float64  `json:"afp"`
	PIVKAII        *float64  `json:"pivka_ii"`
	TumorBurden    *float64  `json:"tumor_burden"`
	TotalScore     int       `json:"total_score"`
	Points         int       `json:"points"`
	ActualMVI      *bool     `json:"actual_mvi"`
	Source         string    `json:"source,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// Observation returns the lab values, rejecting missing, negative or
// non-finite ones.
func (e *ImportEntry) Observation() (domain.Observation, error) {
	fields := []struct {
		name  domain.Feature
		value *float64
	}{
		{domain.FeatureAFP, e.AFP},
		{domain.FeaturePIVKAII, e.PIVKAII},
		{domain.FeatureTumorBurden, e.TumorBurden},
	}
	for _, f := range fields {
		if f.value == nil {
			return domain.Observation{}, domain.NewValidationError(string(f.name), "is required", nil)
		}
	}

	obs := domain.Observation{AFP: *e.AFP, PIVKAII: *e.PIVKAII, TumorBurden: *e.TumorBurden}
	if err := obs.Validate(); err != nil {
		return domain.Observation{}, err
	}
	return obs, nil
}

// Adjustment is the clinical adjustment recorded by the exporting system.
func (e *ImportEntry) Adjustment() int {
	return e.TotalScore - e.Points
}

// DecodeExport reads an export document.
func DecodeExport(reader io.Reader) ([]ImportEntry, error) {
	var doc struct {
		Version string        `json:"version"`
		Records []ImportEntry `json:"records"`
	}
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return doc.Records, nil
}
