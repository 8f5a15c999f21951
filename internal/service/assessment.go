package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/patient"
)

// AssessmentRequest is a new assessment to score and record.
type AssessmentRequest struct {
	PatientID      string             `json:"patient_id"`
	AssessmentDate time.Time          `json:"assessment_date"`
	Observation    domain.Observation `json:"observation"`
	Adjustment     int                `json:"adjustment"`
	ActualMVI      *bool              `json:"actual_mvi,omitempty"`
	Source         string             `json:"source,omitempty"`
	Notes          string             `json:"notes,omitempty"`
}

// AssessmentService scores observations and records them in the store.
type AssessmentService struct {
	logger    *logrus.Logger
	predictor *Predictor
	store     patient.Store
}

// NewAssessmentService creates an assessment service.
func NewAssessmentService(logger *logrus.Logger, predictor *Predictor, store patient.Store) *AssessmentService {
	return &AssessmentService{logger: logger, predictor: predictor, store: store}
}

// Record scores the request and saves it, replacing any earlier assessment
// for the same patient.
func (s *AssessmentService) Record(ctx context.Context, req AssessmentRequest) (*patient.Record, *domain.Prediction, error) {
	if req.PatientID == "" {
		return nil, nil, domain.NewValidationError("patient_id", "patient ID is required", req.PatientID)
	}

	prediction, err := s.predictor.Predict(req.Observation, req.Adjustment)
	if err != nil {
		return nil, nil, err
	}

	rec := &patient.Record{
		PatientID:      req.PatientID,
		AssessmentDate: req.AssessmentDate,
		AFP:            req.Observation.AFP,
		PIVKAII:        req.Observation.PIVKAII,
		TumorBurden:    req.Observation.TumorBurden,
		ActualMVI:      req.ActualMVI,
		Source:         req.Source,
		Notes:          req.Notes,
	}
	rec.ApplyPrediction(prediction)

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("failed to save assessment: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": rec.PatientID,
		"risk_level": rec.RiskLevel,
		"strategy":   rec.Strategy,
		"source":     rec.Source,
	}).Info("Assessment recorded")

	return rec, prediction, nil
}

// RecordOutcome stores the confirmed MVI outcome for a patient; nil clears it.
func (s *AssessmentService) RecordOutcome(ctx context.Context, patientID string, actualMVI *bool) error {
	if err := s.store.UpdateOutcome(ctx, patientID, actualMVI); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"labeled":    actualMVI != nil,
	}).Info("Outcome recorded")
	return nil
}

// SourceExportImport marks records restored from an export without a source.
const SourceExportImport = "export_import"

// maxImportErrors bounds the messages kept in an ImportSummary.
const maxImportErrors = 20

// ImportSummary counts the outcome of ImportExport.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportExport restores assessments from an export document. Patient IDs that
// already exist are skipped. Each remaining entry is validated and scored
// again with the model in effect; stored scores in the document are ignored.
// A document that cannot be decoded is a MalformedInput error.
func (s *AssessmentService) ImportExport(ctx context.Context, reader io.Reader) (*ImportSummary, error) {
	entries, err := patient.DecodeExport(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}

	summary := &ImportSummary{}
	fail := func(patientID string, err error) {
		summary.Failed++
		if len(summary.Errors) < maxImportErrors {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", patientID, err))
		}
	}

	for i := range entries {
		entry := &entries[i]
		if entry.PatientID == "" {
			fail(fmt.Sprintf("record %d", i), domain.NewValidationError("patient_id", "patient ID is required", nil))
			continue
		}

		existing, err := s.store.Get(ctx, entry.PatientID)
		if err != nil {
			return summary, fmt.Errorf("failed to check existing assessment: %w", err)
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		obs, err := entry.Observation()
		if err != nil {
			fail(entry.PatientID, err)
			continue
		}

		source := entry.Source
		if source == "" {
			source = SourceExportImport
		}
		if _, _, err := s.Record(ctx, AssessmentRequest{
			PatientID:      entry.PatientID,
			AssessmentDate: entry.AssessmentDate,
			Observation:    obs,
			Adjustment:     entry.Adjustment(),
			ActualMVI:      entry.ActualMVI,
			Source:         source,
			Notes:          entry.Notes,
		}); err != nil {
			return summary, err
		}
		summary.Imported++
	}

	s.logger.WithFields(logrus.Fields{
		"imported": summary.Imported,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).Info("Export imported")
	return summary, nil
}
