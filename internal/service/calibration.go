package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/calibration"
	"github.com/hcc-mvi-risk-server/internal/cache"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/patient"
)

// CalibrationStatus is the outcome of one calibration request.
type CalibrationStatus string

const (
	CalibrationApplied          CalibrationStatus = "applied"
	CalibrationInsufficientData CalibrationStatus = "insufficient_data"
	CalibrationDegenerateFit    CalibrationStatus = "degenerate_fit"
)

// CalibrationReport describes a calibration run for the operator.
type CalibrationReport struct {
	Status        CalibrationStatus `json:"status"`
	LabeledCases  int               `json:"labeled_cases"`
	Required      int               `json:"required"`
	Version       int64             `json:"version"`
	PreviousModel int64             `json:"previous_version"`
	Reason        string            `json:"reason,omitempty"`
	Summary       *domain.Summary   `json:"summary,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// RescoreReport counts records rewritten by Rescore.
type RescoreReport struct {
	Rescored     int             `json:"rescored"`
	Failed       int             `json:"failed"`
	Strategy     domain.Strategy `json:"strategy"`
	ModelVersion int64           `json:"model_version"`
}

// rescorePageSize bounds each read during Rescore.
const rescorePageSize = 500

// CalibrationService orchestrates calibration runs: it reads labeled cases,
// fits a new model, persists it and only then publishes it.
type CalibrationService struct {
	logger    *logrus.Logger
	engine    *calibration.Engine
	source    domain.LabeledCaseSource
	persister domain.ModelStatePersister
	holder    *modelstate.Holder
	predictor *Predictor
	store     patient.Store
	cache     *cache.MemoryCache

	running sync.Mutex
}

// NewCalibrationService creates a calibration service. store is used for
// labeled cases and rescoring; the cache, if any, is purged after a swap.
func NewCalibrationService(
	logger *logrus.Logger,
	engine *calibration.Engine,
	store patient.Store,
	persister domain.ModelStatePersister,
	holder *modelstate.Holder,
	predictor *Predictor,
	predictionCache *cache.MemoryCache,
) *CalibrationService {
	return &CalibrationService{
		logger:    logger,
		engine:    engine,
		source:    store,
		persister: persister,
		holder:    holder,
		predictor: predictor,
		store:     store,
		cache:     predictionCache,
	}
}

// Calibrate runs one calibration. A declined run returns a report together
// with a *domain.CalibrationError; the resident model is left in place.
func (s *CalibrationService) Calibrate(ctx context.Context) (*CalibrationReport, error) {
	if !s.running.TryLock() {
		return nil, domain.ErrCalibrationInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	previous := s.holder.Load()

	cases, err := s.source.LabeledCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load labeled cases: %w", err)
	}

	report := &CalibrationReport{
		LabeledCases: len(cases),
		Required:     s.engine.Options().MinCases,
	}
	if previous != nil {
		report.PreviousModel = previous.Version
		report.Version = previous.Version
	}

	state, err := s.engine.Calibrate(cases, previous)
	if err != nil {
		var calErr *domain.CalibrationError
		if !errors.As(err, &calErr) {
			return nil, err
		}
		report.Status = CalibrationStatus(calErr.Kind)
		report.Reason = calErr.Reason
		report.Duration = time.Since(start)
		return report, err
	}

	if err := s.persister.Save(ctx, state); err != nil {
		s.logger.WithError(err).WithField("version", state.Version).Error("Failed to persist model state; keeping resident model")
		return nil, fmt.Errorf("failed to persist model state: %w", err)
	}

	s.holder.Swap(state)
	if s.cache != nil {
		s.cache.Purge()
	}

	summary := s.predictor.Summary()
	report.Status = CalibrationApplied
	report.Version = state.Version
	report.Summary = &summary
	report.Duration = time.Since(start)

	s.logger.WithFields(logrus.Fields{
		"version":          state.Version,
		"previous_version": report.PreviousModel,
		"labeled_cases":    len(cases),
		"duration":         report.Duration,
	}).Info("Published calibrated model")

	return report, nil
}

// Restore loads the latest persisted model into the holder. It reports
// whether a model was restored. An undecodable or invalid artifact is logged
// and the legacy strategy stays in effect; storage failures are returned.
func (s *CalibrationService) Restore(ctx context.Context) (bool, error) {
	state, err := s.persister.LoadLatest(ctx)
	if errors.Is(err, domain.ErrInvalidModelState) {
		s.logger.WithError(err).Warn("Ignoring unreadable model state, using legacy scoring")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load model state: %w", err)
	}
	if state == nil {
		s.logger.Info("No persisted model state, using legacy scoring")
		return false, nil
	}

	s.holder.Swap(state)
	s.logger.WithFields(logrus.Fields{
		"version":     state.Version,
		"trained_at":  state.TrainedAt,
		"sample_size": state.SampleSize,
	}).Info("Restored calibrated model")
	return true, nil
}

// Rescore recomputes every stored assessment with the model in effect,
// preserving each record's clinical adjustment.
func (s *CalibrationService) Rescore(ctx context.Context) (*RescoreReport, error) {
	strategy := s.predictor.Strategy()
	report := &RescoreReport{Strategy: strategy.Name(), ModelVersion: strategy.Version()}

	var records []*patient.Record
	for offset := 0; ; offset += rescorePageSize {
		page, err := s.store.List(ctx, rescorePageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list assessments: %w", err)
		}
		records = append(records, page...)
		if len(page) < rescorePageSize {
			break
		}
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		prediction, err := s.predictor.Predict(rec.Observation(), rec.Adjustment())
		if err != nil {
			report.Failed++
			s.logger.WithError(err).WithField("patient_id", rec.PatientID).Warn("Skipping record during rescore")
			continue
		}
		rec.ApplyPrediction(prediction)
		if err := s.store.Save(ctx, rec); err != nil {
			return report, fmt.Errorf("failed to save rescored assessment %s: %w", rec.PatientID, err)
		}
		report.Rescored++
	}

	s.logger.WithFields(logrus.Fields{
		"rescored":      report.Rescored,
		"failed":        report.Failed,
		"strategy":      report.Strategy,
		"model_version": report.ModelVersion,
	}).Info("Rescored stored assessments")

	return report, nil
}
