package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/calibration"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/scoring"
)

type failingPersister struct{}

func (failingPersister) Save(context.Context, *domain.ModelState) error {
	return errors.New("disk full")
}

func (failingPersister) LoadLatest(context.Context) (*domain.ModelState, error) {
	return nil, nil
}

type fixture struct {
	store       *patient.SQLiteStore
	files       *modelstate.FileStore
	holder      *modelstate.Holder
	predictor   *Predictor
	assessments *AssessmentService
	calibrator  *CalibrationService
}

func newFixture(t *testing.T, persister domain.ModelStatePersister) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()

	store, err := patient.NewSQLiteStore(filepath.Join(t.TempDir(), "patients.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	files, err := modelstate.NewFileStore(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, err)
	if persister == nil {
		persister = files
	}

	holder := modelstate.NewHolder(nil)
	predictor := NewPredictor(logger, scoring.DefaultScorer(), holder, nil)
	engine := calibration.NewEngine(calibration.DefaultOptions(), logger)

	return &fixture{
		store:       store,
		files:       files,
		holder:      holder,
		predictor:   predictor,
		assessments: NewAssessmentService(logger, predictor, store),
		calibrator:  NewCalibrationService(logger, engine, store, persister, holder, predictor, nil),
	}
}

// seed records n labeled assessments where MVI tracks PIVKA-II.
func (f *fixture) seed(t *testing.T, n int, label func(i int) bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		mvi := label(i)
		_, _, err := f.assessments.Record(ctx, AssessmentRequest{
			PatientID: fmt.Sprintf("HCC-%03d", i),
			Observation: domain.Observation{
				AFP:         5 + float64((i*13)%40),
				PIVKAII:     10 + 5*float64(i),
				TumorBurden: 3 + float64((i*7)%6),
			},
			Adjustment: i % 2,
			ActualMVI:  &mvi,
			Source:     "manual",
		})
		require.NoError(t, err)
	}
}

func overlapping(n int) func(int) bool {
	return func(i int) bool {
		switch i {
		case n/2 - 1:
			return true
		case n/2 + 1:
			return false
		}
		return i >= n/2
	}
}

func TestCalibrationService_InsufficientData(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 5, overlapping(5))

	report, err := f.calibrator.Calibrate(context.Background())

	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	require.NotNil(t, report)
	assert.Equal(t, CalibrationInsufficientData, report.Status)
	assert.Equal(t, 5, report.LabeledCases)
	assert.Equal(t, 10, report.Required)
	assert.Nil(t, f.holder.Load())
}

func TestCalibrationService_AppliesAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 30, overlapping(30))
	ctx := context.Background()

	report, err := f.calibrator.Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, CalibrationApplied, report.Status)
	assert.Equal(t, int64(1), report.Version)
	require.NotNil(t, report.Summary)
	assert.Equal(t, domain.StrategyCalibrated, report.Summary.Strategy)

	resident := f.holder.Load()
	require.NotNil(t, resident)
	persisted, err := f.files.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, resident.ID, persisted.ID)

	again, err := f.calibrator.Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
	assert.Equal(t, int64(1), again.PreviousModel)
}

func TestCalibrationService_DegenerateKeepsResidentModel(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 30, overlapping(30))
	ctx := context.Background()

	_, err := f.calibrator.Calibrate(ctx)
	require.NoError(t, err)
	resident := f.holder.Load()

	for i := 0; i < 30; i++ {
		require.NoError(t, f.store.UpdateOutcome(ctx, fmt.Sprintf("HCC-%03d", i), patient.BoolPtr(false)))
	}

	report, err := f.calibrator.Calibrate(ctx)
	assert.ErrorIs(t, err, domain.ErrDegenerateFit)
	assert.Equal(t, CalibrationDegenerateFit, report.Status)
	assert.Same(t, resident, f.holder.Load())
}

func TestCalibrationService_PersistFailureDoesNotSwap(t *testing.T) {
	f := newFixture(t, failingPersister{})
	f.seed(t, 30, overlapping(30))

	report, err := f.calibrator.Calibrate(context.Background())

	assert.Error(t, err)
	assert.Nil(t, report)
	assert.Nil(t, f.holder.Load())
}

func TestCalibrationService_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, nil)

	f.calibrator.running.Lock()
	defer f.calibrator.running.Unlock()

	_, err := f.calibrator.Calibrate(context.Background())
	assert.ErrorIs(t, err, domain.ErrCalibrationInProgress)
}

func TestCalibrationService_Restore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	found, err := f.calibrator.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, f.holder.Load())

	state := calibratedState(9)
	require.NoError(t, f.files.Save(ctx, state))

	found, err = f.calibrator.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, f.holder.Load())
	assert.Equal(t, int64(9), f.holder.Load().Version)
	assert.Equal(t, domain.StrategyCalibrated, f.predictor.Strategy().Name())
}

func TestCalibrationService_RestoreIgnoresCorruptArtifact(t *testing.T) {
	logger, hook := test.NewNullLogger()
	files, err := modelstate.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files.Path(), []byte("{not json"), 0644))

	store, err := patient.NewSQLiteStore(filepath.Join(t.TempDir(), "patients.db"))
	require.NoError(t, err)
	defer store.Close()

	holder := modelstate.NewHolder(nil)
	predictor := NewPredictor(logger, scoring.DefaultScorer(), holder, nil)
	calibrator := NewCalibrationService(logger, calibration.NewEngine(calibration.DefaultOptions(), logger), store, files, holder, predictor, nil)

	found, err := calibrator.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, holder.Load())
	assert.Equal(t, domain.StrategyLegacy, predictor.Strategy().Name())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

type brokenPersister struct{}

func (brokenPersister) Save(context.Context, *domain.ModelState) error { return nil }

func (brokenPersister) LoadLatest(context.Context) (*domain.ModelState, error) {
	return nil, errors.New("connection refused")
}

func TestCalibrationService_RestoreStorageFailure(t *testing.T) {
	f := newFixture(t, brokenPersister{})

	found, err := f.calibrator.Restore(context.Background())
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCalibrationService_Rescore(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 30, overlapping(30))
	ctx := context.Background()

	before, err := f.store.Get(ctx, "HCC-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyLegacy, before.Strategy)

	_, err = f.calibrator.Calibrate(ctx)
	require.NoError(t, err)

	report, err := f.calibrator.Rescore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, report.Rescored)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, domain.StrategyCalibrated, report.Strategy)

	after, err := f.store.Get(ctx, "HCC-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyCalibrated, after.Strategy)
	assert.Equal(t, int64(1), after.ModelVersion)
	assert.Equal(t, 1, after.Adjustment())
	require.NotNil(t, after.ActualMVI)
}

func TestAssessmentService_RecordOutcome(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec, pred, err := f.assessments.Record(ctx, AssessmentRequest{
		PatientID:   "P-1",
		Observation: domain.Observation{AFP: 10, PIVKAII: 20, TumorBurden: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 30.8, pred.Probability)
	assert.Equal(t, domain.LOW, rec.RiskLevel)
	assert.Nil(t, rec.ActualMVI)

	require.NoError(t, f.assessments.RecordOutcome(ctx, "P-1", patient.BoolPtr(true)))
	assert.ErrorIs(t, f.assessments.RecordOutcome(ctx, "P-2", patient.BoolPtr(true)), domain.ErrNotFound)

	_, _, err = f.assessments.Record(ctx, AssessmentRequest{Observation: domain.Observation{AFP: 1}})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestAssessmentService_ImportExportRescoresAndRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.assessments.Record(ctx, AssessmentRequest{
		PatientID:   "EXISTING",
		Observation: domain.Observation{AFP: 1, PIVKAII: 1, TumorBurden: 1},
	})
	require.NoError(t, err)

	doc := `{"version":"1.0","records":[
		{"patient_id":"GOOD","afp":25,"pivka_ii":40,"tumor_burden":7,"total_score":5,"points":4,
		 "probability":999,"risk_level":"BOGUS","actual_mvi":true},
		{"patient_id":"NO-AFP","pivka_ii":40,"tumor_burden":7,"actual_mvi":true},
		{"patient_id":"NEGATIVE","afp":10,"pivka_ii":-50,"tumor_burden":3,"actual_mvi":true},
		{"patient_id":"EXISTING","afp":25,"pivka_ii":40,"tumor_burden":7},
		{"afp":25,"pivka_ii":40,"tumor_burden":7}
	]}`

	summary, err := f.assessments.ImportExport(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Errors, 3)
	assert.Contains(t, summary.Errors[0], "NO-AFP")
	assert.Contains(t, summary.Errors[1], "NEGATIVE")

	good, err := f.store.Get(ctx, "GOOD")
	require.NoError(t, err)
	require.NotNil(t, good)
	assert.Equal(t, 86.7, good.Probability)
	assert.Equal(t, domain.HIGH, good.RiskLevel)
	assert.Equal(t, 4, good.Points)
	assert.Equal(t, 5, good.TotalScore)
	assert.Equal(t, SourceExportImport, good.Source)

	for _, id := range []string{"NO-AFP", "NEGATIVE"} {
		rec, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rec, id)
	}

	cases, err := f.store.LabeledCases(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, 25.0, cases[0].Observation.AFP)
}

func TestAssessmentService_ImportExportMalformed(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.assessments.ImportExport(context.Background(), strings.NewReader("not json"))
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}
