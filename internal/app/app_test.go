package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/service"
)

func sqliteConfig(t *testing.T) *domain.Config {
	t.Helper()
	dir := t.TempDir()
	return &domain.Config{
		Storage: domain.StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: filepath.Join(dir, "patients.db"),
			ModelDir:   filepath.Join(dir, "models"),
		},
		Scoring: domain.ScoringConfig{MinTrainingCases: 10},
		Cache:   domain.CacheConfig{MaxItems: 100, TTL: time.Minute},
	}
}

func TestBuild_SQLite(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	cfg := sqliteConfig(t)

	a, err := Build(ctx, cfg, logger)
	require.NoError(t, err)

	assert.Nil(t, a.DB)
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Importer)
	require.NoError(t, a.Ping(ctx))
	assert.Equal(t, domain.StrategyLegacy, a.Predictor.Summary().Strategy)

	for i := 0; i < 20; i++ {
		mvi := i%2 == 0
		if i < 10 {
			mvi = i%3 == 0
		}
		_, _, err := a.Assessments.Record(ctx, service.AssessmentRequest{
			PatientID:   fmt.Sprintf("P%02d", i),
			Observation: domain.Observation{AFP: float64(i * 4), PIVKAII: float64(10 + i*6), TumorBurden: float64(2 + i%7)},
			ActualMVI:   &mvi,
		})
		require.NoError(t, err)
	}

	report, err := a.Calibration.Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.CalibrationApplied, report.Status)
	a.Close()

	reopened, err := Build(ctx, cfg, logger)
	require.NoError(t, err)
	defer reopened.Close()

	summary := reopened.Predictor.Summary()
	assert.Equal(t, domain.StrategyCalibrated, summary.Strategy)
	assert.Equal(t, int64(1), summary.Version)
}

func TestBuild_CorruptModelStateFallsBackToLegacy(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx := context.Background()
	cfg := sqliteConfig(t)

	require.NoError(t, os.MkdirAll(cfg.Storage.ModelDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.ModelDir, modelstate.DefaultFileName), []byte("{not json"), 0644))

	a, err := Build(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, domain.StrategyLegacy, a.Predictor.Summary().Strategy)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)

	_, pred, err := a.Assessments.Record(ctx, service.AssessmentRequest{
		PatientID:   "P-CORRUPT",
		Observation: domain.Observation{AFP: 25, PIVKAII: 40, TumorBurden: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 86.7, pred.Probability)
}

func TestBuild_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	cfg := sqliteConfig(t)
	cfg.Storage.Driver = "mongo"
	_, err := Build(ctx, cfg, logger)
	assert.Error(t, err)

	cfg = sqliteConfig(t)
	cfg.Hospital.BaseURL = "::not a url"
	_, err = Build(ctx, cfg, logger)
	assert.Error(t, err)
}
