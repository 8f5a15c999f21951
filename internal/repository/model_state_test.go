package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hcc-mvi-risk-server/internal/database"
	"github.com/hcc-mvi-risk-server/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	if err := database.Migrate(config.URL(), "../../migrations", logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testState(version int64) *domain.ModelState {
	return &domain.ModelState{
		ID:            uuid.New(),
		Version:       version,
		TrainedAt:     time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC),
		SampleSize:    64,
		PositiveCases: 29,
		Scaler: domain.Scaler{
			Mean:  [3]float64{88.1, 102.4, 6.2},
			Scale: [3]float64{41.0, 77.3, 2.9},
		},
		Coefficients:       domain.Coefficients{AFP: 0.52, PIVKAII: 1.04, TumorBurden: 0.61},
		Intercept:          -0.18,
		PointWeights:       domain.PointWeights{AFP: 1, PIVKAII: 2, TumorBurden: 1},
		CutPoints:          []float64{0.30, 0.45, 0.60, 0.75},
		ProbabilityByScore: map[int]float64{0: 22.0, 1: 38.5, 2: 53.0, 3: 68.8, 4: 83.1},
	}
}

func TestModelStateRepository_SaveAndLoadLatest(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewModelStateRepository(db.Pool, logger)
	ctx := context.Background()

	latest, err := repo.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := testState(1)
	second := testState(2)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	latest, err = repo.LoadLatest(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(second, latest); diff != "" {
		t.Errorf("latest state differs (-saved +loaded):\n%s", diff)
	}

	byVersion, err := repo.GetByVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byVersion.ID)

	_, err = repo.GetByVersion(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history, err := repo.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].Version)
	assert.Equal(t, 64, history[0].SampleSize)
}

func TestModelStateRepository_DuplicateVersion(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	repo := NewModelStateRepository(db.Pool, logger)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testState(1)))
	assert.Error(t, repo.Save(ctx, testState(1)))
}

func TestModelStateRepository_RejectsInvalidState(t *testing.T) {
	logger := logrus.New()
	repo := NewModelStateRepository(nil, logger)

	state := testState(1)
	state.CutPoints = nil

	assert.Error(t, repo.Save(context.Background(), state))
}

type payloadRow []byte

func (p payloadRow) Scan(dest ...any) error {
	*(dest[0].(*[]byte)) = p
	return nil
}

func TestModelStateRepository_ScanRejectsUnreadablePayload(t *testing.T) {
	repo := NewModelStateRepository(nil, logrus.New())

	_, err := repo.scanState(payloadRow("{not json"))
	assert.ErrorIs(t, err, domain.ErrInvalidModelState)

	_, err = repo.scanState(payloadRow(`{"version":1,"cut_points":[]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidModelState)
}
