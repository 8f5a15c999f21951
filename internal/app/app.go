// Package app assembles storage, the prediction facade and the operator
// services from configuration. The HTTP server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/cache"
	"github.com/hcc-mvi-risk-server/internal/calibration"
	"github.com/hcc-mvi-risk-server/internal/database"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/repository"
	"github.com/hcc-mvi-risk-server/internal/scoring"
	"github.com/hcc-mvi-risk-server/internal/service"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// App holds the wired application.
type App struct {
	Store       patient.Store
	Persister   domain.ModelStatePersister
	Holder      *modelstate.Holder
	Cache       *cache.MemoryCache
	Predictor   *service.Predictor
	Assessments *service.AssessmentService
	Calibration *service.CalibrationService
	Importer    *hospital.Importer

	// Set only with the postgres driver.
	DB      *database.DB
	History *repository.ModelStateRepository

	logger *logrus.Logger
}

// Build opens storage for cfg.Storage.Driver, restores the latest persisted
// model and wires the services. Postgres schemas are migrated first.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{logger: logger}

	var err error
	switch cfg.Storage.Driver {
	case DriverPostgres:
		err = a.openPostgres(ctx, cfg)
	case DriverSQLite:
		err = a.openSQLite(cfg)
	default:
		err = fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Cache.MaxItems > 0 {
		a.Cache, err = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating prediction cache: %w", err)
		}
	}

	scorer, err := scoring.NewScorer(scoring.RulesFromConfig(cfg.Scoring))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configuring legacy scorer: %w", err)
	}

	a.Holder = modelstate.NewHolder(nil)
	a.Predictor = service.NewPredictor(logger, scorer, a.Holder, a.Cache)
	a.Assessments = service.NewAssessmentService(logger, a.Predictor, a.Store)

	engine := calibration.NewEngine(calibration.OptionsFromConfig(cfg.Scoring), logger)
	a.Calibration = service.NewCalibrationService(logger, engine, a.Store, a.Persister, a.Holder, a.Predictor, a.Cache)

	if _, err := a.Calibration.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	client, err := hospital.NewClient(cfg.Hospital, logger)
	switch {
	case errors.Is(err, hospital.ErrNotConfigured):
		client = nil
	case err != nil:
		a.Close()
		return nil, err
	}
	a.Importer = hospital.NewImporter(logger, a.Assessments, client)

	return a, nil
}

func (a *App) openPostgres(ctx context.Context, cfg *domain.Config) error {
	dbConfig := database.ConfigFromDomain(cfg.Database)

	if cfg.Database.MigrationsPath != "" {
		if err := database.Migrate(dbConfig.URL(), cfg.Database.MigrationsPath, a.logger); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	}

	db, err := database.NewConnection(ctx, dbConfig, a.logger)
	if err != nil {
		return err
	}
	a.DB = db
	a.History = repository.NewModelStateRepository(db.Pool, a.logger)
	a.Persister = a.History

	store, err := patient.NewPostgresStoreFromURL(dbConfig.URL(), cfg.Database)
	if err != nil {
		return err
	}
	a.Store = store
	return nil
}

func (a *App) openSQLite(cfg *domain.Config) error {
	store, err := patient.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	a.Store = store

	files, err := modelstate.NewFileStore(cfg.Storage.ModelDir)
	if err != nil {
		return err
	}
	a.Persister = files
	return nil
}

// Ping checks the backing database.
func (a *App) Ping(ctx context.Context) error {
	if a.DB != nil {
		return a.DB.Health(ctx)
	}
	_, err := a.Store.Count(ctx)
	return err
}

// Close releases storage.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close assessment store")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
