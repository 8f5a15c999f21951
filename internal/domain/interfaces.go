package domain

import (
	"context"
)

// LabeledCaseSource supplies the labeled training corpus for calibration.
type LabeledCaseSource interface {
	LabeledCases(ctx context.Context) ([]LabeledCase, error)
}

// ModelStatePersister stores calibrated model states durably.
type ModelStatePersister interface {
	// Save writes the state as one atomic unit.
	Save(ctx context.Context, state *ModelState) error
	// LoadLatest returns the most recent state, or nil with no error when none exists.
	LoadLatest(ctx context.Context) (*ModelState, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetScoringConfig() *ScoringConfig
	GetHospitalConfig() *HospitalConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
