// Package config loads server configuration from files, environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hcc-mvi-risk-server/internal/database"
	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/scoring"
)

// EnvPrefix is prepended to environment overrides, e.g. MVI_RISK_SERVER_PORT.
const EnvPrefix = "MVI_RISK"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager that searches the default
// config locations.
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a manager reading an explicit config file. An
// empty path searches the default locations.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mvi-risk-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and environment variables still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "mvi_risk")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Storage defaults
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.sqlite_path", "data/patients.db")
	v.SetDefault("storage.model_dir", "data/models")

	// Scoring defaults
	v.SetDefault("scoring.afp_threshold", 20.0)
	v.SetDefault("scoring.pivka_ii_threshold", 35.0)
	v.SetDefault("scoring.tumor_burden_threshold", 6.4)
	v.SetDefault("scoring.afp_points", 1)
	v.SetDefault("scoring.pivka_ii_points", 2)
	v.SetDefault("scoring.tumor_burden_points", 1)
	v.SetDefault("scoring.min_training_cases", 10)
	v.SetDefault("scoring.cut_points", []float64{0.30, 0.45, 0.60, 0.75})
	v.SetDefault("scoring.epsilon", 1e-9)
	v.SetDefault("scoring.regularization", 1.0)
	v.SetDefault("scoring.max_iterations", 1000)

	// Hospital defaults
	v.SetDefault("hospital.base_url", "")
	v.SetDefault("hospital.api_key", "")
	v.SetDefault("hospital.hospital_id", "")
	v.SetDefault("hospital.import_dir", "data/import")
	v.SetDefault("hospital.timeout", "10s")
	v.SetDefault("hospital.rate_limit", 5)
	v.SetDefault("hospital.retry_count", 3)

	// Cache defaults
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetScoringConfig returns scoring and calibration configuration
func (m *Manager) GetScoringConfig() *domain.ScoringConfig {
	return &m.config.Scoring
}

// GetHospitalConfig returns hospital data source configuration
func (m *Manager) GetHospitalConfig() *domain.HospitalConfig {
	return &m.config.Hospital
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Storage.Driver {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
		if config.Storage.ModelDir == "" {
			return fmt.Errorf("model directory is required")
		}
	default:
		return fmt.Errorf("invalid storage driver: %q", config.Storage.Driver)
	}

	if err := validateScoring(config.Scoring); err != nil {
		return err
	}

	if config.Cache.MaxItems < 0 {
		return fmt.Errorf("cache max_items must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

func validateScoring(s domain.ScoringConfig) error {
	if s.AFPThreshold < 0 || s.PIVKAIIThreshold < 0 || s.TumorBurdenThreshold < 0 {
		return fmt.Errorf("scoring thresholds must not be negative")
	}
	if s.AFPPoints < 0 || s.PIVKAIIPoints < 0 || s.TumorBurdenPoints < 0 {
		return fmt.Errorf("scoring points must not be negative")
	}
	if err := scoring.RulesFromConfig(s).Validate(); err != nil {
		return fmt.Errorf("invalid scoring points: %w", err)
	}
	if s.MinTrainingCases < 2 {
		return fmt.Errorf("min_training_cases must be at least 2, got %d", s.MinTrainingCases)
	}
	if len(s.CutPoints) == 0 {
		return fmt.Errorf("at least one calibration cut point is required")
	}
	for i := 1; i < len(s.CutPoints); i++ {
		if s.CutPoints[i] <= s.CutPoints[i-1] {
			return fmt.Errorf("calibration cut points must be strictly increasing: %v", s.CutPoints)
		}
	}
	for _, c := range s.CutPoints {
		if c <= 0 || c >= 1 {
			return fmt.Errorf("calibration cut point %v outside (0, 1)", c)
		}
	}
	if s.Regularization <= 0 {
		return fmt.Errorf("regularization must be positive")
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	return database.ConfigFromDomain(m.config.Database).DSN()
}

// GetDatabaseURL returns the postgres:// URL used by migrations and lib/pq.
func (m *Manager) GetDatabaseURL() string {
	return database.ConfigFromDomain(m.config.Database).URL()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

var _ domain.ConfigManager = (*Manager)(nil)
