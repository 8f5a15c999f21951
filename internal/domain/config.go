package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Scoring     ScoringConfig  `mapstructure:"scoring"`
	Hospital    HospitalConfig `mapstructure:"hospital"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// StorageConfig selects where patient records and model artifacts live.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // "postgres" or "sqlite"
	SQLitePath string `mapstructure:"sqlite_path"`
	ModelDir   string `mapstructure:"model_dir"`
}

// ScoringConfig tunes the threshold scorer and the calibration engine.
type ScoringConfig struct {
	AFPThreshold         float64   `mapstructure:"afp_threshold"`
	PIVKAIIThreshold     float64   `mapstructure:"pivka_ii_threshold"`
	TumorBurdenThreshold float64   `mapstructure:"tumor_burden_threshold"`
	AFPPoints            int       `mapstructure:"afp_points"`
	PIVKAIIPoints        int       `mapstructure:"pivka_ii_points"`
	TumorBurdenPoints    int       `mapstructure:"tumor_burden_points"`
	MinTrainingCases     int       `mapstructure:"min_training_cases"`
	CutPoints            []float64 `mapstructure:"cut_points"`
	Epsilon              float64   `mapstructure:"epsilon"`
	Regularization       float64   `mapstructure:"regularization"`
	MaxIterations        int       `mapstructure:"max_iterations"`
}

// HospitalConfig represents the hospital data source configuration
type HospitalConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	HospitalID string        `mapstructure:"hospital_id"`
	ImportDir  string        `mapstructure:"import_dir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// CacheConfig represents prediction cache configuration
type CacheConfig struct {
	MaxItems int           `mapstructure:"max_items"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
