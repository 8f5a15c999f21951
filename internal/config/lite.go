// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the patient database and model artifact

	// Cache settings
	CacheMaxItems int           // Maximum cached predictions
	CacheTTL      time.Duration // Prediction cache TTL

	// Calibration
	MinTrainingCases int

	// Hospital API (optional)
	HospitalURL    string
	HospitalAPIKey string
	HospitalID     string

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".mvi-risk")

	return &LiteConfig{
		DataDir:          dataDir,
		CacheMaxItems:    1000,
		CacheTTL:         time.Hour,
		MinTrainingCases: 10,
		Transport:        "stdio",
		HTTPPort:         8080,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("MVI_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("MVI_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("MVI_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("MVI_MIN_TRAINING_CASES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			cfg.MinTrainingCases = n
		}
	}

	cfg.HospitalURL = os.Getenv("MVI_HOSPITAL_API_URL")
	cfg.HospitalAPIKey = os.Getenv("MVI_HOSPITAL_API_KEY")
	cfg.HospitalID = os.Getenv("MVI_HOSPITAL_ID")

	if v := os.Getenv("MVI_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("MVI_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("MVI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MVI_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// PatientsDBPath returns the path to the patient SQLite database.
func (c *LiteConfig) PatientsDBPath() string {
	return filepath.Join(c.DataDir, "patients.db")
}

// ModelDir returns the directory holding the calibrated model artifact.
func (c *LiteConfig) ModelDir() string {
	return filepath.Join(c.DataDir, "models")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// ImportDir returns the drop directory scanned for hospital export files.
func (c *LiteConfig) ImportDir() string {
	return filepath.Join(c.DataDir, "import")
}

// HospitalConfig converts the hospital settings for the API client.
func (c *LiteConfig) HospitalConfig() domain.HospitalConfig {
	return domain.HospitalConfig{
		BaseURL:    c.HospitalURL,
		APIKey:     c.HospitalAPIKey,
		HospitalID: c.HospitalID,
		ImportDir:  c.ImportDir(),
		Timeout:    10 * time.Second,
		RateLimit:  5,
		RetryCount: 3,
	}
}

// ScoringConfig returns calibration settings; thresholds keep their defaults.
func (c *LiteConfig) ScoringConfig() domain.ScoringConfig {
	return domain.ScoringConfig{MinTrainingCases: c.MinTrainingCases}
}

// EnsureDataDir creates the data directories if they don't exist.
func (c *LiteConfig) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.ModelDir(), c.ExportDir(), c.ImportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
