// This file contains the lightweight server that requires no external databases.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/cache"
	"github.com/hcc-mvi-risk-server/internal/calibration"
	litecfg "github.com/hcc-mvi-risk-server/internal/config"
	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/logging"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/scoring"
	"github.com/hcc-mvi-risk-server/internal/service"
)

// LiteServer is a lightweight MCP server backed by SQLite and a model file.
type LiteServer struct {
	*Server

	config *litecfg.LiteConfig
	store  patient.Store
	cache  *cache.MemoryCache
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom assessment store.
func WithStore(store patient.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance. A persisted
// model found in the data directory is restored before tools are served.
func NewLiteServer(ctx context.Context, cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	// Logs go to stderr; stdout carries the stdio transport.
	server := &LiteServer{
		config: cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.CacheMaxItems > 0 {
		memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		server.cache = memCache
	}

	if server.store == nil {
		store, err := patient.NewSQLiteStore(cfg.PatientsDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create assessment store: %w", err)
		}
		server.store = store
	}

	files, err := modelstate.NewFileStore(cfg.ModelDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create model store: %w", err)
	}

	holder := modelstate.NewHolder(nil)
	predictor := service.NewPredictor(server.logger, scoring.DefaultScorer(), holder, server.cache)
	engine := calibration.NewEngine(calibration.OptionsFromConfig(cfg.ScoringConfig()), server.logger)
	calibrator := service.NewCalibrationService(server.logger, engine, server.store, files, holder, predictor, server.cache)

	if _, err := calibrator.Restore(ctx); err != nil {
		server.logger.WithError(err).Warn("Ignoring unreadable model artifact, using legacy scoring")
	}

	client, err := hospital.NewClient(cfg.HospitalConfig(), server.logger)
	if err != nil && !errors.Is(err, hospital.ErrNotConfigured) {
		return nil, fmt.Errorf("failed to create hospital client: %w", err)
	}

	assessments := service.NewAssessmentService(server.logger, predictor, server.store)
	server.Server = NewServer(server.logger, Dependencies{
		Predictor:   predictor,
		Assessments: assessments,
		Calibration: calibrator,
		Store:       server.store,
		Importer:    hospital.NewImporter(server.logger, assessments, client),
		ImportDir:   cfg.ImportDir(),
		ExportDir:   cfg.ExportDir(),
	})

	server.logger.WithField("data_dir", cfg.DataDir).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP on the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport_type", s.config.Transport).Info("Starting HCC MVI risk MCP server (lite)")

	switch s.config.Transport {
	case "", "stdio":
		if err := s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport: %q", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return s.MCPServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("MCP streamable HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close assessment store")
			return err
		}
	}
	return nil
}

// GetStore returns the assessment store.
func (s *LiteServer) GetStore() patient.Store {
	return s.store
}

// GetCache returns the prediction cache, or nil when caching is disabled.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
