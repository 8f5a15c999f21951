// Package api exposes risk prediction, assessment storage and model
// calibration over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/middleware"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Services are the application operations the API dispatches to.
type Services struct {
	Predictor   *service.Predictor
	Assessments *service.AssessmentService
	Calibration *service.CalibrationService
	Store       patient.Store
	// Importer is optional; hospital sync answers 503 without it.
	Importer *hospital.Importer
	// Ping is optional and reports backing store health.
	Ping func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	config   domain.ServerConfig
	logger   *logrus.Logger
	services Services
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, logger *logrus.Logger, services Services) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	s := &Server{
		config:   cfg,
		logger:   logger,
		services: services,
		router:   router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/predict", s.handlePredict)

		v1.POST("/assessments", s.handleCreateAssessment)
		v1.GET("/assessments", s.handleListAssessments)
		v1.GET("/assessments/:patient_id", s.handleGetAssessment)
		v1.DELETE("/assessments/:id", s.handleDeleteAssessment)
		v1.PUT("/assessments/:patient_id/outcome", s.handleRecordOutcome)

		v1.GET("/model", s.handleGetModel)
		v1.POST("/model/calibrate", s.handleCalibrate)
		v1.POST("/model/rescore", s.handleRescore)

		v1.GET("/export", s.handleExport)
		v1.POST("/import", s.handleImport)
		v1.POST("/import/hospital", s.handleHospitalSync)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
