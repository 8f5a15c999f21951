package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	defaultSyncLimit = 100
)

// labsRequest carries the three measurements; pointers detect missing keys.
type labsRequest struct {
	AFP         *float64 `json:"afp" binding:"required"`
	PIVKAII     *float64 `json:"pivka_ii" binding:"required"`
	TumorBurden *float64 `json:"tumor_burden" binding:"required"`
}

func (r labsRequest) observation() domain.Observation {
	return domain.Observation{AFP: *r.AFP, PIVKAII: *r.PIVKAII, TumorBurden: *r.TumorBurden}
}

type predictRequest struct {
	labsRequest
	Adjustment int `json:"adjustment"`
}

type predictResponse struct {
	*domain.Prediction
	Contributions []domain.Contribution `json:"contributions"`
}

type assessmentRequest struct {
	labsRequest
	PatientID      string `json:"patient_id" binding:"required"`
	AssessmentDate string `json:"assessment_date"`
	Adjustment     int    `json:"adjustment"`
	ActualMVI      *bool  `json:"actual_mvi"`
	Notes          string `json:"notes"`
}

type outcomeRequest struct {
	ActualMVI *bool `json:"actual_mvi"`
}

// assessmentDateLayouts are accepted for assessment_date.
var assessmentDateLayouts = []string{"2006-01-02", time.RFC3339}

func parseAssessmentDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range assessmentDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.NewValidationError("assessment_date", "expected YYYY-MM-DD or RFC 3339", s)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	summary := s.services.Predictor.Summary()
	body := gin.H{
		"status":        "healthy",
		"timestamp":     time.Now().UTC(),
		"version":       Version,
		"strategy":      summary.Strategy,
		"model_version": summary.Version,
	}

	if s.services.Ping != nil {
		if err := s.services.Ping(c.Request.Context()); err != nil {
			body["status"] = "unhealthy"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handlePredict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	obs := req.observation()
	prediction, err := s.services.Predictor.Predict(obs, req.Adjustment)
	if err != nil {
		respondError(c, err)
		return
	}
	contributions, err := s.services.Predictor.Explain(obs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, predictResponse{Prediction: prediction, Contributions: contributions})
}

func (s *Server) handleCreateAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	date, err := parseAssessmentDate(req.AssessmentDate)
	if err != nil {
		respondError(c, err)
		return
	}

	rec, prediction, err := s.services.Assessments.Record(c.Request.Context(), service.AssessmentRequest{
		PatientID:      req.PatientID,
		AssessmentDate: date,
		Observation:    req.observation(),
		Adjustment:     req.Adjustment,
		ActualMVI:      req.ActualMVI,
		Source:         "api",
		Notes:          req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"assessment": rec, "prediction": prediction})
}

func (s *Server) handleListAssessments(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	records, err := s.services.Store.List(ctx, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := s.services.Store.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": records,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	patientID := c.Param("patient_id")
	rec, err := s.services.Store.Get(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		respondError(c, fmt.Errorf("assessment for patient %s: %w", patientID, domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteAssessment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, domain.NewValidationError("id", "must be an integer", c.Param("id")))
		return
	}
	if err := s.services.Store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRecordOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	patientID := c.Param("patient_id")
	if err := s.services.Assessments.RecordOutcome(c.Request.Context(), patientID, req.ActualMVI); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": patientID, "actual_mvi": req.ActualMVI})
}

func (s *Server) handleGetModel(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Predictor.Summary())
}

func (s *Server) handleCalibrate(c *gin.Context) {
	report, err := s.services.Calibration.Calibrate(c.Request.Context())
	if err != nil {
		var calErr *domain.CalibrationError
		if errors.As(err, &calErr) && report != nil {
			apiErr := newAPIError(c, err)
			apiErr.Message = calErr.Reason
			c.JSON(statusForCode(apiErr.Code), gin.H{"error": apiErr, "report": report})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRescore(c *gin.Context) {
	report, err := s.services.Calibration.Rescore(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleExport(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.services.Store.ExportJSON(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("mvi-assessments-%s.json", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func (s *Server) handleImport(c *gin.Context) {
	summary, err := s.services.Assessments.ImportExport(c.Request.Context(), c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleHospitalSync(c *gin.Context) {
	if s.services.Importer == nil {
		respondUpstream(c, http.StatusServiceUnavailable, hospital.ErrNotConfigured)
		return
	}

	limit, err := queryInt(c, "limit", defaultSyncLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := s.services.Importer.ImportFromAPI(c.Request.Context(), limit)
	switch {
	case errors.Is(err, hospital.ErrNotConfigured):
		respondUpstream(c, http.StatusServiceUnavailable, err)
	case err != nil:
		respondUpstream(c, http.StatusBadGateway, err)
	default:
		c.JSON(http.StatusOK, report)
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer", raw)
	}
	return n, nil
}
