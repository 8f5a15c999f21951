package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	dateLayout       = "2006-01-02"
)

// --- Tool input/output types ---

type predictRiskInput struct {
	AFP         float64 `json:"afp" jsonschema:"alpha-fetoprotein in ng/mL"`
	PIVKAII     float64 `json:"pivka_ii" jsonschema:"PIVKA-II in ng/mL"`
	TumorBurden float64 `json:"tumor_burden" jsonschema:"tumor burden score"`
	Adjustment  int     `json:"adjustment,omitempty" jsonschema:"clinical point adjustment added to the total score only"`
}

type predictionOutput struct {
	Probability     float64               `json:"probability"`
	Points          int                   `json:"points"`
	TotalScore      int                   `json:"total_score"`
	RiskTier        string                `json:"risk_tier"`
	Strategy        string                `json:"strategy"`
	ModelVersion    int64                 `json:"model_version"`
	Recommendations []string              `json:"recommendations"`
	Contributions   []domain.Contribution `json:"contributions,omitempty"`
}

type recordAssessmentInput struct {
	PatientID      string  `json:"patient_id" jsonschema:"hospital patient identifier"`
	AssessmentDate string  `json:"assessment_date,omitempty" jsonschema:"assessment date YYYY-MM-DD (default today)"`
	AFP            float64 `json:"afp" jsonschema:"alpha-fetoprotein in ng/mL"`
	PIVKAII        float64 `json:"pivka_ii" jsonschema:"PIVKA-II in ng/mL"`
	TumorBurden    float64 `json:"tumor_burden" jsonschema:"tumor burden score"`
	Adjustment     int     `json:"adjustment,omitempty" jsonschema:"clinical point adjustment"`
	ActualMVI      *bool   `json:"actual_mvi,omitempty" jsonschema:"confirmed MVI outcome, if already known"`
	Notes          string  `json:"notes,omitempty" jsonschema:"free-text notes"`
}

type recordAssessmentOutput struct {
	ID         int64            `json:"id"`
	PatientID  string           `json:"patient_id"`
	Prediction predictionOutput `json:"prediction"`
}

type recordOutcomeInput struct {
	PatientID string `json:"patient_id" jsonschema:"patient identifier of a stored assessment"`
	ActualMVI *bool  `json:"actual_mvi" jsonschema:"true if MVI was confirmed, false if not, null to clear"`
}

type recordOutcomeOutput struct {
	PatientID string `json:"patient_id"`
	ActualMVI *bool  `json:"actual_mvi"`
	Labeled   bool   `json:"labeled"`
}

type listAssessmentsInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum entries (default 20, max 500)"`
	Offset int `json:"offset,omitempty" jsonschema:"entries to skip"`
}

type assessmentOutput struct {
	ID             int64   `json:"id"`
	PatientID      string  `json:"patient_id"`
	AssessmentDate string  `json:"assessment_date"`
	AFP            float64 `json:"afp"`
	PIVKAII        float64 `json:"pivka_ii"`
	TumorBurden    float64 `json:"tumor_burden"`
	TotalScore     int     `json:"total_score"`
	Probability    float64 `json:"probability"`
	RiskLevel      string  `json:"risk_level"`
	Strategy       string  `json:"strategy"`
	ModelVersion   int64   `json:"model_version"`
	ActualMVI      *bool   `json:"actual_mvi"`
	Source         string  `json:"source,omitempty"`
}

type listAssessmentsOutput struct {
	Total       int64              `json:"total"`
	Assessments []assessmentOutput `json:"assessments"`
}

type emptyInput struct{}

type calibrateModelOutput struct {
	Status          string `json:"status"`
	LabeledCases    int    `json:"labeled_cases"`
	Required        int    `json:"required"`
	Version         int64  `json:"version"`
	PreviousVersion int64  `json:"previous_version"`
	Reason          string `json:"reason,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
}

type modelOutput struct {
	Strategy           string              `json:"strategy"`
	Version            int64               `json:"version"`
	TrainedAt          string              `json:"trained_at,omitempty"`
	SampleSize         int                 `json:"sample_size"`
	Coefficients       domain.Coefficients `json:"coefficients"`
	PointWeights       domain.PointWeights `json:"point_weights"`
	ProbabilityByScore map[string]float64  `json:"probability_by_score"`
}

// --- Handlers ---

func (s *Server) handlePredictRisk(_ context.Context, _ *sdkmcp.CallToolRequest, input predictRiskInput) (*sdkmcp.CallToolResult, predictionOutput, error) {
	obs := domain.Observation{AFP: input.AFP, PIVKAII: input.PIVKAII, TumorBurden: input.TumorBurden}

	prediction, err := s.deps.Predictor.Predict(obs, input.Adjustment)
	if err != nil {
		return nil, predictionOutput{}, err
	}
	contributions, err := s.deps.Predictor.Explain(obs)
	if err != nil {
		return nil, predictionOutput{}, err
	}

	out := toPredictionOutput(prediction)
	out.Contributions = contributions
	return nil, out, nil
}

func (s *Server) handleRecordAssessment(ctx context.Context, _ *sdkmcp.CallToolRequest, input recordAssessmentInput) (*sdkmcp.CallToolResult, recordAssessmentOutput, error) {
	date := time.Now().UTC()
	if input.AssessmentDate != "" {
		parsed, err := time.Parse(dateLayout, input.AssessmentDate)
		if err != nil {
			return nil, recordAssessmentOutput{}, domain.NewValidationError("assessment_date", "expected YYYY-MM-DD", input.AssessmentDate)
		}
		date = parsed
	}

	rec, prediction, err := s.deps.Assessments.Record(ctx, service.AssessmentRequest{
		PatientID:      input.PatientID,
		AssessmentDate: date,
		Observation:    domain.Observation{AFP: input.AFP, PIVKAII: input.PIVKAII, TumorBurden: input.TumorBurden},
		Adjustment:     input.Adjustment,
		ActualMVI:      input.ActualMVI,
		Source:         "mcp",
		Notes:          input.Notes,
	})
	if err != nil {
		return nil, recordAssessmentOutput{}, err
	}

	return nil, recordAssessmentOutput{
		ID:         rec.ID,
		PatientID:  rec.PatientID,
		Prediction: toPredictionOutput(prediction),
	}, nil
}

func (s *Server) handleRecordOutcome(ctx context.Context, _ *sdkmcp.CallToolRequest, input recordOutcomeInput) (*sdkmcp.CallToolResult, recordOutcomeOutput, error) {
	if input.PatientID == "" {
		return nil, recordOutcomeOutput{}, fmt.Errorf("patient_id is required")
	}
	if err := s.deps.Assessments.RecordOutcome(ctx, input.PatientID, input.ActualMVI); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, recordOutcomeOutput{}, fmt.Errorf("no assessment stored for patient %s", input.PatientID)
		}
		return nil, recordOutcomeOutput{}, err
	}
	return nil, recordOutcomeOutput{
		PatientID: input.PatientID,
		ActualMVI: input.ActualMVI,
		Labeled:   input.ActualMVI != nil,
	}, nil
}

func (s *Server) handleListAssessments(ctx context.Context, _ *sdkmcp.CallToolRequest, input listAssessmentsInput) (*sdkmcp.CallToolResult, listAssessmentsOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := s.deps.Store.List(ctx, limit, offset)
	if err != nil {
		return nil, listAssessmentsOutput{}, err
	}
	total, err := s.deps.Store.Count(ctx)
	if err != nil {
		return nil, listAssessmentsOutput{}, err
	}

	out := listAssessmentsOutput{Total: total, Assessments: make([]assessmentOutput, 0, len(records))}
	for _, rec := range records {
		out.Assessments = append(out.Assessments, toAssessmentOutput(rec))
	}
	return nil, out, nil
}

// handleCalibrateModel reports declined runs as a normal result; the status
// field tells the caller why the model was kept.
func (s *Server) handleCalibrateModel(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, calibrateModelOutput, error) {
	report, err := s.deps.Calibration.Calibrate(ctx)
	var calErr *domain.CalibrationError
	if err != nil && !(errors.As(err, &calErr) && report != nil) {
		return nil, calibrateModelOutput{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"status":  report.Status,
		"version": report.Version,
	}).Info("Calibration requested over MCP")

	return nil, calibrateModelOutput{
		Status:          string(report.Status),
		LabeledCases:    report.LabeledCases,
		Required:        report.Required,
		Version:         report.Version,
		PreviousVersion: report.PreviousModel,
		Reason:          report.Reason,
		DurationMS:      report.Duration.Milliseconds(),
	}, nil
}

func (s *Server) handleGetModel(_ context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, modelOutput, error) {
	summary := s.deps.Predictor.Summary()

	out := modelOutput{
		Strategy:           string(summary.Strategy),
		Version:            summary.Version,
		SampleSize:         summary.SampleSize,
		Coefficients:       summary.Coefficients,
		PointWeights:       summary.PointWeights,
		ProbabilityByScore: make(map[string]float64, len(summary.ProbabilityByScore)),
	}
	if summary.TrainedAt != nil {
		out.TrainedAt = summary.TrainedAt.UTC().Format(time.RFC3339)
	}
	for score, p := range summary.ProbabilityByScore {
		out.ProbabilityByScore[strconv.Itoa(score)] = p
	}
	return nil, out, nil
}

func toPredictionOutput(p *domain.Prediction) predictionOutput {
	return predictionOutput{
		Probability:     p.Probability,
		Points:          p.Points,
		TotalScore:      p.TotalScore,
		RiskTier:        string(p.RiskTier),
		Strategy:        string(p.Strategy),
		ModelVersion:    p.ModelVersion,
		Recommendations: p.Recommendations,
	}
}

func toAssessmentOutput(rec *patient.Record) assessmentOutput {
	return assessmentOutput{
		ID:             rec.ID,
		PatientID:      rec.PatientID,
		AssessmentDate: rec.AssessmentDate.Format(dateLayout),
		AFP:            rec.AFP,
		PIVKAII:        rec.PIVKAII,
		TumorBurden:    rec.TumorBurden,
		TotalScore:     rec.TotalScore,
		Probability:    rec.Probability,
		RiskLevel:      string(rec.RiskLevel),
		Strategy:       string(rec.Strategy),
		ModelVersion:   rec.ModelVersion,
		ActualMVI:      rec.ActualMVI,
		Source:         rec.Source,
	}
}
