// Package mcp exposes risk prediction and model calibration as MCP tools.
package mcp

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/service"
)

// ServerName identifies the server to MCP clients.
const ServerName = "hcc-mvi-risk-server"

// ServerVersion is reported during initialization.
const ServerVersion = "v1.0.0"

// Dependencies are the application services the tools call into.
type Dependencies struct {
	Predictor   *service.Predictor
	Assessments *service.AssessmentService
	Calibration *service.CalibrationService
	Store       patient.Store

	// Optional. import_patients is registered only with an Importer and
	// export_assessments only with an export directory.
	Importer  *hospital.Importer
	ImportDir string
	ExportDir string
}

// Server wraps the MCP SDK server with the risk tools registered.
type Server struct {
	MCPServer *sdkmcp.Server
	deps      Dependencies
	logger    *logrus.Logger
}

// NewServer creates an MCP server and registers every tool.
func NewServer(logger *logrus.Logger, deps Dependencies) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: ServerName, Version: ServerVersion}, nil),
		deps:      deps,
		logger:    logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "predict_risk",
		Description: "Predict MVI probability and risk tier from AFP (ng/mL), PIVKA-II (ng/mL) and tumor burden score. Nothing is stored.",
	}, s.handlePredictRisk)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "record_assessment",
		Description: "Score a patient's labs and store the assessment, replacing any earlier one for the same patient ID.",
	}, s.handleRecordAssessment)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "record_outcome",
		Description: "Record the pathology-confirmed MVI outcome for a patient. Pass null to clear it.",
	}, s.handleRecordOutcome)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_assessments",
		Description: "List stored assessments, newest first.",
	}, s.handleListAssessments)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "calibrate_model",
		Description: "Refit the model on all labeled assessments. The current model stays in effect when there is too little or single-class data.",
	}, s.handleCalibrateModel)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_model",
		Description: "Describe the model in effect: strategy, version, coefficients, point weights and probability table.",
	}, s.handleGetModel)
	count := 6

	if s.deps.Importer != nil {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        "import_patients",
			Description: "Import and score patients from the hospital API (source=hospital) or from CSV/JSON files in the import directory (source=directory).",
		}, s.handleImportPatients)
		count++
	}
	if s.deps.ExportDir != "" {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        "export_assessments",
			Description: "Write every stored assessment to a timestamped JSON file in the export directory.",
		}, s.handleExportAssessments)
		count++
	}

	s.logger.WithField("tool_count", count).Debug("Registered MCP tools")
}
