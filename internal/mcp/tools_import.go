package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hcc-mvi-risk-server/internal/hospital"
)

const (
	importSourceHospital  = "hospital"
	importSourceDirectory = "directory"
	defaultImportLimit    = 100
)

type importPatientsInput struct {
	Source string `json:"source" jsonschema:"hospital or directory"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum patients fetched from the hospital API (default 100)"`
}

type importPatientsOutput struct {
	Source   string   `json:"source"`
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Files    int      `json:"files,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

type exportAssessmentsOutput struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

func (s *Server) handleImportPatients(ctx context.Context, _ *sdkmcp.CallToolRequest, input importPatientsInput) (*sdkmcp.CallToolResult, importPatientsOutput, error) {
	var (
		report *hospital.ImportReport
		err    error
	)
	switch input.Source {
	case importSourceHospital:
		limit := input.Limit
		if limit <= 0 {
			limit = defaultImportLimit
		}
		report, err = s.deps.Importer.ImportFromAPI(ctx, limit)
	case importSourceDirectory:
		if s.deps.ImportDir == "" {
			return nil, importPatientsOutput{}, fmt.Errorf("no import directory configured")
		}
		report, err = s.deps.Importer.ImportDirectory(ctx, s.deps.ImportDir)
	default:
		return nil, importPatientsOutput{}, fmt.Errorf("source must be %q or %q, got %q", importSourceHospital, importSourceDirectory, input.Source)
	}
	if err != nil {
		return nil, importPatientsOutput{}, err
	}

	return nil, importPatientsOutput{
		Source:   input.Source,
		Imported: report.Imported,
		Failed:   report.Failed,
		Files:    report.Files,
		Errors:   report.Errors,
	}, nil
}

func (s *Server) handleExportAssessments(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, exportAssessmentsOutput, error) {
	count, err := s.deps.Store.Count(ctx)
	if err != nil {
		return nil, exportAssessmentsOutput{}, err
	}

	name := fmt.Sprintf("assessments-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(s.deps.ExportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, exportAssessmentsOutput{}, fmt.Errorf("failed to create export file: %w", err)
	}
	if err := s.deps.Store.ExportJSON(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return nil, exportAssessmentsOutput{}, err
	}
	if err := f.Close(); err != nil {
		return nil, exportAssessmentsOutput{}, err
	}

	s.logger.WithField("path", path).Info("Exported assessments")
	return nil, exportAssessmentsOutput{Path: path, Count: count}, nil
}
