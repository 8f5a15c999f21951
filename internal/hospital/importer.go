package hospital

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/service"
)

// Record sources written on imported assessments.
const (
	SourceHospitalAPI = "hospital_api"
	SourceFileImport  = "file_import"
)

// maxReportedErrors caps the per-record messages kept in a report.
const maxReportedErrors = 20

// ImportReport summarizes one import run.
type ImportReport struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Files    int      `json:"files,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *ImportReport) fail(msg string) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// Importer maps hospital records, scores them and stores the assessments.
type Importer struct {
	logger      *logrus.Logger
	assessments *service.AssessmentService
	client      *Client
	now         func() time.Time
}

// NewImporter creates an importer. client may be nil when only directory
// imports are used.
func NewImporter(logger *logrus.Logger, assessments *service.AssessmentService, client *Client) *Importer {
	return &Importer{
		logger:      logger,
		assessments: assessments,
		client:      client,
		now:         time.Now,
	}
}

// ImportFromAPI fetches up to limit patients from the hospital API.
func (i *Importer) ImportFromAPI(ctx context.Context, limit int) (*ImportReport, error) {
	if i.client == nil {
		return nil, ErrNotConfigured
	}

	raws, err := i.client.FetchPatients(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	i.importRecords(ctx, raws, SourceHospitalAPI, "", report)
	i.logReport(report, SourceHospitalAPI)
	return report, nil
}

// ImportDirectory imports every CSV and JSON file in dir.
func (i *Importer) ImportDirectory(ctx context.Context, dir string) (*ImportReport, error) {
	batches, err := ReadDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Files: len(batches)}
	for _, batch := range batches {
		if batch.Err != nil {
			report.fail(fmt.Sprintf("%s: %v", batch.Name, batch.Err))
			i.logger.WithError(batch.Err).WithField("file", batch.Name).Warn("Skipping unreadable import file")
			continue
		}
		i.importRecords(ctx, batch.Records, SourceFileImport, batch.Name, report)
	}

	i.logReport(report, SourceFileImport)
	return report, nil
}

func (i *Importer) importRecords(ctx context.Context, raws []map[string]any, source, file string, report *ImportReport) {
	now := i.now()
	for n, raw := range raws {
		label := fmt.Sprintf("record %d", n+1)
		if file != "" {
			label = file + " " + label
		}

		mapped, err := MapRecord(raw, now)
		if err != nil {
			report.fail(fmt.Sprintf("%s: %v", label, err))
			continue
		}

		_, _, err = i.assessments.Record(ctx, service.AssessmentRequest{
			PatientID:      mapped.PatientID,
			AssessmentDate: mapped.AssessmentDate,
			Observation:    mapped.Observation,
			ActualMVI:      mapped.ActualMVI,
			Source:         source,
			Notes:          fmt.Sprintf("Imported from %s on %s", source, now.Format(time.RFC3339)),
		})
		if err != nil {
			report.fail(fmt.Sprintf("%s (%s): %v", label, mapped.PatientID, err))
			continue
		}
		report.Imported++
	}
}

func (i *Importer) logReport(report *ImportReport, source string) {
	i.logger.WithFields(logrus.Fields{
		"source":   source,
		"imported": report.Imported,
		"failed":   report.Failed,
		"files":    report.Files,
	}).Info("Hospital import finished")
}
