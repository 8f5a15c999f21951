// Package hospital imports assessments from a hospital system, either over
// its REST API or from CSV and JSON export files dropped in a directory.
package hospital

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// Field aliases in lookup order.
var (
	patientIDKeys   = []string{"patient_id", "patientId", "id"}
	dateKeys        = []string{"assessment_date", "assessmentDate"}
	afpKeys         = []string{"afp", "AFP"}
	pivkaKeys       = []string{"pivka_ii", "PIVKA-II", "pivka"}
	tumorBurdenKeys = []string{"tumor_burden", "tumorBurden"}
	mviKeys         = []string{"actual_mvi", "mvi"}
)

// dateLayouts are tried in order for assessment dates.
var dateLayouts = []string{"2006-01-02", "01/02/2006"}

// MappedRecord is a hospital row normalized to the assessment model.
type MappedRecord struct {
	PatientID      string
	AssessmentDate time.Time
	Observation    domain.Observation
	ActualMVI      *bool
}

// MapRecord normalizes one hospital record. Lab values are required; an
// unparseable or missing assessment date falls back to now.
func MapRecord(raw map[string]any, now time.Time) (*MappedRecord, error) {
	rec := &MappedRecord{AssessmentDate: now}

	id, ok := lookup(raw, patientIDKeys)
	if !ok {
		return nil, domain.NewValidationError("patient_id", "patient ID is required", nil)
	}
	rec.PatientID = strings.TrimSpace(toString(id))
	if rec.PatientID == "" {
		return nil, domain.NewValidationError("patient_id", "patient ID is required", id)
	}

	if v, ok := lookup(raw, dateKeys); ok {
		if t, ok := parseDate(toString(v)); ok {
			rec.AssessmentDate = t
		}
	}

	var err error
	if rec.Observation.AFP, err = requiredNumber(raw, afpKeys, "afp"); err != nil {
		return nil, err
	}
	if rec.Observation.PIVKAII, err = requiredNumber(raw, pivkaKeys, "pivka_ii"); err != nil {
		return nil, err
	}
	if rec.Observation.TumorBurden, err = requiredNumber(raw, tumorBurdenKeys, "tumor_burden"); err != nil {
		return nil, err
	}
	if err := rec.Observation.Validate(); err != nil {
		return nil, err
	}

	if v, ok := lookup(raw, mviKeys); ok {
		rec.ActualMVI = parseBool(v)
	}

	return rec, nil
}

// lookup returns the first present, non-empty value among keys.
func lookup(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func requiredNumber(raw map[string]any, keys []string, field string) (float64, error) {
	v, ok := lookup(raw, keys)
	if !ok {
		return 0, domain.NewValidationError(field, "value is required", nil)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, domain.NewValidationError(field, err.Error(), v)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseBool accepts booleans, 0/1 numbers and the strings true, yes, 1 and
// positive (case-insensitive); any other string is false.
func parseBool(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case float64:
		b = x != 0
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		b = f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1", "positive":
			b = true
		}
	default:
		return nil
	}
	return &b
}
