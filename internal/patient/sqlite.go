package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// recordColumns is the select list shared by every record query.
const recordColumns = `id, patient_id, assessment_date, afp, pivka_ii, tumor_burden,
	total_score, points, probability, risk_level, model_version, strategy,
	actual_mvi, source, notes, created_at, updated_at`

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite assessment store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets predictions read while an import writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a Record.
func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var riskLevel, strategy string
	var actual sql.NullBool
	var source, notes sql.NullString

	err := s.Scan(
		&rec.ID, &rec.PatientID, &rec.AssessmentDate,
		&rec.AFP, &rec.PIVKAII, &rec.TumorBurden,
		&rec.TotalScore, &rec.Points, &rec.Probability,
		&riskLevel, &rec.ModelVersion, &strategy,
		&actual, &source, &notes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.RiskLevel = domain.RiskTier(riskLevel)
	rec.Strategy = domain.Strategy(strategy)
	if actual.Valid {
		rec.ActualMVI = BoolPtr(actual.Bool)
	}
	rec.Source = source.String
	rec.Notes = notes.String
	return rec, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id TEXT NOT NULL UNIQUE,
		assessment_date DATETIME NOT NULL,
		afp REAL NOT NULL,
		pivka_ii REAL NOT NULL,
		tumor_burden REAL NOT NULL,
		total_score INTEGER NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		probability REAL NOT NULL DEFAULT 0,
		risk_level TEXT NOT NULL,
		model_version INTEGER NOT NULL DEFAULT 0,
		strategy TEXT NOT NULL DEFAULT 'legacy',
		actual_mvi INTEGER,
		source TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_patients_assessment_date ON patients(assessment_date);
	CREATE INDEX IF NOT EXISTS idx_patients_actual_mvi ON patients(actual_mvi);
	CREATE INDEX IF NOT EXISTS idx_patients_created_at ON patients(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates the assessment for record.PatientID.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	if record.PatientID == "" {
		return domain.NewValidationError("patient_id", "patient ID is required", record.PatientID)
	}
	now := time.Now().UTC()
	if record.AssessmentDate.IsZero() {
		record.AssessmentDate = now
	}

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM patients WHERE patient_id = ?", record.PatientID,
	).Scan(&existingID, &createdAt)

	if err == nil {
		record.ID = existingID
		record.CreatedAt = createdAt
		record.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE patients SET
				assessment_date = ?,
				afp = ?,
				pivka_ii = ?,
				tumor_burden = ?,
				total_score = ?,
				points = ?,
				probability = ?,
				risk_level = ?,
				model_version = ?,
				strategy = ?,
				actual_mvi = ?,
				source = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			record.AssessmentDate,
			record.AFP,
			record.PIVKAII,
			record.TumorBurden,
			record.TotalScore,
			record.Points,
			record.Probability,
			string(record.RiskLevel),
			record.ModelVersion,
			string(record.Strategy),
			nullBool(record.ActualMVI),
			record.Source,
			record.Notes,
			now,
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (
			patient_id, assessment_date, afp, pivka_ii, tumor_burden,
			total_score, points, probability, risk_level, model_version, strategy,
			actual_mvi, source, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.PatientID,
		record.AssessmentDate,
		record.AFP,
		record.PIVKAII,
		record.TumorBurden,
		record.TotalScore,
		record.Points,
		record.Probability,
		string(record.RiskLevel),
		record.ModelVersion,
		string(record.Strategy),
		nullBool(record.ActualMVI),
		record.Source,
		record.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id

	return nil
}

// Get retrieves the assessment for a patient.
func (s *SQLiteStore) Get(ctx context.Context, patientID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM patients WHERE patient_id = ? LIMIT 1", patientID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// List returns assessments with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM patients ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of assessments.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&count)
	return count, err
}

// UpdateOutcome sets or clears the confirmed outcome for a patient.
func (s *SQLiteStore) UpdateOutcome(ctx context.Context, patientID string, actualMVI *bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE patients SET actual_mvi = ?, updated_at = ? WHERE patient_id = ?",
		nullBool(actualMVI), time.Now().UTC(), patientID)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
	}
	return nil
}

// LabeledCases returns every assessment with a confirmed outcome, oldest first.
func (s *SQLiteStore) LabeledCases(ctx context.Context) ([]domain.LabeledCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT afp, pivka_ii, tumor_burden, actual_mvi
		FROM patients
		WHERE actual_mvi IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query labeled cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.LabeledCase
	for rows.Next() {
		var c domain.LabeledCase
		if err := rows.Scan(&c.AFP, &c.PIVKAII, &c.TumorBurden, &c.ActualMVI); err != nil {
			return nil, fmt.Errorf("failed to scan labeled case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Delete removes an assessment by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE id = ?", id)
	return err
}

// ExportJSON exports all assessments to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s.List, writer)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
