package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL assessment store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL assessment store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, cfg domain.DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := 25, 5, 5*time.Minute
	if cfg.MaxOpenConns > 0 {
		maxOpen = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		maxIdle = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		lifetime = cfg.ConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates the assessment for record.PatientID.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	if record.PatientID == "" {
		return domain.NewValidationError("patient_id", "patient ID is required", record.PatientID)
	}
	now := time.Now().UTC()
	if record.AssessmentDate.IsZero() {
		record.AssessmentDate = now
	}

	query := `
		INSERT INTO patients (
			patient_id, assessment_date, afp, pivka_ii, tumor_burden,
			total_score, points, probability, risk_level, model_version, strategy,
			actual_mvi, source, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (patient_id) DO UPDATE SET
			assessment_date = EXCLUDED.assessment_date,
			afp = EXCLUDED.afp,
			pivka_ii = EXCLUDED.pivka_ii,
			tumor_burden = EXCLUDED.tumor_burden,
			total_score = EXCLUDED.total_score,
			points = EXCLUDED.points,
			probability = EXCLUDED.probability,
			risk_level = EXCLUDED.risk_level,
			model_version = EXCLUDED.model_version,
			strategy = EXCLUDED.strategy,
			actual_mvi = EXCLUDED.actual_mvi,
			source = EXCLUDED.source,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
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
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}

	record.UpdatedAt = now
	return nil
}

// Get retrieves the assessment for a patient.
func (s *PostgresStore) Get(ctx context.Context, patientID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM patients WHERE patient_id = $1 LIMIT 1", patientID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return rec, nil
}

// List returns assessments with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM patients ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}

// UpdateOutcome sets or clears the confirmed outcome for a patient.
func (s *PostgresStore) UpdateOutcome(ctx context.Context, patientID string, actualMVI *bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE patients SET actual_mvi = $1, updated_at = $2 WHERE patient_id = $3",
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
func (s *PostgresStore) LabeledCases(ctx context.Context) ([]domain.LabeledCase, error) {
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
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}
	return nil
}

// ExportJSON exports all assessments to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s.List, writer)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
