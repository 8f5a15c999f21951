// Package repository persists calibrated model states in PostgreSQL. Every
// calibration is kept as a row so earlier models stay auditable.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// ModelStateRecord is one row of calibration history.
type ModelStateRecord struct {
	ID            uuid.UUID `json:"id"`
	Version       int64     `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	SampleSize    int       `json:"sample_size"`
	PositiveCases int       `json:"positive_cases"`
	CreatedAt     time.Time `json:"created_at"`
}

// ModelStateRepository handles model state persistence
type ModelStateRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewModelStateRepository creates a new model state repository
func NewModelStateRepository(db *pgxpool.Pool, logger *logrus.Logger) *ModelStateRepository {
	return &ModelStateRepository{
		db:  db,
		log: logger,
	}
}

// Save appends a model state. Versions are unique; saving a version twice fails.
func (r *ModelStateRepository) Save(ctx context.Context, state *domain.ModelState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model state: %w", err)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding model state: %w", err)
	}

	query := `
		INSERT INTO model_states (
			id, version, trained_at, sample_size, positive_cases, state
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err = r.db.Exec(ctx, query,
		state.ID,
		state.Version,
		state.TrainedAt,
		state.SampleSize,
		state.PositiveCases,
		payload,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"model_id": state.ID,
			"version":  state.Version,
			"error":    err,
		}).Error("Failed to save model state")
		return fmt.Errorf("saving model state: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"model_id":    state.ID,
		"version":     state.Version,
		"sample_size": state.SampleSize,
	}).Info("Model state saved")

	return nil
}

// LoadLatest returns the highest version, or nil when none has been saved.
func (r *ModelStateRepository) LoadLatest(ctx context.Context) (*domain.ModelState, error) {
	query := `SELECT state FROM model_states ORDER BY version DESC LIMIT 1`

	state, err := r.scanState(r.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest model state: %w", err)
	}
	return state, nil
}

// GetByVersion returns one saved model state.
func (r *ModelStateRepository) GetByVersion(ctx context.Context, version int64) (*domain.ModelState, error) {
	query := `SELECT state FROM model_states WHERE version = $1`

	state, err := r.scanState(r.db.QueryRow(ctx, query, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("model version %d: %w", version, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting model state %d: %w", version, err)
	}
	return state, nil
}

// History lists saved model states, newest first.
func (r *ModelStateRepository) History(ctx context.Context, limit int) ([]ModelStateRecord, error) {
	query := `
		SELECT id, version, trained_at, sample_size, positive_cases, created_at
		FROM model_states
		ORDER BY version DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing model states: %w", err)
	}
	defer rows.Close()

	var history []ModelStateRecord
	for rows.Next() {
		var rec ModelStateRecord
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.TrainedAt, &rec.SampleSize, &rec.PositiveCases, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning model state: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (r *ModelStateRepository) scanState(row pgx.Row) (*domain.ModelState, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}

	var state domain.ModelState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding model state: %v", domain.ErrInvalidModelState, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidModelState, err)
	}
	return &state, nil
}

var _ domain.ModelStatePersister = (*ModelStateRepository)(nil)
