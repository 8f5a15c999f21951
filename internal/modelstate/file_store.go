package modelstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// DefaultFileName is the artifact written inside the model directory.
const DefaultFileName = "model_state.json"

// FileStore persists the latest model state as a JSON document. Writes go to a
// temporary file in the same directory and are renamed into place.
type FileStore struct {
	path string
}

// NewFileStore creates a store under dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, DefaultFileName)}, nil
}

// Path returns the artifact location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the state, replacing any previous artifact.
func (s *FileStore) Save(ctx context.Context, state *domain.ModelState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model state: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".model_state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync model state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to publish model state: %w", err)
	}
	return nil
}

// LoadLatest reads the artifact. It returns nil, nil when none exists.
func (s *FileStore) LoadLatest(ctx context.Context) (*domain.ModelState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model state: %w", err)
	}

	var state domain.ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", domain.ErrInvalidModelState, s.path, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidModelState, err)
	}
	return &state, nil
}

var _ domain.ModelStatePersister = (*FileStore)(nil)
