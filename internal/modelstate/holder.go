// Package modelstate holds the calibrated model used for prediction and
// persists it between restarts.
package modelstate

import (
	"sync/atomic"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// Holder publishes the resident model state. Readers always see either the
// previous or the next complete state, never a mix of the two.
type Holder struct {
	state atomic.Pointer[domain.ModelState]
}

// NewHolder creates a holder with an optional initial state.
func NewHolder(initial *domain.ModelState) *Holder {
	h := &Holder{}
	if initial != nil {
		h.state.Store(initial)
	}
	return h
}

// Load returns the resident state, or nil when no calibration has been published.
func (h *Holder) Load() *domain.ModelState {
	return h.state.Load()
}

// Swap publishes a new state and returns the one it replaced.
func (h *Holder) Swap(next *domain.ModelState) *domain.ModelState {
	return h.state.Swap(next)
}
