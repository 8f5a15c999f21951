package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRiskTierConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    RiskTier
		expected string
	}{
		{"Low", LOW, "LOW"},
		{"Moderate", MODERATE, "MODERATE"},
		{"High", HIGH, "HIGH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if !tt.value.IsValid() {
				t.Errorf("%s should be valid", tt.value)
			}
		})
	}

	if RiskTier("CRITICAL").IsValid() {
		t.Error("unknown tier should be invalid")
	}
}

func TestObservationValidate(t *testing.T) {
	tests := []struct {
		name    string
		obs     Observation
		wantErr bool
	}{
		{"all zero", Observation{}, false},
		{"typical", Observation{AFP: 25, PIVKAII: 40, TumorBurden: 7}, false},
		{"negative afp", Observation{AFP: -1, PIVKAII: 40, TumorBurden: 7}, true},
		{"nan pivka", Observation{AFP: 1, PIVKAII: math.NaN(), TumorBurden: 7}, true},
		{"inf burden", Observation{AFP: 1, PIVKAII: 2, TumorBurden: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedInput) {
					t.Errorf("Expected ErrMalformedInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestScalerTransform(t *testing.T) {
	s := Scaler{
		Mean:  [NumFeatures]float64{10, 20, 5},
		Scale: [NumFeatures]float64{5, 0, 2},
	}
	got := s.Transform(Observation{AFP: 20, PIVKAII: 23, TumorBurden: 4})
	want := [NumFeatures]float64{2, 3, -0.5}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestModelStateValidate(t *testing.T) {
	valid := func() *ModelState {
		return &ModelState{
			ID:                 uuid.New(),
			Version:            1,
			TrainedAt:          time.Now(),
			CutPoints:          []float64{0.30, 0.45, 0.60, 0.75},
			ProbabilityByScore: map[int]float64{0: 20, 1: 40, 2: 55, 3: 70, 4: 90},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Expected valid state, got %v", err)
	}

	missing := valid()
	delete(missing.ProbabilityByScore, 3)
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for incomplete probability table")
	}

	unordered := valid()
	unordered.CutPoints = []float64{0.30, 0.60, 0.45, 0.75}
	if err := unordered.Validate(); err == nil {
		t.Error("Expected error for unordered cut points")
	}

	nonFinite := valid()
	nonFinite.Intercept = math.NaN()
	if err := nonFinite.Validate(); err == nil {
		t.Error("Expected error for non-finite intercept")
	}
}

func TestPointWeightsTotal(t *testing.T) {
	w := PointWeights{AFP: 1, PIVKAII: 2, TumorBurden: 1}
	if w.Total() != 4 {
		t.Errorf("Expected total 4, got %d", w.Total())
	}
	if PointWeightsFromVector(w.Vector()) != w {
		t.Error("vector round trip should preserve weights")
	}
}
