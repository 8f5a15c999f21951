package calibration

import (
	"gonum.org/v1/gonum/stat"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// FitScaler computes per-feature mean and population standard deviation over
// the batch. Columns with zero spread get scale 1 so they standardize to 0.
func FitScaler(cases []domain.LabeledCase) domain.Scaler {
	var scaler domain.Scaler
	column := make([]float64, len(cases))

	for j := 0; j < domain.NumFeatures; j++ {
		for i, c := range cases {
			column[i] = c.Vector()[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		scaler.Mean[j] = mean
		scaler.Scale[j] = std
	}
	return scaler
}

// standardize applies the scaler to every case.
func standardize(scaler domain.Scaler, cases []domain.LabeledCase) ([][domain.NumFeatures]float64, []float64) {
	x := make([][domain.NumFeatures]float64, len(cases))
	y := make([]float64, len(cases))
	for i, c := range cases {
		x[i] = scaler.Transform(c.Observation)
		if c.ActualMVI {
			y[i] = 1
		}
	}
	return x, y
}
