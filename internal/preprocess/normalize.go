package preprocess

import (
	"fmt"
	"math"
)

// Scaler rescales one column. Zero-spread columns are only centred.
type Scaler interface {
	Name() string
	Scale(values []float64) []float64
}

// ScalerFor returns the scaler registered under name
func ScalerFor(name string) (Scaler, error) {
	switch name {
	case "", "standard":
		return StandardScaler{}, nil
	case "robust":
		return RobustScaler{}, nil
	default:
		return nil, fmt.Errorf("unknown normalization method %q", name)
	}
}

// StandardScaler maps values to (x - mean) / std
type StandardScaler struct{}

func (StandardScaler) Name() string { return "standard" }

func (StandardScaler) Scale(values []float64) []float64 {
	mean, std, n := meanStd(values)
	if n == 0 {
		return append([]float64(nil), values...)
	}
	return affine(values, mean, std)
}

// RobustScaler maps values to (x - median) / IQR
type RobustScaler struct{}

func (RobustScaler) Name() string { return "robust" }

func (RobustScaler) Scale(values []float64) []float64 {
	median := finiteMedian(values)
	q1, q3, ok := quartiles(values)
	spread := q3 - q1
	if !ok {
		spread = 0
	}
	return affine(values, median, spread)
}

func affine(values []float64, center, spread float64) []float64 {
	if spread <= 1e-12 || math.IsNaN(spread) {
		spread = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - center) / spread
	}
	return out
}
