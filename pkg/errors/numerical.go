package errors

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// maxReportedValues は NumericalInstabilityError に載せる値の上限
const maxReportedValues = 10

func nonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// CheckNumericalStability returns a NumericalInstabilityError when values
// contain NaN or ±Inf, e.g. diverged predictions or gradients.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	if floats.HasNaN(values) {
		return NewNumericalInstabilityError(operation, values, iteration)
	}
	for _, v := range values {
		if math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// CheckScalar is CheckNumericalStability for a single loss or score.
func CheckScalar(operation string, value float64, iteration int) error {
	if nonFinite(value) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// CheckMatrix scans a feature matrix row by row and reports the non-finite
// values of the first offending row.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols, iteration int) error {
	for i := 0; i < rows; i++ {
		var bad []float64
		for j := 0; j < cols && len(bad) < maxReportedValues; j++ {
			if v := matrix.At(i, j); nonFinite(v) {
				bad = append(bad, v)
			}
		}
		if len(bad) > 0 {
			return NewNumericalInstabilityError(operation, bad, iteration)
		}
	}
	return nil
}

// ClipGradient rescales gradient in place so its L2 norm is at most maxNorm
// and returns the norm before clipping.
func ClipGradient(gradient []float64, maxNorm float64) float64 {
	norm := floats.Norm(gradient, 2)
	if norm > maxNorm && norm > 0 {
		floats.Scale(maxNorm/norm, gradient)
	}
	return norm
}
