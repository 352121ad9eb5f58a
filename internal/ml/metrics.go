package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RMSE returns the root mean squared error between predictions and actuals.
func RMSE(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) {
		return 0, fmt.Errorf("%w: %d predictions, %d actuals", errDimension, len(pred), len(actual))
	}
	if len(pred) == 0 {
		return 0, ErrEmpty
	}
	return floats.Distance(pred, actual, 2) / math.Sqrt(float64(len(pred))), nil
}

// R2 returns the coefficient of determination. A constant actual series
// scores 1 when matched exactly and 0 otherwise.
func R2(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) {
		return 0, fmt.Errorf("%w: %d predictions, %d actuals", errDimension, len(pred), len(actual))
	}
	if len(pred) == 0 {
		return 0, ErrEmpty
	}
	if stat.Variance(actual, nil) == 0 || len(actual) == 1 {
		if floats.EqualApprox(pred, actual, 1e-12) {
			return 1, nil
		}
		return 0, nil
	}
	return stat.RSquaredFrom(pred, actual, nil), nil
}

// AccuracyPct turns R² into a percentage floored at zero.
func AccuracyPct(r2 float64) float64 {
	if r2 < 0 || math.IsNaN(r2) {
		return 0
	}
	return r2 * 100
}
