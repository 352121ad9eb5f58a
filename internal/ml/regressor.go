// Package ml holds the regression models, the feature scaler and the
// evaluation helpers used to train and serve the forecaster.
package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned by Predict/Transform before Fit succeeded.
	ErrNotFitted = errors.New("model is not fitted")
	// ErrEmpty is returned when a fit is attempted on zero rows.
	ErrEmpty = errors.New("no training rows")

	errDimension = errors.New("dimension mismatch")
)

// Regressor is a single-output regression model.
type Regressor interface {
	// Kind is the stable identifier used when the model is serialized.
	Kind() string
	Fit(X *mat.Dense, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
}

// SelectRows returns a copy of the rows of X listed in idx.
func SelectRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(max(len(idx), 1), max(c, 1), nil)
	if len(idx) == 0 || c == 0 {
		return out
	}
	row := make([]float64, c)
	for i, r := range idx {
		mat.Row(row, r, X)
		out.SetRow(i, row)
	}
	return out
}

// SelectValues returns the elements of v listed in idx.
func SelectValues(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}

func checkFit(X *mat.Dense, y []float64) (rows, cols int, err error) {
	if X == nil || X.IsEmpty() {
		return 0, 0, ErrEmpty
	}
	rows, cols = X.Dims()
	if rows == 0 || len(y) == 0 {
		return 0, 0, ErrEmpty
	}
	if rows != len(y) {
		return 0, 0, fmt.Errorf("%w: %d rows, %d targets", errDimension, rows, len(y))
	}
	return rows, cols, nil
}

func checkPredict(X mat.Matrix, want int) (rows int, err error) {
	rows, cols := X.Dims()
	if cols != want {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", errDimension, want, cols)
	}
	return rows, nil
}
