package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	KindRobustScaler   = "robust"
	KindIdentityScaler = "identity"
)

// Scaler transforms feature columns. Fit must only ever see training rows.
type Scaler interface {
	Kind() string
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (*mat.Dense, error)
}

// RobustScaler centers each column on its median and divides by its
// interquartile range, which keeps pollution spikes from dominating.
type RobustScaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// NewRobustScaler returns an unfitted robust scaler.
func NewRobustScaler() *RobustScaler {
	return &RobustScaler{}
}

func (s *RobustScaler) Kind() string { return KindRobustScaler }

func (s *RobustScaler) Fit(X mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 {
		return ErrEmpty
	}
	s.Center = make([]float64, cols)
	s.Scale = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		sort.Float64s(col)
		s.Center[j] = percentile(col, 0.5)
		iqr := percentile(col, 0.75) - percentile(col, 0.25)
		if iqr == 0 {
			iqr = 1
		}
		s.Scale[j] = iqr
	}
	return nil
}

func (s *RobustScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if s.Center == nil {
		return nil, ErrNotFitted
	}
	rows, err := checkPredict(X, len(s.Center))
	if err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(X)
	for i := 0; i < rows; i++ {
		for j := range s.Center {
			out.Set(i, j, (out.At(i, j)-s.Center[j])/s.Scale[j])
		}
	}
	return out, nil
}

// IdentityScaler leaves features untouched. It stands in for "no scaling"
// so the artifact set always has the same shape.
type IdentityScaler struct{}

func (IdentityScaler) Kind() string { return KindIdentityScaler }

func (IdentityScaler) Fit(mat.Matrix) error { return nil }

func (IdentityScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	return mat.DenseCopyOf(X), nil
}

// percentile interpolates linearly between the closest ranks of an
// ascending slice (the numpy "linear" method).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
