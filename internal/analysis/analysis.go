// Package analysis computes the exploratory views served next to the
// forecast: feature correlations and permutation importance.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/ml"
)

// TargetColumn names the target in the correlation matrix.
const TargetColumn = "target"

// ErrTooFewRecords is returned when a statistic needs more rows than given.
var ErrTooFewRecords = errors.New("not enough records for analysis")

// Correlation is a labelled Pearson correlation matrix.
type Correlation struct {
	Columns []string    `json:"columns"`
	Matrix  [][]float64 `json:"matrix"`
	Records int         `json:"records"`
}

// Correlate returns the pairwise Pearson correlation of every feature
// column and the target. Constant columns correlate as 0 with everything
// but themselves.
func Correlate(recs []aqi.FeatureRecord) (Correlation, error) {
	if len(recs) < 2 {
		return Correlation{}, fmt.Errorf("%w: need 2, got %d", ErrTooFewRecords, len(recs))
	}
	cols := append(features.Columns(recs), TargetColumn)

	series := make([][]float64, len(cols))
	for j, c := range cols {
		series[j] = make([]float64, len(recs))
		for i, rec := range recs {
			if c == TargetColumn {
				series[j][i] = rec.Target
			} else {
				series[j][i] = rec.Features[c]
			}
		}
	}

	out := Correlation{Columns: cols, Matrix: make([][]float64, len(cols)), Records: len(recs)}
	for i := range cols {
		out.Matrix[i] = make([]float64, len(cols))
		for j := range cols {
			switch {
			case i == j:
				out.Matrix[i][j] = 1
			case j < i:
				out.Matrix[i][j] = out.Matrix[j][i]
			default:
				r := stat.Correlation(series[i], series[j], nil)
				if math.IsNaN(r) {
					r = 0
				}
				out.Matrix[i][j] = r
			}
		}
	}
	return out, nil
}

// Importance is the RMSE increase caused by shuffling one column.
type Importance struct {
	Feature  string  `json:"feature"`
	Increase float64 `json:"rmse_increase"`
}

// PermutationImportance scores each persisted feature of set by how much
// shuffling it degrades RMSE on recs. Results are sorted by decreasing
// importance; ties keep column order.
func PermutationImportance(set artifacts.Set, recs []aqi.FeatureRecord, repeats int, seed uint64) ([]Importance, error) {
	if len(recs) < 2 {
		return nil, fmt.Errorf("%w: need 2, got %d", ErrTooFewRecords, len(recs))
	}
	repeats = max(repeats, 1)

	X := mat.NewDense(len(recs), len(set.Features), nil)
	y := make([]float64, len(recs))
	for i, rec := range recs {
		for j, c := range set.Features {
			X.Set(i, j, rec.Features[c])
		}
		y[i] = rec.Target
	}

	score := func(m *mat.Dense) (float64, error) {
		scaled, err := set.Scaler.Transform(m)
		if err != nil {
			return 0, err
		}
		pred, err := set.Model.Predict(scaled)
		if err != nil {
			return 0, err
		}
		return ml.RMSE(pred, y)
	}

	baseline, err := score(X)
	if err != nil {
		return nil, fmt.Errorf("baseline score: %w", err)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]Importance, len(set.Features))
	col := make([]float64, len(recs))
	shuffled := mat.DenseCopyOf(X)
	for j, name := range set.Features {
		mat.Col(col, j, X)
		var total float64
		for r := 0; r < repeats; r++ {
			perm := append([]float64(nil), col...)
			rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
			shuffled.SetCol(j, perm)
			s, err := score(shuffled)
			if err != nil {
				return nil, fmt.Errorf("score %s: %w", name, err)
			}
			total += s - baseline
		}
		shuffled.SetCol(j, col)
		out[j] = Importance{Feature: name, Increase: total / float64(repeats)}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Increase > out[b].Increase })
	return out, nil
}
