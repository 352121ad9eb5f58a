package ml

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const KindBoosting = "gradient_boosting"

// GradientBoosting fits shallow trees to the residuals of the running
// prediction under squared loss.
type GradientBoosting struct {
	NumEstimators  int     `json:"num_estimators"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Subsample      float64 `json:"subsample"` // fraction of rows per stage, (0, 1]
	Seed           uint64  `json:"seed"`

	Init  float64         `json:"init"`
	Trees []*DecisionTree `json:"trees"`
}

// NewGradientBoosting returns an unfitted booster.
func NewGradientBoosting(numEstimators int, learningRate float64, maxDepth int, seed uint64) *GradientBoosting {
	return &GradientBoosting{
		NumEstimators:  numEstimators,
		LearningRate:   learningRate,
		MaxDepth:       maxDepth,
		MinSamplesLeaf: 1,
		Subsample:      1,
		Seed:           seed,
	}
}

func (g *GradientBoosting) Kind() string { return KindBoosting }

func (g *GradientBoosting) Fit(X *mat.Dense, y []float64) error {
	rows, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}
	if g.NumEstimators <= 0 || g.LearningRate <= 0 {
		return fmt.Errorf("gradient boosting: num_estimators and learning_rate must be positive")
	}
	if g.Subsample <= 0 || g.Subsample > 1 {
		return fmt.Errorf("gradient boosting: subsample must be in (0, 1], got %v", g.Subsample)
	}

	g.Init = stat.Mean(y, nil)
	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, rows)
	row := make([]float64, cols)

	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0xda942042e4dd58b5))
	stageRows := max(1, int(g.Subsample*float64(rows)))
	g.Trees = make([]*DecisionTree, 0, g.NumEstimators)

	for m := 0; m < g.NumEstimators; m++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		idx := rng.Perm(rows)[:stageRows]
		sort.Ints(idx)

		tree := &DecisionTree{MaxDepth: g.MaxDepth, MinSamplesLeaf: g.MinSamplesLeaf, Seed: rng.Uint64()}
		tree.fitRows(X, residual, idx, rng)
		g.Trees = append(g.Trees, tree)

		for i := range pred {
			mat.Row(row, i, X)
			pred[i] += g.LearningRate * tree.predictRow(row)
		}
	}
	return nil
}

func (g *GradientBoosting) Predict(X mat.Matrix) ([]float64, error) {
	if g.Trees == nil {
		return nil, ErrNotFitted
	}
	_, cols := X.Dims()
	if len(g.Trees) > 0 {
		if _, err := checkPredict(X, g.Trees[0].NumFeatures); err != nil {
			return nil, err
		}
	}
	rows, _ := X.Dims()
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := range out {
		mat.Row(row, i, X)
		v := g.Init
		for _, tree := range g.Trees {
			v += g.LearningRate * tree.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}
