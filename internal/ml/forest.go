package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const KindForest = "random_forest"

// RandomForest averages bootstrap-trained regression trees.
type RandomForest struct {
	NumTrees       int     `json:"num_trees"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	MaxFeatures    float64 `json:"max_features"` // fraction of features per split, (0, 1]
	Seed           uint64  `json:"seed"`

	Trees []*DecisionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(numTrees, maxDepth int, seed uint64) *RandomForest {
	return &RandomForest{
		NumTrees:       numTrees,
		MaxDepth:       maxDepth,
		MinSamplesLeaf: 1,
		MaxFeatures:    1,
		Seed:           seed,
	}
}

func (f *RandomForest) Kind() string { return KindForest }

func (f *RandomForest) Fit(X *mat.Dense, y []float64) error {
	rows, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}
	if f.NumTrees <= 0 {
		return fmt.Errorf("random forest: num_trees must be positive, got %d", f.NumTrees)
	}
	maxFeatures := 0
	if f.MaxFeatures > 0 && f.MaxFeatures < 1 {
		maxFeatures = max(1, int(f.MaxFeatures*float64(cols)))
	}

	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
	f.Trees = make([]*DecisionTree, f.NumTrees)
	sample := make([]int, rows)
	for i := range f.Trees {
		for j := range sample {
			sample[j] = rng.IntN(rows)
		}
		tree := &DecisionTree{
			MaxDepth:       f.MaxDepth,
			MinSamplesLeaf: f.MinSamplesLeaf,
			MaxFeatures:    maxFeatures,
			Seed:           rng.Uint64(),
		}
		tree.fitRows(X, y, append([]int(nil), sample...), rand.New(rand.NewPCG(tree.Seed, uint64(i))))
		f.Trees[i] = tree
	}
	return nil
}

func (f *RandomForest) Predict(X mat.Matrix) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	var out []float64
	for _, tree := range f.Trees {
		pred, err := tree.Predict(X)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = pred
			continue
		}
		for i, v := range pred {
			out[i] += v
		}
	}
	n := float64(len(f.Trees))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}
