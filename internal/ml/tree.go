package ml

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

const KindTree = "decision_tree"

// treeNode is one node of a flattened regression tree. Feature is -1 for leaves.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// DecisionTree is a CART regression tree splitting on squared error.
type DecisionTree struct {
	MaxDepth        int    `json:"max_depth"`         // 0 = unlimited
	MinSamplesSplit int    `json:"min_samples_split"` // at least 2
	MinSamplesLeaf  int    `json:"min_samples_leaf"`  // at least 1
	MaxFeatures     int    `json:"max_features"`      // features tried per split, 0 = all
	Seed            uint64 `json:"seed"`

	NumFeatures int        `json:"num_features"`
	Nodes       []treeNode `json:"nodes"`
}

// NewDecisionTree returns an unfitted tree limited to maxDepth levels.
func NewDecisionTree(maxDepth int, seed uint64) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: seed}
}

func (t *DecisionTree) Kind() string { return KindTree }

func (t *DecisionTree) Fit(X *mat.Dense, y []float64) error {
	rows, _, err := checkFit(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	t.fitRows(X, y, idx, rand.New(rand.NewPCG(t.Seed, t.Seed^0x5851f42d4c957f2d)))
	return nil
}

func (t *DecisionTree) Predict(X mat.Matrix) ([]float64, error) {
	if len(t.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	rows, err := checkPredict(X, t.NumFeatures)
	if err != nil {
		return nil, err
	}
	out := make([]float64, rows)
	row := make([]float64, t.NumFeatures)
	for i := range out {
		mat.Row(row, i, X)
		out[i] = t.predictRow(row)
	}
	return out, nil
}

func (t *DecisionTree) predictRow(row []float64) float64 {
	n := 0
	for t.Nodes[n].Feature >= 0 {
		node := t.Nodes[n]
		if row[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
	return t.Nodes[n].Value
}

// fitRows grows the tree on the rows of X listed in idx. Rows may repeat,
// which is how bootstrap samples are passed in.
func (t *DecisionTree) fitRows(X *mat.Dense, y []float64, idx []int, rng *rand.Rand) {
	_, cols := X.Dims()
	t.NumFeatures = cols
	t.Nodes = t.Nodes[:0]
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}

	b := &treeBuilder{tree: t, raw: X.RawMatrix(), y: y, rng: rng}
	b.grow(idx, 0)
}

type treeBuilder struct {
	tree *DecisionTree
	raw  blas64.General
	y    []float64
	rng  *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
}

func (b *treeBuilder) x(row, col int) float64 {
	return b.raw.Data[row*b.raw.Stride+col]
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	t := b.tree
	var sum float64
	for _, r := range idx {
		sum += b.y[r]
	}
	n := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: sum / float64(len(idx))})

	if (t.MaxDepth > 0 && depth >= t.MaxDepth) || len(idx) < t.MinSamplesSplit || len(idx) < 2*t.MinSamplesLeaf {
		return n
	}

	best, ok := b.bestSplit(idx, sum)
	if !ok {
		return n
	}

	// Partition idx in place: rows going left first.
	b.sortBy(idx, best.feature)
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	t.Nodes[n] = treeNode{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r, Value: t.Nodes[n].Value}
	return n
}

// bestSplit searches the candidate features for the threshold maximizing
// the reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int, total float64) (split, bool) {
	t := b.tree
	features := b.candidateFeatures()
	n := float64(len(idx))
	parent := total * total / n

	best := split{gain: 1e-12}
	found := false
	for _, f := range features {
		b.sortBy(idx, f)

		var leftSum float64
		for i := 0; i < len(idx)-1; i++ {
			leftSum += b.y[idx[i]]
			nl := i + 1
			nr := len(idx) - nl
			if nl < t.MinSamplesLeaf || nr < t.MinSamplesLeaf {
				continue
			}
			xi, xn := b.x(idx[i], f), b.x(idx[i+1], f)
			if xi == xn {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
			if gain > best.gain {
				best = split{feature: f, threshold: (xi + xn) / 2, gain: gain, pos: nl}
				found = true
			}
		}
	}
	return best, found
}

func (b *treeBuilder) candidateFeatures() []int {
	cols := b.tree.NumFeatures
	if b.tree.MaxFeatures <= 0 || b.tree.MaxFeatures >= cols {
		all := make([]int, cols)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := b.rng.Perm(cols)[:b.tree.MaxFeatures]
	sort.Ints(picked)
	return picked
}

// sortBy orders idx by feature f, breaking ties by row index so the
// partition is deterministic.
func (b *treeBuilder) sortBy(idx []int, f int) {
	sort.Slice(idx, func(i, j int) bool {
		xi, xj := b.x(idx[i], f), b.x(idx[j], f)
		if xi != xj {
			return xi < xj
		}
		return idx[i] < idx[j]
	})
}
