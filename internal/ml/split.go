package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// TrainTestSplit partitions row indices 0..n-1 into a training and a held-out
// set. The same n, fraction and seed always yield the same partition.
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}

	testN := int(math.Ceil(float64(n)*testFraction - 1e-9))
	testN = min(max(testN, 1), n-1)

	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	return perm[testN:], perm[:testN], nil
}
