package training

import (
	"fmt"
	"strings"

	"github.com/i474232898/air-quality-forecast/internal/ml"
)

// Candidate is one roster entry. New must return a fresh, unfitted model
// every time it is called.
type Candidate struct {
	Name string
	New  func(seed uint64) ml.Regressor
}

var registry = map[string]func(seed uint64) ml.Regressor{
	ml.KindForest: func(seed uint64) ml.Regressor {
		return ml.NewRandomForest(100, 12, seed)
	},
	ml.KindLinear: func(uint64) ml.Regressor {
		return ml.NewLinearRegression()
	},
	ml.KindRidge: func(uint64) ml.Regressor {
		return ml.NewRidge(1.0)
	},
	ml.KindBoosting: func(seed uint64) ml.Regressor {
		gb := ml.NewGradientBoosting(300, 0.03, 6, seed)
		gb.Subsample = 0.8
		return gb
	},
	ml.KindTree: func(seed uint64) ml.Regressor {
		return ml.NewDecisionTree(10, seed)
	},
}

// DefaultRosterNames is the roster order used when none is configured.
var DefaultRosterNames = []string{ml.KindForest, ml.KindLinear, ml.KindRidge, ml.KindBoosting}

// DefaultRoster returns the default candidates in selection order.
func DefaultRoster() []Candidate {
	roster, _ := Roster(DefaultRosterNames)
	return roster
}

// Roster resolves model names into candidates, keeping their order.
func Roster(names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	out := make([]Candidate, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown model %q", raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("model %q listed twice", name)
		}
		seen[name] = true
		out = append(out, Candidate{Name: name, New: build})
	}
	return out, nil
}
