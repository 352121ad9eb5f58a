package features

import (
	"fmt"
	"sort"
)

// WindowPolicy decides whether a rolling aggregate may be computed over a
// window that is not yet full at the start of the series.
type WindowPolicy string

const (
	// PartialWindow allows a window of at least one sample (two for std).
	PartialWindow WindowPolicy = "partial"
	// FullWindow requires all w samples.
	FullWindow WindowPolicy = "full"
)

// Feature set presets.
const (
	SetBasic    = "basic"
	SetExtended = "extended"
)

// DefaultHorizon is the number of steps between a row and its target.
const DefaultHorizon = 24

// Config describes which features are derived and how far ahead the target is.
type Config struct {
	Horizon    int
	Lags       []int
	Windows    []int
	RollingStd bool
	Policy     WindowPolicy
}

// Preset returns the configuration of a named feature set.
func Preset(name string) (Config, error) {
	switch name {
	case SetBasic, "":
		return Config{
			Horizon: DefaultHorizon,
			Lags:    []int{1, 24},
			Windows: []int{24},
			Policy:  PartialWindow,
		}, nil
	case SetExtended:
		return Config{
			Horizon:    DefaultHorizon,
			Lags:       []int{1, 6, 24},
			Windows:    []int{6, 24},
			RollingStd: true,
			Policy:     PartialWindow,
		}, nil
	default:
		return Config{}, fmt.Errorf("unknown feature set %q", name)
	}
}

// Validate checks the configuration and normalizes lag/window ordering.
func (c *Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be greater than zero, got %d", c.Horizon)
	}
	for _, l := range c.Lags {
		if l <= 0 {
			return fmt.Errorf("lags must be greater than zero, got %d", l)
		}
	}
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("windows must be greater than zero, got %d", w)
		}
		if c.RollingStd && w < 2 {
			return fmt.Errorf("rolling std needs a window of at least 2, got %d", w)
		}
	}
	switch c.Policy {
	case PartialWindow, FullWindow:
	case "":
		c.Policy = PartialWindow
	default:
		return fmt.Errorf("unknown window policy %q", c.Policy)
	}

	c.Lags = uniqueSorted(c.Lags)
	c.Windows = uniqueSorted(c.Windows)
	return nil
}

// BoundaryRows returns how many rows at the start and at the end of a
// de-duplicated series can never yield a complete feature record.
func (c Config) BoundaryRows() (leading, trailing int) {
	for _, l := range c.Lags {
		leading = max(leading, l)
	}
	for _, w := range c.Windows {
		switch {
		case c.Policy == FullWindow:
			leading = max(leading, w-1)
		case c.RollingStd:
			leading = max(leading, 1)
		}
	}
	return leading, c.Horizon
}

func uniqueSorted(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
