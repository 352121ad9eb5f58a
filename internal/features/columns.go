package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

// Calendar columns.
const (
	ColumnHour      = "hour"
	ColumnDayOfWeek = "day_of_week"
	ColumnIsWeekend = "is_weekend"
	ColumnMonth     = "month"
)

var calendarColumns = []string{ColumnHour, ColumnDayOfWeek, ColumnIsWeekend, ColumnMonth}

// LagColumn names the lag feature for l steps.
func LagColumn(l int) string { return fmt.Sprintf("lag_%d", l) }

// MeanColumn names the rolling mean over w samples.
func MeanColumn(w int) string { return fmt.Sprintf("mean_%dh", w) }

// StdColumn names the rolling standard deviation over w samples.
func StdColumn(w int) string { return fmt.Sprintf("std_%dh", w) }

type columnRank struct {
	group int
	param int
	sub   int
}

func rankColumn(name string) columnRank {
	for i, c := range aqi.RawColumns {
		if name == c {
			return columnRank{group: 0, param: i}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "lag_%d", &n); err == nil && name == LagColumn(n) {
		return columnRank{group: 1, param: n}
	}
	if strings.HasPrefix(name, "mean_") {
		if _, err := fmt.Sscanf(name, "mean_%dh", &n); err == nil && name == MeanColumn(n) {
			return columnRank{group: 2, param: n}
		}
	}
	if strings.HasPrefix(name, "std_") {
		if _, err := fmt.Sscanf(name, "std_%dh", &n); err == nil && name == StdColumn(n) {
			return columnRank{group: 2, param: n, sub: 1}
		}
	}
	for i, c := range calendarColumns {
		if name == c {
			return columnRank{group: 3, param: i}
		}
	}
	return columnRank{group: 4}
}

// OrderColumns returns names in canonical order: raw columns, lags by step,
// rolling aggregates by window (mean before std), calendar columns, then
// anything unknown alphabetically. Duplicates are removed.
func OrderColumns(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := rankColumn(out[i]), rankColumn(out[j])
		if a.group != b.group {
			return a.group < b.group
		}
		if a.param != b.param {
			return a.param < b.param
		}
		if a.sub != b.sub {
			return a.sub < b.sub
		}
		return out[i] < out[j]
	})
	return out
}

// Columns returns the canonical union of feature names present in recs.
func Columns(recs []aqi.FeatureRecord) []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range recs {
		for name := range r.Features {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return OrderColumns(names)
}
