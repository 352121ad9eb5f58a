package features

import (
	"errors"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

// ErrNoData is returned when no row survives cleaning.
var ErrNoData = errors.New("no data after cleaning")

// Normalize de-duplicates observations by timestamp, keeping the last one
// written, and sorts them ascending.
func Normalize(obs []aqi.Observation) []aqi.Observation {
	byTS := make(map[time.Time]int, len(obs))
	out := make([]aqi.Observation, 0, len(obs))
	for _, o := range obs {
		o.Timestamp = o.Timestamp.UTC().Truncate(time.Hour)
		if i, ok := byTS[o.Timestamp]; ok {
			out[i] = o
			continue
		}
		byTS[o.Timestamp] = len(out)
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Build derives the feature records for one location's observations.
// Steps are counted in rows of the normalized series, not in wall-clock hours.
func Build(obs []aqi.Observation, cfg Config) ([]aqi.FeatureRecord, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	series := Normalize(obs)
	values := make([]float64, len(series))
	for i, o := range series {
		values[i] = o.AQIValue
	}

	var out []aqi.FeatureRecord
	for t, o := range series {
		if t+cfg.Horizon >= len(series) {
			break
		}

		feats, ok := derive(values, t, cfg)
		if !ok {
			continue
		}
		for name, v := range o.Numeric() {
			feats[name] = v
		}
		addCalendar(feats, o.Timestamp)

		out = append(out, aqi.FeatureRecord{
			Timestamp: o.Timestamp,
			Location:  o.Location,
			Target:    values[t+cfg.Horizon],
			Features:  feats,
		})
	}

	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// derive computes the lag and rolling features at position t, reporting
// false when any of them is undefined.
func derive(values []float64, t int, cfg Config) (map[string]float64, bool) {
	feats := make(map[string]float64, len(cfg.Lags)+2*len(cfg.Windows)+len(calendarColumns)+len(aqi.RawColumns))

	for _, l := range cfg.Lags {
		if t-l < 0 {
			return nil, false
		}
		feats[LagColumn(l)] = values[t-l]
	}

	for _, w := range cfg.Windows {
		start := max(0, t-w+1)
		window := values[start : t+1]
		if cfg.Policy == FullWindow && len(window) < w {
			return nil, false
		}
		feats[MeanColumn(w)] = stat.Mean(window, nil)

		if cfg.RollingStd {
			if len(window) < 2 {
				return nil, false
			}
			feats[StdColumn(w)] = stat.StdDev(window, nil)
		}
	}
	return feats, true
}

func addCalendar(feats map[string]float64, ts time.Time) {
	dow := (int(ts.Weekday()) + 6) % 7 // Monday = 0
	weekend := 0.0
	if dow >= 5 {
		weekend = 1
	}
	feats[ColumnHour] = float64(ts.Hour())
	feats[ColumnDayOfWeek] = float64(dow)
	feats[ColumnIsWeekend] = weekend
	feats[ColumnMonth] = float64(ts.Month())
}
