package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

var seriesStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) // a Monday

func ramp(n int) []aqi.Observation {
	obs := make([]aqi.Observation, n)
	for i := range obs {
		obs[i] = aqi.Observation{
			Timestamp: seriesStart.Add(time.Duration(i) * time.Hour),
			Location:  "Karachi:PK",
			AQIValue:  float64(10 + i),
		}
	}
	return obs
}

func scenarioConfig() Config {
	return Config{Horizon: 24, Lags: []int{1, 24}, Windows: []int{24}, Policy: PartialWindow}
}

func TestBuildRampScenario(t *testing.T) {
	recs, err := Build(ramp(72), scenarioConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(recs) != 24 {
		t.Fatalf("expected 24 records, got %d", len(recs))
	}

	first, last := recs[0], recs[len(recs)-1]
	if !first.Timestamp.Equal(seriesStart.Add(24*time.Hour)) || !last.Timestamp.Equal(seriesStart.Add(47*time.Hour)) {
		t.Fatalf("expected rows 24..47, got %s..%s", first.Timestamp, last.Timestamp)
	}

	for _, r := range recs {
		row := int(r.Timestamp.Sub(seriesStart) / time.Hour)
		v := float64(10 + row)
		if r.Target != v+24 {
			t.Errorf("row %d: target = %v, want %v", row, r.Target, v+24)
		}
		if r.Features["lag_1"] != v-1 || r.Features["lag_24"] != v-24 {
			t.Errorf("row %d: lags = %v/%v", row, r.Features["lag_1"], r.Features["lag_24"])
		}
		// Mean of the 24 values ending at row: v-23..v.
		if math.Abs(r.Features["mean_24h"]-(v-11.5)) > 1e-9 {
			t.Errorf("row %d: mean_24h = %v, want %v", row, r.Features["mean_24h"], v-11.5)
		}
		if r.Current() != v {
			t.Errorf("row %d: aqi_value = %v, want %v", row, r.Current(), v)
		}
	}
}

func TestBuildSizeLaw(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		n    int
	}{
		{"basic partial", scenarioConfig(), 100},
		{"full window wider than lags", Config{Horizon: 12, Lags: []int{1, 3}, Windows: []int{8}, Policy: FullWindow}, 60},
		{"partial with std", Config{Horizon: 6, Lags: nil, Windows: []int{4}, RollingStd: true, Policy: PartialWindow}, 30},
		{"extended preset", mustPreset(t, SetExtended), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Build(ramp(tt.n), tt.cfg)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			lead, trail := tt.cfg.BoundaryRows()
			if want := tt.n - lead - trail; len(recs) != want {
				t.Fatalf("got %d records, want %d (lead=%d trail=%d)", len(recs), want, lead, trail)
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	obs := ramp(96)
	a, err := Build(obs, mustPreset(t, SetExtended))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, _ := Build(obs, mustPreset(t, SetExtended))

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatal("two runs on identical input produced different feature sets")
	}
}

func TestBuildDeduplicatesAndSorts(t *testing.T) {
	obs := ramp(60)
	// Shuffle order and add a later duplicate for hour 30.
	obs[0], obs[59] = obs[59], obs[0]
	dup := obs[30]
	dup.AQIValue = 500
	obs = append(obs, dup)

	recs, err := Build(obs, scenarioConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(recs) != 60-24-24 {
		t.Fatalf("expected %d records, got %d", 60-48, len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i].Timestamp.After(recs[i-1].Timestamp) {
			t.Fatal("records are not strictly ascending")
		}
	}

	hour30 := seriesStart.Add(30 * time.Hour)
	for _, r := range recs {
		if r.Timestamp.Equal(hour30) && r.Current() != 500 {
			t.Fatalf("duplicate should be last-write-wins, got %v", r.Current())
		}
		if r.Timestamp.Equal(hour30.Add(time.Hour)) && r.Features["lag_1"] != 500 {
			t.Fatalf("lag_1 after duplicate should be 500, got %v", r.Features["lag_1"])
		}
	}
}

func TestBuildTooShort(t *testing.T) {
	if _, err := Build(ramp(48), scenarioConfig()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestBuildCalendarAndCovariates(t *testing.T) {
	obs := ramp(200)
	temp := 30.0
	for i := range obs {
		obs[i].Temperature = &temp
	}
	recs, err := Build(obs, scenarioConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Row 24 is Tuesday 00:00.
	r := recs[0]
	if r.Features[ColumnHour] != 0 || r.Features[ColumnDayOfWeek] != 1 || r.Features[ColumnIsWeekend] != 0 || r.Features[ColumnMonth] != 1 {
		t.Fatalf("unexpected calendar features: %+v", r.Features)
	}
	if r.Features[aqi.ColumnTemperature] != 30 {
		t.Fatalf("temperature not copied: %+v", r.Features)
	}
	if _, ok := r.Features[aqi.ColumnHumidity]; ok {
		t.Fatal("missing covariate should not appear as a feature")
	}

	// Row 125 is Saturday 05:00.
	sat := recs[125-24]
	if sat.Features[ColumnDayOfWeek] != 5 || sat.Features[ColumnIsWeekend] != 1 || sat.Features[ColumnHour] != 5 {
		t.Fatalf("unexpected weekend features: %+v", sat.Features)
	}
}

func TestOrderColumns(t *testing.T) {
	in := []string{"month", "std_24h", "lag_24", "aqi_value", "mean_6h", "zeta", "temperature", "lag_1", "mean_24h", "hour", "lag_1"}
	want := []string{"aqi_value", "temperature", "lag_1", "lag_24", "mean_6h", "mean_24h", "std_24h", "hour", "month", "zeta"}

	got := OrderColumns(in)
	if len(got) != len(want) {
		t.Fatalf("OrderColumns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrderColumns = %v, want %v", got, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Horizon: 0},
		{Horizon: 1, Lags: []int{0}},
		{Horizon: 1, Windows: []int{1}, RollingStd: true},
		{Horizon: 1, Policy: "sometimes"},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", c)
		}
	}

	c := Config{Horizon: 1, Lags: []int{24, 1, 24}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(c.Lags) != 2 || c.Lags[0] != 1 || c.Policy != PartialWindow {
		t.Fatalf("Validate did not normalize: %+v", c)
	}
}

func mustPreset(t *testing.T, name string) Config {
	t.Helper()
	c, err := Preset(name)
	if err != nil {
		t.Fatalf("Preset(%q): %v", name, err)
	}
	return c
}
