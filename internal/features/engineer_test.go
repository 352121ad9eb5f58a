package features

import (
	"context"
	"errors"
	"testing"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/store"
)

func TestEngineerRunReplacesFeatures(t *testing.T) {
	ctx := context.Background()
	repo := aqi.NewRepository(store.NewMemoryStore(0))

	if err := repo.ReplaceObservations(ctx, ramp(72)); err != nil {
		t.Fatalf("ReplaceObservations: %v", err)
	}
	// A stale record from an older schema must not survive the run.
	stale := aqi.FeatureRecord{Timestamp: seriesStart, Location: "Karachi:PK", Features: map[string]float64{"old_feature": 1}}
	if err := repo.ReplaceFeatures(ctx, []aqi.FeatureRecord{stale}); err != nil {
		t.Fatalf("ReplaceFeatures: %v", err)
	}

	e := NewEngineer(repo, scenarioConfig(), "Karachi:PK")
	res, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RawRecords != 72 || res.FeatureRecords != 24 {
		t.Fatalf("unexpected result: %+v", res)
	}

	recs, err := repo.Features(ctx, aqi.Query{})
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if len(recs) != 24 {
		t.Fatalf("expected 24 stored records, got %d", len(recs))
	}
	for _, r := range recs {
		if _, ok := r.Features["old_feature"]; ok {
			t.Fatal("stale feature record survived the replace")
		}
	}
}

func TestEngineerRunWithoutData(t *testing.T) {
	ctx := context.Background()
	repo := aqi.NewRepository(store.NewMemoryStore(0))
	e := NewEngineer(repo, scenarioConfig(), "Karachi:PK")

	if _, err := e.Run(ctx); !errors.Is(err, ErrNoRawData) {
		t.Fatalf("expected ErrNoRawData, got %v", err)
	}

	// Too short to clean: the previous feature set is left alone.
	prev := aqi.FeatureRecord{Timestamp: seriesStart, Location: "Karachi:PK", Features: map[string]float64{"aqi_value": 1}}
	_ = repo.ReplaceFeatures(ctx, []aqi.FeatureRecord{prev})
	_ = repo.ReplaceObservations(ctx, ramp(30))

	if _, err := e.Run(ctx); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	recs, _ := repo.Features(ctx, aqi.Query{})
	if len(recs) != 1 {
		t.Fatalf("feature collection should be untouched, got %d records", len(recs))
	}
}
