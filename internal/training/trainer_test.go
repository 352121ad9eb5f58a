package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/ml"
	"github.com/i474232898/air-quality-forecast/internal/store"
)

func linearRecords(n int) []aqi.FeatureRecord {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]aqi.FeatureRecord, n)
	for i := range recs {
		x := float64(i)
		recs[i] = aqi.FeatureRecord{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Location:  "Karachi:PK",
			Target:    2*x + 1,
			Features: map[string]float64{
				aqi.ColumnAQIValue: x,
				"hour":             float64(i % 24),
			},
		}
	}
	return recs
}

type brokenModel struct{}

func (brokenModel) Kind() string                          { return "broken" }
func (brokenModel) Fit(*mat.Dense, []float64) error       { return errors.New("boom") }
func (brokenModel) Predict(mat.Matrix) ([]float64, error) { return nil, ml.ErrNotFitted }

func linearCandidate(name string) Candidate {
	return Candidate{Name: name, New: func(uint64) ml.Regressor { return ml.NewLinearRegression() }}
}

func TestPerfectFitWins(t *testing.T) {
	set, err := Train(context.Background(), linearRecords(120), DefaultConfig())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	m := set.Metrics
	if m.Winner != ml.KindLinear {
		t.Fatalf("winner = %s, want %s (scores %+v)", m.Winner, ml.KindLinear, m.Candidates)
	}
	if m.WinnerRMSE > 1e-6 || math.Abs(m.WinnerAccuracy-100) > 1e-6 {
		t.Fatalf("winner rmse %v accuracy %v, want ~0 and ~100", m.WinnerRMSE, m.WinnerAccuracy)
	}
	if len(m.Candidates) != 4 {
		t.Fatalf("expected 4 candidate scores, got %d", len(m.Candidates))
	}
	if m.TrainRows != 96 || m.TestRows != 24 {
		t.Fatalf("split = %d/%d, want 96/24", m.TrainRows, m.TestRows)
	}
	if set.Features[0] != aqi.ColumnAQIValue || set.Features[1] != "hour" {
		t.Fatalf("unexpected column order %v", set.Features)
	}
}

func TestTieGoesToFirstInRoster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roster = []Candidate{linearCandidate("first"), linearCandidate("second")}
	set, err := Train(context.Background(), linearRecords(50), cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if set.Metrics.Winner != "first" {
		t.Fatalf("winner = %s, want first", set.Metrics.Winner)
	}
}

func TestFailedCandidateIsExcluded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roster = []Candidate{
		{Name: "broken", New: func(uint64) ml.Regressor { return brokenModel{} }},
		linearCandidate("linear"),
	}
	set, err := Train(context.Background(), linearRecords(50), cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if set.Metrics.Winner != "linear" {
		t.Fatalf("winner = %s, want linear", set.Metrics.Winner)
	}
	if !set.Metrics.Candidates[0].Failed() {
		t.Fatalf("broken candidate should be recorded as failed: %+v", set.Metrics.Candidates[0])
	}

	cfg.Roster = cfg.Roster[:1]
	if _, err := Train(context.Background(), linearRecords(50), cfg); !errors.Is(err, ErrAllCandidatesFailed) {
		t.Fatalf("expected ErrAllCandidatesFailed, got %v", err)
	}
}

func TestTrainStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secondFitted := false
	cfg := DefaultConfig()
	cfg.Roster = []Candidate{
		{Name: "first", New: func(uint64) ml.Regressor {
			cancel()
			return ml.NewLinearRegression()
		}},
		{Name: "second", New: func(uint64) ml.Regressor {
			secondFitted = true
			return ml.NewLinearRegression()
		}},
	}

	if _, err := Train(ctx, linearRecords(50), cfg); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if secondFitted {
		t.Fatal("candidates after cancellation must not be fitted")
	}
}

func TestTrainingIsReproducible(t *testing.T) {
	recs := linearRecords(80)
	for i := range recs {
		recs[i].Target += math.Sin(float64(i)) * 5
	}
	cfg := DefaultConfig()
	cfg.Roster, _ = Roster([]string{ml.KindForest, ml.KindBoosting})

	a, err := Train(context.Background(), recs, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	b, err := Train(context.Background(), recs, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i := range a.Metrics.Candidates {
		if a.Metrics.Candidates[i] != b.Metrics.Candidates[i] {
			t.Fatalf("run scores differ: %+v vs %+v", a.Metrics.Candidates[i], b.Metrics.Candidates[i])
		}
	}
}

func TestScalerNone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scaler = ScalerNone
	cfg.Roster = []Candidate{linearCandidate("linear")}
	set, err := Train(context.Background(), linearRecords(30), cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if set.Scaler.Kind() != ml.KindIdentityScaler {
		t.Fatalf("scaler = %s, want identity", set.Scaler.Kind())
	}
}

func TestNewDatasetFillsMissingColumns(t *testing.T) {
	recs := []aqi.FeatureRecord{
		{Target: 1, Features: map[string]float64{aqi.ColumnAQIValue: 5, aqi.ColumnTemperature: 30}},
		{Target: 2, Features: map[string]float64{aqi.ColumnAQIValue: 6}},
	}
	ds := NewDataset(recs)
	if len(ds.Columns) != 2 || ds.Columns[1] != aqi.ColumnTemperature {
		t.Fatalf("unexpected columns %v", ds.Columns)
	}
	if ds.X.At(1, 1) != 0 {
		t.Fatalf("missing temperature should be 0, got %v", ds.X.At(1, 1))
	}
}

func TestRoster(t *testing.T) {
	roster, err := Roster([]string{" Ridge", "random_forest"})
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if roster[0].Name != ml.KindRidge || roster[1].Name != ml.KindForest {
		t.Fatalf("unexpected roster order %v, %v", roster[0].Name, roster[1].Name)
	}
	if _, err := Roster([]string{"svm"}); err == nil {
		t.Fatal("expected error for unknown model")
	}
	if _, err := Roster([]string{"ridge", "ridge"}); err == nil {
		t.Fatal("expected error for duplicate model")
	}
	if got := DefaultRoster(); len(got) != 4 || got[0].Name != ml.KindForest {
		t.Fatalf("unexpected default roster %+v", got)
	}
}

func TestRunLeavesArtifactsOnEmptyInput(t *testing.T) {
	ctx := context.Background()
	repo := aqi.NewRepository(store.NewMemoryStore(0))
	arts := artifacts.NewStore(t.TempDir(), 2)

	cfg := DefaultConfig()
	cfg.Roster = []Candidate{linearCandidate("linear")}
	trainer := NewTrainer(repo, arts, cfg, "Karachi:PK")

	if _, err := trainer.Run(ctx, "run-empty"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := arts.Current(); !errors.Is(err, artifacts.ErrNotReady) {
		t.Fatalf("failed run must not create artifacts, got %v", err)
	}

	if err := repo.ReplaceFeatures(ctx, linearRecords(40)); err != nil {
		t.Fatalf("ReplaceFeatures: %v", err)
	}
	m, err := trainer.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.RunID != "run-1" || m.Version == "" {
		t.Fatalf("unexpected metrics %+v", m)
	}

	if err := repo.ReplaceFeatures(ctx, nil); err != nil {
		t.Fatalf("ReplaceFeatures: %v", err)
	}
	if _, err := trainer.Run(ctx, "run-2"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	current, err := arts.Current()
	if err != nil || current != m.Version {
		t.Fatalf("current = %q, %v; want previous version %q", current, err, m.Version)
	}
}
