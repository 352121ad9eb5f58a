package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/air-quality-forecast/internal/ml"
)

func fittedSet(t *testing.T, winner string) Set {
	t.Helper()
	X := mat.NewDense(4, 2, []float64{1, 0, 2, 1, 3, 0, 4, 1})
	y := []float64{2, 4, 6, 8}

	model := ml.NewLinearRegression()
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scaler := ml.NewRobustScaler()
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("scaler Fit: %v", err)
	}
	return Set{
		Model:    model,
		Scaler:   scaler,
		Features: []string{"aqi_value", "hour"},
		Metrics: Metrics{
			Winner:     winner,
			WinnerRMSE: 0.5,
			Candidates: []CandidateScore{{Name: winner, RMSE: 0.5, AccuracyPct: 99}},
		},
	}
}

func TestLoadBeforeSave(t *testing.T) {
	s := NewStore(t.TempDir(), 2)
	if _, err := s.Load(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := s.LoadMetrics(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 2)

	version, err := s.Save(fittedSet(t, "linear_regression"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{ModelFile, ScalerFile, FeaturesFile, MetricsFile} {
		if _, err := os.Stat(filepath.Join(dir, versionsDir, version, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	set, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Model.Kind() != ml.KindLinear || set.Scaler.Kind() != ml.KindRobustScaler {
		t.Fatalf("unexpected kinds %s / %s", set.Model.Kind(), set.Scaler.Kind())
	}
	if len(set.Features) != 2 || set.Features[1] != "hour" {
		t.Fatalf("unexpected features %v", set.Features)
	}
	if set.Metrics.Winner != "linear_regression" || set.Metrics.Version != version {
		t.Fatalf("unexpected metrics %+v", set.Metrics)
	}

	current, err := s.Current()
	if err != nil || current != version {
		t.Fatalf("Current = %q, %v; want %q", current, err, version)
	}
}

func TestSaveSwitchesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 2)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var versions []string
	for _, w := range []string{"a", "b", "c"} {
		v, err := s.Save(fittedSet(t, w))
		if err != nil {
			t.Fatalf("Save %s: %v", w, err)
		}
		versions = append(versions, v)
	}

	m, err := s.LoadMetrics()
	if err != nil || m.Winner != "c" {
		t.Fatalf("current metrics = %+v, %v; want winner c", m, err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, versionsDir))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 versions kept, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, versionsDir, versions[0])); !os.IsNotExist(err) {
		t.Fatalf("oldest version should be pruned, stat err = %v", err)
	}
}

func TestCorruptArtifactIsNotReady(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 1)
	version, err := s.Save(fittedSet(t, "ridge"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, versionsDir, version, ModelFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for corrupt model, got %v", err)
	}

	version, err = s.Save(fittedSet(t, "ridge"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load after fresh save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, versionsDir, version, FeaturesFile)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for missing features, got %v", err)
	}
}

func TestSaveRejectsMismatchedScaler(t *testing.T) {
	s := NewStore(t.TempDir(), 1)
	set := fittedSet(t, "x")
	set.Features = []string{"only_one"}
	if _, err := s.Save(set); err == nil {
		t.Fatal("expected error for scaler/feature mismatch")
	}
	if _, err := s.Current(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("failed save must not create current, got %v", err)
	}
}

func TestLoadDuringSaveNeverMixesVersions(t *testing.T) {
	s := NewStore(t.TempDir(), 1)

	setFor := func(tag string) Set {
		set := fittedSet(t, tag)
		if tag == "B" {
			set.Features = []string{"hour", "aqi_value"}
		}
		return set
	}
	if _, err := s.Save(setFor("A")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 200; i++ {
			tag := "A"
			if i%2 == 0 {
				tag = "B"
			}
			if _, err := s.Save(setFor(tag)); err != nil {
				t.Errorf("Save %s: %v", tag, err)
				return
			}
		}
	}()

	loads := 0
	for running := true; running; loads++ {
		select {
		case <-done:
			running = false
		default:
		}
		set, err := s.Load()
		if err != nil {
			t.Errorf("Load during save: %v", err)
			continue
		}
		want := "aqi_value"
		if set.Metrics.Winner == "B" {
			want = "hour"
		}
		if set.Features[0] != want {
			t.Errorf("winner %s loaded with features %v from another version", set.Metrics.Winner, set.Features)
		}
	}
	wg.Wait()
	if loads == 0 {
		t.Fatal("no loads ran")
	}
}

func TestNewStoreKeepsPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 1)
	first, err := s.Save(fittedSet(t, "a"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save(fittedSet(t, "b")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, versionsDir, first)); err != nil {
		t.Fatalf("version replaced by the latest save must survive pruning: %v", err)
	}
}
