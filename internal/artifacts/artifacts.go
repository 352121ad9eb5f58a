// Package artifacts persists the winning model together with its scaler,
// feature list and metrics. Every save goes to a fresh version directory
// and becomes visible through one atomic rename of the "current" link, so
// readers see either the previous set or the new one, never a mix.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-forecast/internal/ml"
)

// File names inside a version directory.
const (
	ModelFile    = "model.json"
	ScalerFile   = "scaler.json"
	FeaturesFile = "features.json"
	MetricsFile  = "metrics.json"

	currentLink = "current"
	versionsDir = "versions"
)

// ErrNotReady is returned when no complete, readable artifact set exists.
var ErrNotReady = errors.New("model artifacts not ready")

// CandidateScore is the held-out evaluation of one roster entry.
// Error is set, and the scores are zero, when the candidate failed.
type CandidateScore struct {
	Name        string  `json:"name"`
	RMSE        float64 `json:"rmse"`
	AccuracyPct float64 `json:"accuracy_pct"`
	Error       string  `json:"error,omitempty"`
}

// Failed reports whether the candidate was excluded from selection.
func (c CandidateScore) Failed() bool { return c.Error != "" }

// Metrics describes the training run that produced an artifact set.
type Metrics struct {
	RunID          string           `json:"run_id"`
	Version        string           `json:"version"`
	TrainedAt      time.Time        `json:"trained_at"`
	Winner         string           `json:"winner"`
	WinnerRMSE     float64          `json:"winner_rmse"`
	WinnerAccuracy float64          `json:"winner_accuracy_pct"`
	Candidates     []CandidateScore `json:"candidates"`
	Scaler         string           `json:"scaler"`
	FeatureCount   int              `json:"feature_count"`
	TrainRows      int              `json:"train_rows"`
	TestRows       int              `json:"test_rows"`
	HorizonHours   int              `json:"horizon_hours"`
}

// Set is everything prediction needs to reproduce the training transform.
type Set struct {
	Model    ml.Regressor
	Scaler   ml.Scaler
	Features []string
	Metrics  Metrics
}

func (s Set) validate() error {
	if s.Model == nil || s.Scaler == nil {
		return errors.New("model and scaler are required")
	}
	if len(s.Features) == 0 {
		return errors.New("feature list is empty")
	}
	if rs, ok := s.Scaler.(*ml.RobustScaler); ok && len(rs.Center) != len(s.Features) {
		return fmt.Errorf("scaler covers %d columns, feature list has %d", len(rs.Center), len(s.Features))
	}
	return nil
}

// Store reads and writes artifact sets below one directory.
type Store struct {
	dir  string
	keep int
	now  func() time.Time
}

// minKeep keeps the version that was current before the latest swap, so a
// reader that resolved it just before the swap can still finish.
const minKeep = 2

// loadAttempts bounds how often Load follows "current" after the version
// it resolved was pruned mid-read.
const loadAttempts = 3

// NewStore returns a Store rooted at dir keeping the newest keep versions
// on disk (at least 2).
func NewStore(dir string, keep int) *Store {
	return &Store{dir: dir, keep: max(keep, minKeep), now: time.Now}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes set as a new version and switches "current" to it.
// It returns the version name.
func (s *Store) Save(set Set) (string, error) {
	if err := set.validate(); err != nil {
		return "", fmt.Errorf("invalid artifact set: %w", err)
	}

	version := s.now().UTC().Format("20060102T150405.000000000Z") + "-" + uuid.NewString()[:8]
	set.Metrics.Version = version
	vdir := filepath.Join(s.dir, versionsDir, version)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return "", fmt.Errorf("create version dir: %w", err)
	}

	files, err := encode(set)
	if err != nil {
		_ = os.RemoveAll(vdir)
		return "", err
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(vdir, name), data, 0o644); err != nil {
			_ = os.RemoveAll(vdir)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := s.swap(version); err != nil {
		_ = os.RemoveAll(vdir)
		return "", err
	}

	if err := s.prune(version); err != nil {
		log.Printf("ERROR: artifacts: prune old versions: %v", err)
	}
	return version, nil
}

// swap points the current link at version with a rename, which replaces
// the old link in one step.
func (s *Store) swap(version string) error {
	tmp := filepath.Join(s.dir, ".current-"+uuid.NewString())
	if err := os.Symlink(filepath.Join(versionsDir, version), tmp); err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentLink)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("switch current link: %w", err)
	}
	return nil
}

func (s *Store) prune(current string) error {
	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != current {
			names = append(names, e.Name())
		}
	}
	// version names start with a sortable timestamp
	sort.Strings(names)
	stale := len(names) - (s.keep - 1)
	for i := 0; i < stale; i++ {
		if err := os.RemoveAll(filepath.Join(s.dir, versionsDir, names[i])); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the version "current" points at.
func (s *Store) Current() (string, error) {
	target, err := os.Readlink(filepath.Join(s.dir, currentLink))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return filepath.Base(target), nil
}

// Load reads the current artifact set. "current" is resolved once and all
// four files come from that version, so a concurrent Save never mixes two
// sets. Any missing or unreadable part yields ErrNotReady.
func (s *Store) Load() (Set, error) {
	var lastErr error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		version, err := s.Current()
		if err != nil {
			return Set{}, err
		}
		set, err := s.loadVersion(version)
		if err == nil {
			return set, nil
		}
		lastErr = err
		// Only a version pruned after it was resolved is worth retrying.
		if now, cerr := s.Current(); cerr != nil || now == version {
			return Set{}, err
		}
	}
	return Set{}, lastErr
}

func (s *Store) loadVersion(version string) (Set, error) {
	base := filepath.Join(s.dir, versionsDir, version)
	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(base, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return data, nil
	}

	var set Set
	data, err := read(ModelFile)
	if err != nil {
		return Set{}, err
	}
	if set.Model, err = ml.UnmarshalRegressor(data); err != nil {
		return Set{}, fmt.Errorf("%w: %s: %v", ErrNotReady, ModelFile, err)
	}

	if data, err = read(ScalerFile); err != nil {
		return Set{}, err
	}
	if set.Scaler, err = ml.UnmarshalScaler(data); err != nil {
		return Set{}, fmt.Errorf("%w: %s: %v", ErrNotReady, ScalerFile, err)
	}

	if data, err = read(FeaturesFile); err != nil {
		return Set{}, err
	}
	if err := json.Unmarshal(data, &set.Features); err != nil {
		return Set{}, fmt.Errorf("%w: %s: %v", ErrNotReady, FeaturesFile, err)
	}

	if set.Metrics, err = s.readMetrics(base); err != nil {
		return Set{}, err
	}

	if set.Metrics.Version != "" && set.Metrics.Version != version {
		return Set{}, fmt.Errorf("%w: metrics belong to version %s, not %s", ErrNotReady, set.Metrics.Version, version)
	}
	if err := set.validate(); err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return set, nil
}

// LoadMetrics reads only the metrics of the current set.
func (s *Store) LoadMetrics() (Metrics, error) {
	version, err := s.Current()
	if err != nil {
		return Metrics{}, err
	}
	return s.readMetrics(filepath.Join(s.dir, versionsDir, version))
}

func (s *Store) readMetrics(base string) (Metrics, error) {
	var m Metrics
	data, err := os.ReadFile(filepath.Join(base, MetricsFile))
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %s: %v", ErrNotReady, MetricsFile, err)
	}
	return m, nil
}

func encode(set Set) (map[string][]byte, error) {
	model, err := ml.MarshalRegressor(set.Model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	scaler, err := ml.MarshalScaler(set.Scaler)
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	features, err := json.MarshalIndent(set.Features, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	metrics, err := json.MarshalIndent(set.Metrics, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return map[string][]byte{
		ModelFile:    model,
		ScalerFile:   scaler,
		FeaturesFile: features,
		MetricsFile:  metrics,
	}, nil
}
