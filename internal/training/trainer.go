// Package training fits the model roster on the feature collection, picks
// the candidate with the lowest held-out RMSE and persists it.
package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/ml"
)

// Scaler names accepted by Config.Scaler.
const (
	ScalerRobust = "robust"
	ScalerNone   = "none"
)

var (
	// ErrNoData is returned when there are too few feature records to split.
	ErrNoData = errors.New("no feature records to train on")
	// ErrAllCandidatesFailed is returned when no roster entry could be scored.
	ErrAllCandidatesFailed = errors.New("every candidate failed")
)

// Config controls one training run.
type Config struct {
	TestFraction float64
	Seed         uint64
	Scaler       string
	Roster       []Candidate
	HorizonHours int
}

// DefaultConfig returns an 80/20 split seeded with 42, robust scaling and
// the default roster.
func DefaultConfig() Config {
	return Config{
		TestFraction: 0.2,
		Seed:         42,
		Scaler:       ScalerRobust,
		Roster:       DefaultRoster(),
		HorizonHours: features.DefaultHorizon,
	}
}

func (c Config) newScaler() (ml.Scaler, error) {
	switch c.Scaler {
	case ScalerRobust, "":
		return ml.NewRobustScaler(), nil
	case ScalerNone:
		return ml.IdentityScaler{}, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q", c.Scaler)
	}
}

// Dataset is the dense design matrix built from feature records.
type Dataset struct {
	Columns []string
	X       *mat.Dense
	Y       []float64
}

// NewDataset lays recs out in canonical column order. A column a record
// does not carry is filled with 0.
func NewDataset(recs []aqi.FeatureRecord) Dataset {
	cols := features.Columns(recs)
	ds := Dataset{Columns: cols, Y: make([]float64, len(recs))}
	if len(recs) == 0 || len(cols) == 0 {
		return ds
	}
	ds.X = mat.NewDense(len(recs), len(cols), nil)
	for i, rec := range recs {
		for j, c := range cols {
			ds.X.Set(i, j, rec.Features[c])
		}
		ds.Y[i] = rec.Target
	}
	return ds
}

// Train fits every candidate on the same split and returns the winning
// artifact set. Failed candidates are recorded in the metrics and skipped.
// ctx is checked before each candidate is fitted.
func Train(ctx context.Context, recs []aqi.FeatureRecord, cfg Config) (artifacts.Set, error) {
	if len(recs) < 2 {
		return artifacts.Set{}, fmt.Errorf("%w: %d records", ErrNoData, len(recs))
	}
	if len(cfg.Roster) == 0 {
		return artifacts.Set{}, errors.New("roster is empty")
	}
	ds := NewDataset(recs)
	if ds.X == nil {
		return artifacts.Set{}, fmt.Errorf("%w: records carry no features", ErrNoData)
	}

	trainIdx, testIdx, err := ml.TrainTestSplit(len(recs), cfg.TestFraction, cfg.Seed)
	if err != nil {
		return artifacts.Set{}, err
	}
	xTrain, yTrain := ml.SelectRows(ds.X, trainIdx), ml.SelectValues(ds.Y, trainIdx)
	xTest, yTest := ml.SelectRows(ds.X, testIdx), ml.SelectValues(ds.Y, testIdx)

	scaler, err := cfg.newScaler()
	if err != nil {
		return artifacts.Set{}, err
	}
	if err := scaler.Fit(xTrain); err != nil {
		return artifacts.Set{}, fmt.Errorf("fit scaler: %w", err)
	}
	if xTrain, err = scaler.Transform(xTrain); err != nil {
		return artifacts.Set{}, fmt.Errorf("scale training rows: %w", err)
	}
	if xTest, err = scaler.Transform(xTest); err != nil {
		return artifacts.Set{}, fmt.Errorf("scale test rows: %w", err)
	}

	var (
		best   ml.Regressor
		winner artifacts.CandidateScore
		scores = make([]artifacts.CandidateScore, 0, len(cfg.Roster))
	)
	for _, c := range cfg.Roster {
		if err := ctx.Err(); err != nil {
			return artifacts.Set{}, fmt.Errorf("training stopped before %s: %w", c.Name, err)
		}
		model, score := evaluate(c, cfg.Seed, xTrain, yTrain, xTest, yTest)
		scores = append(scores, score)
		if score.Failed() {
			log.Printf("ERROR: training: candidate %s failed: %s", c.Name, score.Error)
			continue
		}
		log.Printf("training: %s rmse=%.4f accuracy=%.2f%%", c.Name, score.RMSE, score.AccuracyPct)
		if best == nil || score.RMSE < winner.RMSE {
			best, winner = model, score
		}
	}
	if best == nil {
		return artifacts.Set{}, ErrAllCandidatesFailed
	}

	return artifacts.Set{
		Model:    best,
		Scaler:   scaler,
		Features: ds.Columns,
		Metrics: artifacts.Metrics{
			Winner:         winner.Name,
			WinnerRMSE:     winner.RMSE,
			WinnerAccuracy: winner.AccuracyPct,
			Candidates:     scores,
			Scaler:         scaler.Kind(),
			FeatureCount:   len(ds.Columns),
			TrainRows:      len(trainIdx),
			TestRows:       len(testIdx),
			HorizonHours:   cfg.HorizonHours,
		},
	}, nil
}

func evaluate(c Candidate, seed uint64, xTrain *mat.Dense, yTrain []float64, xTest *mat.Dense, yTest []float64) (ml.Regressor, artifacts.CandidateScore) {
	score := artifacts.CandidateScore{Name: c.Name}
	fail := func(err error) (ml.Regressor, artifacts.CandidateScore) {
		score.Error = err.Error()
		return nil, score
	}

	model := c.New(seed)
	if err := model.Fit(xTrain, yTrain); err != nil {
		return fail(fmt.Errorf("fit: %w", err))
	}
	pred, err := model.Predict(xTest)
	if err != nil {
		return fail(fmt.Errorf("predict: %w", err))
	}
	rmse, err := ml.RMSE(pred, yTest)
	if err != nil {
		return fail(err)
	}
	if math.IsNaN(rmse) || math.IsInf(rmse, 0) {
		return fail(errors.New("non-finite rmse"))
	}
	r2, err := ml.R2(pred, yTest)
	if err != nil {
		return fail(err)
	}
	score.RMSE = rmse
	score.AccuracyPct = ml.AccuracyPct(r2)
	return model, score
}

// Trainer runs Train against the feature collection and saves the winner.
type Trainer struct {
	repo     *aqi.Repository
	store    *artifacts.Store
	cfg      Config
	location string
	now      func() time.Time
}

// NewTrainer creates a Trainer for one location tag.
func NewTrainer(repo *aqi.Repository, store *artifacts.Store, cfg Config, location string) *Trainer {
	return &Trainer{repo: repo, store: store, cfg: cfg, location: location, now: time.Now}
}

// Run trains on every stored feature record and persists the winning set.
// Existing artifacts are left untouched when Run fails.
func (t *Trainer) Run(ctx context.Context, runID string) (artifacts.Metrics, error) {
	recs, err := t.repo.Features(ctx, aqi.Query{Filter: aqi.Filter{Location: t.location}})
	if err != nil {
		return artifacts.Metrics{}, err
	}
	log.Printf("training: %d feature records for %s", len(recs), t.location)

	set, err := Train(ctx, recs, t.cfg)
	if err != nil {
		return artifacts.Metrics{}, err
	}
	set.Metrics.RunID = runID
	set.Metrics.TrainedAt = t.now().UTC()

	version, err := t.store.Save(set)
	if err != nil {
		return artifacts.Metrics{}, fmt.Errorf("save artifacts: %w", err)
	}
	set.Metrics.Version = version
	log.Printf("INFO: training: winner %s rmse=%.4f saved as %s", set.Metrics.Winner, set.Metrics.WinnerRMSE, version)
	return set.Metrics, nil
}
