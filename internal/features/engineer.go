package features

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

// ErrNoRawData is returned when the raw collection holds nothing to derive from.
var ErrNoRawData = errors.New("no raw observations found")

// Result summarizes one feature engineering run.
type Result struct {
	RawRecords     int `json:"raw_records"`
	UniqueRecords  int `json:"unique_records"`
	FeatureRecords int `json:"feature_records"`
}

// Engineer regenerates the feature collection from the raw collection.
type Engineer struct {
	repo     *aqi.Repository
	cfg      Config
	location string
}

// NewEngineer creates an Engineer for one location tag.
func NewEngineer(repo *aqi.Repository, cfg Config, location string) *Engineer {
	return &Engineer{repo: repo, cfg: cfg, location: location}
}

// Config returns the feature configuration in use.
func (e *Engineer) Config() Config {
	return e.cfg
}

// Run reads every raw observation, derives the feature set and replaces the
// feature collection with it. Nothing is written when no row survives.
func (e *Engineer) Run(ctx context.Context) (Result, error) {
	obs, err := e.repo.Observations(ctx, e.location)
	if err != nil {
		return Result{}, err
	}
	if len(obs) == 0 {
		return Result{}, ErrNoRawData
	}

	res := Result{RawRecords: len(obs), UniqueRecords: len(Normalize(obs))}
	log.Printf("features: processing %d raw records (%d unique hours) for %s", res.RawRecords, res.UniqueRecords, e.location)

	recs, err := Build(obs, e.cfg)
	if err != nil {
		return res, err
	}

	if err := e.repo.ReplaceFeatures(ctx, recs); err != nil {
		return res, fmt.Errorf("persist feature records: %w", err)
	}
	res.FeatureRecords = len(recs)
	return res, nil
}
