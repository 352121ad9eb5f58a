// Package app assembles the pipeline components from configuration. Both
// binaries build on it so the server and one-shot jobs share one wiring.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/config"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/jobs"
	"github.com/i474232898/air-quality-forecast/internal/notify"
	"github.com/i474232898/air-quality-forecast/internal/prediction"
	"github.com/i474232898/air-quality-forecast/internal/source"
	"github.com/i474232898/air-quality-forecast/internal/store"
	"github.com/i474232898/air-quality-forecast/internal/training"
)

// App holds the wired components. Close releases the store and publisher.
type App struct {
	Config    *config.AppConfig
	Location  aqi.Location
	Store     aqi.RecordStore
	Repo      *aqi.Repository
	Artifacts *artifacts.Store
	Predictor *prediction.Predictor
	Runner    *jobs.Runner
	Publisher notify.Publisher
}

// New connects to the record store and builds every component.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	loc, err := source.ResolveLocation(cfg.Location, cfg.GeocoderAPIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve location: %w", err)
	}

	rs, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	log.Printf("INFO: record store %s ready", redactURL(cfg.StoreURL))

	var pub notify.Publisher = notify.Nop{}
	if cfg.PublishRedisURL != "" {
		rp, err := notify.NewRedisPublisher(ctx, cfg.PublishRedisURL)
		if err != nil {
			_ = rs.Close()
			return nil, err
		}
		pub = rp
	}

	tcfg := training.DefaultConfig()
	tcfg.TestFraction = cfg.TrainTestFraction
	tcfg.Seed = cfg.TrainSeed
	tcfg.Scaler = cfg.TrainScaler
	tcfg.HorizonHours = cfg.Features.Horizon
	if len(cfg.TrainRoster) > 0 {
		if tcfg.Roster, err = training.Roster(cfg.TrainRoster); err != nil {
			_ = rs.Close()
			_ = pub.Close()
			return nil, fmt.Errorf("invalid TRAIN_ROSTER: %w", err)
		}
	}

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	src := source.NewOpenMeteo(httpClient, source.OpenMeteoConfig{
		Timezone:   cfg.SourceTimezone,
		MaxRetries: cfg.SourceMaxRetries,
	})

	key := loc.Key()
	repo := aqi.NewRepository(rs)
	arts := artifacts.NewStore(cfg.ArtifactDir, cfg.ArtifactKeep)
	predictor := prediction.NewPredictor(repo, arts, key)

	runner := jobs.NewRunner(jobs.Deps{
		Repo:      repo,
		Source:    src,
		Engineer:  features.NewEngineer(repo, cfg.Features, key),
		Trainer:   training.NewTrainer(repo, arts, tcfg, key),
		Predictor: predictor,
		Publisher: pub,
	}, jobs.Config{
		Location:    loc,
		HistoryDays: cfg.IngestHistoryDays,
		PastDays:    cfg.IngestPastDays,
	})

	return &App{
		Config:    cfg,
		Location:  loc,
		Store:     rs,
		Repo:      repo,
		Artifacts: arts,
		Predictor: predictor,
		Runner:    runner,
		Publisher: pub,
	}, nil
}

// Close releases external connections.
func (a *App) Close() {
	if err := a.Publisher.Close(); err != nil {
		log.Printf("ERROR: close publisher: %v", err)
	}
	if err := a.Store.Close(); err != nil {
		log.Printf("ERROR: close record store: %v", err)
	}
}

// redactURL hides credentials in a connection URL before logging it.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
