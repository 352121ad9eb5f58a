package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/artifacts"
	"github.com/i474232898/air-quality-forecast/internal/features"
	"github.com/i474232898/air-quality-forecast/internal/metrics"
	"github.com/i474232898/air-quality-forecast/internal/notify"
	"github.com/i474232898/air-quality-forecast/internal/prediction"
	"github.com/i474232898/air-quality-forecast/internal/source"
	"github.com/i474232898/air-quality-forecast/internal/training"
)

// Source is the upstream the ingest job reads from.
type Source interface {
	FetchRange(ctx context.Context, loc aqi.Location, start, end time.Time) ([]aqi.Observation, error)
	FetchRecent(ctx context.Context, loc aqi.Location, pastDays int) ([]aqi.Observation, error)
}

// Deps are the components a Runner drives.
type Deps struct {
	Repo      *aqi.Repository
	Source    Source
	Engineer  *features.Engineer
	Trainer   *training.Trainer
	Predictor *prediction.Predictor
	Publisher notify.Publisher
}

// Config holds the ingest window settings.
type Config struct {
	Location    aqi.Location
	HistoryDays int
	PastDays    int
}

// Runner executes jobs one at a time.
type Runner struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	mu sync.Mutex // held for the duration of a job

	lastMu sync.RWMutex
	last   map[Job]Report
}

// NewRunner creates a Runner. A nil publisher disables publishing.
func NewRunner(deps Deps, cfg Config) *Runner {
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 365
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = 2
	}
	return &Runner{deps: deps, cfg: cfg, now: time.Now, last: make(map[Job]Report)}
}

// Run executes job and returns its report. mode only applies to ingest.
func (r *Runner) Run(ctx context.Context, job Job, mode Mode) Report {
	switch job {
	case JobIngest:
		return r.Ingest(ctx, mode)
	case JobFeatures:
		return r.Features(ctx)
	case JobTrain:
		return r.Train(ctx)
	case JobPredict:
		return r.Predict(ctx)
	default:
		now := r.now()
		return Report{Job: job, Status: StatusFailed, Reason: "unknown job", Started: now, Finished: now, Err: fmt.Errorf("unknown job %q", job)}
	}
}

// Ingest fetches observations and writes them to the raw collection.
// Nothing is written when the fetch fails or returns no rows.
func (r *Runner) Ingest(ctx context.Context, mode Mode) Report {
	return r.run(ctx, JobIngest, mode, func(ctx context.Context, rep *Report) error {
		var (
			obs []aqi.Observation
			err error
		)
		switch mode {
		case ModeReplace:
			end := r.now().UTC()
			start := end.AddDate(0, 0, -r.cfg.HistoryDays)
			obs, err = r.deps.Source.FetchRange(ctx, r.cfg.Location, start, end)
		case ModeAppend:
			obs, err = r.deps.Source.FetchRecent(ctx, r.cfg.Location, r.cfg.PastDays)
		default:
			return fmt.Errorf("unknown mode %q", mode)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", r.cfg.Location.Key(), err)
		}
		if len(obs) == 0 {
			return source.ErrNoData
		}

		if mode == ModeReplace {
			err = r.deps.Repo.ReplaceObservations(ctx, obs)
		} else {
			err = r.deps.Repo.AppendObservations(ctx, obs)
		}
		if err != nil {
			return fmt.Errorf("write raw observations: %w", err)
		}
		rep.Records = len(obs)
		metrics.RecordsWritten.WithLabelValues(string(aqi.RawCollection)).Add(float64(len(obs)))
		return nil
	})
}

// Features regenerates the feature collection.
func (r *Runner) Features(ctx context.Context) Report {
	return r.run(ctx, JobFeatures, "", func(ctx context.Context, rep *Report) error {
		res, err := r.deps.Engineer.Run(ctx)
		rep.Detail = res
		if err != nil {
			return err
		}
		rep.Records = res.FeatureRecords
		metrics.RecordsWritten.WithLabelValues(string(aqi.FeatureCollection)).Add(float64(res.FeatureRecords))
		return nil
	})
}

// Train fits the roster and persists the winner.
func (r *Runner) Train(ctx context.Context) Report {
	return r.run(ctx, JobTrain, "", func(ctx context.Context, rep *Report) error {
		m, err := r.deps.Trainer.Run(ctx, rep.RunID)
		if err != nil {
			return err
		}
		rep.Detail = m
		rep.Records = m.TrainRows + m.TestRows
		metrics.ModelRMSE.Set(m.WinnerRMSE)
		return nil
	})
}

// Predict computes the next-horizon prediction and publishes it.
func (r *Runner) Predict(ctx context.Context) Report {
	return r.run(ctx, JobPredict, "", func(ctx context.Context, rep *Report) error {
		res, err := r.deps.Predictor.Predict(ctx)
		rep.Detail = res
		if err != nil {
			return err
		}
		switch res.Status {
		case aqi.StatusNotReady:
			return fmt.Errorf("%w: %s", artifacts.ErrNotReady, res.Reason)
		case aqi.StatusNoData:
			return fmt.Errorf("%w: %s", aqi.ErrNoRecords, res.Reason)
		}

		rep.Records = 1
		metrics.LastPrediction.Set(res.Predicted)
		log.Printf("INFO: prediction for %s at %s: current=%.2f predicted=%.2f", r.cfg.Location.Key(), res.Timestamp.Format(time.RFC3339), res.Current, res.Predicted)
		if err := r.deps.Publisher.Publish(ctx, r.cfg.Location.Key(), res); err != nil {
			return err
		}
		return nil
	})
}

// Last returns the most recent report of every job that has run.
func (r *Runner) Last() map[Job]Report {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	out := make(map[Job]Report, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}

func (r *Runner) run(ctx context.Context, job Job, mode Mode, fn func(context.Context, *Report) error) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := Report{Job: job, RunID: uuid.NewString(), Mode: mode, Started: r.now()}
	log.Printf("jobs: starting %s run %s", job, rep.RunID)

	err := fn(ctx, &rep)
	rep.Finished = r.now()
	rep.Status = statusOf(err)
	if err != nil {
		rep.Err = err
		rep.Reason = err.Error()
	}

	if rep.OK() {
		log.Printf("INFO: jobs: %s", rep)
	} else {
		log.Printf("ERROR: jobs: %s", rep)
	}
	metrics.JobRuns.WithLabelValues(string(job), string(rep.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job)).Observe(rep.Duration().Seconds())

	r.lastMu.Lock()
	r.last[job] = rep
	r.lastMu.Unlock()
	return rep
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, source.ErrNoData),
		errors.Is(err, features.ErrNoData),
		errors.Is(err, features.ErrNoRawData),
		errors.Is(err, training.ErrNoData),
		errors.Is(err, aqi.ErrNoRecords):
		return StatusNoData
	case errors.Is(err, artifacts.ErrNotReady):
		return StatusNotReady
	default:
		return StatusFailed
	}
}
