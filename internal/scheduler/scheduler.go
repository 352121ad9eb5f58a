package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/air-quality-forecast/internal/jobs"
)

// Job tags.
const (
	TagRefresh = "refresh"
	TagRetrain = "retrain"
)

// JobRunner runs one pipeline job.
type JobRunner interface {
	Run(ctx context.Context, job jobs.Job, mode jobs.Mode) jobs.Report
}

// Scheduler periodically refreshes the data and retrains the model.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    JobRunner

	refreshEvery time.Duration
	retrainEvery time.Duration
	timeout      time.Duration
}

// New creates a new Scheduler. A zero interval disables that job.
func New(runner JobRunner, refreshEvery, retrainEvery time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// one pipeline job at a time, later triggers wait for the running one
	s.SetMaxConcurrentJobs(1, gocron.WaitMode)
	return &Scheduler{
		scheduler:    s,
		runner:       runner,
		refreshEvery: refreshEvery,
		retrainEvery: retrainEvery,
		timeout:      30 * time.Minute,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.refreshEvery <= 0 && s.retrainEvery <= 0 {
		log.Println("scheduler: no intervals configured; nothing to schedule")
		return nil
	}

	if s.refreshEvery > 0 {
		_, err := s.scheduler.Every(s.refreshEvery).Tag(TagRefresh).SingletonMode().Do(func() {
			s.runTagged(TagRefresh, s.Refresh)
		})
		if err != nil {
			return err
		}
	}
	if s.retrainEvery > 0 {
		_, err := s.scheduler.Every(s.retrainEvery).Tag(TagRetrain).SingletonMode().WaitForSchedule().Do(func() {
			s.runTagged(TagRetrain, s.Retrain)
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runTagged(tag string, fn func(context.Context) []jobs.Report) {
	log.Printf("scheduler: running %s", tag)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reports := fn(ctx)
	if last := reports[len(reports)-1]; !last.OK() {
		log.Printf("scheduler: %s stopped at %s: %s", tag, last.Job, last.Reason)
		return
	}
	log.Printf("scheduler: completed %s", tag)
}

// Refresh appends the latest observations, rebuilds the features and
// publishes a new prediction. It stops at the first job that does not succeed.
func (s *Scheduler) Refresh(ctx context.Context) []jobs.Report {
	return s.chain(ctx, jobs.ModeAppend, jobs.JobIngest, jobs.JobFeatures, jobs.JobPredict)
}

// Retrain rebuilds the features, trains a new model and predicts with it.
func (s *Scheduler) Retrain(ctx context.Context) []jobs.Report {
	return s.chain(ctx, "", jobs.JobFeatures, jobs.JobTrain, jobs.JobPredict)
}

func (s *Scheduler) chain(ctx context.Context, mode jobs.Mode, steps ...jobs.Job) []jobs.Report {
	reports := make([]jobs.Report, 0, len(steps))
	for _, job := range steps {
		rep := s.runner.Run(ctx, job, mode)
		reports = append(reports, rep)
		if !rep.OK() {
			break
		}
	}
	return reports
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
