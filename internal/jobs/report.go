// Package jobs runs the batch steps of the pipeline (ingest, features,
// train, predict) and reports each run with a typed Report.
package jobs

import (
	"fmt"
	"time"
)

// Job names a batch step.
type Job string

const (
	JobIngest   Job = "ingest"
	JobFeatures Job = "features"
	JobTrain    Job = "train"
	JobPredict  Job = "predict"
)

// ParseJob validates a job name.
func ParseJob(s string) (Job, error) {
	switch j := Job(s); j {
	case JobIngest, JobFeatures, JobTrain, JobPredict:
		return j, nil
	default:
		return "", fmt.Errorf("unknown job %q (want ingest, features, train or predict)", s)
	}
}

// Mode selects how ingestion writes the raw collection.
type Mode string

const (
	// ModeReplace fetches the full history and swaps the raw collection.
	ModeReplace Mode = "replace"
	// ModeAppend fetches the last few days and adds them.
	ModeAppend Mode = "append"
)

// ParseMode validates an ingestion mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeReplace, ModeAppend:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want replace or append)", s)
	}
}

// Status is the outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusNoData means the run found nothing to work on and wrote nothing.
	StatusNoData Status = "no_data"
	// StatusNotReady means a prerequisite artifact is missing.
	StatusNotReady Status = "not_ready"
	StatusFailed   Status = "failed"
)

// Report describes one job run.
type Report struct {
	Job      Job       `json:"job"`
	RunID    string    `json:"run_id"`
	Mode     Mode      `json:"mode,omitempty"`
	Status   Status    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Records  int       `json:"records"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	// Detail carries the job specific result (feature counts, metrics,
	// prediction).
	Detail any `json:"detail,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the run succeeded.
func (r Report) OK() bool { return r.Status == StatusSuccess }

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

func (r Report) String() string {
	s := fmt.Sprintf("job=%s run=%s status=%s records=%d took=%s", r.Job, r.RunID, r.Status, r.Records, r.Duration().Round(time.Millisecond))
	if r.Mode != "" {
		s += " mode=" + string(r.Mode)
	}
	if r.Reason != "" {
		s += " reason=" + r.Reason
	}
	return s
}
