// Command aqi-job runs a single pipeline job once and exits non-zero when
// the job does not succeed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/air-quality-forecast/internal/app"
	"github.com/i474232898/air-quality-forecast/internal/config"
	"github.com/i474232898/air-quality-forecast/internal/jobs"
)

func main() {
	jobFlag := flag.String("job", "", "job to run: ingest, features, train or predict")
	modeFlag := flag.String("mode", string(jobs.ModeAppend), "ingest mode: replace or append")
	flag.Parse()

	job, err := jobs.ParseJob(*jobFlag)
	if err != nil {
		log.Fatalf("invalid -job: %v", err)
	}
	var mode jobs.Mode
	if job == jobs.JobIngest {
		if mode, err = jobs.ParseMode(*modeFlag); err != nil {
			log.Fatalf("invalid -mode: %v", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}

	rep := a.Runner.Run(ctx, job, mode)
	a.Close()
	stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Printf("ERROR: encode report: %v", err)
	}
	if !rep.OK() {
		os.Exit(1)
	}
}
