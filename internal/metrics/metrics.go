// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqi_job_runs_total",
		Help: "Total number of batch job runs by job and status.",
	}, []string{"job", "status"})
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aqi_job_duration_seconds",
		Help:    "Duration of batch job runs.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aqi_records_written_total",
		Help: "Total number of records written by collection.",
	}, []string{"collection"})
	PredictionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aqi_predictions_published_total",
		Help: "Total number of predictions published to Redis.",
	})
	LastPrediction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aqi_last_predicted_value",
		Help: "Most recent predicted pollutant value.",
	})
	ModelRMSE = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aqi_model_rmse",
		Help: "Held-out RMSE of the current model.",
	})
)
