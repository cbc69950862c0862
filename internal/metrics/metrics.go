package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	FetchOK        = "ok"
	FetchError     = "error"
	FetchMalformed = "malformed"
)

var (
	// Collector metrics
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joke_pipeline_fetches_total",
			Help: "Joke API calls by result",
		},
		[]string{"result"},
	)

	// Persister metrics
	JokesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "joke_pipeline_jokes_inserted_total",
			Help: "Rows written to random_joke_api",
		},
	)

	// Pipeline metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "joke_pipeline_stage_duration_seconds",
			Help:    "Duration of a pipeline stage including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 15, 30, 60, 300, 600},
		},
		[]string{"stage"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joke_pipeline_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"status"},
	)
)
