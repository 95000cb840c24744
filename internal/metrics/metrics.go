// Package metrics holds the Prometheus collectors for an import run. A
// batch job has no scrape endpoint, so the registry is pushed to a
// Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"catalog-importer/internal/enrichers"
)

const namespace = "catalog_importer"

// Collectors groups the collectors of one run on a private registry
type Collectors struct {
	registry *prometheus.Registry

	// RecordsProcessed counts terminal record outcomes
	RecordsProcessed *prometheus.CounterVec
	// RecordDuration tracks time from record start to terminal state
	RecordDuration *prometheus.HistogramVec
	// FailureWriteErrors counts failure records that could not be stored
	FailureWriteErrors prometheus.Counter
	// EnrichmentAttempts counts HTTP attempts by result
	EnrichmentAttempts *prometheus.CounterVec
	// EnrichmentLatency tracks HTTP attempt latency
	EnrichmentLatency *prometheus.HistogramVec
	// LimiterWait tracks time spent waiting for a rate limiter token
	LimiterWait prometheus.Histogram
	// RecordsDone and RecordsTotal expose run progress
	RecordsDone  prometheus.Gauge
	RecordsTotal prometheus.Gauge
	// LastRunTimestamp is set when the run finishes
	LastRunTimestamp prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		RecordsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_processed_total",
				Help:      "Total number of records that reached a terminal state",
			},
			[]string{"outcome"},
		),
		RecordDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_duration_seconds",
				Help:      "Time from record start to terminal state in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		FailureWriteErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failure_write_errors_total",
				Help:      "Total number of failure records that could not be written",
			},
		),
		EnrichmentAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_attempts_total",
				Help:      "Total number of enrichment HTTP attempts",
			},
			[]string{"result"},
		),
		EnrichmentLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "enrichment_latency_seconds",
				Help:      "Enrichment HTTP attempt latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		LimiterWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limiter_wait_seconds",
				Help:      "Time spent waiting for a rate limiter token in seconds",
				Buckets:   []float64{0, 0.05, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RecordsDone: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_done",
				Help:      "Records that reached a terminal state in the current run",
			},
		),
		RecordsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records in the current run",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}
}

// Registry exposes the private registry
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) RecordOutcome(outcome string, duration time.Duration) {
	c.RecordsProcessed.WithLabelValues(outcome).Inc()
	c.RecordDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collectors) RecordFailureWriteError() {
	c.FailureWriteErrors.Inc()
}

func (c *Collectors) SetProgress(done, total int) {
	c.RecordsDone.Set(float64(done))
	c.RecordsTotal.Set(float64(total))
}

// ObserveAttempt matches enrichers.AttemptObserver
func (c *Collectors) ObserveAttempt(result enrichers.AttemptResult, latency time.Duration) {
	c.EnrichmentAttempts.WithLabelValues(string(result)).Inc()
	c.EnrichmentLatency.WithLabelValues(string(result)).Observe(latency.Seconds())
}

// ObserveLimiterWait matches ratelimit.WaitObserver
func (c *Collectors) ObserveLimiterWait(wait time.Duration) {
	c.LimiterWait.Observe(wait.Seconds())
}

// MarkFinished records the end of a run
func (c *Collectors) MarkFinished(at time.Time) {
	c.LastRunTimestamp.Set(float64(at.Unix()))
}

// Pusher sends the registry to a Pushgateway
type Pusher struct {
	url string
	job string
}

func NewPusher(url, job string) *Pusher {
	if job == "" {
		job = namespace
	}
	return &Pusher{url: url, job: job}
}

// Push replaces the metrics of this job and run in the gateway
func (p *Pusher) Push(ctx context.Context, c *Collectors, runID string) error {
	err := push.New(p.url, p.job).
		Gatherer(c.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.url, err)
	}
	return nil
}
