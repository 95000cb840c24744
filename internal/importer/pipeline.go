// Package importer drives product records through normalization,
// validation, optional enrichment and persistence. Every record ends in
// exactly one terminal state and is counted exactly once.
package importer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"catalog-importer/internal/common/clock"
	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/enrichers"
	"catalog-importer/internal/records"
	"catalog-importer/internal/storage"
)

// Metrics receives per-record observations. The metrics package provides
// the Prometheus implementation.
type Metrics interface {
	RecordOutcome(outcome string, duration time.Duration)
	RecordFailureWriteError()
	SetProgress(done, total int)
}

type nopMetrics struct{}

func (nopMetrics) RecordOutcome(string, time.Duration) {}
func (nopMetrics) RecordFailureWriteError()            {}
func (nopMetrics) SetProgress(int, int)                {}

// Config controls a pipeline run
type Config struct {
	// RunID tags every row written by the run. Generated when empty.
	RunID string
	// Source names the input, for the run record and logs
	Source string
	// Workers is the number of records processed concurrently. Values
	// below 1 mean sequential processing.
	Workers int
	// MaxWorkers caps Workers, normally at the rate limiter's capacity
	MaxWorkers int
}

// Pipeline processes one record set per Run call
type Pipeline struct {
	config   Config
	store    storage.Store
	enricher enrichers.Enricher
	sink     ProgressSink
	metrics  Metrics
	clock    clock.Clock
	logger   logging.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithEnricher enables enrichment. Without it enrichment is skipped and
// products are persisted with empty metadata.
func WithEnricher(e enrichers.Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

func WithProgressSink(s ProgressSink) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sink = s
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline writing to store
func NewPipeline(store storage.Store, config Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.ConfigError("importer requires a store")
	}
	if config.MaxWorkers < 0 {
		return nil, errors.ConfigError("max workers must not be negative")
	}

	p := &Pipeline{
		config:  config,
		store:   store,
		sink:    nopSink{},
		metrics: nopMetrics{},
		clock:   clock.Real{},
		logger:  logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.config.RunID == "" {
		p.config.RunID = uuid.NewString()
	}
	p.config.Workers = p.workerCount()

	return p, nil
}

// RunID identifies the rows this pipeline writes
func (p *Pipeline) RunID() string {
	return p.config.RunID
}

// Workers is the effective concurrency after clamping
func (p *Pipeline) Workers() int {
	return p.config.Workers
}

func (p *Pipeline) workerCount() int {
	workers := p.config.Workers
	if workers < 1 {
		workers = 1
	}
	if p.config.MaxWorkers > 0 && workers > p.config.MaxWorkers {
		p.logger.Warn("Clamping workers to rate limiter capacity",
			logging.Int("requested", workers),
			logging.Int("max", p.config.MaxWorkers),
		)
		workers = p.config.MaxWorkers
	}
	return workers
}

// Run processes recs in input order and returns the run summary. The only
// errors it returns are fatal ones raised before any record is touched.
// Cancelling ctx stops the run at the next record boundary; records
// already started still reach their terminal state.
func (p *Pipeline) Run(ctx context.Context, recs []records.Record) (*Summary, error) {
	ctx = logging.ContextWithRunID(ctx, p.config.RunID)
	logger := p.logger.WithContext(ctx)

	if err := p.store.Health(ctx); err != nil {
		return nil, errors.ConnectionError("store is not reachable", err)
	}

	start := p.clock.Now()
	run := &runState{
		pipeline: p,
		start:    start,
		summary: Summary{
			RunID:     p.config.RunID,
			Source:    p.config.Source,
			Tally:     Tally{Total: len(recs)},
			StartedAt: start,
		},
	}

	logger.Info("Starting import",
		logging.String("source", p.config.Source),
		logging.Int("records", len(recs)),
		logging.Int("workers", p.config.Workers),
		logging.Bool("enrichment", p.enricher != nil),
	)

	if p.config.Workers > 1 {
		p.runConcurrent(ctx, recs, run.apply)
	} else {
		p.runSequential(ctx, recs, run.apply)
	}

	summary := run.finish(ctx.Err() != nil)

	logger.Info("Import finished",
		logging.Int("total", summary.Total),
		logging.Int("done", summary.Done),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("invalid", summary.Invalid),
		logging.Int("api_failed", summary.APIFailed),
		logging.Int("persist_failed", summary.PersistFailed),
		logging.Int("failure_write_errors", summary.FailureWriteErrors),
		logging.Bool("cancelled", summary.Cancelled),
		logging.Duration("elapsed", summary.Elapsed),
	)

	p.saveRun(ctx, summary)
	return summary, nil
}

func (p *Pipeline) runSequential(ctx context.Context, recs []records.Record, apply func(result)) {
	for i := range recs {
		if ctx.Err() != nil {
			return
		}
		apply(p.process(ctx, recs[i]))
	}
}

// saveRun stores the run record. It is bookkeeping only, so failing to
// write it is logged and does not change the summary.
func (p *Pipeline) saveRun(ctx context.Context, s *Summary) {
	ctx = context.WithoutCancel(ctx)
	err := p.store.SaveRun(ctx, storage.RunRecord{
		RunID:         s.RunID,
		Source:        s.Source,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		Total:         s.Total,
		Succeeded:     s.Succeeded,
		Invalid:       s.Invalid,
		APIFailed:     s.APIFailed,
		PersistFailed: s.PersistFailed,
		Cancelled:     s.Cancelled,
	})
	if err != nil {
		p.logger.WithContext(ctx).Error("Failed to save run record", err)
	}
}

// runState owns the tally. apply is only ever called from one goroutine,
// in input order.
type runState struct {
	pipeline *Pipeline
	start    time.Time
	summary  Summary
}

func (r *runState) apply(res result) {
	r.summary.record(res.state)
	if res.failureWriteErr {
		r.summary.FailureWriteErrors++
		r.pipeline.metrics.RecordFailureWriteError()
	}
	r.pipeline.metrics.RecordOutcome(res.state.String(), res.duration)
	r.pipeline.metrics.SetProgress(r.summary.Done, r.summary.Total)
	r.pipeline.sink.OnProgress(r.summary.Done, r.summary.Total, r.elapsedSeconds())
}

func (r *runState) elapsedSeconds() int {
	return int(r.pipeline.clock.Now().Sub(r.start) / time.Second)
}

func (r *runState) finish(cancelled bool) *Summary {
	r.summary.FinishedAt = r.pipeline.clock.Now()
	r.summary.Elapsed = r.summary.FinishedAt.Sub(r.start)
	r.summary.Cancelled = cancelled && r.summary.Done < r.summary.Total
	r.pipeline.sink.OnProgress(r.summary.Done, r.summary.Total, r.summary.ElapsedSeconds())

	s := r.summary
	return &s
}
