package importer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"catalog-importer/internal/common/logging"
)

// ProgressSink observes progress. It is called once per terminal record
// outcome, in input order, and once more when the run completes.
type ProgressSink interface {
	OnProgress(done, total, elapsedSeconds int)
}

// SinkFunc adapts a function to ProgressSink
type SinkFunc func(done, total, elapsedSeconds int)

func (f SinkFunc) OnProgress(done, total, elapsedSeconds int) {
	f(done, total, elapsedSeconds)
}

// MultiSink fans progress out to several sinks
type MultiSink []ProgressSink

func (m MultiSink) OnProgress(done, total, elapsedSeconds int) {
	for _, s := range m {
		if s != nil {
			s.OnProgress(done, total, elapsedSeconds)
		}
	}
}

type nopSink struct{}

func (nopSink) OnProgress(int, int, int) {}

// ConsoleSink renders a single progress line. Intermediate updates are
// throttled to one per interval; the first and final ones always render.
// The final line renders once even though the completion call repeats it.
type ConsoleSink struct {
	out      io.Writer
	mu       sync.Mutex
	throttle rate.Sometimes
	finished bool
}

// NewConsoleSink renders to out at most once per interval
func NewConsoleSink(out io.Writer, interval time.Duration) *ConsoleSink {
	return &ConsoleSink{
		out:      out,
		throttle: rate.Sometimes{First: 1, Interval: interval},
	}
}

func (c *ConsoleSink) OnProgress(done, total, elapsedSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	if done >= total {
		c.render(done, total, elapsedSeconds)
		fmt.Fprintln(c.out)
		c.finished = true
		return
	}
	c.throttle.Do(func() {
		c.render(done, total, elapsedSeconds)
	})
}

func (c *ConsoleSink) render(done, total, elapsedSeconds int) {
	percent := 100
	if total > 0 {
		percent = done * 100 / total
	}
	fmt.Fprintf(c.out, "\rimported %d/%d (%d%%) in %ds", done, total, percent, elapsedSeconds)
}

// LogSink writes progress to a logger every `every` records and at completion
type LogSink struct {
	logger logging.Logger
	every  int
}

func NewLogSink(logger logging.Logger, every int) *LogSink {
	if every <= 0 {
		every = 100
	}
	return &LogSink{logger: logger, every: every}
}

func (l *LogSink) OnProgress(done, total, elapsedSeconds int) {
	if done%l.every != 0 && done != total {
		return
	}
	l.logger.Info("Import progress",
		logging.Int("done", done),
		logging.Int("total", total),
		logging.Int("elapsed_seconds", elapsedSeconds),
	)
}
