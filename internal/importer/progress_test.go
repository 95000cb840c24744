package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/testutil"
)

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, time.Hour)

	sink.OnProgress(1, 10, 0)
	sink.OnProgress(2, 10, 0)
	sink.OnProgress(10, 10, 5)

	out := buf.String()
	assert.Contains(t, out, "\rimported 1/10 (10%) in 0s")
	assert.NotContains(t, out, "2/10")
	assert.True(t, len(out) > 0 && out[len(out)-1] == '\n')
	assert.Contains(t, out, "\rimported 10/10 (100%) in 5s\n")
}

func TestConsoleSink_FinalLineOnce(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, time.Hour)

	// last record, then the completion call
	sink.OnProgress(1, 2, 0)
	sink.OnProgress(2, 2, 0)
	sink.OnProgress(2, 2, 0)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Equal(t, 1, strings.Count(out, "imported 2/2"))
	assert.Equal(t, "\rimported 1/2 (50%) in 0s\rimported 2/2 (100%) in 0s\n", out)
}

func TestConsoleSink_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleSink(&buf, time.Second).OnProgress(0, 0, 0)
	assert.Equal(t, "\rimported 0/0 (100%) in 0s\n", buf.String())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(logging.NewFromZap(zap.New(core)), 2)

	for done := 1; done <= 5; done++ {
		sink.OnProgress(done, 5, done)
	}

	entries := logs.FilterMessage("Import progress").All()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[0].ContextMap()["done"])
	assert.Equal(t, int64(4), entries[1].ContextMap()["done"])
	assert.Equal(t, int64(5), entries[2].ContextMap()["done"])
}

func TestMultiSink(t *testing.T) {
	a, b := &testutil.RecordingSink{}, &testutil.RecordingSink{}
	MultiSink{a, nil, b}.OnProgress(1, 2, 3)

	assert.Equal(t, []testutil.Progress{{Done: 1, Total: 2, Elapsed: 3}}, a.Events())
	assert.Equal(t, a.Events(), b.Events())
}

func TestTally(t *testing.T) {
	var tally Tally
	states := []State{StatePersisted, StateInvalid, StateAPIFailed, StatePersistFailed, StatePersisted, StateInvalid}
	for _, s := range states {
		tally.record(s)
		assert.Equal(t, tally.Done, tally.Outcomes())
	}

	assert.Equal(t, Tally{Done: 6, Succeeded: 2, Invalid: 2, APIFailed: 1, PersistFailed: 1}, tally)
	assert.Panics(t, func() { tally.record(State(0)) })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "persisted", StatePersisted.String())
	assert.Equal(t, "invalid", StateInvalid.String())
	assert.Equal(t, "api_failed", StateAPIFailed.String())
	assert.Equal(t, "persist_failed", StatePersistFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
