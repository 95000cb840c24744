package importer

import (
	"fmt"
	"time"
)

// State is the terminal state a record reaches
type State int

const (
	StatePersisted State = iota + 1
	StateInvalid
	StateAPIFailed
	StatePersistFailed
)

func (s State) String() string {
	switch s {
	case StatePersisted:
		return "persisted"
	case StateInvalid:
		return "invalid"
	case StateAPIFailed:
		return "api_failed"
	case StatePersistFailed:
		return "persist_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tally counts terminal outcomes. Only the pipeline mutates it and every
// counter only grows.
type Tally struct {
	Total         int `json:"total"`
	Done          int `json:"done"`
	Succeeded     int `json:"succeeded"`
	Invalid       int `json:"invalid"`
	APIFailed     int `json:"api_failed"`
	PersistFailed int `json:"persist_failed"`
}

// record increments Done and exactly one outcome counter
func (t *Tally) record(state State) {
	switch state {
	case StatePersisted:
		t.Succeeded++
	case StateInvalid:
		t.Invalid++
	case StateAPIFailed:
		t.APIFailed++
	case StatePersistFailed:
		t.PersistFailed++
	default:
		panic(fmt.Sprintf("importer: non-terminal state %v", state))
	}
	t.Done++
}

// Outcomes returns the sum of the outcome counters, which equals Done
func (t Tally) Outcomes() int {
	return t.Succeeded + t.Invalid + t.APIFailed + t.PersistFailed
}

// Summary is produced once per run
type Summary struct {
	RunID  string `json:"run_id"`
	Source string `json:"source,omitempty"`
	Tally

	// FailureWriteErrors counts failure records that could not be written.
	// The affected records still reached their terminal state.
	FailureWriteErrors int `json:"failure_write_errors"`

	Cancelled  bool          `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ElapsedSeconds is the whole-second elapsed time reported to progress sinks
func (s Summary) ElapsedSeconds() int {
	return int(s.Elapsed / time.Second)
}
