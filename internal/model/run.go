package model

import (
	"time"

	"github.com/google/uuid"
)

// RunKind identifies what a collection run walks: a keyword search, a single
// account's posts, or a tag feed. Runs of different kinds may execute
// concurrently; starting a new run of a kind supersedes the previous run of
// that same kind only.
type RunKind string

const (
	RunKindKeyword RunKind = "keyword"
	RunKindAccount RunKind = "account"
	RunKindTag     RunKind = "tag"
)

// RunState is the lifecycle state of a collection run.
//
//	Idle → Running → {Stopping} → {Completed, Stopped, Failed}
//
// Completed, Stopped and Failed are terminal; no transition leaves them.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateStopping  RunState = "stopping"
	RunStateStopped   RunState = "stopped"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateStopped, RunStateCompleted, RunStateFailed:
		return true
	}
	return false
}

// EndCause records why a run reached a terminal state.
type EndCause string

const (
	EndCauseCompleted     EndCause = "completed"
	EndCauseStalledCursor EndCause = "stalled_cursor"
	EndCauseUserStop      EndCause = "user_stop"
	EndCauseQuota         EndCause = "quota_exhausted"
	EndCauseError         EndCause = "error"
)

// Query holds the source-side parameters of one run. Exactly one of Keyword,
// Handle or Tag is meaningful, chosen by Kind.
type Query struct {
	Kind     RunKind `json:"kind"`
	Keyword  string  `json:"keyword,omitempty"`
	Handle   string  `json:"handle,omitempty"`
	Tag      string  `json:"tag,omitempty"`
	Platform string  `json:"platform,omitempty"`
}

// Term returns the single query term selected by Kind.
func (q Query) Term() string {
	switch q.Kind {
	case RunKindAccount:
		return q.Handle
	case RunKindTag:
		return q.Tag
	default:
		return q.Keyword
	}
}

// RunConfig is the immutable configuration a run is started with. It is
// captured once at start; live caller state is never consulted mid-run.
type RunConfig struct {
	ID        string   `json:"id"`
	Query     Query    `json:"query"`
	Table     string   `json:"table"`
	Fields    []string `json:"fields"`
	MaxPages  int      `json:"max_pages"`
	SlotScan  int      `json:"slot_scan"`
	KeyScan   int      `json:"key_scan"`
	ChunkSize int      `json:"chunk_size"`
}

// NewRunConfig assigns an ID and fills defaults for zero-valued limits.
func NewRunConfig(q Query, table string, fields []string) RunConfig {
	return RunConfig{
		ID:        uuid.New().String(),
		Query:     q,
		Table:     table,
		Fields:    fields,
		MaxPages:  100,
		SlotScan:  500,
		KeyScan:   5000,
		ChunkSize: 50,
	}
}

// RunReport is the final accounting of one run, persisted to the run log and
// returned to the caller.
type RunReport struct {
	RunID        string    `json:"run_id"`
	Kind         RunKind   `json:"kind"`
	State        RunState  `json:"state"`
	EndCause     EndCause  `json:"end_cause"`
	TotalWritten int       `json:"total_written"`
	TotalSkipped int       `json:"total_skipped"`
	Dropped      int       `json:"dropped"`
	Pages        int       `json:"pages"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Progress is emitted after each persisted page for external consumers.
type Progress struct {
	RunID   string `json:"run_id"`
	Page    int    `json:"page"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
}
