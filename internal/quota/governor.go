package quota

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Availability is the governor's judgement of whether new runs may start.
// Degraded means the counters are stale or unknown: runs may proceed but
// should expect the source to cut them off.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
	Degraded    Availability = "degraded"
)

// State is a snapshot of the shared write allowance. Remaining and Ceiling
// are -1 when unknown.
type State struct {
	Remaining    int64
	Ceiling      int64
	Availability Availability
	SyncedAt     time.Time
	ResetAt      time.Time
}

// Governor tracks the write allowance shared by every run in the process.
// The local counter is advisory between authoritative syncs; the source's
// own refusal (a QuotaExhaustedError at the transport edge) is always
// believed over it.
type Governor struct {
	mu    sync.Mutex
	state State
	bcast *CancellationBroadcaster
	log   *zap.Logger
	now   func() time.Time
}

func NewGovernor(b *CancellationBroadcaster) *Governor {
	return &Governor{
		state: State{Remaining: -1, Ceiling: -1, Availability: Degraded},
		bcast: b,
		log:   zap.L().Named("quota"),
		now:   time.Now,
	}
}

// Broadcaster returns the stop-signal fan-out shared by this governor.
func (g *Governor) Broadcaster() *CancellationBroadcaster { return g.bcast }

func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CommitWrites deducts n from the local counter. Called only after the store
// confirmed the writes; records that were dropped or never persisted cost
// nothing. Reaching zero flips availability so no new run starts, but the
// counter is advisory: the cross-run stop is reserved for the source's own
// refusal, reported through MarkExhausted.
func (g *Governor) CommitWrites(n int) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 || g.state.Remaining < 0 {
		return g.state
	}
	g.state.Remaining -= int64(n)
	if g.state.Remaining <= 0 {
		g.state.Remaining = 0
		g.state.Availability = Unavailable
		g.log.Warn("local write counter spent; new runs refused until the next sync")
	}
	return g.state
}

// AuthoritativeSync replaces the local counters with values reported by the
// source. Pass -1 for a value the source did not report.
func (g *Governor) AuthoritativeSync(remaining, ceiling int64) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Remaining = remaining
	g.state.Ceiling = ceiling
	g.state.SyncedAt = g.now()
	switch {
	case remaining == 0:
		g.state.Availability = Unavailable
	case remaining < 0:
		g.state.Availability = Degraded
	default:
		g.state.Availability = Available
	}
	g.log.Debug("counters synced",
		zap.Int64("remaining", remaining),
		zap.Int64("ceiling", ceiling),
		zap.String("availability", string(g.state.Availability)),
	)
	return g.state
}

// MarkExhausted records a hard refusal from the source, trips the shared
// stop, and returns a one-line operator message. When the source gave no
// reset time the message assumes the allowance refreshes at the next UTC
// midnight.
func (g *Governor) MarkExhausted(remaining int64, resetAt time.Time) string {
	g.mu.Lock()
	if remaining < 0 {
		remaining = 0
	}
	g.state.Remaining = remaining
	g.state.Availability = Unavailable
	assumed := false
	if resetAt.IsZero() {
		resetAt = nextUTCMidnight(g.now())
		assumed = true
	}
	g.state.ResetAt = resetAt
	g.mu.Unlock()

	if g.bcast != nil {
		g.bcast.Trip("allowance exhausted")
	}

	msg := fmt.Sprintf("write allowance exhausted; resets %s", resetAt.UTC().Format("2006-01-02 15:04 MST"))
	if assumed {
		msg += " (assumed, next UTC midnight)"
	}
	g.log.Warn(msg)
	return msg
}

func nextUTCMidnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
