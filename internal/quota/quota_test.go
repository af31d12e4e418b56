package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_TripClosesForAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe()
	c := b.Subscribe()

	select {
	case <-a:
		t.Fatal("channel closed before trip")
	default:
	}

	b.Trip("test")
	b.Trip("second call ignored")

	for _, ch := range []<-chan struct{}{a, c, b.Subscribe()} {
		select {
		case <-ch:
		default:
			t.Fatal("subscriber did not observe trip")
		}
	}

	tripped, reason := b.Tripped()
	assert.True(t, tripped)
	assert.Equal(t, "test", reason)
}

func TestBroadcaster_Reset(t *testing.T) {
	b := NewBroadcaster()
	b.Trip("once")
	b.Reset()

	tripped, _ := b.Tripped()
	assert.False(t, tripped)
	select {
	case <-b.Subscribe():
		t.Fatal("fresh channel is closed")
	default:
	}
}

func TestGovernor_StartsDegraded(t *testing.T) {
	g := NewGovernor(NewBroadcaster())
	st := g.State()
	assert.Equal(t, Degraded, st.Availability)
	assert.Equal(t, int64(-1), st.Remaining)
	assert.Equal(t, int64(-1), st.Ceiling)
}

func TestGovernor_SyncSetsAvailability(t *testing.T) {
	g := NewGovernor(NewBroadcaster())

	st := g.AuthoritativeSync(120, 500)
	assert.Equal(t, Available, st.Availability)
	assert.Equal(t, int64(120), st.Remaining)

	st = g.AuthoritativeSync(0, 500)
	assert.Equal(t, Unavailable, st.Availability)

	st = g.AuthoritativeSync(-1, -1)
	assert.Equal(t, Degraded, st.Availability)
}

func TestGovernor_CommitWritesDecrementsAfterSuccessOnly(t *testing.T) {
	g := NewGovernor(NewBroadcaster())

	// Unknown counter: commits are a no-op, availability untouched.
	st := g.CommitWrites(10)
	assert.Equal(t, int64(-1), st.Remaining)
	assert.Equal(t, Degraded, st.Availability)

	g.AuthoritativeSync(30, 100)
	st = g.CommitWrites(12)
	assert.Equal(t, int64(18), st.Remaining)
	assert.Equal(t, Available, st.Availability)

	st = g.CommitWrites(0)
	assert.Equal(t, int64(18), st.Remaining)
}

func TestGovernor_SpendingToZeroRefusesNewRunsWithoutTrip(t *testing.T) {
	b := NewBroadcaster()
	g := NewGovernor(b)
	g.AuthoritativeSync(5, 100)

	st := g.CommitWrites(9)
	assert.Equal(t, int64(0), st.Remaining)
	assert.Equal(t, Unavailable, st.Availability)

	// The local counter is advisory; only the source's own refusal halts
	// runs already in flight.
	tripped, _ := b.Tripped()
	assert.False(t, tripped)
}

func TestGovernor_MarkExhaustedWithServerReset(t *testing.T) {
	b := NewBroadcaster()
	g := NewGovernor(b)
	reset := time.Date(2026, 9, 1, 6, 30, 0, 0, time.UTC)

	msg := g.MarkExhausted(0, reset)
	assert.Contains(t, msg, "2026-09-01 06:30 UTC")
	assert.NotContains(t, msg, "assumed")

	st := g.State()
	assert.Equal(t, Unavailable, st.Availability)
	assert.Equal(t, reset, st.ResetAt)
	tripped, _ := b.Tripped()
	assert.True(t, tripped)
}

func TestGovernor_MarkExhaustedAssumesNextUTCMidnight(t *testing.T) {
	g := NewGovernor(NewBroadcaster())
	g.now = func() time.Time {
		return time.Date(2026, 8, 30, 22, 15, 0, 0, time.UTC)
	}

	msg := g.MarkExhausted(-1, time.Time{})
	assert.Contains(t, msg, "2026-08-31 00:00 UTC")
	assert.Contains(t, msg, "assumed")

	st := g.State()
	require.Equal(t, int64(0), st.Remaining)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), st.ResetAt)
}
