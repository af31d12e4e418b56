package quota

import (
	"sync"

	"go.uber.org/zap"
)

// CancellationBroadcaster fans a single stop signal out to every active run.
// Subscribers select on the returned channel; tripping closes it, so delivery
// is instant and does not depend on how many runs are listening.
type CancellationBroadcaster struct {
	mu      sync.Mutex
	ch      chan struct{}
	tripped bool
	reason  string
}

func NewBroadcaster() *CancellationBroadcaster {
	return &CancellationBroadcaster{ch: make(chan struct{})}
}

// Subscribe returns the shared stop channel. The channel is closed when the
// broadcaster trips; a subscriber arriving after the trip gets an
// already-closed channel.
func (b *CancellationBroadcaster) Subscribe() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// Trip raises the stop signal. Safe to call from any goroutine; only the
// first call takes effect.
func (b *CancellationBroadcaster) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return
	}
	b.tripped = true
	b.reason = reason
	close(b.ch)
	zap.L().Named("quota").Warn("stop signal raised for all runs", zap.String("reason", reason))
}

// Tripped reports whether the signal was raised, and why.
func (b *CancellationBroadcaster) Tripped() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped, b.reason
}

// Reset re-arms a tripped broadcaster with a fresh channel. Existing
// subscribers keep the closed channel and must re-subscribe.
func (b *CancellationBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		return
	}
	b.tripped = false
	b.reason = ""
	b.ch = make(chan struct{})
}
