package notify

import (
	"sync"
	"time"
)

// DefaultTick is the coalescing interval used when none is configured.
const DefaultTick = 10 * time.Millisecond

// Subject receives a coalesced notification pass.
type Subject interface {
	Notify()
}

// Batcher coalesces notification passes: subjects registered through
// AwaitNotify during one interval receive exactly one Notify call when the
// batch flushes, in first-registration order.
//
// Delivery happens with no internal lock held, so a notified subject may
// mutate the structure that scheduled it or re-register itself; re-entrant
// registrations open a fresh batch.
type Batcher struct {
	mu      sync.Mutex
	tick    time.Duration
	pending map[Subject]struct{}
	order   []Subject
	timer   *time.Timer
	stopped bool
}

// NewBatcher creates a Batcher that flushes at most once per tick. A
// non-positive tick falls back to DefaultTick.
func NewBatcher(tick time.Duration) *Batcher {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Batcher{
		tick:    tick,
		pending: make(map[Subject]struct{}),
	}
}

// AwaitNotify schedules s for the next flush. Scheduling an already pending
// subject changes nothing, and the timer is never pushed back, so a steady
// stream of registrations still flushes every tick.
func (b *Batcher) AwaitNotify(s Subject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if _, ok := b.pending[s]; ok {
		return
	}
	b.pending[s] = struct{}{}
	b.order = append(b.order, s)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.tick, b.Flush)
	}
}

// StopAwaitingNotify withdraws s from the pending batch so no pass reaches a
// subject being torn down. Unknown subjects are ignored.
func (b *Batcher) StopAwaitingNotify(s Subject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[s]; !ok {
		return
	}
	delete(b.pending, s)
	for i, cur := range b.order {
		if cur == s {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Flush delivers the pending batch immediately, in registration order.
// Subjects scheduled while the batch is in flight land in the next one.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.order
	b.order = nil
	b.pending = make(map[Subject]struct{})
	b.mu.Unlock()

	for _, s := range batch {
		s.Notify()
	}
}

// Pending reports how many subjects currently await a pass.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Stop cancels the Batcher: the pending batch is discarded, the timer is
// stopped and later AwaitNotify calls are ignored. A flush already past its
// snapshot may still finish delivering.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = make(map[Subject]struct{})
	b.order = nil
}
