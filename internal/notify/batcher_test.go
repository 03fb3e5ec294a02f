package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSubject records Notify calls; safe for concurrent delivery.
type countingSubject struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSubject) Notify() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingSubject) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestBatcher_CoalescesRepeatedRegistrations(t *testing.T) {
	b := NewBatcher(time.Hour) // flush manually
	sub := &countingSubject{}

	b.AwaitNotify(sub)
	b.AwaitNotify(sub)
	b.AwaitNotify(sub)
	require.Equal(t, 1, b.Pending())

	b.Flush()
	assert.Equal(t, 1, sub.count(), "burst of registrations must collapse into one pass")
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_FlushOrder(t *testing.T) {
	b := NewBatcher(time.Hour)
	var order []string
	first := newSubjectFunc(func() { order = append(order, "first") })
	second := newSubjectFunc(func() { order = append(order, "second") })

	b.AwaitNotify(first)
	b.AwaitNotify(second)
	b.AwaitNotify(first) // re-registration keeps the original slot
	b.Flush()

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBatcher_StopAwaitingNotify(t *testing.T) {
	b := NewBatcher(time.Hour)
	kept := &countingSubject{}
	dropped := &countingSubject{}

	b.AwaitNotify(kept)
	b.AwaitNotify(dropped)
	b.StopAwaitingNotify(dropped)
	b.StopAwaitingNotify(dropped) // unknown after removal, must be a no-op
	b.Flush()

	assert.Equal(t, 1, kept.count())
	assert.Equal(t, 0, dropped.count(), "deregistered subject must not be notified")
}

func TestBatcher_TimerDelivers(t *testing.T) {
	b := NewBatcher(5 * time.Millisecond)
	sub := &countingSubject{}
	b.AwaitNotify(sub)

	require.Eventually(t, func() bool { return sub.count() == 1 },
		time.Second, time.Millisecond)
}

func TestBatcher_RegistrationDuringFlushOpensNewBatch(t *testing.T) {
	b := NewBatcher(time.Hour)
	late := &countingSubject{}
	reentrant := newSubjectFunc(func() { b.AwaitNotify(late) })

	b.AwaitNotify(reentrant)
	b.Flush()
	assert.Equal(t, 0, late.count(), "subject scheduled mid-flush belongs to the next batch")
	require.Equal(t, 1, b.Pending())

	b.Flush()
	assert.Equal(t, 1, late.count())
}

func TestBatcher_StopDiscardsPending(t *testing.T) {
	b := NewBatcher(5 * time.Millisecond)
	sub := &countingSubject{}
	b.AwaitNotify(sub)
	b.Stop()

	b.AwaitNotify(sub) // ignored after Stop
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, 0, sub.count())
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_DefaultTick(t *testing.T) {
	b := NewBatcher(0)
	assert.Equal(t, DefaultTick, b.tick)
	b = NewBatcher(-time.Second)
	assert.Equal(t, DefaultTick, b.tick)
}

// subjectFunc adapts a func to Subject for tests. Subjects must be usable as
// map keys, hence the pointer receiver.
type subjectFunc struct{ fn func() }

func newSubjectFunc(fn func()) *subjectFunc { return &subjectFunc{fn: fn} }

func (f *subjectFunc) Notify() { f.fn() }
