package subtree

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/treescope/internal/notify"
	"github.com/conneroisu/treescope/internal/tree"
)

// delta is one recorded callback invocation.
type delta struct {
	added   []tree.ID
	removed []tree.ID
}

// recorder captures every delta a subscription delivers.
type recorder struct {
	deltas []delta
}

func (r *recorder) cb(added, removed []tree.ID) {
	r.deltas = append(r.deltas, delta{added: added, removed: removed})
}

// newTestTree returns a tree whose scheduler never fires on its own; tests
// drive delivery through Flush.
func newTestTree() *tree.Tree {
	return tree.New(notify.NewBatcher(time.Hour))
}

// subscribe opens a subscription whose debounce timer never fires on its
// own either, so each test controls both batching stages explicitly.
func subscribe(t *tree.Tree, root tree.ID, r *recorder) *Subscription {
	return Subscribe(t, root, r.cb, WithDebounce(time.Hour))
}

func TestSubscribe_InitialMembershipSynchronous(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, 1)
	tr.Add(3, 1)

	var r recorder
	sub := subscribe(tr, 1, &r)
	defer sub.Close()

	// The complete current membership arrives as one synchronous delta,
	// before any timer had a chance to run.
	require.Len(t, r.deltas, 1)
	assert.ElementsMatch(t, []tree.ID{1, 2, 3}, r.deltas[0].added)
	assert.Empty(t, r.deltas[0].removed)
	assert.ElementsMatch(t, []tree.ID{1, 2, 3}, sub.Tracked())
}

func TestSubscribe_EmptyRootReportsItself(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	defer sub.Close()

	require.Len(t, r.deltas, 1)
	assert.Equal(t, []tree.ID{tree.RootID}, r.deltas[0].added)
}

func TestAdd_OneDeltaPerBurst(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	// A same-burst pair of additions coalesces end to end: one scheduler
	// pass, one subscription flush, one delta.
	tr.Add(2, 1)
	tr.Add(3, 2)
	tr.Flush()
	sub.Flush()

	require.Len(t, r.deltas, 2)
	assert.ElementsMatch(t, []tree.ID{2, 3}, r.deltas[1].added)
	assert.Empty(t, r.deltas[1].removed)

	// Nothing pending: no callback.
	sub.Flush()
	assert.Len(t, r.deltas, 2)
}

func TestDelete_ChildNeverWithoutParent(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, 1)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	// Deleting 1 takes 2 with it; the delta carries both, child first.
	tr.Delete(1)
	tr.Flush()
	sub.Flush()

	require.Len(t, r.deltas, 2)
	assert.Empty(t, r.deltas[1].added)
	assert.Equal(t, []tree.ID{2, 1}, r.deltas[1].removed)
	assert.ElementsMatch(t, []tree.ID{tree.RootID}, sub.Tracked())
}

func TestDeleteAndRecreate_SameBurstIsPlainAdd(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	tr.Delete(1)
	tr.Flush()
	tr.Add(1, tree.RootID)
	tr.Flush()
	sub.Flush()

	// The id left and came back inside one debounce window: the pending
	// removal is withdrawn and the delta reports a bare add.
	require.Len(t, r.deltas, 2)
	assert.Equal(t, []tree.ID{1}, r.deltas[1].added)
	assert.Empty(t, r.deltas[1].removed)
}

func TestScoping_SiblingSubtreeInvisible(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, tree.RootID)

	var r recorder
	sub := subscribe(tr, 1, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	// Mutations under the sibling never reach a mirror scoped to 1.
	tr.Add(3, 2)
	tr.Delete(2)
	tr.Flush()
	sub.Flush()

	assert.Len(t, r.deltas, 1)
	assert.ElementsMatch(t, []tree.ID{1}, sub.Tracked())
}

func TestMove_IntoAndOutOfScope(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, tree.RootID)
	tr.Add(3, 2)

	var r recorder
	sub := subscribe(tr, 1, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	// 3 migrates into the mirrored subtree.
	tr.Add(3, 1)
	tr.Flush()
	sub.Flush()
	require.Len(t, r.deltas, 2)
	assert.Equal(t, []tree.ID{3}, r.deltas[1].added)
	assert.Empty(t, r.deltas[1].removed)

	// And back out again.
	tr.Add(3, 2)
	tr.Flush()
	sub.Flush()
	require.Len(t, r.deltas, 3)
	assert.Empty(t, r.deltas[2].added)
	assert.Equal(t, []tree.ID{3}, r.deltas[2].removed)
}

func TestMove_NewParentFlushesFirst(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, tree.RootID)
	tr.Add(3, 1)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	defer sub.Close()
	require.Len(t, r.deltas, 1)

	// Make 2 pending before the move so the scheduler notifies the new
	// parent ahead of the old one; the old parent's stale diff must not
	// untrack a node that merely changed parents.
	tr.Add(4, 2)
	tr.Add(3, 2)
	tr.Flush()
	sub.Flush()

	require.Len(t, r.deltas, 2)
	assert.Equal(t, []tree.ID{4}, r.deltas[1].added)
	assert.Empty(t, r.deltas[1].removed)
	assert.ElementsMatch(t, []tree.ID{tree.RootID, 1, 2, 3, 4}, sub.Tracked())
}

func TestDebounce_TimerDelivers(t *testing.T) {
	tr := tree.New(notify.NewBatcher(time.Millisecond))
	defer tr.Close()

	var (
		mu sync.Mutex
		r  recorder
	)
	sub := Subscribe(tr, tree.RootID, func(added, removed []tree.ID) {
		mu.Lock()
		defer mu.Unlock()
		r.cb(added, removed)
	}, WithDebounce(time.Millisecond))
	defer sub.Close()

	tr.Add(1, tree.RootID)
	tr.Add(2, 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(r.deltas) == 2
	}, time.Second, time.Millisecond, "the armed timers deliver without an explicit flush")

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []tree.ID{1, 2}, r.deltas[1].added)
}

func TestClose_DeliversTeardownThenGoesSilent(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)
	tr.Add(2, 1)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	require.Len(t, r.deltas, 1)

	sub.Close()

	// The teardown removals arrive in one final synchronous delta, children
	// before parents.
	require.Len(t, r.deltas, 2)
	assert.Empty(t, r.deltas[1].added)
	assert.Equal(t, []tree.ID{2, 1, tree.RootID}, r.deltas[1].removed)
	assert.Empty(t, sub.Tracked())

	// Further mutation and flushing never reaches the closed subscription.
	tr.Add(3, tree.RootID)
	tr.Flush()
	sub.Flush()
	sub.Close()
	assert.Len(t, r.deltas, 2)
}

func TestUnknownRoot_MaterializesAndFollows(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()

	var r recorder
	sub := subscribe(tr, 9, &r)
	defer sub.Close()

	// Subscribing materialized the id; the initial delta reports it alone.
	require.Len(t, r.deltas, 1)
	assert.Equal(t, []tree.ID{9}, r.deltas[0].added)
	assert.True(t, tr.Has(9))

	tr.Add(9, tree.RootID)
	tr.Add(10, 9)
	tr.Flush()
	sub.Flush()

	require.Len(t, r.deltas, 2)
	assert.Equal(t, []tree.ID{10}, r.deltas[1].added)
}

func TestClose_DropsFlushScheduledBeforeClose(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()

	// A debounce timer that fired just before Close stops it can still be
	// waiting on the subscription lock; once Close returns, its delivery
	// must be dropped rather than run the callback late.
	var mu sync.Mutex
	closed := false
	late := false
	cb := func(added, removed []tree.ID) {
		mu.Lock()
		if closed {
			late = true
		}
		mu.Unlock()
	}

	for i := 0; i < 50; i++ {
		mu.Lock()
		closed = false
		mu.Unlock()

		sub := Subscribe(tr, tree.RootID, cb, WithDebounce(time.Millisecond))
		tr.Add(tree.ID(i+1), tree.RootID)
		tr.Flush()
		time.Sleep(time.Millisecond)
		sub.Close()

		mu.Lock()
		closed = true
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, late, "delta delivered after Close returned")
}

func TestFlush_AfterCloseIsNoOp(t *testing.T) {
	tr := newTestTree()
	defer tr.Close()
	tr.Add(1, tree.RootID)

	var r recorder
	sub := subscribe(tr, tree.RootID, &r)
	sub.Close()

	n := len(r.deltas)
	sub.Flush()
	assert.Len(t, r.deltas, n)
}
