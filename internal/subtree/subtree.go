// Package subtree mirrors the membership of one subtree of a tree.Tree. A
// subscription tracks a root id and every id currently beneath it, follows
// structural change through per-node subscriptions only (it never reaches
// into the tree's internals), and reports membership changes as one debounced
// (added, removed) delta per burst.
package subtree

import (
	"sync"
	"time"

	"github.com/conneroisu/treescope/internal/tree"
)

// DefaultDebounce is the delta batching window used when none is configured.
const DefaultDebounce = 25 * time.Millisecond

// Callback receives one membership delta: ids that entered the mirrored set
// and ids that left it since the previous call. When a removed parent still
// held children, the children appear in the same delta as the parent.
type Callback func(added, removed []tree.ID)

// Option configures a Subscription.
type Option func(*Subscription)

// WithDebounce sets the delta batching window. Non-positive keeps the
// default.
func WithDebounce(d time.Duration) Option {
	return func(s *Subscription) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// entry is the per-tracked-id state: the children ids recorded at the last
// observation, and the handle cancelling the node-level subscription.
type entry struct {
	kids  []tree.ID
	unsub func()
}

// Subscription is a live mirror of the descendant-id set under one root id,
// the root included. Create it with Subscribe; dispose of it with Close.
type Subscription struct {
	t        *tree.Tree
	root     tree.ID
	fn       Callback
	debounce time.Duration

	mu      sync.Mutex
	tracked map[tree.ID]*entry

	added      []tree.ID
	addedSet   map[tree.ID]struct{}
	removed    []tree.ID
	removedSet map[tree.ID]struct{}

	timer  *time.Timer
	closed bool
}

// Subscribe starts mirroring the subtree under root. The current membership
// is walked and delivered to fn as one synchronous "all added" delta before
// Subscribe returns; every later delta is debounced. The root id need not
// exist yet: it materializes in the tree and the mirror follows it from
// there.
func Subscribe(t *tree.Tree, root tree.ID, fn Callback, opts ...Option) *Subscription {
	s := &Subscription{
		t:          t,
		root:       root,
		fn:         fn,
		debounce:   DefaultDebounce,
		tracked:    make(map[tree.ID]*entry),
		addedSet:   make(map[tree.ID]struct{}),
		removedSet: make(map[tree.ID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	s.track(root)
	s.mu.Unlock()
	s.Flush()
	return s
}

// Tracked returns a snapshot of the mirrored membership, the root included,
// in no particular order.
func (s *Subscription) Tracked() []tree.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tree.ID, 0, len(s.tracked))
	for id := range s.tracked {
		out = append(out, id)
	}
	return out
}

// track starts mirroring id: subscribe to the node, record and recursively
// track its current children, and book the id as added. Already tracked ids
// are left alone. Caller holds s.mu.
func (s *Subscription) track(id tree.ID) {
	if _, ok := s.tracked[id]; ok {
		return
	}
	e := &entry{}
	s.tracked[id] = e
	e.unsub = s.t.SubscribeByID(id, func(n *tree.Node) {
		s.nodeChanged(id, n)
	})

	if n, ok := s.t.Get(id); ok {
		e.kids = n.Children()
	}
	for _, kid := range e.kids {
		s.track(kid)
	}

	s.bookAdded(id)
	s.schedule()
}

// untrack stops mirroring id: recorded children go first, depth first, so a
// parent never reaches the pending delta before its children; then the node
// subscription is cancelled and the id booked as removed. Unknown ids are
// left alone. Caller holds s.mu.
func (s *Subscription) untrack(id tree.ID) {
	e, ok := s.tracked[id]
	if !ok {
		return
	}
	for _, kid := range e.kids {
		s.untrack(kid)
	}
	e.unsub()
	delete(s.tracked, id)

	s.bookRemoved(id)
	s.schedule()
}

// nodeChanged is the node-level subscription callback: diff the node's
// current children against the recorded set, track what appeared, untrack
// what vanished, and record the current set for the next diff.
func (s *Subscription) nodeChanged(id tree.ID, n *tree.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e, ok := s.tracked[id]
	if !ok {
		return
	}

	cur := n.Children()
	curSet := make(map[tree.ID]struct{}, len(cur))
	for _, kid := range cur {
		curSet[kid] = struct{}{}
	}
	for _, kid := range e.kids {
		if _, still := curSet[kid]; !still && !s.movedWithinScope(kid) {
			s.untrack(kid)
		}
	}
	for _, kid := range cur {
		s.track(kid)
	}
	e.kids = cur
}

// movedWithinScope reports whether a kid missing from its old parent's child
// set is still alive under another tracked node. Both parents of a
// same-burst reparent flush in scheduler order, so the new parent may have
// claimed the kid before the old parent's diff runs; untracking it then
// would drop a live node from the mirror. Caller holds s.mu.
func (s *Subscription) movedWithinScope(kid tree.ID) bool {
	n, ok := s.t.Get(kid)
	if !ok {
		return false
	}
	p := n.Parent()
	if p == nil {
		return false
	}
	_, tracked := s.tracked[p.ID()]
	return tracked
}

// bookAdded moves id into the pending-added set, withdrawing a same-burst
// removal so a node deleted and recreated within one window reports as a
// plain add. Caller holds s.mu.
func (s *Subscription) bookAdded(id tree.ID) {
	if _, ok := s.removedSet[id]; ok {
		delete(s.removedSet, id)
		s.removed = drop(s.removed, id)
	}
	if _, ok := s.addedSet[id]; ok {
		return
	}
	s.addedSet[id] = struct{}{}
	s.added = append(s.added, id)
}

// bookRemoved mirrors bookAdded for departures. Caller holds s.mu.
func (s *Subscription) bookRemoved(id tree.ID) {
	if _, ok := s.addedSet[id]; ok {
		delete(s.addedSet, id)
		s.added = drop(s.added, id)
	}
	if _, ok := s.removedSet[id]; ok {
		return
	}
	s.removedSet[id] = struct{}{}
	s.removed = append(s.removed, id)
}

func drop(ids []tree.ID, id tree.ID) []tree.ID {
	for i, cur := range ids {
		if cur == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// schedule arms the debounce timer. The timer fires once per burst and is
// never pushed back, so a steady mutation stream still delivers a delta
// every window. Caller holds s.mu.
func (s *Subscription) schedule() {
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.Flush)
}

// Flush delivers the pending delta now, cancelling the armed timer. A flush
// with nothing pending skips the callback entirely. After Close the pending
// delta belongs to Close's own final flush: a timer goroutine that fired
// before Stop caught it must not deliver it concurrently with (or after)
// Close returning, so a closed subscription drops the delivery here.
func (s *Subscription) Flush() {
	s.flush(false)
}

func (s *Subscription) flush(final bool) {
	s.mu.Lock()
	if s.closed && !final {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	added, removed := s.added, s.removed
	s.added, s.removed = nil, nil
	s.addedSet = make(map[tree.ID]struct{})
	s.removedSet = make(map[tree.ID]struct{})
	s.mu.Unlock()

	if len(added) == 0 && len(removed) == 0 {
		return
	}
	s.fn(added, removed)
}

// Close tears the mirror down: every tracked id is untracked (children
// before parents), one final synchronous flush delivers the teardown
// removals, and the debounce timer is cancelled so the callback can never
// fire after Close returns. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	s.untrack(s.root)
	for id := range s.tracked {
		s.untrack(id)
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.flush(true)
}
