// Package tree maintains a live, id-keyed mirror of an externally produced
// hierarchy. Nodes are addressed by integer id, materialize on first
// reference and stay linked two ways at once: each parent's sibling list and
// a single tree-wide preorder list that keeps every subtree contiguous, so
// attach, detach and whole-subtree removal are pointer splices rather than
// rebuilds.
//
// Change notification is coalesced: mutations schedule their subjects on a
// shared scheduler and observers see one pass per burst, never one per
// mutation.
package tree

import (
	"sync"

	"github.com/conneroisu/treescope/internal/notify"
)

// Tree is the id-keyed mirror of one hierarchy. It owns node existence:
// nodes are created on first reference and destroyed only by Delete. The
// mapping always contains the permanent root under RootID; deleting the
// root merely empties it.
//
// Mutation is single-writer: one goroutine, typically the ingest loop,
// drives Add, SetPayload and Delete. The internal lock makes the snapshot
// accessors (Has, Get, Len, IDs, Node.Children, Node.Payload) safe from
// other goroutines, and observer callbacks always run with no lock held, so
// a callback may mutate the tree it observes.
type Tree struct {
	mu    sync.RWMutex
	nodes map[ID]*Node
	root  *Node

	changed notify.Signal[struct{}]

	sched      *notify.Batcher
	ownedSched bool
}

// New creates a tree containing only the permanent root. Notifications
// coalesce through sched; passing nil gets a private scheduler at the
// default tick.
func New(sched *notify.Batcher) *Tree {
	owned := false
	if sched == nil {
		sched = notify.NewBatcher(0)
		owned = true
	}
	t := &Tree{
		nodes:      make(map[ID]*Node),
		sched:      sched,
		ownedSched: owned,
	}
	t.root = &Node{id: RootID, tree: t}
	t.nodes[RootID] = t.root
	return t
}

// Root returns the permanent root node.
func (t *Tree) Root() *Node { return t.root }

// GetOrCreate returns the node for id, materializing a parentless, childless
// node on first reference. Materialization schedules a tree-level coalesced
// notification: the node set changed.
func (t *Tree) GetOrCreate(id ID) *Node {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok {
		n = &Node{id: id, tree: t}
		t.nodes[id] = n
	}
	t.mu.Unlock()
	if !ok {
		t.sched.AwaitNotify(t)
	}
	return n
}

// Has reports whether id currently resolves to a node.
func (t *Tree) Has(id ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok
}

// Get returns the node for id without materializing it.
func (t *Tree) Get(id ID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Len reports how many nodes the mapping holds, the root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// IDs returns every mapped id in unspecified order.
func (t *Tree) IDs() []ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ID, 0, len(t.nodes))
	for id := range t.nodes {
		out = append(out, id)
	}
	return out
}

// Add attaches id under parentID, materializing either side as needed, and
// schedules a coalesced notification on every parent whose child set changed:
// the previous parent on a reparent, then the new one. The child is appended
// at the end of the parent's sibling list and spliced into the preorder list
// as the new last element of the parent's subtree; a node that already
// carries descendants moves as one block, keeping its own subtree intact.
//
// Degenerate requests from an unreliable event source are ignored: attaching
// a node to itself, reattaching the root, or attaching a node beneath its
// own subtree.
func (t *Tree) Add(id, parentID ID) {
	if id == parentID || id == RootID {
		return
	}
	child := t.GetOrCreate(id)
	parent := t.GetOrCreate(parentID)

	t.mu.Lock()
	for a := parent; a != nil; a = a.parent {
		if a == child {
			t.mu.Unlock()
			return
		}
	}
	oldParent := child.parent
	child.setParent(parent)
	t.mu.Unlock()

	if oldParent != nil && oldParent != parent {
		t.sched.AwaitNotify(oldParent)
	}
	t.sched.AwaitNotify(parent)
}

// SetPayload attaches an opaque payload to an existing node and schedules
// both the node-level and the tree-level coalesced notification. Payload
// changes share the tree-level channel with structural ones; only the
// node-level pass is scoped. Unknown ids are ignored.
func (t *Tree) SetPayload(id ID, payload any) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if ok {
		n.payload = payload
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.sched.AwaitNotify(n)
	t.sched.AwaitNotify(t)
}

// Delete destroys id and its entire subtree. Every strict descendant is
// evicted from the mapping, withdrawn from the scheduler, stripped of its
// observers and hard-reset; the node itself follows unless it is the root,
// which is only ever emptied, never evicted. The parent, when there is one,
// gets a coalesced notification for its shrunken child set, and eviction
// schedules the tree-level pass. Unknown ids are ignored.
func (t *Tree) Delete(id ID) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	descs := n.Descendants()

	// Bridge the preorder list over the whole block [n .. n.Last()] up
	// front, so the final reset can detach n as a stand-in for the block
	// after the descendants' links have been cleared.
	if last := n.Last(); last != nil {
		n.next = last.next
		if last.next != nil {
			last.next.prev = n
		}
		last.next = nil
	}

	for _, d := range descs {
		delete(t.nodes, d.id)
		t.sched.StopAwaitingNotify(d)
		d.changed.Clear()
		d.reset(true)
	}

	if n.parent != nil {
		t.sched.AwaitNotify(n.parent)
	}
	if n.id != RootID {
		delete(t.nodes, n.id)
		t.sched.AwaitNotify(t)
		t.sched.StopAwaitingNotify(n)
		n.changed.Clear()
	}
	n.reset(false)
	t.mu.Unlock()
}

// NodeSnapshot is one node of a Snapshot: identity, position and payload
// captured at a single instant.
type NodeSnapshot struct {
	ID       ID
	Parent   *ID
	Children []ID
	Payload  any
}

// Snapshot captures the attached hierarchy in document order under the
// tree's lock, so it is safe to call from any goroutine while the writer
// keeps mutating. Walk and the other traversal accessors read the links
// unlocked and stay bound to the single-writer contract; concurrent readers
// go through Snapshot.
func (t *Tree) Snapshot() []NodeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeSnapshot, 0, len(t.nodes))
	for n := t.root; n != nil; n = n.next {
		snap := NodeSnapshot{ID: n.id, Payload: n.payload}
		if n.parent != nil {
			pid := n.parent.id
			snap.Parent = &pid
		}
		for c := n.firstChild; c != nil; c = c.nextSibling {
			snap.Children = append(snap.Children, c.id)
		}
		out = append(out, snap)
	}
	return out
}

// Subscribe registers a tree-level observer: a callback fired, in
// registration order, after each coalesced pass covering node set or payload
// changes anywhere in the tree. The returned unsubscribe is idempotent.
func (t *Tree) Subscribe(fn func()) func() {
	return t.changed.Subscribe(func(struct{}) { fn() })
}

// SubscribeByID registers fn to fire with the node whenever that node's
// child set or payload changes, materializing the node when needed. The
// returned unsubscribe is idempotent and is a no-op once the node has been
// deleted.
func (t *Tree) SubscribeByID(id ID, fn func(*Node)) func() {
	return t.GetOrCreate(id).changed.Subscribe(fn)
}

// Notify delivers the tree-level observer pass; the coalescing scheduler
// calls this on flush.
func (t *Tree) Notify() {
	t.changed.Notify(struct{}{})
}

// Walk traverses the attached hierarchy in document order from startID
// through endID inclusive, root anchored. None or an unknown id leaves the
// corresponding bound at its default: the root itself and the end of the
// document.
func (t *Tree) Walk(visit Visitor, startID, endID ID) *Node {
	return t.root.Walk(visit, t.resolve(startID), t.resolve(endID))
}

// WalkBack mirrors Walk in reverse document order.
func (t *Tree) WalkBack(visit Visitor, startID, endID ID) *Node {
	return t.root.WalkBack(visit, t.resolve(startID), t.resolve(endID))
}

// Find searches document order from startID for the first accepted node,
// wrapping to the document start when roundtrip is set.
func (t *Tree) Find(accept Visitor, startID ID, roundtrip bool) *Node {
	return t.root.Find(accept, t.resolve(startID), roundtrip)
}

// FindBack mirrors Find in reverse document order.
func (t *Tree) FindBack(accept Visitor, startID ID, roundtrip bool) *Node {
	return t.root.FindBack(accept, t.resolve(startID), roundtrip)
}

func (t *Tree) resolve(id ID) *Node {
	if id == None {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// Flush forces the coalescing scheduler to deliver pending passes now.
func (t *Tree) Flush() {
	t.sched.Flush()
}

// Scheduler exposes the coalescing scheduler the tree registers its subjects
// on, shared or private.
func (t *Tree) Scheduler() *notify.Batcher {
	return t.sched
}

// Close stops a privately owned scheduler so no further pass can fire. A
// tree handed an external scheduler leaves it running for its other users.
func (t *Tree) Close() {
	if t.ownedSched {
		t.sched.Stop()
	}
}
