package tree

import "github.com/conneroisu/treescope/internal/notify"

// ID identifies a node within a Tree. Identity is assigned by the producer
// of the mirrored hierarchy; treescope never invents ids of its own apart
// from the HTML importer.
type ID int64

const (
	// RootID is the permanent root. It always resolves and is never evicted.
	RootID ID = 0

	// None marks an absent optional id argument in traversal calls.
	None ID = -1
)

// Node is one element of the mirrored hierarchy. Every node carries two
// distinct sets of links: the sibling list of its parent (firstChild and
// lastChild on the parent, prevSibling and nextSibling on the children, in
// append order) and the tree-wide preorder list (prev and next), which
// threads every attached node in document order so any traversal can advance
// in O(1) without recursion.
//
// A node's preorder block [n .. n.Last()] is always contiguous, sitting
// strictly between its parent and the parent's next element outside the
// subtree. All structural invariants rest on that contiguity.
//
// Mutation goes through the owning Tree. The traversal methods (Last,
// NextSkipSubtree, Walk, WalkBack, Find, FindBack, Descendants) read the
// live links without locking and must not race with mutation from another
// goroutine; the snapshot accessors (Payload, Parent, Children, HasChildren)
// lock and are safe anywhere.
type Node struct {
	id   ID
	tree *Tree

	payload any

	parent      *Node
	firstChild  *Node
	lastChild   *Node
	prevSibling *Node
	nextSibling *Node

	// Global preorder list links.
	prev *Node
	next *Node

	// Lazily cached ordered child ids. kidsOK is the dirty flag: cleared on
	// any structural change to the child set, recomputed on next read.
	kids   []ID
	kidsOK bool

	changed notify.Signal[*Node]
}

// ID returns the node's identity.
func (n *Node) ID() ID { return n.id }

// Payload returns the opaque payload attached via Tree.SetPayload, or nil
// when none has been set. treescope never interprets it.
func (n *Node) Payload() any {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.payload
}

// Parent returns the parent node, nil for the root and for nodes not
// attached anywhere yet.
func (n *Node) Parent() *Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.parent
}

// HasChildren reports whether the node currently has at least one child.
func (n *Node) HasChildren() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.firstChild != nil
}

// Children returns the ids of the direct children in append order. The list
// is cached on the node and only recomputed after a structural change to the
// child set; callers get their own copy.
func (n *Node) Children() []ID {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if !n.kidsOK {
		n.kids = n.kids[:0]
		for c := n.firstChild; c != nil; c = c.nextSibling {
			n.kids = append(n.kids, c.id)
		}
		n.kidsOK = true
	}
	out := make([]ID, len(n.kids))
	copy(out, n.kids)
	return out
}

// Last returns the deepest last descendant, the final element of this node's
// preorder block. It is nil for a node without children.
func (n *Node) Last() *Node {
	cur := n.lastChild
	if cur == nil {
		return nil
	}
	for cur.lastChild != nil {
		cur = cur.lastChild
	}
	return cur
}

// blockEnd is the last element of the node's preorder block, the node itself
// when it has no descendants.
func (n *Node) blockEnd() *Node {
	if last := n.Last(); last != nil {
		return last
	}
	return n
}

// NextSkipSubtree returns the first node in document order lying entirely
// outside this node's subtree, found by walking ancestors' next-sibling
// links. It bounds subtree-scoped scans; nil means the subtree runs to the
// end of the document.
func (n *Node) NextSkipSubtree() *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.nextSibling != nil {
			return cur.nextSibling
		}
	}
	return nil
}

// Visitor inspects a node during traversal and returns true to stop there.
type Visitor func(*Node) bool

// Walk advances in document order from start through end inclusive, calling
// visit on every node. A nil start anchors the walk at n itself; a nil end
// stops at the boundary of n's own subtree (n itself when it has no
// descendants). Walk returns the node visit stopped on, or nil when the walk
// ran out.
func (n *Node) Walk(visit Visitor, start, end *Node) *Node {
	cur := start
	if cur == nil {
		cur = n
	}
	if end == nil {
		end = n.blockEnd()
	}
	for cur != nil {
		if visit(cur) {
			return cur
		}
		if cur == end {
			break
		}
		cur = cur.next
	}
	return nil
}

// WalkBack is Walk's mirror: it advances via prev from start (default: the
// end of n's own subtree) through end (default: n itself) inclusive.
func (n *Node) WalkBack(visit Visitor, start, end *Node) *Node {
	cur := start
	if cur == nil {
		cur = n.blockEnd()
	}
	if end == nil {
		end = n
	}
	for cur != nil {
		if visit(cur) {
			return cur
		}
		if cur == end {
			break
		}
		cur = cur.prev
	}
	return nil
}

// Find searches document order for the first node accept returns true for,
// beginning at start (n itself when nil). With roundtrip set, a search that
// began mid-subtree and found nothing restarts from n and runs up to start,
// so "find the next match, wrapping" works over the linear view of the
// hierarchy.
func (n *Node) Find(accept Visitor, start *Node, roundtrip bool) *Node {
	if found := n.Walk(accept, start, nil); found != nil {
		return found
	}
	if roundtrip && start != nil && start != n {
		return n.Walk(accept, nil, start)
	}
	return nil
}

// FindBack mirrors Find in reverse document order, wrapping from the subtree
// end when roundtrip is set.
func (n *Node) FindBack(accept Visitor, start *Node, roundtrip bool) *Node {
	if found := n.WalkBack(accept, start, nil); found != nil {
		return found
	}
	if roundtrip && start != nil && start != n.blockEnd() {
		return n.WalkBack(accept, nil, start)
	}
	return nil
}

// Descendants returns every node strictly below n in document order, nil
// when there are none.
func (n *Node) Descendants() []*Node {
	last := n.Last()
	if last == nil {
		return nil
	}
	var out []*Node
	n.Walk(func(d *Node) bool {
		out = append(out, d)
		return false
	}, n.next, last)
	return out
}

// Notify delivers the node-level observer pass. The coalescing scheduler
// calls this on flush; observers receive the node itself.
func (n *Node) Notify() {
	n.changed.Notify(n)
}

// invalidateChildren marks the cached child list stale. Caller holds the
// tree lock.
func (n *Node) invalidateChildren() {
	n.kids = nil
	n.kidsOK = false
}

// setParent reparents n, moving its entire preorder block in one splice.
// Caller holds the tree lock and has already rejected attachments under n's
// own subtree, which would corrupt both lists.
func (n *Node) setParent(p *Node) {
	if n.parent == p {
		return
	}
	if n.parent != nil {
		n.unlink(n.blockEnd())
	}
	n.parent = p
	if p != nil {
		p.attach(n)
	}
}

// unlink removes the block [n .. end] from both lists: n leaves its parent's
// sibling list and the block's outer preorder neighbors are bridged over it.
// Links inside the block survive so a later attach can re-splice it whole.
func (n *Node) unlink(end *Node) {
	if p := n.parent; p != nil {
		if n.prevSibling != nil {
			n.prevSibling.nextSibling = n.nextSibling
		} else {
			p.firstChild = n.nextSibling
		}
		if n.nextSibling != nil {
			n.nextSibling.prevSibling = n.prevSibling
		} else {
			p.lastChild = n.prevSibling
		}
		p.invalidateChildren()
	}
	n.prevSibling = nil
	n.nextSibling = nil

	if n.prev != nil {
		n.prev.next = end.next
	}
	if end.next != nil {
		end.next.prev = n.prev
	}
	n.prev = nil
	end.next = nil
}

// attach appends c to p's sibling list and splices c's preorder block right
// after p's current subtree end, making c the last element of p's subtree in
// document order. The anchor must be computed before the sibling append
// widens p's subtree to include c.
func (p *Node) attach(c *Node) {
	anchor := p.blockEnd()

	c.prevSibling = p.lastChild
	if p.lastChild != nil {
		p.lastChild.nextSibling = c
	} else {
		p.firstChild = c
	}
	p.lastChild = c
	p.invalidateChildren()

	end := c.blockEnd()
	end.next = anchor.next
	if anchor.next != nil {
		anchor.next.prev = end
	}
	c.prev = anchor
	anchor.next = c
}

// reset clears every structural pointer on a node being torn down. hard
// skips the unlink step: it is used on nodes inside a block whose outer
// boundary a subtree delete already bridged out of the preorder list.
func (n *Node) reset(hard bool) {
	if !hard {
		n.unlink(n)
	}
	n.parent = nil
	n.firstChild = nil
	n.lastChild = nil
	n.prevSibling = nil
	n.nextSibling = nil
	n.prev = nil
	n.next = nil
	n.invalidateChildren()
}
