//go:build property

package tree

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/treescope/internal/notify"
)

// refModel is the brute-force counterpart the linked structure is checked
// against: plain maps, no pointer lists, no caching. Whatever the splice
// code does, it must land on the same shape this does.
type refModel struct {
	exists   map[ID]bool
	parent   map[ID]ID
	children map[ID][]ID
}

func newRefModel() *refModel {
	return &refModel{
		exists:   map[ID]bool{RootID: true},
		parent:   map[ID]ID{},
		children: map[ID][]ID{},
	}
}

func (m *refModel) materialize(id ID) {
	m.exists[id] = true
}

func (m *refModel) inSubtree(id, root ID) bool {
	if id == root {
		return true
	}
	for _, kid := range m.children[root] {
		if m.inSubtree(id, kid) {
			return true
		}
	}
	return false
}

func (m *refModel) add(id, parentID ID) {
	if id == parentID || id == RootID {
		return
	}
	m.materialize(id)
	m.materialize(parentID)
	if m.inSubtree(parentID, id) {
		return
	}
	if p, ok := m.parent[id]; ok {
		if p == parentID {
			return
		}
		m.children[p] = removeKid(m.children[p], id)
	}
	m.parent[id] = parentID
	m.children[parentID] = append(m.children[parentID], id)
}

func (m *refModel) del(id ID) {
	if !m.exists[id] {
		return
	}
	var destroy func(ID)
	destroy = func(cur ID) {
		for _, kid := range m.children[cur] {
			destroy(kid)
		}
		delete(m.children, cur)
		delete(m.parent, cur)
		delete(m.exists, cur)
	}
	for _, kid := range m.children[id] {
		destroy(kid)
	}
	delete(m.children, id)
	if id != RootID {
		if p, ok := m.parent[id]; ok {
			m.children[p] = removeKid(m.children[p], id)
		}
		delete(m.parent, id)
		delete(m.exists, id)
	}
}

// subtree lists id and everything below it, depth first.
func (m *refModel) subtree(id ID) []ID {
	out := []ID{id}
	for _, kid := range m.children[id] {
		out = append(out, m.subtree(kid)...)
	}
	return out
}

func (m *refModel) preorder() []ID {
	return m.subtree(RootID)
}

func removeKid(kids []ID, id ID) []ID {
	for i, cur := range kids {
		if cur == id {
			return append(kids[:i:i], kids[i+1:]...)
		}
	}
	return kids
}

func equalIDs(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reversed(ids []ID) []ID {
	out := make([]ID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

// agree compares every observable the tree exposes with the model: the id
// mapping, document order both ways, per-node child lists and per-node
// subtree blocks.
func agree(tr *Tree, m *refModel) bool {
	var got []ID
	tr.Walk(func(n *Node) bool {
		got = append(got, n.ID())
		return false
	}, None, None)
	want := m.preorder()
	if !equalIDs(got, want) {
		return false
	}

	var back []ID
	tr.WalkBack(func(n *Node) bool {
		back = append(back, n.ID())
		return false
	}, None, None)
	if !equalIDs(back, reversed(want)) {
		return false
	}

	if tr.Len() != len(m.exists) {
		return false
	}
	for id := range m.exists {
		n, ok := tr.Get(id)
		if !ok {
			return false
		}
		if !equalIDs(n.Children(), m.children[id]) {
			return false
		}

		// The preorder block must hold exactly the node's subtree.
		block := m.subtree(id)
		var desc []ID
		for _, d := range n.Descendants() {
			desc = append(desc, d.ID())
		}
		if len(block) == 1 {
			if desc != nil || n.Last() != nil {
				return false
			}
		} else {
			if !equalIDs(desc, block[1:]) {
				return false
			}
			if n.Last() == nil || n.Last().ID() != block[len(block)-1] {
				return false
			}
		}
	}
	for _, id := range tr.IDs() {
		if !m.exists[id] {
			return false
		}
	}
	return true
}

// TestTreeProperties drives random mutation sequences through the linked
// tree and a naive reference model in lockstep. Ids are drawn from a tiny
// range so reparents, collisions, cycles and degenerate requests happen
// constantly.
func TestTreeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Each raw value encodes one operation: kind, id and parent id packed
	// into 3*8*8 combinations.
	properties.Property("linked tree matches the reference model", prop.ForAll(
		func(ops []int) bool {
			tr := New(notify.NewBatcher(time.Hour))
			defer tr.Close()
			m := newRefModel()

			for _, raw := range ops {
				kind := raw % 3
				id := ID((raw / 3) % 8)
				parentID := ID((raw / 24) % 8)
				switch kind {
				case 0:
					tr.Add(id, parentID)
					m.add(id, parentID)
				case 1:
					tr.Delete(id)
					m.del(id)
				default:
					tr.GetOrCreate(id)
					m.materialize(id)
				}
				if !agree(tr, m) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 191)),
	))

	properties.Property("deleting the root empties any tree", prop.ForAll(
		func(ops []int) bool {
			tr := New(notify.NewBatcher(time.Hour))
			defer tr.Close()
			for _, raw := range ops {
				tr.Add(ID((raw/3)%8), ID((raw/24)%8))
			}
			tr.Delete(RootID)

			if !tr.Has(RootID) || tr.Root().HasChildren() {
				return false
			}
			count := 0
			tr.Walk(func(*Node) bool {
				count++
				return false
			}, None, None)
			return count == 1
		},
		gen.SliceOf(gen.IntRange(0, 191)),
	))

	properties.TestingRun(t)
}
