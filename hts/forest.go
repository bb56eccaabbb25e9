package hts

import (
	"errors"
	"fmt"
)

// NodeID indexes a node inside its tree's arena. Ids are stable across
// serialization; byte positions are derived from them at codec time.
type NodeID int32

// NilNode marks an absent child reference.
const NilNode NodeID = -1

// Node is one decision-tree node. Question < 0 marks a leaf. Non-leaves
// carry the question index (into the shared QuestionSet) and the arena
// ids of both children. Leaves are addressed either by LeafName (the
// stream-entry name, resolved to offsets at write time) or, for fonts
// read back from disk, by the already-resolved LeafRefs.
type Node struct {
	Question int32
	Left     NodeID
	Right    NodeID
	LeafName string
	LeafRefs []uint32 // one offset per physical stream
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.Question < 0 }

// Leaf returns a leaf node referencing the named stream entry.
func Leaf(name string) Node {
	return Node{Question: -1, Left: NilNode, Right: NilNode, LeafName: name}
}

// Branch returns a non-leaf node splitting on question index q.
func Branch(q int32, left, right NodeID) Node {
	return Node{Question: q, Left: left, Right: right}
}

// Tree is the decision tree of one (phone, state) pair. Nodes[0] is the
// root and the arena is a strict binary tree.
type Tree struct {
	Phone string
	State int
	Nodes []Node
}

// Validate checks the arena: every non-leaf has both children in range,
// no node is referenced twice, every node except the root is reachable,
// and question indexes fit the shared set.
func (t *Tree) Validate(questionCount, streamCount int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree %s[%d]: no nodes", t.Phone, t.State)
	}
	seen := make([]bool, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			if len(n.LeafRefs) != 0 && len(n.LeafRefs) != streamCount {
				return fmt.Errorf("tree %s[%d] node %d: %d leaf refs, want %d",
					t.Phone, t.State, i, len(n.LeafRefs), streamCount)
			}
			if n.LeafName == "" && len(n.LeafRefs) == 0 {
				return fmt.Errorf("tree %s[%d] node %d: leaf has neither name nor data refs",
					t.Phone, t.State, i)
			}
			continue
		}
		if int(n.Question) >= questionCount {
			return fmt.Errorf("tree %s[%d] node %d: question index %d out of range (%d questions)",
				t.Phone, t.State, i, n.Question, questionCount)
		}
		for _, c := range [2]NodeID{n.Left, n.Right} {
			if c <= 0 || int(c) >= len(t.Nodes) {
				return fmt.Errorf("tree %s[%d] node %d: child id %d out of range",
					t.Phone, t.State, i, c)
			}
			if seen[c] {
				return fmt.Errorf("tree %s[%d]: node %d referenced as child twice", t.Phone, t.State, c)
			}
			seen[c] = true
		}
	}
	for i := 1; i < len(t.Nodes); i++ {
		if !seen[i] {
			return fmt.Errorf("tree %s[%d]: node %d unreachable from root", t.Phone, t.State, i)
		}
	}
	return nil
}

// Leaves returns the leaf node ids in arena order.
func (t *Tree) Leaves() []NodeID {
	var out []NodeID
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// Walk visits node ids pre-order from the root.
func (t *Tree) Walk(fn func(id NodeID) error) error {
	return t.walk(0, fn)
}

func (t *Tree) walk(id NodeID, fn func(id NodeID) error) error {
	if err := fn(id); err != nil {
		return err
	}
	n := &t.Nodes[id]
	if n.IsLeaf() {
		return nil
	}
	if err := t.walk(n.Left, fn); err != nil {
		return err
	}
	return t.walk(n.Right, fn)
}

// Forest is the ordered tree collection of one model: one tree per
// (phone, emitting state), phone-major.
type Forest struct {
	Phones        *PhoneSet
	StateCount    int
	StreamIndexes []int
	Questions     *QuestionSet
	Trees         []Tree
}

// TreeFor returns the tree of (phone index, state), or nil when the
// forest is incomplete.
func (f *Forest) TreeFor(phone, state int) *Tree {
	i := phone*f.StateCount + state
	if i < 0 || i >= len(f.Trees) {
		return nil
	}
	return &f.Trees[i]
}

// Validate checks forest completeness: exactly one structurally valid
// tree per (phone, state) pair with matching labels.
func (f *Forest) Validate() error {
	if f.Phones == nil || f.Phones.Len() == 0 {
		return errors.New("forest: empty phone set")
	}
	if f.StateCount <= 0 {
		return fmt.Errorf("forest: state count %d", f.StateCount)
	}
	if len(f.StreamIndexes) == 0 {
		return errors.New("forest: no stream indexes")
	}
	if len(f.Trees) != f.Phones.Len()*f.StateCount {
		return fmt.Errorf("forest: %d trees for %d phones x %d states",
			len(f.Trees), f.Phones.Len(), f.StateCount)
	}
	questionCount := 0
	if f.Questions != nil {
		questionCount = f.Questions.Len()
	}
	for p := 0; p < f.Phones.Len(); p++ {
		label := f.Phones.At(p).Label
		for s := 0; s < f.StateCount; s++ {
			t := f.TreeFor(p, s)
			if t == nil || len(t.Nodes) == 0 {
				return fmt.Errorf("decision tree for phone %q state %d cannot be found", label, s)
			}
			if t.Phone != label || t.State != s {
				return fmt.Errorf("forest: tree at (%s,%d) labeled (%s,%d)", label, s, t.Phone, t.State)
			}
			if err := t.Validate(questionCount, len(f.StreamIndexes)); err != nil {
				return err
			}
		}
	}
	return nil
}
