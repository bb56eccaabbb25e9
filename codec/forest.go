package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// Node type discriminants on the wire.
const (
	nodeNonLeaf = 0
	nodeLeaf    = 1
)

// maxStateCount bounds the per-phone state count a forest index may
// declare.
const maxStateCount = 64

// nonLeafSize is the wire size of an inner node: type and question
// index as u16, two child positions as u32.
const nonLeafSize = 12

// leafSize returns the wire size of a leaf: type, zero padding, one
// data offset per stream.
func leafSize(streamCount int) int { return 4 + 4*streamCount }

// LeafResolver maps a leaf's entry name to its per-stream data
// offsets. Leaves that already carry resolved offsets bypass it.
type LeafResolver func(name string) ([]uint32, error)

// treeLayout assigns every node its byte position relative to the
// tree's first node. Positions follow arena order, so child links may
// point forward or backward; fixing them up front lets the writer emit
// each node exactly once.
func treeLayout(t *hts.Tree, streamCount int) (positions []uint32, total int) {
	positions = make([]uint32, len(t.Nodes))
	for i := range t.Nodes {
		positions[i] = uint32(total)
		if t.Nodes[i].IsLeaf() {
			total += leafSize(streamCount)
		} else {
			total += nonLeafSize
		}
	}
	return positions, total
}

// WriteForestSection writes a decision forest: the phone and state
// counts, the per-phone location index, then every tree in phone-major
// order. Index entries are reserved up front and patched as each tree
// lands, so the section goes out in one forward sweep. The returned
// location covers the whole section.
func WriteForestSection(w *Writer, f *hts.Forest, resolve LeafResolver) (hts.Location, error) {
	if err := f.Validate(); err != nil {
		return hts.Location{}, err
	}
	if err := w.AssertAligned("forest section"); err != nil {
		return hts.Location{}, err
	}
	start := w.Pos()
	if err := w.U32(uint32(f.Phones.Len())); err != nil {
		return hts.Location{}, err
	}
	if err := w.U32(uint32(f.StateCount)); err != nil {
		return hts.Location{}, err
	}
	marks := make([]int64, f.Phones.Len()*f.StateCount)
	for p := 0; p < f.Phones.Len(); p++ {
		if err := w.U32(uint32(f.Phones.At(p).ID)); err != nil {
			return hts.Location{}, err
		}
		for s := 0; s < f.StateCount; s++ {
			mark, err := w.Reserve(8)
			if err != nil {
				return hts.Location{}, err
			}
			marks[p*f.StateCount+s] = mark
		}
	}
	streamCount := len(f.StreamIndexes)
	for p := 0; p < f.Phones.Len(); p++ {
		label := f.Phones.At(p).Label
		for s := 0; s < f.StateCount; s++ {
			loc, err := writeTree(w, f.TreeFor(p, s), streamCount, resolve)
			if err != nil {
				return hts.Location{}, err
			}
			if loc.IsZero() {
				return hts.Location{}, fmt.Errorf("%w: decision tree for phone %q state %d cannot be found",
					ErrInvalidData, label, s)
			}
			err = w.Patch(marks[p*f.StateCount+s], func() error {
				return w.Location(loc.Offset, loc.Length)
			})
			if err != nil {
				return hts.Location{}, err
			}
		}
	}
	return hts.Location{Offset: uint32(start), Length: uint32(w.Pos() - start)}, nil
}

// writeTree writes one node-count-prefixed tree and returns its
// absolute location.
func writeTree(w *Writer, t *hts.Tree, streamCount int, resolve LeafResolver) (hts.Location, error) {
	if err := w.AssertAligned("tree"); err != nil {
		return hts.Location{}, err
	}
	positions, total := treeLayout(t, streamCount)
	start := w.Pos()
	if err := w.U32(uint32(len(t.Nodes))); err != nil {
		return hts.Location{}, err
	}
	base := w.Pos()
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !n.IsLeaf() {
			if n.Question > 0xFFFF {
				return hts.Location{}, fmt.Errorf("%w: tree %s[%d] node %d: question index %d does not fit the wire",
					ErrInvalidData, t.Phone, t.State, i, n.Question)
			}
			if err := w.U16(nodeNonLeaf); err != nil {
				return hts.Location{}, err
			}
			if err := w.U16(uint16(n.Question)); err != nil {
				return hts.Location{}, err
			}
			if err := w.U32(positions[n.Left]); err != nil {
				return hts.Location{}, err
			}
			if err := w.U32(positions[n.Right]); err != nil {
				return hts.Location{}, err
			}
			continue
		}
		if err := w.U16(nodeLeaf); err != nil {
			return hts.Location{}, err
		}
		if err := w.U16(0); err != nil {
			return hts.Location{}, err
		}
		refs := n.LeafRefs
		if len(refs) == 0 {
			if resolve == nil {
				return hts.Location{}, fmt.Errorf("%w: tree %s[%d] node %d: leaf %q has no resolved data",
					ErrInvalidData, t.Phone, t.State, i, n.LeafName)
			}
			var err error
			if refs, err = resolve(n.LeafName); err != nil {
				return hts.Location{}, fmt.Errorf("tree %s[%d] node %d: %w", t.Phone, t.State, i, err)
			}
		}
		if len(refs) != streamCount {
			return hts.Location{}, fmt.Errorf("%w: tree %s[%d] node %d: %d data refs for %d streams",
				ErrInvalidData, t.Phone, t.State, i, len(refs), streamCount)
		}
		for _, off := range refs {
			if err := w.U32(off); err != nil {
				return hts.Location{}, err
			}
		}
	}
	if written := w.Pos() - base; written != int64(total) {
		return hts.Location{}, fmt.Errorf("%w: tree %s[%d] wrote %d bytes, layout assigned %d",
			ErrInvalidData, t.Phone, t.State, written, total)
	}
	return hts.Location{Offset: uint32(start), Length: uint32(4 + total)}, nil
}

// ReadForestSection reads a decision forest written by
// WriteForestSection. Stream indexes come from the enclosing model
// header; phone labels are resolved through the optional inventory and
// synthesized for ids it does not know.
func ReadForestSection(r *Reader, streamIndexes []int, questions *hts.QuestionSet, phones *hts.PhoneSet) (*hts.Forest, error) {
	if err := r.AssertAligned("forest section"); err != nil {
		return nil, err
	}
	phoneCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if phoneCount == 0 {
		return nil, fmt.Errorf("%w: forest with no phones", ErrInvalidData)
	}
	if err := checkCount("phone", phoneCount); err != nil {
		return nil, err
	}
	stateCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if stateCount == 0 || stateCount > maxStateCount {
		return nil, fmt.Errorf("%w: forest with %d states", ErrInvalidData, stateCount)
	}
	entries := make([]hts.Phone, phoneCount)
	locs := make([]hts.Location, int(phoneCount)*int(stateCount))
	for p := range entries {
		id, err := r.U32()
		if err != nil {
			return nil, err
		}
		entry := hts.Phone{Label: fmt.Sprintf("phone-%d", id), ID: int32(id)}
		if phones != nil {
			if known, ok := phones.ByID(int32(id)); ok {
				entry = known
			}
		}
		entries[p] = entry
		for s := 0; s < int(stateCount); s++ {
			off, length, err := r.Location()
			if err != nil {
				return nil, err
			}
			loc := hts.Location{Offset: off, Length: length}
			if loc.IsZero() {
				return nil, fmt.Errorf("%w: decision tree for phone %q state %d cannot be found",
					ErrInvalidData, entry.Label, s)
			}
			locs[p*int(stateCount)+s] = loc
		}
	}
	set, err := hts.NewPhoneSet(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	forest := &hts.Forest{
		Phones:        set,
		StateCount:    int(stateCount),
		StreamIndexes: streamIndexes,
		Questions:     questions,
		Trees:         make([]hts.Tree, len(locs)),
	}
	for p := range entries {
		for s := 0; s < int(stateCount); s++ {
			i := p*int(stateCount) + s
			tree, err := readTree(r, locs[i], len(streamIndexes))
			if err != nil {
				return nil, fmt.Errorf("tree %s: %w", hts.TreeName(entries[p], s), err)
			}
			tree.Phone = entries[p].Label
			tree.State = s
			forest.Trees[i] = *tree
		}
	}
	if err := forest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return forest, nil
}

// readTree reads one tree at its indexed location and resolves wire
// child positions back to arena ids.
func readTree(r *Reader, loc hts.Location, streamCount int) (*hts.Tree, error) {
	if err := r.SeekTo(int64(loc.Offset)); err != nil {
		return nil, err
	}
	nodeCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if nodeCount == 0 {
		return nil, fmt.Errorf("%w: empty tree", ErrInvalidData)
	}
	if err := checkCount("node", nodeCount); err != nil {
		return nil, err
	}
	type rawLinks struct {
		left, right uint32
	}
	tree := &hts.Tree{Nodes: make([]hts.Node, nodeCount)}
	links := make([]rawLinks, nodeCount)
	byPosition := make(map[uint32]hts.NodeID, nodeCount)
	pos := uint32(0)
	for i := range tree.Nodes {
		byPosition[pos] = hts.NodeID(i)
		kind, err := r.U16()
		if err != nil {
			return nil, err
		}
		switch kind {
		case nodeNonLeaf:
			q, err := r.U16()
			if err != nil {
				return nil, err
			}
			if links[i].left, err = r.U32(); err != nil {
				return nil, err
			}
			if links[i].right, err = r.U32(); err != nil {
				return nil, err
			}
			tree.Nodes[i] = hts.Branch(int32(q), hts.NilNode, hts.NilNode)
			pos += nonLeafSize
		case nodeLeaf:
			pad, err := r.U16()
			if err != nil {
				return nil, err
			}
			if pad != 0 {
				return nil, fmt.Errorf("%w: node %d carries leaf padding %#x", ErrInvalidData, i, pad)
			}
			refs := make([]uint32, streamCount)
			for j := range refs {
				if refs[j], err = r.U32(); err != nil {
					return nil, err
				}
			}
			tree.Nodes[i] = hts.Node{Question: -1, Left: hts.NilNode, Right: hts.NilNode, LeafRefs: refs}
			pos += uint32(leafSize(streamCount))
		default:
			return nil, fmt.Errorf("%w: node %d has type %d", ErrInvalidData, i, kind)
		}
	}
	if consumed := 4 + pos; consumed != loc.Length {
		return nil, fmt.Errorf("%w: tree occupies %d bytes, index says %d", ErrInvalidData, consumed, loc.Length)
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		left, ok := byPosition[links[i].left]
		if !ok {
			return nil, fmt.Errorf("%w: node %d left child position %d resolves to no node",
				ErrInvalidData, i, links[i].left)
		}
		right, ok := byPosition[links[i].right]
		if !ok {
			return nil, fmt.Errorf("%w: node %d right child position %d resolves to no node",
				ErrInvalidData, i, links[i].right)
		}
		n.Left, n.Right = left, right
	}
	return tree, nil
}
