// Package pst implements the preselection sibling format: per-state
// decision trees whose leaves pick candidate groups, each group a
// bitset of unit indexes. The file reuses the voice font's question,
// forest and string pool sections; only the candidate section is its
// own.
package pst

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/google/uuid"

	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
)

// headerSize is the fixed preselection header size.
const headerSize = 68

// maxGroups bounds the candidate group count a file may declare.
const maxGroups = 1 << 16

// maxMembers bounds one group's member count, and with it the bitset
// word count.
const maxMembers = 1 << 20

// Group is one candidate set: a display name and the unit indexes it
// admits, ascending.
type Group struct {
	Name    string
	Members []uint32
}

// Header mirrors the on-disk preselection header. DataSize and the
// four section locations are derived while writing and populated on
// read.
type Header struct {
	FormatTag    uuid.UUID
	DataSize     uint32
	Version      uint32
	Build        uint32
	Question     hts.Location
	DecisionTree hts.Location
	StringPool   hts.Location
	CandidateSet hts.Location
	ReservedSize uint32
}

// Data is one preselection file in memory. Leaves of the forest carry
// a single reference: the index of the candidate group they select.
type Data struct {
	Header    Header
	Questions *hts.QuestionSet
	Forest    *hts.Forest
	Groups    []Group
}

// Options configure reading. The writer needs none.
type Options struct {
	// Phones optionally names wire phone ids on read. Unknown ids get
	// synthesized labels.
	Phones *hts.PhoneSet
}

// Validate checks the container invariants: a one-slot forest over the
// question set, a well-formed group table, and every resolved leaf
// reference inside it.
func (d *Data) Validate() error {
	if d.Questions == nil {
		return errors.New("preselection: no question set")
	}
	if d.Forest == nil {
		return errors.New("preselection: no decision forest")
	}
	if len(d.Forest.StreamIndexes) != 1 {
		return fmt.Errorf("preselection: %d stream slots, want 1", len(d.Forest.StreamIndexes))
	}
	if err := d.Forest.Validate(); err != nil {
		return err
	}
	if len(d.Groups) == 0 {
		return errors.New("preselection: no candidate groups")
	}
	if len(d.Groups) > maxGroups {
		return fmt.Errorf("preselection: %d candidate groups", len(d.Groups))
	}
	names := make(map[string]struct{}, len(d.Groups))
	for i, g := range d.Groups {
		if g.Name == "" {
			return fmt.Errorf("preselection: candidate group %d has no name", i)
		}
		if _, dup := names[g.Name]; dup {
			return fmt.Errorf("preselection: candidate group %q defined twice", g.Name)
		}
		names[g.Name] = struct{}{}
		if len(g.Members) == 0 {
			return fmt.Errorf("preselection: candidate group %q has no members", g.Name)
		}
		if len(g.Members) > maxMembers {
			return fmt.Errorf("preselection: candidate group %q has %d members", g.Name, len(g.Members))
		}
		for j := 1; j < len(g.Members); j++ {
			if g.Members[j] <= g.Members[j-1] {
				return fmt.Errorf("preselection: candidate group %q members not ascending at %d", g.Name, j)
			}
		}
		if last := g.Members[len(g.Members)-1]; last >= maxMembers {
			return fmt.Errorf("preselection: candidate group %q member %d out of range", g.Name, last)
		}
	}
	for ti := range d.Forest.Trees {
		t := &d.Forest.Trees[ti]
		for ni := range t.Nodes {
			n := &t.Nodes[ni]
			if !n.IsLeaf() || len(n.LeafRefs) == 0 {
				continue
			}
			if len(n.LeafRefs) != 1 {
				return fmt.Errorf("preselection: tree %s[%d] node %d carries %d refs",
					t.Phone, t.State, ni, len(n.LeafRefs))
			}
			if idx := n.LeafRefs[0]; int(idx) >= len(d.Groups) {
				return fmt.Errorf("preselection: tree %s[%d] node %d selects group %d of %d",
					t.Phone, t.State, ni, idx, len(d.Groups))
			}
		}
	}
	return nil
}

// GroupByName looks a candidate group up by its display name.
func (d *Data) GroupByName(name string) (Group, bool) {
	for _, g := range d.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// formatTag resolves and checks the header's format tag: a zero tag
// takes the preselection default, anything else must equal it.
func formatTag(h *Header) (uuid.UUID, error) {
	want, err := hts.FormatTagFor(hts.TagPST)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %v", codec.ErrInvalidData, err)
	}
	if h.FormatTag == (uuid.UUID{}) {
		return want, nil
	}
	if h.FormatTag != want {
		return uuid.UUID{}, fmt.Errorf("%w: format tag %s is not the %q format tag",
			codec.ErrInvalidData, h.FormatTag, hts.TagPST)
	}
	return want, nil
}

// Write serializes validated preselection data. Leaf names resolve to
// group indexes through the group table; the header and the candidate
// index are backpatched at the end. Returns the total size in bytes.
func Write(ws io.WriteSeeker, d *Data) (int64, error) {
	if d == nil {
		return 0, errors.New("write preselection: nil data")
	}
	if err := d.Validate(); err != nil {
		return 0, err
	}
	w, err := codec.NewWriter(ws)
	if err != nil {
		return 0, err
	}
	if w.Pos() != 0 {
		return 0, errors.New("write preselection: stream must begin at offset 0")
	}
	if v := d.Header.Version; v != 0 && v != hts.CurrentVersion {
		return 0, fmt.Errorf("%w: preselection version %#06x", codec.ErrNotSupported, v)
	}
	ft, err := formatTag(&d.Header)
	if err != nil {
		return 0, err
	}

	index := make(map[string][]uint32, len(d.Groups))
	for i, g := range d.Groups {
		index[g.Name] = []uint32{uint32(i)}
	}
	resolve := func(name string) ([]uint32, error) {
		refs, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: leaf %q names no candidate group", codec.ErrInvalidData, name)
		}
		return refs, nil
	}

	pool := hts.NewStringPool()
	if _, err := w.Reserve(headerSize); err != nil {
		return 0, err
	}

	qStart := w.Pos()
	if err := codec.WriteQuestionSection(w, d.Questions, pool); err != nil {
		return 0, err
	}
	qLoc := hts.Location{Offset: uint32(qStart), Length: uint32(w.Pos() - qStart)}

	dtLoc, err := codec.WriteForestSection(w, d.Forest, resolve)
	if err != nil {
		return 0, err
	}

	csLoc, err := writeCandidateSection(w, d.Groups, pool)
	if err != nil {
		return 0, err
	}

	spStart := w.Pos()
	if err := codec.WriteStringPoolSection(w, pool, codec.NopCipher{}); err != nil {
		return 0, err
	}
	spLoc := hts.Location{Offset: uint32(spStart), Length: uint32(w.Pos() - spStart)}

	total := w.Pos()
	if total > math.MaxUint32 {
		return 0, fmt.Errorf("%w: preselection file of %d bytes", codec.ErrInvalidData, total)
	}
	err = w.Patch(0, func() error {
		return writeHeader(w, &d.Header, ft, uint32(total), qLoc, dtLoc, spLoc, csLoc)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// writeHeader emits the fixed header with all locations resolved.
func writeHeader(w *codec.Writer, h *Header, ft uuid.UUID, dataSize uint32, q, dt, sp, cs hts.Location) error {
	tag := uint32(hts.TagPST[0]) | uint32(hts.TagPST[1])<<8 | uint32(hts.TagPST[2])<<16 | uint32(hts.TagPST[3])<<24
	if err := w.U32(tag); err != nil {
		return err
	}
	if err := w.Bytes(ft[:]); err != nil {
		return err
	}
	if err := w.U32(dataSize); err != nil {
		return err
	}
	version := h.Version
	if version == 0 {
		version = hts.CurrentVersion
	}
	if err := w.U32(version); err != nil {
		return err
	}
	if err := w.U32(h.Build); err != nil {
		return err
	}
	for _, loc := range [4]hts.Location{q, dt, sp, cs} {
		if err := w.Location(loc.Offset, loc.Length); err != nil {
			return err
		}
	}
	if err := w.U32(h.ReservedSize); err != nil {
		return err
	}
	if w.Pos() != headerSize {
		return fmt.Errorf("%w: preselection header occupies %d bytes", codec.ErrInvalidData, w.Pos())
	}
	return nil
}

// writeCandidateSection writes the group count, the per-group location
// index, then each group's bitset record.
func writeCandidateSection(w *codec.Writer, groups []Group, pool *hts.StringPool) (hts.Location, error) {
	start := w.Pos()
	if err := w.AssertAligned("candidate section"); err != nil {
		return hts.Location{}, err
	}
	if err := w.U32(uint32(len(groups))); err != nil {
		return hts.Location{}, err
	}
	marks := make([]int64, len(groups))
	var err error
	for i := range groups {
		if marks[i], err = w.Reserve(8); err != nil {
			return hts.Location{}, err
		}
	}
	for i := range groups {
		g := &groups[i]
		gStart := w.Pos()
		if err := w.U32(pool.Intern(g.Name)); err != nil {
			return hts.Location{}, err
		}
		if err := w.U32(uint32(len(g.Members))); err != nil {
			return hts.Location{}, err
		}
		words := packMembers(g.Members)
		if err := w.U32(uint32(len(words))); err != nil {
			return hts.Location{}, err
		}
		for _, word := range words {
			if err := w.U32(word); err != nil {
				return hts.Location{}, err
			}
		}
		gLen := w.Pos() - gStart
		err = w.Patch(marks[i], func() error {
			return w.Location(uint32(gStart), uint32(gLen))
		})
		if err != nil {
			return hts.Location{}, err
		}
	}
	return hts.Location{Offset: uint32(start), Length: uint32(w.Pos() - start)}, nil
}

// Read deserializes a preselection file and validates every leaf's
// group reference against the group table.
func Read(rs io.ReadSeeker, opts Options) (*Data, error) {
	r, err := codec.NewReader(rs)
	if err != nil {
		return nil, err
	}
	if err := r.SeekTo(0); err != nil {
		return nil, err
	}
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	size, err := r.Size()
	if err != nil {
		return nil, err
	}
	if size != int64(h.DataSize) {
		return nil, fmt.Errorf("%w: preselection file is %d bytes, header says %d",
			codec.ErrInvalidData, size, h.DataSize)
	}
	for _, s := range [4]struct {
		name string
		loc  hts.Location
	}{
		{"question", h.Question},
		{"decision tree", h.DecisionTree},
		{"string pool", h.StringPool},
		{"candidate set", h.CandidateSet},
	} {
		if s.loc.IsZero() {
			return nil, fmt.Errorf("%w: %s section never resolved", codec.ErrInvalidData, s.name)
		}
		if end := int64(s.loc.Offset) + int64(s.loc.Length); end > size {
			return nil, fmt.Errorf("%w: %s section ends at %d, file is %d bytes",
				codec.ErrInvalidData, s.name, end, size)
		}
	}

	if err := r.SeekTo(int64(h.StringPool.Offset)); err != nil {
		return nil, err
	}
	pool, err := codec.ReadStringPoolSection(r, codec.NopCipher{})
	if err != nil {
		return nil, err
	}

	if err := r.SeekTo(int64(h.Question.Offset)); err != nil {
		return nil, err
	}
	qs, err := codec.ReadQuestionSection(r, pool)
	if err != nil {
		return nil, err
	}
	if consumed := r.Pos() - int64(h.Question.Offset); consumed != int64(h.Question.Length) {
		return nil, fmt.Errorf("%w: question section occupies %d bytes, header says %d",
			codec.ErrInvalidData, consumed, h.Question.Length)
	}

	if err := r.SeekTo(int64(h.DecisionTree.Offset)); err != nil {
		return nil, err
	}
	forest, err := codec.ReadForestSection(r, []int{0}, qs, opts.Phones)
	if err != nil {
		return nil, err
	}
	if consumed := r.Pos() - int64(h.DecisionTree.Offset); consumed != int64(h.DecisionTree.Length) {
		return nil, fmt.Errorf("%w: decision tree section occupies %d bytes, header says %d",
			codec.ErrInvalidData, consumed, h.DecisionTree.Length)
	}

	if err := r.SeekTo(int64(h.CandidateSet.Offset)); err != nil {
		return nil, err
	}
	groups, err := readCandidateSection(r, pool)
	if err != nil {
		return nil, err
	}

	for ti := range forest.Trees {
		t := &forest.Trees[ti]
		for ni := range t.Nodes {
			n := &t.Nodes[ni]
			if !n.IsLeaf() {
				continue
			}
			for _, idx := range n.LeafRefs {
				if int(idx) >= len(groups) {
					return nil, fmt.Errorf("%w: tree %s[%d] node %d selects group %d of %d",
						codec.ErrInvalidData, t.Phone, t.State, ni, idx, len(groups))
				}
			}
		}
	}

	d := &Data{Header: *h, Questions: qs, Forest: forest, Groups: groups}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrInvalidData, err)
	}
	return d, nil
}

// readHeader reads and sanity-checks the fixed header.
func readHeader(r *codec.Reader) (*Header, error) {
	tagWord, err := r.U32()
	if err != nil {
		return nil, err
	}
	tag := string([]byte{byte(tagWord), byte(tagWord >> 8), byte(tagWord >> 16), byte(tagWord >> 24)})
	if tag != hts.TagPST {
		return nil, fmt.Errorf("%w: file tag %q is not %q", codec.ErrInvalidData, tag, hts.TagPST)
	}
	h := &Header{}
	var ft [16]byte
	if err := r.Bytes(ft[:]); err != nil {
		return nil, err
	}
	h.FormatTag = uuid.UUID(ft)
	if want, _ := hts.FormatTagFor(hts.TagPST); h.FormatTag != want {
		return nil, fmt.Errorf("%w: format tag %s is not the %q format tag",
			codec.ErrInvalidData, h.FormatTag, hts.TagPST)
	}
	if h.DataSize, err = r.U32(); err != nil {
		return nil, err
	}
	if h.Version, err = r.U32(); err != nil {
		return nil, err
	}
	if h.Version != hts.CurrentVersion {
		return nil, fmt.Errorf("%w: preselection version %#06x", codec.ErrNotSupported, h.Version)
	}
	if h.Build, err = r.U32(); err != nil {
		return nil, err
	}
	locs := [4]*hts.Location{&h.Question, &h.DecisionTree, &h.StringPool, &h.CandidateSet}
	for _, loc := range locs {
		off, length, err := r.Location()
		if err != nil {
			return nil, err
		}
		*loc = hts.Location{Offset: off, Length: length}
	}
	if h.ReservedSize, err = r.U32(); err != nil {
		return nil, err
	}
	if r.Pos() != headerSize {
		return nil, fmt.Errorf("%w: preselection header occupies %d bytes", codec.ErrInvalidData, r.Pos())
	}
	return h, nil
}

// readCandidateSection reads the group index and every bitset record,
// checking each declared member count against the bitset population.
func readCandidateSection(r *codec.Reader, pool *hts.StringPool) ([]Group, error) {
	if err := r.AssertAligned("candidate section"); err != nil {
		return nil, err
	}
	groupCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if groupCount == 0 || groupCount > maxGroups {
		return nil, fmt.Errorf("%w: %d candidate groups", codec.ErrInvalidData, groupCount)
	}
	locs := make([]hts.Location, groupCount)
	for i := range locs {
		off, length, err := r.Location()
		if err != nil {
			return nil, err
		}
		locs[i] = hts.Location{Offset: off, Length: length}
		if locs[i].IsZero() {
			return nil, fmt.Errorf("%w: candidate group %d cannot be found", codec.ErrInvalidData, i)
		}
	}
	groups := make([]Group, groupCount)
	for i, loc := range locs {
		if err := r.SeekTo(int64(loc.Offset)); err != nil {
			return nil, err
		}
		nameOff, err := r.U32()
		if err != nil {
			return nil, err
		}
		name, err := pool.At(nameOff)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate group %d name: %v", codec.ErrInvalidData, i, err)
		}
		memberCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		if memberCount > maxMembers {
			return nil, fmt.Errorf("%w: candidate group %q declares %d members",
				codec.ErrInvalidData, name, memberCount)
		}
		wordCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		if wordCount > maxMembers/32 {
			return nil, fmt.Errorf("%w: candidate group %q bitset of %d words",
				codec.ErrInvalidData, name, wordCount)
		}
		words := make([]uint32, wordCount)
		population := 0
		for j := range words {
			if words[j], err = r.U32(); err != nil {
				return nil, err
			}
			population += bits.OnesCount32(words[j])
		}
		if population != int(memberCount) {
			return nil, fmt.Errorf("%w: candidate group %q declares %d members, bitset holds %d",
				codec.ErrInvalidData, name, memberCount, population)
		}
		if consumed := r.Pos() - int64(loc.Offset); consumed != int64(loc.Length) {
			return nil, fmt.Errorf("%w: candidate group %q occupies %d bytes, index says %d",
				codec.ErrInvalidData, name, consumed, loc.Length)
		}
		groups[i] = Group{Name: name, Members: unpackMembers(words)}
	}
	return groups, nil
}

// packMembers encodes ascending member indexes as a bitset.
func packMembers(members []uint32) []uint32 {
	if len(members) == 0 {
		return nil
	}
	last := members[len(members)-1]
	words := make([]uint32, last/32+1)
	for _, m := range members {
		words[m/32] |= 1 << (m % 32)
	}
	return words
}

// unpackMembers lists the set bits of a bitset, ascending.
func unpackMembers(words []uint32) []uint32 {
	members := make([]uint32, 0, len(words))
	for wi, w := range words {
		for w != 0 {
			b := bits.TrailingZeros32(w)
			members = append(members, uint32(wi*32+b))
			w &= w - 1
		}
	}
	return members
}
