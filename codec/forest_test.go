package codec

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ieee0824/voicefont-go/hts"
)

// forestQuestions returns a two-question set so tree nodes can split on
// indexes 0 and 1.
func forestQuestions(t *testing.T) *hts.QuestionSet {
	t.Helper()
	qs := hts.NewQuestionSet()
	add := func(q hts.Question) {
		t.Helper()
		if _, err := qs.Add(q); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	add(hts.Question{FeatureName: "PhoneID", Oper: hts.OperEqual, CodeValues: []int32{1}})
	add(hts.Question{FeatureName: "SylCount", Oper: hts.OperLess, CodeValues: []int32{4}})
	return qs
}

// resolvedLeaf returns a leaf that already carries its stream offsets.
func resolvedLeaf(refs ...uint32) hts.Node {
	return hts.Node{Question: -1, Left: hts.NilNode, Right: hts.NilNode, LeafRefs: refs}
}

// refTree builds the five-node tree used across these tests: two splits
// over three leaves with single-stream offsets 16, 0 and 8.
func refTree(phone string, state int) hts.Tree {
	return hts.Tree{
		Phone: phone,
		State: state,
		Nodes: []hts.Node{
			hts.Branch(0, 1, 2),
			hts.Branch(1, 3, 4),
			resolvedLeaf(16),
			resolvedLeaf(0),
			resolvedLeaf(8),
		},
	}
}

// testForest builds a two-phone, two-state forest over one stream.
func testForest(t *testing.T) *hts.Forest {
	t.Helper()
	phones, err := hts.NewPhoneSet([]hts.Phone{
		{Label: "a", ID: 1},
		{Label: "sil", ID: 2, Wildcard: true},
	})
	if err != nil {
		t.Fatalf("NewPhoneSet error: %v", err)
	}
	return &hts.Forest{
		Phones:        phones,
		StateCount:    2,
		StreamIndexes: []int{0},
		Questions:     forestQuestions(t),
		Trees: []hts.Tree{
			refTree("a", 0),
			refTree("a", 1),
			refTree("sil", 0),
			refTree("sil", 1),
		},
	}
}

func writeTestForest(t *testing.T) (hts.Location, []byte) {
	t.Helper()
	w, mf := newTestWriter(t)
	loc, err := WriteForestSection(w, testForest(t), nil)
	if err != nil {
		t.Fatalf("WriteForestSection error: %v", err)
	}
	return loc, mf.Bytes()
}

func u32At(data []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(data[off:])
}

func u16At(data []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(data[off:])
}

func TestWriteForestSectionLayout(t *testing.T) {
	loc, data := writeTestForest(t)
	if loc.Offset != 0 || loc.Length != 256 {
		t.Fatalf("section location = {%d, %d}, want {0, 256}", loc.Offset, loc.Length)
	}

	if got := u32At(data, 0); got != 2 {
		t.Errorf("phone count = %d, want 2", got)
	}
	if got := u32At(data, 4); got != 2 {
		t.Errorf("state count = %d, want 2", got)
	}
	if got := u32At(data, 8); got != 1 {
		t.Errorf("first phone id = %d, want 1", got)
	}
	if got := u32At(data, 28); got != 2 {
		t.Errorf("second phone id = %d, want 2", got)
	}

	// Each tree is 4 bytes of node count plus 2x12 inner and 3x8 leaf
	// nodes; the index points at them back to back after the 48-byte
	// prefix.
	wantIndex := []struct{ at, offset, length uint32 }{
		{12, 48, 52},
		{20, 100, 52},
		{32, 152, 52},
		{40, 204, 52},
	}
	for _, e := range wantIndex {
		if got := u32At(data, int(e.at)); got != e.offset {
			t.Errorf("index offset at %d = %d, want %d", e.at, got, e.offset)
		}
		if got := u32At(data, int(e.at+4)); got != e.length {
			t.Errorf("index length at %d = %d, want %d", e.at+4, got, e.length)
		}
	}

	// First tree: node count, then the root splitting on question 0 with
	// tree-relative child positions.
	if got := u32At(data, 48); got != 5 {
		t.Errorf("node count = %d, want 5", got)
	}
	if got := u16At(data, 52); got != nodeNonLeaf {
		t.Errorf("root type = %d, want %d", got, nodeNonLeaf)
	}
	if got := u16At(data, 54); got != 0 {
		t.Errorf("root question = %d, want 0", got)
	}
	if got := u32At(data, 56); got != 12 {
		t.Errorf("root left position = %d, want 12", got)
	}
	if got := u32At(data, 60); got != 24 {
		t.Errorf("root right position = %d, want 24", got)
	}
	if got := u16At(data, 66); got != 1 {
		t.Errorf("second split question = %d, want 1", got)
	}
	if got := u32At(data, 68); got != 32 {
		t.Errorf("second split left position = %d, want 32", got)
	}
	if got := u16At(data, 76); got != nodeLeaf {
		t.Errorf("first leaf type = %d, want %d", got, nodeLeaf)
	}
	if got := u32At(data, 80); got != 16 {
		t.Errorf("first leaf ref = %d, want 16", got)
	}
}

func TestForestSectionRoundTrip(t *testing.T) {
	f := testForest(t)
	_, data := writeTestForest(t)

	r := newTestReader(t, data)
	got, err := ReadForestSection(r, []int{0}, f.Questions, f.Phones)
	if err != nil {
		t.Fatalf("ReadForestSection error: %v", err)
	}
	if got.StateCount != 2 || got.Phones.Len() != 2 {
		t.Fatalf("read %d phones x %d states, want 2x2", got.Phones.Len(), got.StateCount)
	}
	for p := 0; p < 2; p++ {
		want := f.Phones.At(p)
		if have := got.Phones.At(p); have.Label != want.Label || have.ID != want.ID || have.Wildcard != want.Wildcard {
			t.Errorf("phone %d = %+v, want %+v", p, have, want)
		}
	}
	for i := range f.Trees {
		wantTree := &f.Trees[i]
		gotTree := &got.Trees[i]
		if gotTree.Phone != wantTree.Phone || gotTree.State != wantTree.State {
			t.Errorf("tree %d labeled (%s,%d), want (%s,%d)",
				i, gotTree.Phone, gotTree.State, wantTree.Phone, wantTree.State)
		}
		if len(gotTree.Nodes) != len(wantTree.Nodes) {
			t.Fatalf("tree %d has %d nodes, want %d", i, len(gotTree.Nodes), len(wantTree.Nodes))
		}
		for n := range wantTree.Nodes {
			wantNode := &wantTree.Nodes[n]
			gotNode := &gotTree.Nodes[n]
			if gotNode.IsLeaf() != wantNode.IsLeaf() {
				t.Fatalf("tree %d node %d leafness flipped", i, n)
			}
			if wantNode.IsLeaf() {
				if len(gotNode.LeafRefs) != 1 || gotNode.LeafRefs[0] != wantNode.LeafRefs[0] {
					t.Errorf("tree %d node %d refs = %v, want %v", i, n, gotNode.LeafRefs, wantNode.LeafRefs)
				}
				continue
			}
			if gotNode.Question != wantNode.Question || gotNode.Left != wantNode.Left || gotNode.Right != wantNode.Right {
				t.Errorf("tree %d node %d = %+v, want %+v", i, n, gotNode, wantNode)
			}
		}
	}
}

func TestReadForestSectionSynthesizesLabels(t *testing.T) {
	f := testForest(t)
	_, data := writeTestForest(t)

	r := newTestReader(t, data)
	got, err := ReadForestSection(r, []int{0}, f.Questions, nil)
	if err != nil {
		t.Fatalf("ReadForestSection error: %v", err)
	}
	if label := got.Phones.At(0).Label; label != "phone-1" {
		t.Errorf("phone 0 label = %q, want phone-1", label)
	}
	if label := got.Phones.At(1).Label; label != "phone-2" {
		t.Errorf("phone 1 label = %q, want phone-2", label)
	}
}

func TestReadForestSectionCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(data []byte)
		want    string
	}{
		{
			"no phones",
			func(data []byte) { binary.LittleEndian.PutUint32(data, 0) },
			"forest with no phones",
		},
		{
			"state count",
			func(data []byte) { binary.LittleEndian.PutUint32(data[4:], 65) },
			"forest with 65 states",
		},
		{
			"duplicate phone id",
			func(data []byte) { binary.LittleEndian.PutUint32(data[28:], 1) },
			"duplicate label",
		},
		{
			"zeroed index entry",
			func(data []byte) {
				for i := 12; i < 20; i++ {
					data[i] = 0
				}
			},
			"cannot be found",
		},
		{
			"index length",
			func(data []byte) { binary.LittleEndian.PutUint32(data[16:], 56) },
			"tree occupies 52 bytes, index says 56",
		},
		{
			"leaf padding",
			func(data []byte) { data[78] = 0x5A },
			"carries leaf padding 0x5a",
		},
		{
			"dangling child position",
			func(data []byte) { data[56] = 13 },
			"child position 13 resolves to no node",
		},
		{
			"unknown node type",
			func(data []byte) { data[76] = 2 },
			"node 2 has type 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, data := writeTestForest(t)
			tt.corrupt(data)
			r := newTestReader(t, data)
			_, err := ReadForestSection(r, []int{0}, forestQuestions(t), nil)
			if !errors.Is(err, ErrInvalidData) {
				t.Fatalf("ReadForestSection = %v, want ErrInvalidData", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestWriteForestSectionResolvesNames(t *testing.T) {
	f := testForest(t)
	named := refTree("a", 0)
	named.Nodes[2] = hts.Leaf("a_C")
	named.Nodes[3] = hts.Leaf("a_A")
	named.Nodes[4] = hts.Leaf("a_B")
	f.Trees[0] = named

	offsets := map[string][]uint32{
		"a_A": {0},
		"a_B": {8},
		"a_C": {16},
	}
	resolve := func(name string) ([]uint32, error) {
		refs, ok := offsets[name]
		if !ok {
			return nil, mismatchf("leaf", "entry %q is not defined in any stream", name)
		}
		return refs, nil
	}

	w, mf := newTestWriter(t)
	if _, err := WriteForestSection(w, f, resolve); err != nil {
		t.Fatalf("WriteForestSection error: %v", err)
	}

	r := newTestReader(t, mf.Bytes())
	got, err := ReadForestSection(r, []int{0}, f.Questions, f.Phones)
	if err != nil {
		t.Fatalf("ReadForestSection error: %v", err)
	}
	leaf := got.Trees[0].Nodes[2]
	if len(leaf.LeafRefs) != 1 || leaf.LeafRefs[0] != 16 {
		t.Errorf("resolved leaf refs = %v, want [16]", leaf.LeafRefs)
	}
}

func TestWriteForestSectionLeafErrors(t *testing.T) {
	f := testForest(t)
	named := refTree("a", 0)
	named.Nodes[3] = hts.Leaf("a_A")
	f.Trees[0] = named

	w, _ := newTestWriter(t)
	_, err := WriteForestSection(w, f, nil)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("WriteForestSection without resolver = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), `leaf "a_A" has no resolved data`) {
		t.Errorf("error %q does not name the unresolved leaf", err)
	}

	w, _ = newTestWriter(t)
	_, err = WriteForestSection(w, f, func(name string) ([]uint32, error) {
		return nil, mismatchf("leaf", "entry %q is not defined in any stream", name)
	})
	if !errors.Is(err, ErrMismatch) {
		t.Errorf("resolver error not propagated: %v", err)
	}
}

func TestWriteForestSectionQuestionIndexOverflow(t *testing.T) {
	qs := hts.NewQuestionSet()
	for i := 0; i <= 70000; i++ {
		if _, err := qs.Add(hts.Question{
			FeatureName: "PhoneID",
			Oper:        hts.OperEqual,
			CodeValues:  []int32{int32(i)},
		}); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	phones, err := hts.NewPhoneSet([]hts.Phone{{Label: "a", ID: 1}})
	if err != nil {
		t.Fatalf("NewPhoneSet error: %v", err)
	}
	f := &hts.Forest{
		Phones:        phones,
		StateCount:    1,
		StreamIndexes: []int{0},
		Questions:     qs,
		Trees: []hts.Tree{{
			Phone: "a",
			Nodes: []hts.Node{hts.Branch(70000, 1, 2), resolvedLeaf(0), resolvedLeaf(8)},
		}},
	}
	w, _ := newTestWriter(t)
	_, err = WriteForestSection(w, f, nil)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("WriteForestSection = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), "question index 70000 does not fit the wire") {
		t.Errorf("error %q does not name the oversized index", err)
	}
}
