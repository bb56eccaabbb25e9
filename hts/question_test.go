package hts

import (
	"strings"
	"testing"
)

func TestQuestionValidate(t *testing.T) {
	cases := []struct {
		name string
		q    Question
		ok   bool
	}{
		{"equal one value", Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3}}, true},
		{"equal two values", Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3, 4}}, false},
		{"belong many", Question{FeatureName: "PhoneID", Oper: OperBelong, CodeValues: []int32{1, 2, 5}}, true},
		{"less one threshold", Question{FeatureName: "SylCount", Oper: OperLess, CodeValues: []int32{4}}, true},
		{"less two thresholds", Question{FeatureName: "SylCount", Oper: OperLess, CodeValues: []int32{4, 5}}, false},
		{"empty values", Question{FeatureName: "SylCount", Oper: OperBelong, CodeValues: nil}, false},
		{"empty feature", Question{Oper: OperEqual, CodeValues: []int32{1}}, false},
		{"unknown operator", Question{FeatureName: "X", Oper: Oper(17), CodeValues: []int32{1}}, false},
	}
	for _, c := range cases {
		err := c.q.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: Validate error: %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s: Validate accepted an invalid question", c.name)
		}
	}
}

func TestQuestionRange(t *testing.T) {
	cases := []struct {
		oper   Oper
		v      int32
		lo, hi int32
	}{
		{OperLess, 4, 0, 3},
		{OperLessEqual, 4, 0, 4},
		{OperGreater, 4, 5, RangeUpperBound},
		{OperGreaterEqual, 4, 4, RangeUpperBound},
	}
	for _, c := range cases {
		q := Question{FeatureName: "SylCount", Oper: c.oper, CodeValues: []int32{c.v}}
		lo, hi, err := q.Range()
		if err != nil {
			t.Fatalf("%s %d: Range error: %v", c.oper, c.v, err)
		}
		if lo != c.lo || hi != c.hi {
			t.Errorf("%s %d: range [%d,%d], want [%d,%d]", c.oper, c.v, lo, hi, c.lo, c.hi)
		}
	}

	q := Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3}}
	if _, _, err := q.Range(); err == nil {
		t.Error("Range accepted operator ==")
	}
}

func TestQuestionValueSet(t *testing.T) {
	q := Question{FeatureName: "SylCount", Oper: OperBelong, CodeValues: []int32{2, 7}}
	vals, err := q.ValueSet(IntegerNamer{})
	if err != nil {
		t.Fatalf("ValueSet error: %v", err)
	}
	if strings.Join(vals, ",") != "2,7" {
		t.Errorf("ValueSet = %v, want [2 7]", vals)
	}

	// <= 2 expands to the full 0..2 range.
	q = Question{FeatureName: "SylCount", Oper: OperLessEqual, CodeValues: []int32{2}}
	vals, err = q.ValueSet(IntegerNamer{})
	if err != nil {
		t.Fatalf("ValueSet error: %v", err)
	}
	if strings.Join(vals, ",") != "0,1,2" {
		t.Errorf("ValueSet = %v, want [0 1 2]", vals)
	}

	// >= 998 runs to the range cap.
	q = Question{FeatureName: "SylCount", Oper: OperGreaterEqual, CodeValues: []int32{998}}
	vals, err = q.ValueSet(IntegerNamer{})
	if err != nil {
		t.Fatalf("ValueSet error: %v", err)
	}
	if strings.Join(vals, ",") != "998,999" {
		t.Errorf("ValueSet = %v, want [998 999]", vals)
	}
}

func TestQuestionSetDedup(t *testing.T) {
	qs := NewQuestionSet()

	i0, err := qs.Add(Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3}})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	i1, err := qs.Add(Question{FeatureName: "SylCount", Oper: OperLess, CodeValues: []int32{4}})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	// Structurally identical question, different name: same index.
	i2, err := qs.Add(Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3}, Name: "C-Phone_a"})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if i0 != 0 || i1 != 1 || i2 != 0 {
		t.Errorf("indexes = %d,%d,%d, want 0,1,0", i0, i1, i2)
	}
	if qs.Len() != 2 {
		t.Errorf("Len = %d, want 2", qs.Len())
	}

	feats := qs.Features()
	if len(feats) != 2 || feats[0] != "PhoneID" || feats[1] != "SylCount" {
		t.Errorf("Features = %v, want [PhoneID SylCount]", feats)
	}
	if fi, ok := qs.FeatureIndex("SylCount"); !ok || fi != 1 {
		t.Errorf("FeatureIndex(SylCount) = %d,%v, want 1,true", fi, ok)
	}
}

func TestQuestionSetHasNames(t *testing.T) {
	qs := NewQuestionSet()
	if _, err := qs.Add(Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{1}}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if qs.HasNames {
		t.Error("HasNames true before any named question")
	}
	if _, err := qs.Add(Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{2}, Name: "C-Phone_i"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if !qs.HasNames {
		t.Error("HasNames false after a named question")
	}
}

func TestQuestionSetEqualSets(t *testing.T) {
	a := NewQuestionSet()
	b := NewQuestionSet()
	q1 := Question{FeatureName: "PhoneID", Oper: OperEqual, CodeValues: []int32{3}}
	q2 := Question{FeatureName: "SylCount", Oper: OperLess, CodeValues: []int32{4}}

	for _, q := range []Question{q1, q2} {
		if _, err := a.Add(q); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	// Same questions, opposite order.
	for _, q := range []Question{q2, q1} {
		if _, err := b.Add(q); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	if err := a.EqualSets(b); err != nil {
		t.Errorf("EqualSets: %v", err)
	}

	if _, err := b.Add(Question{FeatureName: "SylCount", Oper: OperGreater, CodeValues: []int32{9}}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := a.EqualSets(b); err == nil {
		t.Error("EqualSets accepted sets of different size")
	}
	if err := b.ContainsAll(a); err != nil {
		t.Errorf("ContainsAll on the superset: %v", err)
	}
	if err := a.ContainsAll(b); err == nil {
		t.Error("ContainsAll accepted a missing question")
	}
}
