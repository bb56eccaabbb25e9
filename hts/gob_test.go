package hts

import (
	"bytes"
	"testing"
)

func TestFontSaveLoad(t *testing.T) {
	f := testFont(t)

	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if loaded.Header.FileTag != TagAPM {
		t.Errorf("FileTag = %q, want %q", loaded.Header.FileTag, TagAPM)
	}
	if loaded.Header.FormatTag != FormatTagAPM {
		t.Errorf("FormatTag = %s, want %s", loaded.Header.FormatTag, FormatTagAPM)
	}
	if loaded.Header.LangID != 1041 {
		t.Errorf("LangID = %d, want 1041", loaded.Header.LangID)
	}
	if len(loaded.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(loaded.Models))
	}

	if err := loaded.Validate(); err != nil {
		t.Fatalf("loaded font Validate error: %v", err)
	}

	// Both forests must share the single restored question set.
	if loaded.Models[0].Forest.Questions != loaded.Models[1].Forest.Questions {
		t.Error("models do not share one question set after Load")
	}
	if loaded.Questions.Len() != f.Questions.Len() {
		t.Errorf("question count = %d, want %d", loaded.Questions.Len(), f.Questions.Len())
	}
	if !loaded.Questions.HasNames {
		t.Error("HasNames lost in the archive")
	}

	lsp := loaded.ModelByType(ModelLSP)
	if lsp == nil {
		t.Fatal("lsp model missing after Load")
	}
	if lsp.Forest.StateCount != 2 {
		t.Errorf("lsp StateCount = %d, want 2", lsp.Forest.StateCount)
	}
	if got := len(lsp.Forest.Trees); got != 4 {
		t.Errorf("lsp tree count = %d, want 4", got)
	}
	tr := lsp.Forest.TreeFor(1, 0)
	if tr == nil || tr.Phone != "sil" {
		t.Fatalf("TreeFor(1,0) = %+v, want sil tree", tr)
	}
	if len(tr.Nodes) != 5 {
		t.Errorf("tree nodes = %d, want 5", len(tr.Nodes))
	}
	if tr.Nodes[0].Question != 0 || tr.Nodes[0].Left != 1 || tr.Nodes[0].Right != 2 {
		t.Errorf("root node = %+v, want question 0 children 1,2", tr.Nodes[0])
	}

	entry := lsp.Streams[0].Entry("a_B")
	if entry == nil {
		t.Fatal("entry a_B missing after Load")
	}
	g := entry.Gaussians[0]
	if g.Weight != 1 || len(g.Mean) != 3 || g.Mean[1] != 1.5 || g.Variance[2] != 0.25 {
		t.Errorf("gaussian = %+v, want weight 1 mean[1]=1.5 var[2]=0.25", g)
	}

	dur := loaded.ModelByType(ModelDuration)
	if dur == nil {
		t.Fatal("duration model missing after Load")
	}
	if !dur.Windows.IsPlaceholder() {
		t.Error("duration placeholder windows lost")
	}
	if dur.Streams[0].Index != 4 {
		t.Errorf("duration stream index = %d, want 4", dur.Streams[0].Index)
	}
}

func TestFontSaveLoadExtensions(t *testing.T) {
	f := testFont(t)
	f.Models[0].Xform = &LinXformConfig{
		VecSize:    3,
		BandWidth:  1,
		HasBias:    true,
		BlockSizes: []int{3},
	}
	f.Models[0].Transforms = []NamedXform{{
		Name: "speaker0",
		Xform: LinXform{
			VecSize: 3,
			Bias:    []float32{0.1, 0.2, 0.3},
			Blocks:  [][]float32{{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		},
	}}

	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	lsp := loaded.ModelByType(ModelLSP)
	if lsp.Xform == nil {
		t.Fatal("transform config missing after Load")
	}
	if !lsp.Xform.HasBias || lsp.Xform.BandWidth != 1 {
		t.Errorf("transform config = %+v, want bias and band width 1", lsp.Xform)
	}
	if len(lsp.Transforms) != 1 || lsp.Transforms[0].Name != "speaker0" {
		t.Fatalf("transforms = %+v, want one named speaker0", lsp.Transforms)
	}
	x := lsp.Transforms[0].Xform
	if x.Bias[2] != 0.3 || x.Blocks[0][4] != 1 {
		t.Errorf("transform values lost: %+v", x)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte("not a gob archive"))); err == nil {
		t.Error("garbage input accepted")
	}
}
