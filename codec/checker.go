package codec

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ieee0824/voicefont-go/hts"
)

// CheckOptions configure a font comparison.
type CheckOptions struct {
	// CompareData extends the structural comparison to every Gaussian
	// parameter and transform coefficient, bit for bit. Leave it off
	// when one side holds pre-quantization values.
	CompareData bool
}

// f32eq compares by bit pattern, treating any two NaNs as equal.
func f32eq(a, b float32) bool {
	if math.Float32bits(a) == math.Float32bits(b) {
		return true
	}
	return math.IsNaN(float64(a)) && math.IsNaN(float64(b))
}

// CompareFonts checks two fonts for equivalence: headers, question
// sets, forest structure, stream geometry and transform layouts always;
// parameter values when opts.CompareData is set. Fields the writer
// derives (section locations, data size, undeclared parameter widths,
// display labels) are exempt. The first difference is reported as a
// MismatchError.
func CompareFonts(a, b *hts.Font, opts CheckOptions) error {
	if a == nil || b == nil {
		return fmt.Errorf("%w: nil font", ErrInvalidData)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("first font: %w", err)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("second font: %w", err)
	}
	if err := compareHeaders(&a.Header, &b.Header); err != nil {
		return err
	}
	if err := compareQuestions(a.GlobalQuestions(), b.GlobalQuestions()); err != nil {
		return err
	}
	if len(a.Models) != len(b.Models) {
		return mismatchf("model count", "%d became %d", len(a.Models), len(b.Models))
	}
	for i := range a.Models {
		if err := compareModels(a.Models[i], b.Models[i], opts); err != nil {
			return err
		}
	}
	return nil
}

func compareHeaders(a, b *hts.Header) error {
	if a.FileTag != b.FileTag {
		return mismatchf("file tag", "%q became %q", a.FileTag, b.FileTag)
	}
	effectiveVersion := func(v uint32) uint32 {
		if v == 0 {
			return hts.CurrentVersion
		}
		return v
	}
	if av, bv := effectiveVersion(a.Version), effectiveVersion(b.Version); av != bv {
		return mismatchf("version", "%#06x became %#06x", av, bv)
	}
	if a.Build != b.Build {
		return mismatchf("build", "%d became %d", a.Build, b.Build)
	}
	if a.LangID != b.LangID {
		return mismatchf("language id", "%d became %d", a.LangID, b.LangID)
	}
	if a.ShortPause != b.ShortPause {
		return mismatchf("short pause flag", "%t became %t", a.ShortPause, b.ShortPause)
	}
	if a.FixedPoint != b.FixedPoint {
		return mismatchf("fixed point flag", "%t became %t", a.FixedPoint, b.FixedPoint)
	}
	if a.SamplesPerSecond != b.SamplesPerSecond {
		return mismatchf("sample rate", "%d became %d", a.SamplesPerSecond, b.SamplesPerSecond)
	}
	if a.BitsPerSample != b.BitsPerSample {
		return mismatchf("sample width", "%d became %d", a.BitsPerSample, b.BitsPerSample)
	}
	if a.SamplePerFrame != b.SamplePerFrame {
		return mismatchf("frame size", "%d became %d", a.SamplePerFrame, b.SamplePerFrame)
	}
	if a.ReservedSize != b.ReservedSize {
		return mismatchf("reserved size", "%d became %d", a.ReservedSize, b.ReservedSize)
	}
	return nil
}

// compareQuestions matches the sets index by index: trees reference
// questions by position, so order is part of the identity.
func compareQuestions(a, b *hts.QuestionSet) error {
	if a.Len() != b.Len() {
		return mismatchf("question count", "%d became %d", a.Len(), b.Len())
	}
	if a.HasNames != b.HasNames {
		return mismatchf("question name flag", "%t became %t", a.HasNames, b.HasNames)
	}
	for i := 0; i < a.Len(); i++ {
		aq, bq := a.At(i), b.At(i)
		if aq.FeatureName != bq.FeatureName {
			return mismatchAt("questions", i, "feature %q became %q", aq.FeatureName, bq.FeatureName)
		}
		if aq.Oper != bq.Oper {
			return mismatchAt("questions", i, "operator %s became %s", aq.Oper, bq.Oper)
		}
		if len(aq.CodeValues) != len(bq.CodeValues) {
			return mismatchAt("questions", i, "%d code values became %d", len(aq.CodeValues), len(bq.CodeValues))
		}
		for v := range aq.CodeValues {
			if aq.CodeValues[v] != bq.CodeValues[v] {
				return mismatchAt("questions", i, "code value %d became %d", aq.CodeValues[v], bq.CodeValues[v])
			}
		}
		if a.HasNames && aq.Name != bq.Name {
			return mismatchAt("questions", i, "name %q became %q", aq.Name, bq.Name)
		}
	}
	return nil
}

func compareModels(a, b *hts.Model, opts CheckOptions) error {
	if a.Type != b.Type {
		return mismatchf("model type", "%s became %s", a.Type, b.Type)
	}
	field := func(name string) string { return fmt.Sprintf("%s model %s", a.Type, name) }
	// Transform models carry fixed facts on the wire, so their source
	// config is normalized by a round trip and not compared.
	if len(a.Transforms) == 0 {
		if a.Gaussian.Dist != b.Gaussian.Dist {
			return mismatchf(field("distribution"), "%s became %s", a.Gaussian.Dist, b.Gaussian.Dist)
		}
		if a.Gaussian.Mixtures != b.Gaussian.Mixtures {
			return mismatchf(field("mixtures"), "%d became %d", a.Gaussian.Mixtures, b.Gaussian.Mixtures)
		}
		if a.Gaussian.NoQuantize != b.Gaussian.NoQuantize {
			return mismatchf(field("quantization bypass"), "%t became %t", a.Gaussian.NoQuantize, b.Gaussian.NoQuantize)
		}
		// Widths are writer-derived; a freshly built font leaves them zero.
		if a.Gaussian.MeanBits != 0 && b.Gaussian.MeanBits != 0 && a.Gaussian.MeanBits != b.Gaussian.MeanBits {
			return mismatchf(field("mean width"), "%d bits became %d", a.Gaussian.MeanBits, b.Gaussian.MeanBits)
		}
		if a.Gaussian.VarBits != 0 && b.Gaussian.VarBits != 0 && a.Gaussian.VarBits != b.Gaussian.VarBits {
			return mismatchf(field("variance width"), "%d bits became %d", a.Gaussian.VarBits, b.Gaussian.VarBits)
		}
	}
	if err := compareForests(a.Forest, b.Forest, field("forest")); err != nil {
		return err
	}
	if err := compareWindows(a.Windows, b.Windows, field("windows")); err != nil {
		return err
	}
	if err := compareXformConfigs(a.Xform, b.Xform, field("transform config")); err != nil {
		return err
	}
	if err := compareTransforms(a.Transforms, b.Transforms, field("transforms"), opts); err != nil {
		return err
	}
	if (a.F0Ext == nil) != (b.F0Ext == nil) {
		return mismatchf(field("f0 extension"), "%t became %t", a.F0Ext != nil, b.F0Ext != nil)
	}
	if a.F0Ext != nil {
		if !f32eq(a.F0Ext.PitchShift, b.F0Ext.PitchShift) {
			return mismatchf(field("pitch shift"), "%v became %v", a.F0Ext.PitchShift, b.F0Ext.PitchShift)
		}
		if !f32eq(a.F0Ext.PitchRange, b.F0Ext.PitchRange) {
			return mismatchf(field("pitch range"), "%v became %v", a.F0Ext.PitchRange, b.F0Ext.PitchRange)
		}
	}
	if len(a.Streams) != len(b.Streams) {
		return mismatchf(field("stream count"), "%d became %d", len(a.Streams), len(b.Streams))
	}
	for i := range a.Streams {
		if err := compareStreams(&a.Streams[i], &b.Streams[i], field(fmt.Sprintf("stream %d", a.Streams[i].Index)), opts); err != nil {
			return err
		}
	}
	return nil
}

func compareForests(a, b *hts.Forest, field string) error {
	if a.Phones.Len() != b.Phones.Len() {
		return mismatchf(field, "%d phones became %d", a.Phones.Len(), b.Phones.Len())
	}
	if a.StateCount != b.StateCount {
		return mismatchf(field, "%d states became %d", a.StateCount, b.StateCount)
	}
	if len(a.StreamIndexes) != len(b.StreamIndexes) {
		return mismatchf(field, "%d stream slots became %d", len(a.StreamIndexes), len(b.StreamIndexes))
	}
	for i := range a.StreamIndexes {
		if a.StreamIndexes[i] != b.StreamIndexes[i] {
			return mismatchAt(field+" stream slots", i, "index %d became %d", a.StreamIndexes[i], b.StreamIndexes[i])
		}
	}
	for p := 0; p < a.Phones.Len(); p++ {
		// Labels are display-only; ids are the wire identity.
		if aid, bid := a.Phones.At(p).ID, b.Phones.At(p).ID; aid != bid {
			return mismatchAt(field+" phones", p, "id %d became %d", aid, bid)
		}
		for s := 0; s < a.StateCount; s++ {
			name := fmt.Sprintf("%s tree %s", field, hts.TreeName(a.Phones.At(p), s))
			if err := compareTrees(a.TreeFor(p, s), b.TreeFor(p, s), name); err != nil {
				return err
			}
		}
	}
	return nil
}

// compareTrees walks both trees in lockstep from the root, so the
// comparison holds regardless of how either arena is ordered.
func compareTrees(a, b *hts.Tree, field string) error {
	if len(a.Nodes) != len(b.Nodes) {
		return mismatchf(field, "%d nodes became %d", len(a.Nodes), len(b.Nodes))
	}
	var walk func(ai, bi hts.NodeID) error
	walk = func(ai, bi hts.NodeID) error {
		an, bn := &a.Nodes[ai], &b.Nodes[bi]
		if an.IsLeaf() != bn.IsLeaf() {
			return mismatchAt(field, int(ai), "leaf flag %t became %t", an.IsLeaf(), bn.IsLeaf())
		}
		if !an.IsLeaf() {
			if an.Question != bn.Question {
				return mismatchAt(field, int(ai), "question %d became %d", an.Question, bn.Question)
			}
			if err := walk(an.Left, bn.Left); err != nil {
				return err
			}
			return walk(an.Right, bn.Right)
		}
		switch {
		case len(an.LeafRefs) > 0 && len(bn.LeafRefs) > 0:
			if len(an.LeafRefs) != len(bn.LeafRefs) {
				return mismatchAt(field, int(ai), "%d data refs became %d", len(an.LeafRefs), len(bn.LeafRefs))
			}
			for j := range an.LeafRefs {
				if an.LeafRefs[j] != bn.LeafRefs[j] {
					return mismatchAt(field, int(ai), "stream %d ref %d became %d", j, an.LeafRefs[j], bn.LeafRefs[j])
				}
			}
		case an.LeafName != "" && bn.LeafName != "":
			if an.LeafName != bn.LeafName {
				return mismatchAt(field, int(ai), "entry %q became %q", an.LeafName, bn.LeafName)
			}
		}
		return nil
	}
	return walk(0, 0)
}

// compareWindows treats a nil set and the placeholder set as equal:
// both serialize to the same zero marker.
func compareWindows(a, b *hts.WindowSet, field string) error {
	placeholder := func(w *hts.WindowSet) bool { return w == nil || w.IsPlaceholder() }
	if placeholder(a) != placeholder(b) {
		return mismatchf(field, "placeholder %t became %t", placeholder(a), placeholder(b))
	}
	if placeholder(a) {
		return nil
	}
	if len(a.Rows) != len(b.Rows) {
		return mismatchf(field, "%d rows became %d", len(a.Rows), len(b.Rows))
	}
	for i := range a.Rows {
		if len(a.Rows[i]) != len(b.Rows[i]) {
			return mismatchAt(field, i, "%d coefficients became %d", len(a.Rows[i]), len(b.Rows[i]))
		}
		for j := range a.Rows[i] {
			if !f32eq(a.Rows[i][j], b.Rows[i][j]) {
				return mismatchAt(field, i, "coefficient %d: %v became %v", j, a.Rows[i][j], b.Rows[i][j])
			}
		}
	}
	return nil
}

func compareXformConfigs(a, b *hts.LinXformConfig, field string) error {
	if (a == nil) != (b == nil) {
		return mismatchf(field, "%t became %t", a != nil, b != nil)
	}
	if a == nil {
		return nil
	}
	if a.VecSize != b.VecSize {
		return mismatchf(field, "vector size %d became %d", a.VecSize, b.VecSize)
	}
	if a.BandWidth != b.BandWidth {
		return mismatchf(field, "band width %d became %d", a.BandWidth, b.BandWidth)
	}
	if a.HasBias != b.HasBias {
		return mismatchf(field, "bias flag %t became %t", a.HasBias, b.HasBias)
	}
	if a.HasVarBias != b.HasVarBias {
		return mismatchf(field, "variance bias flag %t became %t", a.HasVarBias, b.HasVarBias)
	}
	if len(a.BlockSizes) != len(b.BlockSizes) {
		return mismatchf(field, "%d blocks became %d", len(a.BlockSizes), len(b.BlockSizes))
	}
	for i := range a.BlockSizes {
		if a.BlockSizes[i] != b.BlockSizes[i] {
			return mismatchAt(field+" blocks", i, "size %d became %d", a.BlockSizes[i], b.BlockSizes[i])
		}
	}
	return nil
}

func compareTransforms(a, b []hts.NamedXform, field string, opts CheckOptions) error {
	if len(a) != len(b) {
		return mismatchf(field, "%d transforms became %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return mismatchAt(field, i, "%q became %q", a[i].Name, b[i].Name)
		}
		ax, bx := &a[i].Xform, &b[i].Xform
		if ax.VecSize != bx.VecSize {
			return mismatchAt(field, i, "vector size %d became %d", ax.VecSize, bx.VecSize)
		}
		if len(ax.Blocks) != len(bx.Blocks) {
			return mismatchAt(field, i, "%d blocks became %d", len(ax.Blocks), len(bx.Blocks))
		}
		if !opts.CompareData {
			continue
		}
		if err := compareVector(ax.Bias, bx.Bias, fmt.Sprintf("%s[%d] bias", field, i)); err != nil {
			return err
		}
		if err := compareVector(ax.VarBias, bx.VarBias, fmt.Sprintf("%s[%d] variance bias", field, i)); err != nil {
			return err
		}
		for bi := range ax.Blocks {
			if err := compareVector(ax.Blocks[bi], bx.Blocks[bi], fmt.Sprintf("%s[%d] block %d", field, i, bi)); err != nil {
				return err
			}
		}
	}
	return nil
}

func compareStreams(a, b *hts.Stream, field string, opts CheckOptions) error {
	if a.Index != b.Index {
		return mismatchf(field, "index %d became %d", a.Index, b.Index)
	}
	if a.VectorSize != b.VectorSize {
		return mismatchf(field, "vector size %d became %d", a.VectorSize, b.VectorSize)
	}
	if a.StaticVectorSize != b.StaticVectorSize {
		return mismatchf(field, "static size %d became %d", a.StaticVectorSize, b.StaticVectorSize)
	}
	if len(a.Entries) != len(b.Entries) {
		return mismatchf(field, "%d entries became %d", len(a.Entries), len(b.Entries))
	}
	for i := range a.Entries {
		ae, be := &a.Entries[i], &b.Entries[i]
		if ae.Name != "" && be.Name != "" && ae.Name != be.Name {
			return mismatchAt(field+" entries", i, "%q became %q", ae.Name, be.Name)
		}
		if !opts.CompareData {
			continue
		}
		if len(ae.Gaussians) != len(be.Gaussians) {
			return mismatchAt(field+" entries", i, "%d mixtures became %d", len(ae.Gaussians), len(be.Gaussians))
		}
		for m := range ae.Gaussians {
			ag, bg := &ae.Gaussians[m], &be.Gaussians[m]
			id := fmt.Sprintf("%s entry %d mixture %d", field, i, m)
			if !f32eq(ag.Weight, bg.Weight) {
				return mismatchf(id, "weight %v became %v", ag.Weight, bg.Weight)
			}
			if err := compareVector(ag.Mean, bg.Mean, id+" mean"); err != nil {
				return err
			}
			if err := compareVector(ag.Variance, bg.Variance, id+" variance"); err != nil {
				return err
			}
		}
	}
	return nil
}

func compareVector(a, b []float32, field string) error {
	if len(a) != len(b) {
		return mismatchf(field, "dim %d became %d", len(a), len(b))
	}
	for i := range a {
		if !f32eq(a[i], b[i]) {
			return mismatchAt(field, i, "%v became %v", a[i], b[i])
		}
	}
	return nil
}

// ValidateCrossSerialization writes the font, reads it back, writes the
// read-back font and reads that again. The two serializations must be
// byte-identical and the two read-back fonts must compare equal with
// data included. This is the self-check the compile path runs when
// asked to verify its own output.
func ValidateCrossSerialization(f *hts.Font, opts Options) error {
	first := NewMemFile()
	if _, err := WriteFont(first, f, opts); err != nil {
		return fmt.Errorf("first serialization: %w", err)
	}
	read1, err := ReadFont(first, opts)
	if err != nil {
		return fmt.Errorf("first deserialization: %w", err)
	}
	second := NewMemFile()
	if _, err := WriteFont(second, read1, opts); err != nil {
		return fmt.Errorf("second serialization: %w", err)
	}
	read2, err := ReadFont(second, opts)
	if err != nil {
		return fmt.Errorf("second deserialization: %w", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		i := firstDiff(first.Bytes(), second.Bytes())
		return mismatchAt("serialized font", i, "byte %#02x became %#02x after one round trip",
			byteAt(first.Bytes(), i), byteAt(second.Bytes(), i))
	}
	return CompareFonts(read1, read2, CheckOptions{CompareData: true})
}

func firstDiff(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func byteAt(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}
