package hts

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// File tags of the two font container kinds and the preselection
// sibling format, as 4-character strings packed little-endian on disk.
const (
	TagAPM = "APM " // acoustic parameter model
	TagATM = "ATM " // acoustic tree model
	TagPST = "PST " // preselection data
)

// Well-known format tags carried in the header after the file tag.
var (
	FormatTagAPM = uuid.MustParse("7d9a3c41-56be-4f0e-9ad2-8f61c3b0a917")
	FormatTagATM = uuid.MustParse("2f8e5b10-9c4d-4a77-b3e8-04d92a61cf58")
	FormatTagPST = uuid.MustParse("a45d7e92-1b30-4c86-8e5f-6790d24b3ac1")
)

// FormatTagFor returns the default format tag of a file tag.
func FormatTagFor(fileTag string) (uuid.UUID, error) {
	switch fileTag {
	case TagAPM:
		return FormatTagAPM, nil
	case TagATM:
		return FormatTagATM, nil
	case TagPST:
		return FormatTagPST, nil
	}
	return uuid.UUID{}, fmt.Errorf("unknown file tag %q", fileTag)
}

// CurrentVersion is the wire format version this module writes.
const CurrentVersion = 0x0104

// FixedPointStateCount is the only emitting-state count fixed-point
// runtimes load for the quantized stream models.
const FixedPointStateCount = 5

// Location addresses one section or record: byte offset plus length.
type Location struct {
	Offset uint32
	Length uint32
}

// IsZero reports whether the location was never resolved.
func (l Location) IsZero() bool { return l.Offset == 0 && l.Length == 0 }

// Header mirrors the on-disk voice font header. DataSize and the four
// section locations are derived while writing and populated on read.
type Header struct {
	FileTag          string // TagAPM or TagATM
	FormatTag        uuid.UUID
	Version          uint32
	Build            uint32
	LangID           uint16
	ShortPause       bool
	FixedPoint       bool
	SamplesPerSecond uint32
	BitsPerSample    uint32
	SamplePerFrame   uint32
	ReservedSize     uint32

	DataSize   uint32
	Question   Location
	ModelSet   Location
	StringPool Location
	Codebook   Location
}

// Font is one voice font: the header, the global question set shared by
// every model, the ordered models, and the string pool backing all name
// references.
type Font struct {
	Header    Header
	Questions *QuestionSet
	Models    []*Model
	Pool      *StringPool
}

// ModelByType returns the model of the given type, or nil.
func (f *Font) ModelByType(t ModelType) *Model {
	for _, m := range f.Models {
		if m.Type == t {
			return m
		}
	}
	return nil
}

// hasFixedCodec reports whether a model type gets a quantized layout in
// fixed-point fonts. Duration and gain models stay float32 even there.
func hasFixedCodec(t ModelType) bool {
	return t == ModelLSP || t == ModelF0 || t == ModelMBE
}

// Validate checks cross-model invariants before any bytes are written:
// model completeness, unique model types, no stream index merged into
// two models, the fixed-point state-count restriction, and agreement
// between every per-model question list and the global set.
func (f *Font) Validate() error {
	if f.Header.FileTag != TagAPM && f.Header.FileTag != TagATM {
		return fmt.Errorf("font: unknown file tag %q", f.Header.FileTag)
	}
	if len(f.Models) == 0 {
		return errors.New("font: no models")
	}
	isXformFont := f.Header.FileTag == TagATM
	if isXformFont && f.Header.FixedPoint {
		return errors.New("font: fixed-point transform fonts are not implemented")
	}
	seenType := make(map[ModelType]bool)
	seenStream := make(map[int]ModelType)
	for _, m := range f.Models {
		if m == nil {
			return errors.New("font: nil model")
		}
		if seenType[m.Type] {
			return fmt.Errorf("font: duplicate %s model", m.Type)
		}
		seenType[m.Type] = true
		if isXformFont && len(m.Transforms) == 0 {
			return fmt.Errorf("font: %s model carries no transforms in a transform font", m.Type)
		}
		if !isXformFont && len(m.Transforms) > 0 {
			return fmt.Errorf("font: %s model carries transforms in an acoustic font", m.Type)
		}
		if err := m.Validate(); err != nil {
			return err
		}
		for _, idx := range m.Forest.StreamIndexes {
			if prev, ok := seenStream[idx]; ok {
				return fmt.Errorf("font: stream %d merged into both %s and %s models", idx, prev, m.Type)
			}
			seenStream[idx] = m.Type
		}
		if f.Header.FixedPoint && hasFixedCodec(m.Type) &&
			m.Forest.StateCount != FixedPointStateCount {
			return fmt.Errorf("font: fixed point requires %d states, %s model has %d",
				FixedPointStateCount, m.Type, m.Forest.StateCount)
		}
		if m.Xform != nil && m.Xform.FixedPoint {
			return fmt.Errorf("font: fixed-point linear transforms are not implemented (%s model)", m.Type)
		}
	}
	return f.validateQuestions()
}

// validateQuestions asserts every per-model question set agrees with
// the global one. Agreement is asserted, never corrected.
func (f *Font) validateQuestions() error {
	global := f.Questions
	for _, m := range f.Models {
		qs := m.Forest.Questions
		if qs == nil {
			continue
		}
		if global == nil {
			global = qs
			continue
		}
		if qs == global {
			continue
		}
		if err := global.EqualSets(qs); err != nil {
			return fmt.Errorf("font: %s model question list disagrees with the global set: %v", m.Type, err)
		}
	}
	return nil
}

// GlobalQuestions returns the effective global question set: the stated
// one, or the shared per-model set when no global set was supplied.
// Validate must have passed for the result to be meaningful.
func (f *Font) GlobalQuestions() *QuestionSet {
	if f.Questions != nil {
		return f.Questions
	}
	for _, m := range f.Models {
		if m.Forest != nil && m.Forest.Questions != nil {
			return m.Forest.Questions
		}
	}
	return NewQuestionSet()
}
