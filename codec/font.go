package codec

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/huffman"
)

// headerSize is the fixed voice font header size.
const headerSize = 88

// maxModels bounds the model count a font may declare.
const maxModels = 16

// Options configure a font write or read.
type Options struct {
	// Cipher obfuscates the string pool. nil means plaintext.
	Cipher Cipher
	// Compress entropy-codes stream payloads through a Huffman
	// codebook built over all of them. Read ignores it; the codebook
	// section announces itself.
	Compress bool
	// Phones optionally names wire phone ids on read. Unknown ids get
	// synthesized labels.
	Phones *hts.PhoneSet
}

func (o Options) cipher() Cipher {
	if o.Cipher == nil {
		return NopCipher{}
	}
	return o.Cipher
}

// WriteResult reports a completed font write.
type WriteResult struct {
	Bytes    int64
	Warnings []string
}

// packTag packs a 4-character file tag little-endian.
func packTag(tag string) (uint32, error) {
	if len(tag) != 4 {
		return 0, fmt.Errorf("%w: file tag %q", ErrInvalidData, tag)
	}
	return uint32(tag[0]) | uint32(tag[1])<<8 | uint32(tag[2])<<16 | uint32(tag[3])<<24, nil
}

// unpackTag reverses packTag.
func unpackTag(v uint32) string {
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// formatTagFor resolves and checks the header's format tag: a zero tag
// takes the file tag's default, anything else must equal it.
func formatTagFor(h *hts.Header) (uuid.UUID, error) {
	want, err := hts.FormatTagFor(h.FileTag)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if h.FormatTag == (uuid.UUID{}) {
		return want, nil
	}
	if h.FormatTag != want {
		return uuid.UUID{}, fmt.Errorf("%w: format tag %s is not the %q format tag",
			ErrInvalidData, h.FormatTag, h.FileTag)
	}
	return want, nil
}

// WriteFont serializes a validated font. Stream payloads are staged in
// memory first, so leaf names resolve before any forest bytes go out;
// the header and every location index are backpatched at the end.
func WriteFont(ws io.WriteSeeker, f *hts.Font, opts Options) (*WriteResult, error) {
	if f == nil {
		return nil, errors.New("write font: nil font")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	w, err := NewWriter(ws)
	if err != nil {
		return nil, err
	}
	if w.Pos() != 0 {
		return nil, errors.New("write font: stream must begin at offset 0")
	}
	formatTag, err := formatTagFor(&f.Header)
	if err != nil {
		return nil, err
	}

	pool := hts.NewStringPool()
	encoders := make([]*modelEncoder, len(f.Models))
	var warnings []string
	for i, m := range f.Models {
		if encoders[i], err = newModelEncoder(m, f.Header.FixedPoint, pool); err != nil {
			return nil, err
		}
		warnings = append(warnings, encoders[i].warnings...)
	}

	var book *huffman.Codebook
	if opts.Compress {
		var freq [256]uint64
		for _, enc := range encoders {
			for _, raw := range enc.rawPayloads() {
				for _, b := range raw {
					freq[b]++
				}
			}
		}
		if book, err = huffman.New(&freq); err != nil {
			return nil, err
		}
	}

	if _, err := w.Reserve(headerSize); err != nil {
		return nil, err
	}

	qStart := w.Pos()
	if err := WriteQuestionSection(w, f.GlobalQuestions(), pool); err != nil {
		return nil, err
	}
	qLoc := hts.Location{Offset: uint32(qStart), Length: uint32(w.Pos() - qStart)}

	msStart := w.Pos()
	if err := w.U32(uint32(len(f.Models))); err != nil {
		return nil, err
	}
	indexMarks := make([]int64, len(f.Models))
	for i := range f.Models {
		if indexMarks[i], err = w.Reserve(8); err != nil {
			return nil, err
		}
	}
	var payloadEnc Encoder
	if book != nil {
		payloadEnc = book
	}
	for i, m := range f.Models {
		enc := encoders[i]
		mStart := w.Pos()
		forestMark, streamMark, err := writeModelHeader(w, m, enc.facts)
		if err != nil {
			return nil, err
		}
		forestLoc, err := WriteForestSection(w, m.Forest, enc.resolve)
		if err != nil {
			return nil, err
		}
		streamLoc, err := enc.writeTo(w, payloadEnc)
		if err != nil {
			return nil, err
		}
		err = w.Patch(forestMark, func() error {
			return w.Location(forestLoc.Offset, forestLoc.Length)
		})
		if err != nil {
			return nil, err
		}
		err = w.Patch(streamMark, func() error {
			return w.Location(streamLoc.Offset, streamLoc.Length)
		})
		if err != nil {
			return nil, err
		}
		mLen := w.Pos() - mStart
		err = w.Patch(indexMarks[i], func() error {
			return w.Location(uint32(mStart), uint32(mLen))
		})
		if err != nil {
			return nil, err
		}
	}
	msLoc := hts.Location{Offset: uint32(msStart), Length: uint32(w.Pos() - msStart)}

	spStart := w.Pos()
	if err := WriteStringPoolSection(w, pool, opts.cipher()); err != nil {
		return nil, err
	}
	spLoc := hts.Location{Offset: uint32(spStart), Length: uint32(w.Pos() - spStart)}

	var cbLoc hts.Location
	if book != nil {
		cbStart := w.Pos()
		if err := writeCodebook(w, book); err != nil {
			return nil, err
		}
		cbLoc = hts.Location{Offset: uint32(cbStart), Length: uint32(w.Pos() - cbStart)}
	}

	total := w.Pos()
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: font of %d bytes", ErrInvalidData, total)
	}
	err = w.Patch(0, func() error {
		return writeHeader(w, &f.Header, formatTag, uint32(total), qLoc, msLoc, spLoc, cbLoc)
	})
	if err != nil {
		return nil, err
	}
	return &WriteResult{Bytes: total, Warnings: warnings}, nil
}

// writeHeader emits the fixed header with all locations resolved.
func writeHeader(w *Writer, h *hts.Header, formatTag uuid.UUID, dataSize uint32, q, ms, sp, cb hts.Location) error {
	tag, err := packTag(h.FileTag)
	if err != nil {
		return err
	}
	if err := w.U32(tag); err != nil {
		return err
	}
	if err := w.Bytes(formatTag[:]); err != nil {
		return err
	}
	if err := w.U32(dataSize); err != nil {
		return err
	}
	version := h.Version
	if version == 0 {
		version = hts.CurrentVersion
	}
	if version != hts.CurrentVersion {
		return fmt.Errorf("%w: font version %#06x", ErrNotSupported, version)
	}
	if err := w.U32(version); err != nil {
		return err
	}
	if err := w.U32(h.Build); err != nil {
		return err
	}
	if err := w.U16(h.LangID); err != nil {
		return err
	}
	shortPause := uint16(0)
	if h.ShortPause {
		shortPause = 1
	}
	if err := w.U16(shortPause); err != nil {
		return err
	}
	if err := w.U32(flag32(h.FixedPoint)); err != nil {
		return err
	}
	if err := w.U32(h.SamplesPerSecond); err != nil {
		return err
	}
	if err := w.U32(h.BitsPerSample); err != nil {
		return err
	}
	if err := w.U32(h.SamplePerFrame); err != nil {
		return err
	}
	for _, loc := range [4]hts.Location{q, ms, sp, cb} {
		if err := w.Location(loc.Offset, loc.Length); err != nil {
			return err
		}
	}
	return w.U32(h.ReservedSize)
}

// writeCodebook writes the Huffman codebook as its canonical lengths.
func writeCodebook(w *Writer, book *huffman.Codebook) error {
	lengths := book.Lengths()
	if err := w.U32(uint32(len(lengths))); err != nil {
		return err
	}
	if err := w.Bytes(lengths[:]); err != nil {
		return err
	}
	if err := w.Pad4(); err != nil {
		return err
	}
	return w.AssertAligned("codebook section")
}

// readCodebook rebuilds the codebook from its canonical lengths.
func readCodebook(r *Reader) (*huffman.Codebook, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	if count != 256 {
		return nil, fmt.Errorf("%w: codebook over %d symbols", ErrInvalidData, count)
	}
	var lengths [256]uint8
	if err := r.Bytes(lengths[:]); err != nil {
		return nil, err
	}
	book, err := huffman.FromLengths(&lengths)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return book, nil
}

// checkSection bounds a header location against the file size.
func checkSection(name string, loc hts.Location, fileSize int64) error {
	if loc.IsZero() {
		return fmt.Errorf("%w: %s section never resolved", ErrInvalidData, name)
	}
	if end := int64(loc.Offset) + int64(loc.Length); end > fileSize {
		return fmt.Errorf("%w: %s section ends at %d, file is %d bytes", ErrInvalidData, name, end, fileSize)
	}
	return nil
}

// readHeader reads and sanity-checks the fixed header.
func readHeader(r *Reader) (*hts.Header, error) {
	tagWord, err := r.U32()
	if err != nil {
		return nil, err
	}
	h := &hts.Header{FileTag: unpackTag(tagWord)}
	if h.FileTag != hts.TagAPM && h.FileTag != hts.TagATM {
		return nil, fmt.Errorf("%w: unknown file tag %q", ErrInvalidData, h.FileTag)
	}
	var ft [16]byte
	if err := r.Bytes(ft[:]); err != nil {
		return nil, err
	}
	h.FormatTag = uuid.UUID(ft)
	if want, _ := hts.FormatTagFor(h.FileTag); h.FormatTag != want {
		return nil, fmt.Errorf("%w: format tag %s is not the %q format tag",
			ErrInvalidData, h.FormatTag, h.FileTag)
	}
	if h.DataSize, err = r.U32(); err != nil {
		return nil, err
	}
	if h.Version, err = r.U32(); err != nil {
		return nil, err
	}
	if h.Version != hts.CurrentVersion {
		return nil, fmt.Errorf("%w: font version %#06x", ErrNotSupported, h.Version)
	}
	if h.Build, err = r.U32(); err != nil {
		return nil, err
	}
	if h.LangID, err = r.U16(); err != nil {
		return nil, err
	}
	shortPause, err := r.U16()
	if err != nil {
		return nil, err
	}
	if shortPause > 1 {
		return nil, fmt.Errorf("%w: short pause flag %d", ErrInvalidData, shortPause)
	}
	h.ShortPause = shortPause == 1
	fixedPoint, err := r.U32()
	if err != nil {
		return nil, err
	}
	if fixedPoint > 1 {
		return nil, fmt.Errorf("%w: fixed point flag %d", ErrInvalidData, fixedPoint)
	}
	h.FixedPoint = fixedPoint == 1
	if h.SamplesPerSecond, err = r.U32(); err != nil {
		return nil, err
	}
	if h.BitsPerSample, err = r.U32(); err != nil {
		return nil, err
	}
	if h.SamplePerFrame, err = r.U32(); err != nil {
		return nil, err
	}
	locs := [4]*hts.Location{&h.Question, &h.ModelSet, &h.StringPool, &h.Codebook}
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
		return nil, fmt.Errorf("%w: header occupies %d bytes", ErrInvalidData, r.Pos())
	}
	return h, nil
}

// ReadFont deserializes a font: header, string pool, codebook,
// question section, then every model; every leaf reference is checked
// against its stream's record geometry and the reassembled font is
// validated before return.
func ReadFont(rs io.ReadSeeker, opts Options) (*hts.Font, error) {
	r, err := NewReader(rs)
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
		return nil, fmt.Errorf("%w: font is %d bytes, header says %d", ErrInvalidData, size, h.DataSize)
	}
	for _, s := range [3]struct {
		name string
		loc  hts.Location
	}{
		{"question", h.Question},
		{"model set", h.ModelSet},
		{"string pool", h.StringPool},
	} {
		if err := checkSection(s.name, s.loc, size); err != nil {
			return nil, err
		}
	}

	if err := r.SeekTo(int64(h.StringPool.Offset)); err != nil {
		return nil, err
	}
	pool, err := ReadStringPoolSection(r, opts.cipher())
	if err != nil {
		return nil, err
	}

	var payloadDec Decoder
	if !h.Codebook.IsZero() {
		if err := checkSection("codebook", h.Codebook, size); err != nil {
			return nil, err
		}
		if err := r.SeekTo(int64(h.Codebook.Offset)); err != nil {
			return nil, err
		}
		book, err := readCodebook(r)
		if err != nil {
			return nil, err
		}
		payloadDec = book
	}

	if err := r.SeekTo(int64(h.Question.Offset)); err != nil {
		return nil, err
	}
	qs, err := ReadQuestionSection(r, pool)
	if err != nil {
		return nil, err
	}
	if consumed := r.Pos() - int64(h.Question.Offset); consumed != int64(h.Question.Length) {
		return nil, fmt.Errorf("%w: question section occupies %d bytes, header says %d",
			ErrInvalidData, consumed, h.Question.Length)
	}

	if err := r.SeekTo(int64(h.ModelSet.Offset)); err != nil {
		return nil, err
	}
	modelCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if modelCount == 0 || modelCount > maxModels {
		return nil, fmt.Errorf("%w: %d models", ErrInvalidData, modelCount)
	}
	modelLocs := make([]hts.Location, modelCount)
	for i := range modelLocs {
		off, length, err := r.Location()
		if err != nil {
			return nil, err
		}
		modelLocs[i] = hts.Location{Offset: off, Length: length}
		if err := checkSection("model", modelLocs[i], size); err != nil {
			return nil, err
		}
	}
	models := make([]*hts.Model, modelCount)
	for i, loc := range modelLocs {
		if err := r.SeekTo(int64(loc.Offset)); err != nil {
			return nil, err
		}
		m, err := readModel(r, h, payloadDec, pool, qs, opts.Phones)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		models[i] = m
	}

	font := &hts.Font{Header: *h, Questions: qs, Models: models, Pool: pool}
	if err := font.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return font, nil
}

// readModel reads one model record: header, forest, stream data, then
// the leaf-reference geometry check.
func readModel(r *Reader, h *hts.Header, dec Decoder, pool *hts.StringPool, qs *hts.QuestionSet, phones *hts.PhoneSet) (*hts.Model, error) {
	meta, err := readModelHeader(r)
	if err != nil {
		return nil, err
	}
	streamIndexes := make([]int, len(meta.streams))
	for i := range meta.streams {
		streamIndexes[i] = meta.streams[i].index
	}
	if err := r.SeekTo(int64(meta.forestLoc.Offset)); err != nil {
		return nil, err
	}
	forest, err := ReadForestSection(r, streamIndexes, qs, phones)
	if err != nil {
		return nil, err
	}
	if err := r.SeekTo(int64(meta.streamLoc.Offset)); err != nil {
		return nil, err
	}
	data, err := readStreamData(r, meta, h.FixedPoint, dec, pool)
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
			for j, off := range n.LeafRefs {
				if err := data.checkLeafRef(j, off); err != nil {
					return nil, fmt.Errorf("tree %s[%d] node %d: %w", t.Phone, t.State, ni, err)
				}
			}
		}
	}
	m := &hts.Model{
		Type:       meta.modelType,
		Forest:     forest,
		Streams:    data.streams,
		Windows:    meta.windows,
		Gaussian:   meta.gaussianConfig(),
		Xform:      meta.xform,
		Transforms: data.transforms,
		F0Ext:      meta.f0Ext,
	}
	return m, nil
}
