package codec

import (
	"bytes"
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// maxStreamBytes bounds one stream's raw payload.
const maxStreamBytes = 1 << 28

// Encoder compresses a raw stream payload as one unit. A nil Encoder
// writes payloads uncompressed; an Encoder whose output is not smaller
// than its input is bypassed for that payload.
type Encoder interface {
	Encode(raw []byte) ([]byte, error)
}

// Decoder reverses Encoder for payloads whose wire record carries a
// non-zero encoded length.
type Decoder interface {
	Decode(enc []byte, rawLen int) ([]byte, error)
}

// encodedStream is one staged stream payload.
type encodedStream struct {
	index      int
	entryCount int
	entrySize  int
	raw        []byte
}

// modelEncoder stages one model's stream payloads in memory, so every
// leaf name resolves to a raw-buffer offset before the forest section
// is written. Gaussian models stage quantized mixture records;
// transform models stage named transform records.
type modelEncoder struct {
	modelType hts.ModelType
	facts     headerFacts
	streams   []encodedStream
	offsets   map[string][]uint32
	warnings  []string
}

// newModelEncoder quantizes every stream entry of the model into
// scratch buffers and indexes the entry names.
func newModelEncoder(m *hts.Model, fixedPoint bool, pool *hts.StringPool) (*modelEncoder, error) {
	e := &modelEncoder{
		modelType: m.Type,
		offsets:   make(map[string][]uint32),
	}
	if len(m.Transforms) > 0 {
		if err := e.encodeTransforms(m, pool); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err := e.encodeGaussians(m, fixedPoint); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *modelEncoder) encodeGaussians(m *hts.Model, fixedPoint bool) error {
	e.facts.quantized = !m.Gaussian.NoQuantize
	e.streams = make([]encodedStream, len(m.Streams))
	for si := range m.Streams {
		s := &m.Streams[si]
		layout := streamLayout{
			dim:       s.VectorSize,
			staticDim: s.StaticVectorSize,
			mixtures:  m.Gaussian.Mixtures,
		}
		codec, err := selectGaussianCodec(fixedPoint, m.Type, m.Gaussian, layout)
		if err != nil {
			return fmt.Errorf("%s model stream %d: %w", m.Type, s.Index, err)
		}
		e.facts.meanBits, e.facts.varBits = codec.Bits()
		if si > 0 {
			first := &m.Streams[0]
			if len(s.Entries) != len(first.Entries) {
				return fmt.Errorf("%w: %s model stream %d carries %d entries, stream %d carries %d",
					ErrInvalidData, m.Type, s.Index, len(s.Entries), first.Index, len(first.Entries))
			}
			for ei := range s.Entries {
				if s.Entries[ei].Name != first.Entries[ei].Name {
					return fmt.Errorf("%w: %s model stream %d entry %d named %q, stream %d names it %q",
						ErrInvalidData, m.Type, s.Index, ei, s.Entries[ei].Name,
						first.Index, first.Entries[ei].Name)
				}
			}
		}
		scratch := NewMemFile()
		sw, err := NewWriter(scratch)
		if err != nil {
			return err
		}
		for ei := range s.Entries {
			entry := &s.Entries[ei]
			mark := sw.Pos()
			if err := codec.Encode(sw, entry.Gaussians); err != nil {
				return fmt.Errorf("%s model stream %d entry %d (%s): %w",
					m.Type, s.Index, ei, entry.Name, err)
			}
			if got := sw.Pos() - mark; got != int64(codec.EntrySize()) {
				return fmt.Errorf("%w: %s model stream %d entry %d occupies %d bytes, codec record is %d",
					ErrInvalidData, m.Type, s.Index, ei, got, codec.EntrySize())
			}
		}
		if counter, ok := codec.(correctionCounter); ok && counter.Corrections() > 0 {
			e.warnings = append(e.warnings,
				fmt.Sprintf("%s model stream %d: corrected %d non-monotonic coefficients",
					m.Type, s.Index, counter.Corrections()))
		}
		e.streams[si] = encodedStream{
			index:      s.Index,
			entryCount: len(s.Entries),
			entrySize:  codec.EntrySize(),
			raw:        scratch.Bytes(),
		}
	}
	if len(m.Streams) == 0 {
		return fmt.Errorf("%w: %s model has no streams", ErrInvalidData, m.Type)
	}
	for ei := range m.Streams[0].Entries {
		name := m.Streams[0].Entries[ei].Name
		if name == "" {
			continue
		}
		if _, dup := e.offsets[name]; dup {
			return fmt.Errorf("%w: %s model entry %q defined twice", ErrInvalidData, m.Type, name)
		}
		offs := make([]uint32, len(e.streams))
		for si := range e.streams {
			offs[si] = uint32(ei * e.streams[si].entrySize)
		}
		e.offsets[name] = offs
	}
	return nil
}

func (e *modelEncoder) encodeTransforms(m *hts.Model, pool *hts.StringPool) error {
	e.facts = headerFacts{quantized: true, meanBits: 32, varBits: 32}
	size := 4 + xformSize(m.Xform)
	scratch := NewMemFile()
	sw, err := NewWriter(scratch)
	if err != nil {
		return err
	}
	for ti := range m.Transforms {
		t := &m.Transforms[ti]
		mark := sw.Pos()
		if err := sw.U32(pool.Intern(t.Name)); err != nil {
			return err
		}
		if err := encodeXform(sw, &t.Xform, m.Xform); err != nil {
			return fmt.Errorf("%s model transform %q: %w", m.Type, t.Name, err)
		}
		if got := sw.Pos() - mark; got != int64(size) {
			return fmt.Errorf("%w: %s model transform %q occupies %d bytes, record is %d",
				ErrInvalidData, m.Type, t.Name, got, size)
		}
		if _, dup := e.offsets[t.Name]; dup {
			return fmt.Errorf("%w: %s model transform %q defined twice", ErrInvalidData, m.Type, t.Name)
		}
		e.offsets[t.Name] = []uint32{uint32(ti * size)}
	}
	e.streams = []encodedStream{{
		index:      m.Forest.StreamIndexes[0],
		entryCount: len(m.Transforms),
		entrySize:  size,
		raw:        scratch.Bytes(),
	}}
	return nil
}

// resolve maps a leaf's entry name to its per-stream offsets.
func (e *modelEncoder) resolve(name string) ([]uint32, error) {
	offs, ok := e.offsets[name]
	if !ok {
		return nil, fmt.Errorf("%w: leaf references unknown entry %q", ErrInvalidData, name)
	}
	return offs, nil
}

// rawPayloads exposes the staged buffers, in stream order, for
// codebook construction.
func (e *modelEncoder) rawPayloads() [][]byte {
	out := make([][]byte, len(e.streams))
	for i := range e.streams {
		out[i] = e.streams[i].raw
	}
	return out
}

// writeTo writes the model's stream data section and returns its
// location. With an Encoder present each payload is compressed as one
// unit; payloads the Encoder cannot shrink stay raw.
func (e *modelEncoder) writeTo(w *Writer, enc Encoder) (hts.Location, error) {
	if err := w.AssertAligned("stream section"); err != nil {
		return hts.Location{}, err
	}
	start := w.Pos()
	if err := w.U32(uint32(len(e.streams))); err != nil {
		return hts.Location{}, err
	}
	for i := range e.streams {
		s := &e.streams[i]
		if len(s.raw) > maxStreamBytes {
			return hts.Location{}, fmt.Errorf("%w: stream %d payload of %d bytes", ErrInvalidData, s.index, len(s.raw))
		}
		payload := s.raw
		encLen := uint32(0)
		if enc != nil {
			packed, err := enc.Encode(s.raw)
			if err != nil {
				return hts.Location{}, fmt.Errorf("stream %d: %w", s.index, err)
			}
			if len(packed) < len(s.raw) {
				payload = packed
				encLen = uint32(len(packed))
			}
		}
		header := [4]uint32{uint32(s.index), uint32(s.entryCount), uint32(len(s.raw)), encLen}
		for _, v := range header {
			if err := w.U32(v); err != nil {
				return hts.Location{}, err
			}
		}
		if err := w.Bytes(payload); err != nil {
			return hts.Location{}, err
		}
		if err := w.Pad4(); err != nil {
			return hts.Location{}, err
		}
	}
	if err := w.AssertAligned("stream section end"); err != nil {
		return hts.Location{}, err
	}
	return hts.Location{Offset: uint32(start), Length: uint32(w.Pos() - start)}, nil
}

// decodedStreams is one model's stream section read back: either
// Gaussian streams or named transforms, plus the record geometry the
// caller needs to validate leaf references.
type decodedStreams struct {
	streams    []hts.Stream
	transforms []hts.NamedXform
	entrySizes []int
	rawLens    []uint32
}

// checkLeafRef validates one leaf reference against stream j's record
// geometry.
func (d *decodedStreams) checkLeafRef(j int, off uint32) error {
	if j >= len(d.entrySizes) {
		return fmt.Errorf("%w: leaf reference for stream slot %d of %d", ErrInvalidData, j, len(d.entrySizes))
	}
	size := uint32(d.entrySizes[j])
	if off >= d.rawLens[j] || off%size != 0 {
		return fmt.Errorf("%w: leaf reference %d outside stream records of %d bytes",
			ErrInvalidData, off, size)
	}
	return nil
}

// readStreamData reads one model's stream data section against its
// decoded header.
func readStreamData(r *Reader, meta *modelMeta, fixedPoint bool, dec Decoder, pool *hts.StringPool) (*decodedStreams, error) {
	if err := r.AssertAligned("stream section"); err != nil {
		return nil, err
	}
	streamCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if int(streamCount) != len(meta.streams) {
		return nil, fmt.Errorf("%w: model header advertises %d streams, section carries %d",
			ErrInvalidData, len(meta.streams), streamCount)
	}
	out := &decodedStreams{
		entrySizes: make([]int, streamCount),
		rawLens:    make([]uint32, streamCount),
	}
	for i := range meta.streams {
		var header [4]uint32
		for j := range header {
			if header[j], err = r.U32(); err != nil {
				return nil, err
			}
		}
		index, entryCount, rawLen, encLen := header[0], header[1], header[2], header[3]
		if int(index) != meta.streams[i].index {
			return nil, fmt.Errorf("%w: stream %d in the header slot of stream %d",
				ErrInvalidData, index, meta.streams[i].index)
		}
		if entryCount == 0 {
			return nil, fmt.Errorf("%w: stream %d carries no entries", ErrInvalidData, index)
		}
		if err := checkCount("entry", entryCount); err != nil {
			return nil, err
		}
		if rawLen == 0 || rawLen > maxStreamBytes {
			return nil, fmt.Errorf("%w: stream %d payload of %d bytes", ErrInvalidData, index, rawLen)
		}
		var entrySize int
		var codec gaussianCodec
		if meta.xform != nil {
			entrySize = 4 + xformSize(meta.xform)
		} else {
			layout := meta.streams[i].layout(meta.mixtures)
			codec, err = selectGaussianCodec(fixedPoint, meta.modelType, meta.gaussianConfig(), layout)
			if err != nil {
				return nil, fmt.Errorf("%s model stream %d: %w", meta.modelType, index, err)
			}
			mean, vari := codec.Bits()
			if mean != meta.meanBits || vari != meta.varBits {
				return nil, fmt.Errorf("%w: stream %d carries %d/%d-bit parameters, header says %d/%d",
					ErrInvalidData, index, mean, vari, meta.meanBits, meta.varBits)
			}
			entrySize = codec.EntrySize()
		}
		if uint64(rawLen) != uint64(entryCount)*uint64(entrySize) {
			return nil, fmt.Errorf("%w: stream %d payload of %d bytes for %d records of %d",
				ErrInvalidData, index, rawLen, entryCount, entrySize)
		}
		wireLen := rawLen
		if encLen != 0 {
			if encLen >= rawLen {
				return nil, fmt.Errorf("%w: stream %d encoded length %d for %d raw bytes",
					ErrInvalidData, index, encLen, rawLen)
			}
			wireLen = encLen
		}
		payload := make([]byte, wireLen)
		if err := r.Bytes(payload); err != nil {
			return nil, err
		}
		if err := r.SkipPad4(); err != nil {
			return nil, err
		}
		raw := payload
		if encLen != 0 {
			if dec == nil {
				return nil, fmt.Errorf("%w: stream %d is compressed, font has no codebook", ErrInvalidData, index)
			}
			if raw, err = dec.Decode(payload, int(rawLen)); err != nil {
				return nil, fmt.Errorf("stream %d: %w", index, err)
			}
			if len(raw) != int(rawLen) {
				return nil, fmt.Errorf("%w: stream %d decompressed to %d bytes, header says %d",
					ErrInvalidData, index, len(raw), rawLen)
			}
		}
		sub, err := NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		if meta.xform != nil {
			if err := out.readTransforms(sub, meta, int(entryCount), pool); err != nil {
				return nil, fmt.Errorf("stream %d: %w", index, err)
			}
		} else {
			stream := hts.Stream{
				Index:            int(index),
				VectorSize:       meta.streams[i].vectorSize,
				StaticVectorSize: meta.streams[i].staticSize,
				Entries:          make([]hts.StreamEntry, entryCount),
			}
			for ei := range stream.Entries {
				gs, err := codec.Decode(sub)
				if err != nil {
					return nil, fmt.Errorf("stream %d entry %d: %w", index, ei, err)
				}
				stream.Entries[ei] = hts.StreamEntry{Gaussians: gs}
			}
			out.streams = append(out.streams, stream)
		}
		if sub.Pos() != int64(rawLen) {
			return nil, fmt.Errorf("%w: stream %d has %d trailing payload bytes",
				ErrInvalidData, index, int64(rawLen)-sub.Pos())
		}
		out.entrySizes[i] = entrySize
		out.rawLens[i] = rawLen
	}
	return out, nil
}

// readTransforms decodes the named transform records of one stream
// payload.
func (d *decodedStreams) readTransforms(sub *Reader, meta *modelMeta, entryCount int, pool *hts.StringPool) error {
	for ti := 0; ti < entryCount; ti++ {
		nameOff, err := sub.U32()
		if err != nil {
			return err
		}
		name, err := pool.At(nameOff)
		if err != nil {
			return fmt.Errorf("%w: transform %d name: %v", ErrInvalidData, ti, err)
		}
		x, err := decodeXform(sub, meta.xform)
		if err != nil {
			return fmt.Errorf("transform %q: %w", name, err)
		}
		d.transforms = append(d.transforms, hts.NamedXform{Name: name, Xform: x})
	}
	return nil
}
