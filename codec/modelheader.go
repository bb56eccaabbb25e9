package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// Wire sanity caps for model headers. Real fonts stay far below these;
// anything larger is treated as corruption.
const (
	maxStreamsPerModel = 16
	maxMixtures        = 32
	maxVectorSize      = 4096
	maxXformBlocks     = 256
)

// flag32 encodes a boolean header field.
func flag32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// headerFacts carries the codec-derived header fields the stream
// encoder fixes before the header is written: whether quantization is
// in effect and the resulting mean/variance widths.
type headerFacts struct {
	quantized bool
	meanBits  int
	varBits   int
}

// streamMeta is the per-stream layout triple of a model header.
type streamMeta struct {
	index      int
	vectorSize int
	staticSize int
}

func (s streamMeta) layout(mixtures int) streamLayout {
	return streamLayout{dim: s.vectorSize, staticDim: s.staticSize, mixtures: mixtures}
}

// modelMeta is a decoded model header: everything the read path needs
// to locate and decode the model's forest and stream sections.
type modelMeta struct {
	modelType hts.ModelType
	dist      hts.DistType
	quantized bool
	meanBits  int
	varBits   int
	mixtures  int
	streams   []streamMeta
	windows   *hts.WindowSet
	xform     *hts.LinXformConfig
	f0Ext     *hts.F0Extension
	forestLoc hts.Location
	streamLoc hts.Location
}

// gaussianConfig reconstructs the layout config the writer used, so
// codec selection on read repeats the write-side decision exactly.
func (m *modelMeta) gaussianConfig() hts.GaussianConfig {
	return hts.GaussianConfig{
		Dist:       m.dist,
		Mixtures:   m.mixtures,
		MeanBits:   m.meanBits,
		VarBits:    m.varBits,
		NoQuantize: !m.quantized,
	}
}

// writeModelHeader writes one model header and returns the patch marks
// of the forest and stream-section locations, to be resolved by the
// caller once both sections are in place. Transform models advertise a
// single stream slot sized by the transform vector.
func writeModelHeader(w *Writer, m *hts.Model, facts headerFacts) (forestMark, streamMark int64, err error) {
	if err := w.AssertAligned("model header"); err != nil {
		return 0, 0, err
	}
	dist := m.Gaussian.Dist
	mixtures := m.Gaussian.Mixtures
	isXform := len(m.Transforms) > 0
	if isXform {
		dist = hts.DistGaussian
		mixtures = 1
	}
	if err := w.U32(uint32(m.Type)); err != nil {
		return 0, 0, err
	}
	if err := w.U32(uint32(dist)); err != nil {
		return 0, 0, err
	}
	if err := w.U32(flag32(facts.quantized)); err != nil {
		return 0, 0, err
	}
	if err := w.U32(uint32(facts.meanBits)); err != nil {
		return 0, 0, err
	}
	if err := w.U32(uint32(facts.varBits)); err != nil {
		return 0, 0, err
	}
	if err := w.U32(uint32(mixtures)); err != nil {
		return 0, 0, err
	}
	if isXform {
		if err := w.U32(1); err != nil {
			return 0, 0, err
		}
		triple := [3]uint32{
			uint32(m.Forest.StreamIndexes[0]),
			uint32(m.Xform.VecSize),
			uint32(m.Xform.VecSize),
		}
		for _, v := range triple {
			if err := w.U32(v); err != nil {
				return 0, 0, err
			}
		}
	} else {
		if err := w.U32(uint32(len(m.Streams))); err != nil {
			return 0, 0, err
		}
		for i := range m.Streams {
			s := &m.Streams[i]
			triple := [3]uint32{
				uint32(s.Index),
				uint32(s.VectorSize),
				uint32(s.StaticVectorSize),
			}
			for _, v := range triple {
				if err := w.U32(v); err != nil {
					return 0, 0, err
				}
			}
		}
	}
	ws := m.Windows
	if ws == nil {
		ws = hts.PlaceholderWindows()
	}
	if err := writeWindows(w, ws); err != nil {
		return 0, 0, err
	}
	if err := w.U32(flag32(m.Xform != nil)); err != nil {
		return 0, 0, err
	}
	if m.Xform != nil {
		x := m.Xform
		if x.FixedPoint {
			return 0, 0, fmt.Errorf("%w: fixed-point linear transforms", ErrNotSupported)
		}
		head := [5]uint32{
			uint32(x.VecSize),
			uint32(x.BandWidth),
			flag32(x.HasBias),
			flag32(x.HasVarBias),
			uint32(len(x.BlockSizes)),
		}
		for _, v := range head {
			if err := w.U32(v); err != nil {
				return 0, 0, err
			}
		}
		for _, k := range x.BlockSizes {
			if err := w.U32(uint32(k)); err != nil {
				return 0, 0, err
			}
		}
	}
	if err := w.U32(flag32(m.F0Ext != nil)); err != nil {
		return 0, 0, err
	}
	if m.F0Ext != nil {
		if err := w.F32(m.F0Ext.PitchShift); err != nil {
			return 0, 0, err
		}
		if err := w.F32(m.F0Ext.PitchRange); err != nil {
			return 0, 0, err
		}
	}
	if forestMark, err = w.Reserve(8); err != nil {
		return 0, 0, err
	}
	if streamMark, err = w.Reserve(8); err != nil {
		return 0, 0, err
	}
	if err := w.AssertAligned("model header end"); err != nil {
		return 0, 0, err
	}
	return forestMark, streamMark, nil
}

// readModelHeader reads and sanity-checks one model header.
func readModelHeader(r *Reader) (*modelMeta, error) {
	if err := r.AssertAligned("model header"); err != nil {
		return nil, err
	}
	var fields [6]uint32
	for i := range fields {
		v, err := r.U32()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	meta := &modelMeta{
		modelType: hts.ModelType(fields[0]),
		dist:      hts.DistType(fields[1]),
		quantized: fields[2] != 0,
		meanBits:  int(fields[3]),
		varBits:   int(fields[4]),
		mixtures:  int(fields[5]),
	}
	if meta.modelType < hts.ModelLSP || meta.modelType > hts.ModelGain {
		return nil, fmt.Errorf("%w: model type %d", ErrInvalidData, fields[0])
	}
	if fields[1] > uint32(hts.DistMSD) {
		return nil, fmt.Errorf("%w: distribution type %d", ErrInvalidData, fields[1])
	}
	if fields[2] > 1 {
		return nil, fmt.Errorf("%w: quantization flag %d", ErrInvalidData, fields[2])
	}
	for _, bits := range [2]int{meta.meanBits, meta.varBits} {
		if bits != 8 && bits != 16 && bits != 32 {
			return nil, fmt.Errorf("%w: %d-bit parameter width", ErrInvalidData, bits)
		}
	}
	if meta.mixtures <= 0 || meta.mixtures > maxMixtures {
		return nil, fmt.Errorf("%w: %d mixtures", ErrInvalidData, meta.mixtures)
	}
	streamCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if streamCount == 0 || streamCount > maxStreamsPerModel {
		return nil, fmt.Errorf("%w: %d streams in one model", ErrInvalidData, streamCount)
	}
	meta.streams = make([]streamMeta, streamCount)
	for i := range meta.streams {
		var triple [3]uint32
		for j := range triple {
			v, err := r.U32()
			if err != nil {
				return nil, err
			}
			triple[j] = v
		}
		s := streamMeta{
			index:      int(triple[0]),
			vectorSize: int(triple[1]),
			staticSize: int(triple[2]),
		}
		if s.vectorSize <= 0 || s.vectorSize > maxVectorSize ||
			s.staticSize <= 0 || s.vectorSize%s.staticSize != 0 {
			return nil, fmt.Errorf("%w: stream %d vector size %d over static size %d",
				ErrInvalidData, s.index, s.vectorSize, s.staticSize)
		}
		meta.streams[i] = s
	}
	if meta.windows, err = readWindows(r); err != nil {
		return nil, err
	}
	hasXform, err := r.U32()
	if err != nil {
		return nil, err
	}
	if hasXform > 1 {
		return nil, fmt.Errorf("%w: transform flag %d", ErrInvalidData, hasXform)
	}
	if hasXform == 1 {
		var head [5]uint32
		for i := range head {
			v, err := r.U32()
			if err != nil {
				return nil, err
			}
			head[i] = v
		}
		if head[2] > 1 || head[3] > 1 {
			return nil, fmt.Errorf("%w: transform bias flags %d/%d", ErrInvalidData, head[2], head[3])
		}
		if head[4] == 0 || head[4] > maxXformBlocks {
			return nil, fmt.Errorf("%w: %d transform blocks", ErrInvalidData, head[4])
		}
		cfg := &hts.LinXformConfig{
			VecSize:    int(head[0]),
			BandWidth:  int(head[1]),
			HasBias:    head[2] == 1,
			HasVarBias: head[3] == 1,
			BlockSizes: make([]int, head[4]),
		}
		for i := range cfg.BlockSizes {
			k, err := r.U32()
			if err != nil {
				return nil, err
			}
			cfg.BlockSizes[i] = int(k)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		if cfg.VecSize > maxVectorSize {
			return nil, fmt.Errorf("%w: transform vector size %d", ErrInvalidData, cfg.VecSize)
		}
		meta.xform = cfg
	}
	hasF0, err := r.U32()
	if err != nil {
		return nil, err
	}
	if hasF0 > 1 {
		return nil, fmt.Errorf("%w: f0 extension flag %d", ErrInvalidData, hasF0)
	}
	if hasF0 == 1 {
		ext := &hts.F0Extension{}
		if ext.PitchShift, err = r.F32(); err != nil {
			return nil, err
		}
		if ext.PitchRange, err = r.F32(); err != nil {
			return nil, err
		}
		meta.f0Ext = ext
	}
	off, length, err := r.Location()
	if err != nil {
		return nil, err
	}
	meta.forestLoc = hts.Location{Offset: off, Length: length}
	if off, length, err = r.Location(); err != nil {
		return nil, err
	}
	meta.streamLoc = hts.Location{Offset: off, Length: length}
	if meta.forestLoc.IsZero() || meta.streamLoc.IsZero() {
		return nil, fmt.Errorf("%w: model %s sections never resolved", ErrInvalidData, meta.modelType)
	}
	return meta, nil
}
