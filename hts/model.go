package hts

import (
	"fmt"
	"strings"
)

// ModelType identifies the parameter family a model generates.
type ModelType uint32

const (
	ModelLSP      ModelType = 1 + iota // spectral envelope as line spectral pairs
	ModelF0                            // log-F0 with voicing
	ModelMBE                           // band aperiodicity
	ModelDuration                      // state durations
	ModelGain                          // energy
)

func (t ModelType) String() string {
	switch t {
	case ModelLSP:
		return "lsp"
	case ModelF0:
		return "f0"
	case ModelMBE:
		return "mbe"
	case ModelDuration:
		return "duration"
	case ModelGain:
		return "gain"
	}
	return fmt.Sprintf("modeltype(%d)", uint32(t))
}

// ParseModelType maps a manifest name to its ModelType.
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(s) {
	case "lsp":
		return ModelLSP, nil
	case "f0":
		return ModelF0, nil
	case "mbe":
		return ModelMBE, nil
	case "duration":
		return ModelDuration, nil
	case "gain":
		return ModelGain, nil
	}
	return 0, fmt.Errorf("unknown model type %q", s)
}

// DistType distinguishes plain Gaussian streams from multi-space
// distributions whose mixtures may be empty.
type DistType uint32

const (
	DistGaussian DistType = iota
	DistMSD
)

func (d DistType) String() string {
	switch d {
	case DistGaussian:
		return "gaussian"
	case DistMSD:
		return "msd"
	}
	return fmt.Sprintf("disttype(%d)", uint32(d))
}

// GaussianConfig fixes how a model's mixtures are laid out on disk.
// MeanBits and VarBits are the effective widths; they live directly on
// the model header so readers never consult serializer state.
type GaussianConfig struct {
	Dist       DistType
	Mixtures   int
	MeanBits   int
	VarBits    int
	NoQuantize bool // diagnostic bypass: plain float32 layout regardless of font flags
}

// LinXformConfig fixes the adaptation-transform layout of a model.
type LinXformConfig struct {
	VecSize    int
	BandWidth  int
	HasBias    bool
	HasVarBias bool
	BlockSizes []int
	FixedPoint bool // carried for completeness; rejected before any write
}

// Validate checks the config describes a usable transform layout.
func (c *LinXformConfig) Validate() error {
	if c.VecSize <= 0 {
		return fmt.Errorf("transform config: vector size %d", c.VecSize)
	}
	if c.BandWidth < 0 {
		return fmt.Errorf("transform config: band width %d", c.BandWidth)
	}
	if len(c.BlockSizes) == 0 {
		return fmt.Errorf("transform config: no blocks")
	}
	total := 0
	for i, k := range c.BlockSizes {
		if k <= 0 {
			return fmt.Errorf("transform config: block %d size %d", i, k)
		}
		total += k
	}
	if total != c.VecSize {
		return fmt.Errorf("transform config: blocks cover %d dims, vector size is %d", total, c.VecSize)
	}
	return nil
}

// F0Extension is the optional pitch customization block carried on F0
// model headers.
type F0Extension struct {
	PitchShift float32
	PitchRange float32
}

// NamedXform is one named adaptation transform.
type NamedXform struct {
	Name  string
	Xform LinXform
}

// Model is one compiled model: a decision forest plus the stream data
// its leaves reference, the regression windows, and the serialization
// metadata.
type Model struct {
	Type       ModelType
	Forest     *Forest
	Streams    []Stream
	Windows    *WindowSet
	Gaussian   GaussianConfig
	Xform      *LinXformConfig // non-nil for adaptation models
	Transforms []NamedXform
	F0Ext      *F0Extension
}

// Validate checks the model's internal consistency.
func (m *Model) Validate() error {
	if m.Forest == nil {
		return fmt.Errorf("model %s: no forest", m.Type)
	}
	if err := m.Forest.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", m.Type, err)
	}
	if len(m.Transforms) > 0 {
		return m.validateTransforms()
	}
	if m.Xform != nil {
		return fmt.Errorf("model %s: transform config without transforms", m.Type)
	}
	if m.Gaussian.Mixtures <= 0 {
		return fmt.Errorf("model %s: mixture count %d", m.Type, m.Gaussian.Mixtures)
	}
	if len(m.Streams) != len(m.Forest.StreamIndexes) {
		return fmt.Errorf("model %s: %d streams, forest indexes %d",
			m.Type, len(m.Streams), len(m.Forest.StreamIndexes))
	}
	for i := range m.Streams {
		s := &m.Streams[i]
		if s.Index != m.Forest.StreamIndexes[i] {
			return fmt.Errorf("model %s: stream %d has index %d, forest expects %d",
				m.Type, i, s.Index, m.Forest.StreamIndexes[i])
		}
		if err := s.Validate(m.Gaussian.Mixtures); err != nil {
			return fmt.Errorf("model %s: %w", m.Type, err)
		}
	}
	if m.Windows == nil {
		return fmt.Errorf("model %s: no window set", m.Type)
	}
	if err := m.Windows.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", m.Type, err)
	}
	if !m.Windows.IsPlaceholder() {
		for i := range m.Streams {
			s := &m.Streams[i]
			if s.Windows() != m.Windows.Order() {
				return fmt.Errorf("model %s stream %d: %d windows implied, window set has %d rows",
					m.Type, s.Index, s.Windows(), m.Windows.Order())
			}
		}
	}
	if m.F0Ext != nil && m.Type != ModelF0 {
		return fmt.Errorf("model %s: f0 extension on a non-F0 model", m.Type)
	}
	return nil
}

// validateTransforms checks an adaptation model: forest leaves address
// named transforms through a single stream slot and carry no Gaussian
// stream data of their own.
func (m *Model) validateTransforms() error {
	if m.Xform == nil {
		return fmt.Errorf("model %s: transforms without a transform config", m.Type)
	}
	if len(m.Streams) != 0 {
		return fmt.Errorf("model %s: both stream data and transforms", m.Type)
	}
	if len(m.Forest.StreamIndexes) != 1 {
		return fmt.Errorf("model %s: transform model needs one stream slot, forest has %d",
			m.Type, len(m.Forest.StreamIndexes))
	}
	if m.Windows != nil && !m.Windows.IsPlaceholder() {
		return fmt.Errorf("model %s: transform model with regression windows", m.Type)
	}
	if m.F0Ext != nil {
		return fmt.Errorf("model %s: f0 extension on a transform model", m.Type)
	}
	if err := m.Xform.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", m.Type, err)
	}
	seen := make(map[string]bool, len(m.Transforms))
	for i := range m.Transforms {
		name := m.Transforms[i].Name
		if name == "" {
			return fmt.Errorf("model %s transform %d: empty name", m.Type, i)
		}
		if seen[name] {
			return fmt.Errorf("model %s: duplicate transform %q", m.Type, name)
		}
		seen[name] = true
		x := &m.Transforms[i].Xform
		if err := x.Validate(); err != nil {
			return fmt.Errorf("model %s transform %q: %w", m.Type, name, err)
		}
		if x.VecSize != m.Xform.VecSize {
			return fmt.Errorf("model %s transform %q: vector size %d, config says %d",
				m.Type, name, x.VecSize, m.Xform.VecSize)
		}
		sizes, err := x.BlockSizes()
		if err != nil {
			return fmt.Errorf("model %s transform %q: %w", m.Type, name, err)
		}
		if len(sizes) != len(m.Xform.BlockSizes) {
			return fmt.Errorf("model %s transform %q: %d blocks, config says %d",
				m.Type, name, len(sizes), len(m.Xform.BlockSizes))
		}
		for b, k := range sizes {
			if k != m.Xform.BlockSizes[b] {
				return fmt.Errorf("model %s transform %q: block %d size %d, config says %d",
					m.Type, name, b, k, m.Xform.BlockSizes[b])
			}
		}
		if (len(x.Bias) > 0) != m.Xform.HasBias {
			return fmt.Errorf("model %s transform %q: bias presence disagrees with config",
				m.Type, name)
		}
		if (len(x.VarBias) > 0) != m.Xform.HasVarBias {
			return fmt.Errorf("model %s transform %q: variance bias presence disagrees with config",
				m.Type, name)
		}
	}
	return nil
}
