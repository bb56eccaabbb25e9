package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/internal/mathutil"
)

// varianceFloor bounds variances away from zero before inversion, so
// the wire always carries a finite inverse variance.
const varianceFloor = 1e-10

// codecKind closes the set of Gaussian wire layouts.
type codecKind int

const (
	codecFloat32 codecKind = iota
	codecMsdFloat32
	codecFixedF0
	codecFixedLsp
	codecFixedMbe
)

func (k codecKind) String() string {
	switch k {
	case codecFloat32:
		return "float32"
	case codecMsdFloat32:
		return "msd-float32"
	case codecFixedF0:
		return "fixed-f0"
	case codecFixedLsp:
		return "fixed-lsp"
	case codecFixedMbe:
		return "fixed-mbe"
	}
	return fmt.Sprintf("codec(%d)", int(k))
}

// streamLayout is the physical shape one codec instance is bound to.
type streamLayout struct {
	dim       int // full vector size including dynamic windows
	staticDim int
	mixtures  int
}

// gaussianCodec encodes one stream entry (all mixtures of one named
// macro) into a fixed-size record and decodes it back. Record sizes
// must be position-independent; leaf references are validated against
// EntrySize.
type gaussianCodec interface {
	Kind() codecKind
	Bits() (mean, vari int)
	EntrySize() int
	Encode(w *Writer, gs []hts.Gaussian) error
	Decode(r *Reader) ([]hts.Gaussian, error)
}

// correctionCounter is implemented by codecs that repair their input
// during encoding and need to surface how often they did.
type correctionCounter interface {
	Corrections() int
}

// selectGaussianCodec picks the wire layout for one stream of one
// model. The decision is keyed on the font's fixed-point flag, the
// model type and the distribution type; duration and gain models keep
// the float32 layout even inside fixed-point fonts.
func selectGaussianCodec(fixedPoint bool, modelType hts.ModelType, cfg hts.GaussianConfig, layout streamLayout) (gaussianCodec, error) {
	if layout.dim <= 0 || layout.staticDim <= 0 || layout.mixtures <= 0 {
		return nil, fmt.Errorf("%w: stream layout %+v", ErrInvalidData, layout)
	}
	if cfg.NoQuantize {
		return &float32Codec{layout: layout}, nil
	}
	if fixedPoint {
		switch modelType {
		case hts.ModelF0:
			if cfg.Dist != hts.DistMSD {
				return nil, fmt.Errorf("%w: fixed-point f0 model requires a multi-space distribution",
					ErrNotSupported)
			}
			if layout.mixtures != 2 {
				return nil, fmt.Errorf("%w: fixed-point f0 model with %d mixtures",
					ErrNotSupported, layout.mixtures)
			}
			return &fixedF0Codec{layout: layout}, nil
		case hts.ModelLSP:
			if cfg.Dist != hts.DistGaussian {
				return nil, fmt.Errorf("%w: fixed-point lsp model requires plain Gaussians",
					ErrNotSupported)
			}
			return newFixedLspCodec(layout), nil
		case hts.ModelMBE:
			if layout.mixtures > 2 {
				return nil, fmt.Errorf("%w: fixed-point mbe model with %d mixtures",
					ErrNotSupported, layout.mixtures)
			}
			return &fixedMbeCodec{layout: layout}, nil
		}
	}
	switch cfg.Dist {
	case hts.DistMSD:
		if layout.mixtures != 2 {
			return nil, fmt.Errorf("%w: multi-space stream with %d mixtures",
				ErrNotSupported, layout.mixtures)
		}
		return &msdFloat32Codec{layout: layout}, nil
	case hts.DistGaussian:
		return &float32Codec{layout: layout}, nil
	}
	return nil, fmt.Errorf("%w: distribution %s", ErrNotSupported, cfg.Dist)
}

// float32Codec is the base layout: per mixture a float32 weight, the
// inverse-variance-weighted mean vector and the inverse variance
// vector.
type float32Codec struct {
	layout streamLayout
}

func (c *float32Codec) Kind() codecKind  { return codecFloat32 }
func (c *float32Codec) Bits() (int, int) { return 32, 32 }
func (c *float32Codec) mixtureSize() int { return 4 + 8*c.layout.dim }
func (c *float32Codec) EntrySize() int   { return c.layout.mixtures * c.mixtureSize() }

func (c *float32Codec) Encode(w *Writer, gs []hts.Gaussian) error {
	if len(gs) != c.layout.mixtures {
		return fmt.Errorf("%w: %d mixtures, codec expects %d", ErrInvalidData, len(gs), c.layout.mixtures)
	}
	for m := range gs {
		if err := encodeFloatMixture(w, &gs[m], c.layout.dim); err != nil {
			return fmt.Errorf("mixture %d: %w", m, err)
		}
	}
	return nil
}

func (c *float32Codec) Decode(r *Reader) ([]hts.Gaussian, error) {
	gs := make([]hts.Gaussian, c.layout.mixtures)
	for m := range gs {
		if err := decodeFloatMixture(r, &gs[m], c.layout.dim); err != nil {
			return nil, fmt.Errorf("mixture %d: %w", m, err)
		}
	}
	return gs, nil
}

func encodeFloatMixture(w *Writer, g *hts.Gaussian, dim int) error {
	if g.Dim() != dim {
		return fmt.Errorf("%w: gaussian dim %d, stream dim %d", ErrInvalidData, g.Dim(), dim)
	}
	if err := w.F32(g.Weight); err != nil {
		return err
	}
	for d := 0; d < dim; d++ {
		iv := mathutil.InvertVariance(g.Variance[d], varianceFloor)
		if err := w.F32(g.Mean[d] * iv); err != nil {
			return err
		}
	}
	for d := 0; d < dim; d++ {
		if err := w.F32(mathutil.InvertVariance(g.Variance[d], varianceFloor)); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloatMixture(r *Reader, g *hts.Gaussian, dim int) error {
	var err error
	if g.Weight, err = r.F32(); err != nil {
		return err
	}
	weighted := make([]float32, dim)
	for d := range weighted {
		if weighted[d], err = r.F32(); err != nil {
			return err
		}
	}
	g.Mean = make([]float32, dim)
	g.Variance = make([]float32, dim)
	for d := 0; d < dim; d++ {
		iv, err := r.F32()
		if err != nil {
			return err
		}
		if iv <= 0 {
			return fmt.Errorf("%w: inverse variance %v in dim %d", ErrInvalidData, iv, d)
		}
		g.Mean[d] = weighted[d] / iv
		g.Variance[d] = 1 / iv
	}
	return nil
}

// msdPick returns the single mixture carrying data in a multi-space
// set. Zero or several full mixtures mean corrupt training output.
func msdPick(gs []hts.Gaussian, dim int) (int, error) {
	found := -1
	for m := range gs {
		if gs[m].Dim() == 0 {
			continue
		}
		if gs[m].Dim() != dim {
			return 0, fmt.Errorf("%w: mixture %d has dim %d, stream dim %d",
				ErrInvalidData, m, gs[m].Dim(), dim)
		}
		if found >= 0 {
			return 0, fmt.Errorf("%w: mixtures %d and %d both carry data in a multi-space set",
				ErrInvalidData, found, m)
		}
		found = m
	}
	if found < 0 {
		return 0, fmt.Errorf("%w: no mixture carries data in a multi-space set", ErrInvalidData)
	}
	return found, nil
}

// msdFloat32Codec writes only the data-bearing mixture of a two-space
// distribution. The empty space is reconstructed on read with the
// complementary weight.
type msdFloat32Codec struct {
	layout streamLayout
}

func (c *msdFloat32Codec) Kind() codecKind  { return codecMsdFloat32 }
func (c *msdFloat32Codec) Bits() (int, int) { return 32, 32 }
func (c *msdFloat32Codec) EntrySize() int   { return 4 + 8*c.layout.dim }

func (c *msdFloat32Codec) Encode(w *Writer, gs []hts.Gaussian) error {
	if len(gs) != c.layout.mixtures {
		return fmt.Errorf("%w: %d mixtures, codec expects %d", ErrInvalidData, len(gs), c.layout.mixtures)
	}
	pick, err := msdPick(gs, c.layout.dim)
	if err != nil {
		return err
	}
	return encodeFloatMixture(w, &gs[pick], c.layout.dim)
}

func (c *msdFloat32Codec) Decode(r *Reader) ([]hts.Gaussian, error) {
	var g hts.Gaussian
	if err := decodeFloatMixture(r, &g, c.layout.dim); err != nil {
		return nil, err
	}
	return []hts.Gaussian{g, {Weight: 1 - g.Weight}}, nil
}
