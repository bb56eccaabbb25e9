package codec

import (
	"fmt"
	"math"

	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/internal/mathutil"
)

// Fixed-point scale constants. The mean of an F0 stream is a log
// frequency below 7, so it maps onto the full int16 range via 32768/7.
// LSP scales halve once the spectral order reaches largeLspOrder, as
// higher orders pack their line spectral frequencies more densely.
const (
	f0MeanScale   = 32768.0 / 7.0
	mbeMeanScale  = 32768.0
	largeLspOrder = 40

	lspDeltaScaleSmall = 2048.0
	lspDeltaScaleLarge = 1024.0
	lspGainScaleSmall  = 1024.0
	lspGainScaleLarge  = 512.0
	lspDynScaleSmall   = 4096.0
	lspDynScaleLarge   = 2048.0

	varScaleF0Static   = 4.0
	varScaleF0Dynamic  = 1.0 / 255.0
	varScaleMbeStatic  = 1.0
	varScaleMbeDynamic = 1.0 / 16.0
)

// quantVarByte maps a variance to its unsigned-byte wire form: the
// square root of the scaled inverse variance, floored at 1 so the
// reconstruction never divides by zero.
func quantVarByte(variance float32, scale float64) uint8 {
	iv := mathutil.InvertVariance(variance, varianceFloor)
	b := mathutil.ClipToUint8(math.Sqrt(float64(iv) * scale))
	if b == 0 {
		b = 1
	}
	return b
}

// dequantVarByte inverts quantVarByte.
func dequantVarByte(b uint8, scale float64) (float32, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: variance byte is zero", ErrInvalidData)
	}
	return float32(scale / float64(uint32(b)*uint32(b))), nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// fixedF0Codec writes the data-bearing mixture of a two-space F0
// stream with an int16 mean and byte variance per dimension. Zero
// weights and zero variance bytes are corrupt training output and are
// rejected rather than encoded.
type fixedF0Codec struct {
	layout streamLayout
}

func (c *fixedF0Codec) Kind() codecKind  { return codecFixedF0 }
func (c *fixedF0Codec) Bits() (int, int) { return 16, 8 }

func (c *fixedF0Codec) EntrySize() int {
	return align4(4 + 3*c.layout.dim)
}

func (c *fixedF0Codec) varScale(d int) float64 {
	if d < c.layout.staticDim {
		return varScaleF0Static
	}
	return varScaleF0Dynamic
}

func (c *fixedF0Codec) Encode(w *Writer, gs []hts.Gaussian) error {
	if len(gs) != c.layout.mixtures {
		return fmt.Errorf("%w: %d mixtures, codec expects %d", ErrInvalidData, len(gs), c.layout.mixtures)
	}
	pick, err := msdPick(gs, c.layout.dim)
	if err != nil {
		return err
	}
	g := &gs[pick]
	if g.Weight == 0 {
		return fmt.Errorf("%w: f0 mixture weight is zero", ErrInvalidData)
	}
	if err := w.F32(g.Weight); err != nil {
		return err
	}
	for d := 0; d < c.layout.dim; d++ {
		if err := w.I16(mathutil.ClipToInt16(float64(g.Mean[d]) * f0MeanScale)); err != nil {
			return err
		}
	}
	for d := 0; d < c.layout.dim; d++ {
		iv := mathutil.InvertVariance(g.Variance[d], varianceFloor)
		b := mathutil.ClipToUint8(math.Sqrt(float64(iv) * c.varScale(d)))
		if b == 0 {
			return fmt.Errorf("%w: f0 variance %v in dim %d quantizes to zero",
				ErrInvalidData, g.Variance[d], d)
		}
		if err := w.U8(b); err != nil {
			return err
		}
	}
	return w.Pad4()
}

func (c *fixedF0Codec) Decode(r *Reader) ([]hts.Gaussian, error) {
	var g hts.Gaussian
	var err error
	if g.Weight, err = r.F32(); err != nil {
		return nil, err
	}
	if g.Weight == 0 {
		return nil, fmt.Errorf("%w: f0 mixture weight is zero", ErrInvalidData)
	}
	g.Mean = make([]float32, c.layout.dim)
	g.Variance = make([]float32, c.layout.dim)
	for d := range g.Mean {
		q, err := r.I16()
		if err != nil {
			return nil, err
		}
		g.Mean[d] = float32(float64(q) / f0MeanScale)
	}
	for d := range g.Variance {
		b, err := r.U8()
		if err != nil {
			return nil, err
		}
		if g.Variance[d], err = dequantVarByte(b, c.varScale(d)); err != nil {
			return nil, fmt.Errorf("dim %d: %w", d, err)
		}
	}
	if err := r.SkipPad4(); err != nil {
		return nil, err
	}
	return []hts.Gaussian{g, {Weight: 1 - g.Weight}}, nil
}

// fixedMbeCodec quantizes band aperiodicity streams: int16 means on a
// plain 32768 scale, byte variances. Single-mixture streams write that
// mixture; two-space streams write the data-bearing one.
type fixedMbeCodec struct {
	layout streamLayout
}

func (c *fixedMbeCodec) Kind() codecKind  { return codecFixedMbe }
func (c *fixedMbeCodec) Bits() (int, int) { return 16, 8 }

func (c *fixedMbeCodec) EntrySize() int {
	return align4(4 + 3*c.layout.dim)
}

func (c *fixedMbeCodec) varScale(d int) float64 {
	if d < c.layout.staticDim {
		return varScaleMbeStatic
	}
	return varScaleMbeDynamic
}

func (c *fixedMbeCodec) Encode(w *Writer, gs []hts.Gaussian) error {
	if len(gs) != c.layout.mixtures {
		return fmt.Errorf("%w: %d mixtures, codec expects %d", ErrInvalidData, len(gs), c.layout.mixtures)
	}
	pick, err := msdPick(gs, c.layout.dim)
	if err != nil {
		return err
	}
	g := &gs[pick]
	if err := w.F32(g.Weight); err != nil {
		return err
	}
	for d := 0; d < c.layout.dim; d++ {
		if err := w.I16(mathutil.ClipToInt16(float64(g.Mean[d]) * mbeMeanScale)); err != nil {
			return err
		}
	}
	for d := 0; d < c.layout.dim; d++ {
		if err := w.U8(quantVarByte(g.Variance[d], c.varScale(d))); err != nil {
			return err
		}
	}
	return w.Pad4()
}

func (c *fixedMbeCodec) Decode(r *Reader) ([]hts.Gaussian, error) {
	var g hts.Gaussian
	var err error
	if g.Weight, err = r.F32(); err != nil {
		return nil, err
	}
	g.Mean = make([]float32, c.layout.dim)
	g.Variance = make([]float32, c.layout.dim)
	for d := range g.Mean {
		q, err := r.I16()
		if err != nil {
			return nil, err
		}
		g.Mean[d] = float32(float64(q) / mbeMeanScale)
	}
	for d := range g.Variance {
		b, err := r.U8()
		if err != nil {
			return nil, err
		}
		if g.Variance[d], err = dequantVarByte(b, c.varScale(d)); err != nil {
			return nil, fmt.Errorf("dim %d: %w", d, err)
		}
	}
	if err := r.SkipPad4(); err != nil {
		return nil, err
	}
	if c.layout.mixtures == 2 {
		return []hts.Gaussian{g, {Weight: 1 - g.Weight}}, nil
	}
	return []hts.Gaussian{g}, nil
}

// fixedLspCodec quantizes spectral streams. Static line spectral
// frequencies ascend monotonically, so they delta-code against the
// previous quantized value as unsigned bytes; the gain dimension of
// each window block keeps an int16, dynamic dimensions a signed byte.
// Non-monotonic input is forced to a minimum step of one quantization
// level and counted.
type fixedLspCodec struct {
	layout     streamLayout
	deltaScale float64
	gainScale  float64
	dynScale   float64
	corrected  int
}

func newFixedLspCodec(layout streamLayout) *fixedLspCodec {
	c := &fixedLspCodec{
		layout:     layout,
		deltaScale: lspDeltaScaleSmall,
		gainScale:  lspGainScaleSmall,
		dynScale:   lspDynScaleSmall,
	}
	if layout.staticDim >= largeLspOrder {
		c.deltaScale = lspDeltaScaleLarge
		c.gainScale = lspGainScaleLarge
		c.dynScale = lspDynScaleLarge
	}
	return c
}

func (c *fixedLspCodec) Kind() codecKind  { return codecFixedLsp }
func (c *fixedLspCodec) Bits() (int, int) { return 8, 8 }
func (c *fixedLspCodec) Corrections() int { return c.corrected }

func (c *fixedLspCodec) mixtureSize() int {
	windows := c.layout.dim / c.layout.staticDim
	return align4(4 + 2*c.layout.dim + windows)
}

func (c *fixedLspCodec) EntrySize() int {
	return c.layout.mixtures * c.mixtureSize()
}

func (c *fixedLspCodec) varScale(d int) float64 {
	if d < c.layout.staticDim {
		return varScaleMbeStatic
	}
	return varScaleMbeDynamic
}

func (c *fixedLspCodec) Encode(w *Writer, gs []hts.Gaussian) error {
	if len(gs) != c.layout.mixtures {
		return fmt.Errorf("%w: %d mixtures, codec expects %d", ErrInvalidData, len(gs), c.layout.mixtures)
	}
	for m := range gs {
		if err := c.encodeMixture(w, &gs[m]); err != nil {
			return fmt.Errorf("mixture %d: %w", m, err)
		}
	}
	return nil
}

func (c *fixedLspCodec) encodeMixture(w *Writer, g *hts.Gaussian) error {
	if g.Dim() != c.layout.dim {
		return fmt.Errorf("%w: gaussian dim %d, stream dim %d", ErrInvalidData, g.Dim(), c.layout.dim)
	}
	if err := w.F32(g.Weight); err != nil {
		return err
	}
	prev := 0
	for d := 0; d < c.layout.dim; d++ {
		switch {
		case d%c.layout.staticDim == 0:
			if err := w.I16(mathutil.ClipToInt16(float64(g.Mean[d]) * c.gainScale)); err != nil {
				return err
			}
		case d < c.layout.staticDim:
			q := int(math.Round(float64(g.Mean[d]) * c.deltaScale))
			delta := q - prev
			if delta < 1 {
				delta = 1
				c.corrected++
			}
			if delta > 255 {
				delta = 255
				c.corrected++
			}
			if err := w.U8(uint8(delta)); err != nil {
				return err
			}
			prev += delta
		default:
			if err := w.I8(mathutil.ClipToInt8(float64(g.Mean[d]) * c.dynScale)); err != nil {
				return err
			}
		}
	}
	for d := 0; d < c.layout.dim; d++ {
		if err := w.U8(quantVarByte(g.Variance[d], c.varScale(d))); err != nil {
			return err
		}
	}
	return w.Pad4()
}

func (c *fixedLspCodec) Decode(r *Reader) ([]hts.Gaussian, error) {
	gs := make([]hts.Gaussian, c.layout.mixtures)
	for m := range gs {
		if err := c.decodeMixture(r, &gs[m]); err != nil {
			return nil, fmt.Errorf("mixture %d: %w", m, err)
		}
	}
	return gs, nil
}

func (c *fixedLspCodec) decodeMixture(r *Reader, g *hts.Gaussian) error {
	var err error
	if g.Weight, err = r.F32(); err != nil {
		return err
	}
	g.Mean = make([]float32, c.layout.dim)
	g.Variance = make([]float32, c.layout.dim)
	prev := 0
	for d := 0; d < c.layout.dim; d++ {
		switch {
		case d%c.layout.staticDim == 0:
			q, err := r.I16()
			if err != nil {
				return err
			}
			g.Mean[d] = float32(float64(q) / c.gainScale)
		case d < c.layout.staticDim:
			delta, err := r.U8()
			if err != nil {
				return err
			}
			if delta == 0 {
				return fmt.Errorf("%w: zero lsp delta in dim %d", ErrInvalidData, d)
			}
			prev += int(delta)
			g.Mean[d] = float32(float64(prev) / c.deltaScale)
		default:
			q, err := r.I8()
			if err != nil {
				return err
			}
			g.Mean[d] = float32(float64(q) / c.dynScale)
		}
	}
	for d := 0; d < c.layout.dim; d++ {
		b, err := r.U8()
		if err != nil {
			return err
		}
		if g.Variance[d], err = dequantVarByte(b, c.varScale(d)); err != nil {
			return fmt.Errorf("dim %d: %w", d, err)
		}
	}
	return r.SkipPad4()
}
