package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/ieee0824/voicefont-go/hts"
)

// f0Entry builds a two-space F0 entry whose values survive 16/8-bit
// quantization exactly: means are multiples of 7/32768 and variances
// hit integer wire bytes.
func f0Entry() []hts.Gaussian {
	mean := make([]float32, 3)
	for d, q := range []int{23000, -4100, 815} {
		mean[d] = float32(float64(q) / f0MeanScale)
	}
	return []hts.Gaussian{
		{
			Weight:   0.75,
			Mean:     mean,
			Variance: []float32{0.0625, float32(1.0 / 255.0 / 4.0), float32(1.0 / 255.0 / 9.0)},
		},
		{Weight: 0.25},
	}
}

func TestFixedF0RoundTrip(t *testing.T) {
	c := &fixedF0Codec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: 2}}
	if c.EntrySize() != 16 {
		t.Fatalf("EntrySize = %d, want 16", c.EntrySize())
	}
	gs := f0Entry()
	got := decodeEntry(t, c, encodeEntry(t, c, gs))
	sameGaussians(t, got, gs)
}

func TestFixedF0DataInSecondSpace(t *testing.T) {
	c := &fixedF0Codec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: 2}}
	gs := f0Entry()
	gs[0], gs[1] = gs[1], gs[0]
	got := decodeEntry(t, c, encodeEntry(t, c, gs))
	sameGaussians(t, got, []hts.Gaussian{gs[1], gs[0]})
}

func TestFixedF0RejectsZeroWeight(t *testing.T) {
	c := &fixedF0Codec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: 2}}
	gs := f0Entry()
	gs[0].Weight = 0
	gs[1].Weight = 1
	w, _ := newTestWriter(t)
	err := c.Encode(w, gs)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("Encode = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), "weight is zero") {
		t.Errorf("error %q does not name the zero weight", err)
	}

	// The same guard holds on the way back in.
	r := newTestReader(t, make([]byte, 16))
	if _, err := c.Decode(r); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Decode of zero weight = %v, want ErrInvalidData", err)
	}
}

func TestFixedF0RejectsUnquantizableVariance(t *testing.T) {
	c := &fixedF0Codec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: 2}}
	gs := f0Entry()
	gs[0].Variance[0] = 1e6
	w, _ := newTestWriter(t)
	err := c.Encode(w, gs)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("Encode = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), "quantizes to zero") {
		t.Errorf("error %q does not name the collapsed variance", err)
	}
}

func TestFixedF0RejectsZeroVarianceByte(t *testing.T) {
	c := &fixedF0Codec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: 2}}
	data := []byte{
		0x00, 0x00, 0x40, 0x3F, // weight 0.75
		0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, // means 100, 200, 300
		0x08, 0x00, 0x02, // variance bytes, dim 1 corrupt
		0x00, 0x00, 0x00,
	}
	r := newTestReader(t, data)
	_, err := c.Decode(r)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("Decode = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), "dim 1") || !strings.Contains(err.Error(), "variance byte is zero") {
		t.Errorf("error %q does not locate the zero variance byte", err)
	}
}

// lspEntry builds a 12-dim spectral entry over three windows of order
// four. Dims 0, 4 and 8 carry gains, dims 1..3 the delta-coded line
// spectral frequencies, the rest dynamic coefficients.
func lspEntry() []hts.Gaussian {
	g := hts.Gaussian{
		Weight:   1,
		Mean:     make([]float32, 12),
		Variance: make([]float32, 12),
	}
	g.Mean[0] = 300.0 / 1024.0
	g.Mean[4] = -96.0 / 1024.0
	g.Mean[8] = 52.0 / 1024.0
	for d, q := range []int{100, 220, 350} {
		g.Mean[1+d] = float32(float64(q) / 2048.0)
	}
	for i, q := range []int{-80, 33, 127, -127, 5, 64} {
		d := 5 + i
		if d > 7 {
			d++ // skip the gain at dim 8
		}
		g.Mean[d] = float32(float64(q) / 4096.0)
	}
	for d := range g.Variance {
		if d < 4 {
			g.Variance[d] = 0.0625 // wire byte 4 on the static scale
		} else {
			g.Variance[d] = 1.0 / 64.0 // wire byte 2 on the dynamic scale
		}
	}
	return []hts.Gaussian{g}
}

func TestFixedLspRoundTrip(t *testing.T) {
	c := newFixedLspCodec(streamLayout{dim: 12, staticDim: 4, mixtures: 1})
	if c.EntrySize() != 32 {
		t.Fatalf("EntrySize = %d, want 32", c.EntrySize())
	}
	gs := lspEntry()
	got := decodeEntry(t, c, encodeEntry(t, c, gs))
	sameGaussians(t, got, gs)
	if c.Corrections() != 0 {
		t.Errorf("Corrections = %d, want 0", c.Corrections())
	}
}

func TestFixedLspCorrectsNonMonotonic(t *testing.T) {
	tests := []struct {
		name  string
		dim   int
		mean  float32
		want  float32 // decoded value after correction
		want3 float32 // decoded dim 3
	}{
		// A frequency below its predecessor is forced one level above it.
		{"descending", 2, 50.0 / 2048.0, 101.0 / 2048.0, 350.0 / 2048.0},
		// A jump past 255 levels saturates the delta byte.
		{"wide jump", 2, 400.0 / 2048.0, 355.0 / 2048.0, 600.0 / 2048.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFixedLspCodec(streamLayout{dim: 12, staticDim: 4, mixtures: 1})
			gs := lspEntry()
			gs[0].Mean[tt.dim] = tt.mean
			if tt.name == "wide jump" {
				gs[0].Mean[3] = 600.0 / 2048.0
			}
			got := decodeEntry(t, c, encodeEntry(t, c, gs))
			if c.Corrections() != 1 {
				t.Errorf("Corrections = %d, want 1", c.Corrections())
			}
			if got[0].Mean[tt.dim] != tt.want {
				t.Errorf("decoded mean[%d] = %v, want %v", tt.dim, got[0].Mean[tt.dim], tt.want)
			}
			if got[0].Mean[3] != tt.want3 {
				t.Errorf("decoded mean[3] = %v, want %v", got[0].Mean[3], tt.want3)
			}

			// The corrected chain is strictly ascending, so encoding it
			// again is clean and byte-stable.
			c2 := newFixedLspCodec(c.layout)
			w, _ := newTestWriter(t)
			if err := c2.Encode(w, got); err != nil {
				t.Fatalf("re-encode error: %v", err)
			}
			if c2.Corrections() != 0 {
				t.Errorf("re-encode Corrections = %d, want 0", c2.Corrections())
			}
		})
	}
}

func TestFixedLspRejectsZeroDelta(t *testing.T) {
	c := newFixedLspCodec(streamLayout{dim: 12, staticDim: 4, mixtures: 1})
	data := encodeEntry(t, c, lspEntry())
	data[6] = 0 // first delta byte
	r := newTestReader(t, data)
	_, err := c.Decode(r)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("Decode = %v, want ErrInvalidData", err)
	}
	if !strings.Contains(err.Error(), "zero lsp delta in dim 1") {
		t.Errorf("error %q does not locate the zero delta", err)
	}
}

func TestFixedLspScalesSwitchAtLargeOrder(t *testing.T) {
	small := newFixedLspCodec(streamLayout{dim: 39, staticDim: 39, mixtures: 1})
	if small.deltaScale != 2048 || small.gainScale != 1024 || small.dynScale != 4096 {
		t.Errorf("small-order scales = %v/%v/%v, want 2048/1024/4096",
			small.deltaScale, small.gainScale, small.dynScale)
	}
	large := newFixedLspCodec(streamLayout{dim: 120, staticDim: 40, mixtures: 1})
	if large.deltaScale != 1024 || large.gainScale != 512 || large.dynScale != 2048 {
		t.Errorf("large-order scales = %v/%v/%v, want 1024/512/2048",
			large.deltaScale, large.gainScale, large.dynScale)
	}
}

func TestFixedMbeRoundTrip(t *testing.T) {
	entry := func(weight float32) hts.Gaussian {
		return hts.Gaussian{
			Weight:   weight,
			Mean:     []float32{3000.0 / 32768.0, -1200.0 / 32768.0, 500.0 / 32768.0},
			Variance: []float32{float32(1.0 / 9.0), 1.0 / 64.0, 1.0 / 64.0},
		}
	}
	tests := []struct {
		name string
		gs   []hts.Gaussian
	}{
		{"single mixture", []hts.Gaussian{entry(1)}},
		{"two spaces", []hts.Gaussian{entry(0.75), {Weight: 0.25}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fixedMbeCodec{layout: streamLayout{dim: 3, staticDim: 1, mixtures: len(tt.gs)}}
			if c.EntrySize() != 16 {
				t.Fatalf("EntrySize = %d, want 16", c.EntrySize())
			}
			got := decodeEntry(t, c, encodeEntry(t, c, tt.gs))
			sameGaussians(t, got, tt.gs)
		})
	}
}

func TestQuantVarByte(t *testing.T) {
	// A variance too large for the scale floors at wire byte 1 instead
	// of collapsing to an undecodable zero.
	if b := quantVarByte(1e6, 1.0); b != 1 {
		t.Errorf("quantVarByte(1e6, 1) = %d, want 1", b)
	}
	if b := quantVarByte(0.0625, 1.0); b != 4 {
		t.Errorf("quantVarByte(0.0625, 1) = %d, want 4", b)
	}
	if _, err := dequantVarByte(0, 1.0); !errors.Is(err, ErrInvalidData) {
		t.Errorf("dequantVarByte(0) = %v, want ErrInvalidData", err)
	}
	v, err := dequantVarByte(4, 1.0)
	if err != nil {
		t.Fatalf("dequantVarByte error: %v", err)
	}
	if v != 0.0625 {
		t.Errorf("dequantVarByte(4, 1) = %v, want 0.0625", v)
	}
}
