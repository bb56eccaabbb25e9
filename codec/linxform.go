package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// bandRange returns the stored column range of row j in a k-wide
// block. Values outside the band are dropped on write and restored as
// zero on read.
func bandRange(j, k, bandWidth int) (lo, hi int) {
	lo = j - bandWidth
	if lo < 0 {
		lo = 0
	}
	hi = j + bandWidth
	if hi > k-1 {
		hi = k - 1
	}
	return lo, hi
}

// xformSize returns the fixed byte size of one transform encoded under
// cfg. Leaf references are validated against it.
func xformSize(cfg *hts.LinXformConfig) int {
	n := 0
	if cfg.HasBias {
		n += 4 * cfg.VecSize
	}
	if cfg.HasVarBias {
		n += 4 * cfg.VecSize
	}
	for _, k := range cfg.BlockSizes {
		for j := 0; j < k; j++ {
			lo, hi := bandRange(j, k, cfg.BandWidth)
			n += 4 * (hi - lo + 1)
		}
	}
	return n
}

// encodeXform writes one transform: bias vectors first, then each
// block row restricted to the band around the diagonal.
func encodeXform(w *Writer, x *hts.LinXform, cfg *hts.LinXformConfig) error {
	if cfg.FixedPoint {
		return fmt.Errorf("%w: fixed-point linear transforms", ErrNotSupported)
	}
	if x.VecSize != cfg.VecSize {
		return fmt.Errorf("%w: transform vector size %d, config says %d",
			ErrInvalidData, x.VecSize, cfg.VecSize)
	}
	if (len(x.Bias) > 0) != cfg.HasBias || (len(x.VarBias) > 0) != cfg.HasVarBias {
		return fmt.Errorf("%w: transform bias layout disagrees with config", ErrInvalidData)
	}
	if len(x.Blocks) != len(cfg.BlockSizes) {
		return fmt.Errorf("%w: transform has %d blocks, config says %d",
			ErrInvalidData, len(x.Blocks), len(cfg.BlockSizes))
	}
	for _, v := range x.Bias {
		if err := w.F32(v); err != nil {
			return err
		}
	}
	for _, v := range x.VarBias {
		if err := w.F32(v); err != nil {
			return err
		}
	}
	for b, k := range cfg.BlockSizes {
		block := x.Blocks[b]
		if len(block) != k*k {
			return fmt.Errorf("%w: block %d has %d values, config says %dx%d",
				ErrInvalidData, b, len(block), k, k)
		}
		for j := 0; j < k; j++ {
			lo, hi := bandRange(j, k, cfg.BandWidth)
			for col := lo; col <= hi; col++ {
				if err := w.F32(block[j*k+col]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// decodeXform reads one transform written by encodeXform.
func decodeXform(r *Reader, cfg *hts.LinXformConfig) (hts.LinXform, error) {
	x := hts.LinXform{VecSize: cfg.VecSize}
	var err error
	if cfg.HasBias {
		x.Bias = make([]float32, cfg.VecSize)
		for i := range x.Bias {
			if x.Bias[i], err = r.F32(); err != nil {
				return x, err
			}
		}
	}
	if cfg.HasVarBias {
		x.VarBias = make([]float32, cfg.VecSize)
		for i := range x.VarBias {
			if x.VarBias[i], err = r.F32(); err != nil {
				return x, err
			}
		}
	}
	x.Blocks = make([][]float32, len(cfg.BlockSizes))
	for b, k := range cfg.BlockSizes {
		block := make([]float32, k*k)
		for j := 0; j < k; j++ {
			lo, hi := bandRange(j, k, cfg.BandWidth)
			for col := lo; col <= hi; col++ {
				if block[j*k+col], err = r.F32(); err != nil {
					return x, err
				}
			}
		}
		x.Blocks[b] = block
	}
	return x, nil
}
