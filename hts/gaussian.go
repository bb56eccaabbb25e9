package hts

import (
	"fmt"
	"math"
)

// Gaussian is one mixture component. Mean and Variance always have the
// same length; a zero-dimension component is the empty space of a
// multi-space distribution.
type Gaussian struct {
	Weight   float32
	Mean     []float32
	Variance []float32
}

// Dim returns the vector dimension.
func (g *Gaussian) Dim() int { return len(g.Mean) }

// Validate checks the mean/variance dimensions agree.
func (g *Gaussian) Validate() error {
	if len(g.Mean) != len(g.Variance) {
		return fmt.Errorf("gaussian: mean dim %d != variance dim %d", len(g.Mean), len(g.Variance))
	}
	return nil
}

// LinXform is a block-diagonal linear transform with optional mean and
// variance bias vectors. Blocks are square row-major matrices whose edge
// lengths must sum to VecSize.
type LinXform struct {
	VecSize int
	Bias    []float32
	VarBias []float32
	Blocks  [][]float32
}

// BlockSizes returns each block's edge length.
func (x *LinXform) BlockSizes() ([]int, error) {
	sizes := make([]int, len(x.Blocks))
	for i, b := range x.Blocks {
		k := int(math.Sqrt(float64(len(b))))
		if k*k != len(b) {
			return nil, fmt.Errorf("transform block %d: %d values is not a square matrix", i, len(b))
		}
		sizes[i] = k
	}
	return sizes, nil
}

// Validate checks bias lengths and that the blocks cover VecSize.
func (x *LinXform) Validate() error {
	sizes, err := x.BlockSizes()
	if err != nil {
		return err
	}
	total := 0
	for _, k := range sizes {
		total += k
	}
	if total != x.VecSize {
		return fmt.Errorf("transform: blocks cover %d dims, vector size is %d", total, x.VecSize)
	}
	if len(x.Bias) != 0 && len(x.Bias) != x.VecSize {
		return fmt.Errorf("transform: bias dim %d, vector size %d", len(x.Bias), x.VecSize)
	}
	if len(x.VarBias) != 0 && len(x.VarBias) != x.VecSize {
		return fmt.Errorf("transform: variance bias dim %d, vector size %d", len(x.VarBias), x.VecSize)
	}
	return nil
}
