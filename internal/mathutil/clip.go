package mathutil

import "math"

// ClipToInt16 rounds v half away from zero and clamps it to the int16 range.
func ClipToInt16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}

// ClipToInt8 rounds v half away from zero and clamps it to the int8 range.
func ClipToInt8(v float64) int8 {
	r := math.Round(v)
	if r > math.MaxInt8 {
		return math.MaxInt8
	}
	if r < math.MinInt8 {
		return math.MinInt8
	}
	return int8(r)
}

// ClipToUint8 rounds v half away from zero and clamps it to the uint8 range.
func ClipToUint8(v float64) uint8 {
	r := math.Round(v)
	if r > math.MaxUint8 {
		return math.MaxUint8
	}
	if r < 0 {
		return 0
	}
	return uint8(r)
}

// InvertVariance returns 1/v with v floored to keep the reciprocal finite.
func InvertVariance(v, floor float32) float32 {
	if v < floor {
		v = floor
	}
	return 1 / v
}
