package hts

import (
	"fmt"
	"math"
)

// WindowSet holds the dynamic-feature regression windows of one model.
// Row 0 is the static window; higher rows hold the regression
// coefficients of increasing order.
type WindowSet struct {
	Rows [][]float32
}

// StandardWindows returns the static/delta/acceleration triple used by
// three-window streams: the width-1 regression windows.
func StandardWindows() *WindowSet {
	return &WindowSet{Rows: [][]float32{
		{1},
		{-0.5, 0, 0.5},
		{0.25, -0.5, 0.25},
	}}
}

// PlaceholderWindows returns the marker set written by fonts whose
// runtime supplies its own windows: a single all-NaN row.
func PlaceholderWindows() *WindowSet {
	return &WindowSet{Rows: [][]float32{{float32(math.NaN())}}}
}

// Order returns the number of windows.
func (w *WindowSet) Order() int { return len(w.Rows) }

// IsPlaceholder reports whether the first row is entirely NaN.
func (w *WindowSet) IsPlaceholder() bool {
	if len(w.Rows) == 0 || len(w.Rows[0]) == 0 {
		return false
	}
	for _, c := range w.Rows[0] {
		if !math.IsNaN(float64(c)) {
			return false
		}
	}
	return true
}

// Validate checks every row is non-empty.
func (w *WindowSet) Validate() error {
	if len(w.Rows) == 0 {
		return fmt.Errorf("window set: no rows")
	}
	for i, row := range w.Rows {
		if len(row) == 0 {
			return fmt.Errorf("window set: row %d is empty", i)
		}
	}
	return nil
}
