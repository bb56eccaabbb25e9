package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

const (
	maxWindowRows  = 64
	maxWindowWidth = 1024
)

// writeWindows writes the regression window block of a model header.
// A placeholder set (all-NaN first row) collapses to a single zero
// marker; the loading runtime then supplies its own windows.
func writeWindows(w *Writer, ws *hts.WindowSet) error {
	if ws.IsPlaceholder() {
		return w.U32(0)
	}
	if err := w.U32(uint32(len(ws.Rows))); err != nil {
		return err
	}
	for _, row := range ws.Rows {
		if err := w.U32(uint32(len(row))); err != nil {
			return err
		}
		for _, c := range row {
			if err := w.F32(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// readWindows reads the regression window block.
func readWindows(r *Reader) (*hts.WindowSet, error) {
	rowCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if rowCount == 0 {
		return hts.PlaceholderWindows(), nil
	}
	if rowCount > maxWindowRows {
		return nil, fmt.Errorf("%w: %d window rows", ErrInvalidData, rowCount)
	}
	ws := &hts.WindowSet{Rows: make([][]float32, rowCount)}
	for i := range ws.Rows {
		width, err := r.U32()
		if err != nil {
			return nil, err
		}
		if width == 0 || width > maxWindowWidth {
			return nil, fmt.Errorf("%w: window row %d has %d coefficients", ErrInvalidData, i, width)
		}
		row := make([]float32, width)
		for j := range row {
			if row[j], err = r.F32(); err != nil {
				return nil, err
			}
		}
		ws.Rows[i] = row
	}
	return ws, nil
}
