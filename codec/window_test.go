package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ieee0824/voicefont-go/hts"
)

func TestWindowRoundTrip(t *testing.T) {
	ws := hts.StandardWindows()
	w, mf := newTestWriter(t)
	if err := writeWindows(w, ws); err != nil {
		t.Fatalf("writeWindows error: %v", err)
	}

	got, err := readWindows(newTestReader(t, mf.Bytes()))
	if err != nil {
		t.Fatalf("readWindows error: %v", err)
	}
	if !reflect.DeepEqual(got.Rows, ws.Rows) {
		t.Errorf("rows = %v, want %v", got.Rows, ws.Rows)
	}
}

func TestWindowPlaceholderCollapsesToMarker(t *testing.T) {
	w, mf := newTestWriter(t)
	if err := writeWindows(w, hts.PlaceholderWindows()); err != nil {
		t.Fatalf("writeWindows error: %v", err)
	}
	if want := []byte{0, 0, 0, 0}; !reflect.DeepEqual(mf.Bytes(), want) {
		t.Fatalf("wire form = %v, want the single zero marker", mf.Bytes())
	}

	got, err := readWindows(newTestReader(t, mf.Bytes()))
	if err != nil {
		t.Fatalf("readWindows error: %v", err)
	}
	if !got.IsPlaceholder() {
		t.Errorf("rows = %v, want the placeholder back", got.Rows)
	}
}

func TestReadWindowsCorruption(t *testing.T) {
	tests := []struct {
		name string
		vals []uint32
		want string
	}{
		{name: "row count over cap", vals: []uint32{65}, want: "65 window rows"},
		{name: "empty row", vals: []uint32{1, 0}, want: "window row 0 has 0 coefficients"},
		{name: "row width over cap", vals: []uint32{1, 2000}, want: "window row 0 has 2000 coefficients"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, mf := newTestWriter(t)
			mustU32(t, w, tt.vals...)
			_, err := readWindows(newTestReader(t, mf.Bytes()))
			if err == nil {
				t.Fatal("readWindows accepted corrupt bytes")
			}
			if !errors.Is(err, ErrInvalidData) {
				t.Errorf("error = %v, want ErrInvalidData", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
