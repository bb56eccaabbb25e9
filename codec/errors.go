// Package codec reads and writes the compiled voice font format: a
// single little-endian stream holding the global question section, the
// model set (per-model header, decision forest and quantized stream
// data), the string pool and an optional compression codebook. Every
// section is 4-byte aligned and addressed through offset/length pairs
// that are back-patched after the variable-length payload is written.
package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidData marks structurally corrupt input: bad tags,
	// impossible counts, unresolved offsets, zero-length mixtures.
	ErrInvalidData = errors.New("invalid font data")

	// ErrNotSupported marks configurations the format cannot carry,
	// detected before any bytes are written.
	ErrNotSupported = errors.New("unsupported font configuration")

	// ErrMismatch marks a consistency-check failure between two fonts.
	ErrMismatch = errors.New("font data mismatch")

	// ErrMisaligned marks a section or record that missed the 4-byte
	// alignment the memory-mapped runtime loader requires.
	ErrMisaligned = errors.New("misaligned section")
)

// MismatchError describes one consistency-check failure: the field that
// differs and, when the field is a list, the offending index.
type MismatchError struct {
	Field  string
	Index  int // -1 when the field is not a list
	Detail string
}

func (e *MismatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("mismatch in %s[%d]: %s", e.Field, e.Index, e.Detail)
	}
	return fmt.Sprintf("mismatch in %s: %s", e.Field, e.Detail)
}

// Is reports ErrMismatch as the sentinel for errors.Is.
func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

// mismatchf builds a MismatchError for a scalar field.
func mismatchf(field, format string, args ...any) error {
	return &MismatchError{Field: field, Index: -1, Detail: fmt.Sprintf(format, args...)}
}

// mismatchAt builds a MismatchError for one list element.
func mismatchAt(field string, index int, format string, args ...any) error {
	return &MismatchError{Field: field, Index: index, Detail: fmt.Sprintf(format, args...)}
}
