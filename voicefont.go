// Package voicefont compiles trained voice fonts into their binary
// distribution format and reads them back.
package voicefont

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
)

// Compiler is the top-level font compiler.
type Compiler struct {
	Codec      codec.Options // serialization policy for writes and reads
	SelfCheck  bool          // cross-check every compile against a re-serialization
	StrictData bool          // Verify compares parameter values, not just structure
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCipher sets the string pool cipher.
func WithCipher(c codec.Cipher) Option {
	return func(cp *Compiler) {
		cp.Codec.Cipher = c
	}
}

// WithCompression enables or disables stream payload compression.
func WithCompression(enabled bool) Option {
	return func(cp *Compiler) {
		cp.Codec.Compress = enabled
	}
}

// WithPhones sets the inventory used to restore phone labels on read.
func WithPhones(ps *hts.PhoneSet) Option {
	return func(cp *Compiler) {
		cp.Codec.Phones = ps
	}
}

// WithSelfCheck enables a serialize-twice consistency check after
// every compile.
func WithSelfCheck(enabled bool) Option {
	return func(cp *Compiler) {
		cp.SelfCheck = enabled
	}
}

// WithStrictData makes Verify require bit-exact parameter values.
// Quantized fonts cannot pass a strict verify.
func WithStrictData(enabled bool) Option {
	return func(cp *Compiler) {
		cp.StrictData = enabled
	}
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile writes the font to ws.
func (c *Compiler) Compile(ws io.WriteSeeker, f *hts.Font) (*codec.WriteResult, error) {
	res, err := codec.WriteFont(ws, f, c.Codec)
	if err != nil {
		return nil, err
	}
	if c.SelfCheck {
		if err := codec.ValidateCrossSerialization(f, c.Codec); err != nil {
			return nil, fmt.Errorf("self check: %w", err)
		}
	}
	return res, nil
}

// CompileFile writes the font to a file.
func (c *Compiler) CompileFile(path string, f *hts.Font) (*codec.WriteResult, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create font: %w", err)
	}
	res, err := c.Compile(out, f)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close font: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return res, nil
}

// Open reads a font from rs.
func (c *Compiler) Open(rs io.ReadSeeker) (*hts.Font, error) {
	return codec.ReadFont(rs, c.Codec)
}

// OpenFile reads a font from a file.
func (c *Compiler) OpenFile(path string) (*hts.Font, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open font: %w", err)
	}
	defer in.Close()
	return c.Open(in)
}

// Verify compiles the font to memory, reads it back, and checks that
// serialization is stable and nothing structural was lost. With
// StrictData the read-back parameter values must also match the input
// bit for bit.
func (c *Compiler) Verify(f *hts.Font) error {
	if err := codec.ValidateCrossSerialization(f, c.Codec); err != nil {
		return err
	}
	mem := codec.NewMemFile()
	if _, err := codec.WriteFont(mem, f, c.Codec); err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	read, err := codec.ReadFont(bytes.NewReader(mem.Bytes()), c.Codec)
	if err != nil {
		return fmt.Errorf("deserialize: %w", err)
	}
	return codec.CompareFonts(f, read, codec.CheckOptions{CompareData: c.StrictData})
}
