package hts

import (
	"bytes"
	"fmt"
)

// StringPool interns strings into one append-only blob. Offsets into
// the blob are the wire representation of every name reference.
type StringPool struct {
	buf     []byte
	offsets map[string]uint32
}

// NewStringPool returns an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{offsets: make(map[string]uint32)}
}

// PoolFromBytes reconstructs a pool from its raw blob of NUL-terminated
// strings.
func PoolFromBytes(b []byte) (*StringPool, error) {
	p := NewStringPool()
	p.buf = b
	off := 0
	for off < len(b) {
		end := bytes.IndexByte(b[off:], 0)
		if end < 0 {
			return nil, fmt.Errorf("string pool: unterminated string at offset %d", off)
		}
		s := string(b[off : off+end])
		if _, ok := p.offsets[s]; !ok {
			p.offsets[s] = uint32(off)
		}
		off += end + 1
	}
	return p, nil
}

// Intern appends s (NUL-terminated) on first use and returns its offset.
func (p *StringPool) Intern(s string) uint32 {
	if off, ok := p.offsets[s]; ok {
		return off
	}
	off := uint32(len(p.buf))
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
	p.offsets[s] = off
	return off
}

// At returns the string starting at off.
func (p *StringPool) At(off uint32) (string, error) {
	if int(off) >= len(p.buf) {
		return "", fmt.Errorf("string pool: offset %d past %d bytes", off, len(p.buf))
	}
	end := bytes.IndexByte(p.buf[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("string pool: unterminated string at offset %d", off)
	}
	return string(p.buf[off : int(off)+end]), nil
}

// Bytes returns the raw pool blob.
func (p *StringPool) Bytes() []byte { return p.buf }

// Len returns the blob length in bytes.
func (p *StringPool) Len() int { return len(p.buf) }
