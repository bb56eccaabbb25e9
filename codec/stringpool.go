package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// Cipher obfuscates the string pool blob in place. Apply must be an
// involution so the same cipher serves both directions.
type Cipher interface {
	Apply(b []byte)
}

// NopCipher leaves the blob untouched.
type NopCipher struct{}

// Apply implements Cipher.
func (NopCipher) Apply(b []byte) {}

// RollingCipher XORs the blob with a keystream from a linear
// congruential generator. XOR makes it self-inverse.
type RollingCipher struct {
	Seed uint32
}

// Apply implements Cipher.
func (c RollingCipher) Apply(b []byte) {
	x := c.Seed
	for i := range b {
		x = x*1664525 + 1013904223
		b[i] ^= byte(x >> 24)
	}
}

// WriteStringPoolSection writes the length-prefixed, enciphered pool blob.
func WriteStringPoolSection(w *Writer, pool *hts.StringPool, cipher Cipher) error {
	blob := pool.Bytes()
	if err := w.U32(uint32(len(blob))); err != nil {
		return err
	}
	enc := make([]byte, len(blob))
	copy(enc, blob)
	cipher.Apply(enc)
	if err := w.Bytes(enc); err != nil {
		return err
	}
	if err := w.Pad4(); err != nil {
		return err
	}
	return w.AssertAligned("string pool section")
}

// maxPoolBytes bounds the string pool blob.
const maxPoolBytes = 1 << 26

// ReadStringPoolSection reads and deciphers the pool blob.
func ReadStringPoolSection(r *Reader, cipher Cipher) (*hts.StringPool, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if n > maxPoolBytes {
		return nil, fmt.Errorf("%w: string pool of %d bytes", ErrInvalidData, n)
	}
	blob := make([]byte, n)
	if err := r.Bytes(blob); err != nil {
		return nil, err
	}
	cipher.Apply(blob)
	if err := r.SkipPad4(); err != nil {
		return nil, err
	}
	pool, err := hts.PoolFromBytes(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return pool, nil
}
