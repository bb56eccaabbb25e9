package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ieee0824/voicefont-go/hts"
)

func TestRollingCipherInvolution(t *testing.T) {
	orig := []byte("C-Phone\x00a\x00")
	buf := make([]byte, len(orig))
	copy(buf, orig)

	c := RollingCipher{Seed: 1}
	c.Apply(buf)
	// First keystream byte for seed 1 is 0x3C.
	if buf[0] != orig[0]^0x3C {
		t.Errorf("enciphered byte 0 = %#02x, want %#02x", buf[0], orig[0]^0x3C)
	}
	if bytes.Equal(buf, orig) {
		t.Error("cipher left the blob unchanged")
	}
	c.Apply(buf)
	if !bytes.Equal(buf, orig) {
		t.Errorf("double apply = %q, want %q", buf, orig)
	}
}

func TestStringPoolRoundTrip(t *testing.T) {
	pool := hts.NewStringPool()
	phone := pool.Intern("C-Phone")
	a := pool.Intern("a")
	if dup := pool.Intern("C-Phone"); dup != phone {
		t.Fatalf("Intern duplicate = %d, want %d", dup, phone)
	}

	cipher := RollingCipher{Seed: 7}
	w, mf := newTestWriter(t)
	if err := WriteStringPoolSection(w, pool, cipher); err != nil {
		t.Fatalf("WriteStringPoolSection error: %v", err)
	}
	if len(mf.Bytes())%4 != 0 {
		t.Errorf("section size %d not aligned", len(mf.Bytes()))
	}
	if bytes.Contains(mf.Bytes(), []byte("C-Phone")) {
		t.Error("enciphered section leaks the plain text")
	}

	r := newTestReader(t, mf.Bytes())
	got, err := ReadStringPoolSection(r, cipher)
	if err != nil {
		t.Fatalf("ReadStringPoolSection error: %v", err)
	}
	if s, err := got.At(phone); err != nil || s != "C-Phone" {
		t.Errorf("At(%d) = %q, %v, want C-Phone", phone, s, err)
	}
	if s, err := got.At(a); err != nil || s != "a" {
		t.Errorf("At(%d) = %q, %v, want a", a, s, err)
	}
}

func TestStringPoolPlainWhenUnciphered(t *testing.T) {
	pool := hts.NewStringPool()
	pool.Intern("C-Phone")
	w, mf := newTestWriter(t)
	if err := WriteStringPoolSection(w, pool, NopCipher{}); err != nil {
		t.Fatalf("WriteStringPoolSection error: %v", err)
	}
	if !bytes.Contains(mf.Bytes(), []byte("C-Phone")) {
		t.Error("unciphered section does not carry the plain text")
	}
}

func TestReadStringPoolRejectsOversizedBlob(t *testing.T) {
	w, mf := newTestWriter(t)
	if err := w.U32(maxPoolBytes + 1); err != nil {
		t.Fatalf("U32 error: %v", err)
	}
	r := newTestReader(t, mf.Bytes())
	if _, err := ReadStringPoolSection(r, NopCipher{}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("ReadStringPoolSection = %v, want ErrInvalidData", err)
	}
}

func TestReadStringPoolRejectsUnterminatedBlob(t *testing.T) {
	data := []byte{3, 0, 0, 0, 'a', 'b', 'c', 0}
	r := newTestReader(t, data)
	if _, err := ReadStringPoolSection(r, NopCipher{}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("ReadStringPoolSection = %v, want ErrInvalidData", err)
	}
}
