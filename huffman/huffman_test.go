package huffman

import (
	"bytes"
	"strings"
	"testing"
)

// freqOf counts byte frequencies of s.
func freqOf(s string) *[256]uint64 {
	var freq [256]uint64
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	return &freq
}

func TestNewAssignsCanonicalLengths(t *testing.T) {
	book, err := New(freqOf("cacb"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	lengths := book.Lengths()
	want := map[byte]uint8{'a': 2, 'b': 2, 'c': 1}
	for sym, l := range lengths {
		if l != want[byte(sym)] {
			t.Errorf("length[%q] = %d, want %d", byte(sym), l, want[byte(sym)])
		}
	}
}

func TestEncodePacksMSBFirst(t *testing.T) {
	book, err := New(freqOf("cacb"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	enc, err := book.Encode([]byte("cacb"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(enc, []byte{0x4C}) {
		t.Errorf("Encode = %#02x, want [0x4c]", enc)
	}

	got, err := book.Decode(enc, 4)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if string(got) != "cacb" {
		t.Errorf("Decode = %q, want cacb", got)
	}
}

func TestEncodeRejectsUncodedByte(t *testing.T) {
	book, err := New(freqOf("cacb"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	_, err = book.Encode([]byte("cash"))
	if err == nil || !strings.Contains(err.Error(), "has no code") {
		t.Errorf("Encode = %v, want the uncoded byte named", err)
	}
}

func TestRoundTripBinaryPayload(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i * i % 251)
	}
	var freq [256]uint64
	for _, b := range raw {
		freq[b]++
	}
	book, err := New(&freq)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	enc, err := book.Encode(raw)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := book.Decode(enc, len(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Error("decoded payload differs from input")
	}
}

func TestSingleSymbolAlphabet(t *testing.T) {
	book, err := New(freqOf("zzz"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	enc, err := book.Encode([]byte("zzz"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(enc, []byte{0x00}) {
		t.Errorf("Encode = %#02x, want [0x00]", enc)
	}
	got, err := book.Decode(enc, 3)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if string(got) != "zzz" {
		t.Errorf("Decode = %q, want zzz", got)
	}
}

func TestDeepTreesAreFlattened(t *testing.T) {
	// Fibonacci weights force a fully skewed optimal tree, deeper than
	// MaxCodeLen for 40 symbols.
	var freq [256]uint64
	a, b := uint64(1), uint64(1)
	for sym := 0; sym < 40; sym++ {
		freq[sym] = a
		a, b = b, a+b
	}
	book, err := New(&freq)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	lengths := book.Lengths()
	for sym := 0; sym < 40; sym++ {
		if lengths[sym] == 0 {
			t.Errorf("symbol %d lost its code", sym)
		}
		if lengths[sym] > MaxCodeLen {
			t.Errorf("length[%d] = %d, over the cap", sym, lengths[sym])
		}
	}

	raw := []byte{0, 1, 2, 39, 39, 39, 5}
	enc, err := book.Encode(raw)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := book.Decode(enc, len(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Decode = %v, want %v", got, raw)
	}
}

func TestFromLengthsRebuildsIdenticalCodes(t *testing.T) {
	freq := freqOf("the quick brown fox jumps over the lazy dog")
	book, err := New(freq)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	lengths := book.Lengths()
	rebuilt, err := FromLengths(&lengths)
	if err != nil {
		t.Fatalf("FromLengths error: %v", err)
	}
	raw := []byte("jumps over the dog")
	want, err := book.Encode(raw)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := rebuilt.Encode(raw)
	if err != nil {
		t.Fatalf("rebuilt Encode error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("rebuilt encoding = %#02x, want %#02x", got, want)
	}
}

func TestFromLengthsRejectsBrokenTables(t *testing.T) {
	tests := []struct {
		name    string
		lengths func() *[256]uint8
		want    string
	}{
		{
			"empty",
			func() *[256]uint8 { return &[256]uint8{} },
			"empty codebook",
		},
		{
			"incomplete",
			func() *[256]uint8 {
				var l [256]uint8
				l['a'] = 2
				return &l
			},
			"complete tree",
		},
		{
			"overfull",
			func() *[256]uint8 {
				var l [256]uint8
				l['a'], l['b'], l['c'] = 1, 1, 1
				return &l
			},
			"complete tree",
		},
		{
			"over cap",
			func() *[256]uint8 {
				var l [256]uint8
				l['a'] = MaxCodeLen + 1
				return &l
			},
			"33-bit code",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLengths(tt.lengths())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("FromLengths = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNewRejectsEmptyTable(t *testing.T) {
	var freq [256]uint64
	if _, err := New(&freq); err == nil {
		t.Error("New accepted an empty frequency table")
	}
}

func TestDecodeRejectsTrailingBits(t *testing.T) {
	book, err := New(freqOf("cacb"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := book.Decode([]byte{0x4D}, 4); err == nil {
		t.Error("Decode accepted set padding bits")
	}
	if _, err := book.Decode([]byte{0x4C, 0x00}, 4); err == nil {
		t.Error("Decode accepted a trailing byte")
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	book, err := New(freqOf("cacb"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	_, err = book.Decode([]byte{0x4C}, 7)
	if err == nil || !strings.Contains(err.Error(), "payload ends") {
		t.Errorf("Decode = %v, want the short payload named", err)
	}
}
