// Package huffman implements the canonical byte-wise Huffman coder
// used to entropy-code voice font stream payloads. Codebooks are fully
// determined by their code lengths, so a font carries only the 256
// length bytes and both sides rebuild identical codes from them.
package huffman

import (
	"errors"
	"fmt"
	"sort"
)

// MaxCodeLen bounds code lengths. Frequency tables whose optimal tree
// is deeper are flattened until every code fits.
const MaxCodeLen = 32

type code struct {
	bits uint32
	len  uint8
}

// Codebook holds one canonical code assignment over the byte alphabet.
type Codebook struct {
	codes   [256]code
	ordered []byte // symbols sorted by (length, symbol)
	first   [MaxCodeLen + 1]uint32
	count   [MaxCodeLen + 1]int
	base    [MaxCodeLen + 1]int
	maxLen  int
}

// New builds a codebook from byte frequencies. Ties are broken by
// symbol value, so equal frequency tables always produce equal books.
func New(freq *[256]uint64) (*Codebook, error) {
	lengths, err := buildLengths(freq)
	if err != nil {
		return nil, err
	}
	return FromLengths(lengths)
}

// buildLengths computes Huffman code lengths with the two-queue merge.
// Depths beyond MaxCodeLen are handled by halving the frequencies and
// rebuilding, which only skews pathological tables.
func buildLengths(freq *[256]uint64) (*[256]uint8, error) {
	f := *freq
	for {
		lengths, maxLen, err := lengthsOnce(&f)
		if err != nil {
			return nil, err
		}
		if maxLen <= MaxCodeLen {
			return lengths, nil
		}
		for i := range f {
			if f[i] > 0 {
				f[i] = f[i]/2 + 1
			}
		}
	}
}

func lengthsOnce(freq *[256]uint64) (*[256]uint8, int, error) {
	type node struct {
		weight      uint64
		symbol      int // leaf symbol, or -1
		left, right int // indexes into nodes
	}
	var nodes []node
	var leaves []int
	for sym, w := range freq {
		if w == 0 {
			continue
		}
		leaves = append(leaves, len(nodes))
		nodes = append(nodes, node{weight: w, symbol: sym, left: -1, right: -1})
	}
	if len(leaves) == 0 {
		return nil, 0, errors.New("huffman: empty frequency table")
	}
	var lengths [256]uint8
	if len(leaves) == 1 {
		lengths[nodes[0].symbol] = 1
		return &lengths, 1, nil
	}
	sort.Slice(leaves, func(i, j int) bool {
		a, b := nodes[leaves[i]], nodes[leaves[j]]
		if a.weight != b.weight {
			return a.weight < b.weight
		}
		return a.symbol < b.symbol
	})
	var merged []int
	li, mi := 0, 0
	take := func() int {
		// Prefer the leaf queue on ties; both queues are ascending.
		if li < len(leaves) && (mi >= len(merged) || nodes[leaves[li]].weight <= nodes[merged[mi]].weight) {
			li++
			return leaves[li-1]
		}
		mi++
		return merged[mi-1]
	}
	for m := 0; m < len(leaves)-1; m++ {
		a := take()
		b := take()
		merged = append(merged, len(nodes))
		nodes = append(nodes, node{weight: nodes[a].weight + nodes[b].weight, symbol: -1, left: a, right: b})
	}
	root := merged[len(merged)-1]
	maxLen := 0
	type frame struct {
		id, depth int
	}
	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := nodes[fr.id]
		if n.symbol >= 0 {
			lengths[n.symbol] = uint8(fr.depth)
			if fr.depth > maxLen {
				maxLen = fr.depth
			}
			continue
		}
		stack = append(stack, frame{n.left, fr.depth + 1}, frame{n.right, fr.depth + 1})
	}
	return &lengths, maxLen, nil
}

// FromLengths rebuilds the canonical codebook from its code lengths,
// validating completeness. A single code of length one is the legal
// degenerate book of a one-symbol alphabet.
func FromLengths(lengths *[256]uint8) (*Codebook, error) {
	c := &Codebook{}
	used := 0
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		if int(l) > MaxCodeLen {
			return nil, fmt.Errorf("huffman: symbol %#02x has a %d-bit code", sym, l)
		}
		c.codes[sym].len = l
		c.count[l]++
		c.ordered = append(c.ordered, byte(sym))
		if int(l) > c.maxLen {
			c.maxLen = int(l)
		}
		used++
	}
	if used == 0 {
		return nil, errors.New("huffman: empty codebook")
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		a, b := c.ordered[i], c.ordered[j]
		if c.codes[a].len != c.codes[b].len {
			return c.codes[a].len < c.codes[b].len
		}
		return a < b
	})
	// Kraft equality: the lengths must describe a complete prefix tree.
	kraft := uint64(0)
	for l := 1; l <= c.maxLen; l++ {
		kraft += uint64(c.count[l]) << uint(c.maxLen-l)
	}
	if degenerate := used == 1 && c.maxLen == 1; !degenerate && kraft != uint64(1)<<uint(c.maxLen) {
		return nil, errors.New("huffman: code lengths do not form a complete tree")
	}
	next := uint32(0)
	prev := 0
	idx := 0
	for _, sym := range c.ordered {
		l := int(c.codes[sym].len)
		next <<= uint(l - prev)
		if prev != l {
			c.first[l] = next
			c.base[l] = idx
			prev = l
		}
		c.codes[sym].bits = next
		next++
		idx++
	}
	return c, nil
}

// Lengths returns the canonical code lengths, the codebook's wire form.
func (c *Codebook) Lengths() [256]uint8 {
	var out [256]uint8
	for sym := range c.codes {
		out[sym] = c.codes[sym].len
	}
	return out
}

// Encode packs raw bytes into their codes, MSB first, zero-padding the
// final byte.
func (c *Codebook) Encode(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw)/2+1)
	var acc uint64
	var nbits uint
	for i, b := range raw {
		cd := c.codes[b]
		if cd.len == 0 {
			return nil, fmt.Errorf("huffman: byte %#02x at %d has no code", b, i)
		}
		acc = acc<<uint(cd.len) | uint64(cd.bits)
		nbits += uint(cd.len)
		for nbits >= 8 {
			nbits -= 8
			out = append(out, byte(acc>>nbits))
		}
	}
	if nbits > 0 {
		out = append(out, byte(acc<<(8-nbits)))
	}
	return out, nil
}

// Decode unpacks exactly rawLen bytes and rejects trailing set bits.
func (c *Codebook) Decode(enc []byte, rawLen int) ([]byte, error) {
	out := make([]byte, 0, rawLen)
	bits := uint32(0)
	length := 0
	for i, b := range enc {
		for bit := 7; bit >= 0; bit-- {
			if len(out) == rawLen {
				if i != len(enc)-1 || b&byte(1<<uint(bit+1)-1) != 0 {
					return nil, errors.New("huffman: trailing bits after payload")
				}
				return out, nil
			}
			bits = bits<<1 | uint32(b>>uint(bit))&1
			length++
			if length > c.maxLen {
				return nil, fmt.Errorf("huffman: invalid code near byte %d", i)
			}
			if c.count[length] > 0 && bits >= c.first[length] {
				if offset := int(bits - c.first[length]); offset < c.count[length] {
					out = append(out, c.ordered[c.base[length]+int(offset)])
					bits, length = 0, 0
				}
			}
		}
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("huffman: payload ends after %d of %d bytes", len(out), rawLen)
	}
	return out, nil
}
