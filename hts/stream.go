package hts

import "fmt"

// StreamEntry is one named run of mixtures in a stream, the in-memory
// form of an MMF macro. Names key the leaf references at write time;
// fonts read back from disk carry resolved offsets instead of names.
type StreamEntry struct {
	Name      string
	Gaussians []Gaussian
}

// Stream holds the physical data of one global stream index.
type Stream struct {
	Index            int
	VectorSize       int // total dimension including dynamic windows
	StaticVectorSize int
	Entries          []StreamEntry
}

// Entry returns the named entry, or nil.
func (s *Stream) Entry(name string) *StreamEntry {
	for i := range s.Entries {
		if s.Entries[i].Name == name {
			return &s.Entries[i]
		}
	}
	return nil
}

// Windows returns the dynamic order implied by the vector sizes.
func (s *Stream) Windows() int {
	if s.StaticVectorSize <= 0 {
		return 0
	}
	return s.VectorSize / s.StaticVectorSize
}

// Validate checks the stream's layout and every entry's dimensions.
// Mixture counts are fixed per model; components are either full
// vectors or the zero-dimension empty space of a multi-space set.
func (s *Stream) Validate(mixtures int) error {
	if s.Index < 0 {
		return fmt.Errorf("stream %d: negative index", s.Index)
	}
	if s.StaticVectorSize <= 0 || s.VectorSize <= 0 || s.VectorSize%s.StaticVectorSize != 0 {
		return fmt.Errorf("stream %d: vector size %d is not a multiple of static size %d",
			s.Index, s.VectorSize, s.StaticVectorSize)
	}
	if len(s.Entries) == 0 {
		return fmt.Errorf("stream %d: no entries", s.Index)
	}
	for i := range s.Entries {
		e := &s.Entries[i]
		if len(e.Gaussians) != mixtures {
			return fmt.Errorf("stream %d entry %d (%s): %d mixtures, want %d",
				s.Index, i, e.Name, len(e.Gaussians), mixtures)
		}
		for m := range e.Gaussians {
			g := &e.Gaussians[m]
			if err := g.Validate(); err != nil {
				return fmt.Errorf("stream %d entry %d (%s) mixture %d: %w", s.Index, i, e.Name, m, err)
			}
			if g.Dim() != 0 && g.Dim() != s.VectorSize {
				return fmt.Errorf("stream %d entry %d (%s) mixture %d: dim %d, want %d or 0",
					s.Index, i, e.Name, m, g.Dim(), s.VectorSize)
			}
		}
	}
	return nil
}
