package hts

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// serializable mirror types for the gob archive. The archive is the
// interchange format between a trainer and the font compiler.

type serializedFont struct {
	FileTag          string
	FormatTag        [16]byte
	Version          uint32
	Build            uint32
	LangID           uint16
	ShortPause       bool
	FixedPoint       bool
	SamplesPerSecond uint32
	BitsPerSample    uint32
	SamplePerFrame   uint32
	ReservedSize     uint32
	Questions        serializedQuestionSet
	Models           []serializedModel
}

type serializedQuestionSet struct {
	HasNames  bool
	Questions []serializedQuestion
}

type serializedQuestion struct {
	Feature string
	Oper    uint32
	Codes   []int32
	Name    string
}

type serializedModel struct {
	Type          uint32
	Dist          uint32
	Mixtures      int
	MeanBits      int
	VarBits       int
	NoQuantize    bool
	Phones        []Phone
	StateCount    int
	StreamIndexes []int
	Trees         []serializedTree
	Streams       []serializedStream
	Windows       [][]float32
	HasF0Ext      bool
	PitchShift    float32
	PitchRange    float32
	Xform         serializedXformSet
}

type serializedTree struct {
	Phone string
	State int
	Nodes []serializedNode
}

type serializedNode struct {
	Question int32
	Left     int32
	Right    int32
	LeafName string
	LeafRefs []uint32
}

type serializedStream struct {
	Index            int
	VectorSize       int
	StaticVectorSize int
	Entries          []serializedEntry
}

type serializedEntry struct {
	Name      string
	Gaussians []serializedGaussian
}

type serializedGaussian struct {
	Weight   float32
	Mean     []float32
	Variance []float32
}

type serializedXformSet struct {
	Present    bool
	VecSize    int
	BandWidth  int
	HasBias    bool
	HasVarBias bool
	FixedPoint bool
	BlockSizes []int
	Transforms []serializedXform
}

type serializedXform struct {
	Name    string
	VecSize int
	Bias    []float32
	VarBias []float32
	Blocks  [][]float32
}

// Save serializes the font to w using gob encoding. The string pool and
// derived locations are not part of the archive; they are rebuilt when
// the font is compiled.
func (f *Font) Save(w io.Writer) error {
	sf := serializedFont{
		FileTag:          f.Header.FileTag,
		FormatTag:        [16]byte(f.Header.FormatTag),
		Version:          f.Header.Version,
		Build:            f.Header.Build,
		LangID:           f.Header.LangID,
		ShortPause:       f.Header.ShortPause,
		FixedPoint:       f.Header.FixedPoint,
		SamplesPerSecond: f.Header.SamplesPerSecond,
		BitsPerSample:    f.Header.BitsPerSample,
		SamplePerFrame:   f.Header.SamplePerFrame,
		ReservedSize:     f.Header.ReservedSize,
		Questions:        saveQuestions(f.GlobalQuestions()),
	}
	for _, m := range f.Models {
		sm := serializedModel{
			Type:          uint32(m.Type),
			Dist:          uint32(m.Gaussian.Dist),
			Mixtures:      m.Gaussian.Mixtures,
			MeanBits:      m.Gaussian.MeanBits,
			VarBits:       m.Gaussian.VarBits,
			NoQuantize:    m.Gaussian.NoQuantize,
			StateCount:    m.Forest.StateCount,
			StreamIndexes: m.Forest.StreamIndexes,
		}
		for i := 0; i < m.Forest.Phones.Len(); i++ {
			sm.Phones = append(sm.Phones, m.Forest.Phones.At(i))
		}
		for _, t := range m.Forest.Trees {
			st := serializedTree{Phone: t.Phone, State: t.State}
			for _, n := range t.Nodes {
				st.Nodes = append(st.Nodes, serializedNode{
					Question: n.Question,
					Left:     int32(n.Left),
					Right:    int32(n.Right),
					LeafName: n.LeafName,
					LeafRefs: n.LeafRefs,
				})
			}
			sm.Trees = append(sm.Trees, st)
		}
		for _, s := range m.Streams {
			ss := serializedStream{
				Index:            s.Index,
				VectorSize:       s.VectorSize,
				StaticVectorSize: s.StaticVectorSize,
			}
			for _, e := range s.Entries {
				se := serializedEntry{Name: e.Name}
				for _, g := range e.Gaussians {
					se.Gaussians = append(se.Gaussians, serializedGaussian{
						Weight:   g.Weight,
						Mean:     g.Mean,
						Variance: g.Variance,
					})
				}
				ss.Entries = append(ss.Entries, se)
			}
			sm.Streams = append(sm.Streams, ss)
		}
		if m.Windows != nil {
			sm.Windows = m.Windows.Rows
		}
		if m.F0Ext != nil {
			sm.HasF0Ext = true
			sm.PitchShift = m.F0Ext.PitchShift
			sm.PitchRange = m.F0Ext.PitchRange
		}
		if m.Xform != nil {
			sm.Xform = serializedXformSet{
				Present:    true,
				VecSize:    m.Xform.VecSize,
				BandWidth:  m.Xform.BandWidth,
				HasBias:    m.Xform.HasBias,
				HasVarBias: m.Xform.HasVarBias,
				FixedPoint: m.Xform.FixedPoint,
				BlockSizes: m.Xform.BlockSizes,
			}
			for _, x := range m.Transforms {
				sm.Xform.Transforms = append(sm.Xform.Transforms, serializedXform{
					Name:    x.Name,
					VecSize: x.Xform.VecSize,
					Bias:    x.Xform.Bias,
					VarBias: x.Xform.VarBias,
					Blocks:  x.Xform.Blocks,
				})
			}
		}
		sf.Models = append(sf.Models, sm)
	}
	if err := gob.NewEncoder(w).Encode(sf); err != nil {
		return fmt.Errorf("encode font archive: %w", err)
	}
	return nil
}

// Load reads a gob archive written by Save. Every model's forest shares
// the restored global question set.
func Load(r io.Reader) (*Font, error) {
	var sf serializedFont
	if err := gob.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode font archive: %w", err)
	}
	qs, err := loadQuestions(sf.Questions)
	if err != nil {
		return nil, err
	}
	f := &Font{
		Header: Header{
			FileTag:          sf.FileTag,
			FormatTag:        uuid.UUID(sf.FormatTag),
			Version:          sf.Version,
			Build:            sf.Build,
			LangID:           sf.LangID,
			ShortPause:       sf.ShortPause,
			FixedPoint:       sf.FixedPoint,
			SamplesPerSecond: sf.SamplesPerSecond,
			BitsPerSample:    sf.BitsPerSample,
			SamplePerFrame:   sf.SamplePerFrame,
			ReservedSize:     sf.ReservedSize,
		},
		Questions: qs,
	}
	for mi, sm := range sf.Models {
		phones, err := NewPhoneSet(sm.Phones)
		if err != nil {
			return nil, fmt.Errorf("font archive model %d: %w", mi, err)
		}
		m := &Model{
			Type: ModelType(sm.Type),
			Forest: &Forest{
				Phones:        phones,
				StateCount:    sm.StateCount,
				StreamIndexes: sm.StreamIndexes,
				Questions:     qs,
			},
			Gaussian: GaussianConfig{
				Dist:       DistType(sm.Dist),
				Mixtures:   sm.Mixtures,
				MeanBits:   sm.MeanBits,
				VarBits:    sm.VarBits,
				NoQuantize: sm.NoQuantize,
			},
		}
		for _, st := range sm.Trees {
			t := Tree{Phone: st.Phone, State: st.State}
			for _, n := range st.Nodes {
				t.Nodes = append(t.Nodes, Node{
					Question: n.Question,
					Left:     NodeID(n.Left),
					Right:    NodeID(n.Right),
					LeafName: n.LeafName,
					LeafRefs: n.LeafRefs,
				})
			}
			m.Forest.Trees = append(m.Forest.Trees, t)
		}
		for _, ss := range sm.Streams {
			s := Stream{
				Index:            ss.Index,
				VectorSize:       ss.VectorSize,
				StaticVectorSize: ss.StaticVectorSize,
			}
			for _, se := range ss.Entries {
				e := StreamEntry{Name: se.Name}
				for _, sg := range se.Gaussians {
					e.Gaussians = append(e.Gaussians, Gaussian{
						Weight:   sg.Weight,
						Mean:     sg.Mean,
						Variance: sg.Variance,
					})
				}
				s.Entries = append(s.Entries, e)
			}
			m.Streams = append(m.Streams, s)
		}
		if sm.Windows != nil {
			m.Windows = &WindowSet{Rows: sm.Windows}
		}
		if sm.HasF0Ext {
			m.F0Ext = &F0Extension{PitchShift: sm.PitchShift, PitchRange: sm.PitchRange}
		}
		if sm.Xform.Present {
			m.Xform = &LinXformConfig{
				VecSize:    sm.Xform.VecSize,
				BandWidth:  sm.Xform.BandWidth,
				HasBias:    sm.Xform.HasBias,
				HasVarBias: sm.Xform.HasVarBias,
				FixedPoint: sm.Xform.FixedPoint,
				BlockSizes: sm.Xform.BlockSizes,
			}
			for _, sx := range sm.Xform.Transforms {
				m.Transforms = append(m.Transforms, NamedXform{
					Name: sx.Name,
					Xform: LinXform{
						VecSize: sx.VecSize,
						Bias:    sx.Bias,
						VarBias: sx.VarBias,
						Blocks:  sx.Blocks,
					},
				})
			}
		}
		f.Models = append(f.Models, m)
	}
	return f, nil
}

func saveQuestions(qs *QuestionSet) serializedQuestionSet {
	out := serializedQuestionSet{HasNames: qs.HasNames}
	for i := 0; i < qs.Len(); i++ {
		q := qs.At(i)
		out.Questions = append(out.Questions, serializedQuestion{
			Feature: q.FeatureName,
			Oper:    uint32(q.Oper),
			Codes:   q.CodeValues,
			Name:    q.Name,
		})
	}
	return out
}

func loadQuestions(sq serializedQuestionSet) (*QuestionSet, error) {
	qs := NewQuestionSet()
	for i, q := range sq.Questions {
		idx, err := qs.Add(Question{
			FeatureName: q.Feature,
			Oper:        Oper(q.Oper),
			CodeValues:  q.Codes,
			Name:        q.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("font archive question %d: %w", i, err)
		}
		if idx != i {
			return nil, fmt.Errorf("font archive question %d: duplicate of question %d", i, idx)
		}
	}
	qs.HasNames = sq.HasNames
	return qs, nil
}
