package codec

import (
	"fmt"

	"github.com/ieee0824/voicefont-go/hts"
)

// maxCount caps every on-wire element count before allocation. Counts
// beyond it mean a corrupt or hostile file, not a big font.
const maxCount = 1 << 20

func checkCount(what string, n uint32) error {
	if n > maxCount {
		return fmt.Errorf("%w: %s count %d", ErrInvalidData, what, n)
	}
	return nil
}

// WriteQuestionSection writes the global question section. Feature names and
// question labels go through the string pool; questions reference their
// feature by index into the feature table written here.
func WriteQuestionSection(w *Writer, qs *hts.QuestionSet, pool *hts.StringPool) error {
	hasNames := uint32(0)
	if qs.HasNames {
		hasNames = 1
	}
	if err := w.U32(hasNames); err != nil {
		return err
	}
	feats := qs.Features()
	if err := w.U32(uint32(len(feats))); err != nil {
		return err
	}
	for _, name := range feats {
		if err := w.U32(pool.Intern(name)); err != nil {
			return err
		}
	}
	if err := w.U32(uint32(qs.Len())); err != nil {
		return err
	}
	for i := 0; i < qs.Len(); i++ {
		q := qs.At(i)
		if qs.HasNames {
			if err := w.U32(pool.Intern(q.Name)); err != nil {
				return err
			}
		}
		fi, ok := qs.FeatureIndex(q.FeatureName)
		if !ok {
			return fmt.Errorf("%w: question %d references unknown feature %q",
				ErrInvalidData, i, q.FeatureName)
		}
		if err := w.U32(uint32(fi)); err != nil {
			return err
		}
		if err := w.U32(uint32(q.Oper)); err != nil {
			return err
		}
		if err := w.U32(uint32(len(q.CodeValues))); err != nil {
			return err
		}
		for _, c := range q.CodeValues {
			if err := w.I32(c); err != nil {
				return err
			}
		}
	}
	return w.AssertAligned("question section")
}

// ReadQuestionSection reads the global question section, resolving names
// through the already-loaded string pool.
func ReadQuestionSection(r *Reader, pool *hts.StringPool) (*hts.QuestionSet, error) {
	hasNames, err := r.U32()
	if err != nil {
		return nil, err
	}
	if hasNames > 1 {
		return nil, fmt.Errorf("%w: question name flag %d", ErrInvalidData, hasNames)
	}
	featureCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := checkCount("feature", featureCount); err != nil {
		return nil, err
	}
	features := make([]string, featureCount)
	for i := range features {
		off, err := r.U32()
		if err != nil {
			return nil, err
		}
		if features[i], err = pool.At(off); err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", ErrInvalidData, i, err)
		}
	}
	questionCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := checkCount("question", questionCount); err != nil {
		return nil, err
	}
	qs := hts.NewQuestionSet()
	for i := 0; i < int(questionCount); i++ {
		var q hts.Question
		if hasNames == 1 {
			off, err := r.U32()
			if err != nil {
				return nil, err
			}
			if q.Name, err = pool.At(off); err != nil {
				return nil, fmt.Errorf("%w: question %d name: %v", ErrInvalidData, i, err)
			}
		}
		fi, err := r.U32()
		if err != nil {
			return nil, err
		}
		if fi >= featureCount {
			return nil, fmt.Errorf("%w: question %d references feature %d of %d",
				ErrInvalidData, i, fi, featureCount)
		}
		q.FeatureName = features[fi]
		oper, err := r.U32()
		if err != nil {
			return nil, err
		}
		q.Oper = hts.Oper(oper)
		valueCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		if err := checkCount("code value", valueCount); err != nil {
			return nil, err
		}
		q.CodeValues = make([]int32, valueCount)
		for v := range q.CodeValues {
			if q.CodeValues[v], err = r.I32(); err != nil {
				return nil, err
			}
		}
		idx, err := qs.Add(q)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidData, i, err)
		}
		if idx != i {
			return nil, fmt.Errorf("%w: question %d duplicates question %d", ErrInvalidData, i, idx)
		}
	}
	qs.HasNames = hasNames == 1
	return qs, nil
}
