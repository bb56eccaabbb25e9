package hts

import (
	"fmt"
	"strconv"
	"strings"
)

// Oper is a question comparison operator. The numeric values are the
// wire encoding.
type Oper uint32

const (
	OperEqual Oper = iota
	OperBelong
	OperGreater
	OperGreaterEqual
	OperLess
	OperLessEqual
)

func (op Oper) String() string {
	switch op {
	case OperEqual:
		return "=="
	case OperBelong:
		return "in"
	case OperGreater:
		return ">"
	case OperGreaterEqual:
		return ">="
	case OperLess:
		return "<"
	case OperLessEqual:
		return "<="
	}
	return fmt.Sprintf("oper(%d)", uint32(op))
}

// RangeUpperBound caps the integer ranges reconstructed for the ordered
// operators.
const RangeUpperBound = 999

// ValueNamer resolves one coded feature value to its readable name.
// Phone and part-of-speech inventories live outside the codec; PhoneSet
// implements the phone side and IntegerNamer covers numeric features.
type ValueNamer interface {
	ValueName(code int32) (string, error)
}

// IntegerNamer renders code values as decimal strings.
type IntegerNamer struct{}

// ValueName implements ValueNamer.
func (IntegerNamer) ValueName(code int32) (string, error) {
	return strconv.Itoa(int(code)), nil
}

// Question matches one linguistic feature against a coded value set.
// CodeValues is the wire form; the readable form is derived on demand
// via ValueSet. The ordered operators carry a single threshold value.
type Question struct {
	FeatureName string
	Oper        Oper
	CodeValues  []int32
	Name        string // optional question label
}

// Validate checks the operator's structural constraints.
func (q *Question) Validate() error {
	if q.FeatureName == "" {
		return fmt.Errorf("question %q: empty feature name", q.Name)
	}
	if len(q.CodeValues) == 0 {
		return fmt.Errorf("question on %s: empty code value set", q.FeatureName)
	}
	switch q.Oper {
	case OperEqual:
		if len(q.CodeValues) != 1 {
			return fmt.Errorf("question on %s: operator == requires exactly one code value, got %d",
				q.FeatureName, len(q.CodeValues))
		}
	case OperBelong:
	case OperGreater, OperGreaterEqual, OperLess, OperLessEqual:
		if len(q.CodeValues) != 1 {
			return fmt.Errorf("question on %s: operator %s requires exactly one threshold, got %d",
				q.FeatureName, q.Oper, len(q.CodeValues))
		}
	default:
		return fmt.Errorf("question on %s: unknown operator %d", q.FeatureName, uint32(q.Oper))
	}
	return nil
}

// Range returns the inclusive integer range matched by an ordered
// operator question: [0,v) for <, [0,v] for <=, (v,999] for > and
// [v,999] for >=.
func (q *Question) Range() (lo, hi int32, err error) {
	if err := q.Validate(); err != nil {
		return 0, 0, err
	}
	v := q.CodeValues[0]
	switch q.Oper {
	case OperLess:
		return 0, v - 1, nil
	case OperLessEqual:
		return 0, v, nil
	case OperGreater:
		return v + 1, RangeUpperBound, nil
	case OperGreaterEqual:
		return v, RangeUpperBound, nil
	}
	return 0, 0, fmt.Errorf("question on %s: operator %s has no range form", q.FeatureName, q.Oper)
}

// ValueSet expands the question into its readable value list: the coded
// members for == and in, the full integer range for the ordered
// operators.
func (q *Question) ValueSet(names ValueNamer) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch q.Oper {
	case OperEqual, OperBelong:
		out := make([]string, len(q.CodeValues))
		for i, c := range q.CodeValues {
			s, err := names.ValueName(c)
			if err != nil {
				return nil, fmt.Errorf("question on %s: %w", q.FeatureName, err)
			}
			out[i] = s
		}
		return out, nil
	}
	lo, hi, err := q.Range()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, hi-lo+1)
	for c := lo; c <= hi; c++ {
		s, err := names.ValueName(c)
		if err != nil {
			return nil, fmt.Errorf("question on %s: %w", q.FeatureName, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// key is the dedup identity: feature, operator and code values.
func (q *Question) key() string {
	var b strings.Builder
	b.WriteString(q.FeatureName)
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(uint64(q.Oper), 10))
	for _, c := range q.CodeValues {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(int64(c), 10))
	}
	return b.String()
}

// QuestionSet is a deduplicated, ordered question list shared by every
// model in one font. Trees reference questions by index into this list,
// so a set instance must be shared, never copied per model.
type QuestionSet struct {
	HasNames bool // whether question labels go on the wire

	questions []Question
	features  []string
	byKey     map[string]int
	featIndex map[string]int
}

// NewQuestionSet returns an empty set.
func NewQuestionSet() *QuestionSet {
	return &QuestionSet{
		byKey:     make(map[string]int),
		featIndex: make(map[string]int),
	}
}

// Add interns q and returns its index. Structurally equal questions
// (feature, operator, code values) share one index; the first added
// name wins.
func (s *QuestionSet) Add(q Question) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if i, ok := s.byKey[q.key()]; ok {
		return i, nil
	}
	if _, ok := s.featIndex[q.FeatureName]; !ok {
		s.featIndex[q.FeatureName] = len(s.features)
		s.features = append(s.features, q.FeatureName)
	}
	i := len(s.questions)
	s.questions = append(s.questions, q)
	s.byKey[q.key()] = i
	if q.Name != "" {
		s.HasNames = true
	}
	return i, nil
}

// Len returns the number of questions.
func (s *QuestionSet) Len() int { return len(s.questions) }

// At returns the i-th question.
func (s *QuestionSet) At(i int) Question { return s.questions[i] }

// Index returns the index of a structurally equal question.
func (s *QuestionSet) Index(q Question) (int, bool) {
	i, ok := s.byKey[q.key()]
	return i, ok
}

// Features returns the feature names in first-use order.
func (s *QuestionSet) Features() []string { return s.features }

// FeatureIndex returns the position of a feature name in Features.
func (s *QuestionSet) FeatureIndex(name string) (int, bool) {
	i, ok := s.featIndex[name]
	return i, ok
}

// ContainsAll reports whether every question of other is present in s.
// The first missing question is described in the returned error.
func (s *QuestionSet) ContainsAll(other *QuestionSet) error {
	if other == nil {
		return nil
	}
	for i := 0; i < other.Len(); i++ {
		q := other.At(i)
		if _, ok := s.byKey[q.key()]; !ok {
			return fmt.Errorf("question %s %s %v is missing", q.FeatureName, q.Oper, q.CodeValues)
		}
	}
	return nil
}

// EqualSets reports whether s and other hold the same questions,
// ignoring order and names.
func (s *QuestionSet) EqualSets(other *QuestionSet) error {
	ol := 0
	if other != nil {
		ol = other.Len()
	}
	if s.Len() != ol {
		return fmt.Errorf("%d questions vs %d", s.Len(), ol)
	}
	return s.ContainsAll(other)
}
