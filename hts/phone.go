package hts

import "fmt"

// Phone is one entry of a font's phone inventory.
type Phone struct {
	Label    string
	ID       int32
	Wildcard bool // context-free phones such as silence
}

// PhoneSet is an ordered phone inventory. Definition order is the wire
// order: the forest index lists phones in this order.
type PhoneSet struct {
	phones  []Phone
	byLabel map[string]int
	byID    map[int32]int
}

// NewPhoneSet builds an inventory from phones in definition order.
// Duplicate labels and duplicate ids are rejected.
func NewPhoneSet(phones []Phone) (*PhoneSet, error) {
	ps := &PhoneSet{
		phones:  make([]Phone, len(phones)),
		byLabel: make(map[string]int, len(phones)),
		byID:    make(map[int32]int, len(phones)),
	}
	for i, p := range phones {
		if p.Label == "" {
			return nil, fmt.Errorf("phone %d: empty label", i)
		}
		if _, ok := ps.byLabel[p.Label]; ok {
			return nil, fmt.Errorf("phone %q: duplicate label", p.Label)
		}
		if j, ok := ps.byID[p.ID]; ok {
			return nil, fmt.Errorf("phone %q: id %d already used by %q", p.Label, p.ID, ps.phones[j].Label)
		}
		ps.phones[i] = p
		ps.byLabel[p.Label] = i
		ps.byID[p.ID] = i
	}
	return ps, nil
}

// Len returns the number of phones.
func (ps *PhoneSet) Len() int { return len(ps.phones) }

// At returns the i-th phone in definition order.
func (ps *PhoneSet) At(i int) Phone { return ps.phones[i] }

// Lookup returns the phone with the given label.
func (ps *PhoneSet) Lookup(label string) (Phone, bool) {
	i, ok := ps.byLabel[label]
	if !ok {
		return Phone{}, false
	}
	return ps.phones[i], true
}

// ByID returns the phone with the given wire id.
func (ps *PhoneSet) ByID(id int32) (Phone, bool) {
	i, ok := ps.byID[id]
	if !ok {
		return Phone{}, false
	}
	return ps.phones[i], true
}

// ValueName resolves a phone feature code to its label, so a PhoneSet
// can expand phone-valued questions.
func (ps *PhoneSet) ValueName(code int32) (string, error) {
	p, ok := ps.ByID(code)
	if !ok {
		return "", fmt.Errorf("no phone with id %d", code)
	}
	return p.Label, nil
}

// TreeName returns the display name of the decision tree for a phone and
// emitting state. Context phones use the triphone wildcard form
// "{*-a+*}[2]", wildcard phones the bare form "{sil}[2]". The printed
// state index is 2-based, matching the HTK numbering where state 2 is
// the first emitting state.
func TreeName(p Phone, state int) string {
	if p.Wildcard {
		return fmt.Sprintf("{%s}[%d]", p.Label, state+2)
	}
	return fmt.Sprintf("{*-%s+*}[%d]", p.Label, state+2)
}
