package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/pst"
)

type phoneFile struct {
	Phones []phoneEntry `yaml:"phones"`
}

type phoneEntry struct {
	Label    string `yaml:"label"`
	ID       int32  `yaml:"id"`
	Wildcard bool   `yaml:"wildcard"`
}

// LoadPhones reads a YAML phone inventory. Labels and ids must be
// unique; fields the schema does not know are rejected.
func LoadPhones(path string) (*hts.PhoneSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var pf phoneFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("phone inventory %s: %w", path, err)
	}
	if len(pf.Phones) == 0 {
		return nil, fmt.Errorf("phone inventory %s: no phones", path)
	}
	phones := make([]hts.Phone, len(pf.Phones))
	for i, e := range pf.Phones {
		phones[i] = hts.Phone{Label: e.Label, ID: e.ID, Wildcard: e.Wildcard}
	}
	set, err := hts.NewPhoneSet(phones)
	if err != nil {
		return nil, fmt.Errorf("phone inventory %s: %w", path, err)
	}
	return set, nil
}

type groupFile struct {
	Groups []groupEntry `yaml:"groups"`
}

type groupEntry struct {
	Name    string   `yaml:"name"`
	Members []uint32 `yaml:"members"`
}

// LoadGroups reads YAML candidate groups for a preselection build.
// Members may be listed in any order and come back ascending; a
// repeated member is an error.
func LoadGroups(path string) ([]pst.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var gf groupFile
	if err := dec.Decode(&gf); err != nil {
		return nil, fmt.Errorf("candidate groups %s: %w", path, err)
	}
	if len(gf.Groups) == 0 {
		return nil, fmt.Errorf("candidate groups %s: no groups", path)
	}
	groups := make([]pst.Group, len(gf.Groups))
	for i, e := range gf.Groups {
		members := append([]uint32(nil), e.Members...)
		sort.Slice(members, func(a, b int) bool { return members[a] < members[b] })
		for j := 1; j < len(members); j++ {
			if members[j] == members[j-1] {
				return nil, fmt.Errorf("candidate groups %s: group %q repeats member %d",
					path, e.Name, members[j])
			}
		}
		groups[i] = pst.Group{Name: e.Name, Members: members}
	}
	return groups, nil
}
