// Package manifest loads the build-time configuration of a font
// compile: a TOML manifest for header fields and output policy, plus
// YAML side files for the phone inventory and preselection candidate
// groups.
package manifest

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
)

// Manifest describes one font build. Zero audio fields take the
// classic 16 kHz narrowband defaults.
type Manifest struct {
	Font   FontSection   `toml:"font"`
	Audio  AudioSection  `toml:"audio"`
	Output OutputSection `toml:"output"`
}

// FontSection carries the header identity fields.
type FontSection struct {
	// Tag selects the container kind, "APM " or "ATM ".
	Tag string `toml:"tag"`
	// FormatTag optionally overrides the tag's default format GUID.
	FormatTag  string `toml:"format_tag"`
	Build      uint32 `toml:"build"`
	LangID     uint16 `toml:"lang_id"`
	ShortPause bool   `toml:"short_pause"`
	FixedPoint bool   `toml:"fixed_point"`
}

// AudioSection carries the synthesis frame geometry.
type AudioSection struct {
	SamplesPerSecond uint32 `toml:"samples_per_second"`
	BitsPerSample    uint32 `toml:"bits_per_sample"`
	SamplesPerFrame  uint32 `toml:"samples_per_frame"`
}

// OutputSection carries the serialization policy.
type OutputSection struct {
	Compress bool `toml:"compress"`
	// CipherSeed keys the string pool cipher. Zero leaves the pool in
	// plaintext.
	CipherSeed uint32 `toml:"cipher_seed"`
}

// Load reads and validates a TOML manifest. Keys the schema does not
// know are rejected.
func Load(path string) (*Manifest, error) {
	m := &Manifest{}
	meta, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest %s: unknown key %q", path, undecoded[0].String())
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Font.Tag == "" {
		m.Font.Tag = hts.TagAPM
	}
	if m.Audio.SamplesPerSecond == 0 {
		m.Audio.SamplesPerSecond = 16000
	}
	if m.Audio.BitsPerSample == 0 {
		m.Audio.BitsPerSample = 16
	}
	if m.Audio.SamplesPerFrame == 0 {
		m.Audio.SamplesPerFrame = 80
	}
}

// Validate checks the manifest against the header invariants.
func (m *Manifest) Validate() error {
	if m.Font.Tag != hts.TagAPM && m.Font.Tag != hts.TagATM {
		return fmt.Errorf("font tag %q is neither %q nor %q", m.Font.Tag, hts.TagAPM, hts.TagATM)
	}
	if m.Font.FormatTag != "" {
		if _, err := uuid.Parse(m.Font.FormatTag); err != nil {
			return fmt.Errorf("format tag %q: %v", m.Font.FormatTag, err)
		}
	}
	if m.Font.FixedPoint && m.Font.Tag == hts.TagATM {
		return fmt.Errorf("fixed point has no meaning for %q fonts", hts.TagATM)
	}
	if m.Audio.BitsPerSample != 8 && m.Audio.BitsPerSample != 16 {
		return fmt.Errorf("bits per sample %d, want 8 or 16", m.Audio.BitsPerSample)
	}
	return nil
}

// Header builds the font header the manifest describes. Version is
// left zero so the writer stamps the current format version.
func (m *Manifest) Header() (hts.Header, error) {
	h := hts.Header{
		FileTag:          m.Font.Tag,
		Build:            m.Font.Build,
		LangID:           m.Font.LangID,
		ShortPause:       m.Font.ShortPause,
		FixedPoint:       m.Font.FixedPoint,
		SamplesPerSecond: m.Audio.SamplesPerSecond,
		BitsPerSample:    m.Audio.BitsPerSample,
		SamplePerFrame:   m.Audio.SamplesPerFrame,
	}
	if m.Font.FormatTag != "" {
		tag, err := uuid.Parse(m.Font.FormatTag)
		if err != nil {
			return hts.Header{}, fmt.Errorf("format tag %q: %v", m.Font.FormatTag, err)
		}
		h.FormatTag = tag
	}
	return h, nil
}

// Options builds the serialization options the manifest describes.
func (m *Manifest) Options() codec.Options {
	opts := codec.Options{Compress: m.Output.Compress}
	if m.Output.CipherSeed != 0 {
		opts.Cipher = codec.RollingCipher{Seed: m.Output.CipherSeed}
	}
	return opts
}
