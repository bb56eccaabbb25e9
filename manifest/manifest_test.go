package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
)

// writeManifest drops a TOML manifest into a scratch directory and
// returns its path.
func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "font.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestLoadFullManifest(t *testing.T) {
	path := writeManifest(t, `
[font]
tag = "ATM "
format_tag = "2f8e5b10-9c4d-4a77-b3e8-04d92a61cf58"
build = 42
lang_id = 1041
short_pause = true

[audio]
samples_per_second = 22050
bits_per_sample = 16
samples_per_frame = 110

[output]
compress = true
cipher_seed = 77
`)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Font.Tag != hts.TagATM {
		t.Errorf("tag = %q, want %q", m.Font.Tag, hts.TagATM)
	}
	if m.Font.FormatTag != "2f8e5b10-9c4d-4a77-b3e8-04d92a61cf58" {
		t.Errorf("format tag = %q", m.Font.FormatTag)
	}
	if m.Font.Build != 42 {
		t.Errorf("build = %d, want 42", m.Font.Build)
	}
	if m.Font.LangID != 1041 {
		t.Errorf("lang id = %d, want 1041", m.Font.LangID)
	}
	if !m.Font.ShortPause {
		t.Error("short pause flag was dropped")
	}
	if m.Audio.SamplesPerSecond != 22050 {
		t.Errorf("samples per second = %d, want 22050", m.Audio.SamplesPerSecond)
	}
	if m.Audio.SamplesPerFrame != 110 {
		t.Errorf("samples per frame = %d, want 110", m.Audio.SamplesPerFrame)
	}
	if !m.Output.Compress {
		t.Error("compress flag was dropped")
	}
	if m.Output.CipherSeed != 77 {
		t.Errorf("cipher seed = %d, want 77", m.Output.CipherSeed)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	m, err := Load(writeManifest(t, "[font]\nbuild = 3\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Font.Tag != hts.TagAPM {
		t.Errorf("tag = %q, want %q", m.Font.Tag, hts.TagAPM)
	}
	if m.Audio.SamplesPerSecond != 16000 {
		t.Errorf("samples per second = %d, want 16000", m.Audio.SamplesPerSecond)
	}
	if m.Audio.BitsPerSample != 16 {
		t.Errorf("bits per sample = %d, want 16", m.Audio.BitsPerSample)
	}
	if m.Audio.SamplesPerFrame != 80 {
		t.Errorf("samples per frame = %d, want 80", m.Audio.SamplesPerFrame)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeManifest(t, "[font]\ntag = \"APM \"\ncolour = \"red\"\n"))
	if err == nil {
		t.Fatal("Load accepted a key outside the schema")
	}
	if !strings.Contains(err.Error(), `unknown key "font.colour"`) {
		t.Errorf("Load error = %v, want unknown key", err)
	}
}

func TestLoadRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "foreign tag",
			content: "[font]\ntag = \"XYZ \"\n",
			want:    "is neither",
		},
		{
			name:    "malformed format tag",
			content: "[font]\nformat_tag = \"not-a-guid\"\n",
			want:    `format tag "not-a-guid"`,
		},
		{
			name:    "fixed point transform font",
			content: "[font]\ntag = \"ATM \"\nfixed_point = true\n",
			want:    "fixed point has no meaning",
		},
		{
			name:    "odd sample width",
			content: "[audio]\nbits_per_sample = 12\n",
			want:    "bits per sample 12",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.content))
			if err == nil {
				t.Fatal("Load accepted a bad manifest")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHeaderMapsFields(t *testing.T) {
	m := &Manifest{
		Font: FontSection{
			Tag:        hts.TagAPM,
			Build:      9,
			LangID:     1033,
			ShortPause: true,
			FixedPoint: true,
		},
		Audio: AudioSection{
			SamplesPerSecond: 16000,
			BitsPerSample:    16,
			SamplesPerFrame:  80,
		},
	}
	h, err := m.Header()
	if err != nil {
		t.Fatalf("Header error: %v", err)
	}
	if h.FileTag != hts.TagAPM {
		t.Errorf("file tag = %q, want %q", h.FileTag, hts.TagAPM)
	}
	if h.Version != 0 {
		t.Errorf("version = %#x, want 0 so the writer stamps it", h.Version)
	}
	if h.FormatTag != uuid.Nil {
		t.Errorf("format tag = %s, want zero for the tag default", h.FormatTag)
	}
	if h.Build != 9 || h.LangID != 1033 {
		t.Errorf("identity fields = build %d lang %d, want 9 1033", h.Build, h.LangID)
	}
	if !h.ShortPause || !h.FixedPoint {
		t.Errorf("flags = pause %t fixed %t, want both true", h.ShortPause, h.FixedPoint)
	}
	if h.SamplesPerSecond != 16000 || h.BitsPerSample != 16 || h.SamplePerFrame != 80 {
		t.Errorf("audio fields = %d %d %d", h.SamplesPerSecond, h.BitsPerSample, h.SamplePerFrame)
	}
}

func TestHeaderParsesFormatTag(t *testing.T) {
	m := &Manifest{Font: FontSection{
		Tag:       hts.TagAPM,
		FormatTag: "7d9a3c41-56be-4f0e-9ad2-8f61c3b0a917",
	}}
	h, err := m.Header()
	if err != nil {
		t.Fatalf("Header error: %v", err)
	}
	if h.FormatTag != hts.FormatTagAPM {
		t.Errorf("format tag = %s, want %s", h.FormatTag, hts.FormatTagAPM)
	}

	m.Font.FormatTag = "nope"
	if _, err := m.Header(); err == nil {
		t.Error("Header accepted a malformed format tag")
	}
}

func TestOptionsMapsOutputPolicy(t *testing.T) {
	m := &Manifest{Output: OutputSection{Compress: true}}
	opts := m.Options()
	if !opts.Compress {
		t.Error("compress flag was dropped")
	}
	if opts.Cipher != nil {
		t.Errorf("cipher = %#v, want none for seed zero", opts.Cipher)
	}

	m.Output.CipherSeed = 0x5EED
	opts = m.Options()
	rc, ok := opts.Cipher.(codec.RollingCipher)
	if !ok {
		t.Fatalf("cipher = %#v, want a rolling cipher", opts.Cipher)
	}
	if rc.Seed != 0x5EED {
		t.Errorf("cipher seed = %#x, want 0x5eed", rc.Seed)
	}
}
