package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/manifest"
	"github.com/ieee0824/voicefont-go/pst"
)

var (
	inspectPhones     string
	inspectCipherSeed uint32
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] FILE",
	Short: "Print the layout of a font or preselection file",
	Long: `Prints the header, model layout, and section sizes of a compiled
voice font. Preselection files are recognized by their file tag and get
their candidate groups listed instead.

Examples:
  fontc inspect voice.apm
  fontc inspect --cipher-seed 77 voice.apm
  fontc inspect --phones phones.yaml voice.pst`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectPhones, "phones", "", "YAML phone inventory for label restoration")
	inspectCmd.Flags().Uint32Var(&inspectCipherSeed, "cipher-seed", 0, "string pool cipher seed (0 = plaintext)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var tag [4]byte
	if _, err := io.ReadFull(f, tag[:]); err != nil {
		return fmt.Errorf("read file tag: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var phones *hts.PhoneSet
	if inspectPhones != "" {
		if phones, err = manifest.LoadPhones(inspectPhones); err != nil {
			return err
		}
	}

	if string(tag[:]) == hts.TagPST {
		return inspectPreselection(f, phones)
	}
	return inspectFont(f, phones)
}

func inspectFont(rs io.ReadSeeker, phones *hts.PhoneSet) error {
	opts := codec.Options{Phones: phones}
	if inspectCipherSeed != 0 {
		opts.Cipher = codec.RollingCipher{Seed: inspectCipherSeed}
	}
	font, err := codec.ReadFont(rs, opts)
	if err != nil {
		return err
	}

	h := font.Header
	fmt.Printf("file tag:     %q\n", h.FileTag)
	fmt.Printf("format tag:   %s\n", h.FormatTag)
	fmt.Printf("version:      %#06x\n", h.Version)
	fmt.Printf("build:        %d\n", h.Build)
	fmt.Printf("language id:  %d\n", h.LangID)
	fmt.Printf("short pause:  %t\n", h.ShortPause)
	fmt.Printf("fixed point:  %t\n", h.FixedPoint)
	fmt.Printf("audio:        %d Hz, %d bit, %d samples/frame\n",
		h.SamplesPerSecond, h.BitsPerSample, h.SamplePerFrame)
	fmt.Printf("data size:    %d bytes\n", h.DataSize)

	qs := font.GlobalQuestions()
	named := "unnamed"
	if qs.HasNames {
		named = "named"
	}
	fmt.Printf("questions:    %d (%s)\n", qs.Len(), named)
	fmt.Printf("string pool:  %d bytes\n", font.Pool.Len())
	codebook := "absent"
	if !h.Codebook.IsZero() {
		codebook = fmt.Sprintf("%d bytes", h.Codebook.Length)
	}
	fmt.Printf("codebook:     %s\n", codebook)

	fmt.Printf("models:       %d\n", len(font.Models))
	for _, m := range font.Models {
		entries := 0
		for _, s := range m.Streams {
			entries += len(s.Entries)
		}
		fmt.Printf("  %-9s phones %-3d states %d  streams %v",
			m.Type, m.Forest.Phones.Len(), m.Forest.StateCount, m.Forest.StreamIndexes)
		if len(m.Transforms) > 0 {
			fmt.Printf("  transforms %d\n", len(m.Transforms))
			for _, x := range m.Transforms {
				fmt.Printf("    %-12s vector %d  blocks %d\n", x.Name, x.Xform.VecSize, len(x.Xform.Blocks))
			}
			continue
		}
		fmt.Printf("  entries %-5d %s x%d\n", entries, m.Gaussian.Dist, m.Gaussian.Mixtures)
		if m.F0Ext != nil {
			fmt.Printf("    pitch shift %g, pitch range %g\n", m.F0Ext.PitchShift, m.F0Ext.PitchRange)
		}
	}
	return nil
}

func inspectPreselection(rs io.ReadSeeker, phones *hts.PhoneSet) error {
	data, err := pst.Read(rs, pst.Options{Phones: phones})
	if err != nil {
		return err
	}

	h := data.Header
	fmt.Printf("file tag:     %q\n", hts.TagPST)
	fmt.Printf("format tag:   %s\n", h.FormatTag)
	fmt.Printf("version:      %#06x\n", h.Version)
	fmt.Printf("build:        %d\n", h.Build)
	fmt.Printf("data size:    %d bytes\n", h.DataSize)
	fmt.Printf("questions:    %d\n", data.Questions.Len())
	fmt.Printf("phones:       %d, %d states\n",
		data.Forest.Phones.Len(), data.Forest.StateCount)

	fmt.Printf("groups:       %d\n", len(data.Groups))
	const listed = 20
	for i, g := range data.Groups {
		if i == listed {
			fmt.Printf("  ... and %d more\n", len(data.Groups)-listed)
			break
		}
		fmt.Printf("  %-20s %d members\n", g.Name, len(g.Members))
	}
	return nil
}
