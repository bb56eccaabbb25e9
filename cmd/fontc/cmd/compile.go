package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	voicefont "github.com/ieee0824/voicefont-go"
	"github.com/ieee0824/voicefont-go/codec"
	"github.com/ieee0824/voicefont-go/hts"
	"github.com/ieee0824/voicefont-go/manifest"
)

var (
	compileManifest   string
	compilePhones     string
	compileCompress   bool
	compileCipherSeed uint32
	compileSkipVerify bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] MODELS OUTPUT",
	Short: "Compile a model archive into a voice font",
	Long: `Compiles a trained model archive into a binary voice font.

The archive is the interchange format the trainer writes. A TOML
manifest replaces the archive's header identity and sets the output
policy; the --compress and --cipher-seed flags override the manifest.

Examples:
  fontc compile models.gob voice.apm
  fontc compile --manifest font.toml models.gob voice.apm
  fontc compile --compress --cipher-seed 77 models.gob voice.apm`,
	Args: cobra.ExactArgs(2),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileManifest, "manifest", "m", "", "TOML manifest with header fields and output policy")
	compileCmd.Flags().StringVar(&compilePhones, "phones", "", "YAML phone inventory for label restoration")
	compileCmd.Flags().BoolVar(&compileCompress, "compress", false, "compress stream payloads")
	compileCmd.Flags().Uint32Var(&compileCipherSeed, "cipher-seed", 0, "string pool cipher seed (0 = plaintext)")
	compileCmd.Flags().BoolVar(&compileSkipVerify, "skip-verify", false, "skip the serialize-twice self check")
}

func runCompile(cmd *cobra.Command, args []string) error {
	font, err := loadArchive(args[0])
	if err != nil {
		return err
	}

	var opts []voicefont.Option
	if compileManifest != "" {
		m, err := manifest.Load(compileManifest)
		if err != nil {
			return err
		}
		h, err := m.Header()
		if err != nil {
			return err
		}
		font.Header = h
		co := m.Options()
		opts = append(opts, voicefont.WithCompression(co.Compress))
		if co.Cipher != nil {
			opts = append(opts, voicefont.WithCipher(co.Cipher))
		}
	}
	if cmd.Flags().Changed("compress") {
		opts = append(opts, voicefont.WithCompression(compileCompress))
	}
	if cmd.Flags().Changed("cipher-seed") {
		var c codec.Cipher
		if compileCipherSeed != 0 {
			c = codec.RollingCipher{Seed: compileCipherSeed}
		}
		opts = append(opts, voicefont.WithCipher(c))
	}
	if compilePhones != "" {
		phones, err := manifest.LoadPhones(compilePhones)
		if err != nil {
			return err
		}
		opts = append(opts, voicefont.WithPhones(phones))
	}
	opts = append(opts, voicefont.WithSelfCheck(!compileSkipVerify))

	res, err := voicefont.New(opts...).CompileFile(args[1], font)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %d models)\n", args[1], res.Bytes, len(font.Models))
	return nil
}

func loadArchive(path string) (*hts.Font, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model archive: %w", err)
	}
	defer f.Close()
	font, err := hts.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load model archive: %w", err)
	}
	return font, nil
}
