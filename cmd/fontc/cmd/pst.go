package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voicefont-go/manifest"
	"github.com/ieee0824/voicefont-go/pst"
)

var pstBuild uint32

var pstCmd = &cobra.Command{
	Use:   "pst [flags] MODELS GROUPS OUTPUT",
	Short: "Compile a preselection file",
	Long: `Compiles a preselection decision tree and its candidate groups into
a preselection file.

The model archive must hold a single model whose decision trees name
candidate groups at their leaves; the YAML side file lists each group's
unit members.

Examples:
  fontc pst preselect.gob groups.yaml voice.pst
  fontc pst --build 9 preselect.gob groups.yaml voice.pst`,
	Args: cobra.ExactArgs(3),
	RunE: runPst,
}

func init() {
	rootCmd.AddCommand(pstCmd)

	pstCmd.Flags().Uint32Var(&pstBuild, "build", 0, "build number (default: the archive's)")
}

func runPst(cmd *cobra.Command, args []string) error {
	font, err := loadArchive(args[0])
	if err != nil {
		return err
	}
	if len(font.Models) != 1 {
		return fmt.Errorf("preselection archive holds %d models, want 1", len(font.Models))
	}

	groups, err := manifest.LoadGroups(args[1])
	if err != nil {
		return err
	}

	build := font.Header.Build
	if cmd.Flags().Changed("build") {
		build = pstBuild
	}
	data := &pst.Data{
		Header:    pst.Header{Build: build},
		Questions: font.GlobalQuestions(),
		Forest:    font.Models[0].Forest,
		Groups:    groups,
	}

	out, err := os.Create(args[2])
	if err != nil {
		return fmt.Errorf("create preselection file: %w", err)
	}
	n, err := pst.Write(out, data)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close preselection file: %w", cerr)
	}
	if err != nil {
		os.Remove(args[2])
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %d groups)\n", args[2], n, len(data.Groups))
	return nil
}
