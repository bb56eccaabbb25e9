package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fontc",
	Short: "Voice font compiler",
	Long: `fontc turns trained voice models into binary voice fonts and back.

Commands:
  compile  - compile a model archive into an acoustic or transform font
  pst      - compile a model archive and candidate groups into a preselection file
  verify   - check that a font survives serialization unchanged
  inspect  - print the layout of a font or preselection file
  version  - show version information`,
}

func Execute() error {
	return rootCmd.Execute()
}
