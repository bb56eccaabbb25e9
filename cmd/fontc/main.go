package main

import (
	"os"

	"github.com/ieee0824/voicefont-go/cmd/fontc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
