// Package main provides the entry point for the notebooklm CLI.
package main

import (
	"os"

	"github.com/lphhien112-gif/NOTEBOOKLM/cmd/notebooklm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
