// Package main provides the entry point for the skillrunner CLI.
package main

import (
	"os"

	"github.com/skillrunner/skillrunner/cmd/skillrunner/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
