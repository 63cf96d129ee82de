package main

import (
	"os"

	"github.com/quantrel/lixifeed/cmd/lixifeed/commands"
)

// main is the entry point for the lixifeed CLI.
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
