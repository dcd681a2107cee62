// Package main is the entry point for reportctl, the terminal front end of
// the report pipeline.
package main

import (
	"os"

	"github.com/dipak0000812/credtrack/cmd/reportctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
