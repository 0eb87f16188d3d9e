// ABOUTME: Entry point for the doodle-admin CLI
// ABOUTME: Thin wrapper around the cobra command tree in internal/cli

package main

import (
	"fmt"
	"os"

	"github.com/agentdoodle/doodle-server/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
