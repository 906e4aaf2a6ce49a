package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Populated via -ldflags at build time.
var (
	version   = "dev"
	gitCommit = "unknown"
	timestamp = "unknown"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relink version: %s commit: %s built at: %s\n", version, gitCommit, timestamp)
		},
	}
}
