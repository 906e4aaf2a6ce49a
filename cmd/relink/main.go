package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relink/internal/logger"
)

var (
	flagConfigFile string
	flagDatabase   string
	flagLogFile    string
	flagLogLevel   int
	flagDryRun     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relink",
		Short: "Find duplicate files and consolidate them with hard links",
		Long: `relink scans directory trees for files with byte-identical content and
replaces duplicates with hard links to a single canonical copy.
`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(flagLogLevel, flagLogFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "Config file")
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "Metadata database path (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&flagLogFile, "log", "l", "", "Log file")
	rootCmd.PersistentFlags().CountVarP(&flagLogLevel, "verbose", "v", "Verbose level")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "Report without modifying the filesystem")

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(scanCommand())
	rootCmd.AddCommand(reportCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
