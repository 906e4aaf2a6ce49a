package main

import (
	"github.com/spf13/cobra"

	"relink/internal/app"
	"relink/internal/logger"
)

func scanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [ROOT...]",
		Short: "Refresh file metadata and hashes without linking anything",
		Run: func(cmd *cobra.Command, args []string) {
			log := logger.GetLogger("scan")

			cfg, err := loadConfig(args)
			if err != nil {
				log.WithError(err).Fatal("Failed loading configuration")
			}

			application, err := app.New(cfg)
			if err != nil {
				log.WithError(err).Fatal("Failed initializing")
			}
			defer application.Close()

			ctx, stop := signalContext()
			defer stop()

			summary, err := application.Scan(ctx)
			if err != nil {
				log.WithError(err).Fatal("Scan failed")
			}

			for _, warning := range summary.Warnings {
				log.Warn(warning)
			}
			log.Infof("scanned %d files, computed %d hashes, removed %d stale records",
				summary.FilesScanned, summary.HashesComputed, summary.RecordsRemoved)
		},
	}
}
