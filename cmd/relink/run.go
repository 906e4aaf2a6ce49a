package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relink/internal/app"
	"relink/internal/config"
	"relink/internal/engine"
	"relink/internal/logger"
)

func loadConfig(roots []string) (config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return config.Config{}, err
	}

	if len(roots) > 0 {
		cfg.Roots = roots
	}
	if flagDatabase != "" {
		cfg.Database = flagDatabase
	}
	if flagDryRun {
		cfg.DryRun = true
	}

	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [ROOT...]",
		Short: "Scan for duplicates and consolidate them with hard links",
		Run: func(cmd *cobra.Command, args []string) {
			log := logger.GetLogger("run")

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

			summary, err := application.Run(ctx)
			if err != nil {
				log.WithError(err).Fatal("Run failed")
			}

			printSummary(summary)
		},
	}
}

func printSummary(summary *engine.Summary) {
	log := logger.GetLogger("summary")

	for _, group := range summary.Groups {
		log.Infof("group %.12s canonical: %s", group.Hash, group.Canonical)
		for _, member := range group.Members {
			switch member.Outcome {
			case engine.OutcomeLinked:
				log.Infof("  linked %s (%s)", member.Path, humanize.IBytes(uint64(member.Reclaimed)))
			case engine.OutcomeAlreadyLinked:
				log.Infof("  already linked %s", member.Path)
			case engine.OutcomeFailed:
				log.Warnf("  failed %s (%s): %v", member.Path, member.Reason, member.Err)
			}
		}
	}

	for _, warning := range summary.Warnings {
		log.Warn(warning)
	}

	verb := "reclaimed"
	if summary.DryRun {
		verb = "reclaimable (dry-run)"
	}

	log.Infof("scanned %d files, computed %d hashes, found %d duplicate groups in %s",
		summary.FilesScanned, summary.HashesComputed, summary.GroupsFound,
		summary.Duration.Round(time.Millisecond))
	log.Infof("linked %d, already linked %d, failed %d, %s %s",
		summary.Linked, summary.AlreadyLinked, summary.Failed, verb,
		humanize.IBytes(uint64(summary.BytesReclaimed)))
}
