package main

import (
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relink/internal/app"
	"relink/internal/logger"
)

func reportCommand() *cobra.Command {
	var flat bool

	command := &cobra.Command{
		Use:   "report",
		Short: "List duplicate candidates recorded in the metadata store",
		Long: `Report prints the hash groups with more than one member from the last
scan. It reads only the metadata store and never touches the scanned trees.
With --flat it prints one path per line instead, suitable for piping.`,
		Run: func(cmd *cobra.Command, args []string) {
			log := logger.GetLogger("report")

			cfg, err := loadConfig(nil)
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

			if flat {
				candidates, err := application.Candidates(ctx)
				if err != nil {
					log.WithError(err).Fatal("Failed loading duplicate candidates")
				}
				for _, candidate := range candidates {
					cmd.Println(candidate.Path)
				}
				return
			}

			groups, err := application.Duplicates(ctx)
			if err != nil {
				log.WithError(err).Fatal("Failed loading duplicate groups")
			}

			keys := make([]string, 0, len(groups))
			for key := range groups {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			var wasted uint64
			for _, key := range keys {
				members := groups[key]
				log.Infof("hash %.12s: %d files of %s", key, len(members),
					humanize.IBytes(uint64(members[0].Size)))
				for _, member := range members {
					log.Infof("  %s", member.Path)
				}
				wasted += uint64(members[0].Size) * uint64(len(members)-1)
			}

			log.Infof("%d duplicate groups, up to %s reclaimable", len(keys), humanize.IBytes(wasted))
		},
	}

	command.Flags().BoolVar(&flat, "flat", false, "print one candidate path per line")

	return command
}
