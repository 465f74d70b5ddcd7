package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/V4T54L/weblog-etl/internal/adapter/repository/snapshot"
	"github.com/V4T54L/weblog-etl/internal/pkg/config"
	"github.com/V4T54L/weblog-etl/internal/pkg/logger"
	"github.com/V4T54L/weblog-etl/internal/usecase"
)

func newLoadCmd() *cobra.Command {
	var (
		sinks    []string
		truncate bool
	)
	cmd := &cobra.Command{
		Use:   "load <snapshot-dir>",
		Short: "Load a snapshot into the configured sinks",
		Long: `Replay every run stored in a snapshot directory and write each one to
the configured sinks. The snapshot sink itself is never a target.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(sinks) > 0 {
				cfg.Sinks = sinks
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(log)
			ctx := cmd.Context()

			var res closer
			defer res.Close(log)

			snap, err := snapshot.NewRepository(args[0], cfg.SnapshotSegmentBytes, log)
			if err != nil {
				return err
			}
			res.add(snap.Close)

			if cfg.HasSink(config.SinkSnapshot) {
				log.Info("snapshot sink is not a load target, skipping it")
			}
			targets, err := buildSinks(ctx, cfg, log, &res, config.SinkSnapshot)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no target sinks configured besides snapshot")
			}

			loaded, err := usecase.LoadSnapshot(ctx, snap, targets, log)
			if err != nil {
				return err
			}
			if truncate {
				if err := snap.Truncate(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d run(s), %d row(s)\n", loaded.Runs, loaded.Rows)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sinks, "sinks", nil, "comma-separated target sinks (overrides SINKS)")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "remove the snapshot segments after a successful load")
	return cmd
}
