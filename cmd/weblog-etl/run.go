package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/weblog-etl/internal/adapter/api/handler"
	"github.com/V4T54L/weblog-etl/internal/adapter/export"
	"github.com/V4T54L/weblog-etl/internal/adapter/geo"
	"github.com/V4T54L/weblog-etl/internal/adapter/useragent"
	"github.com/V4T54L/weblog-etl/internal/pkg/config"
	"github.com/V4T54L/weblog-etl/internal/pkg/logger"
	"github.com/V4T54L/weblog-etl/internal/usecase"
)

type runFlags struct {
	input  string
	all    bool
	sinks  []string
	policy string
	every  time.Duration
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an access log and write the finalized table",
		Long: `Read the input log (one window by default, the whole file with --all),
run every stage and hand the finalized table to each configured sink.

Examples:
  weblog-etl run --input access.log
  weblog-etl run --all --sinks sqlite,snapshot
  weblog-etl run --every 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, f.every, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "access log to read (overrides INPUT_PATH)")
	cmd.Flags().BoolVar(&f.all, "all", false, "read the whole file instead of a single window (overrides READ_ALL)")
	cmd.Flags().StringSliceVar(&f.sinks, "sinks", nil, "comma-separated sinks: sqlite, postgres, snapshot, csv (overrides SINKS)")
	cmd.Flags().StringVar(&f.policy, "timestamp-policy", "", "skip or abort on malformed timestamps (overrides TIMESTAMP_POLICY)")
	cmd.Flags().DurationVar(&f.every, "every", 0, "repeat the run at this interval until interrupted")
	return cmd
}

func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if f.input != "" {
		cfg.InputPath = f.input
	}
	if cmd.Flags().Changed("all") {
		cfg.ReadAll = f.all
	}
	if len(f.sinks) > 0 {
		cfg.Sinks = f.sinks
	}
	if f.policy != "" {
		cfg.TimestampPolicy = f.policy
	}
	return cfg.Validate()
}

func runPipeline(parent context.Context, cfg *config.Config, every time.Duration, out io.Writer) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	policy, err := usecase.ParseTimestampPolicy(cfg.TimestampPolicy)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res closer
	defer res.Close(log)

	reg, m := newRegistry()
	status := handler.NewStatusHandler(log)
	shutdown := startMetricsServer(cfg.MetricsAddr, reg, status, log)
	defer shutdown()

	sinks, err := buildSinks(ctx, cfg, log, &res)
	if err != nil {
		return err
	}

	lookup := geo.NewClient(geo.Options{
		Endpoint:      cfg.GeoEndpoint,
		Timeout:       cfg.GeoTimeout,
		RatePerMinute: cfg.GeoRatePerMinute,
	}, log)
	enricher := usecase.NewGeoEnricher(lookup, buildGeoCache(ctx, cfg, log, &res), cfg.GeoWorkers, log, m)
	opts := usecase.PipelineOptions{TimestampPolicy: policy}
	if cfg.HasSink(config.SinkCSV) && cfg.GeoCSVPath != "" {
		opts.GeoTable = export.NewGeoCSVWriter(cfg.GeoCSVPath, log)
	}
	pipeline := usecase.NewPipeline(useragent.NewClassifier(), enricher, sinks, opts, log, m)

	runOnce := func() error {
		result, err := pipeline.RunFile(ctx, cfg.InputPath, cfg.ReadWindowBytes, cfg.ReadAll)
		status.Record(result.Run, result.Stats, err)
		if err != nil {
			log.Error("run failed", "run_id", result.Run.ID, "error", err)
			return err
		}
		return writeSummary(out, result)
	}

	if every <= 0 {
		return runOnce()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log.Info("running periodically", "interval", every, "input", cfg.InputPath)
	for {
		// A failed run is logged and retried on the next tick.
		_ = runOnce()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info("shutdown signal received, stopping")
			return nil
		}
	}
}

func writeSummary(out io.Writer, result usecase.RunResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID  string      `json:"run_id"`
		Source string      `json:"source"`
		Stats  interface{} `json:"stats"`
	}{result.Run.ID, result.Run.Source, result.Stats})
}
