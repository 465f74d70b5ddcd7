package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/V4T54L/weblog-etl/internal/adapter/api"
	"github.com/V4T54L/weblog-etl/internal/adapter/api/handler"
	"github.com/V4T54L/weblog-etl/internal/adapter/export"
	"github.com/V4T54L/weblog-etl/internal/adapter/metrics"
	"github.com/V4T54L/weblog-etl/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/weblog-etl/internal/adapter/repository/redis"
	"github.com/V4T54L/weblog-etl/internal/adapter/repository/snapshot"
	"github.com/V4T54L/weblog-etl/internal/adapter/repository/sqlite"
	"github.com/V4T54L/weblog-etl/internal/domain"
	"github.com/V4T54L/weblog-etl/internal/pkg/config"

	_ "github.com/lib/pq" // postgres driver
)

// closer releases everything opened while wiring.
type closer []func() error

func (c *closer) add(fn func() error) { *c = append(*c, fn) }

func (c *closer) Close(logger *slog.Logger) {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			logger.Warn("failed to release resource", "error", err)
		}
	}
}

// buildSinks opens every sink named in cfg.Sinks, in order. Names in skip are
// ignored.
func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, res *closer, skip ...string) ([]domain.RecordSink, error) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var sinks []domain.RecordSink
	for _, name := range cfg.Sinks {
		if skipped[name] {
			continue
		}
		switch name {
		case config.SinkSQLite:
			db, err := sqlite.Open(ctx, cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
			res.add(db.Close)
			repo, err := sqlite.NewTableRepository(db, cfg.TableName, logger)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, repo)

		case config.SinkPostgres:
			db, err := sql.Open("postgres", cfg.PostgresURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open postgres connection: %w", err)
			}
			res.add(db.Close)
			if err := db.PingContext(ctx); err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			repo, err := postgres.NewLogRepository(db, cfg.TableName, logger)
			if err != nil {
				return nil, err
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			logger.Info("connected to postgres")
			sinks = append(sinks, repo)

		case config.SinkSnapshot:
			repo, err := snapshot.NewRepository(cfg.SnapshotDir, cfg.SnapshotSegmentBytes, logger)
			if err != nil {
				return nil, err
			}
			res.add(repo.Close)
			sinks = append(sinks, repo)

		case config.SinkCSV:
			schema, err := loadSchema(cfg)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, export.NewCSVSink(cfg.CSVPath, schema, logger))
		}
	}
	return sinks, nil
}

func loadSchema(cfg *config.Config) (export.Schema, error) {
	if cfg.ColumnNamesFile != "" {
		return export.LoadSchema(cfg.ColumnNamesFile, cfg.ColumnLocale)
	}
	return export.NewSchema(cfg.ColumnLocale)
}

// buildGeoCache connects to Redis when configured. An unreachable Redis
// disables the cache instead of failing the run.
func buildGeoCache(ctx context.Context, cfg *config.Config, logger *slog.Logger, res *closer) domain.GeoCache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	res.add(client.Close)

	cache := redisrepo.NewGeoCache(client, cfg.GeoCacheTTL, logger)
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("could not connect to redis, geo cache disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}
	return cache
}

// newRegistry creates the process registry and the pipeline metrics on it.
func newRegistry() (*prometheus.Registry, *metrics.PipelineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewPipelineMetrics(reg)
}

// startMetricsServer serves /metrics, /health and /runs/last when addr is set.
// The returned function shuts the server down.
func startMetricsServer(addr string, reg *prometheus.Registry, status *handler.StatusHandler, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(reg, status, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
}
