package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/weblog-etl/internal/adapter/metrics"
	"github.com/V4T54L/weblog-etl/internal/adapter/parser"
	"github.com/V4T54L/weblog-etl/internal/adapter/source"
	"github.com/V4T54L/weblog-etl/internal/adapter/urlcanon"
	"github.com/V4T54L/weblog-etl/internal/domain"
)

const (
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
)

// PipelineOptions tunes a Pipeline. Zero values select the defaults.
type PipelineOptions struct {
	TimestampPolicy TimestampPolicy
	RetryCount      int
	RetryBackoff    time.Duration

	// GeoTable, when set, receives the raw lookup results after the sinks.
	GeoTable domain.GeoTableSink
}

// Pipeline turns raw access-log text into the finalized table and hands it
// to the sinks. Every stage takes one slice and returns a new one.
type Pipeline struct {
	classifier domain.ClientClassifier
	geo        *GeoEnricher
	sinks      []domain.RecordSink
	opts       PipelineOptions
	logger     *slog.Logger
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

// RunResult is a finalized table together with the run it belongs to.
type RunResult struct {
	Run     domain.RunInfo
	Records []domain.AccessRecord
	Stats   domain.RunStats

	// Geo holds the metadata of every address that got an answer, in
	// first-seen order.
	Geo []domain.GeoMetadata
}

// NewPipeline creates a Pipeline. m may be nil.
func NewPipeline(classifier domain.ClientClassifier, geo *GeoEnricher, sinks []domain.RecordSink, opts PipelineOptions, logger *slog.Logger, m *metrics.PipelineMetrics) *Pipeline {
	if opts.TimestampPolicy == "" {
		opts.TimestampPolicy = TimestampSkip
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Pipeline{
		classifier: classifier,
		geo:        geo,
		sinks:      sinks,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// NewRun stamps a new run.
func (p *Pipeline) NewRun(source string) domain.RunInfo {
	return domain.RunInfo{
		ID:        uuid.NewString(),
		StartedAt: p.now().UTC(),
		Source:    source,
	}
}

// Run transforms the given windows of text and persists the result.
// Nothing is persisted if any stage fails.
func (p *Pipeline) Run(ctx context.Context, source string, windows ...string) (RunResult, error) {
	if len(p.sinks) == 0 {
		return RunResult{}, domain.ErrNoSinks
	}

	res, err := p.Transform(ctx, p.NewRun(source), windows...)
	if err != nil {
		return res, err
	}
	if err := p.Persist(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// RunFile reads path and runs the pipeline over it. Only the first window is
// read unless readAll is set.
func (p *Pipeline) RunFile(ctx context.Context, path string, windowSize int64, readAll bool) (RunResult, error) {
	var windows []string
	if readAll {
		texts, err := source.ReadAll(ctx, path, windowSize, p.logger)
		if err != nil {
			return RunResult{}, err
		}
		windows = texts
	} else {
		w, err := source.ReadWindow(path, 0, windowSize)
		if err != nil {
			return RunResult{}, err
		}
		if !w.EOF {
			p.logger.Info("input is larger than one window, the rest is not read", "path", path, "window_bytes", windowSize, "read_bytes", w.Next)
		}
		windows = []string{w.Text}
	}
	return p.Run(ctx, path, windows...)
}

// Transform runs every stage and returns the finalized table.
func (p *Pipeline) Transform(ctx context.Context, run domain.RunInfo, windows ...string) (RunResult, error) {
	res := RunResult{Run: run}
	logger := p.logger.With("run_id", run.ID)

	// 1. Parse
	var records []domain.LogRecord
	p.timed("parse", func() {
		for _, text := range windows {
			parsed := parser.Parse(text)
			res.Stats.LinesSeen += parsed.Lines
			res.Stats.LinesSkipped += parsed.Skipped
			res.Stats.ParseErrors += len(parsed.Errors)
			for _, err := range parsed.Errors {
				logger.Warn("dropping unparseable record", "error", err)
			}
			records = append(records, parsed.Records...)
		}
	})
	p.count(linesCounter, "parsed", len(records))
	p.count(linesCounter, "skipped", res.Stats.LinesSkipped)
	p.count(linesCounter, "error_parse", res.Stats.ParseErrors)
	logger.Info("parsed log records", "records", len(records), "lines", res.Stats.LinesSeen, "skipped", res.Stats.LinesSkipped, "parse_errors", res.Stats.ParseErrors)

	// 2. Normalize
	var norm NormalizeResult
	var err error
	p.timed("normalize", func() {
		norm, err = Normalize(records, p.opts.TimestampPolicy, logger)
	})
	if err != nil {
		logger.Error("normalization failed, nothing will be persisted", "error", err)
		return res, fmt.Errorf("normalize: %w", err)
	}
	res.Stats.FormatErrors = len(norm.FormatErrors)
	res.Stats.Duplicates = norm.Duplicates
	p.count(recordsCounter, "error_format", res.Stats.FormatErrors)
	p.count(recordsCounter, "duplicate", res.Stats.Duplicates)

	// 3. Canonicalize URLs
	normalized := norm.Records
	p.timed("canonicalize", func() {
		urls := make([]string, len(normalized))
		for i, r := range normalized {
			urls[i] = r.URL
		}
		res.Stats.EmptyURLs = urlcanon.Column(urls)
		canonical := make([]domain.LogRecord, len(normalized))
		for i, r := range normalized {
			r.URL = urls[i]
			canonical[i] = r
		}
		normalized = canonical
	})
	p.count(recordsCounter, "empty_url", res.Stats.EmptyURLs)

	// 4. Resolve clients
	var clients []domain.ClientRecord
	p.timed("resolve_clients", func() {
		clients = ResolveClients(normalized, p.classifier, logger)
	})

	// 5. Geo enrichment
	addresses := DistinctAddresses(clients)
	res.Stats.DistinctAddresses = len(addresses)
	var geo GeoResult
	p.timed("geo_lookup", func() {
		geo = p.geo.Enrich(ctx, addresses)
	})
	res.Stats.LookupsOK = len(geo.Metadata) - geo.Cached
	res.Stats.LookupsCached = geo.Cached
	res.Stats.LookupsFailed = len(geo.Failed)
	res.Stats.LookupsAbandoned = geo.Abandoned
	for _, addr := range addresses {
		if meta, ok := geo.Metadata[addr]; ok {
			res.Geo = append(res.Geo, meta)
		}
	}
	logger.Info("geo lookups finished", "addresses", len(addresses), "ok", res.Stats.LookupsOK, "cached", geo.Cached, "failed", len(geo.Failed), "abandoned", geo.Abandoned)

	var merged MergeStats
	p.timed("merge", func() {
		res.Records, merged = MergeGeo(clients, geo.Metadata)
	})
	res.Stats.DroppedNoGeo = merged.DroppedNoGeo
	res.Stats.OrgDefaulted = merged.OrgDefaulted
	res.Stats.Finalized = len(res.Records)
	p.count(recordsCounter, "no_geo", merged.DroppedNoGeo)
	p.count(recordsCounter, "org_defaulted", merged.OrgDefaulted)
	p.count(recordsCounter, "finalized", len(res.Records))
	if p.metrics != nil {
		p.metrics.LastRunRows.Set(float64(len(res.Records)))
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("run interrupted during enrichment", "error", err)
		return res, err
	}

	logger.Info("table finalized",
		"rows", res.Stats.Finalized,
		"format_errors", res.Stats.FormatErrors,
		"duplicates", res.Stats.Duplicates,
		"empty_urls", res.Stats.EmptyURLs,
		"dropped_no_geo", res.Stats.DroppedNoGeo,
		"org_defaulted", res.Stats.OrgDefaulted,
	)
	return res, nil
}

// Persist writes the table to every sink, in configuration order.
func (p *Pipeline) Persist(ctx context.Context, res RunResult) error {
	if len(p.sinks) == 0 {
		return domain.ErrNoSinks
	}
	for _, sink := range p.sinks {
		var err error
		p.timed("sink_"+sink.Name(), func() {
			err = p.writeWithRetry(ctx, sink, res)
		})
		if err != nil {
			p.logger.Error("failed to write table to sink after retries", "sink", sink.Name(), "run_id", res.Run.ID, "error", err)
			return fmt.Errorf("sink %s: %w", sink.Name(), err)
		}
		if p.metrics != nil {
			p.metrics.RowsWritten.WithLabelValues(sink.Name()).Add(float64(len(res.Records)))
		}
		p.logger.Info("table written", "sink", sink.Name(), "run_id", res.Run.ID, "rows", len(res.Records))
	}

	if p.opts.GeoTable != nil {
		if err := p.opts.GeoTable.WriteGeoTable(ctx, res.Run, res.Geo); err != nil {
			p.logger.Error("failed to write geo table", "run_id", res.Run.ID, "error", err)
			return fmt.Errorf("geo table: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) writeWithRetry(ctx context.Context, sink domain.RecordSink, res RunResult) error {
	var lastErr error
	for i := 0; i < p.opts.RetryCount; i++ {
		err := sink.WriteRecords(ctx, res.Run, res.Records)
		if err == nil {
			return nil // Success
		}
		lastErr = err
		p.logger.Warn("failed to write table to sink, retrying...", "sink", sink.Name(), "attempt", i+1, "error", err)
		if i == p.opts.RetryCount-1 {
			break
		}
		select {
		case <-time.After(p.opts.RetryBackoff):
			// continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *Pipeline) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

type counterKind int

const (
	linesCounter counterKind = iota
	recordsCounter
)

func (p *Pipeline) count(kind counterKind, label string, n int) {
	if p.metrics == nil || n == 0 {
		return
	}
	switch kind {
	case linesCounter:
		p.metrics.LinesTotal.WithLabelValues(label).Add(float64(n))
	case recordsCounter:
		p.metrics.RecordsTotal.WithLabelValues(label).Add(float64(n))
	}
}
