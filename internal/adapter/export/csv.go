package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// CSVSink writes the finalized table to a CSV file with localized headers.
// Each run replaces the file.
type CSVSink struct {
	path   string
	schema Schema
	logger *slog.Logger
}

// NewCSVSink creates a CSVSink.
func NewCSVSink(path string, schema Schema, logger *slog.Logger) *CSVSink {
	return &CSVSink{
		path:   path,
		schema: schema,
		logger: logger.With("component", "csv_sink"),
	}
}

func (s *CSVSink) Name() string { return "csv" }

// WriteRecords replaces the export file with the run's table.
func (s *CSVSink) WriteRecords(ctx context.Context, run domain.RunInfo, records []domain.AccessRecord) error {
	err := writeCSVFile(ctx, s.path, s.schema.Header(), len(records), func(i int) []string {
		return records[i].Strings()
	})
	if err != nil {
		return err
	}
	s.logger.Info("csv export written", "path", s.path, "rows", len(records), "run_id", run.ID, "locale", s.schema.Locale)
	return nil
}

// GeoCSVWriter saves the raw geolocation table, one row per looked-up
// address, with the provider's own column names.
type GeoCSVWriter struct {
	path   string
	logger *slog.Logger
}

// NewGeoCSVWriter creates a GeoCSVWriter.
func NewGeoCSVWriter(path string, logger *slog.Logger) *GeoCSVWriter {
	return &GeoCSVWriter{
		path:   path,
		logger: logger.With("component", "geo_csv_writer"),
	}
}

// WriteGeoTable replaces the file with table.
func (g *GeoCSVWriter) WriteGeoTable(ctx context.Context, run domain.RunInfo, table []domain.GeoMetadata) error {
	err := writeCSVFile(ctx, g.path, domain.GeoColumns, len(table), func(i int) []string {
		return table[i].Strings()
	})
	if err != nil {
		return err
	}
	g.logger.Info("geo table written", "path", g.path, "addresses", len(table), "run_id", run.ID)
	return nil
}

// writeCSVFile writes to a temporary file next to path and renames it into
// place, so a failed write leaves the previous file intact.
func writeCSVFile(ctx context.Context, path string, header []string, n int, row func(i int) []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := 0; i < n; i++ {
		if i%1000 == 0 && ctx.Err() != nil {
			tmp.Close()
			return ctx.Err()
		}
		if err := w.Write(row(i)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}
