package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".ndjson"
	filePerm      = 0644

	maxLineSize = 1 << 20
)

// entry is one line of a segment.
type entry struct {
	Run    domain.RunInfo      `json:"run"`
	Record domain.AccessRecord `json:"record"`
}

// Repository keeps finalized tables as newline-delimited JSON spread over
// size-bounded segment files.
type Repository struct {
	dir            string
	maxSegmentSize int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	seq            int64
}

// NewRepository opens the snapshot directory, creating it if needed.
func NewRepository(dir string, maxSegmentSize int64, logger *slog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	r := &Repository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		logger:         logger.With("component", "snapshot_repository"),
	}

	if err := r.openLatestSegment(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Repository) Name() string { return "snapshot" }

// WriteRecords appends a run's table to the current segment, rotating when
// the segment grows past its size bound. The segment is synced before
// returning.
func (r *Repository) WriteRecords(ctx context.Context, run domain.RunInfo, records []domain.AccessRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSegment == nil {
		if err := r.rotate(); err != nil {
			return err
		}
	}

	w := bufio.NewWriter(r.currentSegment)
	for i, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := json.Marshal(entry{Run: run, Record: rec})
		if err != nil {
			return fmt.Errorf("failed to marshal record %d for snapshot: %w", i, err)
		}
		data = append(data, '\n')

		n, err := w.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write to snapshot segment: %w", err)
		}
		r.currentSize += int64(n)

		if r.currentSize >= r.maxSegmentSize {
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush snapshot segment: %w", err)
			}
			if err := r.rotate(); err != nil {
				return err
			}
			w = bufio.NewWriter(r.currentSegment)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot segment: %w", err)
	}
	if err := r.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot segment: %w", err)
	}

	r.logger.Info("snapshot written", "run_id", run.ID, "rows", len(records))
	return nil
}

// Replay reads all segments and calls the handler for each record.
func (r *Repository) Replay(ctx context.Context, handler func(run domain.RunInfo, record domain.AccessRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSegment != nil {
		r.currentSegment.Close()
		r.currentSegment = nil
	}

	segments, err := r.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		r.logger.Info("snapshot is empty, nothing to replay")
		return nil
	}
	r.logger.Info("starting snapshot replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := r.replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}

	r.logger.Info("snapshot replay completed")
	return nil
}

func (r *Repository) replaySegment(ctx context.Context, path string, handler func(domain.RunInfo, domain.AccessRecord) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var e entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			r.logger.Warn("failed to unmarshal snapshot record, skipping", "error", err, "segment", path)
			continue
		}
		if err := handler(e.Run, e.Record); err != nil {
			r.logger.Error("snapshot replay handler failed, stopping replay", "error", err)
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes all snapshot segment files.
func (r *Repository) Truncate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSegment != nil {
		r.currentSegment.Close()
		r.currentSegment = nil
	}

	segments, err := r.getSortedSegments()
	if err != nil {
		return err
	}

	for _, segmentPath := range segments {
		if err := os.Remove(segmentPath); err != nil {
			r.logger.Error("failed to remove snapshot segment", "path", segmentPath, "error", err)
		}
	}

	r.logger.Info("snapshot truncated")
	return r.openLatestSegment()
}

func (r *Repository) rotate() error {
	if r.currentSegment != nil {
		if err := r.currentSegment.Sync(); err != nil {
			r.logger.Error("failed to sync snapshot segment before rotating", "error", err)
		}
		if err := r.currentSegment.Close(); err != nil {
			r.logger.Error("failed to close snapshot segment before rotating", "error", err)
		}
		r.currentSegment = nil
	}

	// The sequence keeps names unique and sorted when rotations share a clock tick.
	r.seq++
	segmentName := fmt.Sprintf("%s%020d-%06d%s", segmentPrefix, time.Now().UnixNano(), r.seq, segmentSuffix)
	path := filepath.Join(r.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new snapshot segment %s: %w", path, err)
	}

	r.currentSegment = f
	r.currentSize = 0
	r.logger.Debug("rotated to new snapshot segment", "path", path)
	return nil
}

func (r *Repository) openLatestSegment() error {
	segments, err := r.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		return r.rotate()
	}

	latestSegmentPath := segments[len(segments)-1]
	stat, err := os.Stat(latestSegmentPath)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latestSegmentPath, err)
	}

	f, err := os.OpenFile(latestSegmentPath, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latestSegmentPath, err)
	}

	r.currentSegment = f
	r.currentSize = stat.Size()
	r.logger.Debug("opened existing snapshot segment", "path", latestSegmentPath, "size", r.currentSize)

	if r.currentSize >= r.maxSegmentSize {
		return r.rotate()
	}

	return nil
}

func (r *Repository) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var segments []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), segmentPrefix) && strings.HasSuffix(e.Name(), segmentSuffix) {
			segments = append(segments, filepath.Join(r.dir, e.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

// Close ensures the current segment is closed gracefully.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentSegment != nil {
		err := r.currentSegment.Close()
		r.currentSegment = nil
		return err
	}
	return nil
}
