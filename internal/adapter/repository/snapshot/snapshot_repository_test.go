package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

func setupTestSnapshot(t *testing.T, maxSegmentSize int64) *Repository {
	t.Helper()
	dir := t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := NewRepository(dir, maxSegmentSize, logger)
	if err != nil {
		t.Fatalf("failed to create snapshot repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecords(n int) []domain.AccessRecord {
	out := make([]domain.AccessRecord, n)
	for i := range out {
		addr := fmt.Sprintf("10.0.0.%d", i)
		out[i] = domain.AccessRecord{
			IP:     addr,
			Date:   time.Date(2019, 1, 22, 3, 56, i, 0, time.UTC),
			Method: "GET",
			URL:    fmt.Sprintf("/page/%d", i),
			Status: 200,
			Lat:    1.5,
			Org:    "Not Found",
			Query:  addr,
		}
	}
	return out
}

func TestSnapshot_WriteAndReplay(t *testing.T) {
	repo := setupTestSnapshot(t, 300)
	ctx := context.Background()

	runA := domain.RunInfo{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Second), Source: "a.log"}
	runB := domain.RunInfo{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Second), Source: "b.log"}
	recsA := testRecords(5)
	recsB := testRecords(3)

	if err := repo.WriteRecords(ctx, runA, recsA); err != nil {
		t.Fatalf("failed to write run A: %v", err)
	}
	if err := repo.WriteRecords(ctx, runB, recsB); err != nil {
		t.Fatalf("failed to write run B: %v", err)
	}
	repo.Close()

	segments, err := repo.getSortedSegments()
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected rotation into several segments, got %d", len(segments))
	}

	// Re-open the directory to simulate a later load
	repo, err = NewRepository(repo.dir, 300, repo.logger)
	if err != nil {
		t.Fatalf("failed to re-open snapshot: %v", err)
	}
	defer repo.Close()

	var runs []domain.RunInfo
	var replayed []domain.AccessRecord
	err = repo.Replay(ctx, func(run domain.RunInfo, rec domain.AccessRecord) error {
		runs = append(runs, run)
		replayed = append(replayed, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to replay: %v", err)
	}

	want := append(append([]domain.AccessRecord{}, recsA...), recsB...)
	if len(replayed) != len(want) {
		t.Fatalf("expected %d replayed records, got %d", len(want), len(replayed))
	}
	for i := range want {
		if replayed[i].IP != want[i].IP || replayed[i].URL != want[i].URL || !replayed[i].Date.Equal(want[i].Date) {
			t.Errorf("replayed record mismatch at index %d: got %+v, want %+v", i, replayed[i], want[i])
		}
	}
	if runs[0].ID != runA.ID || runs[len(runs)-1].ID != runB.ID || runs[len(runs)-1].Source != "b.log" {
		t.Errorf("run info not preserved: first %+v last %+v", runs[0], runs[len(runs)-1])
	}
}

func TestSnapshot_ReplayHandlerError(t *testing.T) {
	repo := setupTestSnapshot(t, 1<<20)
	ctx := context.Background()
	if err := repo.WriteRecords(ctx, domain.RunInfo{ID: "r"}, testRecords(4)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	boom := errors.New("boom")
	calls := 0
	err := repo.Replay(ctx, func(domain.RunInfo, domain.AccessRecord) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected replay to stop after 2 records, got %d", calls)
	}
}

func TestSnapshot_SkipsCorruptLines(t *testing.T) {
	repo := setupTestSnapshot(t, 1<<20)
	ctx := context.Background()
	if err := repo.WriteRecords(ctx, domain.RunInfo{ID: "r"}, testRecords(2)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	repo.Close()
	segments, _ := repo.getSortedSegments()
	f, err := os.OpenFile(segments[len(segments)-1], os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		t.Fatalf("failed to open segment: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()

	count := 0
	if err := repo.Replay(ctx, func(domain.RunInfo, domain.AccessRecord) error { count++; return nil }); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}
}

func TestSnapshot_Truncate(t *testing.T) {
	repo := setupTestSnapshot(t, 200)
	ctx := context.Background()

	if err := repo.WriteRecords(ctx, domain.RunInfo{ID: "r"}, testRecords(6)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := repo.Truncate(ctx); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}

	count := 0
	if err := repo.Replay(ctx, func(domain.RunInfo, domain.AccessRecord) error { count++; return nil }); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty snapshot after truncate, got %d records", count)
	}

	files, _ := filepath.Glob(filepath.Join(repo.dir, segmentPrefix+"*"))
	if len(files) != 1 {
		t.Errorf("expected a single fresh segment after truncate, got %d", len(files))
	}
}
