package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// LoadResult summarizes a snapshot load.
type LoadResult struct {
	Runs int
	Rows int
}

// LoadSnapshot replays a snapshot and writes every stored run, in order, to
// the given sinks.
func LoadSnapshot(ctx context.Context, snap domain.SnapshotRepository, sinks []domain.RecordSink, logger *slog.Logger) (LoadResult, error) {
	if len(sinks) == 0 {
		return LoadResult{}, domain.ErrNoSinks
	}

	var (
		res     LoadResult
		current domain.RunInfo
		batch   []domain.AccessRecord
		started bool
	)
	flush := func() error {
		if !started {
			return nil
		}
		for _, sink := range sinks {
			if err := sink.WriteRecords(ctx, current, batch); err != nil {
				return fmt.Errorf("sink %s: run %s: %w", sink.Name(), current.ID, err)
			}
		}
		logger.Info("snapshot run loaded", "run_id", current.ID, "rows", len(batch))
		res.Runs++
		res.Rows += len(batch)
		batch = nil
		return nil
	}

	err := snap.Replay(ctx, func(run domain.RunInfo, rec domain.AccessRecord) error {
		if started && run.ID != current.ID {
			if err := flush(); err != nil {
				return err
			}
		}
		current = run
		started = true
		batch = append(batch, rec)
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}
