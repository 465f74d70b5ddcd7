package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/weblog-etl/internal/domain"
	"github.com/V4T54L/weblog-etl/internal/domain/mocks"
)

type memorySnapshot struct {
	mocks.MockRecordSink
}

func (m *memorySnapshot) Replay(ctx context.Context, handler func(domain.RunInfo, domain.AccessRecord) error) error {
	for i, rec := range m.Written {
		run := m.Runs[0]
		if i >= 2 {
			run = m.Runs[1]
		}
		if err := handler(run, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *memorySnapshot) Truncate(ctx context.Context) error { return nil }

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	snap := &memorySnapshot{}
	require.NoError(t, snap.WriteRecords(ctx, domain.RunInfo{ID: "a"}, []domain.AccessRecord{{IP: "1"}, {IP: "2"}}))
	require.NoError(t, snap.WriteRecords(ctx, domain.RunInfo{ID: "b"}, []domain.AccessRecord{{IP: "3"}}))

	target := &mocks.MockRecordSink{SinkName: "sqlite"}
	res, err := LoadSnapshot(ctx, snap, []domain.RecordSink{target}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, LoadResult{Runs: 2, Rows: 3}, res)
	require.Len(t, target.Runs, 2)
	assert.Equal(t, "a", target.Runs[0].ID)
	assert.Equal(t, "b", target.Runs[1].ID)
	assert.Len(t, target.Written, 3)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	ctx := context.Background()
	snap := &memorySnapshot{}
	require.NoError(t, snap.WriteRecords(ctx, domain.RunInfo{ID: "a"}, []domain.AccessRecord{{IP: "1"}}))

	_, err := LoadSnapshot(ctx, snap, nil, discardLogger())
	assert.ErrorIs(t, err, domain.ErrNoSinks)

	failing := &mocks.MockRecordSink{WriteErr: errors.New("locked")}
	_, err = LoadSnapshot(ctx, snap, []domain.RecordSink{failing}, discardLogger())
	assert.ErrorContains(t, err, "locked")
}
