package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

func record(ip, org string) domain.AccessRecord {
	return domain.AccessRecord{
		IP:          ip,
		Date:        time.Date(2019, 1, 22, 3, 56, 14, 0, time.UTC),
		Method:      "GET",
		URL:         "/",
		Protocol:    "HTTP/1.1",
		Status:      200,
		IsPC:        true,
		Browser:     "Chrome",
		OS:          "Windows",
		Country:     "Iran",
		CountryCode: "IR",
		RegionName:  "Tehran",
		City:        "Tehran",
		Lat:         35.6892,
		Lon:         51.389,
		ISP:         "ISP",
		Org:         org,
		AS:          "AS1 X",
		Query:       ip,
	}
}

func TestTableRepository_WriteRecords(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewTableRepository(db, "log", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, repo.WriteRecords(ctx, domain.RunInfo{ID: "a"}, []domain.AccessRecord{record("1.1.1.1", "A"), record("2.2.2.2", "B")}))
	require.NoError(t, repo.WriteRecords(ctx, domain.RunInfo{ID: "b"}, []domain.AccessRecord{record("3.3.3.3", "Not Found")}))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "log"`).Scan(&count))
	assert.Equal(t, 1, count, "each run replaces the table")

	var (
		ip, date, org, as string
		status            int
		isPC              bool
		lat               float64
	)
	row := db.QueryRowContext(ctx, `SELECT "ip", "date", "org", "as", "status", "is_pc", "lat" FROM "log"`)
	require.NoError(t, row.Scan(&ip, &date, &org, &as, &status, &isPC, &lat))
	assert.Equal(t, "3.3.3.3", ip)
	assert.Equal(t, "2019-01-22 03:56:14", date)
	assert.Equal(t, "Not Found", org)
	assert.Equal(t, "AS1 X", as)
	assert.Equal(t, 200, status)
	assert.True(t, isPC)
	assert.InDelta(t, 35.6892, lat, 1e-9)
}

func TestNewTableRepository_RejectsBadName(t *testing.T) {
	_, err := NewTableRepository(nil, `log"; DROP TABLE x; --`, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
