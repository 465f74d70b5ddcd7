package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/weblog-etl/internal/adapter/metrics"
	"github.com/V4T54L/weblog-etl/internal/domain"
	"github.com/V4T54L/weblog-etl/internal/domain/mocks"
)

const (
	botUA    = "Mozilla/5.0 (compatible; AhrefsBot/6.1; +http://ahrefs.com/robot/)"
	phoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 12_1 like Mac OS X)"
	sampleIP = "54.36.149.41"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }
func boolp(b bool) *bool      { return &b }

func completeGeo(addr string) domain.GeoMetadata {
	return domain.GeoMetadata{
		Status:      strp("success"),
		Continent:   strp("Europe"),
		Country:     strp("France"),
		CountryCode: strp("FR"),
		RegionName:  strp("Hauts-de-France"),
		City:        strp("Roubaix"),
		Lat:         f64p(50.6942),
		Lon:         f64p(3.17456),
		ISP:         strp("OVH SAS"),
		Org:         strp("OVH"),
		AS:          strp("AS16276 OVH SAS"),
		Proxy:       boolp(false),
		Hosting:     boolp(true),
		Query:       addr,
	}
}

func sampleLog() string {
	return strings.Join([]string{
		`54.36.149.41 - - [22/Jan/2019:03:56:14 +0330] "GET /filter/27|13%20test HTTP/1.1" 200 30577 "-" "` + botUA + `"`,
		`54.36.149.41 - - [22/Jan/2019:03:56:14 +0330] "GET /filter/27|13%20test HTTP/1.1" 200 30577 "-" "` + botUA + `"`,
		`31.56.96.51 - - [22/Jan/2019:03:56:16 +0330] "get /Image/60844/productModel/200x200 HTTP/1.1" 200 5667 "-" "` + phoneUA + `"`,
		`10.0.0.1 - - [22/Jan/2019:03:56:17 +0330] "GET /?x=1 HTTP/1.1" 304 0 "-" "` + phoneUA + `"`,
		`66.249.66.194 - - [22/Jan/2019:03:56:18 +0330] "GET / HTTP/1.1" 200 10 "-" "` + botUA + `"`,
		`66.249.66.195 - - [bad timestamp] "GET / HTTP/1.1" 200 10 "-" "` + botUA + `"`,
		`not a log line`,
		`91.99.72.15 - - [22/Jan/2019:03:56:19 +0330] "GET /tail HTTP/1.1" 200 1 "-" "Mozil`,
	}, "\n")
}

func newTestPipeline(lookup domain.GeoLookup, sink domain.RecordSink, policy TimestampPolicy, m *metrics.PipelineMetrics) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := &mocks.StubClassifier{Table: map[string]domain.ClientDescriptor{
		botUA:   {Browser: "AhrefsBot", OS: "Other", Device: "Spider", IsBot: true},
		phoneUA: {Browser: "Mobile Safari", OS: "iOS", Device: "iPhone", IsMobile: true},
	}}
	enricher := NewGeoEnricher(lookup, nil, 2, logger, m)
	var sinks []domain.RecordSink
	if sink != nil {
		sinks = append(sinks, sink)
	}
	return NewPipeline(classifier, enricher, sinks, PipelineOptions{TimestampPolicy: policy, RetryCount: 2, RetryBackoff: time.Millisecond}, logger, m)
}

func TestPipeline_Run(t *testing.T) {
	t.Run("Successful Run", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{
			Results: map[string]domain.GeoMetadata{
				sampleIP:      completeGeo(sampleIP),
				"31.56.96.51": completeGeo("31.56.96.51"),
				"10.0.0.1":    {Status: strp("fail"), Message: strp("private range"), Query: "10.0.0.1"},
			},
			Errors: map[string]error{
				"66.249.66.194": &domain.LookupFailure{Address: "66.249.66.194", Reason: "http status 429"},
			},
		}
		sink := &mocks.MockRecordSink{}
		reg := prometheus.NewRegistry()
		m := metrics.NewPipelineMetrics(reg)
		p := newTestPipeline(lookup, sink, TimestampSkip, m)

		res, err := p.Run(context.Background(), "access.log", sampleLog())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(sink.Written) != 2 {
			t.Fatalf("expected 2 rows written, got %d", len(sink.Written))
		}
		if len(sink.Runs) != 1 || sink.Runs[0].ID != res.Run.ID || res.Run.ID == "" {
			t.Errorf("expected sink to receive run %q, got %+v", res.Run.ID, sink.Runs)
		}

		first := sink.Written[0]
		if first.IP != sampleIP || first.URL != "/filter/27-13-test" || first.Method != "GET" || !first.IsBot {
			t.Errorf("unexpected first row: %+v", first)
		}
		want := time.Date(2019, time.January, 22, 3, 56, 14, 0, time.UTC)
		if !first.Date.Equal(want) {
			t.Errorf("expected wall clock %v, got %v", want, first.Date)
		}
		second := sink.Written[1]
		if second.Method != "GET" || second.URL != "/image/60844/productmodel/200x200" || !second.IsMobile {
			t.Errorf("unexpected second row: %+v", second)
		}

		st := res.Stats
		if st.LinesSeen != 8 || st.LinesSkipped != 2 || st.FormatErrors != 1 || st.Duplicates != 1 {
			t.Errorf("unexpected parse/normalize stats: %+v", st)
		}
		if st.DistinctAddresses != 4 || st.LookupsOK != 3 || st.LookupsFailed != 1 {
			t.Errorf("unexpected lookup stats: %+v", st)
		}
		if st.DroppedNoGeo != 2 || st.Finalized != 2 || st.EmptyURLs != 2 {
			t.Errorf("unexpected merge stats: %+v", st)
		}

		if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("duplicate")); got != 1 {
			t.Errorf("expected duplicate counter 1, got %v", got)
		}
		if got := testutil.ToFloat64(m.LookupsTotal.WithLabelValues("failed")); got != 1 {
			t.Errorf("expected failed lookup counter 1, got %v", got)
		}
		if got := testutil.ToFloat64(m.RowsWritten.WithLabelValues("mock")); got != 2 {
			t.Errorf("expected 2 rows written metric, got %v", got)
		}
	})

	t.Run("Geo Table Written After Sinks", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{
			Results: map[string]domain.GeoMetadata{
				sampleIP:      completeGeo(sampleIP),
				"31.56.96.51": completeGeo("31.56.96.51"),
				"10.0.0.1":    {Status: strp("fail"), Message: strp("private range"), Query: "10.0.0.1"},
			},
		}
		sink := &mocks.MockRecordSink{}
		geoTable := &mocks.MockGeoTableSink{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		classifier := &mocks.StubClassifier{}
		p := NewPipeline(classifier, NewGeoEnricher(lookup, nil, 2, logger, nil), []domain.RecordSink{sink},
			PipelineOptions{GeoTable: geoTable, RetryCount: 1, RetryBackoff: time.Millisecond}, logger, nil)

		res, err := p.Run(context.Background(), "access.log", sampleLog())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(geoTable.Tables) != 1 {
			t.Fatalf("expected one geo table, got %d", len(geoTable.Tables))
		}
		var queries []string
		for _, meta := range geoTable.Tables[0] {
			queries = append(queries, meta.Query)
		}
		want := []string{sampleIP, "31.56.96.51", "10.0.0.1"}
		if strings.Join(queries, ",") != strings.Join(want, ",") {
			t.Errorf("expected geo table in first-seen order %v, got %v", want, queries)
		}
		if len(res.Geo) != 3 {
			t.Errorf("expected 3 geo entries on the result, got %d", len(res.Geo))
		}
	})

	t.Run("Geo Table Failure", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{Results: map[string]domain.GeoMetadata{sampleIP: completeGeo(sampleIP)}}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		p := NewPipeline(&mocks.StubClassifier{}, NewGeoEnricher(lookup, nil, 1, logger, nil), []domain.RecordSink{&mocks.MockRecordSink{}},
			PipelineOptions{GeoTable: &mocks.MockGeoTableSink{WriteErr: errors.New("read-only fs")}}, logger, nil)

		_, err := p.Run(context.Background(), "access.log", sampleLog())
		if err == nil || !strings.Contains(err.Error(), "read-only fs") {
			t.Fatalf("expected geo table error, got %v", err)
		}
	})

	t.Run("Timestamp Abort Policy", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{}
		sink := &mocks.MockRecordSink{}
		p := newTestPipeline(lookup, sink, TimestampAbort, nil)

		_, err := p.Run(context.Background(), "access.log", sampleLog())

		var ferr *domain.FormatError
		if !errors.As(err, &ferr) {
			t.Fatalf("expected FormatError, got %v", err)
		}
		if len(sink.Written) != 0 || len(sink.Runs) != 0 {
			t.Error("sink must not be called when normalization fails")
		}
		if lookup.CallCount() != 0 {
			t.Error("no lookups expected after a failed normalization")
		}
	})

	t.Run("Sink Failure with Retry", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{Results: map[string]domain.GeoMetadata{sampleIP: completeGeo(sampleIP)}}
		sink := &mocks.MockRecordSink{WriteErr: errors.New("database is down")}
		p := newTestPipeline(lookup, sink, TimestampSkip, nil)

		_, err := p.Run(context.Background(), "access.log", sampleLog())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if !strings.Contains(err.Error(), "database is down") {
			t.Errorf("expected sink error to be wrapped, got %v", err)
		}
	})

	t.Run("No Sinks", func(t *testing.T) {
		p := newTestPipeline(&mocks.MockGeoLookup{}, nil, TimestampSkip, nil)

		_, err := p.Run(context.Background(), "access.log", sampleLog())

		if !errors.Is(err, domain.ErrNoSinks) {
			t.Fatalf("expected ErrNoSinks, got %v", err)
		}
	})

	t.Run("Empty Input", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{}
		sink := &mocks.MockRecordSink{}
		p := newTestPipeline(lookup, sink, TimestampSkip, nil)

		res, err := p.Run(context.Background(), "access.log", "")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Stats.Finalized != 0 || len(sink.Written) != 0 {
			t.Errorf("expected empty table, got %d rows", res.Stats.Finalized)
		}
		if lookup.CallCount() != 0 {
			t.Errorf("expected no lookups, got %d", lookup.CallCount())
		}
	})

	t.Run("Multiple Windows", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{Results: map[string]domain.GeoMetadata{sampleIP: completeGeo(sampleIP)}}
		sink := &mocks.MockRecordSink{}
		p := newTestPipeline(lookup, sink, TimestampSkip, nil)
		line := `54.36.149.41 - - [22/Jan/2019:03:56:14 +0330] "GET /a HTTP/1.1" 200 1 "-" "` + botUA + `"`
		other := `54.36.149.41 - - [22/Jan/2019:03:56:15 +0330] "GET /b HTTP/1.1" 200 1 "-" "` + botUA + `"`

		res, err := p.Run(context.Background(), "access.log", line+"\n", line+"\n"+other+"\n")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Stats.Duplicates != 1 || res.Stats.Finalized != 2 {
			t.Errorf("expected duplicates across windows to be removed, got %+v", res.Stats)
		}
		if lookup.CallCount() != 1 {
			t.Errorf("expected one lookup per distinct address, got %d", lookup.CallCount())
		}
	})
}

func TestPipeline_RunFile(t *testing.T) {
	line := func(path string) string {
		return `54.36.149.41 - - [22/Jan/2019:03:56:14 +0330] "GET ` + path + ` HTTP/1.1" 200 1 "-" "` + botUA + `"`
	}
	content := strings.Join([]string{line("/a"), line("/b"), line("/c")}, "\n") + "\n"
	path := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	window := int64(len(line("/a")) + 10)

	t.Run("Single Window", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{Results: map[string]domain.GeoMetadata{sampleIP: completeGeo(sampleIP)}}
		sink := &mocks.MockRecordSink{}
		res, err := newTestPipeline(lookup, sink, TimestampSkip, nil).RunFile(context.Background(), path, window, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Stats.LinesSeen != 1 || len(sink.Written) != 1 || res.Run.Source != path {
			t.Errorf("expected only the first window to be processed, got %+v", res.Stats)
		}
	})

	t.Run("Whole File", func(t *testing.T) {
		lookup := &mocks.MockGeoLookup{Results: map[string]domain.GeoMetadata{sampleIP: completeGeo(sampleIP)}}
		sink := &mocks.MockRecordSink{}
		res, err := newTestPipeline(lookup, sink, TimestampSkip, nil).RunFile(context.Background(), path, window, true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Stats.LinesSeen != 3 || len(sink.Written) != 3 {
			t.Errorf("expected every line to be processed, got %+v", res.Stats)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := newTestPipeline(&mocks.MockGeoLookup{}, &mocks.MockRecordSink{}, TimestampSkip, nil).RunFile(context.Background(), path+".missing", window, false)
		if err == nil {
			t.Fatal("expected an error for a missing input")
		}
	})
}
