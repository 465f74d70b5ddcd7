package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/V4T54L/weblog-etl/internal/adapter/metrics"
	"github.com/V4T54L/weblog-etl/internal/domain"
)

const (
	defaultGeoWorkers = 4

	// NotFound replaces a missing organization.
	NotFound = "Not Found"
)

// GeoEnricher resolves geo metadata for the distinct addresses of a table.
type GeoEnricher struct {
	lookup  domain.GeoLookup
	cache   domain.GeoCache
	workers int
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

// NewGeoEnricher creates a GeoEnricher. cache and m may be nil.
func NewGeoEnricher(lookup domain.GeoLookup, cache domain.GeoCache, workers int, logger *slog.Logger, m *metrics.PipelineMetrics) *GeoEnricher {
	if workers <= 0 {
		workers = defaultGeoWorkers
	}
	return &GeoEnricher{
		lookup:  lookup,
		cache:   cache,
		workers: workers,
		logger:  logger.With("component", "geo_enricher"),
		metrics: m,
	}
}

// GeoResult is the outcome of one batch of lookups, keyed by address.
type GeoResult struct {
	Metadata  map[string]domain.GeoMetadata
	Failed    map[string]error
	Cached    int
	Abandoned int
}

type lookupOutcome struct {
	address   string
	meta      domain.GeoMetadata
	err       error
	cached    bool
	abandoned bool
}

// DistinctAddresses lists each address once, in first-seen order.
func DistinctAddresses(records []domain.ClientRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if r.Address == "" {
			continue
		}
		if _, ok := seen[r.Address]; ok {
			continue
		}
		seen[r.Address] = struct{}{}
		out = append(out, r.Address)
	}
	return out
}

// Enrich looks up every address with a bounded number of concurrent workers.
// A failed address never affects the others. Cancelling ctx stops dispatch;
// addresses not yet started are counted as abandoned and results already
// gathered are returned.
func (e *GeoEnricher) Enrich(ctx context.Context, addresses []string) GeoResult {
	res := GeoResult{
		Metadata: make(map[string]domain.GeoMetadata, len(addresses)),
		Failed:   make(map[string]error),
	}
	if len(addresses) == 0 {
		return res
	}

	jobs := make(chan string)
	outcomes := make(chan lookupOutcome)

	var wg sync.WaitGroup
	workers := min(e.workers, len(addresses))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				outcomes <- e.lookupOne(ctx, addr)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, addr := range addresses {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- addr:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Only this goroutine writes to res.
	for o := range outcomes {
		switch {
		case o.abandoned:
			// counted below with the never-dispatched addresses
		case o.err != nil:
			res.Failed[o.address] = o.err
			e.observe("failed")
		default:
			res.Metadata[o.address] = o.meta
			if o.cached {
				res.Cached++
				e.observe("cached")
			} else {
				e.observe("ok")
			}
		}
	}

	res.Abandoned = len(addresses) - len(res.Metadata) - len(res.Failed)
	if res.Abandoned > 0 {
		e.logger.Warn("geo lookups abandoned", "count", res.Abandoned, "error", ctx.Err())
		if e.metrics != nil {
			e.metrics.LookupsTotal.WithLabelValues("abandoned").Add(float64(res.Abandoned))
		}
	}
	return res
}

func (e *GeoEnricher) lookupOne(ctx context.Context, address string) lookupOutcome {
	if ctx.Err() != nil {
		return lookupOutcome{address: address, abandoned: true}
	}

	if e.cache != nil {
		meta, found, err := e.cache.Get(ctx, address)
		if err != nil {
			e.logger.Warn("geo cache read failed", "address", address, "error", err)
		} else if found {
			return lookupOutcome{address: address, meta: meta, cached: true}
		}
	}

	meta, err := e.lookup.Lookup(ctx, address)
	if err == nil && meta.Query != "" && meta.Query != address {
		err = &domain.LookupFailure{Address: address, Reason: "provider answered for " + meta.Query}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lookupOutcome{address: address, abandoned: true}
		}
		e.logger.Warn("geo lookup failed, address will have no geo data", "address", address, "error", err)
		return lookupOutcome{address: address, err: err}
	}
	if meta.Query == "" {
		meta.Query = address
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, address, meta); err != nil {
			e.logger.Warn("geo cache write failed", "address", address, "error", err)
		}
	}
	return lookupOutcome{address: address, meta: meta}
}

func (e *GeoEnricher) observe(outcome string) {
	if e.metrics != nil {
		e.metrics.LookupsTotal.WithLabelValues(outcome).Inc()
	}
}

// MergeStats reports what MergeGeo dropped or defaulted.
type MergeStats struct {
	DroppedNoGeo int
	OrgDefaulted int
}

// MergeGeo left-joins records onto geo metadata by address and applies the
// finalization policy: rows without complete geo data are dropped, a missing
// organization becomes NotFound, and proxy/hosting default to false.
func MergeGeo(records []domain.ClientRecord, geo map[string]domain.GeoMetadata) ([]domain.AccessRecord, MergeStats) {
	var stats MergeStats
	out := make([]domain.AccessRecord, 0, len(records))

	for _, r := range records {
		meta, ok := geo[r.Address]
		if !ok || !geoComplete(meta) {
			stats.DroppedNoGeo++
			continue
		}

		org := NotFound
		if meta.Org != nil {
			org = *meta.Org
		} else {
			stats.OrgDefaulted++
		}

		out = append(out, domain.AccessRecord{
			IP:          r.Address,
			Date:        r.Timestamp,
			Method:      r.Method,
			URL:         r.URL,
			Protocol:    r.Protocol,
			Status:      r.Status,
			IsMobile:    r.Client.IsMobile,
			IsTablet:    r.Client.IsTablet,
			IsPC:        r.Client.IsPC,
			IsBot:       r.Client.IsBot,
			Browser:     r.Client.Browser,
			OS:          r.Client.OS,
			Continent:   deref(meta.Continent),
			Country:     *meta.Country,
			CountryCode: *meta.CountryCode,
			RegionName:  *meta.RegionName,
			City:        *meta.City,
			Lat:         *meta.Lat,
			Lon:         *meta.Lon,
			ISP:         *meta.ISP,
			Org:         org,
			AS:          *meta.AS,
			Proxy:       meta.Proxy != nil && *meta.Proxy,
			Hosting:     meta.Hosting != nil && *meta.Hosting,
			Query:       meta.Query,
		})
	}
	return out, stats
}

// geoComplete reports whether every mandatory geo column is present.
func geoComplete(m domain.GeoMetadata) bool {
	return m.Country != nil && m.Lat != nil && m.Lon != nil && m.City != nil &&
		m.AS != nil && m.CountryCode != nil && m.RegionName != nil && m.ISP != nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
