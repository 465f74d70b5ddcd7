package domain

import "context"

// ClientClassifier turns a user-agent string into a ClientDescriptor.
// Implementations must not fail: unknown input yields UnknownClient values.
type ClientClassifier interface {
	Classify(userAgent string) ClientDescriptor
}

// GeoLookup fetches geo metadata for a single address.
type GeoLookup interface {
	// Lookup returns a *LookupFailure when the provider gives no usable answer.
	Lookup(ctx context.Context, address string) (GeoMetadata, error)
}

// GeoCache stores successful lookups between runs.
type GeoCache interface {
	// Get reports found=false on a miss; err is reserved for cache outages.
	Get(ctx context.Context, address string) (meta GeoMetadata, found bool, err error)
	Set(ctx context.Context, address string, meta GeoMetadata) error
}

// RecordSink persists the finalized table.
type RecordSink interface {
	// Name returns a short identifier for logging.
	Name() string
	// WriteRecords stores one run's table.
	WriteRecords(ctx context.Context, run RunInfo, records []AccessRecord) error
}

// GeoTableSink stores the raw lookup results of a run, one entry per address.
type GeoTableSink interface {
	WriteGeoTable(ctx context.Context, run RunInfo, table []GeoMetadata) error
}

// SnapshotRepository keeps a serialized copy of finalized tables that can be
// loaded again later.
type SnapshotRepository interface {
	RecordSink

	// Replay reads every stored record and hands it to handler in write order.
	Replay(ctx context.Context, handler func(run RunInfo, record AccessRecord) error) error

	// Truncate removes all snapshot segments.
	Truncate(ctx context.Context) error
}
