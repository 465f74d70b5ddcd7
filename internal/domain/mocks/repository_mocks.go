package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// MockGeoLookup is a mock implementation of domain.GeoLookup for testing.
type MockGeoLookup struct {
	mu      sync.Mutex
	Results map[string]domain.GeoMetadata
	Errors  map[string]error
	Calls   []string

	// Hook, when set, runs before every lookup. Tests use it to block or
	// cancel mid-batch.
	Hook func(ctx context.Context, address string)
}

func (m *MockGeoLookup) Lookup(ctx context.Context, address string) (domain.GeoMetadata, error) {
	if m.Hook != nil {
		m.Hook(ctx, address)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, address)
	if err, ok := m.Errors[address]; ok {
		return domain.GeoMetadata{}, err
	}
	if meta, ok := m.Results[address]; ok {
		return meta, nil
	}
	return domain.GeoMetadata{}, &domain.LookupFailure{Address: address, Reason: "not in mock"}
}

// CallCount returns how many lookups were issued.
func (m *MockGeoLookup) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockGeoCache is a mock implementation of domain.GeoCache for testing.
type MockGeoCache struct {
	mu      sync.Mutex
	Entries map[string]domain.GeoMetadata
	GetErr  error
	SetErr  error
}

func (m *MockGeoCache) Get(ctx context.Context, address string) (domain.GeoMetadata, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return domain.GeoMetadata{}, false, m.GetErr
	}
	meta, ok := m.Entries[address]
	return meta, ok, nil
}

func (m *MockGeoCache) Set(ctx context.Context, address string, meta domain.GeoMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.Entries == nil {
		m.Entries = make(map[string]domain.GeoMetadata)
	}
	m.Entries[address] = meta
	return nil
}

// MockRecordSink is a mock implementation of domain.RecordSink for testing.
type MockRecordSink struct {
	mu       sync.Mutex
	SinkName string
	Runs     []domain.RunInfo
	Written  []domain.AccessRecord
	WriteErr error
}

func (m *MockRecordSink) Name() string {
	if m.SinkName == "" {
		return "mock"
	}
	return m.SinkName
}

func (m *MockRecordSink) WriteRecords(ctx context.Context, run domain.RunInfo, records []domain.AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Runs = append(m.Runs, run)
	m.Written = append(m.Written, records...)
	return nil
}

// StubClassifier is a domain.ClientClassifier backed by a fixed table.
// Unlisted user agents resolve to domain.UnknownClient.
type StubClassifier struct {
	Table map[string]domain.ClientDescriptor
	Panic map[string]bool
}

func (s *StubClassifier) Classify(userAgent string) domain.ClientDescriptor {
	if s.Panic[userAgent] {
		panic("stub classifier: " + userAgent)
	}
	if d, ok := s.Table[userAgent]; ok {
		return d
	}
	return domain.UnknownClient()
}

// MockGeoTableSink is a mock implementation of domain.GeoTableSink for testing.
type MockGeoTableSink struct {
	mu       sync.Mutex
	Tables   [][]domain.GeoMetadata
	WriteErr error
}

func (m *MockGeoTableSink) WriteGeoTable(ctx context.Context, run domain.RunInfo, table []domain.GeoMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Tables = append(m.Tables, table)
	return nil
}
