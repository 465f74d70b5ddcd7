package usecase

import (
	"log/slog"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// ResolveClients replaces each record's raw user agent with its descriptor.
// Each distinct user agent is classified once. A classifier panic on one
// string degrades that string to domain.UnknownClient.
func ResolveClients(records []domain.LogRecord, classifier domain.ClientClassifier, logger *slog.Logger) []domain.ClientRecord {
	cache := make(map[string]domain.ClientDescriptor)
	out := make([]domain.ClientRecord, len(records))

	for i, r := range records {
		d, ok := cache[r.UserAgent]
		if !ok {
			d = classify(classifier, r.UserAgent, logger)
			cache[r.UserAgent] = d
		}
		out[i] = domain.ClientRecord{
			Address:   r.Address,
			Timestamp: r.Timestamp,
			Method:    r.Method,
			URL:       r.URL,
			Protocol:  r.Protocol,
			Status:    r.Status,
			Size:      r.Size,
			Client:    d,
		}
	}
	return out
}

func classify(classifier domain.ClientClassifier, userAgent string, logger *slog.Logger) (d domain.ClientDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("user agent classification failed", "user_agent", userAgent, "panic", r)
			d = domain.UnknownClient()
		}
	}()
	return classifier.Classify(userAgent)
}
