package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// TimestampLayout is the access-log timestamp format, e.g. 22/Jan/2019:03:56:14 +0330.
const TimestampLayout = "02/Jan/2006:15:04:05 -0700"

// TimestampPolicy decides what happens to a record whose timestamp does not
// follow TimestampLayout.
type TimestampPolicy string

const (
	// TimestampSkip drops the offending record and keeps going.
	TimestampSkip TimestampPolicy = "skip"
	// TimestampAbort fails the whole normalization pass.
	TimestampAbort TimestampPolicy = "abort"
)

// ParseTimestampPolicy validates a configured policy name.
func ParseTimestampPolicy(s string) (TimestampPolicy, error) {
	switch p := TimestampPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case TimestampSkip, TimestampAbort:
		return p, nil
	case "":
		return TimestampSkip, nil
	default:
		return "", fmt.Errorf("unknown timestamp policy %q", s)
	}
}

// NormalizeResult is the output of the normalization stage.
type NormalizeResult struct {
	Records      []domain.LogRecord
	FormatErrors []error
	Duplicates   int
}

// ParseTimestamp reads an access-log timestamp and returns the same wall
// clock with the offset discarded. "+0330" is not applied: 03:56:14 stays
// 03:56:14. The result is carried in time.UTC only as a zone-less marker.
func ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

// Normalize parses timestamps, uppercases methods and removes exact
// duplicates, then checks that no record is left without a timestamp.
// The input slice is not modified.
func Normalize(records []domain.LogRecord, policy TimestampPolicy, logger *slog.Logger) (NormalizeResult, error) {
	var res NormalizeResult
	out := make([]domain.LogRecord, 0, len(records))

	for _, rec := range records {
		ts, err := ParseTimestamp(rec.RawTimestamp)
		if err != nil {
			ferr := &domain.FormatError{Line: rec.Line, Value: rec.RawTimestamp, Err: err}
			if policy == TimestampAbort {
				return NormalizeResult{}, ferr
			}
			logger.Warn("dropping record with malformed timestamp", "line", rec.Line, "error", ferr)
			res.FormatErrors = append(res.FormatErrors, ferr)
			continue
		}
		rec.Timestamp = ts
		rec.Method = strings.ToUpper(rec.Method)
		out = append(out, rec)
	}

	out, res.Duplicates = Dedupe(out)
	if res.Duplicates > 0 {
		logger.Debug("removed duplicate records", "count", res.Duplicates)
	}

	if err := CheckTimestamps(out); err != nil {
		return NormalizeResult{}, err
	}

	res.Records = out
	return res, nil
}

// recordKey holds every data field of a LogRecord. Line is excluded: two
// identical requests on different lines are still duplicates.
type recordKey struct {
	address, rawTimestamp string
	timestamp             int64
	method, url, protocol string
	status                int
	size                  int64
	userAgent             string
}

func keyOf(r domain.LogRecord) recordKey {
	return recordKey{
		address:      r.Address,
		rawTimestamp: r.RawTimestamp,
		timestamp:    r.Timestamp.UnixNano(),
		method:       r.Method,
		url:          r.URL,
		protocol:     r.Protocol,
		status:       r.Status,
		size:         r.Size,
		userAgent:    r.UserAgent,
	}
}

// Dedupe keeps the first of each group of field-equal records, preserving
// order, and returns how many were removed.
func Dedupe(records []domain.LogRecord) ([]domain.LogRecord, int) {
	seen := make(map[recordKey]struct{}, len(records))
	out := make([]domain.LogRecord, 0, len(records))
	for _, r := range records {
		k := keyOf(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// CheckTimestamps fails with *domain.InvariantViolation if any record has a
// zero timestamp.
func CheckTimestamps(records []domain.LogRecord) error {
	missing := 0
	for _, r := range records {
		if r.Timestamp.IsZero() {
			missing++
		}
	}
	if missing > 0 {
		return &domain.InvariantViolation{Invariant: "timestamp is set on every record", Count: missing}
	}
	return nil
}
