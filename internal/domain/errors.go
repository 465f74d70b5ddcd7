package domain

import (
	"errors"
	"fmt"
)

// ErrNoSinks is returned when a run is configured without any output.
var ErrNoSinks = errors.New("no sinks configured")

// ParseError reports a line that matched the access-log pattern but carried a
// numeric field that does not fit an integer. Only that record is lost.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: parse %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports a timestamp that does not follow the access-log layout.
type FormatError struct {
	Line  int
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: timestamp %q: %v", e.Line, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// LookupFailure reports that no geo metadata could be obtained for an address.
type LookupFailure struct {
	Address string
	Reason  string
	Err     error
}

func (e *LookupFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geo lookup %s: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("geo lookup %s: %s", e.Address, e.Reason)
}

func (e *LookupFailure) Unwrap() error { return e.Err }

// InvariantViolation is raised when normalized data breaks a guarantee the
// sinks rely on. A run that hits one must not persist anything.
type InvariantViolation struct {
	Invariant string
	Count     int
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s (%d records)", e.Invariant, e.Count)
}
