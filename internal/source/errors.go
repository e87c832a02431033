package source

import (
	"errors"
	"fmt"

	"github.com/windrose-labs/wxbench/internal/model"
)

// UnavailableError reports a transient failure of a source's backing service
// (network, storage, rate limiting). Callers may retry with backoff; after
// the retry budget it downgrades to a per-model skip.
type UnavailableError struct {
	Source model.SourceID
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

// SchemaError reports source data that violates the adapter's declared
// output contract. Fatal for that source: no partial or coerced records are
// ever emitted past it, and it is never retried.
type SchemaError struct {
	Source model.SourceID
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("source %q: schema mismatch: %s", e.Source, e.Reason)
}

// IsSchemaMismatch reports whether err wraps a SchemaError.
func IsSchemaMismatch(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}
