// Package corerr defines the error kinds shared across the ingest pipeline,
// realising §7's error taxonomy as Go sentinel and wrapped error values.
package corerr

import "errors"

// Sentinel error kinds. Call sites wrap these with fmt.Errorf("...: %w", ErrX)
// so callers can still errors.Is against the kind after context is added.
var (
	// ErrParseSkip marks a single unparseable line; the tail/parser layer
	// drops it silently and continues.
	ErrParseSkip = errors.New("logline: unparseable line skipped")

	// ErrTailIO marks a failure reading or seeking the log file.
	ErrTailIO = errors.New("tail: io failure")

	// ErrDefinitionLoad marks a malformed definition file; the loader skips
	// that file and continues with the rest.
	ErrDefinitionLoad = errors.New("defs: malformed definition file")

	// ErrWriterIO marks an encounter-file write or read failure. The
	// encounter's summary stays in the session history.
	ErrWriterIO = errors.New("storage: encounter write failed")

	// ErrQuery marks a query-layer failure, returned to the caller.
	ErrQuery = errors.New("storage: query failed")

	// ErrTimeOverflow marks a duration computation that went negative
	// because of an unresolved midnight wrap.
	ErrTimeOverflow = errors.New("encounter: unresolved time overflow")
)

// DefinitionLoadError carries the offending file path alongside the
// underlying cause, while still satisfying errors.Is(err, ErrDefinitionLoad).
type DefinitionLoadError struct {
	Path string
	Err  error
}

func (e *DefinitionLoadError) Error() string {
	return "defs: " + e.Path + ": " + e.Err.Error()
}

func (e *DefinitionLoadError) Unwrap() []error {
	return []error{ErrDefinitionLoad, e.Err}
}
