package crawler

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned by scorers that have no model configured.
var ErrModelUnavailable = errors.New("sentiment model unavailable")

// ErrNotFound is returned by stores when a keyed lookup misses.
var ErrNotFound = errors.New("not found")

// ErrQueueFull is returned when an async job cannot be accepted.
var ErrQueueFull = errors.New("job queue full")

// ErrJobFinished is returned when canceling a job that already reached a terminal status.
var ErrJobFinished = errors.New("job already finished")

// ValidationError rejects a request before any work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NetworkError is returned once every fetch attempt for URL has failed.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError describes one item that could not be extracted.
type ParseError struct {
	Source string
	Index  int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s item %d: %v", e.Source, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ModelError wraps a failed or malformed scoring call.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("sentiment model: %v", e.Err) }

func (e *ModelError) Unwrap() error { return e.Err }

// PersistenceError reports a failed batch write.
type PersistenceError struct {
	Collection string
	Batch      int
	Size       int
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s batch %d (%d records): %v", e.Collection, e.Batch, e.Size, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// JobError wraps an unexpected failure that aborted a request.
type JobError struct {
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
