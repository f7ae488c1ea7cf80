package trace

import (
	"errors"
	"fmt"
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Backend type ("sqlite", "file", "memory")
	Operation string // Operation that failed ("save_trace", "list", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// NotFoundError reports a lookup for a record that does not exist.
type NotFoundError struct {
	Kind string // "trace", "test", "session"
	ID   string // Identifier that missed
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// RecorderError represents an error while recording a trace.
type RecorderError struct {
	TraceID string // Trace being recorded, may be empty
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("recorder error [trace_id=%s]: %v", e.TraceID, e.Cause)
	}
	return fmt.Sprintf("recorder error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(traceID string, cause error) *RecorderError {
	return &RecorderError{
		TraceID: traceID,
		Cause:   cause,
	}
}

// RetentionError represents an error during retention enforcement.
type RetentionError struct {
	MaxAgeDays int   // Configured age limit, 0 when disabled
	MaxCount   int   // Configured count limit, 0 when disabled
	Cause      error // Underlying error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [max_age_days=%d, max_count=%d]: %v", e.MaxAgeDays, e.MaxCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(maxAgeDays, maxCount int, cause error) *RetentionError {
	return &RetentionError{
		MaxAgeDays: maxAgeDays,
		MaxCount:   maxCount,
		Cause:      cause,
	}
}

// ExportError represents an error during trace export.
type ExportError struct {
	Format     string // Export format ("json", "csv")
	TraceCount int    // Number of traces being exported
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, trace_count=%d]: %v", e.Format, e.TraceCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, traceCount int, cause error) *ExportError {
	return &ExportError{
		Format:     format,
		TraceCount: traceCount,
		Cause:      cause,
	}
}
