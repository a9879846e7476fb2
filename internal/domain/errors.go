package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotRunning             = errors.New("queue is not running")

	// Transfer errors
	ErrTransferCancelled = errors.New("transfer cancelled")
	ErrRangeNotSatisfied = errors.New("range response does not match request")
)

// TransferError represents a network or server failure of a transfer.
type TransferError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *TransferError) Error() string {
	msg := "transfer " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": http status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new transfer error
func NewTransferError(op string, statusCode int, err error) *TransferError {
	return &TransferError{Op: op, StatusCode: statusCode, Err: err}
}

// IsTransferError returns true if the error came from the transport
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

// StorageError represents a local filesystem or persistence failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

// Error returns the error message
func (e *StorageError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsStorageError returns true if the error came from local storage
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// RetryableError represents a transient failure worth retrying.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// ErrSkipDuplicate marks an enqueue request suppressed by an existing download
var ErrSkipDuplicate = NewSkippableError(ErrAlreadyExists, "download already queued")
