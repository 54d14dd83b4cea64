// Package errors provides custom error types for the offline queue packages
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeConflictFailure   ErrorCode = "CONFLICT_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
)

// Kind is a coarse classification used by callers that do not care
// about the exact code.
type Kind string

const (
	KindInvalid   Kind = "invalid"
	KindInternal  Kind = "internal"
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
)

// Operation represents the queue operation during which an error occurred
type Operation string

const (
	OpEnqueue  Operation = "enqueue"
	OpProcess  Operation = "process"
	OpDispatch Operation = "dispatch"
	OpResolve  Operation = "resolve"
	OpStore    Operation = "store"
	OpLoad     Operation = "load"
	OpRemove   Operation = "remove"
	OpRemote   Operation = "remote"
	OpCache    Operation = "cache"
	OpConfig   Operation = "config"
	OpClose    Operation = "close"
)

// QueueError represents an error raised by the queue or one of its adapters
type QueueError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "store", "remote")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Kind groups codes into broad classes
	Kind Kind

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *QueueError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new local-storage QueueError.
// Local storage has no lower fallback, so these are never retried by the queue.
func NewStorageError(op Operation, cause error) *QueueError {
	return &QueueError{
		Code:      ErrCodeStorageFailure,
		Kind:      KindInternal,
		Op:        op,
		Component: "store",
		Err:       cause,
	}
}

// NewConflictError creates a new conflict-related QueueError
func NewConflictError(op Operation, cause error) *QueueError {
	return &QueueError{
		Code:      ErrCodeConflictFailure,
		Kind:      KindConflict,
		Op:        op,
		Component: "conflict",
		Err:       cause,
	}
}

// NewValidationError creates a new validation-related QueueError
func NewValidationError(op Operation, cause error) *QueueError {
	return &QueueError{
		Code: ErrCodeValidationFailure,
		Kind: KindInvalid,
		Op:   op,
		Err:  cause,
	}
}

// NewNetworkError creates a new transient remote QueueError
func NewNetworkError(op Operation, cause error) *QueueError {
	return &QueueError{
		Code:      ErrCodeNetworkFailure,
		Kind:      KindTransient,
		Op:        op,
		Component: "remote",
		Err:       cause,
		Retryable: true,
	}
}

// NewRejectedError creates a QueueError for a payload the remote store
// refused outright. Retrying it would only burn retry budget.
func NewRejectedError(op Operation, cause error) *QueueError {
	return &QueueError{
		Code:      ErrCodeRemoteRejected,
		Kind:      KindPermanent,
		Op:        op,
		Component: "remote",
		Err:       cause,
	}
}

// NewNotFoundError creates a QueueError for a missing record
func NewNotFoundError(op Operation, component string, cause error) *QueueError {
	return &QueueError{
		Code:      ErrCodeNotFound,
		Kind:      KindNotFound,
		Op:        op,
		Component: component,
		Err:       cause,
	}
}

// New creates a new QueueError
func New(op Operation, err error) *QueueError {
	return &QueueError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new QueueError with component information
func NewWithComponent(op Operation, component string, err error) *QueueError {
	return &QueueError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable QueueError
func NewRetryable(op Operation, err error) *QueueError {
	return &QueueError{
		Op:        op,
		Err:       err,
		Retryable: true,
		Kind:      KindTransient,
	}
}

// IsRetryable checks if an error is a retryable QueueError
func IsRetryable(err error) bool {
	var qErr *QueueError
	if errors.As(err, &qErr) {
		return qErr.Retryable
	}
	return false
}

// IsPermanent reports whether err is a remote rejection that must not be retried
func IsPermanent(err error) bool {
	var qErr *QueueError
	if errors.As(err, &qErr) {
		return qErr.Code == ErrCodeRemoteRejected || qErr.Kind == KindPermanent
	}
	return false
}

// HasCode reports whether any QueueError in err's chain carries code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var qErr *QueueError
		if !errors.As(err, &qErr) {
			return false
		}
		if qErr.Code == code {
			return true
		}
		err = qErr.Err
	}
	return false
}
