// Package errors provides structured error types for the pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrConflict         = errors.New("project already exists")
	ErrNotFound         = errors.New("project not found")
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimit        = errors.New("rate limit exceeded")
)

// IsConflict reports whether err indicates a duplicate project identifier.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err indicates a missing project.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// APIError represents an error from an external collaborator's API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrStoreUnavailable) {
		return true
	}
	return false
}

// StageError wraps a stage executor failure. It is always converted into a
// state mutation by the orchestrator and never propagates past RunStage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err as a failure of the named stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
