package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// Is allows errors.Is() to match the typed errors against their sentinels
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")

	// ErrBranchLimitExceeded is returned when a root already carries the maximum
	// number of variants. Terminal and user-facing.
	ErrBranchLimitExceeded = errors.New("branch limit exceeded")

	// ErrConstraintViolation is raised by a message store when a conditional variant
	// insert loses a race (expected count mismatch or duplicate sequence).
	// Recovered internally by the sequencer; callers should never see it.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrTransient reports that sequence allocation kept losing races until the
	// attempt budget ran out.
	ErrTransient = errors.New("transient failure")

	// ErrDataIntegrity reports corrupted variant-of chains (cycles, excessive depth).
	ErrDataIntegrity = errors.New("data integrity violation")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (message, variant)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// BranchLimitExceededError carries the root and ceiling that was hit so the
// caller can explain the limit to the user.
type BranchLimitExceededError struct {
	RootID string
	Limit  int
}

func (e *BranchLimitExceededError) Error() string {
	return fmt.Sprintf("message %s already has %d variants (at most %d versions per message): %s",
		e.RootID, e.Limit, e.Limit+1, ErrBranchLimitExceeded)
}

// StatusCode implements the HTTPError interface
func (e *BranchLimitExceededError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrBranchLimitExceeded
func (e *BranchLimitExceededError) Is(target error) bool {
	return target == ErrBranchLimitExceeded
}
