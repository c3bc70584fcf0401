package services

import (
	"errors"
	"fmt"
	"time"
)

// Workflow phases reported alongside multi-step failures so callers can
// tell which step broke without guessing.
const (
	PhaseValidation       = "validation"
	PhaseInterestCreation = "interest_creation"
	PhaseInterestResponse = "interest_response"
)

// Conflict reasons
const (
	ConflictAlreadyExists    = "already_exists"
	ConflictAlreadyResponded = "already_responded"
	ConflictNotPending       = "not_pending"

	// ConflictStaleStatus is raised by the store when a compare-and-swap
	// observes a status that no longer matches the expected pre-state.
	// Services re-tag it with the caller-facing reason.
	ConflictStaleStatus = "stale_status"
)

// ValidationError covers missing or invalid targets.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConflictError covers duplicate active interests, double responds and
// withdraw attempts on non-pending interests.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// LimitExceededError is returned when a sender hits the daily cap.
type LimitExceededError struct {
	Limit int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("daily interest limit of %d exceeded", e.Limit)
}

// NotFoundError is returned when the referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ExpiredError is returned when responding to an interest past its
// expiry instant, even if the stored status is nominally still pending.
type ExpiredError struct {
	InterestID string
	ExpiredAt  time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("interest %s expired at %s", e.InterestID, e.ExpiredAt.Format(time.RFC3339))
}

// DependencyError wraps store or pub/sub failures (including bounded
// timeouts). It is retryable.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency failure in %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// WorkflowError tags an underlying failure with the phase it occurred
// in. It unwraps to the underlying error so errors.As classification
// still works.
type WorkflowError struct {
	Phase string
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// FailedPhase extracts the workflow phase from an error chain, or ""
// when the error carries no phase.
func FailedPhase(err error) string {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Phase
	}
	return ""
}

func phased(phase string, err error) error {
	return &WorkflowError{Phase: phase, Err: err}
}
