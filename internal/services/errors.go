package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/learning-progress-service/internal/validator"
)

// Base errors. Handlers map these to HTTP status codes with errors.Is.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrPersistence      = errors.New("persistence failure")
)

// Not found
var (
	ErrLessonNotFound     = fmt.Errorf("lesson %w", ErrNotFound)
	ErrCourseNotFound     = fmt.Errorf("course %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", ErrNotFound)
	ErrQuizNotFound       = fmt.Errorf("quiz %w", ErrNotFound)
	ErrAttemptNotFound    = fmt.Errorf("attempt %w", ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("quiz session %w", ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("assignment %w", ErrNotFound)
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
)

// Authorization
var (
	ErrNotEnrolled = fmt.Errorf("student is not enrolled in the course: %w", ErrForbidden)
)

// Conflicts
var (
	ErrAttemptLimitExceeded = fmt.Errorf("maximum number of attempts reached: %w", ErrConflict)
	ErrSubmissionInFlight   = fmt.Errorf("an identical submission is already being processed: %w", ErrConflict)
	ErrSubmissionGraded     = fmt.Errorf("submission has been graded and can no longer be changed: %w", ErrConflict)
	ErrSessionClosed        = fmt.Errorf("quiz session is no longer running: %w", ErrConflict)
	ErrSessionRequired      = fmt.Errorf("timed quiz requires a session token: %w", ErrConflict)
	ErrSessionExpired       = fmt.Errorf("quiz session deadline has passed: %w", ErrConflict)
	ErrSessionNotExpired    = fmt.Errorf("quiz session deadline has not passed yet: %w", ErrConflict)
)

// ErrNotifierUnconfigured is returned by the dispatcher injected when no
// broker is configured. Callers log it and carry on.
var ErrNotifierUnconfigured = errors.New("notification dispatcher is not configured")

// ValidationErrors wraps field errors so errors.Is(err, ErrValidationFailed)
// holds for every validation failure.
type ValidationErrors struct {
	Errors validator.ValidationErrors
}

func NewValidationErrors(errs ...validator.ValidationError) *ValidationErrors {
	return &ValidationErrors{Errors: errs}
}

func (e *ValidationErrors) Error() string {
	return e.Errors.Error()
}

func (e *ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// wrapValidation converts a validator result into *ValidationErrors
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationErrors{Errors: ve}
	}
	return fmt.Errorf("%w: %v", ErrValidationFailed, err)
}

// PermissionError describes a denied action on a resource
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrForbidden
}

// PersistenceError wraps a store failure on the primary path
type PersistenceError struct {
	Op  string
	Err error
}

func newPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
