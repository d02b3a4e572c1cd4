package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found or is not owned by the caller.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrAccountLocked is returned after too many failed login attempts.
type ErrAccountLocked struct {
	Until time.Time
}

func (e *ErrAccountLocked) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// ErrConflict indicates a resource already exists or was concurrently modified.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidToken indicates an invalid or expired reset/refresh token.
type ErrInvalidToken struct{}

func (e *ErrInvalidToken) Error() string {
	return "invalid or expired token"
}

// ErrInvalidFrequency is a contract violation: the frequency should have
// been validated before reaching the recurrence projector.
type ErrInvalidFrequency struct {
	Value string
}

func (e *ErrInvalidFrequency) Error() string {
	return fmt.Sprintf("invalid recurrence frequency: %q", e.Value)
}

// ErrInvalidPeriod is a contract violation on a budget period.
type ErrInvalidPeriod struct {
	Value string
}

func (e *ErrInvalidPeriod) Error() string {
	return fmt.Sprintf("invalid budget period: %q", e.Value)
}

// ErrNotDue is returned when firing a template that is inactive or not yet due.
type ErrNotDue struct {
	ID string
}

func (e *ErrNotDue) Error() string {
	return fmt.Sprintf("recurring transaction %s is not due", e.ID)
}
