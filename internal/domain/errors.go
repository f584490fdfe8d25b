package domain

import (
	"errors"
	"fmt"
	"time"

	"yoyaku/internal/models"
)

var (
	ErrConflict           = errors.New("requested dates overlap an existing reservation")
	ErrNotFound           = errors.New("not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrNameTaken          = errors.New("name already in use")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrLockTimeout        = errors.New("timed out waiting for item lock")
	ErrNoRecipients       = errors.New("no recipients")
)

// ValidationError reports user-correctable input problems.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError names the first already-reserved date of the rejected range.
type ConflictError struct {
	ItemName string
	Date     time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already reserved on %s", e.ItemName, e.Date.Format(models.DateLayout))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PersistenceError wraps store failures. Callers show a generic message.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
