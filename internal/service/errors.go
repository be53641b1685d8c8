package service

import (
	"errors"
	"fmt"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"gorm.io/gorm"
)

// Common service errors
var (
	// ErrInvalidTransition is returned when the requested edge is not in the
	// entity's transition graph, or the entity moved since it was read
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden is returned when the edge exists but the actor's role may not take it
	ErrForbidden = errors.New("forbidden")

	// ErrConflictingState is returned when a cross-entity precondition does not hold
	ErrConflictingState = errors.New("conflicting state")

	// ErrValidation is returned when a payload fails its schema
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when the caller is not authenticated
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError wraps field level failures so handlers can report each field
type ValidationError struct {
	Fields domain.FieldErrors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: domain.FieldErrors{field: message}}
}

func invalidTransition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func conflictingState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflictingState, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// translateRepoError maps persistence errors onto the service taxonomy
func translateRepoError(entity domain.EntityType, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	case errors.Is(err, repository.ErrStatusMismatch):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s already changed concurrently", ErrConflictingState, entity)
	}
	return err
}

func isStatusMismatch(err error) bool {
	return errors.Is(err, repository.ErrStatusMismatch)
}
