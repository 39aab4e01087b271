// Package apperr defines the error taxonomy shared by the workflow engine.
// Callers branch on the error kind; the transport layer maps kinds to
// HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError signals malformed input. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError signals the referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError for the given entity and id.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidStateError signals an operation attempted from a status that does
// not permit it. Both the required and actual status are carried so callers
// can render a precise message.
type InvalidStateError struct {
	Required string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("requires status %s, current status: %s", e.Required, e.Actual)
}

// InvalidState builds an InvalidStateError from the required and actual status.
func InvalidState(required, actual string) error {
	return &InvalidStateError{Required: required, Actual: actual}
}

// ConflictError signals a duplicate where at most one record is allowed.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
