package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when the requested object does not exist.
// Domain packages declare their own instance as the ErrNotFound sentinel.
type NotFoundError struct {
	Object string
}

func NewNotFoundError(object string) *NotFoundError {
	return &NotFoundError{Object: object}
}

func (err NotFoundError) Error() string {
	return err.Object + " not found"
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
