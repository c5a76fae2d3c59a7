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
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// DatabaseError wraps driver failures so the HTTP layer can answer 503 instead of 500.
type DatabaseError struct {
	Err        error
	Connection bool
}

func NewDatabaseError(err error, connection bool) error {
	return &DatabaseError{Err: err, Connection: connection}
}

func (err DatabaseError) Error() string {
	if err.Connection {
		return "database connection: " + err.Err.Error()
	}
	return "database: " + err.Err.Error()
}

func IsDatabaseError(err error) bool {
	_, ok := errors.Cause(err).(*DatabaseError)
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
