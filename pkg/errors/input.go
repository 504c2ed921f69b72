package errors

import "fmt"

// NotFoundError reports a missing table, secret, job, or similar resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports a rejected option, job definition, or flag value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// ConfigError reports configuration that could not be loaded or resolved.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
	}
	if e.Component == "" {
		return "config: " + msg
	}
	return fmt.Sprintf("config %s: %s", e.Component, msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseError reports undecodable input. Format is json, yaml, datetime, and
// so on; Line and Column are set when the decoder reports a position.
type ParseError struct {
	Format  string
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

func NewParseError(format, file, message string, err error) *ParseError {
	return &ParseError{Format: format, File: file, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s %s:%d:%d: %s", e.Format, e.File, e.Line, e.Column, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports a failed local file operation.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

func NewIOError(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// MalformedRecordError describes a source record the reconciler skipped.
// Index is the record's position in its source batch.
type MalformedRecordError struct {
	Index    int
	Identity string
	Field    string
	Reason   string
}

func NewMalformedRecordError(index int, identity, field, reason string) *MalformedRecordError {
	return &MalformedRecordError{Index: index, Identity: identity, Field: field, Reason: reason}
}

func (e *MalformedRecordError) Error() string {
	switch {
	case e.Identity != "":
		return fmt.Sprintf("record %d (%s): %s", e.Index, e.Identity, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }
