// Package errors holds the error model of the salvage toolkit.
//
// Parsing components record structured *Error values carrying a Code (see
// code.go). The layers around them, such as archives, dumps and fixtures,
// return the smaller typed errors below. Every typed error reports a Code
// as well, so CodeOf and the sentinels work the same on both.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels, one per way a caller can react.
var (
	// ErrIO is a failed open, stat, read or write.
	ErrIO = errors.New("disk I/O error")
	// ErrCorrupt is content that cannot be trusted.
	ErrCorrupt = errors.New("database disk image is malformed")
	// ErrMisuse is an API called out of order or with impossible arguments.
	ErrMisuse = errors.New("library routine called out of sequence")
	// ErrNotFound is a named entry missing from a container.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is an option value this build does not handle.
	ErrUnsupported = errors.New("unsupported")
)

// coded is implemented by the typed errors so CodeOf can classify them.
type coded interface {
	ErrorCode() Code
}

// IOError is a failed file operation.
type IOError struct {
	Operation string // "open", "read", "stat", "write", ...
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIO}
	}
	return []error{e.Err, ErrIO}
}

// ErrorCode returns CodeIOError.
func (e *IOError) ErrorCode() Code { return CodeIOError }

// NotFoundError is an entry missing from an archive or dump.
type NotFoundError struct {
	Resource string // "archive entry", "manifest", ...
	Name     string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ErrorCode returns CodeCorrupt: a dump is expected to hold what it names.
func (e *NotFoundError) ErrorCode() Code { return CodeCorrupt }

// ParseError is a document inside a dump that failed to decode.
type ParseError struct {
	Format  string // "json", ...
	Name    string // entry or file name
	Message string
}

func (e *ParseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("failed to parse %s %s: %s", e.Format, e.Name, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error { return ErrCorrupt }

// ErrorCode returns CodeCorrupt.
func (e *ParseError) ErrorCode() Code { return CodeCorrupt }

// UnsupportedError is an option value outside the supported set.
type UnsupportedError struct {
	Feature string // "dump compression", ...
	Reason  string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() []error { return []error{ErrUnsupported, ErrMisuse} }

// ErrorCode returns CodeMisuse.
func (e *UnsupportedError) ErrorCode() Code { return CodeMisuse }

// NewIO creates an IOError.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, name string) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name}
}

// NewParse creates a ParseError.
func NewParse(format, name, message string) *ParseError {
	return &ParseError{Format: format, Name: name, Message: message}
}

// NewUnsupported creates an UnsupportedError.
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Reason: reason}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
