package model

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is by the HTTP layer
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalid       = errors.New("invalid input")
	ErrUnavailable   = errors.New("service unavailable")
	ErrNotConfigured = errors.New("sequence not configured")
)

// NotFoundError reports a missing entity
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// ConflictError reports a state that forbids the requested change
type ConflictError struct {
	Entity  string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Message)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a new conflict error
func NewConflictError(entity, message string) *ConflictError {
	return &ConflictError{Entity: entity, Message: message}
}

// LookupError represents failures talking to an external registry (BrasilAPI, ViaCEP)
type LookupError struct {
	Source  string
	Message string
	Cause   error
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lookup failed [%s]: %s (%v)", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("lookup failed [%s]: %s", e.Source, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// NewLookupError creates a new lookup error
func NewLookupError(source, message string, cause error) *LookupError {
	return &LookupError{
		Source:  source,
		Message: message,
		Cause:   cause,
	}
}

// ParseError represents a fiscal XML that could not be read
type ParseError struct {
	Format  DocumentType
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	format := string(e.Format)
	if format == "" {
		format = "unknown"
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", format, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", format, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is makes parse errors match ErrInvalid
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalid
}

// NewParseError creates a new parse error
func NewParseError(format DocumentType, field, message string, cause error) *ParseError {
	return &ParseError{
		Format:  format,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
