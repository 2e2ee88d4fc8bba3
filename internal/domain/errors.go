package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is a single violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError creates a validation error for one field.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsValidationError checks if an error is a validation error (including wrapped errors).
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// validator accumulates field errors.
type validator struct {
	fields []FieldError
}

func (v *validator) add(field, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: message})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return ValidationError{Fields: v.fields}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// NewNotFoundError constructs NotFoundError.
func NewNotFoundError(entity, id string) NotFoundError {
	return NotFoundError{Entity: entity, ID: id}
}

// IsNotFoundError checks if error is NotFoundError.
func IsNotFoundError(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne)
}

// ConflictError represents a unique constraint violation.
type ConflictError struct {
	Field   string
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

// IsConflictError checks if error is ConflictError.
func IsConflictError(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// StorageFault wraps a persistence failure.
type StorageFault struct {
	Op  string
	Err error
}

func (e StorageFault) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e StorageFault) Unwrap() error { return e.Err }

// IsStorageFault checks if error is StorageFault.
func IsStorageFault(err error) bool {
	var sf StorageFault
	return errors.As(err, &sf)
}

// ReasoningFault wraps a failure of the language model backend.
type ReasoningFault struct {
	Op  string
	Err error
}

func (e ReasoningFault) Error() string {
	return "reasoning " + e.Op + ": " + e.Err.Error()
}

func (e ReasoningFault) Unwrap() error { return e.Err }

// IsReasoningFault checks if error is ReasoningFault.
func IsReasoningFault(err error) bool {
	var rf ReasoningFault
	return errors.As(err, &rf)
}

// ExtractionError reports that a transcript could not be turned into an IssueRecord.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e ExtractionError) Error() string {
	if e.Err == nil {
		return "extraction failed: " + e.Reason
	}
	return "extraction failed: " + e.Reason + ": " + e.Err.Error()
}

func (e ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError checks if error is ExtractionError.
func IsExtractionError(err error) bool {
	var ee ExtractionError
	return errors.As(err, &ee)
}
