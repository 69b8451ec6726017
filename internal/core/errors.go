package core

import (
	"errors"
	"fmt"
)

// ValidationError rejects local input before any external call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AnalysisError reports a failed or unusable receipt analysis.
type AnalysisError struct {
	File string
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.File == "" {
		return "analyze receipt: " + e.Err.Error()
	}
	return fmt.Sprintf("analyze receipt %s: %v", e.File, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed repository call. Message is the text shown to the user.
type PersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError reports missing credentials or settings for an external service.
type ConfigurationError struct {
	Service string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured: %v", e.Service, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
