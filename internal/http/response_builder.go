// Package http provides the JSON API of the expense tracker.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain errors to HTTP status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"reisekosten/internal/analytics"
	"reisekosten/internal/auth"
	"reisekosten/internal/core"
	"reisekosten/internal/intake"
	"reisekosten/internal/log"
	"reisekosten/internal/repository"
)

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode. A nil body writes no content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse creates an error envelope with the given status.
func ErrorResponse(statusCode int, message, field string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Field: field})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, "")
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message, "")
}

// FromError maps a domain error to its response. Persistence failures show
// the store's user-facing message instead of the backend error.
func FromError(err error) *JSONResponseBuilder {
	var (
		verr  *core.ValidationError
		perr  *core.PersistenceError
		cerr  *core.ConfigurationError
		maxer *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return ErrorResponse(http.StatusUnprocessableEntity, verr.Error(), verr.Field)
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return ErrorResponse(http.StatusUnauthorized, auth.ErrUnauthenticated.Error(), "").
			Header("WWW-Authenticate", `Bearer realm="reisekosten"`)
	case errors.Is(err, repository.ErrNotFound):
		return NotFoundError(repository.ErrNotFound.Error())
	case errors.Is(err, intake.ErrInvalidTransition):
		return ErrorResponse(http.StatusConflict, err.Error(), "")
	case errors.Is(err, analytics.ErrUnknownFrame):
		return ErrorResponse(http.StatusBadRequest, err.Error(), "frame")
	case errors.Is(err, analytics.ErrUnknownRange):
		return ErrorResponse(http.StatusBadRequest, err.Error(), "range")
	case errors.As(err, &maxer):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large", "")
	case errors.As(err, &perr):
		return ErrorResponse(http.StatusBadGateway, perr.Message, "")
	case errors.As(err, &cerr):
		return ErrorResponse(http.StatusServiceUnavailable, cerr.Error(), "")
	default:
		return ErrorResponse(http.StatusInternalServerError, "internal server error", "")
	}
}

// errorType classifies err for log aggregation.
func errorType(err error) string {
	var (
		verr *core.ValidationError
		perr *core.PersistenceError
		cerr *core.ConfigurationError
		aerr *core.AnalysisError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, analytics.ErrUnknownFrame), errors.Is(err, analytics.ErrUnknownRange):
		return log.ErrorTypeValidation
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return log.ErrorTypeAuth
	case errors.Is(err, repository.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, intake.ErrInvalidTransition):
		return log.ErrorTypeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	case errors.As(err, &perr):
		return log.ErrorTypeDatabase
	case errors.As(err, &cerr):
		return log.ErrorTypeConfiguration
	case errors.As(err, &aerr):
		return log.ErrorTypeAnalysis
	default:
		return log.ErrorTypeInternal
	}
}

// writeError logs err with the request logger and writes its response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	b := FromError(err)
	fields := log.NewFields().WithOperation(op).WithError(err).WithErrorType(errorType(err))
	logger := log.FromContext(r.Context())
	if b.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	b.Write(w)
}
