package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/schema"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/TimurManjosov/cclengine/internal/wallet"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode represents machine-readable error codes
type ErrorCode string

const (
	// General error codes
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"

	// Validation error codes
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidJSON       ErrorCode = "INVALID_JSON"
	ErrCodeSchemaViolation   ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeInvalidConfig     ErrorCode = "INVALID_CONFIG"
	ErrCodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"

	// Evaluation error codes
	ErrCodeNoConfiguration ErrorCode = "NO_CONFIGURATION"
	ErrCodeUnknownFunction ErrorCode = "UNKNOWN_FUNCTION"
	ErrCodeEvaluation      ErrorCode = "EVALUATION_FAILED"
	ErrCodeTextFormat      ErrorCode = "TEXT_FORMAT_FAILED"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error     string            `json:"error"`                // HTTP status text
	Message   string            `json:"message"`              // Human-readable description
	Code      ErrorCode         `json:"code"`                 // Machine-readable error code
	Fields    map[string]string `json:"fields,omitempty"`     // Field-level errors
	RequestID string            `json:"request_id,omitempty"` // Request ID for debugging
}

// NewErrorResponse creates a new error response
func NewErrorResponse(statusCode int, code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
	}
}

// WithFields adds field-level errors to the response
func (e *ErrorResponse) WithFields(fields map[string]string) *ErrorResponse {
	e.Fields = fields
	return e
}

// WithRequestID adds a request ID to the response
func (e *ErrorResponse) WithRequestID(requestID string) *ErrorResponse {
	e.RequestID = requestID
	return e
}

// writeErrorResponse writes a structured error response to the http response writer
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errResp *ErrorResponse) {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		errResp.RequestID = reqID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errResp)
}

// BadRequestError creates a bad request error response
func BadRequestError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	writeErrorResponse(w, r, http.StatusBadRequest, NewErrorResponse(http.StatusBadRequest, code, message))
}

// ValidationError creates a validation error response with field-level details
func ValidationError(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	errResp := NewErrorResponse(http.StatusBadRequest, ErrCodeValidation, message).WithFields(fields)
	writeErrorResponse(w, r, http.StatusBadRequest, errResp)
}

func UnauthorizedError(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusUnauthorized, NewErrorResponse(http.StatusUnauthorized, ErrCodeUnauthorized, message))
}

func ForbiddenError(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusForbidden, NewErrorResponse(http.StatusForbidden, ErrCodeForbidden, message))
}

func NotFoundError(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusNotFound, NewErrorResponse(http.StatusNotFound, ErrCodeNotFound, message))
}

func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusInternalServerError, NewErrorResponse(http.StatusInternalServerError, ErrCodeInternal, message))
}

func RequestTooLargeError(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, NewErrorResponse(http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, message))
}

// classify maps a domain error to its HTTP status and code.
func classify(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, schema.ErrSchemaValidation):
		return http.StatusBadRequest, ErrCodeSchemaViolation
	case errors.Is(err, registry.ErrUnknownFunction):
		return http.StatusNotFound, ErrCodeUnknownFunction
	case errors.Is(err, registry.ErrNoConfiguration), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrCodeNoConfiguration
	case errors.Is(err, jfn.ErrMalformedDescriptor), errors.Is(err, jfn.ErrCyclicReference):
		return http.StatusBadRequest, ErrCodeInvalidDescriptor
	case errors.Is(err, rules.ErrInvalidConfiguration), errors.Is(err, rules.ErrUnsupportedEngine):
		return http.StatusBadRequest, ErrCodeInvalidConfig
	case errors.Is(err, store.ErrReadOnly):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, text.ErrUnsupportedLanguage), errors.Is(err, certificate.ErrUnsupportedCertificate):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, text.ErrMissingTranslation),
		errors.Is(err, text.ErrUnresolvablePlaceholder),
		errors.Is(err, text.ErrInvalidDescriptor):
		return http.StatusUnprocessableEntity, ErrCodeTextFormat
	case errors.Is(err, jfn.ErrEvaluation), errors.Is(err, wallet.ErrMissingNow):
		return http.StatusUnprocessableEntity, ErrCodeEvaluation
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// DomainError writes err with the status its class maps to. Schema
// violations are reported per JSON pointer in Fields.
func DomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	resp := NewErrorResponse(status, code, msg)

	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		resp.Message = "document violates schema " + ve.Schema
		resp.WithFields(violationFields(ve.Violations))
	}
	writeErrorResponse(w, r, status, resp)
}

func violationFields(vs []schema.Violation) map[string]string {
	fields := make(map[string]string, len(vs))
	for _, v := range vs {
		path := v.Path
		if path == "" {
			path = "/"
		}
		if prev, ok := fields[path]; ok {
			msgs := append(strings.Split(prev, "; "), v.Message)
			sort.Strings(msgs)
			fields[path] = strings.Join(msgs, "; ")
			continue
		}
		fields[path] = v.Message
	}
	return fields
}
