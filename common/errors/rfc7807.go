package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ProblemDetails represents RFC 7807 compliant error response
// swagger:model
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is the request path that produced the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	TypeValidationError = "https://api.astranetix.com/errors/validation-error"
	TypeUnauthorized    = "https://api.astranetix.com/errors/unauthorized"
	TypeForbidden       = "https://api.astranetix.com/errors/forbidden"
	TypeNotFound        = "https://api.astranetix.com/errors/not-found"
	TypeConflict        = "https://api.astranetix.com/errors/conflict"
	TypeRateLimit       = "https://api.astranetix.com/errors/rate-limit"
	TypeInternalError   = "https://api.astranetix.com/errors/internal-error"
)

const (
	TitleValidationError = "Validation Error"
	TitleUnauthorized    = "Unauthorized"
	TitleForbidden       = "Forbidden"
	TitleNotFound        = "Not Found"
	TitleConflict        = "Conflict"
	TitleRateLimit       = "Rate Limit Exceeded"
	TitleInternalError   = "Internal Server Error"
)

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// AddValidationError adds a single validation error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{Field: field, Message: message, Code: code})
	return p
}

func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

func NewRateLimitError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeRateLimit, TitleRateLimit, http.StatusTooManyRequests, detail, instance)
}

func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// ToProblemDetails converts a typed Error to RFC 7807 ProblemDetails
func (e *Error) ToProblemDetails(instance string) *ProblemDetails {
	var pd *ProblemDetails
	switch e.Kind {
	case KindInvalid:
		pd = NewValidationError(e.Message, instance)
	case KindUnauthorized:
		pd = NewUnauthorizedError(e.Message, instance)
	case KindForbidden:
		pd = NewForbiddenError(e.Message, instance)
	case KindNotFound:
		pd = NewNotFoundError(e.Message, instance)
	case KindConflict:
		pd = NewConflictError(e.Message, instance)
	case KindRateLimit:
		pd = NewRateLimitError(e.Message, instance)
	default:
		// internal causes are logged, never echoed
		pd = NewInternalError("internal server error", instance)
	}
	for _, f := range e.Fields {
		pd.AddValidationError(f.Field, f.Message, f.Kind)
	}
	return pd
}
