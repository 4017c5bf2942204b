package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// UnifiedErrorHandler provides a single interface for all error handling in the platform
type UnifiedErrorHandler struct {
	logger *zap.Logger
}

// NewUnifiedErrorHandler creates a new unified error handler
func NewUnifiedErrorHandler(logger *zap.Logger) *UnifiedErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnifiedErrorHandler{logger: logger}
}

// HandleError processes any error type and converts it to RFC 7807 format
func (h *UnifiedErrorHandler) HandleError(c *gin.Context, err error) {
	instance := c.Request.URL.Path
	var problemDetails *ProblemDetails

	var typed *Error
	var pd *ProblemDetails
	var verrs validator.ValidationErrors
	switch {
	case As(err, &pd):
		problemDetails = pd
	case As(err, &typed):
		problemDetails = typed.ToProblemDetails(instance)
		if typed.Kind == KindInternal {
			h.logger.Error("request failed", zap.String("path", instance), zap.Error(err))
		}
	case As(err, &verrs):
		problemDetails = h.validationProblem(instance, verrs)
	default:
		h.logger.Error("unhandled error", zap.String("path", instance), zap.Error(err))
		problemDetails = NewInternalError("internal server error", instance)
	}

	h.writeResponse(c, problemDetails)
}

// BindingError renders a request-binding failure as a 400. Struct tag
// failures keep their per-field detail.
func (h *UnifiedErrorHandler) BindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if As(err, &verrs) {
		h.writeResponse(c, h.validationProblem(c.Request.URL.Path, verrs))
		return
	}
	h.writeResponse(c, NewValidationError(fmt.Sprintf("malformed request body: %v", err), c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) validationProblem(instance string, verrs validator.ValidationErrors) *ProblemDetails {
	pd := NewValidationError("Request validation failed", instance)
	for _, fe := range verrs {
		pd.AddValidationError(fe.Field(), validationMessage(fe), fe.Tag())
	}
	return pd
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte", "lt":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Middleware creates a Gin middleware for unified error handling
func (h *UnifiedErrorHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			h.HandleError(c, c.Errors.Last().Err)
			c.Abort()
		}
	}
}

func (h *UnifiedErrorHandler) BadRequest(c *gin.Context, detail string) {
	h.writeResponse(c, NewValidationError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) Unauthorized(c *gin.Context, detail string) {
	h.writeResponse(c, NewUnauthorizedError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) Forbidden(c *gin.Context, detail string) {
	h.writeResponse(c, NewForbiddenError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) NotFoundError(c *gin.Context, detail string) {
	h.writeResponse(c, NewNotFoundError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) RateLimit(c *gin.Context, detail string) {
	h.writeResponse(c, NewRateLimitError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) InternalServerError(c *gin.Context, detail string) {
	h.writeResponse(c, NewInternalError(detail, c.Request.URL.Path))
}

func (h *UnifiedErrorHandler) getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

func (h *UnifiedErrorHandler) writeResponse(c *gin.Context, problemDetails *ProblemDetails) {
	if traceID := h.getTraceID(c); traceID != "" {
		problemDetails.WithTraceID(traceID)
	}

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// DefaultHandler is used by the package-level helpers. The server replaces it
// with a logging instance at startup.
var DefaultHandler = NewUnifiedErrorHandler(nil)

// SetLogger installs the logger used by DefaultHandler.
func SetLogger(logger *zap.Logger) {
	DefaultHandler = NewUnifiedErrorHandler(logger)
}

// HandleError processes any error using the default handler
func HandleError(c *gin.Context, err error) {
	DefaultHandler.HandleError(c, err)
}

// BindingError renders a binding failure using the default handler
func BindingError(c *gin.Context, err error) {
	DefaultHandler.BindingError(c, err)
}

func BadRequest(c *gin.Context, detail string) { DefaultHandler.BadRequest(c, detail) }

func Unauthorized(c *gin.Context, detail string) { DefaultHandler.Unauthorized(c, detail) }

func Forbidden(c *gin.Context, detail string) { DefaultHandler.Forbidden(c, detail) }

func NotFoundError(c *gin.Context, detail string) { DefaultHandler.NotFoundError(c, detail) }

func RateLimit(c *gin.Context, detail string) { DefaultHandler.RateLimit(c, detail) }

func InternalServerError(c *gin.Context, detail string) { DefaultHandler.InternalServerError(c, detail) }

// StatusOf reports the HTTP status HandleError would use for err.
func StatusOf(err error) int {
	var pd *ProblemDetails
	if As(err, &pd) {
		return pd.Status
	}
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
