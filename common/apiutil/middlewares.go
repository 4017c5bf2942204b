// Package apiutil holds the gin plumbing shared by every route group: trace
// ids, request-scoped loggers, path parameter parsing and request metrics.
package apiutil

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TraceHeader = "X-Trace-ID"
	traceKey    = "trace_id"
)

// TraceMiddleware assigns every request a trace id, reusing X-Trace-ID when
// the caller sent one, and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(traceKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// GetTraceID returns the trace id of the request, creating one if the trace
// middleware did not run.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(traceKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	traceID := c.GetHeader(TraceHeader)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	c.Set(traceKey, traceID)
	c.Header(TraceHeader, traceID)
	return traceID
}

// RequestLogger scopes logger to one handler invocation.
func RequestLogger(c *gin.Context, logger *zap.Logger, endpoint string) *zap.Logger {
	return logger.With(
		zap.String("trace_id", GetTraceID(c)),
		zap.String("endpoint", endpoint),
		zap.String("method", c.Request.Method),
		zap.String("client_ip", c.ClientIP()),
	)
}
