// Package ratelimit throttles requests per key, backed by Redis when it is
// configured and by an in-process limiter otherwise.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/astranetix/bms/common/errors"
)

// Limiter records one request for key and reports whether it is allowed.
type Limiter interface {
	Take(ctx context.Context, key string) (bool, error)
	// Window is the period the limit applies to.
	Window() time.Duration
}

// KeyFunc derives the limiter key from a request.
type KeyFunc func(c *gin.Context) string

// ClientIPKey keys requests by client IP under prefix.
func ClientIPKey(prefix string) KeyFunc {
	return func(c *gin.Context) string {
		return prefix + ":" + c.ClientIP()
	}
}

// Middleware rejects requests over the limit with a 429 problem. When the
// limiter backend fails the request is let through and the error logged.
func Middleware(l Limiter, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		k := key(c)
		allowed, err := l.Take(c.Request.Context(), k)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.String("key", k), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(l.Window().Seconds())))
			apperrors.RateLimit(c, "Too many requests, please try again later")
			return
		}
		c.Next()
	}
}
