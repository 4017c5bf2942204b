package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/astranetix/bms/common/errors"
)

// Account types carried in the user_type claim.
const (
	UserTypeFounder = "founder"
	UserTypeISP     = "isp"
	UserTypeUser    = "user"
)

const principalKey = "principal"

// CustomClaims are the non-registered claims of an access token.
type CustomClaims struct {
	UserType string `json:"user_type"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

func (c *CustomClaims) Validate(ctx context.Context) error {
	switch c.UserType {
	case UserTypeFounder, UserTypeISP, UserTypeUser:
		return nil
	}
	return fmt.Errorf("unknown user_type %q", c.UserType)
}

// Principal is the authenticated caller.
type Principal struct {
	ID        uuid.UUID
	UserType  string
	Email     string
	Name      string
	TokenID   string
	ExpiresAt time.Time
}

// Middleware validates the bearer token (or ?token= for websocket upgrades),
// rejects revoked tokens and stores the Principal on the context.
func Middleware(log *slog.Logger, cfg Config, revoked RevocationStore) gin.HandlerFunc {
	keyFunc := func(context.Context) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}
	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.Issuer,
		cfg.Audience,
		validator.WithAllowedClockSkew(30*time.Second),
		validator.WithCustomClaims(func() validator.CustomClaims { return &CustomClaims{} }),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to set up the validator: %v", err))
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.DebugContext(r.Context(), "rejected JWT", slog.String("error", err.Error()))
	}
	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithTokenExtractor(jwtmiddleware.MultiTokenExtractor(
			jwtmiddleware.AuthHeaderTokenExtractor,
			jwtmiddleware.ParameterTokenExtractor("token"),
		)),
	)

	return func(c *gin.Context) {
		var principal *Principal
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if claims == nil {
				return
			}
			custom, ok := claims.CustomClaims.(*CustomClaims)
			if !ok {
				return
			}
			id, err := uuid.Parse(claims.RegisteredClaims.Subject)
			if err != nil {
				return
			}
			principal = &Principal{
				ID:        id,
				UserType:  custom.UserType,
				Email:     custom.Email,
				Name:      custom.Name,
				TokenID:   claims.RegisteredClaims.ID,
				ExpiresAt: time.Unix(claims.RegisteredClaims.Expiry, 0),
			}
			c.Request = r
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		if principal == nil {
			apperrors.Unauthorized(c, "Could not validate credentials")
			return
		}
		if revoked != nil && principal.TokenID != "" {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), principal.TokenID)
			if err != nil {
				log.WarnContext(c.Request.Context(), "revocation check failed, rejecting token", slog.String("error", err.Error()))
				apperrors.Unauthorized(c, "Could not validate credentials")
				return
			}
			if isRevoked {
				apperrors.Unauthorized(c, "Token has been revoked")
				return
			}
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// CurrentPrincipal returns the authenticated caller, if any.
func CurrentPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}

// SetPrincipal stores p on the context. Used by tests and internal callers.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// RequireUserType allows only the listed account types.
func RequireUserType(types ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			apperrors.Unauthorized(c, "Could not validate credentials")
			return
		}
		for _, t := range types {
			if p.UserType == t {
				c.Next()
				return
			}
		}
		apperrors.Forbidden(c, "Access denied")
	}
}

// CanAccessTenant reports whether p may act on tenantID: founders reach every
// tenant, everyone else only their own id.
func CanAccessTenant(p *Principal, tenantID uuid.UUID) bool {
	if p == nil {
		return false
	}
	return p.UserType == UserTypeFounder || p.ID == tenantID
}
