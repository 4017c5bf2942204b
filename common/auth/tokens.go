package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config holds the token signing parameters. Tokens are HS256.
type Config struct {
	Secret   string
	Issuer   string
	Audience []string
	Expiry   time.Duration
}

// tokenClaims is the JWT payload issued at login.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserType string `json:"user_type"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// IssuedToken is a signed access token and its identifiers.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer signs access tokens.
type TokenIssuer struct {
	cfg Config
	now func() time.Time
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 30 * time.Minute
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Expiry returns the configured token lifetime.
func (i *TokenIssuer) Expiry() time.Duration { return i.cfg.Expiry }

// Issue signs a token for the principal.
func (i *TokenIssuer) Issue(id uuid.UUID, userType, email, name string) (*IssuedToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.cfg.Expiry)
	jti := uuid.NewString()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings(i.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		UserType: userType,
		Email:    email,
		Name:     name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}
