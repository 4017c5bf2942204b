package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{
	Secret:   "test-secret-with-enough-entropy-1234",
	Issuer:   "astranetix-bms",
	Audience: []string{"astranetix-api"},
	Expiry:   time.Minute,
}

func newRouter(store RevocationStore, guard ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := append([]gin.HandlerFunc{Middleware(log, testCfg, store)}, guard...)
	handlers = append(handlers, func(c *gin.Context) {
		p, _ := CurrentPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID.String(), "user_type": p.UserType, "jti": p.TokenID})
	})
	r.GET("/me", handlers...)
	return r
}

func get(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_AcceptsIssuedToken(t *testing.T) {
	id := uuid.New()
	tok, err := NewTokenIssuer(testCfg).Issue(id, UserTypeISP, "isp@example.com", "Fiber Co")
	require.NoError(t, err)

	w := get(newRouter(nil), "/me", tok.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), id.String())
	assert.Contains(t, w.Body.String(), tok.ID)
}

func TestMiddleware_TokenQueryParameter(t *testing.T) {
	tok, err := NewTokenIssuer(testCfg).Issue(uuid.New(), UserTypeFounder, "f@example.com", "F")
	require.NoError(t, err)

	w := get(newRouter(nil), "/me?token="+tok.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_RejectsBadTokens(t *testing.T) {
	r := newRouter(nil)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "not-a-jwt").Code)

	other := testCfg
	other.Secret = "a-different-secret-of-decent-length!"
	forged, err := NewTokenIssuer(other).Issue(uuid.New(), UserTypeFounder, "x@example.com", "X")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", forged.Token).Code)

	wrongAud := testCfg
	wrongAud.Audience = []string{"someone-else"}
	tok, err := NewTokenIssuer(wrongAud).Issue(uuid.New(), UserTypeFounder, "x@example.com", "X")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", tok.Token).Code)
}

func TestMiddleware_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testCfg)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := issuer.Issue(uuid.New(), UserTypeUser, "u@example.com", "U")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(newRouter(nil), "/me", tok.Token).Code)
}

func TestMiddleware_RejectsRevokedToken(t *testing.T) {
	store := NewMemoryRevocationStore()
	tok, err := NewTokenIssuer(testCfg).Issue(uuid.New(), UserTypeUser, "u@example.com", "U")
	require.NoError(t, err)
	r := newRouter(store)

	require.Equal(t, http.StatusOK, get(r, "/me", tok.Token).Code)
	require.NoError(t, store.Revoke(context.Background(), tok.ID, tok.ExpiresAt))

	w := get(r, "/me", tok.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")
}

type unavailableStore struct{}

func (unavailableStore) Revoke(context.Context, string, time.Time) error {
	return errors.New("redis: connection refused")
}

func (unavailableStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestMiddleware_RevocationStoreDown(t *testing.T) {
	tok, err := NewTokenIssuer(testCfg).Issue(uuid.New(), UserTypeISP, "isp@example.com", "ISP")
	require.NoError(t, err)

	w := get(newRouter(unavailableStore{}), "/me", tok.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Could not validate credentials")
}

func TestRequireUserType(t *testing.T) {
	r := newRouter(nil, RequireUserType(UserTypeFounder))
	issuer := NewTokenIssuer(testCfg)

	founder, err := issuer.Issue(uuid.New(), UserTypeFounder, "f@example.com", "F")
	require.NoError(t, err)
	isp, err := issuer.Issue(uuid.New(), UserTypeISP, "i@example.com", "I")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "/me", founder.Token).Code)
	w := get(r, "/me", isp.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Access denied")
}

func TestCanAccessTenant(t *testing.T) {
	own := uuid.New()
	assert.True(t, CanAccessTenant(&Principal{ID: own, UserType: UserTypeISP}, own))
	assert.False(t, CanAccessTenant(&Principal{ID: own, UserType: UserTypeISP}, uuid.New()))
	assert.True(t, CanAccessTenant(&Principal{ID: own, UserType: UserTypeFounder}, uuid.New()))
	assert.False(t, CanAccessTenant(nil, own))
}

func TestMemoryRevocationStore_Expires(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()
	require.NoError(t, store.Revoke(ctx, "old", time.Now().Add(-time.Second)))
	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Minute)))

	revoked, _ := store.IsRevoked(ctx, "old")
	assert.False(t, revoked)
	revoked, _ = store.IsRevoked(ctx, "live")
	assert.True(t, revoked)
}
