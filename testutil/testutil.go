// Package testutil wires an in-memory environment for handler tests: a
// migrated sqlite database, token issuing and validation, the in-memory
// event producer and fixture builders for the tenant hierarchy.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/internal/database"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/pkg/logger"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/pkg/validation"
)

// Password is the plain-text password of every fixture account.
const Password = "password123"

func init() {
	gin.SetMode(gin.TestMode)
	validation.RegisterGinValidators()
}

// Env bundles the dependencies handler tests need.
type Env struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	AuthCfg   auth.Config
	Issuer    *auth.TokenIssuer
	Revoked   *auth.MemoryRevocationStore
	Producer  *messaging.MemoryProducer
	Publisher *messaging.Publisher
	Audit     *audit.Service
	Sealer    *security.Sealer
}

func NewEnv(t testing.TB) *Env {
	t.Helper()
	log := zap.NewNop()
	cfg := auth.Config{
		Secret:   "test-secret-test-secret-test-secret",
		Issuer:   "astranetix-test",
		Audience: []string{"astranetix-api"},
		Expiry:   30 * time.Minute,
	}
	db := database.NewTestDB(t)
	producer := messaging.NewMemoryProducer()
	sealer, err := security.NewSealer(cfg.Secret)
	require.NoError(t, err)
	return &Env{
		DB:        db,
		Logger:    log,
		AuthCfg:   cfg,
		Issuer:    auth.NewTokenIssuer(cfg),
		Revoked:   auth.NewMemoryRevocationStore(),
		Producer:  producer,
		Publisher: messaging.NewPublisher(producer, log),
		Audit:     audit.NewService(db, log),
		Sealer:    sealer,
	}
}

// Authn returns the bearer-token middleware bound to the env's signing key.
func (e *Env) Authn() gin.HandlerFunc {
	return auth.Middleware(logger.NewSlog(e.Logger), e.AuthCfg, e.Revoked)
}

// Router returns an engine and its /api/v1 group.
func (e *Env) Router() (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	return r, r.Group("/api/v1")
}

// Token issues an access token for id.
func (e *Env) Token(t testing.TB, id uuid.UUID, userType string) string {
	t.Helper()
	tok, err := e.Issuer.Issue(id, userType, userType+"@example.com", userType)
	require.NoError(t, err)
	return tok.Token
}

// Do sends a JSON request to h. A nil body sends no payload.
func Do(t testing.TB, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Decode unmarshals the recorded body into v.
func Decode(t testing.TB, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func hash(t testing.TB) string {
	t.Helper()
	h, err := security.HashPassword(Password)
	require.NoError(t, err)
	return h
}

func suffix() string { return uuid.NewString()[:8] }

// Founder creates an active founder.
func (e *Env) Founder(t testing.TB) *models.Founder {
	t.Helper()
	f := &models.Founder{
		Email:        "founder-" + suffix() + "@example.com",
		PasswordHash: hash(t),
		CompanyName:  "AstraNetix",
		FullName:     "Fiona Founder",
		IsActive:     true,
		Settings:     models.JSONMap{},
	}
	require.NoError(t, e.DB.Create(f).Error)
	return f
}

// ISP creates an active ISP owned by founderID.
func (e *Env) ISP(t testing.TB, founderID uuid.UUID) *models.ISP {
	t.Helper()
	s := suffix()
	isp := &models.ISP{
		FounderID:    founderID,
		CompanyName:  "Net " + s,
		Domain:       "net-" + s,
		Email:        "isp-" + s + "@example.com",
		PasswordHash: hash(t),
		IsActive:     true,
		Branding:     models.JSONMap{},
		Settings:     models.JSONMap{},
	}
	require.NoError(t, e.DB.Create(isp).Error)
	return isp
}

// Branch creates an active branch of ispID.
func (e *Env) Branch(t testing.TB, ispID uuid.UUID) *models.Branch {
	t.Helper()
	b := &models.Branch{
		ISPID:    ispID,
		Name:     "Branch " + suffix(),
		Location: "Downtown",
		Address:  "1 Main St",
		IsActive: true,
		Settings: models.JSONMap{},
	}
	require.NoError(t, e.DB.Create(b).Error)
	return b
}

// Plan creates an active monthly USD plan of ispID.
func (e *Env) Plan(t testing.TB, ispID uuid.UUID, price string, bandwidth int, dataLimit *int) *models.SubscriptionPlan {
	t.Helper()
	p := &models.SubscriptionPlan{
		ISPID:          ispID,
		Name:           "Plan " + suffix(),
		BandwidthLimit: bandwidth,
		DataLimit:      dataLimit,
		Price:          decimal.RequireFromString(price),
		Currency:       "USD",
		BillingCycle:   "monthly",
		Features:       models.JSONMap{},
		IsActive:       true,
	}
	require.NoError(t, e.DB.Create(p).Error)
	return p
}

// Subscriber creates an active subscriber on branchID, copying plan limits
// when plan is given.
func (e *Env) Subscriber(t testing.TB, branchID uuid.UUID, plan *models.SubscriptionPlan) *models.User {
	t.Helper()
	s := suffix()
	u := &models.User{
		BranchID:       branchID,
		Username:       "user-" + s,
		Email:          "user-" + s + "@example.com",
		PasswordHash:   hash(t),
		FullName:       "Sam Subscriber",
		BandwidthLimit: 100,
		ConnectionType: "broadband",
		IsActive:       true,
		Settings:       models.JSONMap{},
	}
	if plan != nil {
		id := plan.ID
		u.PlanID = &id
		u.SubscriptionPlan = plan.Name
		u.BandwidthLimit = plan.BandwidthLimit
		u.DataLimit = plan.DataLimit
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// Usage records a usage row for userID on day.
func (e *Env) Usage(t testing.TB, userID uuid.UUID, day time.Time, upload, download int64, peakMbps float64, peakHour int) *models.BandwidthUsage {
	t.Helper()
	u := &models.BandwidthUsage{
		UserID:        userID,
		Date:          day.UTC(),
		UploadBytes:   upload,
		DownloadBytes: download,
		TotalBytes:    upload + download,
		PeakUsageMbps: peakMbps,
		PeakHour:      peakHour,
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// Payment records a payment for userID.
func (e *Env) Payment(t testing.TB, userID uuid.UUID, amount, status string, at time.Time) *models.Payment {
	t.Helper()
	p := &models.Payment{
		UserID:            userID,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USD",
		Gateway:           "stripe",
		Status:            status,
		PaymentMethodType: "card",
		InvoiceData:       models.JSONMap{},
	}
	p.CreatedAt = at.UTC()
	require.NoError(t, e.DB.Create(p).Error)
	return p
}

// Hierarchy is a founder with one ISP, one branch, one plan and one subscriber.
type Hierarchy struct {
	Founder    *models.Founder
	ISP        *models.ISP
	Branch     *models.Branch
	Plan       *models.SubscriptionPlan
	Subscriber *models.User
}

// Hierarchy builds a complete tenant tree.
func (e *Env) Hierarchy(t testing.TB) *Hierarchy {
	t.Helper()
	limit := 100
	f := e.Founder(t)
	isp := e.ISP(t, f.ID)
	b := e.Branch(t, isp.ID)
	plan := e.Plan(t, isp.ID, "49.99", 100, &limit)
	u := e.Subscriber(t, b.ID, plan)
	return &Hierarchy{Founder: f, ISP: isp, Branch: b, Plan: plan, Subscriber: u}
}
