// Package api assembles the HTTP server: the middleware chain, the system
// endpoints and one route group per business module.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/common/apiutil"
	"github.com/astranetix/bms/common/auth"
	apperrors "github.com/astranetix/bms/common/errors"
	_ "github.com/astranetix/bms/docs"
	"github.com/astranetix/bms/internal/ai"
	"github.com/astranetix/bms/internal/audit"
	authmod "github.com/astranetix/bms/internal/auth"
	"github.com/astranetix/bms/internal/branch"
	"github.com/astranetix/bms/internal/crm"
	"github.com/astranetix/bms/internal/founder"
	"github.com/astranetix/bms/internal/infrastructure/ratelimit"
	"github.com/astranetix/bms/internal/infrastructure/ws"
	"github.com/astranetix/bms/internal/isp"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/noc"
	"github.com/astranetix/bms/internal/payment"
	"github.com/astranetix/bms/internal/reporting"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/internal/support"
	"github.com/astranetix/bms/internal/sustainability"
	"github.com/astranetix/bms/internal/user"
	"github.com/astranetix/bms/pkg/logger"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/pkg/validation"
)

const (
	ServiceName = "astranetix-bms"
	Version     = "1.0.0"
)

// features is advertised on the root endpoint.
var features = []string{
	"Multi-tenant ISP management",
	"Branch and subscriber administration",
	"Billing and payment processing",
	"AI-driven network optimization",
	"Network operations center",
	"CRM and marketing campaigns",
	"Reporting and analytics",
	"Sustainability tracking",
	"Customer support and knowledge base",
}

// Dependencies are the shared resources the modules are built from.
type Dependencies struct {
	DB             *gorm.DB
	Logger         *zap.Logger
	Auth           auth.Config
	Revoked        auth.RevocationStore
	LoginLimiter   ratelimit.Limiter
	Publisher      *messaging.Publisher
	Hub            *ws.Hub
	Artifacts      *store.ArtifactStore
	Sealer         *security.Sealer
	AppName        string
	PlatformDomain string
	CORSOrigins    []string
	TrustedProxies []string
	Tracing        bool
}

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	db        *gorm.DB
	reporting *reporting.Service
}

// NewServer builds the router and mounts every module under /api/v1.
func NewServer(deps Dependencies) *Server {
	validation.RegisterGinValidators()
	apperrors.SetLogger(deps.Logger)

	router := gin.New()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		deps.Logger.Warn("Invalid trusted proxies, trusting none", zap.Strings("trusted_proxies", deps.TrustedProxies), zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(apiutil.TraceMiddleware())
	router.Use(ginzap.Ginzap(deps.Logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(deps.Logger, true))
	if deps.Tracing {
		router.Use(otelgin.Middleware(ServiceName))
	}
	router.Use(apiutil.MetricsMiddleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(deps.CORSOrigins) == 0 || deps.CORSOrigins[0] == "*" {
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = deps.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	s := &Server{
		router: router,
		logger: deps.Logger,
		db:     deps.DB,
	}
	s.registerRoutes(deps)
	return s
}

// Router returns the internal Gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Reporting exposes the reporting service for the background scheduler.
func (s *Server) Reporting() *reporting.Service {
	return s.reporting
}

func (s *Server) registerRoutes(deps Dependencies) {
	log := deps.Logger

	s.router.GET("/", s.root)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authn := auth.Middleware(logger.NewSlog(log), deps.Auth, deps.Revoked)
	var loginLimit gin.HandlerFunc
	if deps.LoginLimiter != nil {
		loginLimit = ratelimit.Middleware(deps.LoginLimiter, ratelimit.ClientIPKey("login"), log)
	}

	auditSvc := audit.NewService(deps.DB, log)
	supportSvc := support.NewService(deps.DB, log, deps.Publisher)
	s.reporting = reporting.NewService(deps.DB, log, deps.Artifacts, deps.Publisher)

	v1 := s.router.Group("/api/v1")
	authmod.Routes(v1, authmod.NewService(deps.DB, log, auth.NewTokenIssuer(deps.Auth), deps.Revoked, auditSvc, deps.AppName), log, authn, loginLimit)
	founder.Routes(v1, founder.NewService(deps.DB, log, deps.Publisher, auditSvc, deps.PlatformDomain), log, authn)
	isp.Routes(v1, isp.NewService(deps.DB, log, deps.Publisher, auditSvc, deps.Sealer), log, authn)
	branch.Routes(v1, branch.NewService(deps.DB, log, auditSvc), log, authn)
	user.Routes(v1, user.NewService(deps.DB, log, supportSvc, auditSvc), log, authn)
	payment.Routes(v1, payment.NewService(deps.DB, log, deps.Publisher, auditSvc), log, authn)
	ai.Routes(v1, ai.NewService(deps.DB, log), log, authn)
	noc.Routes(v1, noc.NewService(deps.DB, log, deps.Hub, deps.Publisher), log, authn)
	crm.Routes(v1, crm.NewService(deps.DB, log, deps.Publisher), log, authn)
	reporting.Routes(v1, s.reporting, log, authn)
	sustainability.Routes(v1, sustainability.NewService(deps.DB, log), log, authn)
	support.Routes(v1, supportSvc, log, authn)
}

// root describes the API
// @Summary API information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "AstraNetix BMS API",
		"version":  Version,
		"features": features,
	})
}

// healthCheck pings the database
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		apiutil.RequestLogger(c, s.logger, "health").Warn("Database ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}
