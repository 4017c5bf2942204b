// Command astranetix runs the AstraNetix BMS API server.
//
//	@title			AstraNetix BMS API
//	@version		1.0.0
//	@description	Multi-tenant business management API for internet service providers.
//	@BasePath		/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astranetix/bms/api"
	"github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/internal/database"
	"github.com/astranetix/bms/internal/infrastructure/config"
	"github.com/astranetix/bms/internal/infrastructure/ratelimit"
	"github.com/astranetix/bms/internal/infrastructure/ws"
	"github.com/astranetix/bms/internal/messaging"
	"github.com/astranetix/bms/internal/reporting"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/pkg/logger"
	"github.com/astranetix/bms/pkg/metrics"
	"github.com/astranetix/bms/pkg/security"
	"github.com/astranetix/bms/pkg/telemetry"
)

const alertReplaySize = 256

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	bootLogger, err := logger.NewLogger(os.Getenv("ASTRANETIX_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	cfg, err := config.LoadConfig(bootLogger)
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal("Failed to create logger", zap.Error(err))
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    api.ServiceName,
		ServiceVersion: api.Version,
		Tracing:        cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	db, err := database.NewDB(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, zapLogger); err != nil {
			zapLogger.Fatal("Failed to migrate database", zap.Error(err))
		}
		if err := database.SeedKnowledgeBase(db); err != nil {
			zapLogger.Warn("Failed to seed knowledge base", zap.Error(err))
		}
	}

	var revoked auth.RevocationStore = auth.NewMemoryRevocationStore()
	var loginLimiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.LoginPerMinute, time.Minute)
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		revoked = auth.NewRedisRevocationStore(client)
		loginLimiter = ratelimit.NewRedisLimiter(client, "astranetix:login", cfg.RateLimit.LoginPerMinute, time.Minute)
	}

	var producer messaging.Producer
	if cfg.Kafka.Enabled {
		kcfg := messaging.DefaultKafkaConfig()
		kcfg.Brokers = cfg.Kafka.Brokers
		if cfg.Kafka.TopicPrefix != "" {
			kcfg.TopicPrefix = cfg.Kafka.TopicPrefix
		}
		kp, err := messaging.NewKafkaProducer(kcfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		producer = kp
	}
	publisher := messaging.NewPublisher(producer, zapLogger)

	artifacts, err := store.Open(cfg.Reports.Dir, cfg.Reports.InMemory)
	if err != nil {
		zapLogger.Fatal("Failed to open report store", zap.Error(err))
	}

	sealer, err := security.NewSealer(cfg.CredentialKey())
	if err != nil {
		zapLogger.Fatal("Failed to create credential sealer", zap.Error(err))
	}

	hub := ws.NewHub(alertReplaySize, zapLogger)

	srv := api.NewServer(api.Dependencies{
		DB:     db,
		Logger: zapLogger,
		Auth: auth.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
			Expiry:   cfg.JWT.Expiry,
		},
		Revoked:        revoked,
		LoginLimiter:   loginLimiter,
		Publisher:      publisher,
		Hub:            hub,
		Artifacts:      artifacts,
		Sealer:         sealer,
		AppName:        cfg.Platform.AppName,
		PlatformDomain: cfg.Platform.Domain,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Tracing:        cfg.Telemetry.TracingEnabled,
	})

	var scheduler *reporting.Scheduler
	if cfg.Reports.Scheduler {
		scheduler = reporting.NewScheduler(srv.Reporting(), zapLogger, reporting.DefaultScheduleInterval)
		scheduler.Start(ctx)
	}

	go collectPoolStats(ctx, db, cfg.Database.Driver)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := hub.Shutdown(); err != nil {
		zapLogger.Error("Failed to close websocket hub", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		zapLogger.Error("Failed to close event producer", zap.Error(err))
	}
	if err := artifacts.Close(); err != nil {
		zapLogger.Error("Failed to close report store", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush telemetry", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	zapLogger.Info("Server exited properly")
}

// collectPoolStats publishes connection pool gauges every 30s.
func collectPoolStats(ctx context.Context, db *gorm.DB, driver string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sqlDB, err := db.DB()
			if err != nil {
				continue
			}
			stats := sqlDB.Stats()
			metrics.DBOpenConns.WithLabelValues(driver).Set(float64(stats.OpenConnections))
			metrics.DBIdleConns.WithLabelValues(driver).Set(float64(stats.Idle))
			metrics.DBInUseConns.WithLabelValues(driver).Set(float64(stats.InUse))
		}
	}
}
