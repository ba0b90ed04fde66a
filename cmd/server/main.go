package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/handler"
	"github.com/TaroHarado/copytrade-key/internal/middleware"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
	"github.com/TaroHarado/copytrade-key/internal/repository"
	"github.com/TaroHarado/copytrade-key/internal/service"
	"github.com/TaroHarado/copytrade-key/internal/signer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	// Usage persistence (Redis > Memory). Without Redis the daily volume
	// counters reset on restart, which is acceptable for a single replica.
	var usageStore service.UsageStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg.Redis)
		if err == nil {
			logger.Info("connected to redis")
			usageStore = repository.NewRedisUsageStore(redisClient)
		} else {
			logger.Error("failed to connect to redis, falling back to memory", "error", err)
		}
	}
	if usageStore == nil {
		usageStore = service.NewMemoryUsageStore()
	}

	// Audit store. The service degrades to an in-memory buffer when the
	// database is down, but signing still works.
	var auditRepo service.AuditRepo
	if cfg.Database.AuditDSN != "" {
		auditDB, err := repository.Open(cfg.Database.AuditDSN)
		if err == nil {
			logger.Info("connected to audit database")
			auditRepo = repository.NewPostgresAuditRepo(auditDB)
		} else {
			logger.Error("failed to connect to audit database, audit records will be memory-only", "error", err)
		}
	}
	auditRecorder := service.NewAuditRecorder(auditRepo)

	// The activity ledger is mandatory: without it no order or transfer
	// can be validated.
	ledgerDB, err := repository.Open(cfg.Database.LedgerDSN)
	if err != nil {
		log.Fatalf("Failed to connect to activity ledger: %v", err)
	}
	ledger := repository.NewPostgresLedgerRepo(ledgerDB)

	alerter := service.NewTelegramAlerter(cfg.Alerts)
	whitelist := service.NewWhitelist(cfg.Whitelist)
	guard := service.NewGuard(cfg.Guard, usageStore, alerter)
	validator := service.NewActivityValidator(ledger, cfg.Commission)
	privyClient := signer.NewPrivyClient(cfg.Privy)

	orchestrator := service.NewOrchestrator(whitelist, guard, validator, ledger, privyClient, auditRecorder)

	signHandler := handler.NewSignHandler(orchestrator, privyClient)
	auditHandler := handler.NewAuditHandler(auditRecorder)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "copytrade-key"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	authed := r.Group("/")
	authed.Use(middleware.RateLimitMiddleware(cfg))
	authed.Use(middleware.ServiceAuthMiddleware(cfg))
	{
		authed.POST("/sign/order",
			middleware.IPAllowlistMiddleware(cfg, "order"), signHandler.SignOrder)
		authed.POST("/sign/allowance",
			middleware.IPAllowlistMiddleware(cfg, "allowance"), signHandler.SignAllowance)
		authed.POST("/sign/transfer",
			middleware.IPAllowlistMiddleware(cfg, "transfer"), signHandler.SignTransfer)
		authed.POST("/privy/verify-token", signHandler.VerifyToken)
		authed.GET("/v1/audit", auditHandler.List)
	}

	// Periodic audit retention cleanup.
	var scheduler *cron.Cron
	if auditRepo != nil && cfg.Database.AuditRetentionDays > 0 {
		scheduler = cron.New()
		interval := cfg.Database.CleanupIntervalMinutes
		if interval <= 0 {
			interval = 60
		}
		spec := "@every " + (time.Duration(interval) * time.Minute).String()
		_, err := scheduler.AddFunc(spec, func() {
			retention := time.Duration(cfg.Database.AuditRetentionDays) * 24 * time.Hour
			if err := auditRepo.Cleanup(context.Background(), retention); err != nil {
				logger.Error("audit cleanup failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("failed to schedule audit cleanup", "error", err)
		} else {
			scheduler.Start()
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("signing service started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
