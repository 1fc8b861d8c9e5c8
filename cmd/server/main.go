package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/tripdesk/backend/internal/application/billing"
	"github.com/tripdesk/backend/internal/infrastructure/auth"
	"github.com/tripdesk/backend/internal/infrastructure/cache"
	"github.com/tripdesk/backend/internal/infrastructure/config"
	"github.com/tripdesk/backend/internal/infrastructure/event"
	"github.com/tripdesk/backend/internal/infrastructure/logger"
	"github.com/tripdesk/backend/internal/infrastructure/persistence"
	"github.com/tripdesk/backend/internal/infrastructure/scheduler"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
	"github.com/tripdesk/backend/internal/interfaces/http/handler"
	"github.com/tripdesk/backend/internal/interfaces/http/middleware"
	"github.com/tripdesk/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			TripDesk Billing API
//	@version		1.0
//	@description	Travel agency billing backend - quotations, invoices, payments and credit notes

//	@contact.name	API Support
//	@contact.url	https://github.com/tripdesk/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OTEL log export: bridge zap into the collector alongside stdout
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Warn("Failed to initialize OTEL logger provider", zap.Error(err))
	} else if loggerProvider.IsEnabled() {
		bridgeLevel, parseErr := zapcore.ParseLevel(cfg.Log.Level)
		if parseErr != nil {
			bridgeLevel = zapcore.InfoLevel
		}
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          bridgeLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore)
		defer func() {
			if err := loggerProvider.Shutdown(context.Background()); err != nil {
				log.Error("Error shutting down OTEL logger provider", zap.Error(err))
			}
		}()
	}

	log.Info("Starting TripDesk Billing Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Tag spans with pprof labels so CPU profiles can be filtered by
	// the billing operation that produced them
	if err := tracerProvider.EnableSpanProfiles(); err != nil {
		log.Warn("Failed to enable span profiles", zap.Error(err))
	}

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Database query tracing (otelgorm)
	if cfg.Telemetry.DBTraceEnabled {
		tracingCfg := telemetry.DefaultDBTracingConfig()
		tracingCfg.Enabled = true
		dbTracing := telemetry.NewDBTracingPlugin(tracingCfg, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Database connection pool and query metrics
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	quotationRepo := persistence.NewGormQuotationRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	receiptRepo := persistence.NewGormPaymentReceiptRepository(db.DB)
	creditNoteRepo := persistence.NewGormCreditNoteRepository(db.DB)
	sequenceRepo := persistence.NewGormDocumentSequenceRepository(db.DB)
	numberService := persistence.NewDocumentNumberService(sequenceRepo)
	leadGateway := persistence.NewGormLeadGateway(db.DB)

	// Stats cache (Redis with in-memory fallback)
	statsCache, err := cache.NewStatsCacheFactory(cfg.Redis, cache.WithLogger(log)).Create()
	if err != nil {
		log.Fatal("Failed to create stats cache", zap.Error(err))
	}

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Billing metrics fed from domain events, with periodic receivables collection
	billingMetrics, err := telemetry.NewBillingMetrics(
		meterProvider.Meter("billing"),
		log,
		telemetry.WithReceivablesProvider(persistence.NewReceivablesProvider(invoiceRepo)),
	)
	if err != nil {
		log.Warn("Failed to initialize billing metrics", zap.Error(err))
	} else {
		metricsHandler := billingapp.NewMetricsEventHandler(billingMetrics, log)
		eventBus.Subscribe(metricsHandler)
		billingMetrics.StartPeriodicCollection(ctx, time.Minute)
		defer billingMetrics.Stop()
		log.Info("Billing metrics handler registered",
			zap.Strings("event_types", metricsHandler.EventTypes()),
		)
	}

	// Start event bus
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize application services
	quotationService := billingapp.NewQuotationService(quotationRepo, invoiceRepo, leadGateway, numberService, eventBus)
	invoiceService := billingapp.NewInvoiceService(invoiceRepo, leadGateway, numberService, eventBus, statsCache)
	paymentService := billingapp.NewPaymentService(invoiceRepo, receiptRepo, numberService, eventBus, statsCache)
	creditNoteService := billingapp.NewCreditNoteService(creditNoteRepo, invoiceRepo, numberService, eventBus, statsCache)

	// Background sweeps: quotation expiry and invoice overdue marking
	if cfg.Scheduler.Enabled {
		sweeperConfig := scheduler.SweeperConfig{
			Enabled:              cfg.Scheduler.Enabled,
			ExpirySweepInterval:  cfg.Scheduler.ExpirySweepInterval,
			OverdueSweepInterval: cfg.Scheduler.OverdueSweepInterval,
			SweepBatchSize:       cfg.Scheduler.SweepBatchSize,
			SweepTimeout:         scheduler.DefaultSweeperConfig().SweepTimeout,
		}
		sweeper, err := scheduler.NewSweeper(sweeperConfig, quotationService, invoiceService, log)
		if err != nil {
			log.Fatal("Failed to create document sweeper", zap.Error(err))
		}
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal("Failed to start document sweeper", zap.Error(err))
		}
		defer func() {
			if err := sweeper.Stop(context.Background()); err != nil {
				log.Error("Error stopping document sweeper", zap.Error(err))
			}
		}()
		log.Info("Document sweeper started",
			zap.Duration("expiry_interval", cfg.Scheduler.ExpirySweepInterval),
			zap.Duration("overdue_interval", cfg.Scheduler.OverdueSweepInterval),
			zap.Int("batch_size", cfg.Scheduler.SweepBatchSize),
		)
	}

	// Initialize HTTP handlers
	quotationHandler := handler.NewQuotationHandler(quotationService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, quotationRepo)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	creditNoteHandler := handler.NewCreditNoteHandler(creditNoteService)

	// JWT token validation for API routes, with a Redis-backed revocation
	// list when Redis is reachable
	jwtService := auth.NewJWTService(cfg.JWT)
	var tokenBlacklist auth.TokenBlacklist
	if redisBlacklist, err := auth.NewRedisTokenBlacklist(auth.RedisTokenBlacklistConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		log.Warn("Redis token blacklist unavailable, using in-memory blacklist", zap.Error(err))
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
	} else {
		tokenBlacklist = redisBlacklist
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	// 8. Tracing / Metrics / Profiling - Observability
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Observability middleware
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Profiling())

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Runs after JWT so the request span carries user_id and request_id
	r.Use(middleware.TracingAttributeInjector())

	// Billing domain routes
	billingRoutes := router.NewDomainGroup("billing", "/billing")
	billingRoutes.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "billing service ready"})
	})

	// Quotation routes
	billingRoutes.POST("/quotations", quotationHandler.Create)
	billingRoutes.GET("/quotations", quotationHandler.List)
	billingRoutes.GET("/quotations/:id", quotationHandler.GetByID)
	billingRoutes.PUT("/quotations/:id", quotationHandler.Update)
	billingRoutes.DELETE("/quotations/:id", quotationHandler.Delete)
	billingRoutes.POST("/quotations/:id/send", quotationHandler.Send)
	billingRoutes.POST("/quotations/:id/view", quotationHandler.MarkViewed)
	billingRoutes.POST("/quotations/:id/accept", quotationHandler.Accept)
	billingRoutes.POST("/quotations/:id/reject", quotationHandler.Reject)
	billingRoutes.POST("/quotations/:id/convert", quotationHandler.Convert)

	// Invoice routes
	billingRoutes.POST("/invoices", invoiceHandler.Create)
	billingRoutes.GET("/invoices", invoiceHandler.List)
	billingRoutes.GET("/invoices/number/:number", invoiceHandler.GetByNumber)
	billingRoutes.GET("/invoices/:id", invoiceHandler.GetByID)
	billingRoutes.PUT("/invoices/:id", invoiceHandler.Update)
	billingRoutes.POST("/invoices/:id/send", invoiceHandler.Send)
	billingRoutes.POST("/invoices/:id/view", invoiceHandler.MarkViewed)
	billingRoutes.POST("/invoices/:id/remind", invoiceHandler.SendReminder)
	billingRoutes.POST("/invoices/:id/cancel", middleware.RequirePermissions("invoice:cancel"), invoiceHandler.Cancel)
	billingRoutes.GET("/invoices/:id/payments", paymentHandler.ListForInvoice)

	// Payment routes
	billingRoutes.POST("/payments", paymentHandler.Record)
	billingRoutes.GET("/payments", paymentHandler.List)
	billingRoutes.GET("/payments/:id", paymentHandler.GetByID)
	billingRoutes.POST("/payments/:id/verify", paymentHandler.Verify)
	billingRoutes.POST("/payments/:id/reconcile", paymentHandler.Reconcile)
	billingRoutes.POST("/payments/:id/cancel", middleware.RequirePermissions("payment:cancel"), paymentHandler.Cancel)

	// Credit note routes
	billingRoutes.POST("/credit-notes", creditNoteHandler.Create)
	billingRoutes.GET("/credit-notes", creditNoteHandler.List)
	billingRoutes.GET("/credit-notes/:id", creditNoteHandler.GetByID)
	billingRoutes.POST("/credit-notes/:id/approve", middleware.RequirePermissions("credit_note:approve"), creditNoteHandler.Approve)
	billingRoutes.POST("/credit-notes/:id/reject", middleware.RequirePermissions("credit_note:approve"), creditNoteHandler.RejectApproval)
	billingRoutes.POST("/credit-notes/:id/issue", creditNoteHandler.Issue)
	billingRoutes.POST("/credit-notes/:id/apply", creditNoteHandler.Apply)
	billingRoutes.POST("/credit-notes/:id/voucher", creditNoteHandler.GenerateVoucher)
	billingRoutes.POST("/credit-notes/:id/refund/start", creditNoteHandler.StartRefund)
	billingRoutes.POST("/credit-notes/:id/refund/complete", creditNoteHandler.CompleteRefund)
	billingRoutes.POST("/credit-notes/:id/refund/fail", creditNoteHandler.FailRefund)
	billingRoutes.POST("/credit-notes/:id/cancel", creditNoteHandler.Cancel)

	// Billing stats
	billingRoutes.GET("/stats", invoiceHandler.GetStats)

	r.Register(billingRoutes)

	// Register system routes with swagger-documented handlers
	systemHandler := handler.NewSystemHandler()
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	r.Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		body := gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		}
		if stats, err := db.Stats(); err == nil {
			body["pool"] = gin.H{
				"open":     stats.OpenConnections,
				"in_use":   stats.InUse,
				"idle":     stats.Idle,
				"waits":    stats.WaitCount,
				"max_open": stats.MaxOpenConnections,
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
