package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/infrastructure/auth"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/infrastructure/channels"
	"github.com/channelhub/backend/internal/infrastructure/config"
	"github.com/channelhub/backend/internal/infrastructure/logger"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/scheduler"
	"github.com/channelhub/backend/internal/infrastructure/storage"
	"github.com/channelhub/backend/internal/infrastructure/token"
	"github.com/channelhub/backend/internal/interfaces/http/handler"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
	"github.com/channelhub/backend/internal/interfaces/http/router"
)

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

	log.Info("Starting ChannelHub",
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

	// Redis backs webhook idempotency and the token refresh lock. The hub
	// still runs without it, but a multi-replica deployment needs it.
	var (
		idempotency cache.IdempotencyStore
		locker      cache.Locker
	)
	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory idempotency and locks", zap.Error(err))
		idempotency = cache.NewMemoryIdempotencyStore()
		locker = cache.NewMemoryLocker()
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis", zap.Error(err))
			}
		}()
		idempotency = cache.NewRedisIdempotencyStore(redisClient, "hub:webhook")
		locker = cache.NewRedisLocker(redisClient, "hub:lock")
		log.Info("Redis connected successfully")
	}

	// Initialize repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	shopRepo := persistence.NewGormShopRepository(db.DB)
	bindingRepo := persistence.NewGormBindingRepository(db.DB)
	syncRuleRepo := persistence.NewGormSyncRuleRepository(db.DB)
	jobStore := persistence.NewGormJobStore(db.DB)
	orderRepo := persistence.NewGormMarketplaceOrderRepository(db.DB)

	// Host schema ports
	erpProductRepo := persistence.NewGormErpProductRepository(db.DB)
	erpPartnerRepo := persistence.NewGormErpPartnerRepository(db.DB)
	erpSaleOrderRepo := persistence.NewGormErpSaleOrderRepository(db.DB)
	erpStockRepo := persistence.NewGormErpStockRepository(db.DB)
	auditLog := persistence.NewGormAuditLog(db.DB)

	// Channel adapter registry and token refresh
	registry := channels.NewRegistry(channels.RegistryConfig{
		OAuthRedirectBase: cfg.Channels.OAuthRedirectBase,
		WebhookURL:        cfg.Channels.WebhookURL,
		ShopeeBaseURL:     cfg.Channels.ShopeeBaseURL,
		LazadaBaseURL:     cfg.Channels.LazadaBaseURL,
		LazadaAuthBaseURL: cfg.Channels.LazadaAuthBaseURL,
		TikTokBaseURL:     cfg.Channels.TikTokBaseURL,
		TikTokAuthBaseURL: cfg.Channels.TikTokAuthBaseURL,
		ZortoutBaseURL:    cfg.Channels.ZortoutBaseURL,
	}, shopRepo, log)
	tokenManager := token.NewManager(accountRepo, registry, locker, log)

	// Optional object storage for import reports
	var reportStore appsync.ReportStore
	if cfg.Storage.Enabled {
		s3Store, err := storage.NewS3ReportStore(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize report storage", zap.Error(err))
		}
		reportStore = s3Store
		log.Info("Report storage enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	// Application services
	materializer := appsync.NewMaterializer(
		orderRepo, bindingRepo, erpPartnerRepo, erpProductRepo, erpSaleOrderRepo, auditLog, log,
	)
	stockService := appsync.NewStockService(shopRepo, syncRuleRepo, erpProductRepo, erpStockRepo, log)
	wooImporter := appsync.NewWooImporter(erpProductRepo, bindingRepo, reportStore, log)
	zortoutImporter := appsync.NewZortoutImporter(erpProductRepo, erpStockRepo, log)

	// Job executors, one per job type
	executors, err := scheduler.NewExecutorSet(
		scheduler.NewPullOrdersExecutor(shopRepo, materializer, log),
		scheduler.NewBackfillOrdersExecutor(shopRepo, materializer, log),
		scheduler.NewPushStockExecutor(bindingRepo, shopRepo, stockService, log),
		scheduler.NewProductSyncExecutor(shopRepo, wooImporter),
		scheduler.NewStockFeedSyncExecutor(zortoutImporter),
		scheduler.NewWebhookExecutor(shopRepo, materializer),
	)
	if err != nil {
		log.Fatal("Failed to build executor set", zap.Error(err))
	}

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Limit:      cfg.Scheduler.DispatchLimit,
		StuckAfter: cfg.Scheduler.StuckAfter,
	}, jobStore, accountRepo, registry, tokenManager, executors, log)
	autoScheduler := scheduler.NewAutoScheduler(accountRepo, shopRepo, bindingRepo, jobStore, log)
	stockTrigger := scheduler.NewStockTrigger(accountRepo, shopRepo, bindingRepo, jobStore, log)

	if cfg.Scheduler.Enabled {
		runner := scheduler.NewRunner(scheduler.RunnerConfig{
			DispatchSpec:  cfg.Scheduler.DispatchSpec,
			PullSpec:      cfg.Scheduler.PullSpec,
			PushSpec:      cfg.Scheduler.PushSpec,
			StockSyncSpec: cfg.Scheduler.StockSyncSpec,
			RetentionSpec: cfg.Scheduler.RetentionSpec,
		}, dispatcher, autoScheduler, accountRepo, jobStore, log)
		if err := runner.Start(context.Background()); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer runner.Stop()
		log.Info("Scheduler started",
			zap.String("dispatch_spec", cfg.Scheduler.DispatchSpec),
			zap.Int("dispatch_limit", cfg.Scheduler.DispatchLimit),
		)
	}

	// Initialize HTTP handlers
	accountHandler := handler.NewAccountHandler(accountRepo, shopRepo, registry, log)
	shopHandler := handler.NewShopHandler(shopRepo, log)
	bindingHandler := handler.NewBindingHandler(bindingRepo, syncRuleRepo, shopRepo, log)
	jobHandler := handler.NewJobHandler(jobStore, accountRepo, log)
	stockHandler := handler.NewStockHandler(stockTrigger, log)
	webhookHandler := handler.NewWebhookHandler(accountRepo, shopRepo, registry, jobStore, idempotency, log)
	systemHandler := handler.NewSystemHandler()

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

	// Admin API authentication. The host mints the tokens; webhook intake
	// authenticates with channel signatures instead.
	jwtService := auth.NewJWTService(cfg.JWT)
	engine.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			"/api/v1/webhooks/",
		},
		Logger: log,
	}))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(accountHandler).
		Register(shopHandler).
		Register(bindingHandler).
		Register(jobHandler).
		Register(stockHandler).
		Register(webhookHandler).
		Register(systemHandler)
	r.Setup()

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
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
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
