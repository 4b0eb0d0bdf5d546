package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/retailcore/backend/internal/application/ledgerquery"
	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/infrastructure/approval"
	"github.com/retailcore/backend/internal/infrastructure/cache"
	"github.com/retailcore/backend/internal/infrastructure/config"
	"github.com/retailcore/backend/internal/infrastructure/event"
	"github.com/retailcore/backend/internal/infrastructure/logger"
	"github.com/retailcore/backend/internal/infrastructure/payment"
	"github.com/retailcore/backend/internal/infrastructure/persistence"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"github.com/retailcore/backend/internal/interfaces/http/handler"
	"github.com/retailcore/backend/internal/interfaces/http/middleware"
	"github.com/retailcore/backend/internal/interfaces/http/router"
)

// version is stamped at build time via -ldflags
var version = "dev"

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

	log.Info("Starting RetailCore Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Tracing
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Metrics
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// OTEL log export; when enabled the logger is rebuilt to tee into the
	// collector alongside its configured output
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	if loggerProvider.IsEnabled() {
		bridged, err := telemetry.CreateBridgedLoggerFromConfig(&telemetry.BaseLoggerConfig{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, loggerProvider, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Warn("Failed to bridge logger to OTEL, keeping local logger", zap.Error(err))
		} else {
			log = bridged
		}
	}

	// Continuous profiling
	if cfg.Profiling.Enabled {
		profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:           true,
			ServerAddress:     cfg.Profiling.ServerAddress,
			ApplicationName:   cfg.App.Name,
			ProfileCPU:        true,
			ProfileAllocSpace: true,
			ProfileInuseSpace: true,
			ProfileGoroutines: true,
		}, log)
		if err != nil {
			log.Warn("Failed to start profiler", zap.Error(err))
		} else {
			defer func() {
				if err := profiler.Stop(); err != nil {
					log.Error("Error stopping profiler", zap.Error(err))
				}
			}()
			// Span profiles need the profiler running first.
			if err := tracerProvider.EnableSpanProfiles(); err != nil {
				log.Warn("Failed to enable span profiles", zap.Error(err))
			}
		}
	}

	// Database
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Database query tracing
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Database query metrics and pool stats
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	} else if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Stock projection cache and idempotency store, Redis-backed with
	// in-memory fallback outside production
	cacheFactory := cache.NewCacheFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	stockCache, err := cacheFactory.CreateStockCache()
	if err != nil {
		log.Fatal("Failed to create stock cache", zap.Error(err))
	}
	idempotencyStore, err := cacheFactory.CreateIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Event bus with projection invalidation on appended movements
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewStockCacheInvalidationHandler(stockCache, log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Repositories
	movementRepo := persistence.NewGormMovementRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)
	serialUnitRepo := persistence.NewGormSerialUnitRepository(db.DB)
	productCatalog := persistence.NewGormProductCatalog(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	// Elevated approval tokens are single-use; Redis enforces that across
	// instances, the in-memory registry only within one process
	var consumedRegistry approval.ConsumedTokenRegistry
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err == nil {
		consumedRegistry = approval.NewRedisConsumedTokenRegistryWithClient(redisClient)
	} else {
		log.Warn("Redis unavailable for approval token registry, using in-memory registry", zap.Error(err))
		consumedRegistry = approval.NewInMemoryConsumedTokenRegistry()
	}
	approvalService := approval.NewJWTApprovalService(cfg.Approval, consumedRegistry)

	// Card terminal gateway; without one only cash and account tenders settle
	var paymentGateway orchestrator.PaymentGateway
	if cfg.Payment.TerminalBaseURL != "" {
		terminal, err := payment.NewTerminalAdapter(&payment.TerminalConfig{
			BaseURL:    cfg.Payment.TerminalBaseURL,
			APIKey:     cfg.Payment.TerminalAPIKey,
			TerminalID: cfg.Payment.TerminalID,
			Timeout:    cfg.Payment.Timeout,
		})
		if err != nil {
			log.Fatal("Invalid payment terminal configuration", zap.Error(err))
		}
		paymentGateway = terminal
		log.Info("Card terminal gateway configured", zap.String("terminal_id", cfg.Payment.TerminalID))
	} else {
		log.Info("No card terminal configured, card tenders will be declined")
	}

	// Application services
	orchestratorService := orchestrator.NewService(
		scope,
		stockCache,
		productCatalog,
		paymentGateway,
		approvalService,
		idempotencyStore,
		eventBus,
		log,
		orchestrator.Config{
			CancelWindow:        cfg.Policy.CancelWindow,
			ElevatedAmountLimit: decimal.NewFromFloat(cfg.Policy.ElevatedAmountLimit),
			ConflictRetries:     cfg.Policy.ConflictRetries,
			IdempotencyTTL:      cfg.Policy.IdempotencyTTL,
		},
	)
	queryService := ledgerquery.NewService(movementRepo, stockCache, log)

	// Periodic ledger aggregates per tenant
	if meterProvider.IsEnabled() {
		businessMetrics, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
			Meter:          meterProvider.Meter("retailcore.ledger"),
			Logger:         log,
			LedgerProvider: telemetry.NewGormLedgerMetricsProvider(db.DB),
		})
		if err != nil {
			log.Warn("Failed to initialize business metrics", zap.Error(err))
		} else {
			businessMetrics.StartPeriodicCollection(ctx, telemetry.NewGormTenantProvider(db.DB), 5*time.Minute)
			defer businessMetrics.Stop()
		}
	}

	// HTTP handlers
	systemHandler := handler.NewSystemHandler(db.DB, version)
	transactionHandler := handler.NewTransactionHandler(orchestratorService, transactionRepo, queryService)
	transferHandler := handler.NewTransferHandler(orchestratorService)
	stockHandler := handler.NewStockHandler(queryService)
	serialUnitHandler := handler.NewSerialUnitHandler(orchestratorService, serialUnitRepo)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.RateLimit(middleware.NewRateLimiter(300, time.Minute)))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("retailcore.http"), meterProvider.IsEnabled()))
	}
	if cfg.Profiling.Enabled {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.TenantMiddleware())

	router.NewRouter(engine, router.Handlers{
		System:       systemHandler,
		Transactions: transactionHandler,
		Transfers:    transferHandler,
		Stock:        stockHandler,
		SerialUnits:  serialUnitHandler,
	}).Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

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
