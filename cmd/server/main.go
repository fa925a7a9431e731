package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	dashboardapp "github.com/loyalty/backend/internal/application/dashboard"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/auth"
	"github.com/loyalty/backend/internal/infrastructure/cache"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/event"
	"github.com/loyalty/backend/internal/infrastructure/lock"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/persistence"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"github.com/loyalty/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Loyalty Ledger API
//	@version		1.0
//	@description	Loyalty programs, enrollments and their append-only balance ledger

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
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry providers are no-ops unless telemetry.enabled is set
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log := loggerProvider.Bridge(baseLog)
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting loyalty backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:        logger.Named(log, "gorm"),
		LogLevel:      logger.MapGormLogLevel(cfg.Log.Level),
		SlowThreshold: 200 * time.Millisecond,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if db.Driver == "sqlite" {
		// sqlite is a development store; PostgreSQL is migrated with loyaltyctl
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled: cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:  cfg.Database.DBName,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", db.Driver))

	// Redis backs the summary cache, event idempotency and the ledger mutex
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Repositories
	programRepo := persistence.NewGormProgramRepository(db.DB)
	enrollmentRepo := persistence.NewGormEnrollmentRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)
	dashboardReader := persistence.NewGormDashboardReader(db.DB)
	bookingReader := persistence.NewGormBookingReader(db.DB)
	txManager := persistence.NewGormTransactionManager(db.DB)

	// Event bus and handlers
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter("loyalty.ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	var idempotencyClient redis.UniversalClient
	if redisClient != nil {
		idempotencyClient = redisClient
	}
	idempotencyStore := cache.NewIdempotencyStore(idempotencyClient, log)
	defer func() {
		_ = idempotencyStore.Close()
	}()

	eventBus := event.NewInMemoryEventBus(logger.Named(log, "events"), event.BusOptions{
		Workers:    cfg.Event.Workers,
		BufferSize: cfg.Event.BufferSize,
	})
	activityHandler := event.NewIdempotentHandler("activity-log",
		loyaltyapp.NewActivityLogHandler(log), idempotencyStore, log,
		event.WithIdempotencyTTL(cfg.Event.IdempotencyTTL),
	)
	eventBus.Subscribe(activityHandler)
	eventBus.Subscribe(ledgerMetrics)
	log.Info("Event handlers registered",
		zap.Strings("activity_log_events", activityHandler.EventTypes()),
		zap.Strings("ledger_metrics_events", ledgerMetrics.EventTypes()),
	)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	var locker loyaltyapp.Locker
	if cfg.Ledger.LockEnabled {
		locker = lock.NewRedisLocker(redisClient, lock.Options{
			Expiry: cfg.Ledger.LockExpiry,
			Tries:  cfg.Ledger.LockTries,
		}, logger.Named(log, "lock"))
	}

	programService := loyaltyapp.NewProgramService(programRepo, log)
	ledgerService := loyaltyapp.NewLedgerService(loyaltyapp.LedgerServiceConfig{
		ProgramRepo:     programRepo,
		EnrollmentRepo:  enrollmentRepo,
		TransactionRepo: transactionRepo,
		TxManager:       txManager,
		Locker:          locker,
		EventPublisher:  eventBus,
		Metrics:         ledgerMetrics,
		Logger:          logger.Named(log, "ledger"),
		Retry: loyaltyapp.RetryPolicy{
			MaxRetries:      cfg.Ledger.MaxRetries,
			InitialInterval: cfg.Ledger.RetryInitialInterval,
			MaxInterval:     cfg.Ledger.RetryMaxInterval,
		},
		HistoryPageSize: cfg.Ledger.HistoryPageSize,
	})
	identityResolver := loyaltyapp.NewIdentityResolver(enrollmentRepo, programRepo)

	var summaryCache dashboardapp.SummaryCache
	if redisClient != nil {
		summaryCache = cache.NewJSONCache[dashboardapp.MerchantSummary](redisClient, "dashboard:summary:", cfg.Dashboard.SummaryTTL)
	}
	dashboardService := dashboardapp.NewService(dashboardapp.ServiceConfig{
		ReadModel: dashboardReader,
		Bookings:  bookingReader,
		Cache:     summaryCache,
		Breaker: dashboardapp.BreakerSettings{
			Timeout:      cfg.Dashboard.BreakerTimeout,
			MaxRequests:  cfg.Dashboard.BreakerMaxRequests,
			FailureLimit: cfg.Dashboard.BreakerFailureLimit,
		},
		Location:    cfg.App.Location(),
		RecentLimit: cfg.Dashboard.RecentLimit,
		Logger:      logger.Named(log, "dashboard"),
	})

	// HTTP handlers
	checks := map[string]handler.Pinger{"database": db.Ping, "redis": nil}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	handlers := router.Handlers{
		Program:    handler.NewProgramHandler(programService),
		Enrollment: handler.NewEnrollmentHandler(ledgerService, identityResolver),
		Dashboard:  handler.NewDashboardHandler(dashboardService),
		Identifier: handler.NewIdentifierHandler(identityResolver),
		System:     handler.NewSystemHandler(cfg.App.Name, version, checks),
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MeterProvider:  meterProvider,
		CORS:           router.DefaultCORS(cfg.HTTP.CORSAllowOrigins, cfg.HTTP.CORSAllowMethods, cfg.HTTP.CORSAllowHeaders),
		Security:       middleware.DefaultSecurityConfig(),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Logger:         log,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT)
	if !cfg.JWT.Required {
		log.Warn("Bearer tokens are optional, the X-Tenant-ID header is trusted")
	}

	const apiVersion = "v1"
	r := router.NewRouter(engine, router.WithAPIVersion(apiVersion)).
		Use(middleware.TenantAuth(middleware.AuthConfig{
			Validator: jwtService,
			Required:  cfg.JWT.Required,
			SkipPaths: router.PublicPaths(apiVersion),
			Logger:    log,
		})).
		Use(middleware.SpanEnricher())
	router.RegisterAPI(r, handlers).Setup()

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
