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
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/application/balance"
	"github.com/strata/backend/internal/application/dues"
	appevent "github.com/strata/backend/internal/application/event"
	appledger "github.com/strata/backend/internal/application/ledger"
	"github.com/strata/backend/internal/application/reconcile"
	"github.com/strata/backend/internal/application/report"
	apptenancy "github.com/strata/backend/internal/application/tenancy"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/auth"
	"github.com/strata/backend/internal/infrastructure/cache"
	"github.com/strata/backend/internal/infrastructure/config"
	"github.com/strata/backend/internal/infrastructure/event"
	"github.com/strata/backend/internal/infrastructure/logger"
	"github.com/strata/backend/internal/infrastructure/persistence"
	tenantscope "github.com/strata/backend/internal/infrastructure/persistence/tenant"
	"github.com/strata/backend/internal/infrastructure/scheduler"
	"github.com/strata/backend/internal/infrastructure/telemetry"
	"github.com/strata/backend/internal/interfaces/http/handler"
	"github.com/strata/backend/internal/interfaces/http/middleware"
	"github.com/strata/backend/internal/interfaces/http/router"
)

//	@title			Strata Backend API
//	@version		1.0
//	@description	Multi-tenant building dues ledger and settlement engine

//	@contact.name	API Support
//	@contact.url	https://github.com/strata/backend

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

	log.Info("Starting Strata Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing (optional)
	var tracerProvider *telemetry.TracerProvider
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
			Enabled:           cfg.Telemetry.Enabled,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize tracer provider", zap.Error(err))
		}
		tracerProvider = tp
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				log.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
		log.Info("Telemetry enabled", zap.String("endpoint", cfg.Telemetry.CollectorEndpoint))
	}

	// Initialize database connection
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	// Route gorm logging through zap
	db.DB.Logger = logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterOtelGorm(db.DB, telemetry.DBTracingConfig{
			Enabled:    true,
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		}, log); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	// Backstop against repository queries that miss an explicit tenant
	// filter. Background workers run without a tenant context, so the
	// guard is lenient rather than required.
	tenantscope.RegisterGuard(db.DB, false)
	log.Info("Database connected successfully")

	// Redis backs the token blacklist, event idempotency and the rebuild
	// throttle; everything degrades to in-memory when it is unreachable
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisAvailable := true
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unavailable, falling back to in-memory stores", zap.Error(err))
			redisAvailable = false
		}
		cancel()
	}

	var tokenBlacklist auth.TokenBlacklist
	var rebuildThrottle reconcile.RebuildThrottle
	if redisAvailable {
		tokenBlacklist = auth.NewRedisTokenBlacklistWithClient(redisClient)
		rebuildThrottle = cache.NewRedisRebuildThrottle(redisClient, cfg.Reconcile.RebuildThrottleWindow)
	} else {
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
		rebuildThrottle = cache.NewInMemoryRebuildThrottle(cfg.Reconcile.RebuildThrottleWindow)
	}

	// Initialize repositories
	managementRepo := persistence.NewGormManagementRepository(db.DB)
	unitRepo := persistence.NewGormUnitRepository(db.DB)
	membershipRepo := persistence.NewGormMembershipRepository(db.DB)
	inviteRepo := persistence.NewGormInviteRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Event serializer and transactional outbox
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	outboxPublisher := event.NewOutboxPublisher(eventSerializer)

	// The ledger store saves domain events to the outbox in the same
	// transaction as the aggregates they describe
	ledgerStore := persistence.NewGormLedgerStore(db.DB, outboxPublisher)

	// Event bus and the balance projector that maintains the per-unit cache
	eventBus := event.NewInMemoryEventBus(log)

	idemFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log), cache.WithInMemoryFallback(true))
	idemStore, err := idemFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	projector := balance.NewProjector(ledgerStore, log)
	eventBus.Subscribe(event.NewIdempotentHandler(projector, idemStore, log))
	log.Info("Balance projector subscribed", zap.Strings("event_types", projector.EventTypes()))

	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Outbox processor drains the outbox table into the event bus
	if cfg.Event.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		if cfg.Event.BatchSize > 0 {
			processorConfig.BatchSize = cfg.Event.BatchSize
		}
		if cfg.Event.PollInterval > 0 {
			processorConfig.PollInterval = cfg.Event.PollInterval
		}
		processorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
		if cfg.Event.CleanupRetention > 0 {
			processorConfig.CleanupRetention = cfg.Event.CleanupRetention
		}
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorConfig, log)
		if err := outboxProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Application services
	paymentService := appledger.NewPaymentService(ledgerStore)
	expenseService := appledger.NewExpenseService(ledgerStore)
	reversalService := appledger.NewReversalService(ledgerStore)
	settlementService := appledger.NewSettlementService(ledgerStore)
	reconcileService := reconcile.NewService(ledgerStore, rebuildThrottle, log)
	reportService := report.NewService(ledgerStore)
	duesGenerator := dues.NewGenerator(ledgerStore, managementRepo, unitRepo, log)
	managementService := apptenancy.NewManagementService(managementRepo)
	unitService := apptenancy.NewUnitService(unitRepo)
	membershipService := apptenancy.NewMembershipService(managementRepo, membershipRepo)
	inviteService := apptenancy.NewInviteService(inviteRepo, unitRepo, membershipRepo, eventBus, log)
	outboxService := appevent.NewOutboxService(outboxRepo, log)
	jwtService := auth.NewJWTService(cfg.JWT)

	// Scheduled maintenance: monthly dues fan-out, drift sampling, invite
	// sweep and settle-result cleanup
	if cfg.Scheduler.Enabled {
		executor := scheduler.NewMaintenanceExecutor(scheduler.MaintenanceExecutorConfig{
			DriftSamplingEnabled:  cfg.Reconcile.DriftSamplingEnabled,
			SettleResultRetention: cfg.Reconcile.SettleResultRetention,
		}, duesGenerator, reconcileService, inviteService, ledgerStore, log)

		sched := scheduler.NewScheduler(scheduler.Config{
			Enabled:           cfg.Scheduler.Enabled,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, executor, log)
		if err := sched.Start(context.Background()); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer func() {
			if err := sched.Stop(context.Background()); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()

		triggerConfig := scheduler.DefaultCronTriggerConfig()
		if cfg.Scheduler.DailyCronSchedule != "" {
			triggerConfig.DailySpec = cfg.Scheduler.DailyCronSchedule
		}
		if cfg.Scheduler.DuesCronSchedule != "" {
			triggerConfig.DuesSpec = cfg.Scheduler.DuesCronSchedule
		}
		cronTrigger, err := scheduler.NewCronTrigger(triggerConfig, sched, managementRepo, log)
		if err != nil {
			log.Fatal("Failed to create cron trigger", zap.Error(err))
		}
		if err := cronTrigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start cron trigger", zap.Error(err))
		}
		defer func() {
			if err := cronTrigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping cron trigger", zap.Error(err))
			}
		}()
		log.Info("Maintenance scheduler started",
			zap.String("daily_schedule", triggerConfig.DailySpec),
			zap.String("dues_schedule", triggerConfig.DuesSpec),
		)
	}

	// HTTP handlers
	managementHandler := handler.NewManagementHandler(managementService)
	unitHandler := handler.NewUnitHandler(unitService)
	ledgerHandler := handler.NewLedgerHandler(paymentService, expenseService, reversalService, settlementService)
	reportHandler := handler.NewReportHandler(reportService)
	reconcileHandler := handler.NewReconcileHandler(reconcileService)
	duesHandler := handler.NewDuesHandler(duesGenerator)
	membershipHandler := handler.NewMembershipHandler(membershipService)
	inviteHandler := handler.NewInviteHandler(inviteService)
	outboxHandler := handler.NewOutboxHandler(outboxService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

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
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.Tracing())
	}

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Token verification applies to every API route; the join flow runs
	// with optional auth because validation happens before sign-up
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			"/api/v1/join",
		},
		Logger: log,
	}))

	authz := membershipService
	tenantScope := middleware.TenantMiddlewareWithConfig(middleware.TenantMiddlewareConfig{
		Validator: managementValidator{service: managementService},
		Logger:    log,
	})
	member := middleware.RequireMembership(authz)
	perm := func(p tenancy.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(authz, p)
	}

	// Management routes: creation and listing are owner-scoped by the
	// caller's identity, everything else lives under the tenant scope
	mgmtRoutes := router.NewDomainGroup("managements", "/managements")
	mgmtRoutes.POST("", managementHandler.CreateManagement)
	mgmtRoutes.GET("", managementHandler.ListOwnedManagements)

	tenantRoutes := mgmtRoutes.Group("tenant", "/:managementId")
	tenantRoutes.Use(tenantScope)

	tenantRoutes.GET("", member, managementHandler.GetManagement)
	tenantRoutes.PUT("/default-dues", perm(tenancy.PermUnitManage), managementHandler.UpdateDefaultDues)
	tenantRoutes.DELETE("", perm(tenancy.PermMemberManage), managementHandler.DeactivateManagement)

	// Units
	tenantRoutes.POST("/units", perm(tenancy.PermUnitManage), unitHandler.CreateUnit)
	tenantRoutes.GET("/units", member, unitHandler.ListUnits)
	tenantRoutes.GET("/units/:unitId", member, unitHandler.GetUnit)
	tenantRoutes.PATCH("/units/:unitId", perm(tenancy.PermUnitManage), unitHandler.UpdateUnit)
	tenantRoutes.DELETE("/units/:unitId", perm(tenancy.PermUnitManage), unitHandler.DeactivateUnit)
	tenantRoutes.GET("/units/:unitId/balance", perm(tenancy.PermLedgerRead), reportHandler.GetUnitBalance)
	tenantRoutes.GET("/units/:unitId/entries", perm(tenancy.PermLedgerRead), reportHandler.ListUnitEntries)
	tenantRoutes.GET("/units/:unitId/invites", perm(tenancy.PermInviteManage), inviteHandler.ListUnitInvites)

	// Ledger mutations
	tenantRoutes.POST("/ledger/payments", perm(tenancy.PermLedgerWrite), ledgerHandler.RecordPayment)
	tenantRoutes.POST("/ledger/expenses", perm(tenancy.PermLedgerWrite), ledgerHandler.RecordExpense)
	tenantRoutes.POST("/ledger/adjustments", perm(tenancy.PermLedgerWrite), ledgerHandler.RecordAdjustment)
	tenantRoutes.POST("/ledger/payments/:entryId/allocations", perm(tenancy.PermLedgerAllocate), ledgerHandler.AllocatePayment)
	tenantRoutes.POST("/ledger/payments/:entryId/reverse", perm(tenancy.PermLedgerReverse), ledgerHandler.ReversePayment)
	tenantRoutes.POST("/ledger/entries/:entryId/void", perm(tenancy.PermLedgerReverse), ledgerHandler.VoidEntry)
	tenantRoutes.POST("/ledger/entries/:entryId/reverse", perm(tenancy.PermLedgerReverse), ledgerHandler.ReverseEntry)
	tenantRoutes.POST("/ledger/settlements", perm(tenancy.PermLedgerAllocate), ledgerHandler.AutoSettle)

	// Reports
	tenantRoutes.GET("/reports/financial", perm(tenancy.PermLedgerRead), reportHandler.GetFinancialReport)

	// Dues generation
	tenantRoutes.POST("/dues/runs", perm(tenancy.PermDuesRun), duesHandler.RunMonthlyDues)

	// Reconciliation
	tenantRoutes.POST("/reconcile/drift-samples", perm(tenancy.PermReconcileManage), reconcileHandler.SampleDrift)
	tenantRoutes.POST("/reconcile/units/:unitId/rebuild", perm(tenancy.PermReconcileManage), reconcileHandler.RebuildBalance)
	tenantRoutes.POST("/reconcile/units/:unitId/audit-replay", perm(tenancy.PermReconcileManage), reconcileHandler.AuditReplay)
	tenantRoutes.POST("/reconcile/dues/:entryId/rebuild", perm(tenancy.PermReconcileManage), reconcileHandler.RebuildDueAggregates)
	tenantRoutes.GET("/reconcile/alerts", perm(tenancy.PermReconcileManage), reconcileHandler.ListAlerts)
	tenantRoutes.POST("/reconcile/alerts/:alertId/resolve", perm(tenancy.PermReconcileManage), reconcileHandler.ResolveAlert)

	// Members
	tenantRoutes.GET("/members", member, membershipHandler.ListMembers)
	tenantRoutes.POST("/members", perm(tenancy.PermMemberManage), membershipHandler.AddMember)
	tenantRoutes.PUT("/members/:userId", perm(tenancy.PermMemberManage), membershipHandler.ChangeRole)
	tenantRoutes.DELETE("/members/:userId", perm(tenancy.PermMemberManage), membershipHandler.RemoveMember)

	// Invites
	tenantRoutes.POST("/invites", perm(tenancy.PermInviteManage), inviteHandler.CreateInvite)
	tenantRoutes.DELETE("/invites/:inviteId", perm(tenancy.PermInviteManage), inviteHandler.RevokeInvite)

	// Join flow: validation is anonymous, consumption needs a signed-in
	// caller, so the group carries optional token parsing
	joinRoutes := router.NewDomainGroup("join", "/join")
	joinRoutes.Use(middleware.OptionalJWTAuthMiddleware(jwtService))
	joinRoutes.POST("/invites/:inviteId/validate", inviteHandler.ValidateInvite)
	joinRoutes.POST("/invites/:inviteId/consume", inviteHandler.ConsumeInvite)

	// System and outbox admin routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	systemRoutes.GET("/outbox/dead", outboxHandler.GetDeadLetterEntries)
	systemRoutes.GET("/outbox/stats", outboxHandler.GetStats)
	systemRoutes.GET("/outbox/:id", outboxHandler.GetEntry)
	systemRoutes.POST("/outbox/:id/retry", outboxHandler.RetryDeadEntry)
	systemRoutes.POST("/outbox/dead/retry-all", outboxHandler.RetryAllDeadEntries)

	r.Register(mgmtRoutes).
		Register(joinRoutes).
		Register(systemRoutes)

	r.Setup()

	// Simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

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

// managementValidator adapts the management service to the tenant
// middleware's validator interface
type managementValidator struct {
	service *apptenancy.ManagementService
}

func (v managementValidator) ValidateTenant(ctx context.Context, tenantID uuid.UUID) (*middleware.TenantInfo, error) {
	management, err := v.service.GetManagement(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !management.Active {
		return nil, fmt.Errorf("management %s is deactivated", tenantID)
	}
	return &middleware.TenantInfo{ID: management.ID, Name: management.Name}, nil
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
