package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/config"
	"github.com/ehr/hms-scheduler/internal/domain/nursing"
	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/domain/scheduling"
	"github.com/ehr/hms-scheduler/internal/domain/surgery"
	"github.com/ehr/hms-scheduler/internal/domain/visit"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/auth"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
	"github.com/ehr/hms-scheduler/internal/platform/middleware"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
	"github.com/ehr/hms-scheduler/internal/platform/webhook"
	"github.com/ehr/hms-scheduler/internal/platform/websocket"
)

// stores is one storage backend for every domain.
type stores struct {
	resources  registry.Repository
	shifts     scheduling.ShiftRepository
	bookings   scheduling.BookingRepository
	visits     visit.VisitRepository
	admissions visit.AdmissionRepository
	operations surgery.Repository
	vitals     nursing.Repository
	tx         db.Transactor
}

func pgStores(pool *pgxpool.Pool) stores {
	return stores{
		resources:  registry.NewRepoPG(pool),
		shifts:     scheduling.NewShiftRepoPG(pool),
		bookings:   scheduling.NewBookingRepoPG(pool),
		visits:     visit.NewVisitRepoPG(pool),
		admissions: visit.NewAdmissionRepoPG(pool),
		operations: surgery.NewRepoPG(pool),
		vitals:     nursing.NewRepoPG(pool),
		tx:         db.NewPgTransactor(pool),
	}
}

func memStores() stores {
	return stores{
		resources:  registry.NewRepoMem(),
		shifts:     scheduling.NewShiftRepoMem(),
		bookings:   scheduling.NewBookingRepoMem(),
		visits:     visit.NewVisitRepoMem(),
		admissions: visit.NewAdmissionRepoMem(),
		operations: surgery.NewRepoMem(),
		vitals:     nursing.NewRepoMem(),
		tx:         db.NewMemTransactor(),
	}
}

type services struct {
	registry *registry.Service
	alloc    *scheduling.Allocator
	visits   *visit.Service
	surgery  *surgery.Service
	nursing  *nursing.Service
}

func newServices(cfg *config.Config, st stores, locker lock.Locker, logger zerolog.Logger,
	metrics *telemetry.Collector, hub *websocket.Hub, pager *webhook.Dispatcher) *services {
	alloc := scheduling.NewAllocator(st.shifts, st.bookings, st.tx, locker, cfg.SlotWidth()).WithMetrics(metrics)
	reg := registry.NewService(st.resources, st.tx, locker, st.admissions, st.operations).WithMetrics(metrics)
	visits := visit.NewService(st.visits, st.admissions, st.resources, alloc, st.tx, locker).WithMetrics(metrics)
	ops := surgery.NewService(st.operations, st.resources, visits, st.tx, locker, cfg.DefaultOperationDuration()).
		WithMetrics(metrics)
	alerts := nursing.Sinks{nursing.NewLogSink(logger), nursing.NewBroadcastSink(hub)}
	if pager != nil {
		alerts = append(alerts, nursing.NewWebhookSink(pager))
	}
	vitals := nursing.NewService(st.vitals, visits, alerts).WithMetrics(metrics)
	return &services{registry: reg, alloc: alloc, visits: visits, surgery: ops, nursing: vitals}
}

// app is the assembled process: storage, lock backend and HTTP server.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	metrics *telemetry.Collector
	hub     *websocket.Hub
	pager   *webhook.Dispatcher
	stop    context.CancelFunc
	svc     *services
	echo    *echo.Echo
}

// newApp connects the configured backends and builds the HTTP server.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: telemetry.NewCollector(), hub: websocket.NewHub()}

	var st stores
	switch cfg.StorageBackend {
	case config.StorageMemory:
		st = memStores()
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		st = pgStores(pool)
		logger.Info().Msg("connected to database")
	}

	var locker lock.Locker = lock.NewKeyedMutex(cfg.LockWait)
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		locker = lock.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait)
		logger.Info().Msg("using redis lock backend")
	}

	if len(cfg.AlertWebhookURLs) > 0 {
		endpoints := make([]webhook.Endpoint, len(cfg.AlertWebhookURLs))
		for i, u := range cfg.AlertWebhookURLs {
			endpoints[i] = webhook.Endpoint{URL: u, Secret: cfg.AlertWebhookSecret, Events: []string{nursing.EventCriticalVital}}
		}
		pager, err := webhook.NewDispatcher(endpoints, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("alert webhooks: %w", err)
		}
		workerCtx, stop := context.WithCancel(context.Background())
		pager.Start(workerCtx)
		a.pager, a.stop = pager, stop
		logger.Info().Int("endpoints", len(endpoints)).Msg("critical vital webhooks enabled")
	}

	a.svc = newServices(cfg, st, locker, logger, a.metrics, a.hub, a.pager)
	a.echo = a.routes()
	return a, nil
}

func (a *app) healthChecks() []db.Check {
	var checks []db.Check
	if a.redis != nil {
		client := a.redis
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return checks
}

func (a *app) routes() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(a.logger)

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.Logger(a.logger))
	e.Use(telemetry.TracingMiddleware())
	e.Use(a.metrics.HTTPMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health and metrics stay outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.healthChecks()...))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		a.logger.Warn().Msg("dev auth enabled; requests default to admin")
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	registry.NewHandler(a.svc.registry).RegisterRoutes(apiV1, nil)
	scheduling.NewHandler(a.svc.alloc, nil).RegisterRoutes(apiV1, nil)
	visit.NewHandler(a.svc.visits).RegisterRoutes(apiV1, nil)
	surgery.NewHandler(a.svc.surgery).RegisterRoutes(apiV1, nil)
	nursing.NewHandler(a.svc.nursing).RegisterRoutes(apiV1, nil)

	// Live alerts for ward dashboards
	ws := websocket.NewHandler(a.hub, cfg.CORSOrigins, a.logger)
	apiV1.GET("/ws", ws.Connect, auth.RequireRole(auth.RoleNurse, auth.RoleDoctor, auth.RoleOT))
	return e
}

// alertDrainTimeout bounds how long Close waits for queued paging webhooks.
const alertDrainTimeout = 5 * time.Second

// drainAlerts delivers queued paging webhooks until ctx is done and stops
// the worker. Safe to call more than once.
func (a *app) drainAlerts(ctx context.Context) {
	if a.pager == nil {
		return
	}
	if err := a.pager.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("alert webhooks not fully delivered before shutdown")
	}
	a.stop()
}

// Close releases backend connections.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), alertDrainTimeout)
	defer cancel()
	a.drainAlerts(ctx)
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
