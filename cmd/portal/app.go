package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bavena95/portal-creditos/internal/api"
	"github.com/bavena95/portal-creditos/internal/clients"
	"github.com/bavena95/portal-creditos/internal/config"
	"github.com/bavena95/portal-creditos/internal/events"
	"github.com/bavena95/portal-creditos/internal/intake"
	"github.com/bavena95/portal-creditos/internal/metrics"
	"github.com/bavena95/portal-creditos/internal/orchestrator"
	"github.com/bavena95/portal-creditos/internal/ratelimit"
	"github.com/bavena95/portal-creditos/internal/review"
	"github.com/bavena95/portal-creditos/internal/session"
	"github.com/bavena95/portal-creditos/internal/store"
	"github.com/bavena95/portal-creditos/internal/telemetry"
)

// AppContext holds the dependencies shared by the server and bootstrap
// commands.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	pool         *pgxpool.Pool
	nats         *clients.NATSClient
	redis        *clients.RedisClient
	objects      *clients.ObjectStore
	store        *store.Store
	orchestrator *orchestrator.Orchestrator

	// publisher and throttle stay nil interfaces when NATS or Redis are
	// disabled.
	publisher events.Publisher
	throttle  review.Throttle
}

// buildAppContext constructs the infrastructure from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Opens the Postgres pool
//  3. Creates the optional NATS, Redis and object storage clients, one
//     circuit breaker each
//  4. Creates the orchestrator over whatever is enabled
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// A missing collector must never block startup.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx,
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "error", err)
		} else {
			app.otelProvider = tp
		}
	}

	pg, pool, err := clients.NewPostgresClient(ctx, cfg.Bootstrap.Postgres, clients.NewCircuitBreaker(orchestrator.NamePostgres))
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.pool = pool
	app.store = store.New(pool)

	deps := orchestrator.Dependencies{Postgres: pg}

	if cfg.Bootstrap.NATS.URL != "" {
		app.nats = clients.NewNATSClient(cfg.Bootstrap.NATS, clients.NewCircuitBreaker(orchestrator.NameNATS))
		deps.NATS = app.nats
		app.publisher = app.nats
	} else {
		slog.Info("NATS disabled, application events are not published")
	}

	if cfg.Bootstrap.Redis.Host != "" {
		app.redis = clients.NewRedisClient(cfg.Bootstrap.Redis, clients.NewCircuitBreaker(orchestrator.NameRedis))
		deps.Redis = app.redis
		app.throttle = app.redis
	} else {
		slog.Info("Redis disabled, admin logins are not throttled")
	}

	app.objects = clients.NewObjectStore(cfg.Bootstrap.Storage, clients.NewCircuitBreaker(orchestrator.NameStorage))
	if app.objects.Configured() {
		deps.Storage = app.objects
	} else {
		slog.Warn("storage bucket not configured, submissions and downloads will fail")
	}

	app.orchestrator = orchestrator.New(deps)
	return app, nil
}

// buildRouter wires the services and the HTTP router on top of the
// infrastructure.
func (a *AppContext) buildRouter() (*api.Router, error) {
	codec, err := session.NewCodec(a.cfg.Session.Secret, a.cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}
	sessions := session.NewManager(codec, a.cfg.Session.CookieName, a.cfg.Server.IsProduction())

	offers := intake.NewService(a.store, a.objects, a.publisher, intake.Config{
		KeyPrefix:         a.cfg.Bootstrap.Storage.KeyPrefix,
		MaxFileSize:       a.cfg.Uploads.MaxFileSize,
		AllowedExtensions: a.cfg.Uploads.AllowedExtensions,
	})
	reviews := review.NewService(a.store, a.throttle, a.objects, a.publisher)

	metrics.Register()
	gin.SetMode(gin.ReleaseMode)

	return api.NewRouter(api.Deps{
		Orchestrator:  a.orchestrator,
		Offers:        offers,
		Review:        reviews,
		Sessions:      sessions,
		SearchLimiter: ratelimit.New(a.cfg.Server.SearchRPS, a.cfg.Server.SearchBurst, 0),
		Logger:        slog.Default(),
		ServiceName:   a.cfg.Telemetry.ServiceName,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		// Five documents at the per-file cap plus room for the text fields.
		MaxUploadBytes:   int64(len(intake.RequiredDocuments))*a.cfg.Uploads.MaxFileSize + 1<<20,
		RequireBootstrap: a.cfg.Server.BootstrapOnStart,
	})
}

// Close releases every client. ctx bounds the telemetry flush.
func (a *AppContext) Close(ctx context.Context) {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.otelProvider.Shutdown(ctx); err != nil {
		slog.Warn("OTEL shutdown error", "error", err)
	}
}

// openStore connects only to Postgres, for the admin and offers commands.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.Bootstrap.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return store.New(pool), pool.Close, nil
}
