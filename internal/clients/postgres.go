package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/bavena95/portal-creditos/internal/config"
	"github.com/bavena95/portal-creditos/internal/orchestrator"
	"github.com/bavena95/portal-creditos/internal/store"
)

const probeName = "postgres"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresClient owns the application's pgx pool and wraps health probes and
// migrations with a circuit breaker.
type PostgresClient struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	pool    dbPinger
	migrate func(ctx context.Context, cfg config.PostgresConfig) error
}

// NewPostgresClient opens the pgx pool. pgxpool connects lazily, so an
// unreachable database does not fail construction; it surfaces on the first
// query or probe.
func NewPostgresClient(ctx context.Context, cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) (*PostgresClient, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		pool:    pool,
		migrate: runMigrations,
	}, pool, nil
}

// Migrate applies all pending schema migrations. ErrNoChange is success.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.migrate(ctx, c.cfg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Probe pings the Postgres server and verifies the schema_migrations table
// written by golang-migrate exists and is not dirty.
func (c *PostgresClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		if err := c.pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var dirty bool
		row := c.pool.QueryRow(ctx, "SELECT dirty FROM schema_migrations LIMIT 1")
		if err := row.Scan(&dirty); err != nil {
			return nil, fmt.Errorf("schema_migrations not readable: %w", err)
		}
		if dirty {
			return nil, errors.New("schema_migrations is dirty")
		}
		return nil, nil
	})

	return toProbeResult(probeName, start, err)
}

// runMigrations applies the embedded migrations with golang-migrate over its
// pgx/v5 driver.
func runMigrations(_ context.Context, cfg config.PostgresConfig) error {
	src, err := iofs.New(store.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL("pgx5"))
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close() //nolint:errcheck

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
