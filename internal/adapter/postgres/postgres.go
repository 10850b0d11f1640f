package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// The scheduler writes one snapshot at a time; a handful of connections is plenty.
	maxConns        = 4
	applicationName = "nano-discord-bot"

	// advisoryLockID keys the migration advisory lock ("mutebs" in ASCII hex).
	advisoryLockID     = 0x6d7574656273
	unlockTimeout      = 5 * time.Second
	schemaVersionTable = "public.schema_version"
)

// Connect opens a small pool to the mute database and verifies it answers.
// Queries are timed through MetricsTracer.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if poolCfg.MaxConns > maxConns {
		poolCfg.MaxConns = maxConns
	}
	if _, set := poolCfg.ConnConfig.RuntimeParams["application_name"]; !set {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	poolCfg.ConnConfig.Tracer = &MetricsTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", poolCfg.ConnConfig.Host,
		"sslmode", sslMode(databaseURL),
		"max_conns", poolCfg.MaxConns)
	return pool, nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		return strings.ToLower(mode)
	}
	return "prefer (default)"
}

// RunMigrationsWithLock brings the schema up to date while holding a
// session advisory lock, so instances starting together migrate once.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	return withAdvisoryLock(ctx, conn.Conn(), func() error {
		return migrateSchema(ctx, conn.Conn())
	})
}

func withAdvisoryLock(ctx context.Context, conn *pgx.Conn, fn func() error) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()
	return fn()
}

func migrateSchema(ctx context.Context, conn *pgx.Conn) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(files); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	// A fresh database has no version table until the first Migrate.
	from, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		slog.Debug("No schema version yet", "error", err)
		from = 0
	}
	target := int32(len(migrator.Migrations))
	if from == target {
		slog.Debug("Database schema up to date", "version", from)
		return nil
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("Database schema migrated", "from", from, "to", target)
	return nil
}
