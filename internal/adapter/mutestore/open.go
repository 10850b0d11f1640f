// Package mutestore opens the mute store backend selected by configuration.
package mutestore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/jsonfile"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/postgres"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/redis"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/sqlite"
	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/config"
)

// Store is a mute store that can report its own health.
type Store interface {
	domain.MuteStore
	Ping(ctx context.Context) error
}

// Open connects to the backend named by cfg.MuteStore, running migrations
// where the backend has them. The returned close function releases it.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.MuteStore {
	case config.StoreFile:
		return jsonfile.NewMuteStore(cfg.MuteFile), func() {}, nil

	case config.StoreRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Warn("Failed to close Redis client", "error", err)
			}
		}
		return redis.NewMuteStore(client, redis.DefaultMuteKey), closeFn, nil

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return postgres.NewMuteStore(pool), pool.Close, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close SQLite database", "error", err)
			}
		}
		return sqlite.NewMuteStore(db), closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown mute store %q", cfg.MuteStore)
}
