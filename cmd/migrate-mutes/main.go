// Command migrate-mutes copies the mute map from a muted.json file into
// another mute store backend. Malformed keys and expired mutes are dropped;
// when both sides hold a mute for the same member the later end wins.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/jsonfile"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/mutestore"
	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/config"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/logging"
)

type summary struct {
	scanned  int
	migrated int
	expired  int
	invalid  int
	total    int
}

func main() {
	var (
		from     = flag.String("from", "muted.json", "Source mute file")
		store    = flag.String("store", os.Getenv("MUTE_STORE"), "Target store: redis, postgres or sqlite (or set MUTE_STORE env)")
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		dbURL    = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		sqlite   = flag.String("sqlite", os.Getenv("SQLITE_PATH"), "SQLite path (or set SQLITE_PATH env)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to the target)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *store == "" || *store == config.StoreFile {
		log.Fatal("Target store required (--store redis|postgres|sqlite)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx := context.Background()
	target, closeTarget, err := mutestore.Open(ctx, &config.Config{
		MuteStore:   *store,
		RedisURL:    *redisURL,
		DatabaseURL: *dbURL,
		SQLitePath:  *sqlite,
	})
	if err != nil {
		log.Fatalf("Failed to open target store: %v", err)
	}
	defer closeTarget()
	slog.Info("Connected to target store", "store", *store, "url", sanitizeURL(*redisURL+*dbURL))

	start := time.Now()
	sum, err := migrate(ctx, jsonfile.NewMuteStore(*from), target, time.Now(), *dryRun)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	slog.Info("Migration summary",
		"dry_run", *dryRun,
		"scanned", sum.scanned,
		"migrated", sum.migrated,
		"expired", sum.expired,
		"invalid", sum.invalid,
		"target_total", sum.total,
		"duration_ms", time.Since(start).Milliseconds())
}

func migrate(ctx context.Context, from, to domain.MuteStore, now time.Time, dryRun bool) (summary, error) {
	var sum summary

	source, err := from.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to read source: %w", err)
	}
	merged, err := to.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to read target: %w", err)
	}
	if merged == nil {
		merged = domain.MuteSnapshot{}
	}

	for key, record := range source {
		sum.scanned++
		if _, err := domain.ParseIdentityKey(key); err != nil {
			slog.Warn("Skipping malformed key", "key", key)
			sum.invalid++
			continue
		}
		if !record.Time().After(now) {
			slog.Debug("Skipping expired mute", "key", key, "ends_at", record.Time().Format(time.RFC3339))
			sum.expired++
			continue
		}
		if existing, ok := merged[key]; ok && existing.EndsAt >= record.EndsAt {
			slog.Debug("Target already holds a later mute", "key", key)
			continue
		}
		merged[key] = record
		sum.migrated++
	}
	sum.total = len(merged)

	if dryRun {
		return sum, nil
	}
	if err := to.Save(ctx, merged); err != nil {
		return sum, fmt.Errorf("failed to write target: %w", err)
	}

	written, err := to.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("verification read failed: %w", err)
	}
	if len(written) != sum.total {
		slog.Warn("Target size mismatch", "expected", sum.total, "actual", len(written))
	}
	return sum, nil
}

// sanitizeURL hides the password of a connection URL for logging.
func sanitizeURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return url
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
