package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/discord"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/httpserver"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/mutestore"
	"github.com/guilhermelawless/nano-discord-bot/internal/adapter/redis"
	"github.com/guilhermelawless/nano-discord-bot/internal/app"
	"github.com/guilhermelawless/nano-discord-bot/internal/copycat"
	"github.com/guilhermelawless/nano-discord-bot/internal/linkcheck"
	"github.com/guilhermelawless/nano-discord-bot/internal/mute"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/config"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/logging"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/version"
	"github.com/guilhermelawless/nano-discord-bot/internal/prices"
	"github.com/guilhermelawless/nano-discord-bot/internal/roles"
)

const (
	startupTimeout  = 30 * time.Second
	instanceLockTTL = 15 * time.Second
)

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// holdInstanceLock blocks until this process is the only one driving the
// shared Redis mute hash, then keeps the lease alive in the background.
// Losing the lease stops the bot. The returned function releases it.
func holdInstanceLock(ctx context.Context, store *redis.MuteStore, stop context.CancelFunc, clock clockwork.Clock) func() {
	lock := store.InstanceLock(instanceID(), instanceLockTTL, clock)
	if err := lock.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("Shutdown before instance lock was acquired")
			os.Exit(0)
		}
		fatal("Failed to acquire instance lock", err)
	}

	holdCtx, cancelHold := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := lock.Hold(holdCtx); err != nil {
			slog.Error("Instance lock lost, shutting down", "error", err)
			stop()
		}
	}()
	return func() {
		cancelHold()
		<-done
	}
}

func setupConfig() (*config.Config, *config.Rules) {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}
	return cfg, rules
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func priceTicker(rules *config.Rules, poster prices.Poster, clock clockwork.Clock) *prices.Ticker {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 1
	retryClient.Logger = slog.Default()
	sources := prices.NewSources(retryClient.StandardClient())

	summaryURL := rules.PriceSummaryURL
	if summaryURL == "" {
		summaryURL = prices.DefaultSummaryURL
	}
	exchanges := []prices.Exchange{
		sources.Binance(prices.DefaultBinanceURL),
		sources.KuCoin(prices.DefaultKuCoinURL),
	}
	return prices.NewTicker(sources, exchanges, poster, prices.TickerConfig{
		ChannelID:       rules.PriceChannelID,
		SummaryURL:      summaryURL,
		Interval:        rules.PriceInterval,
		ExchangeTimeout: rules.ExchangeAPITimeout,
		Clock:           clock,
	})
}

func main() {
	clock := clockwork.NewRealClock()

	cfg, rules := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "version", version.Get().String(), "store", cfg.MuteStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(ctx, startupTimeout)
	store, closeStore, err := mutestore.Open(openCtx, cfg)
	cancelOpen()
	if err != nil {
		fatal("Failed to open mute store", err)
	}
	defer closeStore()

	releaseLock := func() {}
	if shared, ok := store.(*redis.MuteStore); ok {
		releaseLock = holdInstanceLock(ctx, shared, stop, clock)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	snapshot := mute.LoadSnapshot(startCtx, store)

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		fatal("Failed to create Discord session", err)
	}
	client := discord.NewClient(session)
	selfID, err := client.FetchSelfID(startCtx)
	if err != nil {
		fatal("Failed to identify bot user", err)
	}

	executor := roles.NewExecutor(client, roles.Options{
		SelfID:      selfID,
		ExemptRoles: rules.ModRoles,
		Override:    cfg.Testing,
		Clock:       clock,
	})
	detector := copycat.NewDetector(rules.CopycatWords)

	var links app.LinkChecker
	if rules.LinkBlacklist {
		links = linkcheck.New(linkcheck.Options{RetryMax: 2})
	}

	moderator := app.NewModerator(rules, client, client, executor, detector, links)
	scheduler := mute.NewScheduler(store, moderator, clock, snapshot)
	moderator.SetScheduler(scheduler)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	discord.NewHandlers(ctx, moderator, client).Register(session)
	if err := client.Open(); err != nil {
		fatal("Failed to connect to Discord", err)
	}

	if rules.PriceChannelID != "" {
		ticker := priceTicker(rules, client, clock)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker.Run(ctx)
		}()
	}

	var srv *httpserver.Server
	if cfg.HTTPAddr != "" {
		srv = httpserver.NewServer(cfg.HTTPAddr, prometheus.DefaultRegisterer, []httpserver.HealthCheck{
			{Name: "discord", Check: client.Ping},
			{Name: "mute_store", Check: store.Ping},
		})
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("HTTP server error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}
	if err := client.Close(); err != nil {
		slog.Error("Failed to close Discord session", "error", err)
	}

	// The scheduler flushes the final mute state before Run returns.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		releaseLock()
		slog.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timed out, mute state may be stale")
	}
}
