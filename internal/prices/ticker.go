package prices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/correlation"
)

const (
	colorFalling = 0xed2939
	colorRising  = 0x39ff14
)

// Embed is a rich chat message.
type Embed struct {
	Description string
	Color       int
}

type Poster interface {
	SendEmbed(ctx context.Context, channelID string, embed Embed) error
}

type TickerConfig struct {
	ChannelID  string
	SummaryURL string
	Interval   time.Duration
	// ExchangeTimeout bounds each exchange fetch independently.
	ExchangeTimeout time.Duration
	Clock           clockwork.Clock
}

// Ticker posts the market summary to a channel every interval.
type Ticker struct {
	sources   *Sources
	exchanges []Exchange
	poster    Poster
	cfg       TickerConfig
}

func NewTicker(sources *Sources, exchanges []Exchange, poster Poster, cfg TickerConfig) *Ticker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Ticker{sources: sources, exchanges: exchanges, poster: poster, cfg: cfg}
}

// Run posts on every tick. It blocks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := t.cfg.Clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tickCtx := correlation.ForEvent(ctx, "price_tick")
			if err := t.Tick(tickCtx); err != nil {
				slog.WarnContext(tickCtx, "Price update skipped", "error", err)
			}
		}
	}
}

// Tick fetches all sources and posts one embed. Exchange failures render as
// "API error"; a failed summary skips the post.
func (t *Ticker) Tick(ctx context.Context) error {
	quotes := make([]string, len(t.exchanges))
	var summary Summary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = t.sources.Summary(gctx, t.cfg.SummaryURL)
		metrics.PriceFetchesTotal.WithLabelValues("summary", status(err)).Inc()
		return err
	})
	for i, ex := range t.exchanges {
		g.Go(func() error {
			quotes[i] = t.fetchExchange(gctx, ex)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return t.poster.SendEmbed(ctx, t.cfg.ChannelID, render(summary, t.exchanges, quotes))
}

func (t *Ticker) fetchExchange(ctx context.Context, ex Exchange) string {
	if t.cfg.ExchangeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ExchangeTimeout)
		defer cancel()
	}

	price, err := ex.Fetch(ctx)
	metrics.PriceFetchesTotal.WithLabelValues(ex.Name, status(err)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "Exchange API error", "exchange", ex.Name, "error", err)
		return ""
	}
	return price
}

func render(s Summary, exchanges []Exchange, quotes []string) Embed {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s BTC - $%s USD**\n", s.BTC, s.USD)
	fmt.Fprintf(&b, "Market cap: $%s USD (#%s)\n", s.MarketCap, s.Rank)
	fmt.Fprintf(&b, "24h volume: $%s USD\n1 BTC = $%s USD", s.Volume, s.BTCUSD)

	width := 0
	for _, ex := range exchanges {
		width = max(width, len(ex.Name))
	}
	width++

	b.WriteString("\n```\n")
	for i, ex := range exchanges {
		b.WriteString(ex.Name + ":" + strings.Repeat(" ", width-len(ex.Name)))
		if quotes[i] == "" {
			b.WriteString("API error\n")
		} else {
			b.WriteString(quotes[i] + " BTC\n")
		}
	}
	b.WriteString("```")

	embed := Embed{Description: b.String()}
	switch {
	case s.PercentChange1h < 0:
		embed.Color = colorFalling
	case s.PercentChange1h > 0:
		embed.Color = colorRising
	}
	return embed
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
