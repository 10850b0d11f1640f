// Package linkcheck decides whether chat messages link to the blacklisted
// subreddit, either directly or through a reddit short link.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
)

var (
	longLink  = regexp.MustCompile(`(?i)reddit.com[/\\]r[/\\]cryptocurrency`)
	shortLink = regexp.MustCompile(`(?i)(reddit.com|redd.it)[/\\]([a-z0-9]{6})`)
)

const (
	DefaultBaseURL = "https://www.reddit.com/"

	defaultCacheSize = 1024
	defaultCacheTTL  = time.Hour
	defaultRate      = 2
	defaultTimeout   = 5 * time.Second
)

type Options struct {
	// BaseURL is prefixed to a short-link code to resolve it.
	BaseURL   string
	CacheSize int
	CacheTTL  time.Duration
	// RequestsPerSecond bounds outbound short-link lookups.
	RequestsPerSecond float64
	Timeout           time.Duration
	RetryMax          int
}

// Checker resolves short links without following their redirects and caches
// the destination verdict per code.
type Checker struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	cache   *expirable.LRU[string, bool]
	group   singleflight.Group
}

func New(opts Options) *Checker {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = slog.Default()
	retryClient.HTTPClient.CheckRedirect = keepRedirect

	client := retryClient.StandardClient()
	client.Timeout = opts.Timeout
	client.CheckRedirect = keepRedirect

	return &Checker{
		client:  client,
		baseURL: opts.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		cache:   expirable.NewLRU[string, bool](opts.CacheSize, nil, opts.CacheTTL),
	}
}

func keepRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Blacklisted reports whether content links to the blacklisted destination.
// Short links are checked in order; a lookup error is returned only when no
// other link in content matched.
func (c *Checker) Blacklisted(ctx context.Context, content string) (bool, error) {
	if longLink.MatchString(content) {
		return true, nil
	}

	var errs []error
	for _, match := range shortLink.FindAllStringSubmatch(content, -1) {
		blocked, err := c.resolve(ctx, match[2])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if blocked {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

func (c *Checker) resolve(ctx context.Context, code string) (bool, error) {
	if blocked, ok := c.cache.Get(code); ok {
		metrics.ShortLinkLookupsTotal.WithLabelValues("hit").Inc()
		return blocked, nil
	}

	v, err, _ := c.group.Do(code, func() (any, error) {
		blocked, err := c.lookup(ctx, code)
		if err != nil {
			metrics.ShortLinkLookupsTotal.WithLabelValues("error").Inc()
			return false, err
		}
		metrics.ShortLinkLookupsTotal.WithLabelValues("miss").Inc()
		c.cache.Add(code, blocked)
		return blocked, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Checker) lookup(ctx context.Context, code string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("short link %s: %w", code, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+code, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("short link %s: %w", code, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return longLink.MatchString(resp.Header.Get("Location")), nil
}
