package mute

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
)

const (
	defaultWriteTimeout = 10 * time.Second
	flushTimeout        = 5 * time.Second
)

// Persister serializes writes of the mute map to a durable store.
//
// Requests never block. While a write is in flight at most one more write is
// pending, and it saves whatever snapshot was requested last.
type Persister struct {
	store        domain.MuteStore
	writeTimeout time.Duration

	mu     sync.Mutex
	latest domain.MuteSnapshot
	wake   chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

func NewPersister(store domain.MuteStore) *Persister {
	return &Persister{
		store:        store,
		writeTimeout: defaultWriteTimeout,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

// Request records snapshot as the state to persist next and wakes the writer.
func (p *Persister) Request(snapshot domain.MuteSnapshot) {
	p.mu.Lock()
	p.latest = snapshot
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes requested snapshots until Stop is called, then flushes a
// pending request if there is one. Writes ignore ctx cancellation and are
// bounded by their own timeout.
func (p *Persister) Run(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for {
		select {
		case <-p.wake:
			p.write(base, p.writeTimeout)
		case <-p.stop:
			select {
			case <-p.wake:
				p.write(base, flushTimeout)
			default:
			}
			return
		}
	}
}

// Stop ends Run after the last requested snapshot is written. Requests made
// after Stop are not persisted.
func (p *Persister) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Persister) write(ctx context.Context, timeout time.Duration) {
	p.mu.Lock()
	snapshot := p.latest
	p.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.store.Save(writeCtx, snapshot)
	metrics.MuteStoreWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MuteStoreWritesTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Failed to persist mutes", "count", len(snapshot), "error", err)
		return
	}
	metrics.MuteStoreWritesTotal.WithLabelValues("success").Inc()
	slog.DebugContext(ctx, "Persisted mutes", "count", len(snapshot))
}

// LoadSnapshot reads the durable store. A failed read is logged and yields
// an empty map: losing mute state is preferable to not starting.
func LoadSnapshot(ctx context.Context, store domain.MuteStore) domain.MuteSnapshot {
	snapshot, err := store.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read muted data, starting empty", "error", err)
		return domain.MuteSnapshot{}
	}
	if snapshot == nil {
		return domain.MuteSnapshot{}
	}
	return maps.Clone(snapshot)
}
