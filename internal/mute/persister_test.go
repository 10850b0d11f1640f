package mute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore blocks every Save until release is closed.
type gatedStore struct {
	memStore
	started chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) error {
	err := g.memStore.Save(ctx, snapshot)
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return err
}

// cancelAwareStore holds its first Save until release is closed, failing it
// early if the write context ends first. Only successful saves are kept.
type cancelAwareStore struct {
	memStore
	started chan struct{}
	release chan struct{}
	calls   int
}

func (c *cancelAwareStore) Save(ctx context.Context, snapshot domain.MuteSnapshot) error {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()

	if first {
		close(c.started)
		select {
		case <-c.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.memStore.Save(ctx, snapshot)
}

func snapshotOf(n int) domain.MuteSnapshot {
	snap := domain.MuteSnapshot{}
	for i := range n {
		snap[fmt.Sprintf("guild %d", i)] = domain.PersistedMute{EndsAt: int64(i)}
	}
	return snap
}

func TestPersister_CoalescesRequestsDuringWrite(t *testing.T) {
	store := newGatedStore()
	p := NewPersister(store)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	p.Request(snapshotOf(1))
	<-store.started

	for n := 2; n <= 10; n++ {
		p.Request(snapshotOf(n))
	}
	close(store.release)

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	settle()

	assert.Equal(t, 2, store.count(), "requests during an in-flight write collapse into one")
	last, _ := store.last()
	assert.Equal(t, snapshotOf(10), last)

	cancel()
	p.Stop()
	wg.Wait()
}

func TestPersister_FlushesPendingOnShutdown(t *testing.T) {
	store := &memStore{}
	p := NewPersister(store)

	p.Request(snapshotOf(3))
	p.Stop()
	p.Run(context.Background())

	require.Equal(t, 1, store.count())
	last, _ := store.last()
	assert.Equal(t, snapshotOf(3), last)
}

func TestPersister_ShutdownKeepsLatestSnapshot(t *testing.T) {
	for range 20 {
		store := &cancelAwareStore{started: make(chan struct{}), release: make(chan struct{})}
		p := NewPersister(store)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			p.Run(ctx)
		}()

		p.Request(snapshotOf(1))
		<-store.started
		p.Request(snapshotOf(2))

		cancel()
		p.Stop()
		time.Sleep(5 * time.Millisecond)
		close(store.release)
		<-done

		require.Equal(t, 2, store.count(), "the in-flight write and the pending one both complete")
		last, _ := store.last()
		assert.Equal(t, snapshotOf(2), last)
	}
}

func TestPersister_ContinuesAfterSaveError(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	p := NewPersister(store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background())
	}()

	p.Request(snapshotOf(1))
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	p.Request(snapshotOf(2))
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	<-done
}

func TestLoadSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
		want  domain.MuteSnapshot
	}{
		{"stored records", &memStore{loaded: snapshotOf(2)}, snapshotOf(2)},
		{"read failure yields empty", &memStore{loadErr: errors.New("corrupt")}, domain.MuteSnapshot{}},
		{"nil yields empty", &memStore{}, domain.MuteSnapshot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LoadSnapshot(context.Background(), tt.store)
			assert.Equal(t, tt.want, got)
		})
	}
}
