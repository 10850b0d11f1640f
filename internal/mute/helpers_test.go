package mute

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	saves   []domain.MuteSnapshot
	loaded  domain.MuteSnapshot
	loadErr error
	saveErr error
}

func (m *memStore) Load(context.Context) (domain.MuteSnapshot, error) {
	return m.loaded, m.loadErr
}

func (m *memStore) Save(_ context.Context, snapshot domain.MuteSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, snapshot)
	return m.saveErr
}

func (m *memStore) last() (domain.MuteSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil, false
	}
	return m.saves[len(m.saves)-1], true
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

type recordingReleaser struct {
	mu       sync.Mutex
	released []domain.Identity
}

func (r *recordingReleaser) ReleaseMute(_ context.Context, id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, id)
}

func (r *recordingReleaser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

func (r *recordingReleaser) has(id domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.released, id)
}

type presenceState struct {
	present bool
	marker  bool
	err     error
}

type fakePresence map[domain.Identity]presenceState

func (f fakePresence) IsMemberPresent(_ context.Context, id domain.Identity) (bool, error) {
	st := f[id]
	return st.present, st.err
}

func (f fakePresence) HasMarker(_ context.Context, id domain.Identity) (bool, error) {
	return f[id].marker, nil
}

func member(id string) domain.Identity {
	return domain.Identity{CommunityID: "guild", MemberID: id}
}

// startScheduler runs a scheduler until the test ends.
func startScheduler(t *testing.T, initial domain.MuteSnapshot) (*Scheduler, *clockwork.FakeClock, *recordingReleaser, *memStore) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	store := &memStore{}
	releaser := &recordingReleaser{}
	s := NewScheduler(store, releaser, clock, initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, clock, releaser, store
}

// settle gives the scheduler goroutine a chance to process a timer firing
// that is not expected to happen.
func settle() {
	time.Sleep(20 * time.Millisecond)
}
