package mute

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// Releaser lifts an expired mute. It runs on its own goroutine and may block
// for as long as the removal takes.
type Releaser interface {
	ReleaseMute(ctx context.Context, id domain.Identity)
}

// Presence answers the recovery questions about a stored mute.
type Presence interface {
	IsMemberPresent(ctx context.Context, id domain.Identity) (bool, error)
	HasMarker(ctx context.Context, id domain.Identity) (bool, error)
}

type RejoinOutcome int

const (
	RejoinNotMuted RejoinOutcome = iota
	// RejoinStillMuted means the mute has time left; the timer is armed again.
	RejoinStillMuted
	// RejoinExpired means the mute ran out while the member was away; the
	// record is gone and the marker must not be re-applied.
	RejoinExpired
)

func (o RejoinOutcome) String() string {
	switch o {
	case RejoinStillMuted:
		return "still_muted"
	case RejoinExpired:
		return "expired"
	default:
		return "not_muted"
	}
}

// RecoverReport counts what startup recovery did with the stored records.
type RecoverReport struct {
	Rearmed  int
	Released int
	Pending  int
	Skipped  int
}

type actionKind int

const actionUnmute actionKind = iota

// task is an armed timer entry. It holds plain data only.
type task struct {
	identity domain.Identity
	fireAt   time.Time
	kind     actionKind
}

// --- Command types ---

type schedulerCmd interface{ schedulerCmd() }

type cmdSchedule struct {
	identity domain.Identity
	endsAt   time.Time
	replyCh  chan struct{}
}

func (cmdSchedule) schedulerCmd() {}

type cmdCancel struct {
	identity domain.Identity
	replyCh  chan bool
}

func (cmdCancel) schedulerCmd() {}

type recoveryEntry struct {
	identity  domain.Identity
	endsAt    time.Time
	present   bool
	hasMarker bool
}

type cmdRecover struct {
	entries []recoveryEntry
	replyCh chan RecoverReport
}

func (cmdRecover) schedulerCmd() {}

type cmdRejoin struct {
	identity domain.Identity
	replyCh  chan RejoinOutcome
}

func (cmdRejoin) schedulerCmd() {}

type cmdSnapshot struct {
	replyCh chan domain.MuteSnapshot
}

func (cmdSnapshot) schedulerCmd() {}

type cmdActive struct {
	replyCh chan []domain.MuteRecord
}

func (cmdActive) schedulerCmd() {}

// --- Scheduler ---

// Scheduler owns the mute map and the timers that expire it. Every field
// below cmdCh is touched only by the run goroutine.
type Scheduler struct {
	cmdCh     chan schedulerCmd
	stopped   chan struct{}
	clock     clockwork.Clock
	releaser  Releaser
	persister *Persister
	releases  sync.WaitGroup

	records map[string]domain.MuteRecord
	tasks   map[string]task
	timer   clockwork.Timer
}

// NewScheduler seeds the map with initial, which is usually the result of
// LoadSnapshot. Seeded records are not armed until Recover runs.
func NewScheduler(store domain.MuteStore, releaser Releaser, clock clockwork.Clock, initial domain.MuteSnapshot) *Scheduler {
	s := &Scheduler{
		cmdCh:     make(chan schedulerCmd, 64),
		stopped:   make(chan struct{}),
		clock:     clock,
		releaser:  releaser,
		persister: NewPersister(store),
		records:   make(map[string]domain.MuteRecord, len(initial)),
		tasks:     make(map[string]task),
	}
	for key, p := range initial {
		id, err := domain.ParseIdentityKey(key)
		if err != nil {
			slog.Warn("Dropping malformed mute record", "key", key, "error", err)
			continue
		}
		s.records[key] = domain.MuteRecord{Identity: id, EndsAt: p.Time()}
	}
	metrics.MutesActive.Set(float64(len(s.records)))
	return s
}

// Run processes commands and timer firings until ctx is cancelled, then
// flushes pending persistence and waits for in-flight releases.
func (s *Scheduler) Run(ctx context.Context) {
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		s.persister.Run(ctx)
	}()

	s.loop(ctx)

	close(s.stopped)
	if s.timer != nil {
		s.timer.Stop()
	}
	// No command is handled past this point, so the last Request is final.
	s.persister.Stop()
	<-persistDone
	s.releases.Wait()
	slog.Info("Mute scheduler stopped", "records", len(s.records))
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		var fire <-chan time.Time
		if s.timer != nil {
			fire = s.timer.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmdCh:
			s.handle(ctx, cmd)
		case <-fire:
			s.timer = nil
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, cmd schedulerCmd) {
	switch c := cmd.(type) {
	case cmdSchedule:
		key := c.identity.Key()
		s.records[key] = domain.MuteRecord{Identity: c.identity, EndsAt: c.endsAt}
		s.tasks[key] = task{identity: c.identity, fireAt: c.endsAt, kind: actionUnmute}
		s.persist()
		s.rearm()
		c.replyCh <- struct{}{}

	case cmdCancel:
		key := c.identity.Key()
		_, existed := s.records[key]
		delete(s.records, key)
		delete(s.tasks, key)
		if existed {
			s.persist()
			s.rearm()
			metrics.MutesReleasedTotal.WithLabelValues("cancelled").Inc()
		}
		c.replyCh <- existed

	case cmdRecover:
		c.replyCh <- s.recover(ctx, c.entries)

	case cmdRejoin:
		c.replyCh <- s.rejoin(c.identity)

	case cmdSnapshot:
		c.replyCh <- s.snapshot()

	case cmdActive:
		active := make([]domain.MuteRecord, 0, len(s.records))
		for _, r := range s.records {
			active = append(active, r)
		}
		slices.SortFunc(active, func(a, b domain.MuteRecord) int {
			if n := a.EndsAt.Compare(b.EndsAt); n != 0 {
				return n
			}
			return strings.Compare(a.Identity.Key(), b.Identity.Key())
		})
		c.replyCh <- active
	}
}

func (s *Scheduler) recover(ctx context.Context, entries []recoveryEntry) RecoverReport {
	var report RecoverReport
	now := s.clock.Now()
	changed := false

	for _, e := range entries {
		key := e.identity.Key()
		stored, ok := s.records[key]
		if !ok || !stored.EndsAt.Equal(e.endsAt) {
			// Replaced by a newer mute while recovery was checking presence.
			report.Skipped++
			continue
		}

		if !e.endsAt.After(now) {
			delete(s.records, key)
			delete(s.tasks, key)
			changed = true
			report.Released++
			metrics.MutesReleasedTotal.WithLabelValues("recovered_expired").Inc()
			s.release(ctx, e.identity)
			continue
		}

		if !e.present {
			report.Pending++
			continue
		}
		if !e.hasMarker {
			slog.WarnContext(ctx, "Muted member is missing the sinbin role, re-arming only", "identity", key)
		}
		s.tasks[key] = task{identity: e.identity, fireAt: e.endsAt, kind: actionUnmute}
		report.Rearmed++
		metrics.MutesScheduledTotal.WithLabelValues("recovery").Inc()
	}

	if changed {
		s.persist()
	}
	s.rearm()
	return report
}

func (s *Scheduler) rejoin(id domain.Identity) RejoinOutcome {
	key := id.Key()
	rec, ok := s.records[key]
	if !ok {
		return RejoinNotMuted
	}

	if !rec.EndsAt.After(s.clock.Now()) {
		delete(s.records, key)
		delete(s.tasks, key)
		s.persist()
		s.rearm()
		metrics.MutesReleasedTotal.WithLabelValues("rejoin_expired").Inc()
		return RejoinExpired
	}

	s.tasks[key] = task{identity: id, fireAt: rec.EndsAt, kind: actionUnmute}
	s.rearm()
	metrics.MutesScheduledTotal.WithLabelValues("rejoin").Inc()
	return RejoinStillMuted
}

// fireDue runs every task whose time has come. Records are removed and
// persisted before the release starts.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clock.Now()
	var due []task
	for key, t := range s.tasks {
		if t.fireAt.After(now) {
			continue
		}
		delete(s.tasks, key)
		delete(s.records, key)
		due = append(due, t)
	}

	if len(due) > 0 {
		s.persist()
	}
	for _, t := range due {
		switch t.kind {
		case actionUnmute:
			metrics.MutesReleasedTotal.WithLabelValues("expired").Inc()
			s.release(ctx, t.identity)
		}
	}
	s.rearm()
}

func (s *Scheduler) release(ctx context.Context, id domain.Identity) {
	s.releases.Add(1)
	go func() {
		defer s.releases.Done()
		s.releaser.ReleaseMute(ctx, id)
	}()
}

// rearm points the single timer at the earliest armed task.
func (s *Scheduler) rearm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	var next time.Time
	found := false
	for _, t := range s.tasks {
		if !found || t.fireAt.Before(next) {
			next = t.fireAt
			found = true
		}
	}
	if !found {
		return
	}

	wait := next.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	s.timer = s.clock.NewTimer(wait)
}

func (s *Scheduler) persist() {
	snapshot := s.snapshot()
	s.persister.Request(snapshot)
	metrics.MutesActive.Set(float64(len(snapshot)))
}

func (s *Scheduler) snapshot() domain.MuteSnapshot {
	snapshot := make(domain.MuteSnapshot, len(s.records))
	for key, r := range s.records {
		snapshot[key] = domain.PersistedMute{EndsAt: r.EndsAt.UnixMilli()}
	}
	return snapshot
}

// --- Public API ---

// Schedule records a mute of length d for id and arms its timer, replacing
// any existing mute for the same identity. It returns the expiry time.
func (s *Scheduler) Schedule(ctx context.Context, id domain.Identity, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrInvalidDuration, d)
	}
	// Millisecond precision keeps the in-memory expiry equal to the stored one.
	endsAt := s.clock.Now().Add(d).Truncate(time.Millisecond)

	replyCh := make(chan struct{}, 1)
	if err := s.send(ctx, cmdSchedule{identity: id, endsAt: endsAt, replyCh: replyCh}); err != nil {
		return time.Time{}, err
	}
	if _, err := await(ctx, s.stopped, replyCh); err != nil {
		return time.Time{}, err
	}
	metrics.MutesScheduledTotal.WithLabelValues("command").Inc()
	return endsAt, nil
}

// Cancel disarms and forgets the mute for id. It reports whether one existed.
// Once Cancel returns the timer can no longer fire for that mute.
func (s *Scheduler) Cancel(ctx context.Context, id domain.Identity) (bool, error) {
	replyCh := make(chan bool, 1)
	if err := s.send(ctx, cmdCancel{identity: id, replyCh: replyCh}); err != nil {
		return false, err
	}
	return await(ctx, s.stopped, replyCh)
}

// Recover reconciles the loaded records with the community. Expired records
// are released whether or not the member is present. Live records of present
// members are armed; those of absent members stay pending until Rejoin.
//
// Presence lookups happen before the scheduler goroutine sees the results, so
// a failed lookup counts the member as absent.
func (s *Scheduler) Recover(ctx context.Context, presence Presence) (RecoverReport, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return RecoverReport{}, err
	}

	entries := make([]recoveryEntry, 0, len(snapshot))
	for key, p := range snapshot {
		id, err := domain.ParseIdentityKey(key)
		if err != nil {
			continue
		}
		entry := recoveryEntry{identity: id, endsAt: p.Time()}

		if p.Time().After(s.clock.Now()) {
			present, err := presence.IsMemberPresent(ctx, id)
			if err != nil {
				slog.WarnContext(ctx, "Presence check failed during recovery", "identity", key, "error", err)
			}
			entry.present = present && err == nil

			if entry.present {
				hasMarker, err := presence.HasMarker(ctx, id)
				if err != nil {
					slog.WarnContext(ctx, "Marker check failed during recovery", "identity", key, "error", err)
				}
				entry.hasMarker = hasMarker
			}
		}
		entries = append(entries, entry)
	}

	replyCh := make(chan RecoverReport, 1)
	if err := s.send(ctx, cmdRecover{entries: entries, replyCh: replyCh}); err != nil {
		return RecoverReport{}, err
	}
	report, err := await(ctx, s.stopped, replyCh)
	if err != nil {
		return RecoverReport{}, err
	}
	slog.InfoContext(ctx, "Mute recovery finished",
		"rearmed", report.Rearmed,
		"released", report.Released,
		"pending", report.Pending,
		"skipped", report.Skipped)
	return report, nil
}

// Rejoin handles a member joining the community. The caller re-applies the
// marker only for RejoinStillMuted.
func (s *Scheduler) Rejoin(ctx context.Context, id domain.Identity) (RejoinOutcome, error) {
	replyCh := make(chan RejoinOutcome, 1)
	if err := s.send(ctx, cmdRejoin{identity: id, replyCh: replyCh}); err != nil {
		return RejoinNotMuted, err
	}
	return await(ctx, s.stopped, replyCh)
}

// Snapshot returns a copy of the mute map in its persisted form.
func (s *Scheduler) Snapshot(ctx context.Context) (domain.MuteSnapshot, error) {
	replyCh := make(chan domain.MuteSnapshot, 1)
	if err := s.send(ctx, cmdSnapshot{replyCh: replyCh}); err != nil {
		return nil, err
	}
	return await(ctx, s.stopped, replyCh)
}

// Active lists the current mutes, soonest expiry first.
func (s *Scheduler) Active(ctx context.Context) ([]domain.MuteRecord, error) {
	replyCh := make(chan []domain.MuteRecord, 1)
	if err := s.send(ctx, cmdActive{replyCh: replyCh}); err != nil {
		return nil, err
	}
	return await(ctx, s.stopped, replyCh)
}

func (s *Scheduler) send(ctx context.Context, cmd schedulerCmd) error {
	select {
	case s.cmdCh <- cmd:
		return nil
	case <-s.stopped:
		return domain.ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, stopped <-chan struct{}, replyCh <-chan T) (T, error) {
	var zero T
	select {
	case v := <-replyCh:
		return v, nil
	case <-stopped:
		// The reply may have been sent just before shutdown.
		select {
		case v := <-replyCh:
			return v, nil
		default:
			return zero, domain.ErrSchedulerStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
