package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/copycat"
	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/mute"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/config"
)

// Scheduler is the subset of mute.Scheduler the moderator drives.
type Scheduler interface {
	Schedule(ctx context.Context, id domain.Identity, d time.Duration) (time.Time, error)
	Cancel(ctx context.Context, id domain.Identity) (bool, error)
	Rejoin(ctx context.Context, id domain.Identity) (mute.RejoinOutcome, error)
	Recover(ctx context.Context, presence mute.Presence) (mute.RecoverReport, error)
	Active(ctx context.Context) ([]domain.MuteRecord, error)
}

type Executor interface {
	Apply(ctx context.Context, marker domain.Marker, members []domain.Member, add bool) domain.MutationResult
	RemoveSafely(ctx context.Context, member domain.Member, marker domain.Marker) error
}

type Detector interface {
	Load(targets []copycat.Target)
	Detect(name, discriminator string) domain.Verdict
	IsTarget(memberID string) bool
	Size() int
}

// LinkChecker decides whether message content links somewhere forbidden.
type LinkChecker interface {
	Blacklisted(ctx context.Context, content string) (bool, error)
}

// Moderator is the application layer. It is the only component that talks to
// more than one domain component.
type Moderator struct {
	rules     *config.Rules
	directory domain.Directory
	notifier  domain.Notifier
	executor  Executor
	detector  Detector
	links     LinkChecker

	// scheduler is set after construction: the scheduler needs the moderator
	// as its Releaser.
	scheduler Scheduler
}

var (
	_ mute.Releaser = (*Moderator)(nil)
	_ mute.Presence = (*Moderator)(nil)
)

// NewModerator creates the application layer. links may be nil when the link
// blacklist is disabled.
func NewModerator(rules *config.Rules, directory domain.Directory, notifier domain.Notifier, executor Executor, detector Detector, links LinkChecker) *Moderator {
	return &Moderator{
		rules:     rules,
		directory: directory,
		notifier:  notifier,
		executor:  executor,
		detector:  detector,
		links:     links,
	}
}

// SetScheduler must be called before any event is handled.
func (m *Moderator) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// IsModerator reports whether member holds one of the moderator roles.
func (m *Moderator) IsModerator(member domain.Member) bool {
	return member.HasAnyRoleName(m.rules.ModRoles)
}

// Ready runs once the chat session is connected: it loads the protected
// copycat pool and recovers persisted mutes.
func (m *Moderator) Ready(ctx context.Context) error {
	if err := m.loadCopycatTargets(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to load copycat targets", "error", err)
	}

	report, err := m.scheduler.Recover(ctx, m)
	if err != nil {
		return err
	}

	active, err := m.scheduler.Active(ctx)
	if err != nil {
		return err
	}
	attrs := []any{"rearmed", report.Rearmed, "released", report.Released, "pending", report.Pending, "active", len(active)}
	if len(active) > 0 {
		attrs = append(attrs, "next_expiry", active[0].EndsAt)
	}
	slog.InfoContext(ctx, "Mute recovery complete", attrs...)
	return nil
}

func (m *Moderator) loadCopycatTargets(ctx context.Context) error {
	if m.rules.GuildID == "" || len(m.rules.CopycatTargetRoleIDs) == 0 {
		return nil
	}

	var targets []copycat.Target
	for _, roleID := range m.rules.CopycatTargetRoleIDs {
		members, err := m.directory.MembersWithRole(ctx, m.rules.GuildID, roleID)
		if err != nil {
			return err
		}
		for _, member := range members {
			targets = append(targets, copycat.Target{
				MemberID:      member.Identity.MemberID,
				Username:      member.Username,
				Nickname:      member.Nickname,
				Discriminator: member.Discriminator,
			})
		}
	}

	m.detector.Load(targets)
	slog.InfoContext(ctx, "Copycat targets loaded", "members", len(targets), "pool", m.detector.Size())
	return nil
}

// ReleaseMute lifts an expired mute. The member does not have to be present:
// an absent member has nothing to remove.
func (m *Moderator) ReleaseMute(ctx context.Context, id domain.Identity) {
	sinbin, err := m.directory.RoleByName(ctx, id.CommunityID, m.rules.SinbinRole)
	if err != nil {
		slog.ErrorContext(ctx, "Cannot release mute, sinbin role unavailable", "identity", id.Key(), "error", err)
		return
	}

	if err := m.executor.RemoveSafely(ctx, domain.Member{Identity: id}, sinbin); err != nil {
		slog.WarnContext(ctx, "Mute release abandoned", "identity", id.Key(), "error", err)
		return
	}
	slog.InfoContext(ctx, "Mute released", "identity", id.Key())
}

// IsMemberPresent implements mute.Presence.
func (m *Moderator) IsMemberPresent(ctx context.Context, id domain.Identity) (bool, error) {
	_, err := m.directory.Member(ctx, id)
	if errors.Is(err, domain.ErrMemberAbsent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasMarker implements mute.Presence. Roles are compared by ID since member
// roles may not carry a resolved name.
func (m *Moderator) HasMarker(ctx context.Context, id domain.Identity) (bool, error) {
	sinbin, err := m.sinbin(ctx, id.CommunityID)
	if err != nil {
		return false, err
	}
	member, err := m.directory.Member(ctx, id)
	if err != nil {
		return false, err
	}
	return member.HasRoleID(sinbin.ID), nil
}
