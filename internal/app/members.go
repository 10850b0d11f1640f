package app

import (
	"context"
	"log/slog"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/guilhermelawless/nano-discord-bot/internal/mute"
)

// MemberJoined screens the new member's names, restores a mute that was still
// running when they left and sends the welcome message.
func (m *Moderator) MemberJoined(ctx context.Context, member domain.Member) error {
	m.checkCopycat(ctx, member, member.Username)
	if member.Nickname != "" {
		m.checkCopycat(ctx, member, member.Nickname)
	}

	if err := m.restoreMute(ctx, member); err != nil {
		slog.ErrorContext(ctx, "Failed to restore mute on rejoin", "identity", member.Identity.Key(), "error", err)
	}

	if m.rules.WelcomeMessage == "" || member.Bot {
		return nil
	}
	name, err := m.directory.CommunityName(ctx, member.Identity.CommunityID)
	if err != nil {
		return err
	}
	return m.notifier.SendDirect(ctx, member.Identity.MemberID, welcomeMessage(member, name, m.rules.WelcomeMessage))
}

func (m *Moderator) restoreMute(ctx context.Context, member domain.Member) error {
	outcome, err := m.scheduler.Rejoin(ctx, member.Identity)
	if err != nil {
		return err
	}
	if outcome != mute.RejoinStillMuted {
		return nil
	}

	sinbin, err := m.sinbin(ctx, member.Identity.CommunityID)
	if err != nil {
		return err
	}
	result := m.executor.Apply(ctx, sinbin, []domain.Member{member}, true)
	switch {
	case len(result.Errored) > 0:
		slog.WarnContext(ctx, "Could not re-apply sinbin role", "identity", member.Identity.Key())
	case len(result.Successful) > 0:
		slog.InfoContext(ctx, "Muted member rejoined, mute restored", "identity", member.Identity.Key())
	default:
		slog.DebugContext(ctx, "Muted member rejoined but is exempt", "identity", member.Identity.Key())
	}
	return nil
}

// MemberUpdated announces username, discriminator and nickname changes and
// screens the new names. before is nil when the previous state is unknown, in
// which case nothing is announced.
func (m *Moderator) MemberUpdated(ctx context.Context, before *domain.Member, after domain.Member) error {
	if before == nil {
		return nil
	}

	var announcements []string
	userChanged := false
	if before.Username != after.Username {
		announcements = append(announcements, usernameChangeMessage(*before, after))
		userChanged = true
	}
	if before.Discriminator != after.Discriminator {
		announcements = append(announcements, discriminatorChangeMessage(*before, after))
		userChanged = true
	}
	nickChanged := before.DisplayName() != after.DisplayName()
	if nickChanged {
		announcements = append(announcements, nicknameChangeMessage(*before, after))
	}

	for _, msg := range announcements {
		m.announce(ctx, msg)
	}
	if userChanged {
		m.checkCopycat(ctx, after, after.Username)
	}
	if nickChanged {
		m.checkCopycat(ctx, after, after.DisplayName())
	}
	return nil
}

func (m *Moderator) checkCopycat(ctx context.Context, member domain.Member, name string) {
	verdict := m.detector.Detect(name, member.Discriminator)
	if verdict == domain.VerdictNone || m.detector.IsTarget(member.Identity.MemberID) {
		return
	}

	slog.InfoContext(ctx, "Potential impersonator",
		"member", member.Identity.MemberID,
		"name", name,
		"verdict", verdict.String())
	m.announce(ctx, copycatMessage(m.rules.CopycatAlertRoleID, verdict))
}

func (m *Moderator) announce(ctx context.Context, content string) {
	if m.rules.NameChangeChannelID == "" {
		return
	}
	if err := m.notifier.Send(ctx, m.rules.NameChangeChannelID, content); err != nil {
		slog.WarnContext(ctx, "Failed to post to name change channel", "error", err)
	}
}

// Message is a chat message as seen by link moderation.
type Message struct {
	ID          string
	ChannelID   string
	Author      domain.Member
	Content     string
	TextChannel bool
}

// ModerateLinks deletes message if it links to a blacklisted destination and
// tells the author why. It reports whether the message was removed.
func (m *Moderator) ModerateLinks(ctx context.Context, msg Message) (bool, error) {
	if m.links == nil || !msg.TextChannel {
		return false, nil
	}

	blocked, err := m.links.Blacklisted(ctx, msg.Content)
	if err != nil {
		slog.WarnContext(ctx, "Link check incomplete", "error", err)
	}
	if !blocked {
		return false, nil
	}

	metrics.BlockedLinksTotal.Inc()
	if err := m.notifier.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		return false, err
	}
	return true, m.notifier.Send(ctx, msg.ChannelID, msg.Author.Mention()+", "+blacklistNotice)
}
