package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
)

// CommandContext identifies where a command was issued and by whom.
type CommandContext struct {
	CommunityID string
	ChannelID   string
	Invoker     domain.Member
}

type MuteCommand struct {
	CommandContext
	Minutes float64
	// DurationText is the duration as typed, echoed back in the reply.
	DurationText string
	Targets      []domain.Member
}

type UnmuteCommand struct {
	CommandContext
	Targets []domain.Member
}

// ToggleRoleCommand enables or disables a moderator-configured feature role.
// Key is the configuration key, e.g. "Trading" for !enableTrading.
type ToggleRoleCommand struct {
	CommandContext
	Key     string
	Enable  bool
	Targets []domain.Member
}

type RoleIDCommand struct {
	CommandContext
	Name string
}

// Mute applies the sinbin role to the targets and schedules its removal.
// Commands from non-moderators and invalid durations are ignored.
func (m *Moderator) Mute(ctx context.Context, cmd MuteCommand) error {
	if !m.authorize(ctx, "mute", cmd.Invoker) {
		return nil
	}
	if len(cmd.Targets) == 0 {
		return nil
	}
	duration, ok := muteDuration(cmd.Minutes)
	if !ok {
		slog.WarnContext(ctx, "Ignoring mute with unusable duration", "minutes", cmd.DurationText)
		return nil
	}

	sinbin, err := m.sinbin(ctx, cmd.CommunityID)
	if err != nil {
		return err
	}

	result := m.executor.Apply(ctx, sinbin, cmd.Targets, true)
	if result.Empty() {
		return nil
	}

	for _, member := range result.Successful {
		if _, err := m.scheduler.Schedule(ctx, member.Identity, duration); err != nil {
			// The role is on; without a timer it stays until a manual unmute.
			slog.ErrorContext(ctx, "Failed to schedule unmute", "identity", member.Identity.Key(), "error", err)
		}
	}

	return m.notifier.Send(ctx, cmd.ChannelID, muteMessage(result, cmd.Minutes, cmd.DurationText, m.rules.RulesChannelID, m.rules.OwnerID))
}

// muteDuration converts minutes to a Duration, rejecting values that are not
// positive once rounded or that overflow.
func muteDuration(minutes float64) (time.Duration, bool) {
	ns := minutes * float64(time.Minute)
	if !(ns >= 1) || ns >= math.MaxInt64 {
		return 0, false
	}
	return time.Duration(ns), true
}

// Unmute removes the sinbin role and cancels the pending release of every
// member it was removed from.
func (m *Moderator) Unmute(ctx context.Context, cmd UnmuteCommand) error {
	if !m.authorize(ctx, "unmute", cmd.Invoker) {
		return nil
	}
	if len(cmd.Targets) == 0 {
		return nil
	}

	sinbin, err := m.sinbin(ctx, cmd.CommunityID)
	if err != nil {
		return err
	}

	result := m.executor.Apply(ctx, sinbin, cmd.Targets, false)
	if result.Empty() {
		return nil
	}

	for _, member := range result.Successful {
		if _, err := m.scheduler.Cancel(ctx, member.Identity); err != nil {
			slog.ErrorContext(ctx, "Failed to cancel mute", "identity", member.Identity.Key(), "error", err)
		}
	}

	return m.notifier.Send(ctx, cmd.ChannelID, unmuteMessage(result, m.rules.OwnerID))
}

// ToggleRole adds or removes a configured feature role. A role configured as
// inverted is removed on enable and added on disable.
func (m *Moderator) ToggleRole(ctx context.Context, cmd ToggleRoleCommand) error {
	if !m.authorize(ctx, "toggle_role", cmd.Invoker) {
		return nil
	}

	conf, ok := m.rules.ModConfiguredRoles[cmd.Key]
	if !ok {
		slog.DebugContext(ctx, "Ignoring toggle for unconfigured role", "key", cmd.Key)
		return nil
	}
	if len(cmd.Targets) == 0 {
		return nil
	}

	role, err := m.directory.RoleByID(ctx, cmd.CommunityID, conf.ID)
	if errors.Is(err, domain.ErrRoleNotFound) {
		slog.WarnContext(ctx, "Configured role does not exist", "key", cmd.Key, "role_id", conf.ID)
		return nil
	}
	if err != nil {
		return err
	}

	add := cmd.Enable != conf.Inverted
	result := m.executor.Apply(ctx, role, cmd.Targets, add)
	if result.Empty() {
		return nil
	}

	return m.notifier.Send(ctx, cmd.ChannelID, toggleMessage(result, cmd.Enable, conf.DisplayName(cmd.Key), m.rules.OwnerID))
}

// RoleID replies with the ID of the role called cmd.Name.
func (m *Moderator) RoleID(ctx context.Context, cmd RoleIDCommand) error {
	if !m.authorize(ctx, "getroleid", cmd.Invoker) {
		return nil
	}

	reply := "role not found"
	role, err := m.directory.RoleByName(ctx, cmd.CommunityID, cmd.Name)
	switch {
	case err == nil:
		reply = "role id: " + role.ID
	case !errors.Is(err, domain.ErrRoleNotFound):
		return err
	}
	return m.notifier.Send(ctx, cmd.ChannelID, fmt.Sprintf("%s, %s", cmd.Invoker.Mention(), reply))
}

func (m *Moderator) authorize(ctx context.Context, command string, invoker domain.Member) bool {
	if !m.IsModerator(invoker) {
		slog.DebugContext(ctx, "Ignoring command from non-moderator", "command", command, "member", invoker.Identity.MemberID)
		return false
	}
	metrics.CommandsTotal.WithLabelValues(command).Inc()
	return true
}

func (m *Moderator) sinbin(ctx context.Context, communityID string) (domain.Marker, error) {
	role, err := m.directory.RoleByName(ctx, communityID, m.rules.SinbinRole)
	if err != nil {
		return domain.Marker{}, fmt.Errorf("sinbin role %q: %w", m.rules.SinbinRole, err)
	}
	return role, nil
}
