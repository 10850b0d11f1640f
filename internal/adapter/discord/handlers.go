package discord

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"

	"github.com/guilhermelawless/nano-discord-bot/internal/app"
	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/correlation"
)

// Moderator is the application surface the gateway events drive.
type Moderator interface {
	Ready(ctx context.Context) error
	MemberJoined(ctx context.Context, member domain.Member) error
	MemberUpdated(ctx context.Context, before *domain.Member, after domain.Member) error
	ModerateLinks(ctx context.Context, msg app.Message) (bool, error)
	Mute(ctx context.Context, cmd app.MuteCommand) error
	Unmute(ctx context.Context, cmd app.UnmuteCommand) error
	ToggleRole(ctx context.Context, cmd app.ToggleRoleCommand) error
	RoleID(ctx context.Context, cmd app.RoleIDCommand) error
}

type resolver interface {
	Convert(ctx context.Context, guildID string, m *discordgo.Member) domain.Member
	Member(ctx context.Context, id domain.Identity) (domain.Member, error)
	IsTextChannel(channelID string) bool
	SelfID() string
}

// Handlers routes gateway events to the moderator. Every event gets its own
// correlation ID; a failing or panicking handler drops only its event.
type Handlers struct {
	ctx      context.Context
	mod      Moderator
	resolver resolver
}

// NewHandlers binds event handling to ctx, the application lifetime.
func NewHandlers(ctx context.Context, mod Moderator, client *Client) *Handlers {
	return &Handlers{ctx: ctx, mod: mod, resolver: client}
}

// Register adds the handlers to session. It must be called before Open.
func (h *Handlers) Register(session *discordgo.Session) {
	session.AddHandler(h.onReady)
	session.AddHandler(h.onMemberAdd)
	session.AddHandler(h.onMemberUpdate)
	session.AddHandler(h.onMessageCreate)
}

func (h *Handlers) handle(event string, fn func(ctx context.Context) error) {
	ctx := correlation.ForEvent(h.ctx, event)
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsHandledTotal.WithLabelValues(event, "panic").Inc()
			slog.ErrorContext(ctx, "Event handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.EventsHandledTotal.WithLabelValues(event, "error").Inc()
		slog.ErrorContext(ctx, "Event handler failed", "error", err)
		return
	}
	metrics.EventsHandledTotal.WithLabelValues(event, "ok").Inc()
}

func (h *Handlers) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	h.handle("ready", func(ctx context.Context) error {
		slog.InfoContext(ctx, "Connected to Discord", "session", r.SessionID, "guilds", len(r.Guilds))
		return h.mod.Ready(ctx)
	})
}

func (h *Handlers) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	h.handle("member_add", func(ctx context.Context) error {
		return h.mod.MemberJoined(ctx, h.resolver.Convert(ctx, e.GuildID, e.Member))
	})
}

func (h *Handlers) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	h.handle("member_update", func(ctx context.Context) error {
		after := h.resolver.Convert(ctx, e.GuildID, e.Member)
		var before *domain.Member
		if e.BeforeUpdate != nil {
			b := h.resolver.Convert(ctx, e.GuildID, e.BeforeUpdate)
			before = &b
		}
		return h.mod.MemberUpdated(ctx, before, after)
	})
}

func (h *Handlers) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Author == nil || e.GuildID == "" || e.Author.ID == h.resolver.SelfID() {
		return
	}
	h.handle("message", func(ctx context.Context) error {
		return h.message(ctx, e.Message)
	})
}

func (h *Handlers) message(ctx context.Context, m *discordgo.Message) error {
	author := h.author(ctx, m)

	removed, err := h.mod.ModerateLinks(ctx, app.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Author:      author,
		Content:     m.Content,
		TextChannel: h.resolver.IsTextChannel(m.ChannelID),
	})
	if err != nil || removed {
		return err
	}

	cmd, ok := parseCommand(m.Content)
	if !ok {
		return nil
	}
	cc := app.CommandContext{CommunityID: m.GuildID, ChannelID: m.ChannelID, Invoker: author}

	switch cmd.kind {
	case commandMute:
		return h.mod.Mute(ctx, app.MuteCommand{
			CommandContext: cc,
			Minutes:        cmd.minutes,
			DurationText:   cmd.durationText,
			Targets:        h.mentioned(ctx, m),
		})
	case commandUnmute:
		return h.mod.Unmute(ctx, app.UnmuteCommand{CommandContext: cc, Targets: h.mentioned(ctx, m)})
	case commandRoleID:
		return h.mod.RoleID(ctx, app.RoleIDCommand{CommandContext: cc, Name: cmd.roleName})
	case commandToggle:
		return h.mod.ToggleRole(ctx, app.ToggleRoleCommand{
			CommandContext: cc,
			Key:            cmd.key,
			Enable:         cmd.enable,
			Targets:        h.mentioned(ctx, m),
		})
	}
	return nil
}

// author combines the message's partial member with its author.
func (h *Handlers) author(ctx context.Context, m *discordgo.Message) domain.Member {
	if m.Member == nil {
		return userMember(m.GuildID, m.Author)
	}
	member := *m.Member
	member.User = m.Author
	return h.resolver.Convert(ctx, m.GuildID, &member)
}

// mentioned resolves mentioned users to current members. Users that cannot be
// looked up are passed on bare so the mutation reports them as failed.
func (h *Handlers) mentioned(ctx context.Context, m *discordgo.Message) []domain.Member {
	out := make([]domain.Member, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u == nil || u.ID == "" {
			continue
		}
		member, err := h.resolver.Member(ctx, domain.Identity{CommunityID: m.GuildID, MemberID: u.ID})
		if err != nil {
			slog.DebugContext(ctx, "Mentioned user not resolvable", "user", u.ID, "error", err)
			member = userMember(m.GuildID, u)
		}
		out = append(out, member)
	}
	return out
}
