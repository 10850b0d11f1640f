// Package discord adapts a discordgo session to the moderator: it implements
// the directory, membership and notifier ports and turns gateway events into
// application calls.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/prices"
)

const (
	intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	membersPageSize = 1000
)

// Client wraps a discordgo session. All REST calls carry the caller's context.
type Client struct {
	session *discordgo.Session
}

var (
	_ domain.MembershipProvider = (*Client)(nil)
	_ domain.Directory          = (*Client)(nil)
	_ domain.Notifier           = (*Client)(nil)
	_ prices.Poster             = (*Client)(nil)
)

// NewSession creates a bot session with the gateway intents the moderator
// needs. The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	s.State.TrackChannels = true
	s.State.MaxMessageCount = 0
	return s, nil
}

func NewClient(session *discordgo.Session) *Client {
	return &Client{session: session}
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// FetchSelfID asks the API for the bot's own user ID. It works before the
// gateway is opened.
func (c *Client) FetchSelfID(ctx context.Context) (string, error) {
	me, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return me.ID, nil
}

// SelfID is the bot's own user ID, empty before the first Ready.
func (c *Client) SelfID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// Ping reports whether the gateway session is up.
func (c *Client) Ping(context.Context) error {
	if !c.session.DataReady {
		return errors.New("discord session not ready")
	}
	return nil
}

// AddMarker implements domain.MembershipProvider.
func (c *Client) AddMarker(ctx context.Context, member domain.Member, marker domain.Marker) error {
	id := member.Identity
	return classify(c.session.GuildMemberRoleAdd(id.CommunityID, id.MemberID, marker.ID, discordgo.WithContext(ctx)))
}

// RemoveMarker implements domain.MembershipProvider.
func (c *Client) RemoveMarker(ctx context.Context, member domain.Member, marker domain.Marker) error {
	id := member.Identity
	return classify(c.session.GuildMemberRoleRemove(id.CommunityID, id.MemberID, marker.ID, discordgo.WithContext(ctx)))
}

// Member always asks the API so presence and role checks see current data.
func (c *Client) Member(ctx context.Context, id domain.Identity) (domain.Member, error) {
	m, err := c.session.GuildMember(id.CommunityID, id.MemberID, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Member{}, classify(err)
	}
	return c.Convert(ctx, id.CommunityID, m), nil
}

func (c *Client) RoleByName(ctx context.Context, communityID, name string) (domain.Marker, error) {
	return c.findRole(ctx, communityID, func(r *discordgo.Role) bool { return r.Name == name })
}

func (c *Client) RoleByID(ctx context.Context, communityID, roleID string) (domain.Marker, error) {
	return c.findRole(ctx, communityID, func(r *discordgo.Role) bool { return r.ID == roleID })
}

func (c *Client) findRole(ctx context.Context, communityID string, match func(*discordgo.Role) bool) (domain.Marker, error) {
	roles, err := c.roles(ctx, communityID)
	if err != nil {
		return domain.Marker{}, err
	}
	i := slices.IndexFunc(roles, match)
	if i < 0 {
		return domain.Marker{}, domain.ErrRoleNotFound
	}
	return domain.Marker{ID: roles[i].ID, Name: roles[i].Name}, nil
}

// roles prefers the gateway state and falls back to the API.
func (c *Client) roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if c.session.State != nil {
		if g, err := c.session.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles of %s: %w", guildID, err)
	}
	return roles, nil
}

// MembersWithRole pages through the whole member list.
func (c *Client) MembersWithRole(ctx context.Context, communityID, roleID string) ([]domain.Member, error) {
	var (
		out   []domain.Member
		after string
	)
	for {
		page, err := c.session.GuildMembers(communityID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members of %s: %w", communityID, err)
		}
		for _, m := range page {
			if slices.Contains(m.Roles, roleID) {
				out = append(out, c.Convert(ctx, communityID, m))
			}
		}
		if len(page) < membersPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) CommunityName(ctx context.Context, communityID string) (string, error) {
	if c.session.State != nil {
		if g, err := c.session.State.Guild(communityID); err == nil && g.Name != "" {
			return g.Name, nil
		}
	}
	g, err := c.session.Guild(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch guild %s: %w", communityID, err)
	}
	return g.Name, nil
}

// IsTextChannel reports whether channelID is a guild text channel. Unknown
// channels count as text channels.
func (c *Client) IsTextChannel(channelID string) bool {
	if c.session.State == nil {
		return true
	}
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		return true
	}
	return ch.Type == discordgo.ChannelTypeGuildText
}

func (c *Client) Send(ctx context.Context, channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

func (c *Client) SendDirect(ctx context.Context, memberID, content string) error {
	ch, err := c.session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open direct channel: %w", err)
	}
	return c.Send(ctx, ch.ID, content)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

// SendEmbed implements prices.Poster.
func (c *Client) SendEmbed(ctx context.Context, channelID string, embed prices.Embed) error {
	_, err := c.session.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Description: embed.Description,
		Color:       embed.Color,
	}, discordgo.WithContext(ctx))
	return err
}

// Convert maps a discordgo member to the domain, resolving role IDs to names.
// Unresolvable roles keep their ID only.
func (c *Client) Convert(ctx context.Context, guildID string, m *discordgo.Member) domain.Member {
	roles, err := c.roles(ctx, guildID)
	if err != nil {
		slog.WarnContext(ctx, "Role names unavailable", "guild", guildID, "error", err)
	}
	return toMember(guildID, m, roles)
}
