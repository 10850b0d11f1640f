package discord

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
)

// Codes meaning the member, user or guild is gone.
var absentCodes = []int{
	discordgo.ErrCodeUnknownGuild,
	discordgo.ErrCodeUnknownMember,
	discordgo.ErrCodeUnknownUser,
}

// classify wraps API errors that mean the member is not in the community
// with domain.ErrMemberAbsent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && slices.Contains(absentCodes, rest.Message.Code) {
		return fmt.Errorf("%w: %w", domain.ErrMemberAbsent, err)
	}
	return err
}

func toMember(guildID string, m *discordgo.Member, guildRoles []*discordgo.Role) domain.Member {
	out := domain.Member{
		Identity: domain.Identity{CommunityID: guildID},
		Nickname: m.Nick,
	}
	if m.User != nil {
		out.Identity.MemberID = m.User.ID
		out.Username = m.User.Username
		out.Discriminator = m.User.Discriminator
		out.Bot = m.User.Bot
	}

	out.Roles = make([]domain.Marker, 0, len(m.Roles))
	for _, id := range m.Roles {
		marker := domain.Marker{ID: id}
		if i := slices.IndexFunc(guildRoles, func(r *discordgo.Role) bool { return r.ID == id }); i >= 0 {
			marker.Name = guildRoles[i].Name
		}
		out.Roles = append(out.Roles, marker)
	}
	return out
}

func userMember(guildID string, u *discordgo.User) domain.Member {
	return domain.Member{
		Identity:      domain.Identity{CommunityID: guildID, MemberID: u.ID},
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Bot:           u.Bot,
	}
}
