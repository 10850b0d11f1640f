package app

import (
	"strings"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
)

const (
	impersonatorAlert     = "potential impersonator"
	discriminatorAddendum = "since discriminator matches, may be a ban in the future"
	blacklistNotice       = "Sorry, but links to r/cc are blacklisted as per their vote manipulation policy.\n" +
		"Attempts to bypass this do not look good on the community and will result in a mute."
)

func mentions(members []domain.Member) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.Mention()
	}
	return strings.Join(parts, ", ")
}

func failureLine(b *strings.Builder, action string, errored []domain.Member, ownerID string) {
	b.WriteString("Failed to ")
	b.WriteString(action)
	b.WriteString(mentions(errored))
	b.WriteString(". <@")
	b.WriteString(ownerID)
	b.WriteString("> check logs and investigate.")
}

func muteMessage(result domain.MutationResult, minutes float64, durationText, rulesChannelID, ownerID string) string {
	var b strings.Builder
	if len(result.Successful) > 0 {
		b.WriteString("Muted ")
		b.WriteString(mentions(result.Successful))
		if minutes == 1 {
			b.WriteString(" for 1 minute.")
		} else {
			b.WriteString(" for " + durationText + " minutes.")
		}
		b.WriteString(" Please follow the <#" + rulesChannelID + ">.")
	}
	if len(result.Errored) > 0 {
		failureLine(&b, "mute ", result.Errored, ownerID)
	}
	return b.String()
}

func unmuteMessage(result domain.MutationResult, ownerID string) string {
	var b strings.Builder
	if len(result.Successful) > 0 {
		b.WriteString("Unmuted " + mentions(result.Successful) + ". ")
	}
	if len(result.Errored) > 0 {
		failureLine(&b, "unmute ", result.Errored, ownerID)
	}
	return b.String()
}

func toggleMessage(result domain.MutationResult, enable bool, roleName, ownerID string) string {
	verb, action := "Disabled ", "disable "
	if enable {
		verb, action = "Enabled ", "enable "
	}

	var b strings.Builder
	if len(result.Successful) > 0 {
		b.WriteString(verb + roleName + " for " + mentions(result.Successful) + ".")
	}
	if len(result.Errored) > 0 {
		failureLine(&b, action+roleName+" for ", result.Errored, ownerID)
	}
	return b.String()
}

func copycatMessage(alertRoleID string, verdict domain.Verdict) string {
	msg := "^^ <@&" + alertRoleID + "> " + impersonatorAlert
	if verdict >= domain.VerdictNameAndDiscriminatorMatch {
		msg += "\n" + discriminatorAddendum
	}
	return msg
}

func usernameChangeMessage(before, after domain.Member) string {
	return "`" + before.Username + "` has changed their username to `" + after.Username + "`: " + after.Mention()
}

func discriminatorChangeMessage(before, after domain.Member) string {
	return "`" + after.Username + "` has changed their discriminator from #" + before.Discriminator +
		" to #" + after.Discriminator + ": " + after.Mention()
}

func nicknameChangeMessage(before, after domain.Member) string {
	return "`" + before.DisplayName() + "` has changed their nickname to `" + after.DisplayName() + "`: " + after.Mention()
}

func welcomeMessage(member domain.Member, communityName, body string) string {
	return "Welcome " + member.Mention() + " to " + communityName + ":\n" + body
}
