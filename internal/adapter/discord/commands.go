package discord

import (
	"math"
	"strconv"
	"strings"
)

type commandKind int

const (
	commandMute commandKind = iota + 1
	commandUnmute
	commandRoleID
	commandToggle
)

type command struct {
	kind commandKind

	// mute
	minutes      float64
	durationText string

	// getroleid
	roleName string

	// enable/disable
	key    string
	enable bool
}

// parseCommand recognizes the moderator commands. Arguments are split on
// single spaces; mentions are read from the message itself.
func parseCommand(content string) (command, bool) {
	parts := strings.Split(content, " ")
	name := parts[0]

	switch {
	case name == "!mute":
		cmd := command{kind: commandMute}
		if text, ok := firstNumber(parts[1:]); ok {
			cmd.durationText = text
			cmd.minutes, _ = strconv.ParseFloat(text, 64)
		}
		return cmd, true
	case name == "!unmute":
		return command{kind: commandUnmute}, true
	case name == "!getroleid":
		return command{kind: commandRoleID, roleName: strings.Join(parts[1:], " ")}, true
	case strings.HasPrefix(name, "!enable"):
		return command{kind: commandToggle, enable: true, key: toggleKey(parts, "!enable")}, true
	case strings.HasPrefix(name, "!disable"):
		return command{kind: commandToggle, key: toggleKey(parts, "!disable")}, true
	}
	return command{}, false
}

// toggleKey accepts both !enableTrading and !enable Trading.
func toggleKey(parts []string, prefix string) string {
	if key := strings.TrimPrefix(parts[0], prefix); key != "" {
		return key
	}
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

func firstNumber(parts []string) (string, bool) {
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return p, true
		}
	}
	return "", false
}
