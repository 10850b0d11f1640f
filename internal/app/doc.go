// Package app provides the application service layer.
//
// Moderator orchestrates the moderation use cases: mute commands, feature role
// toggles, timed mute release, startup recovery, member joins and name changes,
// and link moderation. It sits between the chat adapter and the domain
// components and depends on interfaces, not concrete implementations.
package app
