package domain

import "slices"

// Marker is a role applied to or removed from members.
type Marker struct {
	ID   string
	Name string
}

// Member is a community member as seen by the core.
type Member struct {
	Identity      Identity
	Username      string
	Nickname      string
	Discriminator string
	Bot           bool
	Roles         []Marker
}

// HasRoleID reports whether the member currently holds the role with the given ID.
func (m Member) HasRoleID(id string) bool {
	return slices.ContainsFunc(m.Roles, func(r Marker) bool { return r.ID == id })
}

// HasAnyRoleName reports whether the member holds a role with one of the given names.
func (m Member) HasAnyRoleName(names []string) bool {
	return slices.ContainsFunc(m.Roles, func(r Marker) bool { return slices.Contains(names, r.Name) })
}

// DisplayName is the nickname if set, otherwise the username.
func (m Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

// MutationResult partitions the members a role mutation was attempted on.
// Skipped members appear in neither list.
type MutationResult struct {
	Successful []Member
	Errored    []Member
}

// Empty reports whether no member was attempted.
func (r MutationResult) Empty() bool {
	return len(r.Successful) == 0 && len(r.Errored) == 0
}

// Mention is the chat markup that pings the member.
func (m Member) Mention() string {
	return "<@" + m.Identity.MemberID + ">"
}
