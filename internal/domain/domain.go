package domain

import "context"

// MuteStore is the durable backing for the mute map. Save always receives
// the full current state.
type MuteStore interface {
	Load(ctx context.Context) (MuteSnapshot, error)
	Save(ctx context.Context, snapshot MuteSnapshot) error
}

// MembershipProvider applies and removes markers. Errors wrap ErrMemberAbsent
// when the member is not in the community; anything else is transient.
type MembershipProvider interface {
	AddMarker(ctx context.Context, member Member, marker Marker) error
	RemoveMarker(ctx context.Context, member Member, marker Marker) error
}

// Directory resolves members and roles of a community.
type Directory interface {
	Member(ctx context.Context, id Identity) (Member, error)
	RoleByName(ctx context.Context, communityID, name string) (Marker, error)
	RoleByID(ctx context.Context, communityID, roleID string) (Marker, error)
	MembersWithRole(ctx context.Context, communityID, roleID string) ([]Member, error)
	CommunityName(ctx context.Context, communityID string) (string, error)
}

// Notifier delivers bot output.
type Notifier interface {
	Send(ctx context.Context, channelID, content string) error
	SendDirect(ctx context.Context, memberID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
