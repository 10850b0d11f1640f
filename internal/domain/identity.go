package domain

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the permanent (community, member) pair a mute is keyed by.
// Chat-platform member handles change when a member leaves and rejoins;
// the pair does not.
type Identity struct {
	CommunityID string
	MemberID    string
}

// Key returns the string form used as the durable map key.
func (i Identity) Key() string {
	return i.CommunityID + " " + i.MemberID
}

func (i Identity) String() string { return i.Key() }

// ParseIdentityKey inverts Identity.Key.
func ParseIdentityKey(key string) (Identity, error) {
	community, member, ok := strings.Cut(key, " ")
	if !ok || community == "" || member == "" || strings.Contains(member, " ") {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return Identity{CommunityID: community, MemberID: member}, nil
}

// MuteRecord is an active or pending mute.
type MuteRecord struct {
	Identity Identity
	EndsAt   time.Time
}

// PersistedMute is the durable form of a MuteRecord. EndsAt is in Unix
// milliseconds.
type PersistedMute struct {
	EndsAt int64 `json:"endsAt"`
}

// Time returns EndsAt as a time.Time.
func (p PersistedMute) Time() time.Time {
	return time.UnixMilli(p.EndsAt)
}

// MuteSnapshot maps Identity.Key to the persisted record.
type MuteSnapshot map[string]PersistedMute
