package domain

import "errors"

var (
	// ErrMemberAbsent is returned by membership operations when the target
	// member is not (or no longer) part of the community.
	ErrMemberAbsent     = errors.New("member not in community")
	ErrRoleNotFound     = errors.New("role not found")
	ErrInvalidDuration  = errors.New("mute duration must be positive")
	ErrInvalidKey       = errors.New("malformed identity key")
	ErrSchedulerStopped = errors.New("mute scheduler stopped")
)
