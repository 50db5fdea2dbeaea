package model

import "time"

// Capability strings checked by the access controller.
const (
	PermRead          = "read"
	PermWrite         = "write"
	PermUpdate        = "update"
	PermDelete        = "delete"
	PermSearch        = "search"
	PermAdmin         = "admin"
	PermAccessPrivate = "access_private"
	PermAccessShared  = "access_shared"
	PermAccessSystem  = "access_system"
)

// UserPermissions describes what a user may do. Created implicitly with
// guest defaults on first sight, or explicitly via a grant.
type UserPermissions struct {
	UserID             string              `json:"user_id"`
	Permissions        map[string]bool     `json:"permissions"`
	MemoryTypesAllowed map[MemoryType]bool `json:"memory_types_allowed"`
	MaxMemorySize      int                 `json:"max_memory_size"`
	RateLimits         map[string]int      `json:"rate_limits"`
	AccessLevel        string              `json:"access_level"`
	CreatedAt          time.Time           `json:"created_at"`
	ExpiresAt          *time.Time          `json:"expires_at,omitempty"`
}

// Expired reports whether the permission grant has lapsed.
func (p *UserPermissions) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// Has reports whether the capability is granted.
func (p *UserPermissions) Has(capability string) bool {
	return p.Permissions[capability]
}

// AllowsType reports whether the user may touch the given memory type.
func (p *UserPermissions) AllowsType(t MemoryType) bool {
	return p.MemoryTypesAllowed[t]
}
