package access

import (
	"time"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// Role presets map to canned capability bundles.
const (
	RoleGuest = "guest"
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// guestTTL bounds implicitly-created guest permissions.
const guestTTL = time.Hour

// rolePermissions builds the permission set for a named role. Guest grants
// are time-boxed; user and admin grants have no implicit expiry.
func rolePermissions(userID, role string, now time.Time) *model.UserPermissions {
	switch role {
	case RoleAdmin:
		return &model.UserPermissions{
			UserID: userID,
			Permissions: map[string]bool{
				model.PermRead: true, model.PermWrite: true, model.PermUpdate: true,
				model.PermDelete: true, model.PermSearch: true, model.PermAdmin: true,
				model.PermAccessPrivate: true, model.PermAccessShared: true, model.PermAccessSystem: true,
			},
			MemoryTypesAllowed: map[model.MemoryType]bool{
				model.TypeSession: true, model.TypeWorking: true, model.TypePreference: true,
				model.TypeLongTerm: true, model.TypePattern: true,
			},
			MaxMemorySize: 10 * 1024 * 1024,
			RateLimits: map[string]int{
				model.PermRead: 10000, model.PermWrite: 5000, model.PermUpdate: 5000,
				model.PermDelete: 1000, model.PermSearch: 10000,
			},
			AccessLevel: "admin",
			CreatedAt:   now,
		}
	case RoleUser:
		return &model.UserPermissions{
			UserID: userID,
			Permissions: map[string]bool{
				model.PermRead: true, model.PermWrite: true, model.PermUpdate: true,
				model.PermDelete: true, model.PermSearch: true,
				model.PermAccessPrivate: true, model.PermAccessShared: true,
			},
			MemoryTypesAllowed: map[model.MemoryType]bool{
				model.TypeSession: true, model.TypeWorking: true, model.TypePreference: true,
				model.TypeLongTerm: true,
			},
			MaxMemorySize: 1024 * 1024,
			RateLimits: map[string]int{
				model.PermRead: 1000, model.PermWrite: 500, model.PermUpdate: 500,
				model.PermDelete: 100, model.PermSearch: 1000,
			},
			AccessLevel: "user",
			CreatedAt:   now,
		}
	default:
		// Default guest permissions: tightly scoped and short-lived.
		expires := now.Add(guestTTL)
		return &model.UserPermissions{
			UserID: userID,
			Permissions: map[string]bool{
				model.PermRead: true, model.PermSearch: true,
			},
			MemoryTypesAllowed: map[model.MemoryType]bool{
				model.TypeSession: true, model.TypeWorking: true,
			},
			MaxMemorySize: 64 * 1024,
			RateLimits: map[string]int{
				model.PermRead: 100, model.PermSearch: 100, model.PermWrite: 10,
			},
			AccessLevel: "guest",
			CreatedAt:   now,
			ExpiresAt:   &expires,
		}
	}
}
