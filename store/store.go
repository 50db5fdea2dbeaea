// Package store provides the storage backend interface and its
// sqlite, volatile and vector implementations.
package store

import (
	"context"
	"time"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// Backend is the storage contract. Callers supply pre-extracted plaintext
// search tokens separately from entry content, so content may be ciphertext
// while full-text search still matches the original semantics. Search must
// only ever consult the plaintext projection.
type Backend interface {
	// Initialize prepares the backend (schema migration, directory
	// creation). Must be called once before first use.
	Initialize(ctx context.Context) error

	// Store persists the entry along with its plaintext search projection.
	// Storing an existing (user_id, key, memory_type) replaces the previous
	// row and increments its version.
	Store(ctx context.Context, entry *model.MemoryEntry, searchText string, searchTags []string) model.MemoryOperationResult

	// Retrieve returns the entry for the exact triple, or model.ErrNotFound.
	// Expired entries are treated as absent. A successful read bumps the
	// entry's access counters.
	Retrieve(ctx context.Context, userID, key string, t model.MemoryType) (*model.MemoryEntry, error)

	// Search returns entries matching the query filters, most recently
	// updated first. Expired rows are always excluded.
	Search(ctx context.Context, q model.MemorySearchQuery) model.MemorySearchResult

	// Update rewrites an existing entry in place. The search projection is
	// refreshed from content only when the entry is not encrypted; callers
	// holding fresh plaintext tokens should go through Store instead.
	Update(ctx context.Context, entry *model.MemoryEntry) model.MemoryOperationResult

	// Delete physically removes the entry for the exact triple.
	Delete(ctx context.Context, userID, key string, t model.MemoryType) model.MemoryOperationResult

	// CleanupExpired physically removes logically-expired entries,
	// optionally scoped to one user (empty userID means all users).
	CleanupExpired(ctx context.Context, userID string) model.MemoryOperationResult

	// Stats reports storage statistics, scoped to one user when userID is
	// non-empty.
	Stats(ctx context.Context, userID string) (*Stats, error)

	// Close releases backend resources.
	Close() error
}

// Stats holds storage statistics.
type Stats struct {
	UserID        string                   `json:"user_id,omitempty"`
	TotalEntries  int                      `json:"total_entries"`
	ByType        map[model.MemoryType]int `json:"by_type"`
	Encrypted     int                      `json:"encrypted"`
	ContentBytes  int64                    `json:"content_bytes"`
	StorageBytes  int64                    `json:"storage_bytes,omitempty"`
	OldestCreated *time.Time               `json:"oldest_created,omitempty"`
	NewestUpdated *time.Time               `json:"newest_updated,omitempty"`
}
