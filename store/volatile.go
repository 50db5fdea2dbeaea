package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// VolatileBackend keeps entries in per-user in-process maps. Nothing
// survives a restart; intended for session memory and tests. Operations
// for different users proceed independently, operations for the same
// user serialize on the user's shard lock.
type VolatileBackend struct {
	mu         sync.Mutex // guards the shard map only
	shards     map[string]*userShard
	maxPerUser int
	entropy    *rand.Rand
	entmu      sync.Mutex
}

type userShard struct {
	mu          sync.Mutex
	entries     map[string]*model.MemoryEntry // keyed by key|type
	projections map[string]string             // plaintext search text per entry
}

// NewVolatileBackend creates an empty in-process backend. maxPerUser <= 0
// disables capacity eviction.
func NewVolatileBackend(maxPerUser int) *VolatileBackend {
	return &VolatileBackend{
		shards:     make(map[string]*userShard),
		maxPerUser: maxPerUser,
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize is a no-op for the volatile backend.
func (v *VolatileBackend) Initialize(ctx context.Context) error { return nil }

func (v *VolatileBackend) shard(userID string) *userShard {
	v.mu.Lock()
	defer v.mu.Unlock()
	sh, ok := v.shards[userID]
	if !ok {
		sh = &userShard{
			entries:     make(map[string]*model.MemoryEntry),
			projections: make(map[string]string),
		}
		v.shards[userID] = sh
	}
	return sh
}

func (v *VolatileBackend) newID() string {
	v.entmu.Lock()
	defer v.entmu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), v.entropy).String()
}

func entryKey(key string, t model.MemoryType) string {
	return key + "|" + string(t)
}

// Store inserts or replaces the entry; replacing bumps the version.
func (v *VolatileBackend) Store(ctx context.Context, entry *model.MemoryEntry, searchText string, searchTags []string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()
	sh := v.shard(entry.UserID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := entryKey(entry.Key, entry.Type)
	if prev, ok := sh.entries[k]; ok {
		entry.ID = prev.ID
		entry.Version = prev.Version + 1
		entry.Metadata.CreatedAt = prev.Metadata.CreatedAt
		entry.Metadata.AccessCount = prev.Metadata.AccessCount
	} else {
		if entry.ID == "" {
			entry.ID = v.newID()
		}
		entry.Version = 1
		entry.Metadata.CreatedAt = now
		v.evictLocked(sh)
	}
	entry.Metadata.UpdatedAt = now
	entry.Tags = mergeTags(entry.Tags, searchTags)

	stored := *entry
	sh.entries[k] = &stored
	sh.projections[k] = strings.ToLower(searchText + " " + strings.Join(searchTags, " "))

	res := model.OK("stored", 1)
	res.Took = time.Since(start)
	return res
}

// evictLocked drops the oldest-created entry when the shard is at capacity.
func (v *VolatileBackend) evictLocked(sh *userShard) {
	if v.maxPerUser <= 0 || len(sh.entries) < v.maxPerUser {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range sh.entries {
		if oldestKey == "" || e.Metadata.CreatedAt.Before(oldest) {
			oldestKey = k
			oldest = e.Metadata.CreatedAt
		}
	}
	delete(sh.entries, oldestKey)
	delete(sh.projections, oldestKey)
}

// Retrieve returns a copy of the entry, bumping its access counters.
func (v *VolatileBackend) Retrieve(ctx context.Context, userID, key string, t model.MemoryType) (*model.MemoryEntry, error) {
	sh := v.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[entryKey(key, t)]
	if !ok || e.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s/%s", model.ErrNotFound, userID, key)
	}
	e.Metadata.AccessCount++
	e.Metadata.AccessedAt = time.Now().UTC()
	out := *e
	return &out, nil
}

// Search matches the query filters against the stored plaintext
// projections, most recently updated first.
func (v *VolatileBackend) Search(ctx context.Context, q model.MemorySearchQuery) model.MemorySearchResult {
	start := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	now := time.Now().UTC()
	text := strings.ToLower(q.Text)

	sh := v.shard(q.UserID)
	sh.mu.Lock()
	var matched []model.MemoryEntry
	for k, e := range sh.entries {
		if e.Expired(now) {
			continue
		}
		if !matchesFilters(e, q) {
			continue
		}
		if text != "" && !strings.Contains(sh.projections[k], text) {
			continue
		}
		matched = append(matched, *e)
	}
	sh.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.UpdatedAt.After(matched[j].Metadata.UpdatedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}

	return model.MemorySearchResult{
		Success: true,
		Entries: matched,
		Total:   len(matched),
		HasMore: hasMore,
		Took:    time.Since(start),
	}
}

func matchesFilters(e *model.MemoryEntry, q model.MemorySearchQuery) bool {
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.MinPriority != "" && e.Metadata.Priority.Rank() < q.MinPriority.Rank() {
		return false
	}
	for _, want := range q.Tags {
		found := false
		for _, have := range e.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.CreatedAfter != nil && e.Metadata.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && e.Metadata.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	return true
}

// Update rewrites an existing entry in place.
func (v *VolatileBackend) Update(ctx context.Context, entry *model.MemoryEntry) model.MemoryOperationResult {
	start := time.Now()
	sh := v.shard(entry.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := entryKey(entry.Key, entry.Type)
	prev, ok := sh.entries[k]
	if !ok {
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", entry.UserID, entry.Key))
	}
	entry.ID = prev.ID
	entry.Metadata.CreatedAt = prev.Metadata.CreatedAt
	entry.Metadata.UpdatedAt = time.Now().UTC()

	stored := *entry
	sh.entries[k] = &stored
	if !entry.IsEncrypted {
		sh.projections[k] = strings.ToLower(entry.Content + " " + strings.Join(entry.Tags, " "))
	}

	res := model.OK("updated", 1)
	res.Took = time.Since(start)
	return res
}

// Delete removes the entry for the exact triple.
func (v *VolatileBackend) Delete(ctx context.Context, userID, key string, t model.MemoryType) model.MemoryOperationResult {
	start := time.Now()
	sh := v.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := entryKey(key, t)
	if _, ok := sh.entries[k]; !ok {
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", userID, key))
	}
	delete(sh.entries, k)
	delete(sh.projections, k)

	res := model.OK("deleted", 1)
	res.Took = time.Since(start)
	return res
}

// CleanupExpired removes expired entries for one or all users.
func (v *VolatileBackend) CleanupExpired(ctx context.Context, userID string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()

	v.mu.Lock()
	var shards []*userShard
	for id, sh := range v.shards {
		if userID == "" || id == userID {
			shards = append(shards, sh)
		}
	}
	v.mu.Unlock()

	removed := 0
	for _, sh := range shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.Expired(now) {
				delete(sh.entries, k)
				delete(sh.projections, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	res := model.OK("expired entries removed", removed)
	res.Took = time.Since(start)
	return res
}

// Stats reports in-memory statistics.
func (v *VolatileBackend) Stats(ctx context.Context, userID string) (*Stats, error) {
	now := time.Now().UTC()
	st := &Stats{UserID: userID, ByType: make(map[model.MemoryType]int)}

	v.mu.Lock()
	var shards []*userShard
	for id, sh := range v.shards {
		if userID == "" || id == userID {
			shards = append(shards, sh)
		}
	}
	v.mu.Unlock()

	for _, sh := range shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if e.Expired(now) {
				continue
			}
			st.TotalEntries++
			st.ByType[e.Type]++
			st.ContentBytes += int64(len(e.Content))
			if e.IsEncrypted {
				st.Encrypted++
			}
			created := e.Metadata.CreatedAt
			if st.OldestCreated == nil || created.Before(*st.OldestCreated) {
				c := created
				st.OldestCreated = &c
			}
			updated := e.Metadata.UpdatedAt
			if st.NewestUpdated == nil || updated.After(*st.NewestUpdated) {
				u := updated
				st.NewestUpdated = &u
			}
		}
		sh.mu.Unlock()
	}
	return st, nil
}

// Close is a no-op for the volatile backend.
func (v *VolatileBackend) Close() error { return nil }
