package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/embedding"
	"github.com/tbh-ai/secure-agent-memory/model"
)

// VectorBackend stores the plaintext projection as an embedding-indexed
// document in chromem-go, with the (possibly encrypted) entry attached as
// payload. Search is nearest-neighbor over the query text; user and type
// filters are applied post-hoc since the engine's native filtering is
// limited. Exact-key lookups are served from a process-local index that is
// rebuilt only by writes, so a restart of a persistent deployment loses
// exact-key access until entries are re-stored.
type VectorBackend struct {
	db       *chromem.DB
	embedder embedding.Embedder
	log      zerolog.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	index       map[string]*model.MemoryEntry // docID -> entry copy
	entropy     *rand.Rand
	entmu       sync.Mutex
}

// NewVectorBackend creates a chromem-backed store. A non-empty path makes
// the database persistent under that directory; an embedder is required.
func NewVectorBackend(path string, embedder embedding.Embedder, log zerolog.Logger) (*VectorBackend, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: vector backend requires an embedding provider", model.ErrConfiguration)
	}

	var db *chromem.DB
	var err error
	if path != "" {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &VectorBackend{
		db:          db,
		embedder:    embedder,
		log:         log,
		collections: make(map[string]*chromem.Collection),
		index:       make(map[string]*model.MemoryEntry),
		entropy:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Initialize is a no-op; collections are created lazily per user.
func (b *VectorBackend) Initialize(ctx context.Context) error { return nil }

func (b *VectorBackend) newID() string {
	b.entmu.Lock()
	defer b.entmu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy).String()
}

func (b *VectorBackend) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return b.embedder.Embed(ctx, text)
	}
}

// collection returns the per-user collection, creating it on first use.
func (b *VectorBackend) collection(userID string) (*chromem.Collection, error) {
	b.mu.RLock()
	col, ok := b.collections[userID]
	b.mu.RUnlock()
	if ok {
		return col, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if col, ok := b.collections[userID]; ok {
		return col, nil
	}
	col, err := b.db.GetOrCreateCollection("user_"+userID, nil, b.embedFunc())
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	b.collections[userID] = col
	return col, nil
}

func docID(userID, key string, t model.MemoryType) string {
	return userID + "|" + string(t) + "|" + key
}

// Store indexes the plaintext projection and attaches the entry as payload.
func (b *VectorBackend) Store(ctx context.Context, entry *model.MemoryEntry, searchText string, searchTags []string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()

	col, err := b.collection(entry.UserID)
	if err != nil {
		return model.Fail(err.Error())
	}

	id := docID(entry.UserID, entry.Key, entry.Type)

	b.mu.Lock()
	if prev, ok := b.index[id]; ok {
		entry.ID = prev.ID
		entry.Version = prev.Version + 1
		entry.Metadata.CreatedAt = prev.Metadata.CreatedAt
	} else {
		if entry.ID == "" {
			entry.ID = b.newID()
		}
		entry.Version = 1
		entry.Metadata.CreatedAt = now
	}
	entry.Metadata.UpdatedAt = now
	entry.Tags = mergeTags(entry.Tags, searchTags)
	stored := *entry
	b.index[id] = &stored
	b.mu.Unlock()

	doc := chromem.Document{
		ID:      id,
		Content: searchText,
		Metadata: map[string]string{
			"user_id":     entry.UserID,
			"memory_type": string(entry.Type),
			"key":         entry.Key,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return model.Fail(fmt.Sprintf("add document: %v", err))
	}

	res := model.OK("stored", 1)
	res.Took = time.Since(start)
	return res
}

// Retrieve serves exact-key lookups from the local index.
func (b *VectorBackend) Retrieve(ctx context.Context, userID, key string, t model.MemoryType) (*model.MemoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.index[docID(userID, key, t)]
	if !ok || e.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s/%s", model.ErrNotFound, userID, key)
	}
	e.Metadata.AccessCount++
	e.Metadata.AccessedAt = time.Now().UTC()
	out := *e
	return &out, nil
}

// Search runs nearest-neighbor lookup over the query text, then filters
// the hits by the remaining query constraints.
func (b *VectorBackend) Search(ctx context.Context, q model.MemorySearchQuery) model.MemorySearchResult {
	start := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if q.Text == "" {
		return b.searchWithoutText(q, limit, start)
	}

	col, err := b.collection(q.UserID)
	if err != nil {
		return model.MemorySearchResult{Message: err.Error(), Took: time.Since(start)}
	}

	// chromem rejects nResults greater than the collection size.
	n := limit + q.Offset
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return model.MemorySearchResult{Success: true, Took: time.Since(start)}
	}

	hits, err := col.Query(ctx, q.Text, n, map[string]string{"user_id": q.UserID}, nil)
	if err != nil {
		return model.MemorySearchResult{Message: fmt.Sprintf("vector query: %v", err), Took: time.Since(start)}
	}

	now := time.Now().UTC()
	var entries []model.MemoryEntry
	b.mu.RLock()
	for _, hit := range hits {
		e, ok := b.index[hit.ID]
		if !ok || e.Expired(now) || !matchesFilters(e, q) {
			continue
		}
		entries = append(entries, *e)
	}
	b.mu.RUnlock()

	if q.Offset > 0 {
		if q.Offset >= len(entries) {
			entries = nil
		} else {
			entries = entries[q.Offset:]
		}
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return model.MemorySearchResult{
		Success: true,
		Entries: entries,
		Total:   len(entries),
		HasMore: hasMore,
		Took:    time.Since(start),
	}
}

// searchWithoutText lists from the local index when there is no query
// text to embed.
func (b *VectorBackend) searchWithoutText(q model.MemorySearchQuery, limit int, start time.Time) model.MemorySearchResult {
	now := time.Now().UTC()
	var entries []model.MemoryEntry

	b.mu.RLock()
	for _, e := range b.index {
		if e.UserID != q.UserID || e.Expired(now) || !matchesFilters(e, q) {
			continue
		}
		entries = append(entries, *e)
	}
	b.mu.RUnlock()

	sortByUpdatedDesc(entries)
	if q.Offset > 0 {
		if q.Offset >= len(entries) {
			entries = nil
		} else {
			entries = entries[q.Offset:]
		}
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return model.MemorySearchResult{
		Success: true,
		Entries: entries,
		Total:   len(entries),
		HasMore: hasMore,
		Took:    time.Since(start),
	}
}

// Update rewrites the payload; the vector document is only refreshed for
// plaintext entries, since ciphertext cannot be embedded meaningfully.
func (b *VectorBackend) Update(ctx context.Context, entry *model.MemoryEntry) model.MemoryOperationResult {
	start := time.Now()
	id := docID(entry.UserID, entry.Key, entry.Type)

	b.mu.Lock()
	prev, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", entry.UserID, entry.Key))
	}
	entry.ID = prev.ID
	entry.Metadata.CreatedAt = prev.Metadata.CreatedAt
	entry.Metadata.UpdatedAt = time.Now().UTC()
	stored := *entry
	b.index[id] = &stored
	b.mu.Unlock()

	if !entry.IsEncrypted {
		col, err := b.collection(entry.UserID)
		if err != nil {
			return model.Fail(err.Error())
		}
		doc := chromem.Document{
			ID:      id,
			Content: entry.Content,
			Metadata: map[string]string{
				"user_id":     entry.UserID,
				"memory_type": string(entry.Type),
				"key":         entry.Key,
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return model.Fail(fmt.Sprintf("reindex document: %v", err))
		}
	}

	res := model.OK("updated", 1)
	res.Took = time.Since(start)
	return res
}

// Delete removes the entry from the local index and tombstones the vector
// document by dropping it from result filtering; the underlying document
// is removed from the collection as well.
func (b *VectorBackend) Delete(ctx context.Context, userID, key string, t model.MemoryType) model.MemoryOperationResult {
	start := time.Now()
	id := docID(userID, key, t)

	b.mu.Lock()
	_, ok := b.index[id]
	delete(b.index, id)
	b.mu.Unlock()
	if !ok {
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", userID, key))
	}

	col, err := b.collection(userID)
	if err == nil {
		if derr := col.Delete(ctx, nil, nil, id); derr != nil {
			// The index drop already hides the entry; log and move on.
			b.log.Warn().Err(derr).Str("doc", id).Msg("vector document delete failed")
		}
	}

	res := model.OK("deleted", 1)
	res.Took = time.Since(start)
	return res
}

// CleanupExpired drops expired entries from the local index and their
// vector documents.
func (b *VectorBackend) CleanupExpired(ctx context.Context, userID string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()
	removed := 0

	b.mu.Lock()
	var expired []*model.MemoryEntry
	for id, e := range b.index {
		if (userID == "" || e.UserID == userID) && e.Expired(now) {
			expired = append(expired, e)
			delete(b.index, id)
			removed++
		}
	}
	b.mu.Unlock()

	for _, e := range expired {
		if col, err := b.collection(e.UserID); err == nil {
			col.Delete(ctx, nil, nil, docID(e.UserID, e.Key, e.Type))
		}
	}

	res := model.OK("expired entries removed", removed)
	res.Took = time.Since(start)
	return res
}

// Stats reports statistics from the local index.
func (b *VectorBackend) Stats(ctx context.Context, userID string) (*Stats, error) {
	now := time.Now().UTC()
	st := &Stats{UserID: userID, ByType: make(map[model.MemoryType]int)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.index {
		if (userID != "" && e.UserID != userID) || e.Expired(now) {
			continue
		}
		st.TotalEntries++
		st.ByType[e.Type]++
		st.ContentBytes += int64(len(e.Content))
		if e.IsEncrypted {
			st.Encrypted++
		}
	}
	return st, nil
}

// Close releases the embedded database.
func (b *VectorBackend) Close() error { return nil }

func sortByUpdatedDesc(entries []model.MemoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Metadata.UpdatedAt.After(entries[j].Metadata.UpdatedAt)
	})
}
