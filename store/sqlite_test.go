package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tbh-ai/secure-agent-memory/logger"
	"github.com/tbh-ai/secure-agent-memory/model"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	dir := t.TempDir()
	b, err := NewSQLiteBackend(filepath.Join(dir, "test.db"), logger.Nop())
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func testEntry(userID, key string, t model.MemoryType, content string) *model.MemoryEntry {
	now := time.Now().UTC()
	return &model.MemoryEntry{
		UserID:      userID,
		Type:        t,
		Key:         key,
		Content:     content,
		ContentHash: model.HashContent(content),
		Version:     1,
		Metadata: model.MemoryMetadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			AccessedAt:  now,
			Priority:    model.PriorityNormal,
			AccessLevel: model.AccessPrivate,
		},
	}
}

func TestStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	e := testEntry("alice", "greeting", model.TypeWorking, "hello world")
	res := b.Store(ctx, e, e.Content, nil)
	if !res.Success {
		t.Fatalf("store: %s", res.Message)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.Version != 1 {
		t.Errorf("expected version 1, got %d", e.Version)
	}

	got, err := b.Retrieve(ctx, "alice", "greeting", model.TypeWorking)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.Content != "hello world" {
		t.Errorf("expected 'hello world', got %q", got.Content)
	}
	if got.Metadata.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", got.Metadata.AccessCount)
	}

	got2, err := b.Retrieve(ctx, "alice", "greeting", model.TypeWorking)
	if err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if got2.Metadata.AccessCount != 2 {
		t.Errorf("expected access_count 2, got %d", got2.Metadata.AccessCount)
	}
}

func TestStoreReplacesAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	e1 := testEntry("alice", "k", model.TypeWorking, "v1")
	b.Store(ctx, e1, e1.Content, nil)

	e2 := testEntry("alice", "k", model.TypeWorking, "v2")
	res := b.Store(ctx, e2, e2.Content, nil)
	if !res.Success {
		t.Fatalf("replace: %s", res.Message)
	}
	if e2.Version != 2 {
		t.Errorf("expected version 2, got %d", e2.Version)
	}
	if e2.ID != e1.ID {
		t.Error("replacement should keep the original ID")
	}

	got, err := b.Retrieve(ctx, "alice", "k", model.TypeWorking)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.Content != "v2" || got.Version != 2 {
		t.Errorf("expected v2/version 2, got %q/%d", got.Content, got.Version)
	}
}

func TestSameKeyDifferentTypes(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	s := testEntry("alice", "k", model.TypeSession, "session data")
	w := testEntry("alice", "k", model.TypeWorking, "working data")
	b.Store(ctx, s, s.Content, nil)
	b.Store(ctx, w, w.Content, nil)

	gotS, err := b.Retrieve(ctx, "alice", "k", model.TypeSession)
	if err != nil {
		t.Fatalf("retrieve session: %v", err)
	}
	gotW, err := b.Retrieve(ctx, "alice", "k", model.TypeWorking)
	if err != nil {
		t.Fatalf("retrieve working: %v", err)
	}
	if gotS.Content == gotW.Content {
		t.Error("same key under different types should be distinct entries")
	}
	if gotS.Version != 1 || gotW.Version != 1 {
		t.Error("distinct triples should not bump each other's versions")
	}
}

func TestRetrieveNotFound(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Retrieve(ctx, "alice", "missing", model.TypeWorking)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchFullText(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	a := testEntry("alice", "a", model.TypeWorking, "deploy instructions for the staging cluster")
	c := testEntry("alice", "b", model.TypePreference, "prefers dark mode in every editor")
	b.Store(ctx, a, a.Content, nil)
	b.Store(ctx, c, c.Content, nil)

	res := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: "staging cluster"})
	if !res.Success {
		t.Fatalf("search: %s", res.Message)
	}
	if len(res.Entries) != 1 || res.Entries[0].Key != "a" {
		t.Fatalf("expected key 'a', got %+v", res.Entries)
	}
}

func TestSearchOverCiphertextUsesProjection(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	// Content is ciphertext; the plaintext projection is passed separately.
	e := testEntry("alice", "secret", model.TypeLongTerm, "gcm:1:AAAA")
	e.IsEncrypted = true
	e.Metadata.EncryptionMethod = "aes256-gcm"
	res := b.Store(ctx, e, "anniversary dinner reservation", nil)
	if !res.Success {
		t.Fatalf("store: %s", res.Message)
	}

	found := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: "anniversary"})
	if len(found.Entries) != 1 {
		t.Fatalf("expected 1 match via projection, got %d", len(found.Entries))
	}
	if !found.Entries[0].IsEncrypted || found.Entries[0].Content != "gcm:1:AAAA" {
		t.Error("search must return the stored ciphertext untouched")
	}

	none := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: "gcm"})
	if len(none.Entries) != 0 {
		t.Error("ciphertext itself must not be searchable")
	}
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	low := testEntry("alice", "low", model.TypeWorking, "minor note")
	low.Metadata.Priority = model.PriorityLow
	high := testEntry("alice", "high", model.TypeLongTerm, "important fact")
	high.Metadata.Priority = model.PriorityHigh
	tagged := testEntry("alice", "tagged", model.TypeWorking, "infra runbook")
	tagged.Tags = []string{"infra"}
	other := testEntry("bob", "b", model.TypeWorking, "bob data")

	for _, e := range []*model.MemoryEntry{low, high, tagged, other} {
		b.Store(ctx, e, e.Content, nil)
	}

	byUser := b.Search(ctx, model.MemorySearchQuery{UserID: "alice"})
	if len(byUser.Entries) != 3 {
		t.Errorf("expected 3 for alice, got %d", len(byUser.Entries))
	}

	byType := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Types: []model.MemoryType{model.TypeLongTerm}})
	if len(byType.Entries) != 1 || byType.Entries[0].Key != "high" {
		t.Errorf("type filter failed: %+v", byType.Entries)
	}

	byPriority := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", MinPriority: model.PriorityHigh})
	if len(byPriority.Entries) != 1 || byPriority.Entries[0].Key != "high" {
		t.Errorf("priority filter failed: %+v", byPriority.Entries)
	}

	byTag := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Tags: []string{"infra"}})
	if len(byTag.Entries) != 1 || byTag.Entries[0].Key != "tagged" {
		t.Errorf("tag filter failed: %+v", byTag.Entries)
	}
}

func TestSearchLimitAndHasMore(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	for _, k := range []string{"a", "b", "c"} {
		e := testEntry("alice", k, model.TypeWorking, "content "+k)
		b.Store(ctx, e, e.Content, nil)
	}

	res := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Limit: 2})
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2, got %d", len(res.Entries))
	}
	if !res.HasMore {
		t.Error("expected HasMore with a third row left")
	}
}

func TestSearchInjectionSafe(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	e := testEntry("alice", "k", model.TypeWorking, "plain text")
	b.Store(ctx, e, e.Content, nil)

	// FTS operators and quotes in user text must not break the query.
	for _, q := range []string{`"unbalanced`, `a OR b`, `text NEAR(x)`, `col:val`} {
		res := b.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: q})
		if !res.Success {
			t.Errorf("query %q should not error: %s", q, res.Message)
		}
	}
}

func TestExpiryFiltering(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	past := time.Now().UTC().Add(-time.Minute)
	dead := testEntry("alice", "dead", model.TypeSession, "expired data")
	dead.Metadata.ExpiresAt = &past
	alive := testEntry("alice", "alive", model.TypeSession, "fresh data")
	b.Store(ctx, dead, dead.Content, nil)
	b.Store(ctx, alive, alive.Content, nil)

	if _, err := b.Retrieve(ctx, "alice", "dead", model.TypeSession); err == nil {
		t.Error("expired entry should be absent on retrieve")
	}
	res := b.Search(ctx, model.MemorySearchQuery{UserID: "alice"})
	if len(res.Entries) != 1 || res.Entries[0].Key != "alive" {
		t.Errorf("expired entry leaked into search: %+v", res.Entries)
	}

	cleaned := b.CleanupExpired(ctx, "alice")
	if !cleaned.Success || cleaned.AffectedCount != 1 {
		t.Errorf("expected 1 cleaned, got %+v", cleaned)
	}
	// Second pass finds nothing.
	again := b.CleanupExpired(ctx, "alice")
	if again.AffectedCount != 0 {
		t.Errorf("expected 0 on second cleanup, got %d", again.AffectedCount)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	e := testEntry("alice", "k", model.TypeWorking, "data")
	b.Store(ctx, e, e.Content, nil)

	res := b.Delete(ctx, "alice", "k", model.TypeWorking)
	if !res.Success {
		t.Fatalf("delete: %s", res.Message)
	}
	if _, err := b.Retrieve(ctx, "alice", "k", model.TypeWorking); err == nil {
		t.Error("expected not found after delete")
	}

	missing := b.Delete(ctx, "alice", "k", model.TypeWorking)
	if missing.Success {
		t.Error("deleting a missing entry should fail")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	w := testEntry("alice", "a", model.TypeWorking, "12345")
	enc := testEntry("alice", "b", model.TypeLongTerm, "ciphertext")
	enc.IsEncrypted = true
	other := testEntry("bob", "c", model.TypeWorking, "bob")
	for _, e := range []*model.MemoryEntry{w, enc, other} {
		b.Store(ctx, e, e.Content, nil)
	}

	st, err := b.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalEntries != 2 {
		t.Errorf("expected 2 entries, got %d", st.TotalEntries)
	}
	if st.ByType[model.TypeWorking] != 1 || st.ByType[model.TypeLongTerm] != 1 {
		t.Errorf("by-type counts wrong: %+v", st.ByType)
	}
	if st.Encrypted != 1 {
		t.Errorf("expected 1 encrypted, got %d", st.Encrypted)
	}
	if st.ContentBytes == 0 {
		t.Error("expected non-zero content bytes")
	}
}

func TestInitializeCreatesFTSTriggers(t *testing.T) {
	b := newTestBackend(t)

	// Re-running migrations must not error on existing objects.
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	for _, name := range []string{"search_ai", "search_ad", "search_au"} {
		var got string
		err := b.db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'trigger' AND name = ?`, name,
		).Scan(&got)
		if err != nil {
			t.Errorf("trigger %s missing: %v", name, err)
		}
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	b, err := NewSQLiteBackend(dbPath, logger.Nop())
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	b.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
