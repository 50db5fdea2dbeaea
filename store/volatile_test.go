package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tbh-ai/secure-agent-memory/model"
)

func TestVolatileStoreRetrieve(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	e := testEntry("alice", "k", model.TypeSession, "hello")
	res := v.Store(ctx, e, e.Content, nil)
	if !res.Success {
		t.Fatalf("store: %s", res.Message)
	}

	got, err := v.Retrieve(ctx, "alice", "k", model.TypeSession)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("expected 'hello', got %q", got.Content)
	}
	if got.Metadata.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", got.Metadata.AccessCount)
	}

	if _, err := v.Retrieve(ctx, "alice", "k", model.TypeWorking); err == nil {
		t.Error("different type should not resolve the key")
	}
}

func TestVolatileReplaceBumpsVersion(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	e1 := testEntry("alice", "k", model.TypeSession, "v1")
	v.Store(ctx, e1, e1.Content, nil)
	e2 := testEntry("alice", "k", model.TypeSession, "v2")
	v.Store(ctx, e2, e2.Content, nil)

	if e2.Version != 2 {
		t.Errorf("expected version 2, got %d", e2.Version)
	}
	if e2.ID != e1.ID {
		t.Error("replacement should keep the ID")
	}
}

func TestVolatileSearchProjection(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	enc := testEntry("alice", "secret", model.TypeLongTerm, "CIPHERTEXT")
	enc.IsEncrypted = true
	v.Store(ctx, enc, "weekend hiking plan", nil)

	res := v.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: "Hiking"})
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 match (case-insensitive projection), got %d", len(res.Entries))
	}
	if res.Entries[0].Content != "CIPHERTEXT" {
		t.Error("search must return stored content unchanged")
	}

	none := v.Search(ctx, model.MemorySearchQuery{UserID: "alice", Text: "CIPHERTEXT"})
	if len(none.Entries) != 0 {
		t.Error("content must not be searchable when a projection was supplied")
	}
}

func TestVolatileEviction(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(2)

	for _, k := range []string{"first", "second", "third"} {
		e := testEntry("alice", k, model.TypeSession, k)
		v.Store(ctx, e, e.Content, nil)
		// Creation times must differ for deterministic eviction order.
		time.Sleep(2 * time.Millisecond)
	}

	if _, err := v.Retrieve(ctx, "alice", "first", model.TypeSession); err == nil {
		t.Error("oldest entry should have been evicted")
	}
	if _, err := v.Retrieve(ctx, "alice", "third", model.TypeSession); err != nil {
		t.Errorf("newest entry should survive: %v", err)
	}
}

func TestVolatileExpiry(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	past := time.Now().UTC().Add(-time.Second)
	e := testEntry("alice", "k", model.TypeSession, "gone")
	e.Metadata.ExpiresAt = &past
	v.Store(ctx, e, e.Content, nil)

	if _, err := v.Retrieve(ctx, "alice", "k", model.TypeSession); err == nil {
		t.Error("expired entry should be absent")
	}

	res := v.CleanupExpired(ctx, "alice")
	if res.AffectedCount != 1 {
		t.Errorf("expected 1 removed, got %d", res.AffectedCount)
	}
}

func TestVolatileUserIsolation(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	a := testEntry("alice", "k", model.TypeSession, "alice data")
	b := testEntry("bob", "k", model.TypeSession, "bob data")
	v.Store(ctx, a, a.Content, nil)
	v.Store(ctx, b, b.Content, nil)

	res := v.Search(ctx, model.MemorySearchQuery{UserID: "alice"})
	if len(res.Entries) != 1 || res.Entries[0].Content != "alice data" {
		t.Errorf("expected only alice's entry, got %+v", res.Entries)
	}
}

func TestVolatileConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	var wg sync.WaitGroup
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e := testEntry(user, "k", model.TypeSession, "data")
				v.Store(ctx, e, e.Content, nil)
				v.Retrieve(ctx, user, "k", model.TypeSession)
			}
		}(u)
	}
	wg.Wait()

	for _, u := range users {
		if _, err := v.Retrieve(ctx, u, "k", model.TypeSession); err != nil {
			t.Errorf("user %s entry missing after concurrent writes: %v", u, err)
		}
	}
}

func TestVolatileStats(t *testing.T) {
	ctx := context.Background()
	v := NewVolatileBackend(0)

	e1 := testEntry("alice", "a", model.TypeSession, "123")
	e2 := testEntry("alice", "b", model.TypeWorking, "4567")
	e2.IsEncrypted = true
	v.Store(ctx, e1, e1.Content, nil)
	v.Store(ctx, e2, e2.Content, nil)

	st, err := v.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalEntries != 2 || st.Encrypted != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.ContentBytes != 7 {
		t.Errorf("expected 7 content bytes, got %d", st.ContentBytes)
	}
}
