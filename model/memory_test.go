package model

import (
	"errors"
	"testing"
	"time"
)

func validEntry() *MemoryEntry {
	now := time.Now().UTC()
	return &MemoryEntry{
		ID:          "01TEST",
		UserID:      "alice",
		Type:        TypeWorking,
		Key:         "k",
		Content:     "hello",
		ContentHash: HashContent("hello"),
		Version:     1,
		Metadata: MemoryMetadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			Priority:    PriorityNormal,
			AccessLevel: AccessPrivate,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MemoryEntry)
		ok     bool
	}{
		{"valid", func(e *MemoryEntry) {}, true},
		{"missing user", func(e *MemoryEntry) { e.UserID = "" }, false},
		{"missing key", func(e *MemoryEntry) { e.Key = "" }, false},
		{"bad type", func(e *MemoryEntry) { e.Type = "episodic" }, false},
		{"bad priority", func(e *MemoryEntry) { e.Metadata.Priority = "urgent" }, false},
		{"bad access level", func(e *MemoryEntry) { e.Metadata.AccessLevel = "secret" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(e)
			err := e.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
			}
		})
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityLow.Rank() != 0 || PriorityCritical.Rank() != 3 {
		t.Error("priority ranks out of order")
	}
	if Priority("bogus").Rank() != -1 {
		t.Error("unknown priority should rank -1")
	}
	if PriorityNormal.Rank() >= PriorityHigh.Rank() {
		t.Error("normal should rank below high")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	e := validEntry()
	if e.Expired(now) {
		t.Error("entry without expiry should not be expired")
	}

	past := now.Add(-time.Minute)
	e.Metadata.ExpiresAt = &past
	if !e.Expired(now) {
		t.Error("entry past its expiry should be expired")
	}

	future := now.Add(time.Minute)
	e.Metadata.ExpiresAt = &future
	if e.Expired(now) {
		t.Error("entry before its expiry should not be expired")
	}
}

func TestRequiresEncryption(t *testing.T) {
	tests := []struct {
		t    MemoryType
		p    Priority
		want bool
	}{
		{TypeSession, PriorityNormal, false},
		{TypeSession, PriorityHigh, true},
		{TypeSession, PriorityCritical, true},
		{TypeWorking, PriorityLow, true},
		{TypePreference, PriorityNormal, true},
		{TypeLongTerm, PriorityNormal, true},
		{TypePattern, PriorityLow, true},
	}
	for _, tt := range tests {
		e := validEntry()
		e.Type = tt.t
		e.Metadata.Priority = tt.p
		if got := e.RequiresEncryption(); got != tt.want {
			t.Errorf("%s/%s: expected %v, got %v", tt.t, tt.p, tt.want, got)
		}
	}
}

func TestHashContentStable(t *testing.T) {
	a := HashContent("same")
	b := HashContent("same")
	if a != b {
		t.Error("hash should be deterministic")
	}
	if a == HashContent("different") {
		t.Error("different content should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
