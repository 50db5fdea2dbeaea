// Package model defines the core memory data types shared by every subsystem.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MemoryType classifies an entry and governs its retention, encryption
// and default access rules.
type MemoryType string

const (
	TypeSession    MemoryType = "session"
	TypeWorking    MemoryType = "working"
	TypePreference MemoryType = "preference"
	TypeLongTerm   MemoryType = "long_term"
	TypePattern    MemoryType = "pattern"
)

// AllMemoryTypes lists every valid memory type. Order is stable and used
// when an operation must probe types for an unqualified key.
var AllMemoryTypes = []MemoryType{TypeSession, TypeWorking, TypePreference, TypeLongTerm, TypePattern}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeSession, TypeWorking, TypePreference, TypeLongTerm, TypePattern:
		return true
	}
	return false
}

// Priority is the importance level of an entry. High and critical entries
// are always encrypted at rest.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the ordinal position of p in the priority lattice,
// low=0 through critical=3. Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// AccessLevel labels who may read an entry beyond its owner.
type AccessLevel string

const (
	AccessPublic  AccessLevel = "public"
	AccessPrivate AccessLevel = "private"
	AccessShared  AccessLevel = "shared"
	AccessSystem  AccessLevel = "system"
)

// Valid reports whether a is a known access level.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessPublic, AccessPrivate, AccessShared, AccessSystem:
		return true
	}
	return false
}

// MemoryMetadata carries the bookkeeping attached to every entry.
type MemoryMetadata struct {
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	AccessedAt       time.Time   `json:"accessed_at"`
	AccessCount      int         `json:"access_count"`
	Priority         Priority    `json:"priority"`
	AccessLevel      AccessLevel `json:"access_level"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
	EncryptionMethod string      `json:"encryption_method,omitempty"`
}

// MemoryEntry is the persisted unit. Content may hold ciphertext when
// IsEncrypted is set; ContentHash is always the digest of the plaintext
// taken at creation.
type MemoryEntry struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        MemoryType     `json:"memory_type"`
	Key         string         `json:"key"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Tags        []string       `json:"tags,omitempty"`
	Version     int            `json:"version"`
	IsEncrypted bool           `json:"is_encrypted"`
	Metadata    MemoryMetadata `json:"metadata"`
}

// HashContent returns the SHA-256 hex digest of plaintext content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Validate checks the mandatory entry invariants.
func (e *MemoryEntry) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if e.Key == "" {
		return fmt.Errorf("%w: key is required", ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrValidation, e.Type)
	}
	if !e.Metadata.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, e.Metadata.Priority)
	}
	if !e.Metadata.AccessLevel.Valid() {
		return fmt.Errorf("%w: unknown access level %q", ErrValidation, e.Metadata.AccessLevel)
	}
	return nil
}

// Expired reports whether the entry is logically absent at the given time.
func (e *MemoryEntry) Expired(now time.Time) bool {
	return e.Metadata.ExpiresAt != nil && !e.Metadata.ExpiresAt.After(now)
}

// RequiresEncryption reports whether the entry's type and priority mandate
// encryption at rest. Session memory stays plaintext by default; everything
// else is encrypted, with high/critical forcing it regardless of type.
func (e *MemoryEntry) RequiresEncryption() bool {
	if e.Metadata.Priority == PriorityHigh || e.Metadata.Priority == PriorityCritical {
		return true
	}
	switch e.Type {
	case TypeWorking, TypePreference, TypeLongTerm, TypePattern:
		return true
	}
	return false
}
