// Package memory is the public façade: every store, retrieve, update,
// delete, list and search passes through content validation, access
// control and optional encryption, with the outcome audited.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/access"
	"github.com/tbh-ai/secure-agent-memory/audit"
	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/encryption"
	"github.com/tbh-ai/secure-agent-memory/logger"
	"github.com/tbh-ai/secure-agent-memory/model"
	"github.com/tbh-ai/secure-agent-memory/security"
	"github.com/tbh-ai/secure-agent-memory/store"
	"github.com/tbh-ai/secure-agent-memory/validator"
)

// previewLength bounds the content excerpt returned by List.
const previewLength = 120

// Manager coordinates the security manager and the storage backend.
// Construct with NewManager, then call Initialize before first use.
type Manager struct {
	backend  store.Backend
	security *security.Manager
	cfg      *config.Config
	timeout  time.Duration
	entropy  *rand.Rand
	log      zerolog.Logger
}

// NewManager builds the full stack from configuration: storage backend,
// validator, access controller, encryption manager, audit logger and the
// orchestrating security manager. deep may be nil.
func NewManager(cfg *config.Config, deep validator.DeepValidator) (*Manager, error) {
	log := logger.New("memory")

	backend, err := store.New(cfg, logger.New("store"))
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.NewLogger(cfg.Audit.Dir, cfg.Audit.RingSize, logger.New("audit"))
	if err != nil {
		return nil, err
	}
	enc, err := encryption.NewManager(cfg.Encryption, logger.New("encryption"))
	if err != nil {
		return nil, err
	}

	if !cfg.Security.DeepValidation {
		deep = nil
	}
	val := validator.New(cfg.Limits, deep, cfg.Security.ValidatorTimeout, logger.New("validator"))
	ac := access.NewController(cfg.Audit.HistoryPerUser, logger.New("access"))
	sec := security.NewManager(val, ac, enc, auditLog, cfg.Security.RiskThreshold, logger.New("security"))

	return &Manager{
		backend:  backend,
		security: sec,
		cfg:      cfg,
		timeout:  cfg.Storage.OperationTimeout,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log,
	}, nil
}

// NewManagerWith assembles a manager from pre-built components, used by
// tests and embedders that want custom wiring.
func NewManagerWith(cfg *config.Config, backend store.Backend, sec *security.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		backend:  backend,
		security: sec,
		cfg:      cfg,
		timeout:  cfg.Storage.OperationTimeout,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log,
	}
}

// Initialize prepares the storage backend. Must complete before the first
// operation.
func (m *Manager) Initialize(ctx context.Context) error {
	return m.backend.Initialize(ctx)
}

// Security exposes the security manager for administration and metrics.
func (m *Manager) Security() *security.Manager { return m.security }

// Close releases backend and audit resources.
func (m *Manager) Close() error {
	err := m.backend.Close()
	if cerr := m.security.Audit().Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// StoreOptions carries the optional parts of a store request.
type StoreOptions struct {
	Key     string
	Tags    []string
	TTL     time.Duration
	Context *access.Context
}

// Store validates, optionally encrypts and persists new content, returning
// the entry key. The plaintext search projection is extracted before any
// encryption so full-text search keeps matching the original semantics.
func (m *Manager) Store(ctx context.Context, userID, content string, t model.MemoryType, priority model.Priority, level model.AccessLevel, opts StoreOptions) (string, error) {
	if priority == "" {
		priority = model.PriorityNormal
	}
	if level == "" {
		level = model.AccessPrivate
	}
	if t == "" {
		t = model.TypeWorking
	}

	now := time.Now().UTC()
	entry := &model.MemoryEntry{
		ID:          ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		UserID:      userID,
		Type:        t,
		Key:         opts.Key,
		Content:     content,
		ContentHash: model.HashContent(content),
		Tags:        opts.Tags,
		Version:     1,
		Metadata: model.MemoryMetadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			AccessedAt:  now,
			Priority:    priority,
			AccessLevel: level,
		},
	}
	if entry.Key == "" {
		entry.Key = "mem_" + strings.ToLower(entry.ID)
	}
	if opts.TTL > 0 {
		exp := now.Add(opts.TTL)
		entry.Metadata.ExpiresAt = &exp
	}
	if err := entry.Validate(); err != nil {
		return "", err
	}

	verdict := m.security.ValidateEntry(ctx, entry, model.PermWrite, opts.Context)
	if !verdict.IsSecure {
		// A failed verdict with no stated reason is a validator defect
		// masquerading as a rejection; proceed rather than silently drop
		// the write.
		if verdict.Reason != "" {
			return "", verdictError(verdict)
		}
		m.log.Warn().Str("user", userID).Str("key", entry.Key).
			Msg("validation failed without reason, proceeding")
	}

	// Extract the searchable projection before encryption.
	searchText := entry.Content
	searchTags := append([]string(nil), entry.Tags...)

	if err := m.security.EncryptEntry(entry); err != nil {
		return "", err
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	res := m.backend.Store(sctx, entry, searchText, searchTags)
	if !res.Success {
		return "", fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
	}

	m.security.Audit().LogEvent(model.AuditEvent{
		Type:       model.EventMemoryStored,
		Severity:   model.SeverityLow,
		UserID:     userID,
		MemoryKey:  entry.Key,
		MemoryType: entry.Type,
		Operation:  model.PermWrite,
		Success:    true,
		RiskScore:  verdict.Risk,
	})
	return entry.Key, nil
}

// Retrieve searches for entries matching the query text. Each candidate
// is separately access-checked; search membership does not imply read.
func (m *Manager) Retrieve(ctx context.Context, userID, queryText string, types []model.MemoryType, limit int, reqCtx *access.Context) ([]model.MemoryEntry, error) {
	if qr := m.security.ValidateQuery(userID, queryText); !qr.IsSecure {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, qr.Reason)
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	res := m.backend.Search(sctx, model.MemorySearchQuery{
		UserID: userID,
		Text:   queryText,
		Types:  types,
		Limit:  limit,
	})
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
	}

	var out []model.MemoryEntry
	for i := range res.Entries {
		e := res.Entries[i]
		acc := m.security.CheckAccess(userID, e.Key, e.Type, e.Metadata.AccessLevel, model.PermRead, reqCtx)
		if !acc.IsAllowed {
			continue
		}
		// Decryption failure keeps the entry intact rather than corrupting
		// it; the event is already audited at high severity.
		m.security.DecryptEntry(&e)
		out = append(out, e)
	}

	m.security.Audit().LogEvent(model.AuditEvent{
		Type:      model.EventMemoryRetrieved,
		Severity:  model.SeverityLow,
		UserID:    userID,
		Operation: model.PermSearch,
		Success:   true,
		RiskScore: m.security.UserRisk(userID),
		Details:   map[string]string{"matches": fmt.Sprint(len(out))},
	})
	return out, nil
}

// Get returns the entry for an exact key. An empty memory type probes all
// types in declaration order.
func (m *Manager) Get(ctx context.Context, userID, key string, t model.MemoryType, reqCtx *access.Context) (*model.MemoryEntry, error) {
	types := []model.MemoryType{t}
	if t == "" {
		types = model.AllMemoryTypes
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	for _, mt := range types {
		entry, err := m.backend.Retrieve(sctx, userID, key, mt)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		acc := m.security.CheckAccess(userID, key, entry.Type, entry.Metadata.AccessLevel, model.PermRead, reqCtx)
		if !acc.IsAllowed {
			return nil, accessError(acc)
		}
		if err := m.security.DecryptEntry(entry); err != nil {
			return nil, err
		}
		return entry, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", model.ErrNotFound, userID, key)
}

// Update re-validates new content for an existing entry, bumps its version
// and re-encrypts as required.
func (m *Manager) Update(ctx context.Context, userID, key string, t model.MemoryType, content string, reqCtx *access.Context) error {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	existing, err := m.backend.Retrieve(sctx, userID, key, t)
	if err != nil {
		return err
	}

	acc := m.security.CheckAccess(userID, key, t, existing.Metadata.AccessLevel, model.PermUpdate, reqCtx)
	if !acc.IsAllowed {
		return accessError(acc)
	}

	updated := *existing
	updated.Content = content
	updated.ContentHash = model.HashContent(content)
	updated.IsEncrypted = false
	updated.Metadata.EncryptionMethod = ""

	verdict := m.security.ValidateEntry(ctx, &updated, model.PermUpdate, reqCtx)
	if !verdict.IsSecure && verdict.Reason != "" {
		return verdictError(verdict)
	}

	searchText := updated.Content
	searchTags := append([]string(nil), updated.Tags...)
	if err := m.security.EncryptEntry(&updated); err != nil {
		return err
	}

	// Store replaces the existing triple, bumping the version and
	// refreshing the search projection in one transaction.
	res := m.backend.Store(sctx, &updated, searchText, searchTags)
	if !res.Success {
		return fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
	}

	m.security.Audit().LogEvent(model.AuditEvent{
		Type:       model.EventMemoryUpdated,
		Severity:   model.SeverityLow,
		UserID:     userID,
		MemoryKey:  key,
		MemoryType: t,
		Operation:  model.PermUpdate,
		Success:    true,
		RiskScore:  verdict.Risk,
	})
	return nil
}

// Delete locates the key across memory types (callers do not always know
// the type), access-checks each hit and removes it.
func (m *Manager) Delete(ctx context.Context, userID, key string, t model.MemoryType, reqCtx *access.Context) error {
	types := []model.MemoryType{t}
	if t == "" {
		types = model.AllMemoryTypes
	}

	sctx, cancel := m.opCtx(ctx)
	defer cancel()

	deleted := 0
	for _, mt := range types {
		entry, err := m.backend.Retrieve(sctx, userID, key, mt)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		acc := m.security.CheckAccess(userID, key, mt, entry.Metadata.AccessLevel, model.PermDelete, reqCtx)
		if !acc.IsAllowed {
			return accessError(acc)
		}

		res := m.backend.Delete(sctx, userID, key, mt)
		if !res.Success {
			return fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
		}
		deleted++
		m.security.Audit().LogEvent(model.AuditEvent{
			Type:       model.EventMemoryDeleted,
			Severity:   model.SeverityLow,
			UserID:     userID,
			MemoryKey:  key,
			MemoryType: mt,
			Operation:  model.PermDelete,
			Success:    true,
			RiskScore:  m.security.UserRisk(userID),
		})
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s/%s", model.ErrNotFound, userID, key)
	}
	return nil
}

// EntrySummary is the bounded projection returned by List; full content
// never travels through list responses.
type EntrySummary struct {
	Key         string           `json:"key"`
	Type        model.MemoryType `json:"memory_type"`
	Preview     string           `json:"preview"`
	Tags        []string         `json:"tags,omitempty"`
	Priority    model.Priority   `json:"priority"`
	Version     int              `json:"version"`
	IsEncrypted bool             `json:"is_encrypted"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// List returns summaries of the user's entries, most recently updated
// first. Each entry is access-checked independently.
func (m *Manager) List(ctx context.Context, userID string, types []model.MemoryType, limit int, reqCtx *access.Context) ([]EntrySummary, error) {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	res := m.backend.Search(sctx, model.MemorySearchQuery{
		UserID: userID,
		Types:  types,
		Limit:  limit,
	})
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
	}

	var out []EntrySummary
	for i := range res.Entries {
		e := res.Entries[i]
		acc := m.security.CheckAccess(userID, e.Key, e.Type, e.Metadata.AccessLevel, model.PermRead, reqCtx)
		if !acc.IsAllowed {
			continue
		}

		preview := "[encrypted]"
		if err := m.security.DecryptEntry(&e); err == nil {
			preview = truncatePreview(e.Content, previewLength)
		}
		out = append(out, EntrySummary{
			Key:         e.Key,
			Type:        e.Type,
			Preview:     preview,
			Tags:        e.Tags,
			Priority:    e.Metadata.Priority,
			Version:     e.Version,
			IsEncrypted: e.IsEncrypted,
			UpdatedAt:   e.Metadata.UpdatedAt,
		})
	}
	return out, nil
}

// GrantAccess installs a role preset for the user.
func (m *Manager) GrantAccess(userID, role string) error {
	return m.security.Access().GrantRole(userID, role)
}

// CleanupExpired garbage-collects logically-expired entries.
func (m *Manager) CleanupExpired(ctx context.Context, userID string) (int, error) {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	res := m.backend.CleanupExpired(sctx, userID)
	if !res.Success {
		return 0, fmt.Errorf("%w: %s", model.ErrStorage, res.Message)
	}
	return res.AffectedCount, nil
}

// Stats reports storage statistics.
func (m *Manager) Stats(ctx context.Context, userID string) (*store.Stats, error) {
	sctx, cancel := m.opCtx(ctx)
	defer cancel()
	return m.backend.Stats(sctx, userID)
}

func verdictError(v security.Verdict) error {
	if !v.Access.IsAllowed {
		return accessError(v.Access)
	}
	return fmt.Errorf("%w: %s", model.ErrValidation, v.Reason)
}

func accessError(acc access.Result) error {
	switch {
	case acc.Decision == access.DecisionRequireEscalation:
		return fmt.Errorf("%w: %s", model.ErrEscalationRequired, acc.Reason)
	case acc.RateLimited:
		return fmt.Errorf("%w: %s", model.ErrRateLimited, acc.Reason)
	default:
		return fmt.Errorf("%w: %s", model.ErrAccessDenied, acc.Reason)
	}
}

// truncatePreview bounds s to max bytes without splitting a rune.
func truncatePreview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
