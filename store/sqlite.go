package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// SQLiteBackend implements Backend on an embedded SQLite database with a
// trigger-maintained FTS5 index over the plaintext search projection.
type SQLiteBackend struct {
	db      *sql.DB
	path    string
	entropy *rand.Rand
	log     zerolog.Logger
}

// NewSQLiteBackend opens or creates the database at the given path.
// Initialize must be called before first use.
func NewSQLiteBackend(dbPath string, log zerolog.Logger) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	return &SQLiteBackend{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}, nil
}

func (s *SQLiteBackend) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Initialize creates the schema.
func (s *SQLiteBackend) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		key               TEXT NOT NULL,
		memory_type       TEXT NOT NULL,
		content           TEXT NOT NULL,
		content_hash      TEXT NOT NULL,
		tags              TEXT,
		version           INTEGER NOT NULL DEFAULT 1,
		is_encrypted      INTEGER NOT NULL DEFAULT 0,
		encryption_method TEXT,
		priority          TEXT NOT NULL DEFAULT 'normal',
		access_level      TEXT NOT NULL DEFAULT 'private',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		accessed_at       TEXT NOT NULL,
		access_count      INTEGER NOT NULL DEFAULT 0,
		expires_at        TEXT,
		UNIQUE(user_id, key, memory_type)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at);

	CREATE TABLE IF NOT EXISTS search_index (
		id        TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL REFERENCES memories(id),
		seq       INTEGER NOT NULL,
		text      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_memory ON search_index(memory_id);

	CREATE TABLE IF NOT EXISTS access_log (
		id        TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		operation TEXT NOT NULL,
		at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_access_log_user ON access_log(user_id);

	CREATE TABLE IF NOT EXISTS user_counters (
		user_id     TEXT PRIMARY KEY,
		stores      INTEGER NOT NULL DEFAULT 0,
		reads       INTEGER NOT NULL DEFAULT 0,
		updates     INTEGER NOT NULL DEFAULT 0,
		deletes     INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
		text,
		content=search_index,
		content_rowid=rowid
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", model.ErrStorage, err)
	}

	// FTS5 triggers keep the index in sync with the projection table.
	// A missing trigger would leave writes succeeding while search
	// silently returns nothing, so creation failures are fatal.
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS search_ai AFTER INSERT ON search_index BEGIN
		INSERT INTO search_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,
		`CREATE TRIGGER IF NOT EXISTS search_ad AFTER DELETE ON search_index BEGIN
		INSERT INTO search_fts(search_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	END`,
		`CREATE TRIGGER IF NOT EXISTS search_au AFTER UPDATE ON search_index BEGIN
		INSERT INTO search_fts(search_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		INSERT INTO search_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create fts trigger: %v", model.ErrStorage, err)
		}
	}

	return nil
}

// Store inserts the entry or replaces the existing row for the same
// (user_id, key, memory_type), bumping its version. The projection, access
// log and per-user counters are written in the same transaction.
func (s *SQLiteBackend) Store(ctx context.Context, entry *model.MemoryEntry, searchText string, searchTags []string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Fail(fmt.Sprintf("begin transaction: %v", err))
	}
	defer tx.Rollback()

	var prevID string
	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM memories WHERE user_id = ? AND key = ? AND memory_type = ?`,
		entry.UserID, entry.Key, entry.Type).Scan(&prevID, &prevVersion)

	replacing := err == nil
	if replacing {
		entry.ID = prevID
		entry.Version = prevVersion + 1
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_index WHERE memory_id = ?`, prevID); err != nil {
			return model.Fail(fmt.Sprintf("clear projection: %v", err))
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET content = ?, content_hash = ?, tags = ?, version = ?,
				is_encrypted = ?, encryption_method = ?, priority = ?, access_level = ?,
				updated_at = ?, expires_at = ?
			 WHERE id = ?`,
			entry.Content, entry.ContentHash, tagsJSON(mergeTags(entry.Tags, searchTags)), entry.Version,
			boolInt(entry.IsEncrypted), nullable(entry.Metadata.EncryptionMethod),
			string(entry.Metadata.Priority), string(entry.Metadata.AccessLevel),
			now.Format(time.RFC3339), timePtr(entry.Metadata.ExpiresAt), prevID)
		if err != nil {
			return model.Fail(fmt.Sprintf("replace memory: %v", err))
		}
	} else {
		if entry.ID == "" {
			entry.ID = s.newID()
		}
		entry.Version = 1
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memories (id, user_id, key, memory_type, content, content_hash, tags,
				version, is_encrypted, encryption_method, priority, access_level,
				created_at, updated_at, accessed_at, access_count, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			entry.ID, entry.UserID, entry.Key, entry.Type, entry.Content, entry.ContentHash,
			tagsJSON(mergeTags(entry.Tags, searchTags)), entry.Version,
			boolInt(entry.IsEncrypted), nullable(entry.Metadata.EncryptionMethod),
			string(entry.Metadata.Priority), string(entry.Metadata.AccessLevel),
			now.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339),
			timePtr(entry.Metadata.ExpiresAt))
		if err != nil {
			return model.Fail(fmt.Sprintf("insert memory: %v", err))
		}
	}

	for i, seg := range segmentText(searchText) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_index (id, memory_id, seq, text) VALUES (?, ?, ?, ?)`,
			s.newID(), entry.ID, i, seg); err != nil {
			return model.Fail(fmt.Sprintf("index projection: %v", err))
		}
	}

	if err := s.logAccess(ctx, tx, entry.ID, entry.UserID, "store", now); err != nil {
		return model.Fail(fmt.Sprintf("access log: %v", err))
	}
	if err := s.bumpCounter(ctx, tx, entry.UserID, "stores", len(entry.Content)); err != nil {
		return model.Fail(fmt.Sprintf("counters: %v", err))
	}

	if err := tx.Commit(); err != nil {
		return model.Fail(fmt.Sprintf("commit: %v", err))
	}

	entry.Metadata.UpdatedAt = now
	if !replacing {
		entry.Metadata.CreatedAt = now
	}

	res := model.OK("stored", 1)
	res.Took = time.Since(start)
	return res
}

// Retrieve returns the entry for the exact triple, bumping access counters
// in the same transaction. Expired entries are treated as absent.
func (s *SQLiteBackend) Retrieve(ctx context.Context, userID, key string, t model.MemoryType) (*model.MemoryEntry, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", model.ErrStorage, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectColumns+
		` FROM memories m WHERE m.user_id = ? AND m.key = ? AND m.memory_type = ?
		  AND (m.expires_at IS NULL OR m.expires_at > ?)`,
		userID, key, t, now.Format(time.RFC3339))

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", model.ErrNotFound, userID, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", model.ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, accessed_at = ? WHERE id = ?`,
		now.Format(time.RFC3339), entry.ID); err != nil {
		return nil, fmt.Errorf("%w: access bump: %v", model.ErrStorage, err)
	}
	if err := s.logAccess(ctx, tx, entry.ID, userID, "retrieve", now); err != nil {
		return nil, fmt.Errorf("%w: access log: %v", model.ErrStorage, err)
	}
	if err := s.bumpCounter(ctx, tx, userID, "reads", 0); err != nil {
		return nil, fmt.Errorf("%w: counters: %v", model.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", model.ErrStorage, err)
	}

	entry.Metadata.AccessCount++
	entry.Metadata.AccessedAt = now
	return entry, nil
}

// Search composes the query filters over the primary table and the FTS
// index, most recently updated first.
func (s *SQLiteBackend) Search(ctx context.Context, q model.MemorySearchQuery) model.MemorySearchResult {
	start := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	now := time.Now().UTC().Format(time.RFC3339)
	where := []string{"(m.expires_at IS NULL OR m.expires_at > ?)"}
	args := []interface{}{now}

	if q.UserID != "" {
		where = append(where, "m.user_id = ?")
		args = append(args, q.UserID)
	}
	if len(q.Types) > 0 {
		ph := make([]string, len(q.Types))
		for i, t := range q.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, fmt.Sprintf("m.memory_type IN (%s)", strings.Join(ph, ", ")))
	}
	if q.MinPriority != "" {
		where = append(where, priorityRankSQL+" >= ?")
		args = append(args, q.MinPriority.Rank())
	}
	for _, tag := range q.Tags {
		where = append(where, "m.tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if q.CreatedAfter != nil {
		where = append(where, "m.created_at >= ?")
		args = append(args, q.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if q.CreatedBefore != nil {
		where = append(where, "m.created_at <= ?")
		args = append(args, q.CreatedBefore.UTC().Format(time.RFC3339))
	}
	if q.Text != "" {
		where = append(where, `m.id IN (
			SELECT si.memory_id FROM search_index si
			JOIN search_fts f ON f.rowid = si.rowid
			WHERE search_fts MATCH ?)`)
		args = append(args, ftsQuote(q.Text))
	}

	// Fetch one extra row to detect whether more results exist.
	query := fmt.Sprintf(selectColumns+` FROM memories m WHERE %s
		ORDER BY m.updated_at DESC LIMIT ? OFFSET ?`, strings.Join(where, " AND "))
	args = append(args, limit+1, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.MemorySearchResult{Message: fmt.Sprintf("search: %v", err), Took: time.Since(start)}
	}
	defer rows.Close()

	var entries []model.MemoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return model.MemorySearchResult{Message: fmt.Sprintf("scan: %v", err), Took: time.Since(start)}
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return model.MemorySearchResult{Message: fmt.Sprintf("rows: %v", err), Took: time.Since(start)}
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

// Update rewrites the entry row in place. The projection is refreshed from
// content only for plaintext entries.
func (s *SQLiteBackend) Update(ctx context.Context, entry *model.MemoryEntry) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Fail(fmt.Sprintf("begin transaction: %v", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET content = ?, content_hash = ?, tags = ?, version = ?,
			is_encrypted = ?, encryption_method = ?, priority = ?, access_level = ?,
			updated_at = ?, expires_at = ?
		 WHERE user_id = ? AND key = ? AND memory_type = ?`,
		entry.Content, entry.ContentHash, tagsJSON(entry.Tags), entry.Version,
		boolInt(entry.IsEncrypted), nullable(entry.Metadata.EncryptionMethod),
		string(entry.Metadata.Priority), string(entry.Metadata.AccessLevel),
		now.Format(time.RFC3339), timePtr(entry.Metadata.ExpiresAt),
		entry.UserID, entry.Key, entry.Type)
	if err != nil {
		return model.Fail(fmt.Sprintf("update memory: %v", err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", entry.UserID, entry.Key))
	}

	if !entry.IsEncrypted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_index WHERE memory_id = ?`, entry.ID); err != nil {
			return model.Fail(fmt.Sprintf("clear projection: %v", err))
		}
		for i, seg := range segmentText(entry.Content) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO search_index (id, memory_id, seq, text) VALUES (?, ?, ?, ?)`,
				s.newID(), entry.ID, i, seg); err != nil {
				return model.Fail(fmt.Sprintf("index projection: %v", err))
			}
		}
	}

	if err := s.logAccess(ctx, tx, entry.ID, entry.UserID, "update", now); err != nil {
		return model.Fail(fmt.Sprintf("access log: %v", err))
	}
	if err := s.bumpCounter(ctx, tx, entry.UserID, "updates", 0); err != nil {
		return model.Fail(fmt.Sprintf("counters: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return model.Fail(fmt.Sprintf("commit: %v", err))
	}

	out := model.OK("updated", int(n))
	out.Took = time.Since(start)
	return out
}

// Delete physically removes the entry and its projection.
func (s *SQLiteBackend) Delete(ctx context.Context, userID, key string, t model.MemoryType) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Fail(fmt.Sprintf("begin transaction: %v", err))
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM memories WHERE user_id = ? AND key = ? AND memory_type = ?`,
		userID, key, t).Scan(&id)
	if err == sql.ErrNoRows {
		return model.Fail(fmt.Sprintf("memory not found: %s/%s", userID, key))
	}
	if err != nil {
		return model.Fail(fmt.Sprintf("lookup: %v", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_index WHERE memory_id = ?`, id); err != nil {
		return model.Fail(fmt.Sprintf("clear projection: %v", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return model.Fail(fmt.Sprintf("delete memory: %v", err))
	}
	if err := s.logAccess(ctx, tx, id, userID, "delete", now); err != nil {
		return model.Fail(fmt.Sprintf("access log: %v", err))
	}
	if err := s.bumpCounter(ctx, tx, userID, "deletes", 0); err != nil {
		return model.Fail(fmt.Sprintf("counters: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return model.Fail(fmt.Sprintf("commit: %v", err))
	}

	out := model.OK("deleted", 1)
	out.Took = time.Since(start)
	return out
}

// CleanupExpired physically removes logically-expired rows.
func (s *SQLiteBackend) CleanupExpired(ctx context.Context, userID string) model.MemoryOperationResult {
	start := time.Now()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Fail(fmt.Sprintf("begin transaction: %v", err))
	}
	defer tx.Rollback()

	where := `expires_at IS NOT NULL AND expires_at <= ?`
	args := []interface{}{now}
	if userID != "" {
		where += ` AND user_id = ?`
		args = append(args, userID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_index WHERE memory_id IN (SELECT id FROM memories WHERE `+where+`)`,
		args...); err != nil {
		return model.Fail(fmt.Sprintf("clear projections: %v", err))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE `+where, args...)
	if err != nil {
		return model.Fail(fmt.Sprintf("delete expired: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return model.Fail(fmt.Sprintf("commit: %v", err))
	}

	n, _ := res.RowsAffected()
	out := model.OK("expired entries removed", int(n))
	out.Took = time.Since(start)
	return out
}

// Stats reports storage statistics, optionally scoped to one user.
func (s *SQLiteBackend) Stats(ctx context.Context, userID string) (*Stats, error) {
	st := &Stats{UserID: userID, ByType: make(map[model.MemoryType]int)}

	if info, err := os.Stat(s.path); err == nil {
		st.StorageBytes = info.Size()
	}

	where := `(expires_at IS NULL OR expires_at > ?)`
	args := []interface{}{time.Now().UTC().Format(time.RFC3339)}
	if userID != "" {
		where += ` AND user_id = ?`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_type, COUNT(*), SUM(is_encrypted), SUM(LENGTH(content)),
			MIN(created_at), MAX(updated_at)
		 FROM memories WHERE `+where+` GROUP BY memory_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", model.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var count, encrypted int
		var bytes sql.NullInt64
		var oldest, newest sql.NullString
		if err := rows.Scan(&t, &count, &encrypted, &bytes, &oldest, &newest); err != nil {
			return nil, fmt.Errorf("%w: scan stats: %v", model.ErrStorage, err)
		}
		st.ByType[model.MemoryType(t)] = count
		st.TotalEntries += count
		st.Encrypted += encrypted
		st.ContentBytes += bytes.Int64
		if oldest.Valid {
			if ts, err := time.Parse(time.RFC3339, oldest.String); err == nil {
				if st.OldestCreated == nil || ts.Before(*st.OldestCreated) {
					st.OldestCreated = &ts
				}
			}
		}
		if newest.Valid {
			if ts, err := time.Parse(time.RFC3339, newest.String); err == nil {
				if st.NewestUpdated == nil || ts.After(*st.NewestUpdated) {
					st.NewestUpdated = &ts
				}
			}
		}
	}
	return st, rows.Err()
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) logAccess(ctx context.Context, tx *sql.Tx, memoryID, userID, op string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO access_log (id, memory_id, user_id, operation, at) VALUES (?, ?, ?, ?, ?)`,
		s.newID(), memoryID, userID, op, now.Format(time.RFC3339))
	return err
}

func (s *SQLiteBackend) bumpCounter(ctx context.Context, tx *sql.Tx, userID, column string, contentBytes int) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO user_counters (user_id, %s, total_bytes) VALUES (?, 1, ?)
		 ON CONFLICT(user_id) DO UPDATE SET %s = %s + 1, total_bytes = total_bytes + ?`,
		column, column, column),
		userID, contentBytes, contentBytes)
	return err
}

const selectColumns = `SELECT m.id, m.user_id, m.key, m.memory_type, m.content, m.content_hash,
	m.tags, m.version, m.is_encrypted, m.encryption_method, m.priority, m.access_level,
	m.created_at, m.updated_at, m.accessed_at, m.access_count, m.expires_at`

const priorityRankSQL = `(CASE m.priority
	WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2 WHEN 'critical' THEN 3
	ELSE -1 END)`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.MemoryEntry, error) {
	var e model.MemoryEntry
	var tags, method, expiresAt sql.NullString
	var createdAt, updatedAt, accessedAt string
	var encrypted int

	err := row.Scan(
		&e.ID, &e.UserID, &e.Key, (*string)(&e.Type), &e.Content, &e.ContentHash,
		&tags, &e.Version, &encrypted, &method,
		(*string)(&e.Metadata.Priority), (*string)(&e.Metadata.AccessLevel),
		&createdAt, &updatedAt, &accessedAt, &e.Metadata.AccessCount, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	e.IsEncrypted = encrypted != 0
	if method.Valid {
		e.Metadata.EncryptionMethod = method.String
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &e.Tags)
	}
	e.Metadata.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.Metadata.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	e.Metadata.AccessedAt, _ = time.Parse(time.RFC3339, accessedAt)
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		e.Metadata.ExpiresAt = &t
	}
	return &e, nil
}

func tagsJSON(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	b, _ := json.Marshal(tags)
	s := string(b)
	return &s
}

// mergeTags appends search tags not already present, preserving order.
func mergeTags(tags, extra []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags)+len(extra))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// ftsQuote wraps each whitespace-separated term in double quotes so user
// text is never interpreted as FTS5 query syntax.
func ftsQuote(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}
