// Package store implements the SQLite-backed memory index: records, FTS5 and
// vector search, the embedding retry lifecycle, history, and checkpoints.
// Everything lives in a single database file so the whole index can be copied
// or backed up as one artifact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/localmem/memdex/internal/config"
	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
)

// Backend modes, from full hybrid down to nothing usable.
const (
	BackendHybrid     = "hybrid"
	BackendVectorOnly = "vector-only"
	BackendFTSOnly    = "fts-only"
	BackendNone       = "none"
)

// Store is a SQLite-backed memory index.
type Store struct {
	db       *sql.DB
	path     string
	embedder embedding.Embedder
	cfg      *config.Config
	logger   *slog.Logger
	policy   model.RetryPolicy

	// FTS5 support is probed once at open; without it search degrades to
	// vector-only and indexing skips the FTS table.
	ftsAvailable bool

	entropy *rand.Rand

	// Vector similarity is computed in-process over a cache of all stored
	// vectors. The cache is invalidated on any write that touches vectors.
	vecMu     sync.Mutex
	vecCache  []vecEntry
	vecLoaded bool
}

type vecEntry struct {
	memoryID     int64
	specFolder   string
	createdEpoch int64
	vector       embedding.Vector
}

// Open opens (creating if needed) the database at cfg.DBPath and runs
// migrations. A nil embedder disables vector search; the store still indexes
// and serves full-text queries.
func Open(cfg *config.Config, embedder embedding.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := cfg.DBPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:       db,
		path:     cfg.DBPath,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		policy:   cfg.RetryPolicy(),
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if !s.ftsAvailable {
		logger.Warn("fts5 unavailable, full-text search disabled", "backend", s.Backend())
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backend reports the active search backend mode.
func (s *Store) Backend() string {
	switch {
	case s.ftsAvailable && s.embedder != nil:
		return BackendHybrid
	case s.embedder != nil:
		return BackendVectorOnly
	case s.ftsAvailable:
		return BackendFTSOnly
	default:
		return BackendNone
	}
}

// Degraded reports whether one or both search engines are unavailable.
func (s *Store) Degraded() bool {
	return s.Backend() != BackendHybrid
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	spec_folder      TEXT NOT NULL,
	file_path        TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL DEFAULT '',
	summary          TEXT NOT NULL DEFAULT '',
	trigger_phrases  TEXT,
	importance_tier  TEXT NOT NULL DEFAULT 'normal',
	context_type     TEXT NOT NULL DEFAULT '',
	channel          TEXT NOT NULL DEFAULT '',
	session_id       TEXT NOT NULL DEFAULT '',
	access_count     INTEGER NOT NULL DEFAULT 0,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	retry_count      INTEGER NOT NULL DEFAULT 0,
	last_retry_at    TEXT,
	next_attempt_at  TEXT,
	failure_reason   TEXT NOT NULL DEFAULT '',
	created_at_epoch INTEGER NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_folder ON memories(spec_folder);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(embedding_status);
CREATE INDEX IF NOT EXISTS idx_memories_tier   ON memories(importance_tier);

CREATE TABLE IF NOT EXISTS memory_vectors (
	memory_id INTEGER PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	dims      INTEGER NOT NULL,
	embedding TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_id  INTEGER NOT NULL,
	action     TEXT NOT NULL,
	old_values TEXT NOT NULL DEFAULT '',
	new_values TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_memory ON history(memory_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	description  TEXT NOT NULL DEFAULT '',
	memory_count INTEGER NOT NULL,
	snapshot     BLOB NOT NULL,
	created_at   TEXT NOT NULL
);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	// The FTS table is created separately: FTS5 may be compiled out, in which
	// case the store runs degraded rather than failing to open.
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts
		USING fts5(title, summary, triggers, tokenize='porter unicode61')`)
	s.ftsAvailable = err == nil
	return nil
}

// now returns the current UTC time truncated to seconds, the granularity the
// database stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const memoryColumns = `id, spec_folder, file_path, title, summary, trigger_phrases,
	importance_tier, context_type, channel, session_id, access_count,
	embedding_status, retry_count, last_retry_at, next_attempt_at,
	failure_reason, created_at_epoch, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var triggers sql.NullString
	var lastRetry, nextAttempt sql.NullString
	var createdEpoch int64
	var updated string

	err := row.Scan(
		&m.ID, &m.SpecFolder, &m.FilePath, &m.Title, &m.Summary, &triggers,
		&m.Tier, &m.ContextType, &m.Channel, &m.SessionID, &m.AccessCount,
		&m.Status, &m.RetryCount, &lastRetry, &nextAttempt,
		&m.FailureReason, &createdEpoch, &updated,
	)
	if err != nil {
		return nil, err
	}

	if triggers.Valid && triggers.String != "" {
		if err := json.Unmarshal([]byte(triggers.String), &m.TriggerPhrases); err != nil {
			return nil, fmt.Errorf("memory %d: decode trigger phrases: %w", m.ID, err)
		}
	}
	if m.LastRetryAt, err = parseTimePtr(lastRetry); err != nil {
		return nil, fmt.Errorf("memory %d: parse last_retry_at: %w", m.ID, err)
	}
	if m.NextAttemptAt, err = parseTimePtr(nextAttempt); err != nil {
		return nil, fmt.Errorf("memory %d: parse next_attempt_at: %w", m.ID, err)
	}
	m.CreatedAt = time.Unix(createdEpoch, 0).UTC()
	if m.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("memory %d: parse updated_at: %w", m.ID, err)
	}
	return &m, nil
}

func decodeTriggers(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var phrases []string
	if err := json.Unmarshal(raw, &phrases); err != nil {
		return nil
	}
	return phrases
}

func encodeTriggers(phrases []string) (any, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(phrases)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// appendHistory records an audit entry inside the caller's transaction.
// History is append-only and never consulted for ranking.
func appendHistory(tx *sql.Tx, memoryID int64, action, oldValues, newValues string) error {
	_, err := tx.Exec(
		`INSERT INTO history (memory_id, action, old_values, new_values, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		memoryID, action, oldValues, newValues, fmtTime(now()),
	)
	return err
}

// History returns the audit trail for one memory, oldest first.
func (s *Store) History(ctx context.Context, memoryID int64) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memory_id, action, old_values, new_values, created_at
		 FROM history WHERE memory_id = ? ORDER BY id`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.Action, &e.OldValues, &e.NewValues, &created); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("history %d: parse created_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// invalidateVectorCache drops the in-memory vector cache; the next vector
// search reloads it from the database.
func (s *Store) invalidateVectorCache() {
	s.vecMu.Lock()
	s.vecCache = nil
	s.vecLoaded = false
	s.vecMu.Unlock()
}

// loadVectorCache returns the cached vectors, loading them on first use.
func (s *Store) loadVectorCache(ctx context.Context) ([]vecEntry, error) {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()

	if s.vecLoaded {
		return s.vecCache, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT v.memory_id, m.spec_folder, m.created_at_epoch, v.embedding
		 FROM memory_vectors v
		 JOIN memories m ON m.id = v.memory_id
		 WHERE m.embedding_status = 'success'`)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var cache []vecEntry
	for rows.Next() {
		var e vecEntry
		var raw string
		if err := rows.Scan(&e.memoryID, &e.specFolder, &e.createdEpoch, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.vector); err != nil {
			s.logger.Warn("skipping undecodable vector", "memory_id", e.memoryID, "error", err)
			continue
		}
		cache = append(cache, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.vecCache = cache
	s.vecLoaded = true
	return cache, nil
}
