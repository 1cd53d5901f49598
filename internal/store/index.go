package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
	"github.com/localmem/memdex/internal/trigger"
)

// summaryMaxRunes bounds the stored summary derived from content.
const summaryMaxRunes = 500

// IndexParams describes one memory artifact to index. The artifact itself
// stays in the caller-owned file at FilePath; the store only indexes it.
type IndexParams struct {
	SpecFolder string
	FilePath   string
	Title      string
	Content    string
	// TriggerPhrases overrides automatic extraction when non-empty.
	TriggerPhrases []string
	Tier           string
	ContextType    string
	Channel        string
	SessionID      string
}

// Index creates a memory record for an artifact, extracts trigger phrases,
// populates full-text search, and generates the embedding. The record is
// durable before embedding starts: a failed generation leaves it in retry
// state, findable by full-text search in the meantime. Indexing an already
// indexed FilePath returns ErrDuplicatePath and leaves the first record
// unchanged.
func (s *Store) Index(ctx context.Context, p IndexParams) (*model.Memory, error) {
	if strings.TrimSpace(p.SpecFolder) == "" {
		return nil, fmt.Errorf("%w: spec folder is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.FilePath) == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidInput)
	}
	if p.Tier == "" {
		p.Tier = model.TierNormal
	}
	if !model.ValidTiers[p.Tier] {
		return nil, fmt.Errorf("%w: unknown importance tier %q", ErrInvalidInput, p.Tier)
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = deriveTitle(p.Content)
	}
	summary := deriveSummary(p.Content)

	phrases := p.TriggerPhrases
	if len(phrases) == 0 {
		phrases = trigger.Extract(title+" "+p.Content, s.cfg.Trigger.MaxPhrases)
	}

	ts := now()
	triggersJSON, err := encodeTriggers(phrases)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO memories (spec_folder, file_path, title, summary, trigger_phrases,
			importance_tier, context_type, channel, session_id,
			embedding_status, created_at_epoch, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		p.SpecFolder, p.FilePath, title, summary, triggersJSON,
		p.Tier, p.ContextType, p.Channel, p.SessionID,
		ts.Unix(), fmtTime(ts),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, p.FilePath)
	}
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := upsertFTS(tx, s.ftsAvailable, id, title, summary, phrases); err != nil {
		return nil, err
	}

	created, _ := json.Marshal(map[string]any{
		"spec_folder": p.SpecFolder,
		"file_path":   p.FilePath,
		"title":       title,
		"tier":        p.Tier,
	})
	if err := appendHistory(tx, id, "create", "", string(created)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("indexed memory", "id", id, "folder", p.SpecFolder, "path", p.FilePath)

	// Embedding generation runs outside the insert transaction: a slow or
	// failing provider must not hold the write lock or roll back the record.
	if s.embedder != nil {
		s.embed(ctx, id, embedText(title, summary, phrases))
	}

	return s.Load(ctx, LoadParams{ID: id, SkipAccessCount: true})
}

func deriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	return embedding.Truncate(line, 120)
}

func deriveSummary(content string) string {
	return embedding.Truncate(strings.TrimSpace(content), summaryMaxRunes)
}

// embedText is the canonical embedding input for a record. Keeping it a pure
// function of stored fields makes regeneration reproducible.
func embedText(title, summary string, phrases []string) string {
	parts := []string{title, summary}
	if len(phrases) > 0 {
		parts = append(parts, strings.Join(phrases, ", "))
	}
	return strings.Join(parts, "\n")
}

// upsertFTS replaces a memory's full-text row. A no-op when FTS5 is
// unavailable.
func upsertFTS(tx *sql.Tx, ftsAvailable bool, id int64, title, summary string, phrases []string) error {
	if !ftsAvailable {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM memories_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("fts delete: %w", err)
	}
	_, err := tx.Exec(
		`INSERT INTO memories_fts (rowid, title, summary, triggers) VALUES (?, ?, ?, ?)`,
		id, title, summary, strings.Join(phrases, " "),
	)
	if err != nil {
		return fmt.Errorf("fts insert: %w", err)
	}
	return nil
}

// embed runs one generation attempt for a record and applies the retry state
// machine transition. Attempt failures are recorded, never returned: the
// record stays usable and a later retry pass picks it up.
func (s *Store) embed(ctx context.Context, id int64, text string) {
	vec, genErr := embedding.Generate(ctx, s.embedder, text,
		s.cfg.Embedder.MaxInputRunes, s.cfg.EmbedTimeout())

	if err := s.applyEmbedOutcome(ctx, id, vec, genErr); err != nil {
		s.logger.Error("record embedding outcome", "id", id, "error", err)
	}
}

// applyEmbedOutcome persists the result of one generation attempt. On success
// the vector is stored and the record marked success with its retry count
// preserved; on failure the retry state machine decides between another
// scheduled retry and terminal failed.
func (s *Store) applyEmbedOutcome(ctx context.Context, id int64, vec embedding.Vector, genErr error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var retryCount int
	var status string
	err = tx.QueryRow(`SELECT retry_count, embedding_status FROM memories WHERE id = ?`, id).
		Scan(&retryCount, &status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	ts := now()
	outcome := model.OutcomeSuccess
	if genErr != nil {
		outcome = model.OutcomeTransientFailure
	}
	tr := s.policy.Next(retryCount, outcome, ts)

	if genErr == nil {
		raw, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO memory_vectors (memory_id, dims, embedding) VALUES (?, ?, ?)
			 ON CONFLICT(memory_id) DO UPDATE SET dims = excluded.dims, embedding = excluded.embedding`,
			id, len(vec), string(raw),
		)
		if err != nil {
			return fmt.Errorf("store vector: %w", err)
		}
		_, err = tx.Exec(
			`UPDATE memories SET embedding_status = ?, failure_reason = '',
			 next_attempt_at = NULL, updated_at = ? WHERE id = ?`,
			tr.Status, fmtTime(ts), id,
		)
		if err != nil {
			return err
		}
	} else {
		_, err = tx.Exec(
			`UPDATE memories SET embedding_status = ?, retry_count = ?, last_retry_at = ?,
			 next_attempt_at = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
			tr.Status, tr.RetryCount, fmtTime(ts),
			fmtTimePtr(tr.NextAttemptAt), genErr.Error(), fmtTime(ts), id,
		)
		if err != nil {
			return err
		}
	}

	change, _ := json.Marshal(map[string]any{
		"status":      tr.Status,
		"retry_count": tr.RetryCount,
	})
	if err := appendHistory(tx, id, "embed", status, string(change)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if genErr == nil {
		s.invalidateVectorCache()
		s.logger.Debug("embedding stored", "id", id, "dims", len(vec))
	} else {
		s.logger.Warn("embedding attempt failed", "id", id,
			"status", tr.Status, "retry_count", tr.RetryCount, "error", genErr)
	}
	return nil
}
