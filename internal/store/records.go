package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/localmem/memdex/internal/model"
	"github.com/localmem/memdex/internal/trigger"
)

// LoadParams selects a record by ID or, when ID is zero, by FilePath.
type LoadParams struct {
	ID       int64
	FilePath string
	// SkipAccessCount loads without bumping access_count, for internal reads
	// that are not a real access.
	SkipAccessCount bool
}

// Load retrieves one record and increments its access count. The access count
// feeds the ranking boost, so only deliberate loads count as accesses; search
// appearances do not.
func (s *Store) Load(ctx context.Context, p LoadParams) (*model.Memory, error) {
	var where string
	var arg any
	switch {
	case p.ID != 0:
		where, arg = "id = ?", p.ID
	case p.FilePath != "":
		where, arg = "file_path = ?", p.FilePath
	default:
		return nil, fmt.Errorf("%w: id or file path required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if !p.SkipAccessCount {
		if _, err := tx.Exec(`UPDATE memories SET access_count = access_count + 1 WHERE `+where, arg); err != nil {
			return nil, err
		}
	}

	m, err := scanMemory(tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}

	return m, tx.Commit()
}

// UpdateParams holds the mutable record fields; nil pointers leave a field
// untouched. Setting TriggerPhrases non-nil replaces the stored phrases (an
// empty slice re-extracts from title and summary).
type UpdateParams struct {
	Title          *string
	Summary        *string
	TriggerPhrases []string
	Tier           *string
	ContextType    *string
	Channel        *string
}

// Update mutates a record's metadata, refreshes its full-text row, and
// appends an audit entry. Changing the title or summary invalidates the
// stored vector: the record drops back to pending and is re-embedded
// immediately, or by a later retry sweep when no provider is configured.
func (s *Store) Update(ctx context.Context, id int64, p UpdateParams) (*model.Memory, error) {
	if p.Tier != nil && !model.ValidTiers[*p.Tier] {
		return nil, fmt.Errorf("%w: unknown importance tier %q", ErrInvalidInput, *p.Tier)
	}

	cur, err := s.Load(ctx, LoadParams{ID: id, SkipAccessCount: true})
	if err != nil {
		return nil, err
	}

	next := *cur
	oldVals := map[string]any{}
	newVals := map[string]any{}
	textChanged := false

	if p.Title != nil && *p.Title != cur.Title {
		oldVals["title"], newVals["title"] = cur.Title, *p.Title
		next.Title = *p.Title
		textChanged = true
	}
	if p.Summary != nil && *p.Summary != cur.Summary {
		oldVals["summary"], newVals["summary"] = cur.Summary, *p.Summary
		next.Summary = *p.Summary
		textChanged = true
	}
	if p.Tier != nil && *p.Tier != cur.Tier {
		oldVals["tier"], newVals["tier"] = cur.Tier, *p.Tier
		next.Tier = *p.Tier
	}
	if p.ContextType != nil && *p.ContextType != cur.ContextType {
		oldVals["context_type"], newVals["context_type"] = cur.ContextType, *p.ContextType
		next.ContextType = *p.ContextType
	}
	if p.Channel != nil && *p.Channel != cur.Channel {
		oldVals["channel"], newVals["channel"] = cur.Channel, *p.Channel
		next.Channel = *p.Channel
	}
	if p.TriggerPhrases != nil {
		phrases := p.TriggerPhrases
		if len(phrases) == 0 {
			phrases = trigger.Extract(next.Title+" "+next.Summary, s.cfg.Trigger.MaxPhrases)
		}
		oldVals["trigger_phrases"], newVals["trigger_phrases"] = cur.TriggerPhrases, phrases
		next.TriggerPhrases = phrases
	} else if textChanged {
		// Extracted phrases follow the text they were extracted from.
		if len(cur.TriggerPhrases) > 0 {
			next.TriggerPhrases = trigger.Extract(next.Title+" "+next.Summary, s.cfg.Trigger.MaxPhrases)
		}
	}

	if len(newVals) == 0 && !textChanged {
		return cur, nil
	}

	ts := now()
	triggersJSON, err := encodeTriggers(next.TriggerPhrases)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	status := next.Status
	if textChanged {
		// The stored vector no longer matches the text. Drop it with the
		// status so success always means exactly one matching vector row,
		// even when no provider is configured right now; the retry sweep
		// regenerates the vector once one is.
		status = model.StatusPending
		if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE memory_id = ?`, id); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(
		`UPDATE memories SET title = ?, summary = ?, trigger_phrases = ?,
			importance_tier = ?, context_type = ?, channel = ?,
			embedding_status = ?, updated_at = ?
		 WHERE id = ?`,
		next.Title, next.Summary, triggersJSON,
		next.Tier, next.ContextType, next.Channel,
		status, fmtTime(ts), id,
	)
	if err != nil {
		return nil, err
	}

	if err := upsertFTS(tx, s.ftsAvailable, id, next.Title, next.Summary, next.TriggerPhrases); err != nil {
		return nil, err
	}

	oldJSON, _ := json.Marshal(oldVals)
	newJSON, _ := json.Marshal(newVals)
	if err := appendHistory(tx, id, "update", string(oldJSON), string(newJSON)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("updated memory", "id", id, "reembed", textChanged && s.embedder != nil)

	if textChanged {
		s.invalidateVectorCache()
		if s.embedder != nil {
			s.embed(ctx, id, embedText(next.Title, next.Summary, next.TriggerPhrases))
		}
	}

	return s.Load(ctx, LoadParams{ID: id, SkipAccessCount: true})
}

// Delete removes a record, its vector, and its full-text row, appending the
// audit entry first. The indexed artifact file is caller-owned and never
// touched. Returns false when no record matched.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	m, err := scanMemory(tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	old, _ := json.Marshal(m)
	if err := appendHistory(tx, id, "delete", string(old), ""); err != nil {
		return false, err
	}

	if s.ftsAvailable {
		if _, err := tx.Exec(`DELETE FROM memories_fts WHERE rowid = ?`, id); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE memory_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	s.invalidateVectorCache()
	s.logger.Info("deleted memory", "id", id, "path", m.FilePath)
	return true, nil
}

// ListParams filters List output; zero values mean no filter.
type ListParams struct {
	SpecFolder string
	Tier       string
	Status     string
	Limit      int
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE 1=1`
	var args []any
	if p.SpecFolder != "" {
		q += ` AND spec_folder = ?`
		args = append(args, p.SpecFolder)
	}
	if p.Tier != "" {
		q += ` AND importance_tier = ?`
		args = append(args, p.Tier)
	}
	if p.Status != "" {
		q += ` AND embedding_status = ?`
		args = append(args, p.Status)
	}
	q += ` ORDER BY created_at_epoch DESC, id DESC`
	if p.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, p.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// TriggerEntries supplies the trigger matcher's cache: every record with
// stored trigger phrases.
func (s *Store) TriggerEntries(ctx context.Context) ([]trigger.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, importance_tier, trigger_phrases FROM memories
		 WHERE trigger_phrases IS NOT NULL AND trigger_phrases != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []trigger.Entry
	for rows.Next() {
		var e trigger.Entry
		var raw string
		if err := rows.Scan(&e.MemoryID, &e.Tier, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Phrases); err != nil {
			continue
		}
		if len(e.Phrases) > 0 {
			entries = append(entries, e)
		}
	}
	return entries, rows.Err()
}
