package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
)

// snapshotVersion is written into every checkpoint blob. The restore path
// checks it explicitly so a snapshot from a future schema fails cleanly
// instead of silently corrupting live state.
const snapshotVersion = 1

type snapshot struct {
	SchemaVersion int              `json:"schema_version"`
	CreatedAt     time.Time        `json:"created_at"`
	Records       []snapshotRecord `json:"records"`
}

type snapshotRecord struct {
	Memory model.Memory     `json:"memory"`
	Vector embedding.Vector `json:"vector,omitempty"`
}

// CheckpointCreate snapshots every record and vector under a unique name.
// Records, vectors, and the checkpoint row are read and written inside one
// transaction so a concurrent writer cannot split the snapshot. Checkpoints
// are immutable; history and other checkpoints are not included.
func (s *Store) CheckpointCreate(ctx context.Context, name, description string) (*model.Checkpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: checkpoint name is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	memories, err := allMemoriesTx(tx)
	if err != nil {
		return nil, err
	}
	vectors, err := allVectorsTx(tx)
	if err != nil {
		return nil, err
	}

	snap := snapshot{
		SchemaVersion: snapshotVersion,
		CreatedAt:     now(),
		Records:       make([]snapshotRecord, 0, len(memories)),
	}
	for _, m := range memories {
		snap.Records = append(snap.Records, snapshotRecord{Memory: m, Vector: vectors[m.ID]})
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	cp := &model.Checkpoint{
		ID:          ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		Name:        name,
		Description: description,
		MemoryCount: len(memories),
		CreatedAt:   snap.CreatedAt,
	}

	_, err = tx.Exec(
		`INSERT INTO checkpoints (id, name, description, memory_count, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Name, cp.Description, cp.MemoryCount, blob, fmtTime(cp.CreatedAt),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("checkpoint created", "name", name, "memories", cp.MemoryCount)
	return cp, nil
}

// CheckpointList returns checkpoint metadata, newest first. Snapshot blobs
// are not loaded.
func (s *Store) CheckpointList(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, memory_count, created_at
		 FROM checkpoints ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []model.Checkpoint
	for rows.Next() {
		var cp model.Checkpoint
		var created string
		if err := rows.Scan(&cp.ID, &cp.Name, &cp.Description, &cp.MemoryCount, &created); err != nil {
			return nil, err
		}
		if cp.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("checkpoint %s: parse created_at: %w", cp.ID, err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// CheckpointRestore replaces the whole live memory-set with the named
// snapshot, inside one transaction: any failure rolls back and returns
// ErrNotModified with live state untouched. Records indexed after the
// checkpoint are removed; history and other checkpoints survive.
func (s *Store) CheckpointRestore(ctx context.Context, name string) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, name)
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %v: %w", name, err, ErrNotModified)
	}
	if snap.SchemaVersion != snapshotVersion {
		return fmt.Errorf("snapshot %s has unsupported version %d: %w",
			name, snap.SchemaVersion, ErrNotModified)
	}

	if err := s.restore(ctx, snap); err != nil {
		return fmt.Errorf("restore %s: %v: %w", name, err, ErrNotModified)
	}

	s.invalidateVectorCache()
	s.logger.Info("checkpoint restored", "name", name, "memories", len(snap.Records))
	return nil
}

func (s *Store) restore(ctx context.Context, snap snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memory_vectors`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM memories`); err != nil {
		return err
	}
	if s.ftsAvailable {
		if _, err := tx.Exec(`DELETE FROM memories_fts`); err != nil {
			return err
		}
	}
	// Resetting the sequence lets post-restore inserts continue from the
	// restored max id instead of the pre-restore one. sqlite_sequence does
	// not exist until the first AUTOINCREMENT insert.
	if _, err := tx.Exec(`DELETE FROM sqlite_sequence WHERE name = 'memories'`); err != nil &&
		!strings.Contains(err.Error(), "no such table") {
		return err
	}

	for _, r := range snap.Records {
		m := r.Memory
		triggersJSON, err := encodeTriggers(m.TriggerPhrases)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO memories (id, spec_folder, file_path, title, summary, trigger_phrases,
				importance_tier, context_type, channel, session_id, access_count,
				embedding_status, retry_count, last_retry_at, next_attempt_at,
				failure_reason, created_at_epoch, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SpecFolder, m.FilePath, m.Title, m.Summary, triggersJSON,
			m.Tier, m.ContextType, m.Channel, m.SessionID, m.AccessCount,
			m.Status, m.RetryCount, fmtTimePtr(m.LastRetryAt), fmtTimePtr(m.NextAttemptAt),
			m.FailureReason, m.CreatedAt.Unix(), fmtTime(m.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("restore memory %d: %w", m.ID, err)
		}

		if len(r.Vector) > 0 {
			raw, err := json.Marshal(r.Vector)
			if err != nil {
				return err
			}
			_, err = tx.Exec(
				`INSERT INTO memory_vectors (memory_id, dims, embedding) VALUES (?, ?, ?)`,
				m.ID, len(r.Vector), string(raw),
			)
			if err != nil {
				return fmt.Errorf("restore vector %d: %w", m.ID, err)
			}
		}

		if err := upsertFTS(tx, s.ftsAvailable, m.ID, m.Title, m.Summary, m.TriggerPhrases); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CheckpointDelete removes a checkpoint by name; live records are untouched.
// Returns false when no checkpoint matched.
func (s *Store) CheckpointDelete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func allMemoriesTx(tx *sql.Tx) ([]model.Memory, error) {
	rows, err := tx.Query(`SELECT ` + memoryColumns + ` FROM memories ORDER BY id`)
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

func allVectorsTx(tx *sql.Tx) (map[int64]embedding.Vector, error) {
	rows, err := tx.Query(`SELECT memory_id, embedding FROM memory_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]embedding.Vector)
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var vec embedding.Vector
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("vector %d: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}
