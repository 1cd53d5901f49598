package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Stats summarizes the index for the stats command.
type Stats struct {
	TotalMemories  int            `json:"total_memories"`
	CountsByStatus map[string]int `json:"counts_by_status"`
	CountsByTier   map[string]int `json:"counts_by_tier"`
	CountsByFolder map[string]int `json:"counts_by_folder"`
	Checkpoints    int            `json:"checkpoints"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	LastCreated    *time.Time     `json:"last_created,omitempty"`
	LastUpdated    *time.Time     `json:"last_updated,omitempty"`
	Backend        string         `json:"backend"`
	Degraded       bool           `json:"degraded"`
}

// Stats reports aggregate counts and the active backend mode.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		CountsByStatus: map[string]int{},
		CountsByTier:   map[string]int{},
		CountsByFolder: map[string]int{},
		Backend:        s.Backend(),
		Degraded:       s.Degraded(),
	}

	if err := s.countGroup(ctx, `embedding_status`, st.CountsByStatus); err != nil {
		return nil, err
	}
	if err := s.countGroup(ctx, `importance_tier`, st.CountsByTier); err != nil {
		return nil, err
	}
	if err := s.countGroup(ctx, `spec_folder`, st.CountsByFolder); err != nil {
		return nil, err
	}
	for _, n := range st.CountsByStatus {
		st.TotalMemories += n
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&st.Checkpoints); err != nil {
		return nil, err
	}

	var created sql.NullInt64
	var updated sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at_epoch), MAX(updated_at) FROM memories`).Scan(&created, &updated)
	if err != nil {
		return nil, err
	}
	if created.Valid {
		t := time.Unix(created.Int64, 0).UTC()
		st.LastCreated = &t
	}
	if updated.Valid && updated.String != "" {
		t, err := parseTime(updated.String)
		if err != nil {
			return nil, fmt.Errorf("parse last updated_at: %w", err)
		}
		st.LastUpdated = &t
	}

	if fi, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = fi.Size()
	}
	return st, nil
}

func (s *Store) countGroup(ctx context.Context, column string, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM memories GROUP BY `+column)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		out[key] = n
	}
	return rows.Err()
}

// IntegrityReport describes cross-table consistency between records and
// vectors.
type IntegrityReport struct {
	// OrphanedVectors have no owning record marked success; MissingVectors
	// are success records without a stored vector.
	OrphanedVectors []int64 `json:"orphaned_vectors"`
	MissingVectors  []int64 `json:"missing_vectors"`
	IsConsistent    bool    `json:"is_consistent"`
	Backend         string  `json:"backend"`
	Degraded        bool    `json:"degraded"`
}

// VerifyIntegrity checks record/vector consistency without modifying
// anything; repair is a separate, explicit step.
func (s *Store) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{
		Backend:  s.Backend(),
		Degraded: s.Degraded(),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT v.memory_id FROM memory_vectors v
		 LEFT JOIN memories m ON m.id = v.memory_id
		 WHERE m.id IS NULL OR m.embedding_status != 'success'
		 ORDER BY v.memory_id`)
	if err != nil {
		return nil, err
	}
	report.OrphanedVectors, err = collectIDs(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT m.id FROM memories m
		 LEFT JOIN memory_vectors v ON v.memory_id = m.id
		 WHERE m.embedding_status = 'success' AND v.memory_id IS NULL
		 ORDER BY m.id`)
	if err != nil {
		return nil, err
	}
	report.MissingVectors, err = collectIDs(rows)
	if err != nil {
		return nil, err
	}

	report.IsConsistent = len(report.OrphanedVectors) == 0 && len(report.MissingVectors) == 0
	return report, nil
}

// RepairReport summarizes what Repair changed.
type RepairReport struct {
	VectorsRemoved  int `json:"vectors_removed"`
	RecordsRequeued int `json:"records_requeued"`
}

// Repair fixes the inconsistencies VerifyIntegrity reports: orphaned vectors
// are deleted, and success records missing their vector drop back to pending
// so the next retry sweep regenerates them.
func (s *Store) Repair(ctx context.Context) (*RepairReport, error) {
	report := &RepairReport{}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`DELETE FROM memory_vectors WHERE memory_id IN (
			SELECT v.memory_id FROM memory_vectors v
			LEFT JOIN memories m ON m.id = v.memory_id
			WHERE m.id IS NULL OR m.embedding_status != 'success')`)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil {
		report.VectorsRemoved = int(n)
	}

	res, err = tx.Exec(
		`UPDATE memories SET embedding_status = 'pending', updated_at = ?
		 WHERE embedding_status = 'success'
		   AND id NOT IN (SELECT memory_id FROM memory_vectors)`,
		fmtTime(now()))
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil {
		report.RecordsRequeued = int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if report.VectorsRemoved > 0 || report.RecordsRequeued > 0 {
		s.invalidateVectorCache()
		s.logger.Info("integrity repair applied",
			"vectors_removed", report.VectorsRemoved, "records_requeued", report.RecordsRequeued)
	}
	return report, nil
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
