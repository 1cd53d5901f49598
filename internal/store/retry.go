package store

import (
	"context"
)

// RetryParams controls a retry sweep. By default only records whose backoff
// has lapsed are attempted; Force re-attempts every non-success record,
// including terminal failures, which is the operator's manual override.
type RetryParams struct {
	Force bool
}

// RetryReport summarizes one sweep.
type RetryReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Retry re-attempts embedding generation for records stuck in pending or
// retry state (plus failed, with Force). Each attempt runs through the same
// state machine as initial indexing, so retry counts keep accumulating and a
// record that succeeds on a later attempt keeps its count as evidence of the
// earlier failures. Records are never deleted for failing.
func (s *Store) Retry(ctx context.Context, p RetryParams) (RetryReport, error) {
	var report RetryReport
	if s.embedder == nil {
		return report, ErrVectorUnavailable
	}

	q := `SELECT id, title, summary, trigger_phrases FROM memories WHERE `
	var args []any
	if p.Force {
		q += `embedding_status IN ('pending', 'retry', 'failed')`
	} else {
		q += `(embedding_status = 'pending'
			OR (embedding_status = 'retry' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)))`
		args = append(args, fmtTime(now()))
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return report, err
	}

	type due struct {
		id    int64
		title string
		summ  string
		trig  []byte
	}
	var dues []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.title, &d.summ, &d.trig); err != nil {
			rows.Close()
			return report, err
		}
		dues = append(dues, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	for _, d := range dues {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		phrases := decodeTriggers(d.trig)
		s.embed(ctx, d.id, embedText(d.title, d.summ, phrases))
		report.Attempted++

		var status string
		if err := s.db.QueryRowContext(ctx,
			`SELECT embedding_status FROM memories WHERE id = ?`, d.id).Scan(&status); err != nil {
			return report, err
		}
		if status == "success" {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if report.Attempted > 0 {
		s.logger.Info("retry sweep finished",
			"attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed)
	}
	return report, nil
}

// RetryDueCount reports how many records are currently eligible for a
// non-forced sweep, for the watch loop's logging.
func (s *Store) RetryDueCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories
		 WHERE embedding_status = 'pending'
		    OR (embedding_status = 'retry' AND (next_attempt_at IS NULL OR next_attempt_at <= ?))`,
		fmtTime(now())).Scan(&n)
	return n, err
}
