package model

import (
	"testing"
	"time"
)

func TestRetryTransitions(t *testing.T) {
	p := DefaultRetryPolicy
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// First failure: pending -> retry, backoff 1 minute.
	tr := p.Next(0, OutcomeTransientFailure, now)
	if tr.Status != StatusRetry || tr.RetryCount != 1 {
		t.Fatalf("first failure: got %s/%d", tr.Status, tr.RetryCount)
	}
	if tr.NextAttemptAt == nil || !tr.NextAttemptAt.Equal(now.Add(1*time.Minute)) {
		t.Errorf("expected next attempt at +1m, got %v", tr.NextAttemptAt)
	}

	// Second failure: retry -> retry, backoff 5 minutes.
	tr = p.Next(1, OutcomeTransientFailure, now)
	if tr.Status != StatusRetry || tr.RetryCount != 2 {
		t.Fatalf("second failure: got %s/%d", tr.Status, tr.RetryCount)
	}
	if tr.NextAttemptAt == nil || !tr.NextAttemptAt.Equal(now.Add(5*time.Minute)) {
		t.Errorf("expected next attempt at +5m, got %v", tr.NextAttemptAt)
	}

	// Third failure: retry -> terminal failed, count 3.
	tr = p.Next(2, OutcomeTransientFailure, now)
	if tr.Status != StatusFailed || tr.RetryCount != 3 {
		t.Fatalf("third failure: got %s/%d, want failed/3", tr.Status, tr.RetryCount)
	}
	if tr.NextAttemptAt != nil {
		t.Error("failed state should not schedule another attempt")
	}
}

func TestRetrySuccessPreservesCount(t *testing.T) {
	p := DefaultRetryPolicy
	now := time.Now()

	// An operator retry of a failed record that succeeds keeps the prior
	// retry count rather than silently resetting it.
	tr := p.Next(3, OutcomeSuccess, now)
	if tr.Status != StatusSuccess {
		t.Fatalf("got %s, want success", tr.Status)
	}
	if tr.RetryCount != 3 {
		t.Errorf("retry count reset to %d, want 3", tr.RetryCount)
	}
}

func TestRetryFailureAfterTerminal(t *testing.T) {
	p := DefaultRetryPolicy
	tr := p.Next(3, OutcomeTransientFailure, time.Now())
	if tr.Status != StatusFailed || tr.RetryCount != 3 {
		t.Fatalf("got %s/%d, want failed/3", tr.Status, tr.RetryCount)
	}
}

func TestRetryCustomBackoffTable(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BackoffMinutes: []int{1, 5, 15}}
	now := time.Now()

	tr := p.Next(2, OutcomeTransientFailure, now)
	if tr.Status != StatusRetry || tr.RetryCount != 3 {
		t.Fatalf("got %s/%d, want retry/3", tr.Status, tr.RetryCount)
	}
	if !tr.NextAttemptAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected +15m backoff, got %v", tr.NextAttemptAt)
	}
}
