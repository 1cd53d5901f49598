package model

import "time"

// RetryPolicy governs embedding-generation retries.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffMinutes []int
}

// DefaultRetryPolicy retries three times with growing backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	BackoffMinutes: []int{1, 5, 15},
}

// RetryOutcome is the result of one generation attempt.
type RetryOutcome int

const (
	OutcomeSuccess RetryOutcome = iota
	OutcomeTransientFailure
)

// RetryTransition is the state produced by Next.
type RetryTransition struct {
	Status        EmbeddingStatus
	RetryCount    int
	NextAttemptAt *time.Time
}

// Next computes the retry state machine transition for a generation attempt.
// It is a pure function of its inputs so backoff timing can be tested without
// real timers. Success is terminal; a transient failure moves the record to
// retry with backoff until MaxAttempts is exhausted, then to terminal failed.
// No transition ever deletes a record.
func (p RetryPolicy) Next(retryCount int, outcome RetryOutcome, now time.Time) RetryTransition {
	if outcome == OutcomeSuccess {
		return RetryTransition{Status: StatusSuccess, RetryCount: retryCount}
	}

	next := retryCount + 1
	if next >= p.MaxAttempts {
		if next > p.MaxAttempts {
			next = p.MaxAttempts
		}
		return RetryTransition{Status: StatusFailed, RetryCount: next}
	}

	backoff := p.BackoffMinutes[len(p.BackoffMinutes)-1]
	if next <= len(p.BackoffMinutes) {
		backoff = p.BackoffMinutes[next-1]
	}
	at := now.Add(time.Duration(backoff) * time.Minute)
	return RetryTransition{Status: StatusRetry, RetryCount: next, NextAttemptAt: &at}
}
