// Package model defines the core memory data types.
package model

import "time"

// EmbeddingStatus tracks the lifecycle of a record's vector.
type EmbeddingStatus string

const (
	StatusPending EmbeddingStatus = "pending"
	StatusSuccess EmbeddingStatus = "success"
	StatusRetry   EmbeddingStatus = "retry"
	StatusFailed  EmbeddingStatus = "failed"
)

// Memory represents an indexed memory record. The underlying artifact lives
// in an externally owned file referenced by FilePath; the engine indexes it
// but never deletes it.
type Memory struct {
	ID             int64           `json:"id"`
	SpecFolder     string          `json:"spec_folder"`
	FilePath       string          `json:"file_path"`
	Title          string          `json:"title"`
	Summary        string          `json:"summary"`
	TriggerPhrases []string        `json:"trigger_phrases,omitempty"`
	Tier           string          `json:"importance_tier"`
	ContextType    string          `json:"context_type,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	AccessCount    int             `json:"access_count"`
	Status         EmbeddingStatus `json:"embedding_status"`
	RetryCount     int             `json:"retry_count"`
	LastRetryAt    *time.Time      `json:"last_retry_at,omitempty"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HistoryEntry is an append-only audit record. Entries are never mutated or
// deleted and are not consulted for ranking.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	MemoryID  int64     `json:"memory_id"`
	Action    string    `json:"action"`
	OldValues string    `json:"old_values,omitempty"`
	NewValues string    `json:"new_values,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is a named, immutable snapshot of the whole memory-set.
type Checkpoint struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemoryCount int       `json:"memory_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Importance tiers, strongest first.
const (
	TierConstitutional = "constitutional"
	TierCritical       = "critical"
	TierImportant      = "important"
	TierNormal         = "normal"
	TierTemporary      = "temporary"
	TierDeprecated     = "deprecated"
)

// ValidTiers are the allowed importance tiers.
var ValidTiers = map[string]bool{
	TierConstitutional: true,
	TierCritical:       true,
	TierImportant:      true,
	TierNormal:         true,
	TierTemporary:      true,
	TierDeprecated:     true,
}

// DefaultTierWeights are the multiplicative ranking weights per tier.
var DefaultTierWeights = map[string]float64{
	TierConstitutional: 3.0,
	TierCritical:       2.0,
	TierImportant:      1.5,
	TierNormal:         1.0,
	TierTemporary:      0.5,
	TierDeprecated:     0.25,
}
