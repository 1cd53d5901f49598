package store

import "errors"

var (
	// ErrInvalidInput rejects bad arguments synchronously; never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when no record matches the given id or path.
	ErrNotFound = errors.New("memory not found")

	// ErrDuplicatePath is returned when indexing a file_path that is already
	// indexed. The caller chooses update-or-skip; the first record is untouched.
	ErrDuplicatePath = errors.New("file path already indexed")

	// ErrInvalidConceptCount is returned when multi-concept search is called
	// with fewer than 2 or more than 5 concepts.
	ErrInvalidConceptCount = errors.New("concept count must be between 2 and 5")

	// ErrVectorUnavailable is returned by vector-only operations when no
	// embedding provider is configured.
	ErrVectorUnavailable = errors.New("vector backend unavailable")

	// ErrCheckpointExists rejects duplicate checkpoint names.
	ErrCheckpointExists = errors.New("checkpoint name already exists")

	// ErrCheckpointNotFound is returned for unknown checkpoint names.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrNotModified reports that a failed restore left live state untouched.
	ErrNotModified = errors.New("restore failed, live state not modified")
)
