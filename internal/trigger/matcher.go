package trigger

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/localmem/memdex/internal/model"
)

// DefaultCacheTTL is how long the matcher serves cached trigger phrases
// before reloading them from the source.
const DefaultCacheTTL = 60 * time.Second

// Entry is one memory's trigger phrases as loaded from the source.
type Entry struct {
	MemoryID int64
	Tier     string
	Phrases  []string
}

// Source supplies trigger entries, typically backed by the store.
type Source interface {
	TriggerEntries(ctx context.Context) ([]Entry, error)
}

// Match is one memory whose trigger phrases appear in a prompt.
type Match struct {
	MemoryID       int64    `json:"memory_id"`
	Tier           string   `json:"importance_tier"`
	MatchedPhrases []string `json:"matched_phrases"`
}

type cachedEntry struct {
	entry    Entry
	patterns []*regexp.Regexp
}

// Matcher matches prompts against an in-process cache of trigger phrases.
// The cache is an explicit object with its own load timestamp and TTL rather
// than ambient process state, so refresh timing is testable: callers invoke
// RefreshIfStale (directly or via Match) and the source is consulted at most
// once per TTL window.
type Matcher struct {
	src Source
	ttl time.Duration

	mu           sync.Mutex
	entries      []cachedEntry
	lastLoadedAt time.Time
}

// NewMatcher creates a matcher over the given source. ttl <= 0 uses
// DefaultCacheTTL.
func NewMatcher(src Source, ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Matcher{src: src, ttl: ttl}
}

// LastLoadedAt reports when the cache was last populated (zero before the
// first load).
func (m *Matcher) LastLoadedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLoadedAt
}

// RefreshIfStale reloads the cache from the source when the TTL has lapsed
// (or the cache has never been loaded). Phrase patterns are compiled here so
// Match stays fast.
func (m *Matcher) RefreshIfStale(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastLoadedAt.IsZero() && time.Since(m.lastLoadedAt) < m.ttl {
		return nil
	}

	entries, err := m.src.TriggerEntries(ctx)
	if err != nil {
		return err
	}

	cached := make([]cachedEntry, 0, len(entries))
	for _, e := range entries {
		ce := cachedEntry{entry: e}
		for _, p := range e.Phrases {
			re, err := compilePhrase(p)
			if err != nil {
				continue
			}
			ce.patterns = append(ce.patterns, re)
		}
		if len(ce.patterns) > 0 {
			cached = append(cached, ce)
		}
	}

	m.entries = cached
	m.lastLoadedAt = time.Now()
	return nil
}

// Match returns memories whose trigger phrases occur in prompt on word
// boundaries, ranked by matched-phrase count, then importance tier, then id.
// The cache is refreshed first if stale.
func (m *Matcher) Match(ctx context.Context, prompt string, limit int) ([]Match, error) {
	if err := m.RefreshIfStale(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entries := m.entries
	m.mu.Unlock()

	var matches []Match
	for _, ce := range entries {
		var hit Match
		for i, re := range ce.patterns {
			if re.MatchString(prompt) {
				hit.MatchedPhrases = append(hit.MatchedPhrases, ce.entry.Phrases[i])
			}
		}
		if len(hit.MatchedPhrases) > 0 {
			hit.MemoryID = ce.entry.MemoryID
			hit.Tier = ce.entry.Tier
			matches = append(matches, hit)
		}
	}

	weights := model.DefaultTierWeights
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.MatchedPhrases) != len(b.MatchedPhrases) {
			return len(a.MatchedPhrases) > len(b.MatchedPhrases)
		}
		if weights[a.Tier] != weights[b.Tier] {
			return weights[a.Tier] > weights[b.Tier]
		}
		return a.MemoryID < b.MemoryID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func compilePhrase(phrase string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
}
