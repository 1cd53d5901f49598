package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/localmem/memdex/internal/config"
	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, emb embedding.Embedder) *Store {
	t.Helper()
	s, err := Open(testConfig(t), emb, discardLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stubEmbedder returns a fixed vector for any text containing one of its
// anchor words, so tests control similarity exactly. Unanchored text gets a
// vector orthogonal to all anchors.
type stubEmbedder struct {
	anchors map[string]embedding.Vector
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	lower := strings.ToLower(text)
	keys := make([]string, 0, len(e.anchors))
	for k := range e.anchors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(lower, k) {
			return e.anchors[k], nil
		}
	}
	return embedding.Vector{0, 0, 0, 1}, nil
}

func (e *stubEmbedder) Dims() int     { return 4 }
func (e *stubEmbedder) Model() string { return "stub" }

// flakyEmbedder fails its first n calls, then behaves like inner.
type flakyEmbedder struct {
	inner    embedding.Embedder
	failures int
	calls    int
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.New("provider unavailable")
	}
	return e.inner.Embed(ctx, text)
}

func (e *flakyEmbedder) Dims() int     { return e.inner.Dims() }
func (e *flakyEmbedder) Model() string { return e.inner.Model() }

func mustIndex(t *testing.T, s *Store, p IndexParams) *model.Memory {
	t.Helper()
	m, err := s.Index(context.Background(), p)
	if err != nil {
		t.Fatalf("index %s: %v", p.FilePath, err)
	}
	return m
}

func TestIndexAndLoad(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	m := mustIndex(t, s, IndexParams{
		SpecFolder: "specs/auth",
		FilePath:   "specs/auth/oauth.md",
		Title:      "OAuth callback flow",
		Content:    "The OAuth callback exchanges the authorization code for access tokens.",
		Tier:       model.TierImportant,
	})

	if m.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if m.Status != model.StatusSuccess {
		t.Errorf("expected success status, got %s", m.Status)
	}
	if len(m.TriggerPhrases) == 0 {
		t.Error("expected extracted trigger phrases")
	}
	if m.AccessCount != 0 {
		t.Errorf("indexing must not count as access, got %d", m.AccessCount)
	}

	got, err := s.Load(ctx, LoadParams{ID: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1 after load, got %d", got.AccessCount)
	}
	if got.Title != "OAuth callback flow" || got.Tier != model.TierImportant {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	byPath, err := s.Load(ctx, LoadParams{FilePath: "specs/auth/oauth.md"})
	if err != nil {
		t.Fatal(err)
	}
	if byPath.ID != m.ID {
		t.Errorf("load by path returned id %d, want %d", byPath.ID, m.ID)
	}
	if byPath.AccessCount != 2 {
		t.Errorf("expected access count 2, got %d", byPath.AccessCount)
	}
}

func TestIndexDuplicatePath(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	first := mustIndex(t, s, IndexParams{
		SpecFolder: "specs/auth",
		FilePath:   "specs/auth/oauth.md",
		Title:      "original title",
		Content:    "original content",
	})

	_, err := s.Index(ctx, IndexParams{
		SpecFolder: "specs/other",
		FilePath:   "specs/auth/oauth.md",
		Title:      "second title",
		Content:    "different content",
	})
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("expected ErrDuplicatePath, got %v", err)
	}

	got, err := s.Load(ctx, LoadParams{ID: first.ID, SkipAccessCount: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "original title" || got.SpecFolder != "specs/auth" {
		t.Errorf("first record must stay unchanged, got %+v", got)
	}
}

func TestIndexValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cases := []IndexParams{
		{FilePath: "a.md", Content: "x"},                                        // no folder
		{SpecFolder: "s", Content: "x"},                                         // no path
		{SpecFolder: "s", FilePath: "a.md", Content: "   "},                     // blank content
		{SpecFolder: "s", FilePath: "a.md", Content: "x", Tier: "super-duper"},  // bad tier
	}
	for i, p := range cases {
		if _, err := s.Index(ctx, p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestIndexDerivesTitleAndTriggers(t *testing.T) {
	s := newTestStore(t, nil)

	m := mustIndex(t, s, IndexParams{
		SpecFolder: "specs/db",
		FilePath:   "specs/db/indexing.md",
		Content:    "# Covering indexes\nCovering indexes avoid table lookups for indexed queries.",
	})
	if m.Title != "Covering indexes" {
		t.Errorf("expected derived title, got %q", m.Title)
	}
	if m.Tier != model.TierNormal {
		t.Errorf("expected default tier, got %q", m.Tier)
	}

	explicit := mustIndex(t, s, IndexParams{
		SpecFolder:     "specs/db",
		FilePath:       "specs/db/vacuum.md",
		Content:        "vacuum reclaims free pages",
		TriggerPhrases: []string{"vacuum", "free pages"},
	})
	if len(explicit.TriggerPhrases) != 2 || explicit.TriggerPhrases[0] != "vacuum" {
		t.Errorf("explicit trigger phrases not stored: %v", explicit.TriggerPhrases)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	m := mustIndex(t, s, IndexParams{
		SpecFolder: "specs/auth",
		FilePath:   "specs/auth/tokens.md",
		Title:      "token refresh",
		Content:    "refresh tokens rotate on use",
	})

	newTitle := "token rotation policy"
	newTier := model.TierCritical
	got, err := s.Update(ctx, m.ID, UpdateParams{Title: &newTitle, Tier: &newTier})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != newTitle || got.Tier != newTier {
		t.Errorf("update not applied: %+v", got)
	}
	// Title change invalidates the vector; the mock re-embeds synchronously.
	if got.Status != model.StatusSuccess {
		t.Errorf("expected re-embedded success, got %s", got.Status)
	}

	entries, err := s.History(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sawUpdate bool
	for _, e := range entries {
		if e.Action == "update" {
			sawUpdate = true
			if !strings.Contains(e.NewValues, newTitle) {
				t.Errorf("update entry missing new title: %s", e.NewValues)
			}
		}
	}
	if !sawUpdate {
		t.Error("expected update history entry")
	}

	badTier := "mega"
	if _, err := s.Update(ctx, m.ID, UpdateParams{Tier: &badTier}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad tier, got %v", err)
	}
	if _, err := s.Update(ctx, 9999, UpdateParams{Title: &newTitle}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateWithoutEmbedderDropsStaleVector(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := Open(cfg, searchStub(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	m := mustIndex(t, s, IndexParams{
		SpecFolder: "s",
		FilePath:   "s/doc.md",
		Title:      "alpha topic",
		Content:    "alpha details worth remembering",
	})
	if m.Status != model.StatusSuccess {
		t.Fatalf("expected embedded record, got %s", m.Status)
	}
	s.Close()

	// The embedding host is down; the store still accepts updates. The text
	// change must invalidate the stored vector even though nothing can
	// regenerate it right now.
	s2, err := Open(cfg, nil, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	newTitle := "beta topic"
	newSummary := "beta details instead"
	got, err := s2.Update(ctx, m.ID, UpdateParams{Title: &newTitle, Summary: &newSummary})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("text change without a provider must demote to pending, got %s", got.Status)
	}
	check, err := s2.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !check.IsConsistent {
		t.Errorf("stale vector left behind: %+v", check)
	}
	s2.Close()

	// Provider back: the old text must not be matchable by vector anymore.
	s3, err := Open(cfg, searchStub(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s3.Close()

	results, err := s3.Search(ctx, SearchParams{Query: "alpha", MinSimilarity: 90})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID == m.ID {
			t.Errorf("rewritten record still matches its old text (similarity %.1f)", r.Similarity)
		}
	}

	report, err := s3.Retry(ctx, RetryParams{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("expected pending record re-embedded, got %+v", report)
	}
	results, err = s3.Search(ctx, SearchParams{Query: "beta", MinSimilarity: 90})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.ID == m.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("re-embedded record not found under its new text: %+v", results)
	}
}

func TestCorruptTimestampSurfacesError(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	m := mustIndex(t, s, IndexParams{SpecFolder: "s", FilePath: "s/1.md", Content: "ordinary content"})

	if _, err := s.db.Exec(`UPDATE memories SET updated_at = 'garbage' WHERE id = ?`, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, LoadParams{ID: m.ID, SkipAccessCount: true}); err == nil {
		t.Error("expected error for corrupt updated_at, got nil")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	m := mustIndex(t, s, IndexParams{
		SpecFolder: "specs/tmp",
		FilePath:   "specs/tmp/scratch.md",
		Content:    "scratch notes about nothing in particular",
	})

	ok, err := s.Delete(ctx, m.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := s.Load(ctx, LoadParams{ID: m.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// History survives the record; the delete entry is appended before removal.
	entries, err := s.History(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || entries[len(entries)-1].Action != "delete" {
		t.Errorf("expected trailing delete entry, got %+v", entries)
	}

	ok, err = s.Delete(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second delete should report not found")
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	mustIndex(t, s, IndexParams{SpecFolder: "a", FilePath: "a/1.md", Content: "one", Tier: model.TierCritical})
	mustIndex(t, s, IndexParams{SpecFolder: "a", FilePath: "a/2.md", Content: "two"})
	mustIndex(t, s, IndexParams{SpecFolder: "b", FilePath: "b/1.md", Content: "three"})

	all, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	folderA, _ := s.List(ctx, ListParams{SpecFolder: "a"})
	if len(folderA) != 2 {
		t.Errorf("folder filter: expected 2, got %d", len(folderA))
	}
	critical, _ := s.List(ctx, ListParams{Tier: model.TierCritical})
	if len(critical) != 1 {
		t.Errorf("tier filter: expected 1, got %d", len(critical))
	}
	pending, _ := s.List(ctx, ListParams{Status: "pending"})
	if len(pending) != 3 {
		// No embedder configured, so everything stays pending.
		t.Errorf("status filter: expected 3 pending, got %d", len(pending))
	}
	limited, _ := s.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit: expected 1, got %d", len(limited))
	}
}

func TestTriggerEntries(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	mustIndex(t, s, IndexParams{
		SpecFolder:     "a",
		FilePath:       "a/1.md",
		Content:        "oauth callback handling",
		TriggerPhrases: []string{"oauth callback"},
	})

	entries, err := s.TriggerEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Phrases[0] != "oauth callback" {
		t.Fatalf("unexpected trigger entries: %+v", entries)
	}
}

func TestStatsAndBackendModes(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	mustIndex(t, s, IndexParams{SpecFolder: "a", FilePath: "a/1.md", Content: "one", Tier: model.TierCritical})
	mustIndex(t, s, IndexParams{SpecFolder: "b", FilePath: "b/1.md", Content: "two"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalMemories != 2 {
		t.Errorf("expected 2 memories, got %d", st.TotalMemories)
	}
	if st.CountsByStatus["success"] != 2 {
		t.Errorf("expected 2 success, got %+v", st.CountsByStatus)
	}
	if st.CountsByTier[model.TierCritical] != 1 {
		t.Errorf("tier counts wrong: %+v", st.CountsByTier)
	}
	if st.Backend != BackendHybrid || st.Degraded {
		t.Errorf("expected healthy hybrid backend, got %s degraded=%v", st.Backend, st.Degraded)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected nonzero db size")
	}
	if st.LastCreated == nil {
		t.Error("expected last created timestamp")
	}

	noVec := newTestStore(t, nil)
	if noVec.Backend() != BackendFTSOnly || !noVec.Degraded() {
		t.Errorf("embedder-less store should be degraded fts-only, got %s", noVec.Backend())
	}
}

func TestVerifyIntegrityAndRepair(t *testing.T) {
	s := newTestStore(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()

	m1 := mustIndex(t, s, IndexParams{SpecFolder: "a", FilePath: "a/1.md", Content: "one two three"})
	m2 := mustIndex(t, s, IndexParams{SpecFolder: "a", FilePath: "a/2.md", Content: "four five six"})

	report, err := s.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.IsConsistent {
		t.Fatalf("fresh store should be consistent: %+v", report)
	}

	// Break it both ways behind the store's back: m1 loses its vector, m2
	// keeps a vector but is no longer marked success.
	if _, err := s.db.Exec(`DELETE FROM memory_vectors WHERE memory_id = ?`, m1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(
		`UPDATE memories SET embedding_status = 'failed' WHERE id = ?`, m2.ID); err != nil {
		t.Fatal(err)
	}

	report, err = s.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.IsConsistent {
		t.Fatal("expected inconsistency")
	}
	if len(report.MissingVectors) != 1 || report.MissingVectors[0] != m1.ID {
		t.Errorf("missing vectors: %v", report.MissingVectors)
	}
	if len(report.OrphanedVectors) != 1 || report.OrphanedVectors[0] != m2.ID {
		t.Errorf("orphaned vectors: %v", report.OrphanedVectors)
	}

	// Verify alone must not repair.
	again, _ := s.VerifyIntegrity(ctx)
	if again.IsConsistent {
		t.Fatal("verify must not modify state")
	}

	fixed, err := s.Repair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fixed.VectorsRemoved != 1 || fixed.RecordsRequeued != 1 {
		t.Errorf("repair report: %+v", fixed)
	}

	report, _ = s.VerifyIntegrity(ctx)
	if !report.IsConsistent {
		t.Errorf("expected consistency after repair: %+v", report)
	}
	got, _ := s.Load(ctx, LoadParams{ID: m1.ID, SkipAccessCount: true})
	if got.Status != model.StatusPending {
		t.Errorf("requeued record should be pending, got %s", got.Status)
	}
}
