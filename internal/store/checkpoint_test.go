package store

import (
	"context"
	"errors"
	"testing"
)

func TestCheckpointCreateAndList(t *testing.T) {
	s := newTestStore(t, searchStub())
	ctx := context.Background()

	mustIndex(t, s, IndexParams{SpecFolder: "s", FilePath: "s/1.md", Title: "alpha one", Content: "alpha first"})
	mustIndex(t, s, IndexParams{SpecFolder: "s", FilePath: "s/2.md", Title: "beta two", Content: "beta second"})

	cp, err := s.CheckpointCreate(ctx, "before-experiment", "baseline state")
	if err != nil {
		t.Fatal(err)
	}
	if cp.ID == "" || cp.MemoryCount != 2 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}

	if _, err := s.CheckpointCreate(ctx, "before-experiment", ""); !errors.Is(err, ErrCheckpointExists) {
		t.Errorf("expected ErrCheckpointExists, got %v", err)
	}
	if _, err := s.CheckpointCreate(ctx, "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
	}

	cps, err := s.CheckpointList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 1 || cps[0].Name != "before-experiment" || cps[0].Description != "baseline state" {
		t.Fatalf("unexpected list: %+v", cps)
	}
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t, searchStub())
	ctx := context.Background()

	kept := mustIndex(t, s, IndexParams{
		SpecFolder: "s", FilePath: "s/kept.md",
		Title: "alpha kept", Content: "alpha content to keep",
	})
	doomed := mustIndex(t, s, IndexParams{
		SpecFolder: "s", FilePath: "s/doomed.md",
		Title: "beta doomed", Content: "beta content to delete later",
	})

	if _, err := s.CheckpointCreate(ctx, "baseline", ""); err != nil {
		t.Fatal(err)
	}

	// Mutate everything: delete one, rewrite another, add a third.
	if ok, err := s.Delete(ctx, doomed.ID); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	newTitle := "alpha rewritten"
	if _, err := s.Update(ctx, kept.ID, UpdateParams{Title: &newTitle}); err != nil {
		t.Fatal(err)
	}
	mustIndex(t, s, IndexParams{
		SpecFolder: "s", FilePath: "s/late.md",
		Title: "gamma late", Content: "gamma arrived after the checkpoint",
	})

	if err := s.CheckpointRestore(ctx, "baseline"); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 restored records, got %d", len(all))
	}

	back, err := s.Load(ctx, LoadParams{ID: kept.ID, SkipAccessCount: true})
	if err != nil {
		t.Fatal(err)
	}
	if back.Title != "alpha kept" {
		t.Errorf("title not restored: %q", back.Title)
	}
	if _, err := s.Load(ctx, LoadParams{FilePath: "s/late.md", SkipAccessCount: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("post-checkpoint record must be gone, got %v", err)
	}
	if _, err := s.Load(ctx, LoadParams{ID: doomed.ID, SkipAccessCount: true}); err != nil {
		t.Errorf("deleted record must be back: %v", err)
	}

	// Vectors came back with the records: semantic search works post-restore.
	results, err := s.Search(ctx, SearchParams{Query: "beta", MinSimilarity: 50})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.ID == doomed.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("restored record not searchable by vector: %+v", results)
	}

	// New ids continue past the restored set instead of colliding.
	again := mustIndex(t, s, IndexParams{
		SpecFolder: "s", FilePath: "s/after.md",
		Title: "post restore", Content: "indexed after the restore",
	})
	if again.ID <= doomed.ID {
		t.Errorf("expected fresh id above %d, got %d", doomed.ID, again.ID)
	}
}

func TestCheckpointRestoreUnknown(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.CheckpointRestore(context.Background(), "nope"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestCheckpointRestoreFailureLeavesStateAlone(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	m := mustIndex(t, s, IndexParams{SpecFolder: "s", FilePath: "s/1.md", Content: "live content"})
	if _, err := s.CheckpointCreate(ctx, "bad", ""); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored snapshot so restore must bail out.
	if _, err := s.db.Exec(
		`UPDATE checkpoints SET snapshot = '{"schema_version": 99}' WHERE name = 'bad'`); err != nil {
		t.Fatal(err)
	}

	err := s.CheckpointRestore(ctx, "bad")
	if !errors.Is(err, ErrNotModified) {
		t.Fatalf("expected ErrNotModified, got %v", err)
	}

	got, err := s.Load(ctx, LoadParams{ID: m.ID, SkipAccessCount: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.FilePath != "s/1.md" {
		t.Errorf("live state changed after failed restore: %+v", got)
	}
}

func TestCheckpointDelete(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	mustIndex(t, s, IndexParams{SpecFolder: "s", FilePath: "s/1.md", Content: "something"})
	if _, err := s.CheckpointCreate(ctx, "gone-soon", ""); err != nil {
		t.Fatal(err)
	}

	ok, err := s.CheckpointDelete(ctx, "gone-soon")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.CheckpointDelete(ctx, "gone-soon")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second delete should report not found")
	}

	// Deleting a checkpoint never touches live records.
	if _, err := s.Load(ctx, LoadParams{FilePath: "s/1.md", SkipAccessCount: true}); err != nil {
		t.Errorf("live record lost: %v", err)
	}

	if err := s.CheckpointRestore(ctx, "gone-soon"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("restore of deleted checkpoint: expected not found, got %v", err)
	}
}
