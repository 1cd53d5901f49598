package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.RRFK != 60 {
		t.Errorf("expected rrf_k 60, got %d", cfg.Search.RRFK)
	}
	if cfg.Scoring.HalfLifeDays != 90 {
		t.Errorf("expected half-life 90, got %g", cfg.Scoring.HalfLifeDays)
	}
	if cfg.Scoring.TierWeights["constitutional"] != 3.0 {
		t.Errorf("expected constitutional weight 3.0, got %g", cfg.Scoring.TierWeights["constitutional"])
	}
	if cfg.Retry.MaxAttempts != 3 || len(cfg.Retry.BackoffMinutes) != 3 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
db_path: /tmp/custom.db
search:
  rrf_k: 40
  vector_weight: 2.0
scoring:
  half_life_days: 30
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("db_path not applied: %s", cfg.DBPath)
	}
	if cfg.Search.RRFK != 40 || cfg.Search.VectorWeight != 2.0 {
		t.Errorf("search overrides not applied: %+v", cfg.Search)
	}
	if cfg.Scoring.HalfLifeDays != 30 {
		t.Errorf("half-life override not applied: %g", cfg.Scoring.HalfLifeDays)
	}
}

func TestLoadEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("db_path: /tmp/from-file.db\n"), 0o644)

	t.Setenv("MEMDEX_DB", "/tmp/from-env.db")
	t.Setenv("MEMDEX_EMBED_PROVIDER", "none")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Errorf("env override lost: %s", cfg.DBPath)
	}
	if cfg.Embedder.Provider != "" {
		t.Errorf("expected embeddings disabled, got %q", cfg.Embedder.Provider)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("search:\n  rrf_k: -1\n"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("expected error for negative rrf_k")
	}

	os.WriteFile(path, []byte("scoring:\n  tier_weights:\n    bogus: 1.0\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown tier")
	}

	// A zero weight would silently behave as 1.0 downstream, so it is
	// rejected here instead.
	os.WriteFile(path, []byte("search:\n  fts_weight: 0\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for zero fts_weight")
	}
	os.WriteFile(path, []byte("search:\n  vector_weight: 0\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for zero vector_weight")
	}
}
