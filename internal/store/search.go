package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
	"github.com/localmem/memdex/internal/rank"
)

// candidateFactor oversamples each engine before fusion so the fused head is
// stable even when the engines disagree.
const candidateFactor = 4

// SearchParams configures a hybrid search.
type SearchParams struct {
	Query      string
	Limit      int
	SpecFolder string
	// MinSimilarity (0-100) drops weak vector hits; zero uses the configured
	// default.
	MinSimilarity float64
}

// SearchResult is one ranked hit. Similarity is the raw vector similarity
// (0 when found by full-text only); Score is the final ranking score after
// fusion, decay, tier weighting and access boost.
type SearchResult struct {
	model.Memory
	Similarity  float64 `json:"similarity,omitempty"`
	FusionScore float64 `json:"fusion_score"`
	Score       float64 `json:"score"`
}

// Search runs full-text and vector retrieval, fuses the two lists with
// reciprocal rank fusion, applies the scoring adjustments and returns the top
// results. With one engine unavailable it degrades to the survivor; search
// itself never mutates records, so repeating a query is idempotent.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.MinSimilarity <= 0 {
		p.MinSimilarity = s.cfg.Search.MinSimilarity
	}

	pool := p.Limit * candidateFactor

	ftsIDs, err := s.ftsSearch(ctx, p.Query, p.SpecFolder, pool)
	if err != nil {
		return nil, err
	}

	var vecHits []rank.VectorHit
	if s.embedder != nil {
		qvec, err := embedding.Generate(ctx, s.embedder, p.Query,
			s.cfg.Embedder.MaxInputRunes, s.cfg.EmbedTimeout())
		if err != nil {
			// A dead provider degrades the query to full-text rather than
			// failing it.
			s.logger.Warn("query embedding failed, falling back to full-text", "error", err)
		} else {
			vecHits, err = s.vectorSearch(ctx, qvec, p.SpecFolder, p.MinSimilarity, pool)
			if err != nil {
				return nil, err
			}
		}
	}

	memories, err := s.loadByIDs(ctx, candidateIDs(ftsIDs, vecHits))
	if err != nil {
		return nil, err
	}

	epochs := make(map[int64]int64, len(memories))
	for id, m := range memories {
		epochs[id] = m.CreatedAt.Unix()
	}

	fused := rank.Fuse(ftsIDs, vecHits, rank.Params{
		K:            s.cfg.Search.RRFK,
		FTSWeight:    s.cfg.Search.FTSWeight,
		VectorWeight: s.cfg.Search.VectorWeight,
	}, epochs)

	sp := s.scoreParams()
	ts := now()

	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		m, ok := memories[f.MemoryID]
		if !ok {
			continue
		}
		age := ts.Sub(m.CreatedAt).Hours() / 24
		results = append(results, SearchResult{
			Memory:      m,
			Similarity:  f.Similarity,
			FusionScore: f.FusionScore,
			Score:       sp.FinalScore(f.FusionScore, age, m.Tier, m.AccessCount),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if len(results) > p.Limit {
		results = results[:p.Limit]
	}
	return results, nil
}

func (s *Store) scoreParams() rank.ScoreParams {
	sp := rank.ScoreParams{
		HalfLifeDays:   s.cfg.Scoring.HalfLifeDays,
		MinDecayFactor: s.cfg.Scoring.MinDecayFactor,
		BoostFactor:    s.cfg.Scoring.BoostFactor,
		MaxBoost:       s.cfg.Scoring.MaxBoost,
		TierWeights:    s.cfg.Scoring.TierWeights,
	}
	if sp.TierWeights == nil {
		sp.TierWeights = model.DefaultTierWeights
	}
	return sp
}

// ftsSearch returns matching memory ids in BM25 rank order. Query terms are
// ANDed: every term must match. Returns nil without error when FTS5 is
// unavailable.
func (s *Store) ftsSearch(ctx context.Context, query, specFolder string, limit int) ([]int64, error) {
	if !s.ftsAvailable {
		return nil, nil
	}
	match := buildFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	q := `SELECT f.rowid FROM memories_fts f
		JOIN memories m ON m.id = f.rowid
		WHERE memories_fts MATCH ?`
	args := []any{match}
	if specFolder != "" {
		q += ` AND m.spec_folder = ?`
		args = append(args, specFolder)
	}
	q += ` ORDER BY f.rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
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

// buildFTSQuery converts free text into a safe FTS5 MATCH expression. Each
// term is double-quoted so user input can never inject FTS5 operators, and
// terms are space-joined for implicit AND semantics.
func buildFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " ")
}

// vectorSearch ranks stored vectors by cosine similarity to the query vector,
// mapped to 0-100. Only records with a successful embedding participate.
func (s *Store) vectorSearch(ctx context.Context, qvec embedding.Vector, specFolder string, minSimilarity float64, limit int) ([]rank.VectorHit, error) {
	cache, err := s.loadVectorCache(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		hit   rank.VectorHit
		epoch int64
	}
	var hits []scored
	for _, e := range cache {
		if specFolder != "" && e.specFolder != specFolder {
			continue
		}
		sim := similarityPercent(embedding.CosineSimilarity(qvec, e.vector))
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, scored{
			hit:   rank.VectorHit{MemoryID: e.memoryID, Similarity: sim},
			epoch: e.createdEpoch,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].hit.Similarity != hits[j].hit.Similarity {
			return hits[i].hit.Similarity > hits[j].hit.Similarity
		}
		if hits[i].epoch != hits[j].epoch {
			return hits[i].epoch > hits[j].epoch
		}
		return hits[i].hit.MemoryID > hits[j].hit.MemoryID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]rank.VectorHit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out, nil
}

// similarityPercent maps cosine similarity to 0-100; negative cosine clamps
// to zero since anti-correlated vectors are no match at all.
func similarityPercent(cos float64) float64 {
	if cos <= 0 {
		return 0
	}
	return cos * 100
}

func candidateIDs(ftsIDs []int64, vecHits []rank.VectorHit) []int64 {
	seen := make(map[int64]bool, len(ftsIDs)+len(vecHits))
	var ids []int64
	for _, id := range ftsIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, h := range vecHits {
		if !seen[h.MemoryID] {
			seen[h.MemoryID] = true
			ids = append(ids, h.MemoryID)
		}
	}
	return ids
}

// loadByIDs fetches records without touching access counts; appearing in a
// result list is not an access.
func (s *Store) loadByIDs(ctx context.Context, ids []int64) (map[int64]model.Memory, error) {
	out := make(map[int64]model.Memory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = *m
	}
	return out, rows.Err()
}
