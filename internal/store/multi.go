package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/model"
)

const (
	minConcepts = 2
	maxConcepts = 5

	// defaultConceptFloor is the per-concept similarity floor when the caller
	// does not set one. Without a positive floor the AND semantics collapse
	// to plain averaging.
	defaultConceptFloor = 30.0
)

// ConceptParams configures a multi-concept search.
type ConceptParams struct {
	Concepts   []string
	Limit      int
	SpecFolder string
	// MinSimilarity (0-100) is the per-concept floor; every concept must
	// clear it for a record to qualify. Zero uses defaultConceptFloor.
	MinSimilarity float64
}

// ConceptResult is one record matching all concepts.
type ConceptResult struct {
	model.Memory
	// AvgSimilarity ranks qualifying records; PerConcept holds each
	// concept's similarity in input order.
	AvgSimilarity float64   `json:"avg_similarity"`
	PerConcept    []float64 `json:"per_concept"`
}

// MultiConceptSearch finds records semantically related to every one of 2-5
// concepts at once. Each concept is embedded separately; a record qualifies
// only when its similarity to every concept clears the floor, and qualifying
// records rank by average similarity. This is intersection semantics a single
// mixed-concept query cannot express: averaging alone would let one strong
// concept carry a record the others reject.
func (s *Store) MultiConceptSearch(ctx context.Context, p ConceptParams) ([]ConceptResult, error) {
	concepts := make([]string, 0, len(p.Concepts))
	for _, c := range p.Concepts {
		if strings.TrimSpace(c) != "" {
			concepts = append(concepts, c)
		}
	}
	if len(concepts) < minConcepts || len(concepts) > maxConcepts {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConceptCount, len(concepts))
	}
	if s.embedder == nil {
		return nil, ErrVectorUnavailable
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.MinSimilarity <= 0 {
		p.MinSimilarity = defaultConceptFloor
	}

	qvecs := make([]embedding.Vector, len(concepts))
	for i, c := range concepts {
		vec, err := embedding.Generate(ctx, s.embedder, c,
			s.cfg.Embedder.MaxInputRunes, s.cfg.EmbedTimeout())
		if err != nil {
			return nil, fmt.Errorf("embed concept %q: %w", c, err)
		}
		qvecs[i] = vec
	}

	cache, err := s.loadVectorCache(ctx)
	if err != nil {
		return nil, err
	}

	type qualifier struct {
		id    int64
		epoch int64
		avg   float64
		sims  []float64
	}
	var qualifiers []qualifier

next:
	for _, e := range cache {
		if p.SpecFolder != "" && e.specFolder != p.SpecFolder {
			continue
		}
		sims := make([]float64, len(qvecs))
		var sum float64
		for i, qv := range qvecs {
			sim := similarityPercent(embedding.CosineSimilarity(qv, e.vector))
			if sim < p.MinSimilarity {
				continue next
			}
			sims[i] = sim
			sum += sim
		}
		qualifiers = append(qualifiers, qualifier{
			id:    e.memoryID,
			epoch: e.createdEpoch,
			avg:   sum / float64(len(sims)),
			sims:  sims,
		})
	}

	sort.Slice(qualifiers, func(i, j int) bool {
		if qualifiers[i].avg != qualifiers[j].avg {
			return qualifiers[i].avg > qualifiers[j].avg
		}
		if qualifiers[i].epoch != qualifiers[j].epoch {
			return qualifiers[i].epoch > qualifiers[j].epoch
		}
		return qualifiers[i].id > qualifiers[j].id
	})
	if len(qualifiers) > p.Limit {
		qualifiers = qualifiers[:p.Limit]
	}

	ids := make([]int64, len(qualifiers))
	for i, q := range qualifiers {
		ids[i] = q.id
	}
	memories, err := s.loadByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ConceptResult, 0, len(qualifiers))
	for _, q := range qualifiers {
		m, ok := memories[q.id]
		if !ok {
			continue
		}
		results = append(results, ConceptResult{
			Memory:        m,
			AvgSimilarity: q.avg,
			PerConcept:    q.sims,
		})
	}
	return results, nil
}
