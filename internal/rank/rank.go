// Package rank implements reciprocal rank fusion of the full-text and vector
// result lists, and the post-fusion score adjustments (time decay, importance
// tier weight, access boost). Everything here is a pure function so ranking
// behavior is testable without a database.
package rank

import (
	"math"
	"sort"

	"github.com/localmem/memdex/internal/model"
)

// VectorHit is one vector-search result. Similarity is 0-100, higher better.
type VectorHit struct {
	MemoryID   int64
	Similarity float64
}

// Params configures fusion. Weights of 1.0 reproduce classic unweighted RRF;
// the weighted extension exists because the configuration exposes separate
// engine weights. Zero values fall back to the defaults (k=60, weights 1.0);
// configuration validation rejects non-positive weights, so an explicit zero
// never reaches here from a config file.
type Params struct {
	K            int
	FTSWeight    float64
	VectorWeight float64
}

// Fused is one memory after rank fusion.
type Fused struct {
	MemoryID    int64
	FusionScore float64
	// Similarity is the raw vector similarity, 0 when the memory was found
	// only by full-text search.
	Similarity float64
}

// Fuse combines the two ranked lists with reciprocal rank fusion:
// score(m) = ftsWeight/(k+r_fts) + vectorWeight/(k+r_vec), ranks 1-based,
// a missing list contributing nothing. A memory present in both lists
// structurally outranks one found by a single engine. When one engine is
// unavailable its list is empty and fusion degenerates to the survivor.
// Ties break by raw vector similarity, then by recency (newer createdAtEpoch
// first) for deterministic ordering.
func Fuse(ftsIDs []int64, vecHits []VectorHit, p Params, createdAtEpoch map[int64]int64) []Fused {
	if p.K <= 0 {
		p.K = 60
	}
	if p.FTSWeight <= 0 {
		p.FTSWeight = 1.0
	}
	if p.VectorWeight <= 0 {
		p.VectorWeight = 1.0
	}

	scores := make(map[int64]*Fused)

	for i, id := range ftsIDs {
		f := &Fused{MemoryID: id}
		f.FusionScore = p.FTSWeight / float64(p.K+i+1)
		scores[id] = f
	}
	for i, hit := range vecHits {
		f, ok := scores[hit.MemoryID]
		if !ok {
			f = &Fused{MemoryID: hit.MemoryID}
			scores[hit.MemoryID] = f
		}
		f.FusionScore += p.VectorWeight / float64(p.K+i+1)
		f.Similarity = hit.Similarity
	}

	fused := make([]Fused, 0, len(scores))
	for _, f := range scores {
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.FusionScore != b.FusionScore {
			return a.FusionScore > b.FusionScore
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		ea, eb := createdAtEpoch[a.MemoryID], createdAtEpoch[b.MemoryID]
		if ea != eb {
			return ea > eb
		}
		return a.MemoryID > b.MemoryID
	})

	return fused
}

// ScoreParams configures the post-fusion adjustments.
type ScoreParams struct {
	HalfLifeDays   float64
	MinDecayFactor float64
	BoostFactor    float64
	MaxBoost       float64
	TierWeights    map[string]float64
}

// DefaultScoreParams mirrors the built-in configuration.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		HalfLifeDays:   90,
		MinDecayFactor: 0.1,
		BoostFactor:    0.1,
		MaxBoost:       1.0,
		TierWeights:    model.DefaultTierWeights,
	}
}

// DecayFactor computes the half-life time decay, floored at MinDecayFactor.
// Constitutional memories never decay.
func (p ScoreParams) DecayFactor(ageDays float64, tier string) float64 {
	if tier == model.TierConstitutional {
		return 1.0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	d := math.Pow(0.5, ageDays/p.HalfLifeDays)
	if d < p.MinDecayFactor {
		return p.MinDecayFactor
	}
	return d
}

// TierWeight returns the multiplicative weight for an importance tier,
// defaulting to the normal tier's weight for unknown values.
func (p ScoreParams) TierWeight(tier string) float64 {
	if w, ok := p.TierWeights[tier]; ok {
		return w
	}
	return p.TierWeights[model.TierNormal]
}

// AccessBoost computes the logarithmic access-count boost, capped at MaxBoost.
func (p ScoreParams) AccessBoost(accessCount int) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	b := p.BoostFactor * math.Log(float64(accessCount)+1)
	if b > p.MaxBoost {
		return p.MaxBoost
	}
	return b
}

// FinalScore applies decay, tier weight and access boost to a fusion score:
// fusion * decay * tierWeight * (1 + boost). A highly relevant but old,
// low-tier, rarely-accessed memory can end up below a moderately relevant,
// fresh, high-tier one; that trade-off is intended.
func (p ScoreParams) FinalScore(fusionScore, ageDays float64, tier string, accessCount int) float64 {
	return fusionScore *
		p.DecayFactor(ageDays, tier) *
		p.TierWeight(tier) *
		(1 + p.AccessBoost(accessCount))
}
