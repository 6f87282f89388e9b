package matching

import (
	"sort"

	"member-match-workers/internal/models"
)

// DefaultRankLimit bounds on-demand result lists when the caller doesn't ask
// for a specific size.
const DefaultRankLimit = 10

// Ranker orchestrates Policy A scoring across a candidate pool for on-demand
// queries. Pure: output depends only on the query, the pool snapshot and the
// injected random source.
type Ranker struct {
	jitter *Jitter
}

func NewRanker(jitter *Jitter) *Ranker {
	if jitter == nil {
		jitter = NewDefaultJitter()
	}
	return &Ranker{jitter: jitter}
}

// Rank scores every candidate against the supplied query, sorts descending
// by score and truncates to limit. Ties keep pool order (stable sort).
// Inactive candidates and duplicates are dropped; an empty pool yields an
// empty list, not an error. Self-exclusion is the pool builder's job.
func (r *Ranker) Rank(q AdHocQuery, pool []Signals, limit int) []models.MatchResult {
	if limit <= 0 {
		limit = DefaultRankLimit
	}

	results := make([]models.MatchResult, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, candidate := range pool {
		if !candidate.Member.IsActive {
			continue
		}
		if seen[candidate.Member.ID] {
			continue
		}
		seen[candidate.Member.ID] = true
		results = append(results, ScoreAdHoc(q, candidate, r.jitter))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
