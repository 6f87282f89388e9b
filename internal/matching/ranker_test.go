package matching

import (
	"testing"

	"member-match-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func newDeterministicRanker() *Ranker {
	return NewRanker(NewJitter(midRand{}, DefaultJitterBound, AdHocScoreFloor, AdHocScoreCeiling))
}

func TestRanker_Rank_OrdersByScoreDescending(t *testing.T) {
	ranker := newDeterministicRanker()
	query := AdHocQuery{
		LookingFor: []string{"Accounting"},
		CanOffer:   []string{"Web Design"},
	}

	pool := []Signals{
		makeSignals("networking", "Catering", nil, nil),                                          // 40
		makeSignals("mutual", "Finance", []string{"web design"}, []string{"accounting"}),         // 90
		makeSignals("ideal-client", "Finance", nil, []string{"accounting services"}),             // 70
		makeSignals("service-provider", "Retail", []string{"web design services"}, nil),          // 75
		makeSignals("industry", "Accounting", nil, nil),                                          // 60
	}

	results := ranker.Rank(query, pool, 10)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.CandidateID
	}
	assert.Equal(t, []string{"mutual", "service-provider", "ideal-client", "industry", "networking"}, ids)
}

func TestRanker_Rank_TiesKeepPoolOrder(t *testing.T) {
	ranker := newDeterministicRanker()
	query := AdHocQuery{}

	// Everyone scores 40; stable sort must preserve pool order.
	pool := []Signals{
		makeSignals("first", "", nil, nil),
		makeSignals("second", "", nil, nil),
		makeSignals("third", "", nil, nil),
	}

	results := ranker.Rank(query, pool, 10)

	assert.Len(t, results, 3)
	assert.Equal(t, "first", results[0].CandidateID)
	assert.Equal(t, "second", results[1].CandidateID)
	assert.Equal(t, "third", results[2].CandidateID)
}

func TestRanker_Rank_TruncatesToLimit(t *testing.T) {
	ranker := newDeterministicRanker()

	pool := make([]Signals, 25)
	for i := range pool {
		pool[i] = makeSignals(string(rune('a'+i)), "", nil, nil)
	}

	assert.Len(t, ranker.Rank(AdHocQuery{}, pool, 5), 5)
	// Non-positive limit falls back to the default.
	assert.Len(t, ranker.Rank(AdHocQuery{}, pool, 0), DefaultRankLimit)
	assert.Len(t, ranker.Rank(AdHocQuery{}, pool, -1), DefaultRankLimit)
}

func TestRanker_Rank_SkipsInactiveAndDuplicates(t *testing.T) {
	ranker := newDeterministicRanker()

	inactive := makeSignals("inactive", "", nil, nil)
	inactive.Member.IsActive = false

	pool := []Signals{
		makeSignals("dup", "", nil, nil),
		inactive,
		makeSignals("dup", "", nil, nil),
		makeSignals("other", "", nil, nil),
	}

	results := ranker.Rank(AdHocQuery{}, pool, 10)

	assert.Len(t, results, 2)
	assert.Equal(t, "dup", results[0].CandidateID)
	assert.Equal(t, "other", results[1].CandidateID)
}

func TestRanker_Rank_EmptyPool(t *testing.T) {
	ranker := newDeterministicRanker()

	results := ranker.Rank(AdHocQuery{LookingFor: []string{"anything"}}, nil, 10)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRanker_Rank_ResultShape(t *testing.T) {
	ranker := newDeterministicRanker()
	pool := []Signals{makeSignals("c-1", "Retail", []string{"seo services"}, nil)}

	results := ranker.Rank(AdHocQuery{CanOffer: []string{"SEO"}}, pool, 10)

	assert.Len(t, results, 1)
	assert.Equal(t, models.SourceRuleBased, results[0].Source)
	assert.Len(t, results[0].Reasons, 1)
}
