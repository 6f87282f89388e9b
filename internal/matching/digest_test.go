package matching

import (
	"context"
	"errors"
	"testing"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

type mockDispatcher struct {
	calls      []string
	failFor    map[string]error
	deliveryID string
}

func (m *mockDispatcher) Dispatch(_ context.Context, member models.MemberProfile, _ []models.MatchResult) (string, error) {
	m.calls = append(m.calls, member.ID)
	if err, ok := m.failFor[member.ID]; ok {
		return "", err
	}
	if m.deliveryID != "" {
		return m.deliveryID, nil
	}
	return "delivery-" + member.ID, nil
}

type mockAuditLog struct {
	records []models.DigestDecision
	err     error
}

func (m *mockAuditLog) Record(_ context.Context, _ string, decision models.DigestDecision) error {
	m.records = append(m.records, decision)
	return m.err
}

func digestMember(id, industry string, optIn bool, lookingFor, canOffer []string) Signals {
	return Signals{
		Member: models.MemberProfile{
			ID:                id,
			Industry:          industry,
			IsActive:          true,
			WeeklyDigestOptIn: optIn,
		},
		LookingFor: lookingFor,
		CanOffer:   canOffer,
	}
}

// Four members who all trade referrals in the same industry: every pair
// scores 98, so everyone has 3 qualifying matches.
func sameIndustrySnapshot() []Signals {
	return []Signals{
		digestMember("m-1", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
		digestMember("m-2", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
		digestMember("m-3", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
		digestMember("m-4", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
	}
}

func TestSelector_TopMatches(t *testing.T) {
	selector := NewSelector(DefaultSelectorConfig(), &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	t.Run("excludes self and applies score gate", func(t *testing.T) {
		subject := digestMember("subject", "Real Estate", true, []string{"staging"}, nil)
		snapshot := []Signals{
			subject,
			digestMember("provider", "Real Estate", true, nil, []string{"home staging"}), // 75, passes
			digestMember("same-industry", "Real Estate", true, nil, nil),                 // 55, gated out
			digestMember("stranger", "Catering", true, nil, nil),                         // 25, gated out
		}

		matches := selector.TopMatches(subject, snapshot)

		assert.Len(t, matches, 1)
		assert.Equal(t, "provider", matches[0].CandidateID)
		assert.GreaterOrEqual(t, matches[0].Score, DefaultSelectorConfig().MinScore)
	})

	t.Run("skips inactive candidates", func(t *testing.T) {
		inactive := digestMember("inactive", "Real Estate", true, nil, []string{"home staging"})
		inactive.Member.IsActive = false
		subject := digestMember("subject", "Real Estate", true, []string{"staging"}, nil)

		matches := selector.TopMatches(subject, []Signals{subject, inactive})

		assert.Empty(t, matches)
	})

	t.Run("truncates to max matches keeping highest scores", func(t *testing.T) {
		subject := digestMember("subject", "Finance", true, []string{"Web Design"}, []string{"Accounting"})
		snapshot := []Signals{subject}
		// 7 candidates above the gate; top 5 survive.
		for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			snapshot = append(snapshot, digestMember(id, "Finance", true, []string{"accounting"}, nil))
		}

		matches := selector.TopMatches(subject, snapshot)

		assert.Len(t, matches, DefaultSelectorConfig().MaxMatches)
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
		}
	})
}

func TestSelector_Run_SendsQualifyingDigests(t *testing.T) {
	dispatcher := &mockDispatcher{}
	audit := &mockAuditLog{}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, audit, nil, logger.NewNoOpLogger())

	decisions := selector.Run(context.Background(), "run-1", sameIndustrySnapshot())

	assert.Len(t, decisions, 4)
	for _, d := range decisions {
		assert.Equal(t, models.DigestStatusSent, d.Status)
		assert.Equal(t, 3, d.MatchCount)
		assert.Equal(t, "delivery-"+d.MemberID, d.DeliveryID)
		assert.Empty(t, d.Reason)
	}
	assert.Len(t, audit.records, 4)
}

func TestSelector_Run_SendsAboveMinimumMatches(t *testing.T) {
	dispatcher := &mockDispatcher{}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, nil, nil, logger.NewNoOpLogger())

	// Five members: each has 4 qualifying matches, one above the minimum.
	snapshot := append(sameIndustrySnapshot(),
		digestMember("m-5", "Real Estate", true, []string{"referrals"}, []string{"referrals"}))

	decisions := selector.Run(context.Background(), "run-1", snapshot)

	assert.Len(t, decisions, 5)
	for _, d := range decisions {
		assert.Equal(t, models.DigestStatusSent, d.Status)
		assert.Equal(t, 4, d.MatchCount)
	}
	assert.Len(t, dispatcher.calls, 5)
}

func TestSelector_Run_SkipsBelowMinimumMatches(t *testing.T) {
	dispatcher := &mockDispatcher{}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, nil, nil, logger.NewNoOpLogger())

	// Three members: each has only 2 qualifying matches, below the minimum of 3.
	snapshot := []Signals{
		digestMember("m-1", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
		digestMember("m-2", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
		digestMember("m-3", "Real Estate", true, []string{"referrals"}, []string{"referrals"}),
	}

	decisions := selector.Run(context.Background(), "run-1", snapshot)

	assert.Len(t, decisions, 3)
	for _, d := range decisions {
		assert.Equal(t, models.DigestStatusSkipped, d.Status)
		assert.Equal(t, 2, d.MatchCount)
		assert.Equal(t, "Insufficient matches (< 3)", d.Reason)
	}
	assert.Empty(t, dispatcher.calls)
}

func TestSelector_Run_SkipsOptedOutAndInactiveMembers(t *testing.T) {
	dispatcher := &mockDispatcher{}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, nil, nil, logger.NewNoOpLogger())

	snapshot := sameIndustrySnapshot()
	snapshot[0].Member.WeeklyDigestOptIn = false
	snapshot[1].Member.IsActive = false

	decisions := selector.Run(context.Background(), "run-1", snapshot)

	// Only m-3 and m-4 are processed; the others produce no decision at all.
	assert.Len(t, decisions, 2)
	assert.Equal(t, "m-3", decisions[0].MemberID)
	assert.Equal(t, "m-4", decisions[1].MemberID)
}

func TestSelector_Run_DispatchFailureIsIsolated(t *testing.T) {
	dispatcher := &mockDispatcher{
		failFor: map[string]error{"m-2": errors.New("ses: mailbox unavailable")},
	}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, nil, nil, logger.NewNoOpLogger())

	decisions := selector.Run(context.Background(), "run-1", sameIndustrySnapshot())

	assert.Len(t, decisions, 4)

	byMember := make(map[string]models.DigestDecision)
	for _, d := range decisions {
		byMember[d.MemberID] = d
	}

	assert.Equal(t, models.DigestStatusFailed, byMember["m-2"].Status)
	assert.Equal(t, "ses: mailbox unavailable", byMember["m-2"].Reason)
	assert.Empty(t, byMember["m-2"].DeliveryID)

	// The failure never aborts the run: the remaining members still send.
	for _, id := range []string{"m-1", "m-3", "m-4"} {
		assert.Equal(t, models.DigestStatusSent, byMember[id].Status)
	}
	assert.Equal(t, []string{"m-1", "m-2", "m-3", "m-4"}, dispatcher.calls)
}

func TestSelector_Run_AuditFailureIsSwallowed(t *testing.T) {
	dispatcher := &mockDispatcher{}
	audit := &mockAuditLog{err: errors.New("insert failed")}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, audit, nil, logger.NewNoOpLogger())

	decisions := selector.Run(context.Background(), "run-1", sameIndustrySnapshot())

	assert.Len(t, decisions, 4)
	for _, d := range decisions {
		assert.Equal(t, models.DigestStatusSent, d.Status)
	}
}

func TestSelector_Run_StopsOnCancelledContext(t *testing.T) {
	dispatcher := &mockDispatcher{}
	selector := NewSelector(DefaultSelectorConfig(), dispatcher, nil, nil, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decisions := selector.Run(ctx, "run-1", sameIndustrySnapshot())

	assert.Empty(t, decisions)
	assert.Empty(t, dispatcher.calls)
}

func TestNewSelector_ZeroConfigUsesDefaults(t *testing.T) {
	selector := NewSelector(SelectorConfig{}, &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	assert.Equal(t, DefaultSelectorConfig(), selector.cfg)
}

func TestNewSelector_MissingScoreCapDefaults(t *testing.T) {
	cfg := SelectorConfig{MinScore: 50, MinMatches: 2, MaxMatches: 4}
	selector := NewSelector(cfg, &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	assert.Equal(t, DigestScoreCap, selector.cfg.ScoreCap)
	assert.Equal(t, 50, selector.cfg.MinScore)
}
