package findmembermatches

import (
	"context"
	"errors"
	"testing"
	"time"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"
	"member-match-workers/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type mockMemberSource struct {
	subject    matching.Signals
	subjectErr error
	pool       []matching.Signals
	poolErr    error
}

func (m *mockMemberSource) MemberSignals(_ context.Context, _ string) (matching.Signals, error) {
	return m.subject, m.subjectErr
}

func (m *mockMemberSource) ActiveMembers(_ context.Context, _ string) ([]matching.Signals, error) {
	return m.pool, m.poolErr
}

type mockAdvisor struct {
	matches []models.MatchResult
	err     error
	called  bool
}

func (m *mockAdvisor) MatchMembers(_ context.Context, _ matching.Signals, _ []matching.Signals) ([]models.MatchResult, error) {
	m.called = true
	return m.matches, m.err
}

// zeroRand makes jitter noise exactly zero so scores are deterministic.
type zeroRand struct{}

func (zeroRand) Intn(n int) int { return n / 2 }

// ==========================
// Test Helper Functions
// ==========================

func testRanker() *matching.Ranker {
	return matching.NewRanker(matching.NewJitter(zeroRand{}, matching.DefaultJitterBound, matching.AdHocScoreFloor, matching.AdHocScoreCeiling))
}

func testConfig() *Config {
	return &Config{
		DefaultLimit: 10,
		AITimeout:    5 * time.Second,
		Timeout:      30 * time.Second,
	}
}

func signalsFor(id string, lookingFor, canOffer []string) matching.Signals {
	return matching.Signals{
		Member:     models.MemberProfile{ID: id, IsActive: true},
		LookingFor: lookingFor,
		CanOffer:   canOffer,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_RuleBased(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", []string{"Accounting"}, []string{"Web Design"}),
		pool: []matching.Signals{
			signalsFor("mutual", []string{"web design"}, []string{"accounting"}),
			signalsFor("stranger", nil, nil),
		},
	}
	handler := NewHandler(testConfig(), source, testRanker(), nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject"})

	require.NoError(t, err)
	assert.Equal(t, "subject", output.MemberID)
	assert.Equal(t, models.SourceRuleBased, output.Source)
	require.Len(t, output.Matches, 2)
	assert.Equal(t, "mutual", output.Matches[0].CandidateID)
	assert.Equal(t, 90, output.Matches[0].Score)
	assert.Equal(t, models.MatchTypeMutual, output.Matches[0].MatchType)
}

func TestHandler_Execute_SuppliedTagsOverrideStoredProfile(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", []string{"Accounting"}, nil),
		pool: []matching.Signals{
			signalsFor("seo-provider", nil, []string{"seo services"}),
		},
	}
	handler := NewHandler(testConfig(), source, testRanker(), nil, nil, logger.NewNoOpLogger())

	// The request asks for SEO, overriding the stored "Accounting" need.
	output, err := handler.Execute(context.Background(), &Input{
		MemberID:   "subject",
		LookingFor: []string{"SEO"},
	})

	require.NoError(t, err)
	require.Len(t, output.Matches, 1)
	assert.Equal(t, 70, output.Matches[0].Score)
	assert.Equal(t, models.MatchTypeIdealClient, output.Matches[0].MatchType)
}

func TestHandler_Execute_EmptyInputFallsBackToStoredProfile(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", nil, []string{"Marketing"}),
		pool: []matching.Signals{
			signalsFor("needs-marketing", []string{"marketing consulting"}, nil),
		},
	}
	handler := NewHandler(testConfig(), source, testRanker(), nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject"})

	require.NoError(t, err)
	require.Len(t, output.Matches, 1)
	assert.Equal(t, 75, output.Matches[0].Score)
	assert.Equal(t, models.MatchTypeServiceProvider, output.Matches[0].MatchType)
}

func TestHandler_Execute_LimitApplied(t *testing.T) {
	pool := make([]matching.Signals, 15)
	for i := range pool {
		pool[i] = signalsFor("c-"+string(rune('a'+i)), nil, nil)
	}
	source := &mockMemberSource{subject: signalsFor("subject", nil, nil), pool: pool}
	handler := NewHandler(testConfig(), source, testRanker(), nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, output.Matches, 3)

	// Zero limit uses the configured default.
	output, err = handler.Execute(context.Background(), &Input{MemberID: "subject"})
	require.NoError(t, err)
	assert.Len(t, output.Matches, 10)
}

// ==========================
// AI Enrichment Tests
// ==========================

func TestHandler_Execute_AIEnrichment(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", []string{"Accounting"}, nil),
		pool:    []matching.Signals{signalsFor("c-1", nil, nil)},
	}
	advisor := &mockAdvisor{
		matches: []models.MatchResult{
			{CandidateID: "c-1", Score: 88, MatchType: models.MatchTypeMutual, Source: models.SourceAIEnriched},
		},
	}
	handler := NewHandler(testConfig(), source, testRanker(), advisor, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject", UseAI: true})

	require.NoError(t, err)
	assert.True(t, advisor.called)
	assert.Equal(t, models.SourceAIEnriched, output.Source)
	require.Len(t, output.Matches, 1)
	assert.Equal(t, "c-1", output.Matches[0].CandidateID)
}

func TestHandler_Execute_AIFailureFallsBackToRuleBased(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", []string{"Accounting"}, nil),
		pool: []matching.Signals{
			signalsFor("provider", nil, []string{"accounting services"}),
		},
	}
	advisor := &mockAdvisor{err: errors.New("AI_MATCHING_FAILED: backend unavailable")}
	handler := NewHandler(testConfig(), source, testRanker(), advisor, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject", UseAI: true})

	// The caller never sees the AI failure.
	require.NoError(t, err)
	assert.True(t, advisor.called)
	assert.Equal(t, models.SourceRuleBased, output.Source)
	require.Len(t, output.Matches, 1)
	assert.Equal(t, "provider", output.Matches[0].CandidateID)
}

func TestHandler_Execute_AINotRequestedSkipsAdvisor(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", nil, nil),
		pool:    []matching.Signals{signalsFor("c-1", nil, nil)},
	}
	advisor := &mockAdvisor{}
	handler := NewHandler(testConfig(), source, testRanker(), advisor, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject"})

	require.NoError(t, err)
	assert.False(t, advisor.called)
	assert.Equal(t, models.SourceRuleBased, output.Source)
}

func TestHandler_Execute_AIShortlistTruncatedToLimit(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", nil, nil),
		pool:    []matching.Signals{signalsFor("c-1", nil, nil)},
	}
	advisor := &mockAdvisor{
		matches: []models.MatchResult{
			{CandidateID: "c-1", Score: 90},
			{CandidateID: "c-2", Score: 80},
			{CandidateID: "c-3", Score: 70},
		},
	}
	handler := NewHandler(testConfig(), source, testRanker(), advisor, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject", UseAI: true, Limit: 2})

	require.NoError(t, err)
	assert.Len(t, output.Matches, 2)
}

// ==========================
// Error Cases
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       *Input
		source      *mockMemberSource
		expectedErr error
	}{
		{
			name:        "missing member id",
			input:       &Input{},
			source:      &mockMemberSource{},
			expectedErr: errMissingMemberID,
		},
		{
			name:        "member not found",
			input:       &Input{MemberID: "ghost"},
			source:      &mockMemberSource{subjectErr: repository.ErrMemberNotFound},
			expectedErr: repository.ErrMemberNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(testConfig(), tt.source, testRanker(), nil, nil, logger.NewNoOpLogger())

			output, err := handler.Execute(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, output)
		})
	}
}

func TestHandler_Execute_PoolLoadFailure(t *testing.T) {
	source := &mockMemberSource{
		subject: signalsFor("subject", nil, nil),
		poolErr: errors.New("connection refused"),
	}
	handler := NewHandler(testConfig(), source, testRanker(), nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{MemberID: "subject"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "load candidate pool")
	assert.Nil(t, output)
}
