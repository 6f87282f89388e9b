package runweeklydigest

import (
	"context"
	"errors"
	"testing"
	"time"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type mockSnapshotSource struct {
	snapshot []matching.Signals
	err      error
}

func (m *mockSnapshotSource) ActiveMembers(_ context.Context, _ string) ([]matching.Signals, error) {
	return m.snapshot, m.err
}

type mockDispatcher struct {
	calls   []string
	failFor map[string]error
}

func (m *mockDispatcher) Dispatch(_ context.Context, member models.MemberProfile, _ []models.MatchResult) (string, error) {
	m.calls = append(m.calls, member.ID)
	if err, ok := m.failFor[member.ID]; ok {
		return "", err
	}
	return "delivery-" + member.ID, nil
}

type mockAuditLog struct {
	runIDs  []string
	records []models.DigestDecision
}

func (m *mockAuditLog) Record(_ context.Context, runID string, decision models.DigestDecision) error {
	m.runIDs = append(m.runIDs, runID)
	m.records = append(m.records, decision)
	return nil
}

// ==========================
// Test Helper Functions
// ==========================

func testConfig() *Config {
	return &Config{
		MinScore:   60,
		MinMatches: 3,
		MaxMatches: 5,
		Timeout:    time.Minute,
	}
}

func digestMember(id string, optIn bool) matching.Signals {
	return matching.Signals{
		Member: models.MemberProfile{
			ID:                id,
			Industry:          "Real Estate",
			IsActive:          true,
			WeeklyDigestOptIn: optIn,
		},
		LookingFor: []string{"referrals"},
		CanOffer:   []string{"referrals"},
	}
}

// Four mutually-matching members: every pair scores 98.
func qualifyingSnapshot() []matching.Signals {
	return []matching.Signals{
		digestMember("m-1", true),
		digestMember("m-2", true),
		digestMember("m-3", true),
		digestMember("m-4", true),
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FullRun(t *testing.T) {
	source := &mockSnapshotSource{snapshot: qualifyingSnapshot()}
	dispatcher := &mockDispatcher{}
	audit := &mockAuditLog{}
	handler := NewHandler(testConfig(), source, dispatcher, audit, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{RunID: "run-42"})

	require.NoError(t, err)
	assert.Equal(t, "run-42", output.RunID)
	assert.Equal(t, 4, output.Processed)
	assert.Equal(t, 4, output.Sent)
	assert.Equal(t, 0, output.Skipped)
	assert.Equal(t, 0, output.Failed)
	assert.Len(t, output.Decisions, 4)

	assert.Equal(t, []string{"m-1", "m-2", "m-3", "m-4"}, dispatcher.calls)
	require.Len(t, audit.records, 4)
	for _, runID := range audit.runIDs {
		assert.Equal(t, "run-42", runID)
	}
}

func TestHandler_Execute_GeneratesRunID(t *testing.T) {
	source := &mockSnapshotSource{snapshot: nil}
	handler := NewHandler(testConfig(), source, &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	first, err := handler.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	assert.NotEmpty(t, first.RunID)
	assert.NotEmpty(t, second.RunID)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestHandler_Execute_CountsMixedOutcomes(t *testing.T) {
	snapshot := qualifyingSnapshot()
	snapshot = append(snapshot, digestMember("loner", true))
	// The loner shares the pool but their pair scores still qualify; to force a
	// skip, strip their industry and tags so every pair lands at 25.
	snapshot[4].Member.Industry = "Catering"
	snapshot[4].LookingFor = nil
	snapshot[4].CanOffer = nil

	dispatcher := &mockDispatcher{
		failFor: map[string]error{"m-3": errors.New("ses unavailable")},
	}
	source := &mockSnapshotSource{snapshot: snapshot}
	handler := NewHandler(testConfig(), source, dispatcher, nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{RunID: "run-1"})

	require.NoError(t, err)
	assert.Equal(t, 5, output.Processed)
	assert.Equal(t, 3, output.Sent)
	assert.Equal(t, 1, output.Skipped)
	assert.Equal(t, 1, output.Failed)
}

func TestHandler_Execute_SkipsOptedOutMembers(t *testing.T) {
	snapshot := qualifyingSnapshot()
	snapshot[0].Member.WeeklyDigestOptIn = false

	dispatcher := &mockDispatcher{}
	source := &mockSnapshotSource{snapshot: snapshot}
	handler := NewHandler(testConfig(), source, dispatcher, nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{RunID: "run-1"})

	require.NoError(t, err)
	assert.Equal(t, 3, output.Processed)
	assert.NotContains(t, dispatcher.calls, "m-1")
}

func TestHandler_Execute_EmptySnapshot(t *testing.T) {
	source := &mockSnapshotSource{}
	handler := NewHandler(testConfig(), source, &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{RunID: "run-1"})

	require.NoError(t, err)
	assert.Equal(t, 0, output.Processed)
	assert.Empty(t, output.Decisions)
}

func TestHandler_Execute_SnapshotLoadFailure(t *testing.T) {
	source := &mockSnapshotSource{err: errors.New("connection refused")}
	handler := NewHandler(testConfig(), source, &mockDispatcher{}, nil, nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{RunID: "run-1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "load member snapshot")
	assert.Nil(t, output)
}
