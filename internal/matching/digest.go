package matching

import (
	"context"
	"fmt"
	"sort"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/common/observability"
	"member-match-workers/internal/models"
)

// Dispatcher composes and sends one member's digest. Returns an optional
// delivery identifier recorded verbatim into the decision.
type Dispatcher interface {
	Dispatch(ctx context.Context, member models.MemberProfile, matches []models.MatchResult) (string, error)
}

// AuditLog persists per-member decisions. Failures are logged and swallowed;
// the run never depends on the audit trail succeeding.
type AuditLog interface {
	Record(ctx context.Context, runID string, decision models.DigestDecision) error
}

// SelectorConfig is the digest quality gate.
type SelectorConfig struct {
	MinScore   int // matches below this score don't count
	MinMatches int // members with fewer qualifying matches are skipped
	MaxMatches int // top-N included per digest
	ScoreCap   int // digest scores never exceed this
}

// DefaultSelectorConfig returns the production gate: score >= 60, at least 3
// matches, at most 5 per digest, scores capped at 98.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{MinScore: 60, MinMatches: 3, MaxMatches: 5, ScoreCap: DigestScoreCap}
}

// Selector is the batch path: for every opted-in member it computes top
// digest matches, applies the quality gate and either dispatches a digest or
// records a skip. Member failures are isolated — one bad dispatch never
// aborts the rest of the run.
type Selector struct {
	cfg        SelectorConfig
	dispatcher Dispatcher
	audit      AuditLog
	obs        *observability.Observability
	logger     logger.Logger
}

func NewSelector(cfg SelectorConfig, dispatcher Dispatcher, audit AuditLog, obs *observability.Observability, log logger.Logger) *Selector {
	if cfg.MinScore == 0 && cfg.MinMatches == 0 && cfg.MaxMatches == 0 {
		cfg = DefaultSelectorConfig()
	}
	if cfg.ScoreCap <= 0 {
		cfg.ScoreCap = DigestScoreCap
	}
	return &Selector{
		cfg:        cfg,
		dispatcher: dispatcher,
		audit:      audit,
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"component": "digest-selector"}),
	}
}

// Run processes the snapshot one member at a time. Members are independent,
// so this loop could fan out to a worker pool; it stays serial to respect
// downstream email provider rate limits.
func (s *Selector) Run(ctx context.Context, runID string, snapshot []Signals) []models.DigestDecision {
	decisions := make([]models.DigestDecision, 0, len(snapshot))

	for _, member := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if !member.Member.IsActive || !member.Member.WeeklyDigestOptIn {
			continue
		}

		decision := s.processMember(ctx, member, snapshot)
		decisions = append(decisions, decision)
		s.record(ctx, runID, decision)
	}

	return decisions
}

// TopMatches computes the member's qualifying digest matches: scores the
// member against every other active member, filters by the score gate,
// stable-sorts descending and truncates to MaxMatches.
func (s *Selector) TopMatches(member Signals, snapshot []Signals) []models.MatchResult {
	matches, _ := s.topMatches(member, snapshot)
	return matches
}

func (s *Selector) topMatches(member Signals, snapshot []Signals) ([]models.MatchResult, int) {
	scored := 0
	matches := make([]models.MatchResult, 0, len(snapshot))
	for _, candidate := range snapshot {
		if candidate.Member.ID == member.Member.ID || !candidate.Member.IsActive {
			continue
		}
		scored++
		result := ScoreDigest(member, candidate, s.cfg.ScoreCap)
		if result.Score >= s.cfg.MinScore {
			matches = append(matches, result)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > s.cfg.MaxMatches {
		matches = matches[:s.cfg.MaxMatches]
	}
	return matches, scored
}

func (s *Selector) processMember(ctx context.Context, member Signals, snapshot []Signals) models.DigestDecision {
	matches, scored := s.topMatches(member, snapshot)
	if s.obs != nil {
		s.obs.RecordPairsScored(ctx, int64(scored), "digest")
	}

	if len(matches) < s.cfg.MinMatches {
		s.logger.Debug("digest skipped", map[string]interface{}{
			"memberId":   member.Member.ID,
			"matchCount": len(matches),
		})
		return models.DigestDecision{
			MemberID:   member.Member.ID,
			Status:     models.DigestStatusSkipped,
			MatchCount: len(matches),
			Reason:     fmt.Sprintf("Insufficient matches (< %d)", s.cfg.MinMatches),
		}
	}

	deliveryID, err := s.dispatcher.Dispatch(ctx, member.Member, matches)
	if err != nil {
		s.logger.Error("digest dispatch failed", map[string]interface{}{
			"memberId": member.Member.ID,
			"error":    err.Error(),
		})
		return models.DigestDecision{
			MemberID:   member.Member.ID,
			Status:     models.DigestStatusFailed,
			MatchCount: len(matches),
			Reason:     err.Error(),
		}
	}

	return models.DigestDecision{
		MemberID:   member.Member.ID,
		Status:     models.DigestStatusSent,
		MatchCount: len(matches),
		DeliveryID: deliveryID,
	}
}

func (s *Selector) record(ctx context.Context, runID string, decision models.DigestDecision) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, runID, decision); err != nil {
		s.logger.Warn("audit record failed", map[string]interface{}{
			"memberId": decision.MemberID,
			"error":    err.Error(),
		})
	}
}
