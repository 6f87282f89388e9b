package models

// MatchType classifies the relationship a match represents.
type MatchType string

const (
	MatchTypeUnset           MatchType = ""
	MatchTypeMutual          MatchType = "mutual"
	MatchTypeServiceProvider MatchType = "service-provider" // subject can help candidate
	MatchTypeIdealClient     MatchType = "ideal-client"     // candidate can help subject
	MatchTypeIndustryMatch   MatchType = "industry-match"
	MatchTypePartnership     MatchType = "partnership"
	MatchTypeNetworking      MatchType = "networking"
)

// MatchEvent is a scoring rule firing during digest scoring.
type MatchEvent int

const (
	EventIndustryAligned MatchEvent = iota // industries match exactly
	EventSubjectHelps                      // subject's offers meet candidate's needs
	EventCandidateHelps                    // candidate's offers meet subject's needs
)

// Advance returns the match type after the given event fires. Transitions are
// explicit rather than sequential variable mutation so the precedence is
// auditable: service-provider followed by a candidate-helps event becomes
// mutual and outranks every other label; a label set earlier is otherwise
// sticky.
func (t MatchType) Advance(event MatchEvent) MatchType {
	switch event {
	case EventIndustryAligned:
		if t == MatchTypeUnset {
			return MatchTypeIndustryMatch
		}
	case EventSubjectHelps:
		if t == MatchTypeUnset {
			return MatchTypeServiceProvider
		}
	case EventCandidateHelps:
		if t == MatchTypeServiceProvider {
			return MatchTypeMutual
		}
		if t == MatchTypeUnset {
			return MatchTypeIdealClient
		}
	}
	return t
}

// Valid reports whether t is one of the publishable match types.
func (t MatchType) Valid() bool {
	switch t {
	case MatchTypeMutual, MatchTypeServiceProvider, MatchTypeIdealClient,
		MatchTypeIndustryMatch, MatchTypePartnership, MatchTypeNetworking:
		return true
	}
	return false
}

// Match sources
const (
	SourceRuleBased  = "rule-based"
	SourceAIEnriched = "ai-enriched"
)

// MatchResult is an ephemeral value computed per (subject, candidate) pair.
// The engine never persists it; callers may record it as an audit row.
type MatchResult struct {
	CandidateID string    `json:"candidateId"`
	Score       int       `json:"score"`
	MatchType   MatchType `json:"matchType"`
	Reasons     []string  `json:"reasons"` // at most 3, in production order
	Source      string    `json:"source"`  // "rule-based" or "ai-enriched"

	// ValueProposition is only populated on AI-enriched results.
	ValueProposition string `json:"valueProposition,omitempty"`
}

// Digest decision statuses
const (
	DigestStatusSent    = "sent"
	DigestStatusSkipped = "skipped"
	DigestStatusFailed  = "failed"
)

// DigestDecision is the per-member outcome of one digest run. Fresh each run;
// never carried between runs.
type DigestDecision struct {
	MemberID   string `json:"memberId"`
	Status     string `json:"status"` // "sent", "skipped", "failed"
	MatchCount int    `json:"matchCount"`
	Reason     string `json:"reason,omitempty"`     // present when skipped or failed
	DeliveryID string `json:"deliveryId,omitempty"` // dispatch identifier, recorded verbatim
}
