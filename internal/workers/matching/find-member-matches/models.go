package findmembermatches

import "member-match-workers/internal/models"

type Input struct {
	MemberID   string   `json:"memberId"`
	LookingFor []string `json:"lookingFor,omitempty"` // overrides stored profile when supplied
	CanOffer   []string `json:"canOffer,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	UseAI      bool     `json:"useAi,omitempty"`
}

type Output struct {
	MemberID string               `json:"memberId"`
	Matches  []models.MatchResult `json:"matches"`
	Source   string               `json:"source"` // "rule-based" or "ai-enriched"
}
