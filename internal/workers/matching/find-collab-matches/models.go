package findcollabmatches

import "member-match-workers/internal/models"

type Input struct {
	MemberID string `json:"memberId"`
	Limit    int    `json:"limit,omitempty"`
}

type Output struct {
	MemberID string               `json:"memberId"`
	Matches  []models.MatchResult `json:"matches"` // candidateId carries the request id
	Source   string               `json:"source"`
}
