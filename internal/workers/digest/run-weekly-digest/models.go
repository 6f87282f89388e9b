package runweeklydigest

import "member-match-workers/internal/models"

type Input struct {
	RunID string `json:"runId,omitempty"` // generated when absent
}

type Output struct {
	RunID     string                  `json:"runId"`
	Processed int                     `json:"processed"`
	Sent      int                     `json:"sent"`
	Skipped   int                     `json:"skipped"`
	Failed    int                     `json:"failed"`
	Decisions []models.DigestDecision `json:"decisions"`
}
