package senddigestemail

import "member-match-workers/internal/models"

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type Input struct {
	MemberID   string               `json:"memberId"`
	MemberName string               `json:"memberName,omitempty"`
	Matches    []models.MatchResult `json:"matches"`
}

type Output struct {
	DeliveryID string `json:"deliveryId"`
	Status     string `json:"status"`           // "sent", "failed", "disabled"
	Reason     string `json:"reason,omitempty"` // why delivery failed, empty otherwise
	SentAt     string `json:"sentAt"`
}
