package models

// MemberProfile is the engine's read-only view of a member. The surrounding
// platform owns creation and edits; scoring never mutates it.
type MemberProfile struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	Industry          string `json:"industry,omitempty"`
	IsActive          bool   `json:"isActive"`
	WeeklyDigestOptIn bool   `json:"weeklyDigestOptIn"`
}

// Opportunity kinds
const (
	OpportunityLookingFor = "looking_for"
	OpportunityCanOffer   = "can_offer"
)

// Opportunity is one declared need or offer tag attached to a member.
type Opportunity struct {
	MemberID string `json:"memberId"`
	Kind     string `json:"kind"` // "looking_for" or "can_offer"
	Category string `json:"category"`
}

// CollabRequest statuses
const (
	CollabStatusOpen   = "open"
	CollabStatusClosed = "closed"
)

// CollabRequest is an open collaboration request posted by a member.
type CollabRequest struct {
	ID          string   `json:"id"`
	MemberID    string   `json:"memberId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	LookingFor  []string `json:"lookingFor,omitempty"`
	Status      string   `json:"status"`
}
