package matching

import (
	"strings"

	"member-match-workers/internal/models"
)

// Signals is the normalized, comparable view of one member's declared needs
// and offers. Tags keep their original casing for display; comparisons
// lower-case at match time.
type Signals struct {
	Member     models.MemberProfile
	LookingFor []string
	CanOffer   []string
}

// NewSignals builds the tag sets for a member from its opportunity records.
// A member with zero opportunities yields two empty sets, not an error.
func NewSignals(member models.MemberProfile, opportunities []models.Opportunity) Signals {
	s := Signals{Member: member}
	for _, opp := range opportunities {
		if opp.MemberID != "" && opp.MemberID != member.ID {
			continue
		}
		tag := strings.TrimSpace(opp.Category)
		if tag == "" {
			continue
		}
		switch opp.Kind {
		case models.OpportunityLookingFor:
			s.LookingFor = appendTag(s.LookingFor, tag)
		case models.OpportunityCanOffer:
			s.CanOffer = appendTag(s.CanOffer, tag)
		}
	}
	return s
}

// appendTag adds tag unless an equivalent (case-insensitive) entry exists.
func appendTag(tags []string, tag string) []string {
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return tags
		}
	}
	return append(tags, tag)
}

// tagsMatch is the fuzzy tag match: case-insensitive substring containment
// tested in both directions. Commutative by construction.
func tagsMatch(a, b string) bool {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// anyTagMatch reports whether any tag in as fuzzy-matches any tag in bs.
func anyTagMatch(as, bs []string) bool {
	for _, a := range as {
		for _, b := range bs {
			if tagsMatch(a, b) {
				return true
			}
		}
	}
	return false
}
