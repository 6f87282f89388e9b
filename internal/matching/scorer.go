package matching

import (
	"strings"

	"member-match-workers/internal/models"
)

// Ad-hoc (Policy A) base scores by rule priority.
const (
	adHocScoreMutual     = 90
	adHocScoreCanHelp    = 75
	adHocScoreNeedsMet   = 70
	adHocScoreIndustry   = 60
	adHocScoreNetworking = 40
)

// Digest (Policy B) additive points. Max raw total is 100, capped at 98.
const (
	digestPointsIndustry       = 30
	digestPointsSubjectHelps   = 25
	digestPointsCandidateHelps = 20
	digestPointsSharedMarket   = 15
	digestPointsLocality       = 10

	DigestScoreCap = 98

	digestPartnershipThreshold = 80
	maxReasons                 = 3
)

const localityReason = "Active in your local business community"

// AdHocQuery carries the tags the subject supplied with an explicit match
// request. These override the subject's stored profile on purpose, so a
// member can probe matches for tags they haven't saved yet.
type AdHocQuery struct {
	LookingFor []string
	CanOffer   []string
}

// ScoreAdHocBase computes the deterministic part of ad-hoc pair scoring:
// base score, the single reason attached at this stage, and the match type.
// Self-pairs must be excluded by the candidate pool builder.
func ScoreAdHocBase(q AdHocQuery, candidate Signals) (int, string, models.MatchType) {
	subjectCanHelp := anyTagMatch(candidate.LookingFor, q.CanOffer)
	candidateCanHelp := anyTagMatch(q.LookingFor, candidate.CanOffer)

	industryMatch := false
	if candidate.Member.Industry != "" {
		for _, tag := range q.LookingFor {
			if tagsMatch(tag, candidate.Member.Industry) {
				industryMatch = true
				break
			}
		}
	}

	switch {
	case subjectCanHelp && candidateCanHelp:
		return adHocScoreMutual, "Perfect mutual partnership opportunity", models.MatchTypeMutual
	case subjectCanHelp:
		return adHocScoreCanHelp, "You can help with their business needs", models.MatchTypeServiceProvider
	case candidateCanHelp:
		return adHocScoreNeedsMet, "They can help with your business needs", models.MatchTypeIdealClient
	case industryMatch:
		return adHocScoreIndustry, "Industry expertise alignment", models.MatchTypeIndustryMatch
	default:
		return adHocScoreNetworking, "General networking opportunity", models.MatchTypeNetworking
	}
}

// ScoreAdHoc is the Policy A scorer: base score by rule priority, then
// jitter and clamp to [30, 99].
func ScoreAdHoc(q AdHocQuery, candidate Signals, jitter *Jitter) models.MatchResult {
	base, reason, matchType := ScoreAdHocBase(q, candidate)
	return models.MatchResult{
		CandidateID: candidate.Member.ID,
		Score:       jitter.Apply(base),
		MatchType:   matchType,
		Reasons:     []string{reason},
		Source:      models.SourceRuleBased,
	}
}

// ScoreDigest is the Policy B scorer used for weekly recommendations. Points
// accumulate additively and the total is capped; a non-positive cap selects
// the default of 98. No jitter: batch scores must be stable enough to gate on
// a quality threshold without flapping if re-scored for audit.
func ScoreDigest(subject, candidate Signals, scoreCap int) models.MatchResult {
	if scoreCap <= 0 {
		scoreCap = DigestScoreCap
	}
	score := 0
	matchType := models.MatchTypeUnset
	var reasons []string

	if subject.Member.Industry != "" && candidate.Member.Industry != "" &&
		strings.EqualFold(subject.Member.Industry, candidate.Member.Industry) {
		score += digestPointsIndustry
		reasons = append(reasons, "Both in "+subject.Member.Industry)
		matchType = matchType.Advance(models.EventIndustryAligned)
	}

	if anyTagMatch(subject.CanOffer, candidate.LookingFor) {
		score += digestPointsSubjectHelps
		reasons = append(reasons, "They need what you offer")
		matchType = matchType.Advance(models.EventSubjectHelps)
	}

	if anyTagMatch(candidate.CanOffer, subject.LookingFor) {
		score += digestPointsCandidateHelps
		reasons = append(reasons, "They offer what you need")
		matchType = matchType.Advance(models.EventCandidateHelps)
	}

	// Both sides belong to the same membership pool.
	score += digestPointsSharedMarket

	score += digestPointsLocality
	if len(reasons) < maxReasons {
		reasons = append(reasons, localityReason)
	}

	if matchType == models.MatchTypeUnset {
		if score >= digestPartnershipThreshold {
			matchType = models.MatchTypePartnership
		} else {
			matchType = models.MatchTypeNetworking
		}
	}

	if score > scoreCap {
		score = scoreCap
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}

	return models.MatchResult{
		CandidateID: candidate.Member.ID,
		Score:       score,
		MatchType:   matchType,
		Reasons:     reasons,
		Source:      models.SourceRuleBased,
	}
}
