// Package ai implements the optional AI enrichment path: a Gemini-backed
// advisor that shortlists candidates with richer match types and
// natural-language reasons. Callers must treat every advisor error as a
// signal to fall back to rule-based scoring.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"
)

// ErrAIMatchingFailed marks any enrichment failure: backend unavailable,
// timeout, or a response that doesn't parse against the schema.
var ErrAIMatchingFailed = errors.New("AI_MATCHING_FAILED")

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// AdvisorConfig carries the candidate caps and shortlist sizes. These are
// product-owned constants exposed as configuration, not derivable invariants.
type AdvisorConfig struct {
	MaxMemberPool   int // candidates sent for member-to-member matching
	MaxCollabPool   int // candidates sent for collaboration-request matching
	MemberShortlist int // matches requested back for members
	CollabShortlist int // matches requested back for collab requests
}

func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		MaxMemberPool:   50,
		MaxCollabPool:   20,
		MemberShortlist: 10,
		CollabShortlist: 5,
	}
}

// Advisor delegates match shortlisting to a language model. It performs no
// retries; retry policy belongs to the caller.
type Advisor struct {
	generator contentGenerator
	cfg       AdvisorConfig
	logger    logger.Logger
}

func NewAdvisor(generator contentGenerator, cfg AdvisorConfig, log logger.Logger) *Advisor {
	if cfg.MaxMemberPool <= 0 {
		cfg = DefaultAdvisorConfig()
	}
	return &Advisor{
		generator: generator,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "ai-advisor"}),
	}
}

// aiMatch is one entry of the model's JSON array response. Candidates are
// referenced by anonymized index, never by identity.
type aiMatch struct {
	Index            int      `json:"index"`
	Score            float64  `json:"score"`
	MatchType        string   `json:"matchType"`
	Reasons          []string `json:"reasons"`
	ValueProposition string   `json:"valueProposition"`
}

// MatchMembers asks the model for a top-10 shortlist out of at most 50
// candidates. An empty pool returns an empty list, not an error.
func (a *Advisor) MatchMembers(ctx context.Context, subject matching.Signals, candidates []matching.Signals) ([]models.MatchResult, error) {
	if len(candidates) == 0 {
		return []models.MatchResult{}, nil
	}
	if len(candidates) > a.cfg.MaxMemberPool {
		candidates = candidates[:a.cfg.MaxMemberPool]
	}

	summaries := make([]map[string]interface{}, len(candidates))
	for i, c := range candidates {
		summaries[i] = map[string]interface{}{
			"index":      i,
			"industry":   c.Member.Industry,
			"lookingFor": c.LookingFor,
			"canOffer":   c.CanOffer,
		}
	}

	prompt, err := buildMatchPrompt(subject, summaries, a.cfg.MemberShortlist, "other members of the network")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIMatchingFailed, err)
	}

	parsed, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	results := make([]models.MatchResult, 0, len(parsed))
	for _, m := range parsed {
		if m.Index < 0 || m.Index >= len(candidates) {
			// The model referenced a candidate that doesn't exist. Drop it.
			a.logger.Warn("discarding out-of-range match index", map[string]interface{}{
				"index":     m.Index,
				"poolSize":  len(candidates),
				"subjectId": subject.Member.ID,
			})
			continue
		}
		results = append(results, toMatchResult(m, candidates[m.Index].Member.ID))
		if len(results) == a.cfg.MemberShortlist {
			break
		}
	}
	return results, nil
}

// MatchCollabRequests asks the model for a top-5 shortlist out of at most 20
// open collaboration requests.
func (a *Advisor) MatchCollabRequests(ctx context.Context, subject matching.Signals, requests []models.CollabRequest) ([]models.MatchResult, error) {
	if len(requests) == 0 {
		return []models.MatchResult{}, nil
	}
	if len(requests) > a.cfg.MaxCollabPool {
		requests = requests[:a.cfg.MaxCollabPool]
	}

	summaries := make([]map[string]interface{}, len(requests))
	for i, r := range requests {
		summaries[i] = map[string]interface{}{
			"index":       i,
			"title":       r.Title,
			"description": r.Description,
			"lookingFor":  r.LookingFor,
		}
	}

	prompt, err := buildMatchPrompt(subject, summaries, a.cfg.CollabShortlist, "open collaboration requests")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIMatchingFailed, err)
	}

	parsed, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	results := make([]models.MatchResult, 0, len(parsed))
	for _, m := range parsed {
		if m.Index < 0 || m.Index >= len(requests) {
			a.logger.Warn("discarding out-of-range match index", map[string]interface{}{
				"index":     m.Index,
				"poolSize":  len(requests),
				"subjectId": subject.Member.ID,
			})
			continue
		}
		results = append(results, toMatchResult(m, requests[m.Index].ID))
		if len(results) == a.cfg.CollabShortlist {
			break
		}
	}
	return results, nil
}

func (a *Advisor) generate(ctx context.Context, prompt string) ([]aiMatch, error) {
	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrAIMatchingFailed, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrAIMatchingFailed, err)
	}

	cleaned := extractJSON(raw)
	if err := validateMatchResponse(cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIMatchingFailed, err)
	}

	var parsed []aiMatch
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrAIMatchingFailed, err)
	}
	return parsed, nil
}

func buildMatchPrompt(subject matching.Signals, summaries []map[string]interface{}, shortlist int, poolDescription string) (string, error) {
	subjectPayload := map[string]interface{}{
		"industry":   subject.Member.Industry,
		"lookingFor": subject.LookingFor,
		"canOffer":   subject.CanOffer,
	}
	subjectJSON, err := json.MarshalIndent(subjectPayload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal subject payload: %v", err)
	}
	candidatesJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate payload: %v", err)
	}

	var parts []string
	parts = append(parts, "You are a business-networking advisor. Rank the candidates below by how valuable a connection they would be for the subject member.")
	parts = append(parts, "\nSubject member profile:")
	parts = append(parts, string(subjectJSON))
	parts = append(parts, fmt.Sprintf("\nCandidates (%s), referenced by index only:", poolDescription))
	parts = append(parts, string(candidatesJSON))
	parts = append(parts, "\nInstructions:")
	parts = append(parts, fmt.Sprintf("- Return the top %d candidates as a JSON array, best first", shortlist))
	parts = append(parts, `- Each entry: {"index": <candidate index>, "score": <0-100>, "matchType": one of "mutual", "service-provider", "ideal-client", "industry-match", "partnership", "networking", "reasons": [2-3 short strings], "valueProposition": one sentence}`)
	parts = append(parts, "- Respond with the JSON array only, no prose")

	return strings.Join(parts, "\n"), nil
}

func toMatchResult(m aiMatch, candidateID string) models.MatchResult {
	score := int(m.Score)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	matchType := models.MatchType(m.MatchType)
	if !matchType.Valid() {
		matchType = models.MatchTypeNetworking
	}

	reasons := m.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}

	return models.MatchResult{
		CandidateID:      candidateID,
		Score:            score,
		MatchType:        matchType,
		Reasons:          reasons,
		Source:           models.SourceAIEnriched,
		ValueProposition: strings.TrimSpace(m.ValueProposition),
	}
}

// extractJSON strips markdown code fences the model sometimes wraps around
// its response.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
