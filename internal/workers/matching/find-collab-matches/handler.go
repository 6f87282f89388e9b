package findcollabmatches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "member-match-workers/internal/common/errors"
	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/common/observability"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"
	"member-match-workers/internal/repository"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "find-collab-matches"
)

// RequestSource supplies the subject's signals and the open-request pool.
type RequestSource interface {
	MemberSignals(ctx context.Context, memberID string) (matching.Signals, error)
	OpenCollabRequests(ctx context.Context, excludeMemberID string, limit int) ([]models.CollabRequest, error)
}

// CollabAdvisor is the optional AI path for collaboration requests. Any error
// from it triggers the rule-based fallback, never a request failure.
type CollabAdvisor interface {
	MatchCollabRequests(ctx context.Context, subject matching.Signals, requests []models.CollabRequest) ([]models.MatchResult, error)
}

type Handler struct {
	config   *Config
	requests RequestSource
	ranker   *matching.Ranker
	advisor  CollabAdvisor // nil when no AI backend is configured
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, requests RequestSource, ranker *matching.Ranker, advisor CollabAdvisor, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		requests: requests,
		ranker:   ranker,
		advisor:  advisor,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.recordJob(context.Background(), start, "failed")
		h.failJob(client, job, apperrors.NewValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	timeout := h.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.recordJob(ctx, start, "failed")
		h.failJob(client, job, h.classifyError(&input, err))
		return
	}

	h.recordJob(ctx, start, "completed")
	h.completeJob(client, job, output)
}

func (h *Handler) recordJob(ctx context.Context, start time.Time, status string) {
	if h.obs == nil {
		return
	}
	h.obs.RecordJobProcessed(ctx, status)
	h.obs.RecordJobDuration(ctx, time.Since(start), status)
}

var errMissingMemberID = errors.New("memberId is required")

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.MemberID == "" {
		return nil, errMissingMemberID
	}

	subject, err := h.requests.MemberSignals(ctx, input.MemberID)
	if err != nil {
		return nil, err
	}

	pool, err := h.requests.OpenCollabRequests(ctx, input.MemberID, h.config.MaxPool)
	if err != nil {
		return nil, fmt.Errorf("load collab requests: %w", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > h.config.Shortlist {
		limit = h.config.Shortlist
	}

	if h.advisor != nil {
		matches, err := h.enrich(ctx, subject, pool, limit)
		if err == nil {
			return &Output{MemberID: input.MemberID, Matches: matches, Source: models.SourceAIEnriched}, nil
		}
		h.logger.Warn("AI matching failed, falling back to rule-based scoring", map[string]interface{}{
			"memberId": input.MemberID,
			"error":    err.Error(),
		})
		if h.obs != nil {
			h.obs.RecordAIFallback(ctx, TaskType)
		}
	}

	matches := h.rankRequests(subject, pool, limit)
	if h.obs != nil {
		h.obs.RecordPairsScored(ctx, int64(len(pool)), "adhoc")
	}
	return &Output{MemberID: input.MemberID, Matches: matches, Source: models.SourceRuleBased}, nil
}

func (h *Handler) enrich(ctx context.Context, subject matching.Signals, pool []models.CollabRequest, limit int) ([]models.MatchResult, error) {
	aiCtx := ctx
	if h.config.AITimeout > 0 {
		var cancel context.CancelFunc
		aiCtx, cancel = context.WithTimeout(ctx, h.config.AITimeout)
		defer cancel()
	}

	matches, err := h.advisor.MatchCollabRequests(aiCtx, subject, pool)
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// rankRequests scores open requests with the ad-hoc ranker by treating each
// request's needs as a candidate's looking-for tags. The request id rides in
// the candidate slot of the result.
func (h *Handler) rankRequests(subject matching.Signals, pool []models.CollabRequest, limit int) []models.MatchResult {
	candidates := make([]matching.Signals, 0, len(pool))
	for _, req := range pool {
		opportunities := make([]models.Opportunity, 0, len(req.LookingFor))
		for _, tag := range req.LookingFor {
			opportunities = append(opportunities, models.Opportunity{
				MemberID: req.ID,
				Kind:     models.OpportunityLookingFor,
				Category: tag,
			})
		}
		candidates = append(candidates, matching.NewSignals(models.MemberProfile{
			ID:       req.ID,
			Name:     req.Title,
			IsActive: true,
		}, opportunities))
	}

	query := matching.AdHocQuery{
		LookingFor: subject.LookingFor,
		CanOffer:   subject.CanOffer,
	}
	return h.ranker.Rank(query, candidates, limit)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) classifyError(input *Input, err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, errMissingMemberID):
		return apperrors.NewValidationFailedError(err.Error())
	case errors.Is(err, repository.ErrMemberNotFound):
		return apperrors.NewMemberNotFoundError(input.MemberID)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewQueryTimeoutError(TaskType)
	default:
		return apperrors.NewQueryExecutionFailedError(TaskType, err)
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	bpmnErr := apperrors.ConvertToBPMNError(stdErr)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retryable":    bpmnErr.Retryable,
		"retries":      bpmnErr.Retries,
	})

	if !bpmnErr.Retryable {
		_, err := client.NewThrowErrorCommand().
			JobKey(job.Key).
			ErrorCode(bpmnErr.Code).
			ErrorMessage(bpmnErr.Message).
			Send(context.Background())
		if err != nil {
			h.logger.Error("failed to throw error", map[string]interface{}{
				"error": err,
			})
		}
		return
	}

	failCmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(fmt.Sprintf("[%s] %s", bpmnErr.Code, bpmnErr.Message))

	varCmd, varErr := failCmd.VariablesFromMap(bpmnErr.ToErrorVariables())
	if varErr != nil {
		h.logger.Error("failed to set error variables, sending without them", map[string]interface{}{
			"error": varErr,
		})
		if _, err := failCmd.Send(context.Background()); err != nil {
			h.logger.Error("failed to fail job", map[string]interface{}{
				"error": err,
			})
		}
		return
	}
	if _, err := varCmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to fail job", map[string]interface{}{
			"error": err,
		})
	}
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
