package findmembermatches

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
	TaskType = "find-member-matches"
)

// MemberSource supplies the subject's signals and the candidate pool snapshot.
type MemberSource interface {
	MemberSignals(ctx context.Context, memberID string) (matching.Signals, error)
	ActiveMembers(ctx context.Context, excludeID string) ([]matching.Signals, error)
}

// MatchAdvisor is the optional AI enrichment path. Any error from it must
// trigger the rule-based fallback, never a request failure.
type MatchAdvisor interface {
	MatchMembers(ctx context.Context, subject matching.Signals, candidates []matching.Signals) ([]models.MatchResult, error)
}

type Handler struct {
	config  *Config
	members MemberSource
	ranker  *matching.Ranker
	advisor MatchAdvisor // nil when no AI backend is configured
	obs     *observability.Observability
	logger  logger.Logger
}

func NewHandler(config *Config, members MemberSource, ranker *matching.Ranker, advisor MatchAdvisor, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		members: members,
		ranker:  ranker,
		advisor: advisor,
		obs:     obs,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

	subject, err := h.members.MemberSignals(ctx, input.MemberID)
	if err != nil {
		return nil, err
	}

	pool, err := h.members.ActiveMembers(ctx, input.MemberID)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}

	// Tags supplied with the request override the stored profile; absent
	// fields fall back to what the member has saved.
	query := matching.AdHocQuery{
		LookingFor: input.LookingFor,
		CanOffer:   input.CanOffer,
	}
	if len(query.LookingFor) == 0 {
		query.LookingFor = subject.LookingFor
	}
	if len(query.CanOffer) == 0 {
		query.CanOffer = subject.CanOffer
	}

	limit := input.Limit
	if limit <= 0 {
		limit = h.config.DefaultLimit
	}

	if input.UseAI && h.advisor != nil {
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

	matches := h.ranker.Rank(query, pool, limit)
	if h.obs != nil {
		h.obs.RecordPairsScored(ctx, int64(len(pool)), "adhoc")
	}
	return &Output{MemberID: input.MemberID, Matches: matches, Source: models.SourceRuleBased}, nil
}

func (h *Handler) enrich(ctx context.Context, subject matching.Signals, pool []matching.Signals, limit int) ([]models.MatchResult, error) {
	aiCtx := ctx
	if h.config.AITimeout > 0 {
		var cancel context.CancelFunc
		aiCtx, cancel = context.WithTimeout(ctx, h.config.AITimeout)
		defer cancel()
	}

	matches, err := h.advisor.MatchMembers(aiCtx, subject, pool)
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
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

	// Non-retryable errors surface as BPMN errors so the process can route
	// them through an error boundary event; retryable ones fail the job with
	// the mapped retry budget.
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
