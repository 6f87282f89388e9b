package runweeklydigest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "member-match-workers/internal/common/errors"
	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/common/observability"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "run-weekly-digest"
)

// SnapshotSource loads the member snapshot the whole run operates on. The
// snapshot is taken once; profile edits mid-run are not observed.
type SnapshotSource interface {
	ActiveMembers(ctx context.Context, excludeID string) ([]matching.Signals, error)
}

type Handler struct {
	config   *Config
	members  SnapshotSource
	selector *matching.Selector
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, members SnapshotSource, dispatcher matching.Dispatcher, audit matching.AuditLog, obs *observability.Observability, log logger.Logger) *Handler {
	selectorCfg := matching.SelectorConfig{
		MinScore:   config.MinScore,
		MinMatches: config.MinMatches,
		MaxMatches: config.MaxMatches,
		ScoreCap:   config.ScoreCap,
	}
	return &Handler{
		config:   config,
		members:  members,
		selector: matching.NewSelector(selectorCfg, dispatcher, audit, obs, log),
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
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.recordJob(ctx, start, "failed")
		h.failJob(client, job, apperrors.NewDigestRunFailedError(err))
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	snapshot, err := h.members.ActiveMembers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load member snapshot: %w", err)
	}

	h.logger.Info("digest run started", map[string]interface{}{
		"runId":        runID,
		"snapshotSize": len(snapshot),
	})

	decisions := h.selector.Run(ctx, runID, snapshot)

	output := &Output{RunID: runID, Decisions: decisions}
	for _, d := range decisions {
		output.Processed++
		switch d.Status {
		case models.DigestStatusSent:
			output.Sent++
		case models.DigestStatusSkipped:
			output.Skipped++
		case models.DigestStatusFailed:
			output.Failed++
		}
		if h.obs != nil {
			h.obs.RecordDigestDecision(ctx, d.Status)
		}
	}

	h.logger.Info("digest run finished", map[string]interface{}{
		"runId":     runID,
		"processed": output.Processed,
		"sent":      output.Sent,
		"skipped":   output.Skipped,
		"failed":    output.Failed,
	})

	return output, nil
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
