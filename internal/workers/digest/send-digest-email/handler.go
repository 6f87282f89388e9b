package senddigestemail

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	apperrors "member-match-workers/internal/common/errors"
	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/common/observability"
	"member-match-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-digest-email"
)

var (
	ErrDigestDeliveryFailed = errors.New("DIGEST_DELIVERY_FAILED")
)

// SESService is the slice of the SES client the handler needs, defined for
// mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	obs       *observability.Observability
	logger    logger.Logger
	sesClient SESService
}

func NewHandler(config *Config, db *sql.DB, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Handler{
		config:    config,
		db:        db,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: ses.NewFromConfig(awsCfg),
	}, nil
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

	// Delivery failures come back as a failed-status Output, so the only
	// error execute can return is a missing member id.
	output, err := h.execute(ctx, &input)
	if err != nil {
		h.recordJob(ctx, start, "failed")
		h.failJob(client, job, apperrors.NewValidationFailedError(err.Error()))
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
	if input.MemberID == "" {
		return nil, errors.New("memberId is required")
	}

	member := models.MemberProfile{ID: input.MemberID, Name: input.MemberName}
	deliveryID, err := h.Dispatch(ctx, member, input.Matches)
	sentAt := time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		return &Output{Status: StatusFailed, Reason: err.Error(), SentAt: sentAt}, nil
	}
	if deliveryID == "" {
		return &Output{Status: StatusDisabled, SentAt: sentAt}, nil
	}
	return &Output{DeliveryID: deliveryID, Status: StatusSent, SentAt: sentAt}, nil
}

// Dispatch composes and sends one member's digest email. It returns the SES
// message id as the delivery identifier, or an empty id with no error when
// email delivery is disabled.
func (h *Handler) Dispatch(ctx context.Context, member models.MemberProfile, matches []models.MatchResult) (string, error) {
	if !h.config.EmailEnabled {
		h.logger.Warn("email delivery disabled, digest not sent", map[string]interface{}{
			"memberId": member.ID,
		})
		return "", nil
	}

	email, err := h.recipientEmail(ctx, member.ID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup recipient %s: %v", ErrDigestDeliveryFailed, member.ID, err)
	}
	if email == "" {
		return "", fmt.Errorf("%w: member %s has no email address", ErrDigestDeliveryFailed, member.ID)
	}

	names, err := h.candidateNames(ctx, matches)
	if err != nil {
		h.logger.Warn("candidate name lookup failed, using ids", map[string]interface{}{
			"memberId": member.ID,
			"error":    err.Error(),
		})
		names = map[string]string{}
	}

	subject := fmt.Sprintf("Your weekly matches: %d members to meet", len(matches))
	textBody, htmlBody := composeDigest(member, matches, names)

	out, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody)},
				Html: &types.Content{Data: aws.String(htmlBody)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDigestDeliveryFailed, err)
	}

	deliveryID := uuid.New().String()
	if out != nil && out.MessageId != nil && *out.MessageId != "" {
		deliveryID = *out.MessageId
	}
	return deliveryID, nil
}

func (h *Handler) recipientEmail(ctx context.Context, memberID string) (string, error) {
	var email string
	err := h.db.QueryRowContext(ctx, `SELECT COALESCE(email, '') FROM members WHERE id = $1`, memberID).Scan(&email)
	return email, err
}

func (h *Handler) candidateNames(ctx context.Context, matches []models.MatchResult) (map[string]string, error) {
	names := make(map[string]string, len(matches))
	for _, m := range matches {
		var name string
		err := h.db.QueryRowContext(ctx, `SELECT COALESCE(name, '') FROM members WHERE id = $1`, m.CandidateID).Scan(&name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		names[m.CandidateID] = name
	}
	return names, nil
}

func composeDigest(member models.MemberProfile, matches []models.MatchResult, names map[string]string) (string, string) {
	greeting := "Hello"
	if member.Name != "" {
		greeting = "Hello " + member.Name
	}

	var text strings.Builder
	var body strings.Builder

	text.WriteString(greeting + ",\n\n")
	text.WriteString("Here are this week's recommended connections:\n\n")

	body.WriteString("<p>" + html.EscapeString(greeting) + ",</p>")
	body.WriteString("<p>Here are this week's recommended connections:</p><ol>")

	for i, m := range matches {
		name := names[m.CandidateID]
		if name == "" {
			name = m.CandidateID
		}
		reasons := strings.Join(m.Reasons, "; ")

		text.WriteString(fmt.Sprintf("%d. %s (match score %d, %s)\n", i+1, name, m.Score, m.MatchType))
		if reasons != "" {
			text.WriteString("   " + reasons + "\n")
		}
		text.WriteString("\n")

		body.WriteString("<li><strong>" + html.EscapeString(name) + "</strong>")
		body.WriteString(fmt.Sprintf(" &mdash; match score %d (%s)", m.Score, html.EscapeString(string(m.MatchType))))
		if reasons != "" {
			body.WriteString("<br/>" + html.EscapeString(reasons))
		}
		body.WriteString("</li>")
	}

	text.WriteString("Log in to reach out and start a conversation.\n")
	body.WriteString("</ol><p>Log in to reach out and start a conversation.</p>")

	return text.String(), body.String()
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
