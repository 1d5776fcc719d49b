// internal/workers/conversation/end-conversation/handler.go
package endconversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"agribot-workers/internal/common/camunda"
	apperrors "agribot-workers/internal/common/errors"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/common/observability"
	"agribot-workers/internal/conversation"
	"agribot-workers/internal/repository"
	"agribot-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "end-conversation"

type Handler struct {
	config   *Config
	tracker  *conversation.Tracker
	registry *registry.ActivityRegistry
	obs      *observability.Observability
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, tracker *conversation.Tracker, reg *registry.ActivityRegistry, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		tracker:  tracker,
		registry: reg,
		obs:      obs,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err, start)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err, start)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	if h.registry != nil {
		variables, err := job.GetVariablesAsMap()
		if err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
		if err := h.registry.ValidateInput(TaskType, variables); err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError("parse input: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, start time.Time) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

// Execute ends the user's session. Once the session is removed a retry could
// only report NO_ACTIVE_CONVERSATION, so a repository failure completes the
// job with Persisted set to false.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewInvalidInputError("userId is required")
	}

	ctx, span := h.obs.StartSpan(ctx, "conversation.end", attribute.String("userId", input.UserID))
	defer span.End()

	summary, err := h.tracker.End(ctx, input.UserID)
	if err != nil && (summary == nil || errors.Is(err, conversation.ErrStateStoreFailed)) {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID)
	}

	persisted := err == nil
	if !persisted {
		span.RecordError(err)
		h.logger.Warn("conversation ended without closing its record", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
	}

	span.SetAttributes(attribute.Int("turnCount", summary.TurnCount))
	return &Output{Summary: summary, Persisted: persisted}, nil
}

func toStandardError(err error, userID string) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.Is(err, conversation.ErrNoActiveConversation):
		return apperrors.NewNoActiveConversationError(userID)
	case errors.Is(err, conversation.ErrStateStoreFailed):
		return apperrors.NewStateStoreFailedError(err)
	case errors.Is(err, repository.ErrPersistenceFailed):
		return apperrors.NewPersistenceFailedError("end_conversation", err)
	}
	return apperrors.Normalize(err)
}
