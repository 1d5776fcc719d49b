// internal/workers/conversation/cleanup-sessions/handler.go
package cleanupsessions

import (
	"context"
	"errors"
	"time"

	"agribot-workers/internal/common/camunda"
	apperrors "agribot-workers/internal/common/errors"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/common/observability"
	"agribot-workers/internal/conversation"
	"agribot-workers/internal/repository"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "cleanup-sessions"

type Handler struct {
	config  *Config
	tracker *conversation.Tracker
	obs     *observability.Observability
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, tracker *conversation.Tracker, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		tracker: tracker,
		obs:     obs,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
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

	output, err := h.Execute(ctx, &Input{})
	if err != nil {
		stdErr := apperrors.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.obs.RecordJobProcessed(ctx, TaskType, "failed")
		h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
		h.errors.HandleJobError(ctx, client, job, stdErr)
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

// Execute sweeps idle sessions. Sessions whose conversation row could not be
// closed still count as expired; only a state store failure fails the sweep.
func (h *Handler) Execute(ctx context.Context, _ *Input) (*Output, error) {
	ctx, span := h.obs.StartSpan(ctx, "conversation.cleanup_expired")
	defer span.End()

	expired, err := h.tracker.CleanupExpired(ctx)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, conversation.ErrStateStoreFailed) {
			return nil, apperrors.NewStateStoreFailedError(err)
		}
		if !errors.Is(err, repository.ErrPersistenceFailed) {
			return nil, apperrors.Normalize(err)
		}
		h.logger.Warn("expired conversations not closed in storage", map[string]interface{}{
			"expired": expired,
			"error":   err.Error(),
		})
	}

	active, err := h.tracker.ActiveCount(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewStateStoreFailedError(err)
	}

	span.SetAttributes(attribute.Int("expired", expired), attribute.Int("active", active))
	h.logger.Info("session sweep finished", map[string]interface{}{
		"expired": expired,
		"active":  active,
	})
	return &Output{ExpiredCount: expired, ActiveCount: active}, nil
}
