// internal/workers/conversation/record-turn/handler.go
package recordturn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"agribot-workers/internal/analytics"
	"agribot-workers/internal/common/camunda"
	apperrors "agribot-workers/internal/common/errors"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/common/observability"
	"agribot-workers/internal/conversation"
	"agribot-workers/internal/nlp"
	"agribot-workers/internal/repository"
	"agribot-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "record-turn"

// TurnIndexer receives one document per recorded turn.
type TurnIndexer interface {
	IndexTurn(ctx context.Context, doc analytics.TurnDocument) error
}

type Dependencies struct {
	Tracker       *conversation.Tracker
	Processor     *nlp.Processor
	Indexer       TurnIndexer // nil disables analytics
	Registry      *registry.ActivityRegistry
	Observability *observability.Observability
}

type Handler struct {
	config    *Config
	tracker   *conversation.Tracker
	processor *nlp.Processor
	indexer   TurnIndexer
	registry  *registry.ActivityRegistry
	obs       *observability.Observability
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, deps Dependencies, log logger.Logger) *Handler {
	obs := deps.Observability
	if obs == nil {
		obs = &observability.Observability{}
	}
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		tracker:   deps.Tracker,
		processor: deps.Processor,
		indexer:   deps.Indexer,
		registry:  deps.Registry,
		obs:       obs,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
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

// Execute records the message with the bot reply under the analysis
// analyze-message answered with, or a fresh rule-based one when the job
// carries none. A turn for a user without a session is a BPMN error;
// a persistence failure fails the job for retry after the session state has
// already moved on.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewInvalidInputError("userId is required")
	}

	ctx, span := h.obs.StartSpan(ctx, "conversation.record_turn", attribute.String("userId", input.UserID))
	defer span.End()

	conv, err := h.tracker.ContextFor(ctx, input.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID, "load_context")
	}
	conv.Season = input.Season

	analysis := h.analysisFor(ctx, input, conv)

	state, err := h.tracker.Update(ctx, input.UserID, input.Message, analysis, input.BotResponse)
	if err != nil {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID, "record_turn")
	}

	h.index(ctx, state, analysis)

	topics, err := h.tracker.SuggestNextTopics(ctx, input.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID, "suggest_topics")
	}

	span.SetAttributes(
		attribute.Int("turnCount", state.TurnCount),
		attribute.String("intent", nlp.PrimaryIntent(analysis)),
	)
	h.logger.Info("turn recorded", map[string]interface{}{
		"userId":         input.UserID,
		"conversationId": state.ConversationID,
		"turnCount":      state.TurnCount,
		"intent":         nlp.PrimaryIntent(analysis),
		"source":         nlp.Source(analysis),
	})

	return &Output{
		TurnCount:       state.TurnCount,
		CurrentTopic:    state.CurrentTopic,
		MentionedCrops:  state.MentionedCrops,
		SuggestedTopics: topics,
		Persisted:       state.ConversationID != nil,
	}, nil
}

// index is best-effort; the indexer counts its own failures.
func (h *Handler) index(ctx context.Context, state *conversation.State, analysis nlp.Analysis) {
	if h.indexer == nil {
		return
	}

	doc := analytics.FromAnalysis(analysis, state.LastActivity)
	doc.UserID = state.UserID
	doc.ConversationID = state.ConversationID
	doc.SessionID = state.SessionID
	doc.TurnCount = state.TurnCount

	indexCtx := ctx
	if h.config.IndexTimeout > 0 {
		var cancel context.CancelFunc
		indexCtx, cancel = context.WithTimeout(ctx, h.config.IndexTimeout)
		defer cancel()
	}
	if err := h.indexer.IndexTurn(indexCtx, doc); err != nil {
		h.logger.Warn("turn not indexed", map[string]interface{}{
			"userId":    state.UserID,
			"turnCount": state.TurnCount,
			"error":     err.Error(),
		})
	}
}

// analysisFor rebuilds the external model's answer from the job input. A
// rule-based answer is recomputed, since the pipeline is deterministic for the
// same text and context.
func (h *Handler) analysisFor(ctx context.Context, input *Input, conv nlp.Context) nlp.Analysis {
	if a := input.Analysis; a != nil && a.Source == nlp.SourceExternalModel && strings.TrimSpace(a.Intent) != "" {
		return &nlp.ExternalModel{
			Intent:     a.Intent,
			Confidence: a.Confidence,
			Crops:      a.Crops,
			Model:      a.Model,
		}
	}

	_, span := h.obs.StartSpan(ctx, "nlp.process")
	defer span.End()
	return h.processor.Process(input.Message, conv)
}

func toStandardError(err error, userID, operation string) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.Is(err, conversation.ErrNoActiveConversation):
		return apperrors.NewNoActiveConversationError(userID)
	case errors.Is(err, repository.ErrPersistenceFailed):
		return apperrors.NewPersistenceFailedError(operation, err)
	case errors.Is(err, conversation.ErrStateStoreFailed):
		return apperrors.NewStateStoreFailedError(err)
	}
	return apperrors.Normalize(err)
}
