// internal/workers/conversation/analyze-message/handler.go
package analyzemessage

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
	"agribot-workers/internal/nlp"
	"agribot-workers/internal/nlp/entity"
	"agribot-workers/internal/repository"
	"agribot-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "analyze-message"

// Classifier is the optional model-backed intent service.
type Classifier interface {
	Classify(ctx context.Context, text string, conv nlp.Context) (*nlp.ExternalModel, error)
}

type Dependencies struct {
	Tracker       *conversation.Tracker
	Processor     *nlp.Processor
	External      Classifier // nil keeps analysis rule-based
	Registry      *registry.ActivityRegistry
	Observability *observability.Observability
}

type Handler struct {
	config    *Config
	tracker   *conversation.Tracker
	processor *nlp.Processor
	external  Classifier
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
		external:  deps.External,
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

// Execute opens or resumes the user's conversation and analyses the message
// with the conversation's context. The turn itself is recorded by
// record-turn once the reply is known.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewInvalidInputError("userId is required")
	}

	ctx, span := h.obs.StartSpan(ctx, "conversation.analyze_message", attribute.String("userId", input.UserID))
	defer span.End()

	state, err := h.tracker.GetOrCreate(ctx, input.UserID, input.UserName, input.UserRegion)
	if err != nil {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID, "get_or_create")
	}

	conv := state.Context()
	conv.Season = input.Season
	analysis := h.analyze(ctx, input.Message, conv)

	topics, err := h.tracker.SuggestNextTopics(ctx, input.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, toStandardError(err, input.UserID, "suggest_topics")
	}

	output := buildOutput(state, analysis, topics)
	recordMetrics(analysis)

	h.logger.Info("message analysed", map[string]interface{}{
		"userId":         input.UserID,
		"conversationId": output.ConversationID,
		"intent":         output.IntentAnalysis.PrimaryIntent,
		"confidence":     output.IntentAnalysis.Confidence,
		"entityCount":    len(output.Entities),
		"source":         output.AnalysisSource,
	})
	return output, nil
}

// analyze prefers the external model and falls back to the rule-based
// pipeline when it is disabled, the text is blank or the call fails.
func (h *Handler) analyze(ctx context.Context, text string, conv nlp.Context) nlp.Analysis {
	if h.external != nil && strings.TrimSpace(text) != "" {
		extCtx, span := h.obs.StartSpan(ctx, "nlp.external_classify")
		result, err := h.external.Classify(extCtx, text, conv)
		if err == nil {
			span.End()
			return result
		}
		span.RecordError(err)
		span.End()
		h.logger.Warn("external intent model failed, using rule-based analysis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	_, span := h.obs.StartSpan(ctx, "nlp.process")
	defer span.End()
	return h.processor.Process(text, conv)
}

func buildOutput(state *conversation.State, analysis nlp.Analysis, topics []string) *Output {
	crops := nlp.EntitySummary(analysis)[entity.Crops]
	if crops == nil {
		crops = []string{}
	}

	output := &Output{
		ConversationID: state.ConversationID,
		IntentAnalysis: IntentAnalysis{
			PrimaryIntent: nlp.PrimaryIntent(analysis),
			Confidence:    nlp.IntentConfidence(analysis),
		},
		Entities:        []Entity{},
		SuggestedTopics: topics,
		AnalysisSource:  nlp.Source(analysis),
		Analysis: TurnAnalysis{
			Source:     nlp.Source(analysis),
			Intent:     nlp.PrimaryIntent(analysis),
			Confidence: nlp.IntentConfidence(analysis),
			Crops:      crops,
		},
	}

	switch a := analysis.(type) {
	case *nlp.RuleBased:
		output.IntentAnalysis.SecondaryIntents = a.Intent.SecondaryIntents
		for _, key := range entity.Keys {
			seen := make(map[string]struct{})
			for _, m := range a.Entities.Entities[key] {
				if _, ok := seen[m.Normalized]; ok {
					continue
				}
				seen[m.Normalized] = struct{}{}
				output.Entities = append(output.Entities, Entity{Type: key, Value: m.Normalized, Confidence: m.Confidence})
			}
		}
		output.Sentiment = &a.Sentiment
		output.EmotionalContext = &a.Emotional
		output.ResponseSuggestions = &a.Suggestions
		output.Language = a.Text.Language
	case *nlp.ExternalModel:
		output.Analysis.Model = a.Model
		for _, crop := range nlp.EntitySummary(a)[entity.Crops] {
			output.Entities = append(output.Entities, Entity{Type: entity.Crops, Value: crop, Confidence: output.IntentAnalysis.Confidence})
		}
	}
	return output
}

func recordMetrics(analysis nlp.Analysis) {
	metrics.MessagesAnalyzed.WithLabelValues(nlp.PrimaryIntent(analysis), nlp.Source(analysis)).Inc()
	metrics.IntentConfidence.Observe(nlp.IntentConfidence(analysis))
	for key, values := range nlp.EntitySummary(analysis) {
		metrics.EntitiesExtracted.WithLabelValues(key).Add(float64(len(values)))
	}
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
