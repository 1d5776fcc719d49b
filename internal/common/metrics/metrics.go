package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	MessagesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_messages_analyzed_total",
			Help: "Messages run through the analysis pipeline",
		},
		[]string{"intent", "source"},
	)

	IntentConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agribot_intent_confidence",
			Help:    "Confidence of the primary intent",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	EntitiesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_entities_extracted_total",
			Help: "Entities extracted per type",
		},
		[]string{"type"},
	)

	ConversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_conversations_started_total",
			Help: "Conversations opened by the state tracker",
		},
	)

	ConversationsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_conversations_ended_total",
			Help: "Conversations closed, by reason (explicit, expired)",
		},
		[]string{"reason"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_persistence_failures_total",
			Help: "Failed writes to the conversation repositories",
		},
		[]string{"operation"},
	)

	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_active_conversations",
			Help: "Active conversation states seen by the last sweep",
		},
	)

	AnalyticsIndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_analytics_index_failures_total",
			Help: "Turn documents that could not be indexed",
		},
	)
)
