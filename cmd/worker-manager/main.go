// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agribot-workers/internal/analytics"
	"agribot-workers/internal/common/camunda"
	"agribot-workers/internal/common/config"
	"agribot-workers/internal/common/database"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/observability"
	"agribot-workers/internal/conversation"
	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp"
	"agribot-workers/internal/nlp/external"
	"agribot-workers/internal/repository"
	"agribot-workers/pkg/registry"

	am "agribot-workers/internal/workers/conversation/analyze-message"
	cs "agribot-workers/internal/workers/conversation/cleanup-sessions"
	ec "agribot-workers/internal/workers/conversation/end-conversation"
	rt "agribot-workers/internal/workers/conversation/record-turn"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("postgres migration failed", zap.Error(err))
		}
		zapLog.Info("PostgreSQL schema up to date")
	}

	// --- Conversation state store ---
	var store conversation.StateStore
	if cfg.Conversation.StateStore == "redis" {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		store = conversation.NewRedisStore(redis.Client, cfg.Conversation.RedisKeyPrefix)
		zapLog.Info("Redis connected successfully", zap.String("keyPrefix", cfg.Conversation.RedisKeyPrefix))
	} else {
		store = conversation.NewMemoryStore()
		zapLog.Warn("conversation state is held in process memory; sessions are not shared between replicas")
	}

	// --- Analytics ---
	var indexer *analytics.Indexer
	if cfg.Analytics.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = analytics.NewIndexer(esClient.Client, cfg.Analytics.Index, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("analytics index setup failed", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", indexer.Index()))
	}

	// --- NLP ---
	tables, err := knowledge.Load(cfg.NLP.KnowledgePath)
	if err != nil {
		zapLog.Fatal("knowledge tables failed to load", zap.Error(err), zap.String("path", cfg.NLP.KnowledgePath))
	}
	processor, err := nlp.NewProcessor(tables)
	if err != nil {
		zapLog.Fatal("nlp pipeline failed to build", zap.Error(err))
	}

	var classifier am.Classifier
	if cfg.NLP.External.Enabled {
		classifier = external.NewClient(external.Config{
			BaseURL:    cfg.NLP.External.BaseURL,
			APIKey:     cfg.NLP.External.APIKey,
			Timeout:    config.GetDuration(cfg.NLP.External.Timeout),
			MaxRetries: cfg.NLP.External.MaxRetries,
		}, log.WithFields(map[string]interface{}{"component": "external-intent"}))
		zapLog.Info("external intent model enabled", zap.String("baseURL", cfg.NLP.External.BaseURL))
	}

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}

	tracker := conversation.NewTracker(
		store,
		repository.NewConversationRepository(pg.DB),
		repository.NewUserRepository(pg.DB),
		tables.Conversation,
		conversation.OptionsFromConfig(cfg.Conversation),
		log,
	)

	// --- Workers ---
	client := zeebe.GetClient()
	var workers []worker.JobWorker
	start := func(taskType string, handle worker.JobHandler) {
		if w := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), handle, log); w != nil {
			workers = append(workers, w)
		}
	}

	analyze := am.NewHandler(am.LoadConfig(cfg), am.Dependencies{
		Tracker:       tracker,
		Processor:     processor,
		External:      classifier,
		Registry:      reg,
		Observability: obs,
	}, log)
	start(am.TaskType, analyze.Handle)

	turnDeps := rt.Dependencies{
		Tracker:       tracker,
		Processor:     processor,
		Registry:      reg,
		Observability: obs,
	}
	if indexer != nil {
		turnDeps.Indexer = indexer
	}
	record := rt.NewHandler(rt.LoadConfig(cfg), turnDeps, log)
	start(rt.TaskType, record.Handle)

	end := ec.NewHandler(ec.LoadConfig(cfg), tracker, reg, obs, log)
	start(ec.TaskType, end.Handle)

	cleanup := cs.NewHandler(cs.LoadConfig(cfg), tracker, obs, log)
	start(cs.TaskType, cleanup.Handle)

	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			status, code = "zeebe unavailable", http.StatusServiceUnavailable
		} else if err := pg.Ping(checkCtx); err != nil {
			status, code = "postgres unavailable", http.StatusServiceUnavailable
		}

		active, _ := tracker.ActiveCount(checkCtx)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":              status,
			"activeConversations": active,
			"time":                time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
