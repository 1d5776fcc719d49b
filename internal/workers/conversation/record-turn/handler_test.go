// internal/workers/conversation/record-turn/handler_test.go
package recordturn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agribot-workers/internal/analytics"
	apperrors "agribot-workers/internal/common/errors"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/conversation"
	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp"
	"agribot-workers/internal/repository"
	analyzemessage "agribot-workers/internal/workers/conversation/analyze-message"
	"agribot-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Doubles
// ==========================

type fakeConversations struct {
	mu       sync.Mutex
	failAdd  bool
	messages []repository.Message
}

func (f *fakeConversations) CreateConversation(context.Context, string, string) (int64, error) {
	return 41, nil
}

func (f *fakeConversations) AddMessage(_ context.Context, msg repository.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return fmt.Errorf("%w: insert message: connection reset", repository.ErrPersistenceFailed)
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeConversations) UpdateContext(context.Context, int64, string, []string) error {
	return nil
}

func (f *fakeConversations) EndConversation(context.Context, int64) error {
	return nil
}

type fakeIndexer struct {
	err  error
	docs []analytics.TurnDocument
}

func (f *fakeIndexer) IndexTurn(_ context.Context, doc analytics.TurnDocument) error {
	f.docs = append(f.docs, doc)
	return f.err
}

type stubClassifier struct {
	result *nlp.ExternalModel
}

func (s stubClassifier) Classify(context.Context, string, nlp.Context) (*nlp.ExternalModel, error) {
	return s.result, nil
}

// ==========================
// Test Helpers
// ==========================

type fixture struct {
	handler       *Handler
	tracker       *conversation.Tracker
	conversations *fakeConversations
}

func newFixture(t *testing.T, indexer TurnIndexer) *fixture {
	t.Helper()
	tables := knowledge.Default()
	processor, err := nlp.NewProcessor(tables)
	require.NoError(t, err)
	reg, err := registry.Default()
	require.NoError(t, err)

	conversations := &fakeConversations{}
	tracker := conversation.NewTracker(conversation.NewMemoryStore(), conversations, nil,
		tables.Conversation, conversation.Options{}, logger.NewNoOpLogger())

	h := NewHandler(&Config{Timeout: 5 * time.Second, IndexTimeout: time.Second}, Dependencies{
		Tracker:   tracker,
		Processor: processor,
		Indexer:   indexer,
		Registry:  reg,
	}, logger.NewTestLogger(t))

	return &fixture{handler: h, tracker: tracker, conversations: conversations}
}

func (f *fixture) startSession(t *testing.T, userID string) {
	t.Helper()
	_, err := f.tracker.GetOrCreate(context.Background(), userID, "Amina", "centre")
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) *apperrors.StandardError {
	t.Helper()
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, code, stdErr.Code)
	return stdErr
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_RecordsTurn(t *testing.T) {
	indexer := &fakeIndexer{}
	f := newFixture(t, indexer)
	f.startSession(t, "farmer-1")

	out, err := f.handler.Execute(context.Background(), &Input{
		UserID:      "farmer-1",
		Message:     "i have maze disease in centre region yellow spots",
		BotResponse: "Yellow spots on maize are often maize streak virus.",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.TurnCount)
	assert.Equal(t, "disease_identification", out.CurrentTopic)
	assert.Equal(t, []string{"maize"}, out.MentionedCrops)
	assert.Equal(t, []string{"pest_control", "fertilizer_advice", "harvest_timing"}, out.SuggestedTopics)
	assert.True(t, out.Persisted)

	require.Len(t, f.conversations.messages, 2)
	assert.Equal(t, repository.MessageTypeUser, f.conversations.messages[0].Type)
	assert.Equal(t, repository.MessageTypeBot, f.conversations.messages[1].Type)
	assert.Equal(t, "Yellow spots on maize are often maize streak virus.", f.conversations.messages[1].Content)

	require.Len(t, indexer.docs, 1)
	doc := indexer.docs[0]
	assert.Equal(t, "farmer-1", doc.UserID)
	require.NotNil(t, doc.ConversationID)
	assert.Equal(t, int64(41), *doc.ConversationID)
	assert.Equal(t, 1, doc.TurnCount)
	assert.NotEmpty(t, doc.SessionID)
	assert.Equal(t, "disease_identification", doc.Intent)
	assert.Equal(t, nlp.SourceRuleBased, doc.Source)
	assert.Equal(t, []string{"maize"}, doc.Entities["crops"])
}

// The turn must carry the intent the reply was built on, not a rule-based
// re-classification of the same text.
func TestHandler_Execute_AfterExternalAnalysis(t *testing.T) {
	ctx := context.Background()
	indexer := &fakeIndexer{}
	f := newFixture(t, indexer)

	analyze := analyzemessage.NewHandler(&analyzemessage.Config{Timeout: 5 * time.Second}, analyzemessage.Dependencies{
		Tracker:   f.tracker,
		Processor: f.handler.processor,
		External: stubClassifier{result: &nlp.ExternalModel{
			Intent: "market_information", Confidence: 0.9, Crops: []string{"cocoa"}, Model: "agri-v1",
		}},
		Registry: f.handler.registry,
	}, logger.NewTestLogger(t))

	analysed, err := analyze.Execute(ctx, &analyzemessage.Input{UserID: "farmer-1", Message: "hello there my cocoa"})
	require.NoError(t, err)
	require.Equal(t, nlp.SourceExternalModel, analysed.AnalysisSource)

	// job variables as the process instance carries them between the tasks
	raw, err := json.Marshal(analysed)
	require.NoError(t, err)
	variables := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &variables))
	variables["userId"] = "farmer-1"
	variables["message"] = "hello there my cocoa"
	variables["botResponse"] = "Cocoa prices are up this week."
	raw, err = json.Marshal(variables)
	require.NoError(t, err)

	input, err := f.handler.parseInput(entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 11, Type: TaskType, Variables: string(raw)}})
	require.NoError(t, err)

	out, err := f.handler.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "market_information", out.CurrentTopic)
	assert.Equal(t, []string{"cocoa"}, out.MentionedCrops)

	summary, err := f.tracker.Summary(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"market_information"}, summary.TopicHistory)
	assert.Equal(t, 0.9, summary.LastConfidence)

	require.Len(t, f.conversations.messages, 2)
	assert.Equal(t, "market_information", f.conversations.messages[0].Intent)

	require.Len(t, indexer.docs, 1)
	assert.Equal(t, nlp.SourceExternalModel, indexer.docs[0].Source)
	assert.Equal(t, 0.9, indexer.docs[0].Confidence)
}

func TestHandler_Execute_AnalysisFallback(t *testing.T) {
	tests := []struct {
		name       string
		analysis   *Analysis
		wantTopic  string
		wantSource string
	}{
		{
			name:       "no analysis",
			wantTopic:  "disease_identification",
			wantSource: nlp.SourceRuleBased,
		},
		{
			name:       "rule-based analysis is recomputed",
			analysis:   &Analysis{Source: nlp.SourceRuleBased, Intent: "disease_identification", Confidence: 0.5},
			wantTopic:  "disease_identification",
			wantSource: nlp.SourceRuleBased,
		},
		{
			name:       "external analysis without intent",
			analysis:   &Analysis{Source: nlp.SourceExternalModel, Intent: " "},
			wantTopic:  "disease_identification",
			wantSource: nlp.SourceRuleBased,
		},
		{
			name:       "external analysis",
			analysis:   &Analysis{Source: nlp.SourceExternalModel, Intent: "pest_control", Confidence: 0.75, Crops: []string{"maize"}},
			wantTopic:  "pest_control",
			wantSource: nlp.SourceExternalModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indexer := &fakeIndexer{}
			f := newFixture(t, indexer)
			f.startSession(t, "farmer-1")

			out, err := f.handler.Execute(context.Background(), &Input{
				UserID:   "farmer-1",
				Message:  "i have maze disease in centre region yellow spots",
				Analysis: tt.analysis,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopic, out.CurrentTopic)
			assert.Equal(t, []string{"maize"}, out.MentionedCrops)
			require.Len(t, indexer.docs, 1)
			assert.Equal(t, tt.wantSource, indexer.docs[0].Source)
		})
	}
}

func TestHandler_Execute_NoActiveConversation(t *testing.T) {
	indexer := &fakeIndexer{}
	f := newFixture(t, indexer)

	_, err := f.handler.Execute(context.Background(), &Input{UserID: "stranger", Message: "hello"})
	stdErr := requireCode(t, err, apperrors.ErrCodeNoActiveConversation)
	assert.False(t, stdErr.Retryable)
	assert.Equal(t, "stranger", stdErr.Metadata["userId"])
	assert.Empty(t, indexer.docs)
}

func TestHandler_Execute_PersistenceFailure(t *testing.T) {
	indexer := &fakeIndexer{}
	f := newFixture(t, indexer)
	f.startSession(t, "farmer-1")
	f.conversations.failAdd = true

	_, err := f.handler.Execute(context.Background(), &Input{UserID: "farmer-1", Message: "armyworms in my maize", BotResponse: "ok"})
	stdErr := requireCode(t, err, apperrors.ErrCodePersistenceFailed)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "record_turn")

	// the session already moved on
	summary, err := f.tracker.Summary(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TurnCount)
	assert.Empty(t, indexer.docs)
}

func TestHandler_Execute_IndexFailureIsNotFatal(t *testing.T) {
	indexer := &fakeIndexer{err: errors.New("ANALYTICS_INDEX_FAILED: 503")}
	f := newFixture(t, indexer)
	f.startSession(t, "farmer-1")

	out, err := f.handler.Execute(context.Background(), &Input{UserID: "farmer-1", Message: "hello there", BotResponse: "Hi!"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TurnCount)
	assert.Len(t, indexer.docs, 1)
}

func TestHandler_Execute_WithoutIndexer(t *testing.T) {
	f := newFixture(t, nil)
	f.startSession(t, "farmer-1")

	for i := 1; i <= 3; i++ {
		out, err := f.handler.Execute(context.Background(), &Input{UserID: "farmer-1", Message: "thanks", BotResponse: "welcome"})
		require.NoError(t, err)
		assert.Equal(t, i, out.TurnCount)
	}
	assert.Len(t, f.conversations.messages, 6)
}

func TestHandler_Execute_MissingUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.handler.Execute(context.Background(), &Input{Message: "hello"})
	requireCode(t, err, apperrors.ErrCodeInvalidInput)
}

func TestHandler_Execute_ElasticsearchIndexer(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	f := newFixture(t, analytics.NewIndexer(client, "", logger.NewNoOpLogger()))
	f.startSession(t, "farmer-1")
	state, err := f.tracker.GetOrCreate(context.Background(), "farmer-1", "", "")
	require.NoError(t, err)

	_, err = f.handler.Execute(context.Background(), &Input{UserID: "farmer-1", Message: "hello", BotResponse: "Hi!"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /agribot-turns/_doc/" + state.SessionID + "-1"}, paths)
}

// ==========================
// Input Parsing
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name      string
		variables map[string]interface{}
		want      *Input
		wantErr   bool
	}{
		{
			name:      "full input",
			variables: map[string]interface{}{"userId": "farmer-1", "message": "hi", "botResponse": "hello", "season": "harvest"},
			want:      &Input{UserID: "farmer-1", Message: "hi", BotResponse: "hello", Season: "harvest"},
		},
		{
			name:      "bot response optional",
			variables: map[string]interface{}{"userId": "farmer-1", "message": "hi"},
			want:      &Input{UserID: "farmer-1", Message: "hi"},
		},
		{
			name: "analysis from analyze-message",
			variables: map[string]interface{}{"userId": "farmer-1", "message": "hi", "analysis": map[string]interface{}{
				"source": "external_model", "intent": "greeting", "confidence": 0.7, "crops": []string{}, "model": "agri-v1",
			}},
			want: &Input{UserID: "farmer-1", Message: "hi", Analysis: &Analysis{
				Source: nlp.SourceExternalModel, Intent: "greeting", Confidence: 0.7, Crops: []string{}, Model: "agri-v1",
			}},
		},
		{
			name: "analysis with unknown source",
			variables: map[string]interface{}{"userId": "farmer-1", "message": "hi", "analysis": map[string]interface{}{
				"source": "crystal_ball", "intent": "greeting", "confidence": 0.7,
			}},
			wantErr: true,
		},
		{
			name:      "message required",
			variables: map[string]interface{}{"userId": "farmer-1"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(tt.variables)
			job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 7, Type: TaskType, Variables: string(raw)}}

			input, err := f.handler.parseInput(job)
			if tt.wantErr {
				requireCode(t, err, apperrors.ErrCodeInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, input)
		})
	}
}
