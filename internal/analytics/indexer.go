// Package analytics records analysed conversation turns in Elasticsearch and
// reads intent statistics back out of them.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/nlp"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "agribot-turns"

var (
	ErrIndexFailed = errors.New("ANALYTICS_INDEX_FAILED")
	ErrQueryFailed = errors.New("ANALYTICS_QUERY_FAILED")
)

// TurnDocument is one analysed user message as stored in the index.
type TurnDocument struct {
	UserID         string              `json:"userId"`
	ConversationID *int64              `json:"conversationId,omitempty"`
	SessionID      string              `json:"sessionId"`
	TurnCount      int                 `json:"turnCount"`
	Intent         string              `json:"intent"`
	Confidence     float64             `json:"confidence"`
	Source         string              `json:"source"`
	Entities       map[string][]string `json:"entities,omitempty"`
	Polarity       *float64            `json:"polarity,omitempty"`
	Tone           string              `json:"tone,omitempty"`
	Urgency        string              `json:"urgency,omitempty"`
	Language       string              `json:"language,omitempty"`
	Timestamp      time.Time           `json:"@timestamp"`
}

// FromAnalysis fills the classification fields of a document. Sentiment and
// language are only known for rule-based analyses.
func FromAnalysis(a nlp.Analysis, at time.Time) TurnDocument {
	doc := TurnDocument{
		Intent:     nlp.PrimaryIntent(a),
		Confidence: nlp.IntentConfidence(a),
		Source:     nlp.Source(a),
		Entities:   nlp.EntitySummary(a),
		Timestamp:  at.UTC(),
	}
	if rb, ok := a.(*nlp.RuleBased); ok {
		polarity := rb.Sentiment.Polarity
		doc.Polarity = &polarity
		doc.Tone = rb.Sentiment.Tone
		doc.Urgency = rb.Emotional.Urgency
		doc.Language = rb.Text.Language
	}
	return doc
}

// DocumentID makes re-indexing the same turn overwrite the earlier copy.
func (d TurnDocument) DocumentID() string {
	return fmt.Sprintf("%s-%d", d.SessionID, d.TurnCount)
}

type Indexer struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{
		client: client,
		index:  index,
		log:    log.WithFields(map[string]interface{}{"component": "analytics", "index": index}),
	}
}

func (i *Indexer) Index() string { return i.index }

var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"userId":         map[string]interface{}{"type": "keyword"},
			"conversationId": map[string]interface{}{"type": "long"},
			"sessionId":      map[string]interface{}{"type": "keyword"},
			"turnCount":      map[string]interface{}{"type": "integer"},
			"intent":         map[string]interface{}{"type": "keyword"},
			"confidence":     map[string]interface{}{"type": "float"},
			"source":         map[string]interface{}{"type": "keyword"},
			"entities":       map[string]interface{}{"type": "object"},
			"polarity":       map[string]interface{}{"type": "float"},
			"tone":           map[string]interface{}{"type": "keyword"},
			"urgency":        map[string]interface{}{"type": "keyword"},
			"language":       map[string]interface{}{"type": "keyword"},
			"@timestamp":     map[string]interface{}{"type": "date"},
		},
	},
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: check index: %v", ErrIndexFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: check index: %s", ErrIndexFailed, res.Status())
	}

	body, _ := json.Marshal(indexMapping)
	res, err = i.client.Indices.Create(i.index,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: create index: %s", ErrIndexFailed, readError(res))
	}

	i.log.Info("analytics index created", nil)
	return nil
}

// IndexTurn stores doc. Failures are counted and returned; callers treat
// them as non-fatal.
func (i *Indexer) IndexTurn(ctx context.Context, doc TurnDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		metrics.AnalyticsIndexFailures.Inc()
		return fmt.Errorf("%w: encode: %v", ErrIndexFailed, err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.DocumentID(),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		metrics.AnalyticsIndexFailures.Inc()
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.AnalyticsIndexFailures.Inc()
		return fmt.Errorf("%w: %s", ErrIndexFailed, readError(res))
	}
	return nil
}

func readError(res *esapi.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if len(raw) == 0 {
		return res.Status()
	}
	return fmt.Sprintf("%s: %s", res.Status(), raw)
}
