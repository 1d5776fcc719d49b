package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const maxIntentBuckets = 50

type IntentCount struct {
	Intent        string  `json:"intent"`
	Count         int64   `json:"count"`
	AvgConfidence float64 `json:"avgConfidence"`
}

// Stats summarises the turns indexed since a point in time.
type Stats struct {
	Since         time.Time        `json:"since"`
	TotalTurns    int64            `json:"totalTurns"`
	AvgConfidence float64          `json:"avgConfidence"`
	Intents       []IntentCount    `json:"intents"`
	Tones         map[string]int64 `json:"tones"`
}

func buildStatsQuery(since time.Time) map[string]interface{} {
	return map[string]interface{}{
		"size":             0,
		"track_total_hits": true,
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"@timestamp": map[string]interface{}{"gte": since.UTC().Format(time.RFC3339)},
			},
		},
		"aggs": map[string]interface{}{
			"avg_confidence": map[string]interface{}{
				"avg": map[string]interface{}{"field": "confidence"},
			},
			"intents": map[string]interface{}{
				"terms": map[string]interface{}{"field": "intent", "size": maxIntentBuckets},
				"aggs": map[string]interface{}{
					"avg_confidence": map[string]interface{}{
						"avg": map[string]interface{}{"field": "confidence"},
					},
				},
			},
			"tones": map[string]interface{}{
				"terms": map[string]interface{}{"field": "tone"},
			},
		},
	}
}

type statsResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations struct {
		AvgConfidence struct {
			Value *float64 `json:"value"`
		} `json:"avg_confidence"`
		Intents struct {
			Buckets []struct {
				Key           string `json:"key"`
				DocCount      int64  `json:"doc_count"`
				AvgConfidence struct {
					Value *float64 `json:"value"`
				} `json:"avg_confidence"`
			} `json:"buckets"`
		} `json:"intents"`
		Tones struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"tones"`
	} `json:"aggregations"`
}

// IntentStats aggregates intent counts and confidences over turns indexed
// at or after since. Intents are ordered by count, highest first.
func (i *Indexer) IntentStats(ctx context.Context, since time.Time) (*Stats, error) {
	body, _ := json.Marshal(buildStatsQuery(since))

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, readError(res))
	}

	var parsed statsResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrQueryFailed, err)
	}

	stats := &Stats{
		Since:         since.UTC(),
		TotalTurns:    parsed.Hits.Total.Value,
		AvgConfidence: round3(parsed.Aggregations.AvgConfidence.Value),
		Intents:       make([]IntentCount, 0, len(parsed.Aggregations.Intents.Buckets)),
		Tones:         make(map[string]int64, len(parsed.Aggregations.Tones.Buckets)),
	}
	for _, b := range parsed.Aggregations.Intents.Buckets {
		stats.Intents = append(stats.Intents, IntentCount{
			Intent:        b.Key,
			Count:         b.DocCount,
			AvgConfidence: round3(b.AvgConfidence.Value),
		})
	}
	for _, b := range parsed.Aggregations.Tones.Buckets {
		stats.Tones[b.Key] = b.DocCount
	}
	return stats, nil
}

func round3(v *float64) float64 {
	if v == nil {
		return 0
	}
	return math.Round(*v*1000) / 1000
}
