package nlp

import (
	"strings"

	"agribot-workers/internal/nlp/entity"
	"agribot-workers/internal/nlp/intent"
	"agribot-workers/internal/nlp/sentiment"
	"agribot-workers/internal/nlp/textproc"
)

const (
	SourceRuleBased     = "rule_based"
	SourceExternalModel = "external_model"
)

// Analysis is the classification of one message. It is either *RuleBased or
// *ExternalModel; switch on the concrete type to read variant fields.
type Analysis interface {
	analysis()
}

// RuleBased is the full output of the local pipeline.
type RuleBased struct {
	Text        textproc.ProcessedText        `json:"processedText"`
	Intent      intent.Result                 `json:"intent"`
	Entities    entity.Result                 `json:"entities"`
	Sentiment   sentiment.Score               `json:"sentiment"`
	Emotional   sentiment.EmotionalContext    `json:"emotionalContext"`
	Suggestions sentiment.ResponseSuggestions `json:"responseSuggestions"`
}

// ExternalModel is an intent label produced by a remote model. It carries no
// sentiment or positional entity data.
type ExternalModel struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Crops      []string `json:"crops"`
	Model      string   `json:"model"`
}

func (*RuleBased) analysis()     {}
func (*ExternalModel) analysis() {}

// PrimaryIntent never returns an empty string.
func PrimaryIntent(a Analysis) string {
	switch v := a.(type) {
	case *RuleBased:
		if v.Intent.Intent != "" {
			return v.Intent.Intent
		}
	case *ExternalModel:
		if v.Intent != "" {
			return v.Intent
		}
	}
	return intent.Unknown
}

// IntentConfidence is clamped to [0, 1].
func IntentConfidence(a Analysis) float64 {
	var c float64
	switch v := a.(type) {
	case *RuleBased:
		c = v.Intent.Confidence
	case *ExternalModel:
		c = v.Confidence
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// EntitySummary maps entity keys to distinct normalized values. External
// models only contribute lowercased crops.
func EntitySummary(a Analysis) map[string][]string {
	out := make(map[string][]string)
	switch v := a.(type) {
	case *RuleBased:
		for _, key := range entity.Keys {
			if values := v.Entities.Normalized(key); len(values) > 0 {
				out[key] = values
			}
		}
	case *ExternalModel:
		var crops []string
		for _, c := range v.Crops {
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" {
				crops = append(crops, c)
			}
		}
		if len(crops) > 0 {
			out[entity.Crops] = crops
		}
	}
	return out
}

// Source labels the variant for metrics and job output.
func Source(a Analysis) string {
	if _, ok := a.(*ExternalModel); ok {
		return SourceExternalModel
	}
	return SourceRuleBased
}
