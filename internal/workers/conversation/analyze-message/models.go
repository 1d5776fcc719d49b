// internal/workers/conversation/analyze-message/models.go
package analyzemessage

import (
	"agribot-workers/internal/nlp/intent"
	"agribot-workers/internal/nlp/sentiment"
)

type Input struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserRegion string `json:"userRegion"`
	Message    string `json:"message"`
	Season     string `json:"season"` // planting | growing | harvest
}

// Output leaves the sentiment fields out when the external model produced
// the analysis.
type Output struct {
	ConversationID      *int64                         `json:"conversationId,omitempty"`
	IntentAnalysis      IntentAnalysis                 `json:"intentAnalysis"`
	Entities            []Entity                       `json:"entities"`
	Sentiment           *sentiment.Score               `json:"sentiment,omitempty"`
	EmotionalContext    *sentiment.EmotionalContext    `json:"emotionalContext,omitempty"`
	ResponseSuggestions *sentiment.ResponseSuggestions `json:"responseSuggestions,omitempty"`
	Language            string                         `json:"language,omitempty"`
	SuggestedTopics     []string                       `json:"suggestedTopics"`
	AnalysisSource      string                         `json:"analysisSource"`
	// Analysis is handed to record-turn so the turn is recorded with the
	// intent the reply was built on.
	Analysis TurnAnalysis `json:"analysis"`
}

type TurnAnalysis struct {
	Source     string   `json:"source"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Crops      []string `json:"crops"`
	Model      string   `json:"model,omitempty"`
}

type IntentAnalysis struct {
	PrimaryIntent    string                `json:"primaryIntent"`
	Confidence       float64               `json:"confidence"`
	SecondaryIntents []intent.ScoredIntent `json:"secondaryIntents"`
}

type Entity struct {
	Type       string  `json:"type"` // crops, regions, diseases, pests, quantities, time_references
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}
