// internal/workers/conversation/record-turn/models.go
package recordturn

type Input struct {
	UserID      string `json:"userId"`
	Message     string `json:"message"`
	BotResponse string `json:"botResponse"`
	Season      string `json:"season"`
	// Analysis is analyze-message's answer for the same message. Without it
	// the message is run through the rule-based pipeline.
	Analysis *Analysis `json:"analysis,omitempty"`
}

type Analysis struct {
	Source     string   `json:"source"` // rule_based | external_model
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Crops      []string `json:"crops"`
	Model      string   `json:"model,omitempty"`
}

type Output struct {
	TurnCount       int      `json:"turnCount"`
	CurrentTopic    string   `json:"currentTopic"`
	MentionedCrops  []string `json:"mentionedCrops"`
	SuggestedTopics []string `json:"suggestedTopics"`
	// Persisted is false when the session has no stored conversation row.
	Persisted bool `json:"persisted"`
}
