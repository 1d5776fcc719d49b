package conversation

import (
	"time"

	"agribot-workers/internal/nlp/entity"
)

// Summary is the report produced for an active or just-ended session.
type Summary struct {
	UserID            string              `json:"userId"`
	ConversationID    *int64              `json:"conversationId,omitempty"`
	SessionID         string              `json:"sessionId"`
	DurationMinutes   float64             `json:"durationMinutes"`
	TurnCount         int                 `json:"turnCount"`
	StartTime         time.Time           `json:"startTime"`
	CurrentTopic      string              `json:"currentTopic"`
	TopicHistory      []string            `json:"topicHistory"`
	Entities          map[string][]string `json:"entitiesMentioned"`
	AverageConfidence float64             `json:"averageConfidence"`
	LastConfidence    float64             `json:"lastConfidence"`
	SuggestedTopics   []string            `json:"suggestedTopics"`
}

func (t *Tracker) summarize(state *State) *Summary {
	topics := []string{}
	total := 0.0
	for _, turn := range state.History {
		if turn.Intent != "" {
			topics = append(topics, turn.Intent)
		}
		total += turn.Confidence
	}

	avg := 0.0
	if len(state.History) > 0 {
		avg = round(total/float64(len(state.History)), 2)
	}

	return &Summary{
		UserID:          state.UserID,
		ConversationID:  state.ConversationID,
		SessionID:       state.SessionID,
		DurationMinutes: round(t.opts.Now().Sub(state.SessionStart).Minutes(), 1),
		TurnCount:       state.TurnCount,
		StartTime:       state.SessionStart,
		CurrentTopic:    state.CurrentTopic,
		TopicHistory:    topics,
		Entities: map[string][]string{
			entity.Crops:    append([]string{}, state.MentionedCrops...),
			entity.Regions:  append([]string{}, state.MentionedRegions...),
			entity.Diseases: append([]string{}, state.MentionedDiseases...),
			entity.Pests:    append([]string{}, state.MentionedPests...),
		},
		AverageConfidence: avg,
		LastConfidence:    state.LastConfidence,
		SuggestedTopics:   t.suggest(state),
	}
}
