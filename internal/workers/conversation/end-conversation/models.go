// internal/workers/conversation/end-conversation/models.go
package endconversation

import "agribot-workers/internal/conversation"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Summary *conversation.Summary `json:"summary"`
	// Persisted is false when the conversation row could not be closed. The
	// session is gone either way.
	Persisted bool `json:"persisted"`
}
