// Package conversation tracks per-user conversation state between messages:
// the current topic, recently mentioned entities and a short turn history.
package conversation

import (
	"time"

	"agribot-workers/internal/nlp"
)

const TopicGreeting = "greeting"

// Turn is one user message and the reply that followed it.
type Turn struct {
	Timestamp  time.Time           `json:"timestamp"`
	UserText   string              `json:"userText"`
	BotText    string              `json:"botText"`
	Intent     string              `json:"intent,omitempty"`
	Confidence float64             `json:"confidence"`
	Entities   map[string][]string `json:"entities,omitempty"`
}

// Preferences is a snapshot of the user record taken when the session opens.
type Preferences struct {
	Name               string `json:"name"`
	Region             string `json:"region"`
	Role               string `json:"role"`
	TotalConversations int    `json:"totalConversations"`
}

// State is the live context of one user's session.
type State struct {
	UserID            string      `json:"userId"`
	ConversationID    *int64      `json:"conversationId,omitempty"`
	SessionID         string      `json:"sessionId"`
	CurrentTopic      string      `json:"currentTopic"`
	MentionedCrops    []string    `json:"mentionedCrops"`
	MentionedRegions  []string    `json:"mentionedRegions"`
	MentionedDiseases []string    `json:"mentionedDiseases"`
	MentionedPests    []string    `json:"mentionedPests"`
	SessionStart      time.Time   `json:"sessionStart"`
	LastActivity      time.Time   `json:"lastActivity"`
	LastIntent        string      `json:"lastIntent,omitempty"`
	LastConfidence    float64     `json:"lastConfidence"`
	TurnCount         int         `json:"turnCount"`
	History           []Turn      `json:"history"`
	Preferences       Preferences `json:"preferences"`
}

// Context converts the state into the hints the analysis pipeline uses.
func (s *State) Context() nlp.Context {
	return nlp.Context{
		PreviousIntent:   s.LastIntent,
		CurrentTopic:     s.CurrentTopic,
		MentionedCrops:   append([]string(nil), s.MentionedCrops...),
		MentionedRegions: append([]string(nil), s.MentionedRegions...),
	}
}

func (s *State) clone() *State {
	c := *s
	if s.ConversationID != nil {
		id := *s.ConversationID
		c.ConversationID = &id
	}
	c.MentionedCrops = append([]string{}, s.MentionedCrops...)
	c.MentionedRegions = append([]string{}, s.MentionedRegions...)
	c.MentionedDiseases = append([]string{}, s.MentionedDiseases...)
	c.MentionedPests = append([]string{}, s.MentionedPests...)
	c.History = make([]Turn, len(s.History))
	for i, t := range s.History {
		t.Entities = cloneEntities(t.Entities)
		c.History[i] = t
	}
	return &c
}

func cloneEntities(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// mergeRecent appends the values not already in list and keeps the last max.
func mergeRecent(list, values []string, max int) []string {
	for _, v := range values {
		if v == "" || contains(list, v) {
			continue
		}
		list = append(list, v)
	}
	if max > 0 && len(list) > max {
		list = append([]string{}, list[len(list)-max:]...)
	}
	return list
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
