package sentiment

import (
	"strings"

	"agribot-workers/internal/knowledge"
)

const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"

	ConcernMinimal  = "minimal"
	ConcernModerate = "moderate"
	ConcernHigh     = "high"
	ConcernSevere   = "severe"

	HelpCasual    = "casual"
	HelpModerate  = "moderate"
	HelpUrgent    = "urgent"
	HelpDesperate = "desperate"

	persistentProblem = "persistent_problem"
)

type EmotionalContext struct {
	Urgency     string   `json:"urgencyLevel"`
	Frustration []string `json:"frustrationIndicators"`
	Concern     string   `json:"concernLevel"`
	HelpSeeking string   `json:"helpSeekingIntensity"`
}

// EmotionalContext reads urgency, frustration, concern and help seeking from
// text, falling back to s when no keyword tier matches.
func (a *Analyzer) EmotionalContext(text string, s Score) EmotionalContext {
	lower := strings.ToLower(text)
	return EmotionalContext{
		Urgency:     a.urgency(lower, s),
		Frustration: a.frustration(lower),
		Concern:     a.concern(lower, s),
		HelpSeeking: a.helpSeeking(lower, s),
	}
}

func (a *Analyzer) urgency(lower string, s Score) string {
	if level, ok := firstTier(a.tables.Urgency, lower); ok {
		return level
	}
	switch {
	case s.Polarity < -0.5:
		return UrgencyHigh
	case s.Polarity < -0.2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func (a *Analyzer) frustration(lower string) []string {
	f := a.tables.Frustration
	indicators := []string{}
	for _, w := range f.Words {
		if strings.Contains(lower, w) {
			indicators = append(indicators, w)
		}
	}
	if strings.Contains(lower, f.PersistenceMarker) && containsAny(lower, f.PersistenceWords) {
		indicators = append(indicators, persistentProblem)
	}
	return indicators
}

func (a *Analyzer) concern(lower string, s Score) string {
	if level, ok := firstTier(a.tables.Concern, lower); ok {
		return level
	}
	switch {
	case s.Polarity < -0.6:
		return ConcernSevere
	case s.Polarity < -0.3:
		return ConcernHigh
	case s.Polarity < 0:
		return ConcernModerate
	default:
		return ConcernMinimal
	}
}

func (a *Analyzer) helpSeeking(lower string, s Score) string {
	if level, ok := firstTier(a.tables.HelpSeeking, lower); ok {
		return level
	}
	switch s.Tone {
	case "desperation", "urgency":
		return HelpUrgent
	case "worry", "frustration":
		return HelpModerate
	default:
		return HelpCasual
	}
}

func firstTier(tiers []knowledge.Tier, lower string) (string, bool) {
	for _, t := range tiers {
		if containsAny(lower, t.Words) {
			return t.Level, true
		}
	}
	return "", false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
