package sentiment

type ResponseSuggestions struct {
	ToneAdjustment      string `json:"toneAdjustment"`
	EmpathyLevel        string `json:"empathyLevel"`
	UrgencyResponse     string `json:"urgencyResponse"`
	DetailLevel         string `json:"detailLevel"`
	EncouragementNeeded bool   `json:"encouragementNeeded"`
}

// Suggestions tells the response builder how to adapt its reply.
func Suggestions(s Score, ec EmotionalContext) ResponseSuggestions {
	out := ResponseSuggestions{
		ToneAdjustment:  "neutral",
		EmpathyLevel:    "standard",
		UrgencyResponse: "normal",
		DetailLevel:     "standard",
	}

	switch {
	case s.Polarity < -0.5:
		out.ToneAdjustment = "supportive"
	case s.Polarity > 0.5:
		out.ToneAdjustment = "enthusiastic"
	}

	switch {
	case ec.Concern == ConcernSevere || ec.Concern == ConcernHigh:
		out.EmpathyLevel = "high"
	case s.Tone == "worry" || s.Tone == "frustration" || s.Tone == "desperation":
		out.EmpathyLevel = "elevated"
	}

	if ec.Urgency == UrgencyCritical || ec.Urgency == UrgencyHigh {
		out.UrgencyResponse = "immediate"
		out.DetailLevel = "concise"
	}

	out.EncouragementNeeded = s.Polarity < -0.3 || s.Tone == "worry" || s.Tone == "desperation"
	return out
}
