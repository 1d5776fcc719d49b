package sentiment

import (
	"testing"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"

	"github.com/stretchr/testify/assert"
)

func newTestAnalyzer() *Analyzer {
	tables := knowledge.Default()
	return New(tables.Sentiment, textproc.New(tables.Normalizer))
}

func TestAnalyze(t *testing.T) {
	a := newTestAnalyzer()

	tests := []struct {
		name string
		text string
		want Score
	}{
		{
			name: "negated negative word",
			text: "this is not bad at all",
			want: Score{Polarity: 1, Subjectivity: 0.5, Tone: ToneNeutral, Confidence: 0.333, Indicators: []string{"negated_bad"}},
		},
		{
			name: "dying crop with worry",
			text: "My maize is dying, I am very worried",
			want: Score{Polarity: -1, Subjectivity: 1, Tone: "worry", Confidence: 0.567, Indicators: []string{"dying"}},
		},
		{
			name: "positive report",
			text: "The harvest was excellent and the plants look healthy",
			want: Score{Polarity: 1, Subjectivity: 0.5, Tone: ToneNeutral, Confidence: 0.533, Indicators: []string{"excellent", "healthy", "harvest"}},
		},
		{
			name: "negation within window",
			text: "i do not think this is a good idea",
			want: Score{Polarity: -1, Subjectivity: 1, Tone: ToneNeutral, Confidence: 0.4, Indicators: []string{"negated_good"}},
		},
		{
			name: "word past negation window",
			text: "not that i think this is good",
			want: Score{Polarity: 1, Subjectivity: 1, Tone: ToneNeutral, Confidence: 0.333, Indicators: []string{"good"}},
		},
		{
			name: "empty",
			text: "  ",
			want: Score{Tone: ToneNeutral, Indicators: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.text)
			assert.InDelta(t, tt.want.Polarity, got.Polarity, 1e-9)
			assert.InDelta(t, tt.want.Subjectivity, got.Subjectivity, 1e-9)
			assert.Equal(t, tt.want.Tone, got.Tone)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.want.Indicators, got.Indicators)
		})
	}
}

func TestAnalyze_ToneTieGoesToFirst(t *testing.T) {
	a := newTestAnalyzer()

	s := a.Analyze("worried and frustrated")
	assert.Equal(t, "worry", s.Tone)
}

func TestAnalyze_Bounds(t *testing.T) {
	a := newTestAnalyzer()

	inputs := []string{
		"very very good good great harvest, not bad, never terrible",
		"dead dying destroyed ruined loss pest",
		"I think maybe it could be slightly better",
		"!!!",
		"je ne sais pas",
	}
	for _, in := range inputs {
		s := a.Analyze(in)
		assert.GreaterOrEqual(t, s.Polarity, -1.0, in)
		assert.LessOrEqual(t, s.Polarity, 1.0, in)
		assert.GreaterOrEqual(t, s.Subjectivity, 0.0, in)
		assert.LessOrEqual(t, s.Subjectivity, 1.0, in)
		assert.GreaterOrEqual(t, s.Confidence, 0.0, in)
		assert.LessOrEqual(t, s.Confidence, 1.0, in)
	}
}

func TestEmotionalContext(t *testing.T) {
	a := newTestAnalyzer()

	tests := []struct {
		name string
		text string
		want EmotionalContext
	}{
		{
			name: "dying crop",
			text: "My maize is dying, I am very worried",
			want: EmotionalContext{Urgency: UrgencyCritical, Frustration: []string{}, Concern: ConcernSevere, HelpSeeking: HelpModerate},
		},
		{
			name: "persistent problem",
			text: "I still have the same problem again, tried everything",
			want: EmotionalContext{
				Urgency:     UrgencyMedium,
				Frustration: []string{"tried everything", "still", "again", "persistent_problem"},
				Concern:     ConcernMinimal,
				HelpSeeking: HelpCasual,
			},
		},
		{
			name: "positive report",
			text: "The harvest was excellent and the plants look healthy",
			want: EmotionalContext{Urgency: UrgencyLow, Frustration: []string{}, Concern: ConcernMinimal, HelpSeeking: HelpCasual},
		},
		{
			name: "desperate plea",
			text: "Please help, small holes everywhere",
			want: EmotionalContext{Urgency: UrgencyLow, Frustration: []string{}, Concern: ConcernModerate, HelpSeeking: HelpDesperate},
		},
		{
			name: "empty",
			text: "",
			want: EmotionalContext{Urgency: UrgencyLow, Frustration: []string{}, Concern: ConcernMinimal, HelpSeeking: HelpCasual},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.EmotionalContext(tt.text, a.Analyze(tt.text)))
		})
	}
}

func TestEmotionalContext_PolarityFallbacks(t *testing.T) {
	a := newTestAnalyzer()

	tests := []struct {
		polarity    float64
		wantUrgency string
		wantConcern string
	}{
		{-0.7, UrgencyHigh, ConcernSevere},
		{-0.4, UrgencyMedium, ConcernHigh},
		{-0.1, UrgencyLow, ConcernModerate},
		{0.3, UrgencyLow, ConcernMinimal},
	}

	for _, tt := range tests {
		ec := a.EmotionalContext("xyz", Score{Polarity: tt.polarity, Tone: "desperation"})
		assert.Equal(t, tt.wantUrgency, ec.Urgency, "%v", tt.polarity)
		assert.Equal(t, tt.wantConcern, ec.Concern, "%v", tt.polarity)
		assert.Equal(t, HelpUrgent, ec.HelpSeeking)
	}
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name string
		s    Score
		ec   EmotionalContext
		want ResponseSuggestions
	}{
		{
			name: "defaults",
			s:    Score{Tone: ToneNeutral},
			ec:   EmotionalContext{Urgency: UrgencyLow, Concern: ConcernMinimal},
			want: ResponseSuggestions{ToneAdjustment: "neutral", EmpathyLevel: "standard", UrgencyResponse: "normal", DetailLevel: "standard"},
		},
		{
			name: "distressed farmer",
			s:    Score{Polarity: -1, Tone: "worry"},
			ec:   EmotionalContext{Urgency: UrgencyCritical, Concern: ConcernSevere},
			want: ResponseSuggestions{ToneAdjustment: "supportive", EmpathyLevel: "high", UrgencyResponse: "immediate", DetailLevel: "concise", EncouragementNeeded: true},
		},
		{
			name: "happy farmer",
			s:    Score{Polarity: 0.8, Tone: "satisfaction"},
			ec:   EmotionalContext{Urgency: UrgencyLow, Concern: ConcernMinimal},
			want: ResponseSuggestions{ToneAdjustment: "enthusiastic", EmpathyLevel: "standard", UrgencyResponse: "normal", DetailLevel: "standard"},
		},
		{
			name: "frustrated but mild",
			s:    Score{Polarity: -0.2, Tone: "frustration"},
			ec:   EmotionalContext{Urgency: UrgencyMedium, Concern: ConcernModerate},
			want: ResponseSuggestions{ToneAdjustment: "neutral", EmpathyLevel: "elevated", UrgencyResponse: "normal", DetailLevel: "standard"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggestions(tt.s, tt.ec))
		})
	}
}
