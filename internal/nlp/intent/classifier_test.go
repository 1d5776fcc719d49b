package intent

import (
	"testing"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	tables := knowledge.Default()
	c, err := New(tables.Intents, textproc.New(tables.Normalizer))
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name           string
		text           string
		ctx            Context
		wantIntent     string
		wantConfidence float64
		wantSecondary  []ScoredIntent
		wantClues      map[string][]string
	}{
		{
			name:           "disease with symptoms",
			text:           "I have maze disease in Centre region, yellow spots",
			wantIntent:     "disease_identification",
			wantConfidence: 1,
			wantSecondary:  []ScoredIntent{},
			wantClues: map[string][]string{
				"crops":    {"maize"},
				"problems": {"yellow", "spot"},
			},
		},
		{
			name:           "greeting",
			text:           "Hello there",
			wantIntent:     "greeting",
			wantConfidence: 0.933,
			wantSecondary:  []ScoredIntent{},
			wantClues:      map[string][]string{},
		},
		{
			name:           "fertilizer with quantity",
			text:           "how much fertilizer for 2.5 ha of maize",
			wantIntent:     "fertilizer_advice",
			wantConfidence: 1,
			wantSecondary:  []ScoredIntent{{Intent: "general_inquiry", Confidence: 0.767}},
			wantClues: map[string][]string{
				"crops":      {"maize"},
				"quantities": {"2.5"},
			},
		},
		{
			name:           "context adds secondaries",
			text:           "I have maze disease in Centre region, yellow spots",
			ctx:            Context{PreviousIntent: "disease_identification", MentionedCrops: []string{"maize"}, Season: "growing"},
			wantIntent:     "disease_identification",
			wantConfidence: 1,
			wantSecondary: []ScoredIntent{
				{Intent: "pest_control", Confidence: 0.333},
				{Intent: "fertilizer_advice", Confidence: 0.267},
			},
			wantClues: map[string][]string{
				"crops":    {"maize"},
				"problems": {"yellow", "spot"},
			},
		},
		{
			name:          "nothing matches",
			text:          "xyz qqq",
			wantIntent:    Unknown,
			wantSecondary: []ScoredIntent{},
			wantClues:     map[string][]string{},
		},
		{
			name:          "empty",
			text:          "   ",
			wantIntent:    Unknown,
			wantSecondary: []ScoredIntent{},
			wantClues:     map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Classify(tt.text, tt.ctx)

			assert.Equal(t, tt.wantIntent, r.Intent)
			assert.InDelta(t, tt.wantConfidence, r.Confidence, 1e-9)
			assert.Equal(t, tt.wantSecondary, r.SecondaryIntents)
			assert.Equal(t, tt.wantClues, r.ContextClues)
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
		})
	}
}

func TestClassify_MatchedPatterns(t *testing.T) {
	c := newTestClassifier(t)

	r := c.Classify("my maize has yellow spots and disease", Context{})
	require.Equal(t, "disease_identification", r.Intent)
	assert.Equal(t, []string{
		`\b(disease|sick|dying)\b`,
		`\b(yellow|brown|black|white)\s+(spots?|leaves?)\b`,
	}, r.MatchedPatterns)
}

func TestClassify_ContextOnlyScore(t *testing.T) {
	c := newTestClassifier(t)

	// no lexical signal, the season boost alone picks the first boosted intent
	r := c.Classify("xyz qqq", Context{Season: "harvest"})
	assert.Equal(t, "harvest_timing", r.Intent)
	assert.InDelta(t, 0.067, r.Confidence, 1e-9)
}

func TestNew_InvalidPattern(t *testing.T) {
	rules := knowledge.IntentRules{Intents: []knowledge.Intent{{Name: "broken", Weight: 1, Patterns: []string{"(x"}}}}

	_, err := New(rules, textproc.New(knowledge.Default().Normalizer))
	assert.ErrorIs(t, err, knowledge.ErrInvalidKnowledge)
}

func TestConfidenceLevel(t *testing.T) {
	c := newTestClassifier(t)

	tests := map[float64]string{
		1:    LevelHigh,
		0.7:  LevelHigh,
		0.69: LevelMedium,
		0.4:  LevelMedium,
		0.2:  LevelLow,
		0.19: LevelVeryLow,
		0:    LevelVeryLow,
	}
	for in, want := range tests {
		assert.Equal(t, want, c.ConfidenceLevel(in), "%v", in)
	}
}

func TestAnalyzePatterns(t *testing.T) {
	c := newTestClassifier(t)

	a := c.AnalyzePatterns([]string{"hello", "my maize has disease", "hello there", ""})

	assert.Equal(t, 4, a.TotalTexts)
	assert.Equal(t, map[string]int{"greeting": 2, "disease_identification": 1, Unknown: 1}, a.Distribution)
	assert.Equal(t, "greeting", a.MostCommonIntent)
	assert.Equal(t, 2, a.MostCommonCount)
	assert.InDelta(t, 0.933, a.AverageConfidence["greeting"], 1e-9)
	assert.InDelta(t, 1.0, a.AverageConfidence["disease_identification"], 1e-9)
	assert.Equal(t, 0.0, a.AverageConfidence[Unknown])
}

func TestAnalyzePatterns_Empty(t *testing.T) {
	c := newTestClassifier(t)

	a := c.AnalyzePatterns(nil)
	assert.Equal(t, 0, a.TotalTexts)
	assert.Empty(t, a.MostCommonIntent)
	assert.Empty(t, a.Distribution)
}
