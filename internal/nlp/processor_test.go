package nlp

import (
	"testing"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/entity"
	"agribot-workers/internal/nlp/intent"
	"agribot-workers/internal/nlp/sentiment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(knowledge.Default())
	require.NoError(t, err)
	return p
}

func TestProcess_DiseaseReport(t *testing.T) {
	p := newTestProcessor(t)

	a := p.Process("i have maze disease in centre region yellow spots", Context{})

	assert.Equal(t, "disease_identification", a.Intent.Intent)
	assert.Greater(t, a.Intent.Confidence, 0.0)
	assert.Equal(t, []string{"maize"}, a.Entities.Normalized(entity.Crops))
	assert.Equal(t, []string{"centre"}, a.Entities.Normalized(entity.Regions))
	assert.Equal(t, "i have maize disease in centre region yellow spots", a.Text.Cleaned)
	assert.Equal(t, "normal", a.Suggestions.UrgencyResponse)

	assert.Equal(t, "disease_identification", PrimaryIntent(a))
	assert.Equal(t, SourceRuleBased, Source(a))
	assert.Equal(t, map[string][]string{
		entity.Crops:    {"maize"},
		entity.Regions:  {"centre"},
		entity.Diseases: {"spot"},
	}, EntitySummary(a))
}

func TestProcess_EmptyInput(t *testing.T) {
	p := newTestProcessor(t)

	a := p.Process("", Context{})

	assert.Equal(t, intent.Unknown, a.Intent.Intent)
	assert.Equal(t, 0.0, a.Intent.Confidence)
	assert.Equal(t, 0, a.Entities.Count)
	assert.Equal(t, sentiment.ToneNeutral, a.Sentiment.Tone)
	assert.Equal(t, sentiment.UrgencyLow, a.Emotional.Urgency)
	assert.Empty(t, EntitySummary(a))
	assert.Equal(t, intent.Unknown, PrimaryIntent(a))
}

func TestProcess_UsesContext(t *testing.T) {
	p := newTestProcessor(t)

	without := p.Process("xyz qqq", Context{})
	with := p.Process("xyz qqq", Context{Season: "planting", MentionedCrops: []string{"maize"}})

	assert.Equal(t, intent.Unknown, without.Intent.Intent)
	assert.Equal(t, "fertilizer_advice", with.Intent.Intent)
}

func TestAccessors_ExternalModel(t *testing.T) {
	a := &ExternalModel{Intent: "pest_control", Confidence: 1.4, Crops: []string{" Maize ", "", "CASSAVA"}, Model: "genai"}

	assert.Equal(t, "pest_control", PrimaryIntent(a))
	assert.Equal(t, 1.0, IntentConfidence(a))
	assert.Equal(t, map[string][]string{entity.Crops: {"maize", "cassava"}}, EntitySummary(a))
	assert.Equal(t, SourceExternalModel, Source(a))

	empty := &ExternalModel{Confidence: -0.2}
	assert.Equal(t, intent.Unknown, PrimaryIntent(empty))
	assert.Equal(t, 0.0, IntentConfidence(empty))
	assert.Empty(t, EntitySummary(empty))
}
