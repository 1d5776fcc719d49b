// Package nlp ties the normalizer, intent classifier, entity extractor and
// sentiment analyzer into one pipeline.
package nlp

import (
	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/entity"
	"agribot-workers/internal/nlp/intent"
	"agribot-workers/internal/nlp/sentiment"
	"agribot-workers/internal/nlp/textproc"
)

// Context is what the conversation tracker knows about the user when a new
// message arrives.
type Context struct {
	PreviousIntent   string   `json:"previousIntent,omitempty"`
	CurrentTopic     string   `json:"currentTopic,omitempty"`
	MentionedCrops   []string `json:"mentionedCrops,omitempty"`
	MentionedRegions []string `json:"mentionedRegions,omitempty"`
	Season           string   `json:"season,omitempty"`
}

func (c Context) intentContext() intent.Context {
	return intent.Context{
		PreviousIntent: c.PreviousIntent,
		MentionedCrops: c.MentionedCrops,
		Season:         c.Season,
	}
}

type Processor struct {
	normalizer *textproc.Normalizer
	classifier *intent.Classifier
	extractor  *entity.Extractor
	analyzer   *sentiment.Analyzer
}

func NewProcessor(tables *knowledge.Tables) (*Processor, error) {
	normalizer := textproc.New(tables.Normalizer)

	classifier, err := intent.New(tables.Intents, normalizer)
	if err != nil {
		return nil, err
	}
	extractor, err := entity.New(tables.Entities, normalizer)
	if err != nil {
		return nil, err
	}

	return &Processor{
		normalizer: normalizer,
		classifier: classifier,
		extractor:  extractor,
		analyzer:   sentiment.New(tables.Sentiment, normalizer),
	}, nil
}

// Process runs every stage over text. The text is normalized once and the
// result shared by the stages.
func (p *Processor) Process(text string, ctx Context) *RuleBased {
	processed := p.normalizer.Process(text)
	score := p.analyzer.AnalyzeProcessed(processed)
	emotional := p.analyzer.EmotionalContext(text, score)

	return &RuleBased{
		Text:        processed,
		Intent:      p.classifier.ClassifyProcessed(processed, ctx.intentContext()),
		Entities:    p.extractor.ExtractProcessed(processed),
		Sentiment:   score,
		Emotional:   emotional,
		Suggestions: sentiment.Suggestions(score, emotional),
	}
}

func (p *Processor) Normalizer() *textproc.Normalizer { return p.normalizer }

func (p *Processor) Classifier() *intent.Classifier { return p.classifier }

func (p *Processor) Extractor() *entity.Extractor { return p.extractor }

func (p *Processor) Analyzer() *sentiment.Analyzer { return p.analyzer }
