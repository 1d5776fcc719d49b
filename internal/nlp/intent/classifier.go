// Package intent scores a message against the weighted intent table and picks
// the primary intent, its confidence and a short list of alternatives.
package intent

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"
)

// Unknown is reported when no intent scores above zero.
const Unknown = "unknown"

const (
	keywordScore    = 1.0
	patternScore    = 1.5
	scoreScale      = 3.0
	patternBoost    = 0.1
	patternBoostCap = 0.3
	maxSecondary    = 3
)

const (
	LevelHigh    = "high"
	LevelMedium  = "medium"
	LevelLow     = "low"
	LevelVeryLow = "very_low"
)

var quantityRe = regexp.MustCompile(`\d+\.?\d*`)

// Context carries what the conversation already knows about the user.
type Context struct {
	PreviousIntent string   `json:"previousIntent,omitempty"`
	MentionedCrops []string `json:"mentionedCrops,omitempty"`
	Season         string   `json:"season,omitempty"`
}

type ScoredIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	Intent           string              `json:"intent"`
	Confidence       float64             `json:"confidence"`
	SecondaryIntents []ScoredIntent      `json:"secondaryIntents"`
	MatchedPatterns  []string            `json:"matchedPatterns"`
	ContextClues     map[string][]string `json:"contextClues"`
}

type compiledIntent struct {
	knowledge.Intent
	patterns []*regexp.Regexp
}

type Classifier struct {
	rules      knowledge.IntentRules
	intents    []compiledIntent
	normalizer *textproc.Normalizer
}

func New(rules knowledge.IntentRules, normalizer *textproc.Normalizer) (*Classifier, error) {
	c := &Classifier{
		rules:      rules,
		intents:    make([]compiledIntent, 0, len(rules.Intents)),
		normalizer: normalizer,
	}
	for _, in := range rules.Intents {
		ci := compiledIntent{Intent: in}
		for _, p := range in.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%w: intent %s: %v", knowledge.ErrInvalidKnowledge, in.Name, err)
			}
			ci.patterns = append(ci.patterns, re)
		}
		c.intents = append(c.intents, ci)
	}
	return c, nil
}

// Classify normalizes text and classifies it.
func (c *Classifier) Classify(text string, ctx Context) Result {
	return c.ClassifyProcessed(c.normalizer.Process(text), ctx)
}

// ClassifyProcessed classifies text that has already been normalized.
func (c *Classifier) ClassifyProcessed(p textproc.ProcessedText, ctx Context) Result {
	if p.IsEmpty() {
		return unknownResult()
	}

	scores := c.score(p, ctx)
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if len(scores) == 0 || scores[0].score == 0 {
		return unknownResult()
	}

	primary := scores[0]
	secondary := []ScoredIntent{}
	end := 1 + maxSecondary
	if end > len(scores) {
		end = len(scores)
	}
	for _, s := range scores[1:end] {
		if s.score <= 0 {
			continue
		}
		conf := confidence(s.score, len(s.patterns))
		if conf > c.rules.Thresholds.Low {
			secondary = append(secondary, ScoredIntent{Intent: s.name, Confidence: conf})
		}
	}

	return Result{
		Intent:           primary.name,
		Confidence:       confidence(primary.score, len(primary.patterns)),
		SecondaryIntents: secondary,
		MatchedPatterns:  primary.patterns,
		ContextClues:     c.contextClues(p, primary.name),
	}
}

type intentScore struct {
	name     string
	score    float64
	patterns []string
}

func (c *Classifier) score(p textproc.ProcessedText, ctx Context) []intentScore {
	text := strings.ToLower(p.Cleaned)
	scores := make([]intentScore, 0, len(c.intents))

	for _, in := range c.intents {
		s := intentScore{name: in.Name, patterns: []string{}}

		for _, kw := range in.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				s.score += keywordScore
			}
		}
		for i, re := range in.patterns {
			if re.MatchString(text) {
				s.score += patternScore
				s.patterns = append(s.patterns, in.Patterns[i])
			}
		}

		s.score *= in.Weight
		s.score += c.contextBoost(in.Name, ctx)
		s.score += c.tokenBoost(in.TokenStems, p.NormalizedTokens)
		scores = append(scores, s)
	}
	return scores
}

func (c *Classifier) contextBoost(name string, ctx Context) float64 {
	boost := 0.0
	b := c.rules.Boosts

	if contains(c.rules.Continuations[ctx.PreviousIntent], name) {
		boost += b.Continuation
	}
	if len(ctx.MentionedCrops) > 0 && contains(c.rules.CropBoostIntents, name) {
		boost += b.Crops
	}
	if contains(c.rules.SeasonBoosts[ctx.Season], name) {
		boost += b.Season
	}
	return boost
}

func (c *Classifier) tokenBoost(stems, tokens []string) float64 {
	if len(stems) == 0 {
		return 0
	}
	matches := 0
	for _, t := range tokens {
		for _, stem := range stems {
			if strings.Contains(t, stem) {
				matches++
				break
			}
		}
	}
	return math.Min(float64(matches)*c.rules.Boosts.Token, c.rules.Boosts.TokenCap)
}

func (c *Classifier) contextClues(p textproc.ProcessedText, primary string) map[string][]string {
	clues := make(map[string][]string)
	cl := c.rules.Clues

	collect := func(key string, words []string) {
		for _, t := range p.NormalizedTokens {
			for _, w := range words {
				if strings.Contains(t, w) && !contains(clues[key], w) {
					clues[key] = append(clues[key], w)
				}
			}
		}
	}

	collect("crops", cl.Crops)
	if contains(cl.ProblemIntents, primary) {
		collect("problems", cl.Problems)
	}
	collect("timing", cl.Timing)

	if q := quantityRe.FindAllString(p.Cleaned, -1); len(q) > 0 {
		clues["quantities"] = q
	}
	return clues
}

// ConfidenceLevel buckets a confidence value using the configured thresholds.
func (c *Classifier) ConfidenceLevel(confidence float64) string {
	t := c.rules.Thresholds
	switch {
	case confidence >= t.High:
		return LevelHigh
	case confidence >= t.Medium:
		return LevelMedium
	case confidence >= t.Low:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

func confidence(score float64, patterns int) float64 {
	base := math.Min(score/scoreScale, 1)
	boost := math.Min(float64(patterns)*patternBoost, patternBoostCap)
	return round3(math.Min(base+boost, 1))
}

func unknownResult() Result {
	return Result{
		Intent:           Unknown,
		SecondaryIntents: []ScoredIntent{},
		MatchedPatterns:  []string{},
		ContextClues:     map[string][]string{},
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
