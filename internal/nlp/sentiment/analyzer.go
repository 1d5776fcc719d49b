// Package sentiment scores polarity, subjectivity and emotional tone, and
// derives the emotional context used to adapt bot responses.
package sentiment

import (
	"math"
	"strings"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"
)

const ToneNeutral = "neutral"

const (
	toneScale      = 3.0
	indicatorScale = 5.0
	tokenScale     = 5.0

	tokenHit     = 1.0
	substringHit = 0.5

	neutralSubjectivity = 0.5
)

type Score struct {
	Polarity     float64  `json:"polarity"`
	Subjectivity float64  `json:"subjectivity"`
	Tone         string   `json:"emotionalTone"`
	Confidence   float64  `json:"confidence"`
	Indicators   []string `json:"emotionalIndicators"`
}

type Analyzer struct {
	tables     knowledge.Sentiment
	normalizer *textproc.Normalizer
	subjective map[string]struct{}
	objective  map[string]struct{}
}

func New(tables knowledge.Sentiment, normalizer *textproc.Normalizer) *Analyzer {
	return &Analyzer{
		tables:     tables,
		normalizer: normalizer,
		subjective: toSet(tables.Subjectivity.Subjective),
		objective:  toSet(tables.Subjectivity.Objective),
	}
}

// Analyze normalizes text and scores it.
func (a *Analyzer) Analyze(text string) Score {
	return a.AnalyzeProcessed(a.normalizer.Process(text))
}

// AnalyzeProcessed scores already normalized text. Substring checks run
// against the lowercased original.
func (a *Analyzer) AnalyzeProcessed(p textproc.ProcessedText) Score {
	if p.IsEmpty() {
		return Score{Tone: ToneNeutral, Indicators: []string{}}
	}

	lower := strings.ToLower(p.Original)

	polarity, indicators := a.polarity(p, lower)
	tone, toneConfidence := a.tone(p, lower)

	confidence := (math.Min(1, float64(len(indicators))/indicatorScale) +
		toneConfidence +
		math.Min(1, float64(len(p.NormalizedTokens))/tokenScale)) / 3

	return Score{
		Polarity:     polarity,
		Subjectivity: a.subjectivity(p),
		Tone:         tone,
		Confidence:   round3(confidence),
		Indicators:   indicators,
	}
}

func (a *Analyzer) polarity(p textproc.ProcessedText, lower string) (float64, []string) {
	var positive, negative float64
	indicators := []string{}
	regions := a.negatedRegions(lower)
	w := a.tables.Weights

	score := func(lex knowledge.Lexicon, same, opposite *float64) {
		for _, group := range []struct {
			words  []string
			weight float64
		}{
			{lex.General, w.General},
			{lex.Agricultural, w.Agricultural},
		} {
			for _, word := range group.words {
				if !p.HasToken(word) {
					continue
				}
				if isNegated(word, lower, regions) {
					*opposite += w.Negated
					indicators = append(indicators, "negated_"+word)
					continue
				}
				*same += group.weight
				indicators = append(indicators, word)
			}
		}
	}
	score(a.tables.Positive, &positive, &negative)
	score(a.tables.Negative, &negative, &positive)

	m := a.intensity(lower)
	positive *= m
	negative *= m

	total := positive + negative
	if total == 0 {
		return 0, indicators
	}
	return clamp((positive-negative)/total, -1, 1), indicators
}

// negatedRegions marks each negation word plus the configured number of
// words after it.
func (a *Analyzer) negatedRegions(lower string) []textproc.Span {
	var regions []textproc.Span
	for _, neg := range a.tables.Negation.Words {
		for _, sp := range textproc.FindTerm(lower, neg, textproc.SuffixNone) {
			after := strings.Fields(lower[sp.End:])
			if len(after) > a.tables.Negation.Window {
				after = after[:a.tables.Negation.Window]
			}
			regions = append(regions, textproc.Span{
				Start: sp.Start,
				End:   sp.End + len(strings.Join(after, " ")),
			})
		}
	}
	return regions
}

func isNegated(word, lower string, regions []textproc.Span) bool {
	for _, occ := range textproc.FindTerm(lower, word, textproc.SuffixNone) {
		for _, r := range regions {
			if r.Start <= occ.Start && occ.Start <= r.End {
				return true
			}
		}
	}
	return false
}

func (a *Analyzer) intensity(lower string) float64 {
	m := 1.0
	for _, in := range a.tables.Intensifiers {
		for _, word := range in.Words {
			if strings.Contains(lower, word) {
				m *= in.Multiplier
			}
		}
	}
	return m
}

func (a *Analyzer) subjectivity(p textproc.ProcessedText) float64 {
	var subjective, objective float64
	for _, t := range p.NormalizedTokens {
		if _, ok := a.subjective[t]; ok {
			subjective++
		} else if _, ok := a.objective[t]; ok {
			objective++
		}
	}
	for _, tone := range a.tables.Tones {
		for _, word := range tone.Words {
			if p.HasToken(word) {
				subjective += a.tables.Subjectivity.ToneWeight
			}
		}
	}

	total := subjective + objective
	if total == 0 {
		return neutralSubjectivity
	}
	return math.Min(1, subjective/total)
}

func (a *Analyzer) tone(p textproc.ProcessedText, lower string) (string, float64) {
	best, bestScore := ToneNeutral, 0.0
	for _, tone := range a.tables.Tones {
		score := 0.0
		for _, word := range tone.Words {
			if p.HasToken(word) {
				score += tokenHit
			}
			if strings.Contains(lower, word) {
				score += substringHit
			}
		}
		if score > bestScore {
			best, bestScore = tone.Name, score
		}
	}
	if bestScore == 0 {
		return ToneNeutral, 0
	}
	return best, math.Min(1, bestScore/toneScale)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
