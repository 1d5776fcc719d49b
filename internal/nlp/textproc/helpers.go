package textproc

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Statistics summarises one normalization pass.
type Statistics struct {
	OriginalLength        int      `json:"originalLength"`
	CleanedLength         int      `json:"cleanedLength"`
	OriginalWords         int      `json:"originalWords"`
	TokensCount           int      `json:"tokensCount"`
	NormalizedTokensCount int      `json:"normalizedTokensCount"`
	CompressionRatio      float64  `json:"compressionRatio"`
	Language              string   `json:"language"`
	ProcessingSteps       []string `json:"processingSteps"`
}

// Keywords returns the normalized tokens of at least minLength runes that are
// not stop words in any language, first occurrence order.
func (n *Normalizer) Keywords(p ProcessedText, minLength int) []string {
	seen := make(map[string]struct{})
	keywords := []string{}
	for _, t := range p.NormalizedTokens {
		if utf8.RuneCountInString(t) < minLength || n.IsStopword(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		keywords = append(keywords, t)
	}
	return keywords
}

func Stats(p ProcessedText) Statistics {
	words := len(strings.Fields(p.Original))
	ratio := 0.0
	if words > 0 {
		ratio = math.Round(float64(len(p.NormalizedTokens))/float64(words)*100) / 100
	}
	return Statistics{
		OriginalLength:        utf8.RuneCountInString(p.Original),
		CleanedLength:         utf8.RuneCountInString(p.Cleaned),
		OriginalWords:         words,
		TokensCount:           len(p.Tokens),
		NormalizedTokensCount: len(p.NormalizedTokens),
		CompressionRatio:      ratio,
		Language:              p.Language,
		ProcessingSteps:       p.PreprocessingSteps,
	}
}

// IsAgricultural scores the normalized tokens against the weighted indicator
// lists and compares the total with the configured threshold.
func (n *Normalizer) IsAgricultural(p ProcessedText) bool {
	tokens := toSet(p.NormalizedTokens)
	score := 0.0
	for _, group := range n.tables.Agricultural.Indicators {
		for _, w := range group.Words {
			_, plain := tokens[w]
			_, stemmed := tokens[n.Stem(w)]
			if plain || stemmed {
				score += group.Weight
			}
		}
	}
	return score >= n.tables.Agricultural.Threshold
}

// Similarity is the Jaccard index of the two texts' normalized token sets.
func (n *Normalizer) Similarity(a, b string) float64 {
	setA := toSet(n.Process(a).NormalizedTokens)
	setB := toSet(n.Process(b).NormalizedTokens)

	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(setA)+len(setB)-shared)
}

func NGrams(tokens []string, size int) []string {
	if size <= 0 || len(tokens) < size {
		return []string{}
	}
	grams := make([]string, 0, len(tokens)-size+1)
	for i := 0; i+size <= len(tokens); i++ {
		grams = append(grams, strings.Join(tokens[i:i+size], " "))
	}
	return grams
}

// CleanForDisplay collapses whitespace, capitalises the first letter and
// makes sure the text ends with sentence punctuation.
func CleanForDisplay(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(r)) + text[size:]

	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "."
	}
	return text
}
