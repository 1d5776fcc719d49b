// Package textproc cleans and normalizes free-text farmer messages before
// intent classification, entity extraction and sentiment scoring.
package textproc

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"agribot-workers/internal/knowledge"
)

const (
	LanguageEnglish = "english"
	LanguageFrench  = "french"
	LanguageUnknown = "unknown"

	StepEmptyInput    = "empty_input"
	StepBasicCleaning = "basic_cleaning"
	StepSpelling      = "spelling_correction"
	StepAbbreviations = "abbreviation_expansion"
	StepTokenization  = "tokenization"
	StepNormalization = "normalization"
)

// punctuation mirrors the ASCII punctuation set trimmed around words before
// spelling lookup.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	specialCharsRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,?!\-']`)
	repeatedDotRe  = regexp.MustCompile(`\.{2,}`)
	repeatedQRe    = regexp.MustCompile(`\?{2,}`)
	repeatedExclRe = regexp.MustCompile(`!{2,}`)
	tokenRe        = regexp.MustCompile(`[\p{L}\p{N}_]+|[.!?]`)
)

// ProcessedText is the immutable output of one normalization pass.
type ProcessedText struct {
	Original           string   `json:"original"`
	Cleaned            string   `json:"cleaned"`
	Tokens             []string `json:"tokens"`
	NormalizedTokens   []string `json:"normalizedTokens"`
	Language           string   `json:"language"`
	PreprocessingSteps []string `json:"preprocessingSteps"`
}

// IsEmpty reports whether the input carried no text.
func (p ProcessedText) IsEmpty() bool {
	return len(p.PreprocessingSteps) == 1 && p.PreprocessingSteps[0] == StepEmptyInput
}

// HasToken reports whether word appears among the normalized or raw tokens.
func (p ProcessedText) HasToken(word string) bool {
	for _, t := range p.NormalizedTokens {
		if t == word {
			return true
		}
	}
	for _, t := range p.Tokens {
		if t == word {
			return true
		}
	}
	return false
}

type Normalizer struct {
	tables    knowledge.Normalizer
	french    map[string]struct{}
	english   map[string]struct{}
	stopwords map[string]map[string]struct{}
}

func New(tables knowledge.Normalizer) *Normalizer {
	n := &Normalizer{
		tables:    tables,
		french:    toSet(tables.LanguageMarkers.French),
		english:   toSet(tables.LanguageMarkers.English),
		stopwords: make(map[string]map[string]struct{}, len(tables.Stopwords)),
	}
	for lang, words := range tables.Stopwords {
		n.stopwords[lang] = toSet(words)
	}
	return n
}

// Process runs the full normalization pipeline over text.
func (n *Normalizer) Process(text string) ProcessedText {
	if strings.TrimSpace(text) == "" {
		return ProcessedText{
			Original:           text,
			Tokens:             []string{},
			NormalizedTokens:   []string{},
			Language:           LanguageUnknown,
			PreprocessingSteps: []string{StepEmptyInput},
		}
	}

	steps := make([]string, 0, 6)

	cleaned := n.basicClean(strings.TrimSpace(text))
	steps = append(steps, StepBasicCleaning)

	language := n.detectLanguage(cleaned)
	steps = append(steps, fmt.Sprintf("language_detection_%s", language))

	cleaned = n.correctSpelling(cleaned)
	steps = append(steps, StepSpelling)

	cleaned = n.expandAbbreviations(cleaned)
	steps = append(steps, StepAbbreviations)

	tokens := tokenize(cleaned)
	steps = append(steps, StepTokenization)

	normalized := n.normalizeTokens(tokens, language)
	steps = append(steps, StepNormalization)

	return ProcessedText{
		Original:           text,
		Cleaned:            cleaned,
		Tokens:             tokens,
		NormalizedTokens:   normalized,
		Language:           language,
		PreprocessingSteps: steps,
	}
}

func (n *Normalizer) basicClean(text string) string {
	text = strings.ToLower(text)
	text = specialCharsRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = repeatedDotRe.ReplaceAllString(text, ".")
	text = repeatedQRe.ReplaceAllString(text, "?")
	text = repeatedExclRe.ReplaceAllString(text, "!")

	for _, c := range n.tables.Contractions {
		text = strings.ReplaceAll(text, c.From, c.To)
	}

	// expansions such as " are" can double a space
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (n *Normalizer) detectLanguage(text string) string {
	words := strings.Fields(text)
	if len(words) < 2 {
		return LanguageUnknown
	}

	french, english := 0, 0
	for _, w := range words {
		if _, ok := n.french[w]; ok {
			french++
		} else if _, ok := n.english[w]; ok {
			english++
		}
	}

	if french > english {
		return LanguageFrench
	}
	return LanguageEnglish
}

func (n *Normalizer) correctSpelling(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		bare := strings.Trim(word, punctuation)
		corrected, ok := n.tables.Spelling[bare]
		if !ok {
			continue
		}
		if word != bare {
			corrected += keepPunctuation(word)
		}
		words[i] = corrected
	}
	return strings.Join(words, " ")
}

func keepPunctuation(word string) string {
	var b strings.Builder
	for _, r := range word {
		if strings.ContainsRune(punctuation, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (n *Normalizer) expandAbbreviations(text string) string {
	for _, a := range n.tables.Abbreviations {
		text = ReplaceTerm(text, strings.ToLower(a.Short), a.Long)
	}
	return text
}

func tokenize(text string) []string {
	raw := tokenRe.FindAllString(text, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if utf8.RuneCountInString(t) > 1 || t == "a" || t == "i" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func (n *Normalizer) normalizeTokens(tokens []string, language string) []string {
	stop, ok := n.stopwords[language]
	if !ok {
		stop = n.stopwords[LanguageEnglish]
	}

	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "." || t == "!" || t == "?" {
			continue
		}
		lower := strings.ToLower(t)
		if _, isStop := stop[lower]; isStop {
			continue
		}
		out = append(out, n.Stem(lower))
	}
	return out
}

// Stem strips the first configured suffix that leaves a long enough root.
func (n *Normalizer) Stem(word string) string {
	s := n.tables.Stemming
	if utf8.RuneCountInString(word) < s.MinLength {
		return word
	}
	for _, suffix := range s.Suffixes {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		stem := word[:len(word)-len(suffix)]
		if utf8.RuneCountInString(stem) >= s.MinStem {
			return stem
		}
	}
	return word
}

// IsStopword reports whether word is a stop word in any configured language.
func (n *Normalizer) IsStopword(word string) bool {
	for _, set := range n.stopwords {
		if _, ok := set[word]; ok {
			return true
		}
	}
	return false
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
