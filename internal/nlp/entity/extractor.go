// Package entity finds crops, regions, diseases, pests, quantities and time
// references in a farmer's message.
package entity

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"
)

// Result keys. All six are present in every Result.
const (
	Crops          = "crops"
	Regions        = "regions"
	Diseases       = "diseases"
	Pests          = "pests"
	Quantities     = "quantities"
	TimeReferences = "time_references"
)

// Match types.
const (
	TypeCrop          = "crop"
	TypeRegion        = "region"
	TypeDisease       = "disease"
	TypePest          = "pest"
	TypeQuantity      = "quantity"
	TypeTimeReference = "time_reference"
)

const (
	multiWordCropConfidence = 0.9
	cropConfidence          = 0.8
	regionConfidence        = 0.9
	weakConfidence          = 0.7
	corroboratedConfidence  = 0.9
	quantityConfidence      = 0.95
	timeConfidence          = 0.8

	contextWindow = 30
)

// Keys lists the result keys in extraction order.
var Keys = []string{Crops, Regions, Diseases, Pests, Quantities, TimeReferences}

// Match is one entity occurrence. Start and End are byte offsets into the
// lowercased input.
type Match struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Normalized string  `json:"normalized"`
	Context    string  `json:"context"`
}

type Result struct {
	Entities   map[string][]Match `json:"entities"`
	Count      int                `json:"count"`
	Confidence float64            `json:"confidence"`
	Notes      []string           `json:"notes"`
}

// Normalized returns the distinct normalized forms found under key, in order
// of first appearance.
func (r Result) Normalized(key string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range r.Entities[key] {
		if _, ok := seen[m.Normalized]; ok {
			continue
		}
		seen[m.Normalized] = struct{}{}
		out = append(out, m.Normalized)
	}
	return out
}

type surface struct {
	form      string
	canonical string
}

type Extractor struct {
	normalizer *textproc.Normalizer
	tables     knowledge.Entities

	multiWordCrops []surface
	crops          []surface
	regions        []surface
	quantities     []*regexp.Regexp
	times          []*regexp.Regexp
}

func New(tables knowledge.Entities, normalizer *textproc.Normalizer) (*Extractor, error) {
	e := &Extractor{
		normalizer: normalizer,
		tables:     tables,
	}

	for _, crop := range tables.Crops {
		for _, syn := range crop.Synonyms {
			s := surface{form: strings.ToLower(syn), canonical: crop.Canonical}
			if len(strings.Fields(s.form)) > 1 {
				e.multiWordCrops = append(e.multiWordCrops, s)
			} else {
				e.crops = append(e.crops, s)
			}
		}
	}
	sortLongestFirst(e.multiWordCrops)

	for _, region := range tables.Regions {
		for _, syn := range region.Synonyms {
			e.regions = append(e.regions, surface{form: strings.ToLower(syn), canonical: region.Canonical})
		}
	}
	sortLongestFirst(e.regions)

	var err error
	if e.quantities, err = compileAll(tables.Quantities); err != nil {
		return nil, err
	}
	if e.times, err = compileAll(tables.TimeReferences); err != nil {
		return nil, err
	}
	return e, nil
}

// Extract normalizes text and extracts entities from it.
func (e *Extractor) Extract(text string) Result {
	return e.ExtractProcessed(e.normalizer.Process(text))
}

// ExtractProcessed extracts entities from p.Original; p supplies the
// detected language for the notes.
func (e *Extractor) ExtractProcessed(p textproc.ProcessedText) Result {
	entities := make(map[string][]Match, len(Keys))
	for _, k := range Keys {
		entities[k] = []Match{}
	}

	if p.IsEmpty() {
		return Result{Entities: entities, Notes: []string{"Empty input"}}
	}

	src := newSource(p.Original)
	entities[Crops] = e.extractCrops(src)
	entities[Regions] = e.extractRegions(src)
	entities[Diseases] = e.extractGrouped(src, e.tables.Diseases, TypeDisease, textproc.SuffixWord)
	entities[Pests] = e.extractGrouped(src, e.tables.Pests, TypePest, textproc.SuffixPlural)
	entities[Quantities] = e.extractQuantities(src)
	entities[TimeReferences] = e.extractTimes(src)

	count, total := 0, 0.0
	for _, k := range Keys {
		for _, m := range entities[k] {
			count++
			total += m.Confidence
		}
	}

	r := Result{Entities: entities, Count: count}
	if count == 0 {
		r.Notes = append(r.Notes, "No entities detected")
	} else {
		r.Confidence = round3(total / float64(count))
		r.Notes = append(r.Notes, fmt.Sprintf("Extracted %d entities", count))
	}
	if p.Language != textproc.LanguageEnglish {
		r.Notes = append(r.Notes, fmt.Sprintf("Text detected as %s", p.Language))
	}
	return r
}

func (e *Extractor) extractCrops(src source) []Match {
	matches := []Match{}
	var taken []textproc.Span

	for _, c := range e.multiWordCrops {
		for _, sp := range textproc.FindTerm(src.lower, c.form, textproc.SuffixNone) {
			matches = append(matches, src.match(sp, TypeCrop, multiWordCropConfidence, c.canonical))
			taken = append(taken, sp)
		}
	}

	for _, c := range e.crops {
		for _, sp := range textproc.FindTerm(src.lower, c.form, textproc.SuffixNone) {
			if sp.Overlaps(taken) {
				continue
			}
			matches = append(matches, src.match(sp, TypeCrop, cropConfidence, c.canonical))
		}
	}
	return matches
}

// extractRegions reserves spans longest-first so "north west" is not also
// reported as "north" and "west".
func (e *Extractor) extractRegions(src source) []Match {
	matches := []Match{}
	var taken []textproc.Span

	for _, r := range e.regions {
		for _, sp := range textproc.FindTerm(src.lower, r.form, textproc.SuffixNone) {
			if sp.Overlaps(taken) {
				continue
			}
			matches = append(matches, src.match(sp, TypeRegion, regionConfidence, r.canonical))
			taken = append(taken, sp)
		}
	}
	return matches
}

func (e *Extractor) extractGrouped(src source, terms knowledge.GroupedTerms, kind string, suffix textproc.Suffix) []Match {
	matches := []Match{}
	for _, g := range terms.Groups {
		for _, term := range g.Terms {
			term = strings.ToLower(term)
			for _, sp := range textproc.FindTerm(src.lower, term, suffix) {
				m := src.match(sp, kind, weakConfidence, term)
				if containsAny(strings.ToLower(m.Context), terms.CorroboratingWords) {
					m.Confidence = corroboratedConfidence
				}
				matches = append(matches, m)
			}
		}
	}
	return matches
}

func (e *Extractor) extractQuantities(src source) []Match {
	matches := []Match{}
	for _, re := range e.quantities {
		for _, loc := range findQuantities(re, src.lower) {
			value := src.lower[loc[2]:loc[3]]
			unit := src.lower[loc[4]:loc[5]]
			if norm, ok := e.tables.Units[unit]; ok {
				unit = norm
			}
			sp := textproc.Span{Start: loc[0], End: loc[1]}
			matches = append(matches, src.match(sp, TypeQuantity, quantityConfidence, value+" "+unit))
		}
	}
	return matches
}

// findQuantities returns submatch indices for value/unit matches whose unit
// ends on a word boundary. Units ending in punctuation such as "%" need no
// boundary.
func findQuantities(re *regexp.Regexp, text string) [][]int {
	var out [][]int
	pos := 0
	for pos <= len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}

		end := loc[1]
		last, _ := utf8.DecodeLastRuneInString(text[:end])
		if textproc.IsWordRune(last) && !textproc.IsBoundary(text, end) {
			pos = loc[0] + 1
			continue
		}

		out = append(out, loc)
		pos = end
		if end == loc[0] {
			pos++
		}
	}
	return out
}

func (e *Extractor) extractTimes(src source) []Match {
	matches := []Match{}
	for _, re := range e.times {
		for _, loc := range re.FindAllStringIndex(src.lower, -1) {
			sp := textproc.Span{Start: loc[0], End: loc[1]}
			norm := strings.TrimSpace(src.lower[loc[0]:loc[1]])
			matches = append(matches, src.match(sp, TypeTimeReference, timeConfidence, norm))
		}
	}
	return matches
}

// source pairs the input with its lowercased form. Context windows come from
// the input unless lowercasing changed its byte length.
type source struct {
	lower   string
	context string
}

func newSource(text string) source {
	lower := strings.ToLower(text)
	ctx := text
	if len(ctx) != len(lower) {
		ctx = lower
	}
	return source{lower: lower, context: ctx}
}

func (s source) match(sp textproc.Span, kind string, confidence float64, normalized string) Match {
	return Match{
		Text:       s.lower[sp.Start:sp.End],
		Type:       kind,
		Start:      sp.Start,
		End:        sp.End,
		Confidence: confidence,
		Normalized: normalized,
		Context:    window(s.context, sp.Start, sp.End, contextWindow),
	}
}

// window returns up to n runes either side of [start, end), trimmed.
func window(text string, start, end, n int) string {
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	for i := 0; i < n && end < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return strings.TrimSpace(text[start:end])
}

func sortLongestFirst(s []surface) {
	sort.SliceStable(s, func(i, j int) bool {
		return len(s[i].form) > len(s[j].form)
	})
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knowledge.ErrInvalidKnowledge, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
