// Package knowledge holds the static lexicons and pattern tables used by the
// NLP pipeline and the conversation tracker. Tables ship embedded as YAML and
// can be replaced from a directory with the same file names.
package knowledge

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sync"

	"agribot-workers/internal/common/validation"

	"gopkg.in/yaml.v3"
)

var ErrInvalidKnowledge = errors.New("INVALID_KNOWLEDGE")

//go:embed data/*.yaml
var dataFS embed.FS

//go:embed schema/*.json
var schemaFS embed.FS

const (
	normalizerFile   = "normalizer.yaml"
	intentsFile      = "intents.yaml"
	entitiesFile     = "entities.yaml"
	sentimentFile    = "sentiment.yaml"
	conversationFile = "conversation.yaml"
)

// Tables is the full knowledge base.
type Tables struct {
	Normalizer   Normalizer
	Intents      IntentRules
	Entities     Entities
	Sentiment    Sentiment
	Conversation Conversation
}

type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Abbreviation struct {
	Short string `yaml:"short"`
	Long  string `yaml:"long"`
}

type Normalizer struct {
	Contractions    []Replacement       `yaml:"contractions"`
	LanguageMarkers LanguageMarkers     `yaml:"language_markers"`
	Spelling        map[string]string   `yaml:"spelling"`
	Abbreviations   []Abbreviation      `yaml:"abbreviations"`
	Stopwords       map[string][]string `yaml:"stopwords"`
	Stemming        Stemming            `yaml:"stemming"`
	Agricultural    Agricultural        `yaml:"agricultural"`
}

type LanguageMarkers struct {
	French  []string `yaml:"french"`
	English []string `yaml:"english"`
}

type Stemming struct {
	MinLength int      `yaml:"min_length"`
	MinStem   int      `yaml:"min_stem"`
	Suffixes  []string `yaml:"suffixes"`
}

type Agricultural struct {
	Threshold  float64         `yaml:"threshold"`
	Indicators []WeightedWords `yaml:"indicators"`
}

type WeightedWords struct {
	Category string   `yaml:"category"`
	Weight   float64  `yaml:"weight"`
	Words    []string `yaml:"words"`
}

type Intent struct {
	Name       string   `yaml:"name"`
	Weight     float64  `yaml:"weight"`
	Keywords   []string `yaml:"keywords"`
	Patterns   []string `yaml:"patterns"`
	TokenStems []string `yaml:"token_stems"`
}

type IntentRules struct {
	Intents          []Intent            `yaml:"intents"`
	Continuations    map[string][]string `yaml:"continuations"`
	CropBoostIntents []string            `yaml:"crop_boost_intents"`
	SeasonBoosts     map[string][]string `yaml:"season_boosts"`
	Boosts           Boosts              `yaml:"boosts"`
	Clues            Clues               `yaml:"clues"`
	Thresholds       Thresholds          `yaml:"thresholds"`
}

type Boosts struct {
	Continuation float64 `yaml:"continuation"`
	Crops        float64 `yaml:"crops"`
	Season       float64 `yaml:"season"`
	Token        float64 `yaml:"token"`
	TokenCap     float64 `yaml:"token_cap"`
}

type Clues struct {
	Crops          []string `yaml:"crops"`
	Problems       []string `yaml:"problems"`
	ProblemIntents []string `yaml:"problem_intents"`
	Timing         []string `yaml:"timing"`
}

type Thresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// Lexeme maps the surface forms in Synonyms onto Canonical.
type Lexeme struct {
	Canonical string   `yaml:"canonical"`
	Category  string   `yaml:"category"`
	Synonyms  []string `yaml:"synonyms"`
}

type TermGroup struct {
	Category string   `yaml:"category"`
	Terms    []string `yaml:"terms"`
}

type GroupedTerms struct {
	CorroboratingWords []string    `yaml:"corroborating_words"`
	Groups             []TermGroup `yaml:"groups"`
}

type Entities struct {
	Crops          []Lexeme          `yaml:"crops"`
	Regions        []Lexeme          `yaml:"regions"`
	Diseases       GroupedTerms      `yaml:"diseases"`
	Pests          GroupedTerms      `yaml:"pests"`
	Quantities     []string          `yaml:"quantities"`
	Units          map[string]string `yaml:"units"`
	TimeReferences []string          `yaml:"time_references"`
}

type Lexicon struct {
	General      []string `yaml:"general"`
	Agricultural []string `yaml:"agricultural"`
}

type SentimentWeights struct {
	General      float64 `yaml:"general"`
	Agricultural float64 `yaml:"agricultural"`
	Negated      float64 `yaml:"negated"`
}

type Negation struct {
	Window int      `yaml:"window"`
	Words  []string `yaml:"words"`
}

type Intensifier struct {
	Level      string   `yaml:"level"`
	Multiplier float64  `yaml:"multiplier"`
	Words      []string `yaml:"words"`
}

type Subjectivity struct {
	Subjective []string `yaml:"subjective"`
	Objective  []string `yaml:"objective"`
	ToneWeight float64  `yaml:"tone_weight"`
}

type Tone struct {
	Name  string   `yaml:"name"`
	Words []string `yaml:"words"`
}

// Tier is one rung of an ordered keyword ladder; the first tier with a hit wins.
type Tier struct {
	Level string   `yaml:"level"`
	Words []string `yaml:"words"`
}

type Frustration struct {
	Words             []string `yaml:"words"`
	PersistenceMarker string   `yaml:"persistence_marker"`
	PersistenceWords  []string `yaml:"persistence_words"`
}

type Sentiment struct {
	Positive     Lexicon          `yaml:"positive"`
	Negative     Lexicon          `yaml:"negative"`
	Weights      SentimentWeights `yaml:"weights"`
	Negation     Negation         `yaml:"negation"`
	Intensifiers []Intensifier    `yaml:"intensifiers"`
	Subjectivity Subjectivity     `yaml:"subjectivity"`
	Tones        []Tone           `yaml:"tones"`
	Urgency      []Tier           `yaml:"urgency"`
	Frustration  Frustration      `yaml:"frustration"`
	Concern      []Tier           `yaml:"concern"`
	HelpSeeking  []Tier           `yaml:"help_seeking"`
}

type Conversation struct {
	Transitions     map[string][]string `yaml:"transitions"`
	CropTopics      []string            `yaml:"crop_topics"`
	DefaultTopics   []string            `yaml:"default_topics"`
	SuggestionLimit int                 `yaml:"suggestion_limit"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the embedded tables. They are parsed once per process.
func Default() *Tables {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(dataFS, "data")
		if err != nil {
			defaultErr = err
			return
		}
		defaultTables, defaultErr = LoadFS(sub)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded knowledge tables: %v", defaultErr))
	}
	return defaultTables
}

// Load returns the tables from dir, or the embedded tables when dir is empty.
func Load(dir string) (*Tables, error) {
	if dir == "" {
		return Default(), nil
	}
	return LoadDir(dir)
}

// LoadDir reads the five table files from dir.
func LoadDir(dir string) (*Tables, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKnowledge, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidKnowledge, dir)
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads, schema-validates and decodes every table file in fsys.
func LoadFS(fsys fs.FS) (*Tables, error) {
	t := &Tables{}
	files := []struct {
		name string
		out  interface{}
	}{
		{normalizerFile, &t.Normalizer},
		{intentsFile, &t.Intents},
		{entitiesFile, &t.Entities},
		{sentimentFile, &t.Sentiment},
		{conversationFile, &t.Conversation},
	}

	for _, f := range files {
		if err := decodeFile(fsys, f.name, f.out); err != nil {
			return nil, err
		}
	}

	if err := t.compileCheck(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeFile(fsys fs.FS, name string, out interface{}) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrInvalidKnowledge, name, err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidKnowledge, name, err)
	}

	schema, err := loadSchema(name)
	if err != nil {
		return err
	}
	result, err := validation.ValidateDocument(schema, doc)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidKnowledge, name, err)
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s: %v", ErrInvalidKnowledge, name, result.GetErrorMessages())
	}

	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidKnowledge, name, err)
	}
	return nil
}

func loadSchema(dataFile string) (map[string]interface{}, error) {
	name := "schema/" + dataFile[:len(dataFile)-len(path.Ext(dataFile))] + ".json"
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: no schema for %s", ErrInvalidKnowledge, dataFile)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("%w: schema %s: %v", ErrInvalidKnowledge, name, err)
	}
	return schema, nil
}

// compileCheck rejects pattern tables that would fail later at regexp.MustCompile.
func (t *Tables) compileCheck() error {
	var patterns []string
	for _, in := range t.Intents.Intents {
		patterns = append(patterns, in.Patterns...)
	}
	patterns = append(patterns, t.Entities.Quantities...)
	patterns = append(patterns, t.Entities.TimeReferences...)

	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidKnowledge, p, err)
		}
	}

	for i, q := range t.Entities.Quantities {
		if regexp.MustCompile(q).NumSubexp() != 2 {
			return fmt.Errorf("%w: quantity pattern %d must capture value and unit", ErrInvalidKnowledge, i)
		}
	}
	return nil
}
