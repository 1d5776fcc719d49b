package entity

import (
	"testing"

	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp/textproc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	tables := knowledge.Default()
	e, err := New(tables.Entities, textproc.New(tables.Normalizer))
	require.NoError(t, err)
	return e
}

func TestExtract_DiseaseReport(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("I have maze disease in Centre region, yellow spots")

	require.Len(t, r.Entities[Crops], 1)
	assert.Equal(t, Match{
		Text:       "maze",
		Type:       TypeCrop,
		Start:      7,
		End:        11,
		Confidence: 0.8,
		Normalized: "maize",
		Context:    "I have maze disease in Centre region, yel",
	}, r.Entities[Crops][0])

	require.Len(t, r.Entities[Regions], 1)
	assert.Equal(t, "centre", r.Entities[Regions][0].Normalized)
	assert.Equal(t, 23, r.Entities[Regions][0].Start)

	require.Len(t, r.Entities[Diseases], 1)
	assert.Equal(t, "spots", r.Entities[Diseases][0].Text)
	assert.Equal(t, "spot", r.Entities[Diseases][0].Normalized)
	assert.Equal(t, 0.9, r.Entities[Diseases][0].Confidence)

	assert.Equal(t, 3, r.Count)
	assert.InDelta(t, 0.867, r.Confidence, 1e-9)
	assert.Equal(t, []string{"Extracted 3 entities"}, r.Notes)
}

func TestExtract_AllKeysPresent(t *testing.T) {
	e := newTestExtractor(t)

	for _, in := range []string{"", "   ", "nothing here at all"} {
		r := e.Extract(in)
		assert.Len(t, r.Entities, len(Keys))
		for _, k := range Keys {
			assert.NotNil(t, r.Entities[k], k)
			assert.Empty(t, r.Entities[k], k)
		}
		assert.Equal(t, 0, r.Count)
		assert.Equal(t, 0.0, r.Confidence)
	}

	assert.Equal(t, []string{"Empty input"}, e.Extract("").Notes)
	assert.Equal(t, []string{"No entities detected"}, e.Extract("nothing here at all").Notes)
}

func TestExtract_Quantities(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "units normalized",
			text: "Apply 50 kg per ha, 2.5 hectares and 50% of 3 bags",
			want: []string{"50 kilograms", "3 bags", "2.5 hectares", "50 percent"},
		},
		{
			name: "unit must end a word",
			text: "10 kgx and 5 mangoes",
			want: nil,
		},
		{
			name: "no space before unit",
			text: "harvested 12kg",
			want: []string{"12 kilograms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Extract(tt.text)
			assert.Equal(t, tt.want, r.Normalized(Quantities))
			for _, m := range r.Entities[Quantities] {
				assert.Equal(t, 0.95, m.Confidence)
				assert.Equal(t, TypeQuantity, m.Type)
			}
		})
	}
}

func TestExtract_Crops(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("yellow yam and sweet corn")
	assert.Equal(t, []string{"maize", "yam"}, r.Normalized(Crops))
	require.Len(t, r.Entities[Crops], 2)
	for _, m := range r.Entities[Crops] {
		assert.Equal(t, 0.9, m.Confidence)
	}

	r = e.Extract("10 kgx and 5 mangoes")
	assert.Equal(t, []string{"mango"}, r.Normalized(Crops))
}

func TestExtract_RegionsReserveSpans(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("I farm in north west near Bamenda and south-west")
	assert.Len(t, r.Entities[Regions], 3)
	assert.Equal(t, []string{"northwest", "southwest"}, r.Normalized(Regions))
}

func TestExtract_Pests(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("Armyworms attack my maize, holes everywhere")
	require.Len(t, r.Entities[Pests], 1)
	assert.Equal(t, "armyworms", r.Entities[Pests][0].Text)
	assert.Equal(t, "armyworm", r.Entities[Pests][0].Normalized)
	assert.Equal(t, 0.9, r.Entities[Pests][0].Confidence)
	assert.Equal(t, []string{"maize"}, r.Normalized(Crops))
}

func TestExtract_TimeReferences(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("I will plant next month, maybe in 2 weeks or in January")
	assert.Equal(t, []string{"next month", "january", "in 2 weeks"}, r.Normalized(TimeReferences))
	assert.Equal(t, []string{"2 weeks"}, r.Normalized(Quantities))
	assert.Equal(t, 4, r.Count)
}

func TestExtract_LanguageNotes(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("je cultive le cacao avec mon frère")
	assert.Equal(t, []string{"cocoa"}, r.Normalized(Crops))
	assert.Equal(t, []string{"Extracted 1 entities", "Text detected as french"}, r.Notes)

	r = e.Extract("maize")
	assert.Equal(t, []string{"Extracted 1 entities", "Text detected as unknown"}, r.Notes)
}

func TestWindow(t *testing.T) {
	assert.Equal(t, "ab cd", window("  ab cd  ", 3, 5, 2))
	assert.Equal(t, "éxé", window("ééxéé", 4, 5, 1))
	assert.Equal(t, "x", window("x", 0, 1, 30))
}

func TestSummarize(t *testing.T) {
	e := newTestExtractor(t)

	s := Summarize(e.Extract("I have maze disease in Centre region, yellow spots"))
	assert.Equal(t, 3, s.Total)
	assert.InDelta(t, 0.867, s.Confidence, 1e-9)
	assert.Len(t, s.Breakdown, 3)
	assert.Equal(t, TypeSummary{Count: 1, Unique: []string{"maize"}, AvgConfidence: 0.8}, s.Breakdown[Crops])
	assert.Equal(t, TypeSummary{Count: 1, Unique: []string{"spot"}, AvgConfidence: 0.9}, s.Breakdown[Diseases])

	empty := Summarize(e.Extract(""))
	assert.Empty(t, empty.Breakdown)
}

func TestNew_InvalidPattern(t *testing.T) {
	tables := knowledge.Default().Entities
	tables.TimeReferences = []string{"(broken"}

	_, err := New(tables, textproc.New(knowledge.Default().Normalizer))
	assert.ErrorIs(t, err, knowledge.ErrInvalidKnowledge)
}
