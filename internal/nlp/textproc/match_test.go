package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindTerm(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		term   string
		suffix Suffix
		want   []Span
	}{
		{"accented term", "yaoundé is far", "yaoundé", SuffixNone, []Span{{0, 8}}},
		{"accented prefix blocks match", "éyaoundé", "yaoundé", SuffixNone, nil},
		{"inside word", "carrot", "rot", SuffixNone, nil},
		{"hyphen is a boundary", "north-west", "north", SuffixNone, []Span{{0, 5}}},
		{"multi word", "grow sweet corn here", "sweet corn", SuffixNone, []Span{{5, 15}}},
		{"plural accepted", "pests and pest", "pest", SuffixPlural, []Span{{0, 5}, {10, 14}}},
		{"plural rejects other letters", "pestx", "pest", SuffixPlural, nil},
		{"word suffix", "rotting rot", "rot", SuffixWord, []Span{{0, 7}, {8, 11}}},
		{"word suffix needs start boundary", "carrots", "rot", SuffixWord, nil},
		{"retries after rejected candidate", "maizes maize", "maize", SuffixNone, []Span{{7, 12}}},
		{"empty term", "anything", "", SuffixNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindTerm(tt.text, tt.term, tt.suffix))
		})
	}
}

func TestReplaceTerm(t *testing.T) {
	assert.Equal(t, "hectare hectare-hectare aha", ReplaceTerm("ha ha-ha aha", "ha", "hectare"))
	assert.Equal(t, "unchanged", ReplaceTerm("unchanged", "ha", "hectare"))
}

func TestIsBoundary(t *testing.T) {
	assert.True(t, IsBoundary("50 kg", 2))
	assert.False(t, IsBoundary("50%", 3))
	assert.True(t, IsBoundary("kg", 0))
	assert.False(t, IsBoundary("", 0))
	assert.True(t, ContainsTerm("my maïs field", "maïs"))
}

func TestSpanOverlaps(t *testing.T) {
	taken := []Span{{5, 15}}
	assert.True(t, Span{10, 15}.Overlaps(taken))
	assert.False(t, Span{0, 5}.Overlaps(taken))
	assert.False(t, Span{15, 20}.Overlaps(taken))
}
