package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is a half-open byte range into the searched text.
type Span struct {
	Start int
	End   int
}

// Suffix controls what may follow a term before the closing word boundary.
type Suffix int

const (
	// SuffixNone matches the term as a whole word.
	SuffixNone Suffix = iota
	// SuffixPlural also accepts a single trailing "s".
	SuffixPlural
	// SuffixWord accepts any run of word characters after the term.
	SuffixWord
)

// IsWordRune reports whether r is a letter, digit or underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsBoundary reports whether byte offset i in text sits on a word boundary,
// with letters outside ASCII counted as word characters.
func IsBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = IsWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = IsWordRune(r)
	}
	return before != after
}

// FindTerm returns the non-overlapping, left-to-right occurrences of term in
// text that start on a word boundary and end on one after applying suffix.
func FindTerm(text, term string, suffix Suffix) []Span {
	if term == "" {
		return nil
	}

	var spans []Span
	pos := 0
	for pos <= len(text)-len(term) {
		idx := strings.Index(text[pos:], term)
		if idx < 0 {
			break
		}
		start := pos + idx
		end, ok := matchEnd(text, start, start+len(term), suffix)
		if !ok {
			pos = start + 1
			continue
		}
		spans = append(spans, Span{Start: start, End: end})
		pos = end
		if end == start {
			pos++
		}
	}
	return spans
}

func matchEnd(text string, start, end int, suffix Suffix) (int, bool) {
	if !IsBoundary(text, start) {
		return 0, false
	}

	switch suffix {
	case SuffixPlural:
		if strings.HasPrefix(text[end:], "s") && IsBoundary(text, end+1) {
			return end + 1, true
		}
	case SuffixWord:
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if !IsWordRune(r) {
				break
			}
			end += size
		}
	}

	if IsBoundary(text, end) {
		return end, true
	}
	return 0, false
}

// ContainsTerm reports whether term occurs in text as a whole word.
func ContainsTerm(text, term string) bool {
	return len(FindTerm(text, term, SuffixNone)) > 0
}

// ReplaceTerm replaces every whole-word occurrence of term with repl.
func ReplaceTerm(text, term, repl string) string {
	spans := FindTerm(text, term, SuffixNone)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.Start])
		b.WriteString(repl)
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Overlaps reports whether s intersects any span in taken.
func (s Span) Overlaps(taken []Span) bool {
	for _, t := range taken {
		if s.Start < t.End && t.Start < s.End {
			return true
		}
	}
	return false
}
