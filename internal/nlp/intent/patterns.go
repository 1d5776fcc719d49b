package intent

// PatternAnalysis aggregates classifications over a batch of messages.
type PatternAnalysis struct {
	Distribution      map[string]int     `json:"intentDistribution"`
	AverageConfidence map[string]float64 `json:"averageConfidence"`
	TotalTexts        int                `json:"totalTextsAnalyzed"`
	MostCommonIntent  string             `json:"mostCommonIntent,omitempty"`
	MostCommonCount   int                `json:"mostCommonCount,omitempty"`
}

// AnalyzePatterns classifies every text without conversation context.
// Ties for the most common intent go to the one seen first.
func (c *Classifier) AnalyzePatterns(texts []string) PatternAnalysis {
	counts := make(map[string]int)
	sums := make(map[string]float64)
	var order []string

	for _, text := range texts {
		r := c.Classify(text, Context{})
		if _, seen := counts[r.Intent]; !seen {
			order = append(order, r.Intent)
		}
		counts[r.Intent]++
		sums[r.Intent] += r.Confidence
	}

	out := PatternAnalysis{
		Distribution:      counts,
		AverageConfidence: make(map[string]float64, len(counts)),
		TotalTexts:        len(texts),
	}
	for _, name := range order {
		out.AverageConfidence[name] = sums[name] / float64(counts[name])
		if counts[name] > out.MostCommonCount {
			out.MostCommonIntent = name
			out.MostCommonCount = counts[name]
		}
	}
	return out
}
