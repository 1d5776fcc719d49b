package entity

type TypeSummary struct {
	Count         int      `json:"count"`
	Unique        []string `json:"uniqueEntities"`
	AvgConfidence float64  `json:"avgConfidence"`
}

type Summary struct {
	Total      int                    `json:"totalEntities"`
	Confidence float64                `json:"confidence"`
	Breakdown  map[string]TypeSummary `json:"entityBreakdown"`
}

// Summarize reports per-type counts for the non-empty result keys.
func Summarize(r Result) Summary {
	s := Summary{
		Total:      r.Count,
		Confidence: r.Confidence,
		Breakdown:  make(map[string]TypeSummary),
	}
	for _, key := range Keys {
		matches := r.Entities[key]
		if len(matches) == 0 {
			continue
		}
		total := 0.0
		for _, m := range matches {
			total += m.Confidence
		}
		s.Breakdown[key] = TypeSummary{
			Count:         len(matches),
			Unique:        r.Normalized(key),
			AvgConfidence: round3(total / float64(len(matches))),
		}
	}
	return s
}
