package service

import (
	"sort"
	"strings"

	"github.com/jask/bankcat/internal/ledger"
)

// Stats summarizes categorization coverage.
type Stats struct {
	Total         int
	Categorized   int
	Uncategorized int
	// Rate is Categorized/Total, zero for an empty table.
	Rate       float64
	ByMethod   map[string]int
	ByCategory map[string]int
}

// Method buckets a categorization source: manual, rule, ml or "" for
// uncategorized rows.
func Method(source string) string {
	switch {
	case source == ledger.SourceManual:
		return ledger.SourceManual
	case source == ledger.SourceML:
		return MethodML
	case strings.HasPrefix(source, ledger.SourceRulePrefix):
		return MethodRule
	}
	return ""
}

// ComputeStats counts txs by method and category.
func ComputeStats(txs []ledger.Transaction) Stats {
	s := Stats{Total: len(txs), ByMethod: map[string]int{}, ByCategory: map[string]int{}}
	for _, t := range txs {
		if !t.Categorized() {
			s.Uncategorized++
			continue
		}
		s.Categorized++
		if m := Method(t.CategorizationSource); m != "" {
			s.ByMethod[m]++
		}
		s.ByCategory[t.Category]++
	}
	if s.Total > 0 {
		s.Rate = float64(s.Categorized) / float64(s.Total)
	}
	return s
}

// CategoryCount is one row of a category distribution.
type CategoryCount struct {
	Category string
	Count    int
}

// TopCategories returns the distribution sorted by count, then name.
func (s Stats) TopCategories() []CategoryCount {
	out := make([]CategoryCount, 0, len(s.ByCategory))
	for c, n := range s.ByCategory {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}
