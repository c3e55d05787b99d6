package service

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
)

// maxDistance is the largest normalized edit distance still counted as
// similar.
const maxDistance = 0.4

// Suggestion is a labeled transaction resembling the one being labeled.
type Suggestion struct {
	Transaction ledger.Transaction
	Label       repository.Label
	// Distance is the edit distance between descriptions divided by the
	// longer length.
	Distance float64
}

// SuggestService finds labeled transactions similar to an unlabeled one.
type SuggestService struct {
	Transactions *repository.TransactionRepo
	Labels       *repository.LabelRepo
}

// Similar returns up to k labeled transactions whose description is close
// to tx's, closest first.
func (s *SuggestService) Similar(ctx context.Context, tx ledger.Transaction, k int) ([]Suggestion, error) {
	labels, err := s.Labels.List(ctx, "")
	if err != nil {
		return nil, err
	}
	txs, err := s.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return nil, err
	}
	idx := ledger.IndexByID(txs)

	var out []Suggestion
	for _, l := range labels {
		i, ok := idx[l.TransactionID]
		if !ok || l.TransactionID == tx.ID {
			continue
		}
		d := Distance(tx.Description, txs[i].Description)
		if d < maxDistance {
			out = append(out, Suggestion{Transaction: txs[i], Label: l, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Distance is the case-insensitive Levenshtein distance of a and b divided
// by the longer length: 0 for equal strings, 1 for nothing in common.
func Distance(a, b string) float64 {
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}
