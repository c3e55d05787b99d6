// Package ledger holds the canonical transaction record shared by the
// normalizer, the rule engine and the statistical categorizer.
package ledger

import (
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date encoding.
const DateLayout = "2006-01-02"

// Categorization sources.
const (
	SourceManual     = "manual"
	SourceML         = "ml"
	SourceRulePrefix = "rule:"
)

// Transaction is one row of the canonical table. Optional string fields are
// empty when the source did not provide them.
type Transaction struct {
	ID                  string
	Date                time.Time
	Amount              float64
	Description         string
	Counterparty        string
	CounterpartyAccount string
	Account             string
	Reference           string
	BalanceAfter        *float64
	Currency            string
	Sequence            string
	SourceFile          string

	Category             string
	Subcategory          string
	CategorizationSource string

	// Extra keeps unmapped source columns keyed by their original header.
	Extra map[string]string
}

// Categorized reports whether the transaction already carries a category.
func (t Transaction) Categorized() bool {
	return strings.TrimSpace(t.Category) != ""
}

// Manual reports whether the category came from a manual label.
func (t Transaction) Manual() bool {
	return t.CategorizationSource == SourceManual
}

// RuleSource builds the provenance tag for a rule match.
func RuleSource(ruleName string) string {
	return SourceRulePrefix + ruleName
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	out := t
	if t.BalanceAfter != nil {
		v := *t.BalanceAfter
		out.BalanceAfter = &v
	}
	if t.Extra != nil {
		out.Extra = make(map[string]string, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// CloneAll copies a slice of transactions.
func CloneAll(in []Transaction) []Transaction {
	out := make([]Transaction, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// IndexByID maps transaction ids to slice positions.
func IndexByID(txs []Transaction) map[string]int {
	out := make(map[string]int, len(txs))
	for i, t := range txs {
		out[t.ID] = i
	}
	return out
}
