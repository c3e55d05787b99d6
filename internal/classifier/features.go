// Package classifier trains and applies a text classifier that predicts a
// category label with a confidence for each transaction.
package classifier

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/jask/bankcat/internal/ledger"
)

// LargeAmount is the absolute amount above which a transaction is large.
const LargeAmount = 500.0

// Features are derived from one transaction. Only Text feeds the model by
// default; the rest become tokens when Options.AmountFeatures is set.
type Features struct {
	Text          string
	AmountLog     float64
	IsIncome      bool
	IsLargeAmount bool
	Month         int
	// DayOfWeek counts from Monday = 0.
	DayOfWeek int
	IsWeekend bool
}

// Extract computes the feature set.
func Extract(t ledger.Transaction) Features {
	text := strings.TrimSpace(t.Description + " " + t.Counterparty)
	f := Features{
		Text:          strings.ToLower(strings.Join(strings.Fields(text), " ")),
		AmountLog:     math.Log1p(math.Abs(t.Amount)),
		IsIncome:      t.Amount > 0,
		IsLargeAmount: math.Abs(t.Amount) > LargeAmount,
	}
	if !t.Date.IsZero() {
		f.Month = int(t.Date.Month())
		f.DayOfWeek = (int(t.Date.Weekday()) + 6) % 7
		f.IsWeekend = t.Date.Weekday() == time.Saturday || t.Date.Weekday() == time.Sunday
	}
	return f
}

// Tokens splits text into lower-cased words and adds adjacent-word bigrams.
func Tokens(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 1; i < len(words); i++ {
		out = append(out, words[i-1]+" "+words[i])
	}
	return out
}

func document(f Features, amountFeatures bool) []string {
	doc := Tokens(f.Text)
	if !amountFeatures {
		return doc
	}
	if f.IsIncome {
		doc = append(doc, "~income")
	} else {
		doc = append(doc, "~expense")
	}
	if f.IsLargeAmount {
		doc = append(doc, "~large")
	}
	if f.IsWeekend {
		doc = append(doc, "~weekend")
	}
	// one bucket per power of e keeps amounts coarse
	doc = append(doc, "~amount"+string(rune('0'+min(int(f.AmountLog), 9))))
	return doc
}
