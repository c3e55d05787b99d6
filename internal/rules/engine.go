package rules

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jask/bankcat/internal/ledger"
)

// maxSamples caps the transaction ids kept per rule outcome.
const maxSamples = 3

// MatchCounts maps rule id to the number of transactions it categorized.
type MatchCounts map[string]int

// RuleOutcome is the per-rule result of one pass.
type RuleOutcome struct {
	RuleID   string
	RuleName string
	Priority int
	Matched  int
	// Error holds the validation or evaluation failure, if any.
	Error   string
	Samples []string
}

// RunSummary totals a pass.
type RunSummary struct {
	Transactions int
	Skipped      int
	Categorized  int
	FailedRules  int
}

// Run is the full result of a categorization pass.
type Run struct {
	Transactions []ledger.Transaction
	Outcomes     []RuleOutcome
	Summary      RunSummary
}

// Counts returns the match count of every active rule, zero included.
func (r Run) Counts() MatchCounts {
	out := make(MatchCounts, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.RuleID] = o.Matched
	}
	return out
}

// Engine applies rules with first-match-wins semantics.
type Engine struct {
	Logger zerolog.Logger
}

// NewEngine returns an engine logging to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{Logger: log}
}

// Categorize assigns a category to every uncategorized transaction from the
// highest-priority active rule that matches it. The input is not modified.
func (e *Engine) Categorize(txs []ledger.Transaction, rules []Rule) ([]ledger.Transaction, MatchCounts) {
	run := e.Run(txs, rules)
	return run.Transactions, run.Counts()
}

// Run is Categorize with per-rule diagnostics.
func (e *Engine) Run(txs []ledger.Transaction, rules []Rule) Run {
	ordered := ActiveByPriority(rules)
	outcomes := make([]RuleOutcome, len(ordered))
	summary := RunSummary{Transactions: len(txs)}
	for i, r := range ordered {
		outcomes[i] = RuleOutcome{RuleID: r.ID, RuleName: r.Name, Priority: r.Priority}
		if err := Validate(r.Conditions); err != nil {
			outcomes[i].Error = err.Error()
			summary.FailedRules++
			e.Logger.Warn().Err(err).Str("rule", r.Name).Msg("rule has malformed conditions")
		}
	}

	out := ledger.CloneAll(txs)
	p := patterns{}
	for ti := range out {
		if out[ti].Categorized() {
			summary.Skipped++
			continue
		}
		for ri, r := range ordered {
			matched, err := e.evaluate(out[ti], r, p)
			if err != nil {
				if outcomes[ri].Error == "" {
					outcomes[ri].Error = err.Error()
					summary.FailedRules++
				}
				e.Logger.Warn().Err(err).Str("rule", r.Name).Str("transaction_id", out[ti].ID).Msg("rule evaluation failed")
				continue
			}
			if !matched {
				continue
			}
			out[ti].Category = r.Category
			out[ti].Subcategory = r.Subcategory
			out[ti].CategorizationSource = ledger.RuleSource(r.Name)
			outcomes[ri].Matched++
			if len(outcomes[ri].Samples) < maxSamples {
				outcomes[ri].Samples = append(outcomes[ri].Samples, out[ti].ID)
			}
			summary.Categorized++
			break
		}
	}

	e.Logger.Info().
		Int("transactions", summary.Transactions).
		Int("rules", len(ordered)).
		Int("categorized", summary.Categorized).
		Int("skipped", summary.Skipped).
		Msg("rules applied")
	return Run{Transactions: out, Outcomes: outcomes, Summary: summary}
}

func (e *Engine) evaluate(t ledger.Transaction, r Rule, p patterns) (matched bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			matched = false
			err = &ConditionError{Path: "$", Operator: r.Conditions.Operator, Reason: fmt.Sprint("panic: ", p)}
		}
	}()
	return evaluate(t, r.Conditions, p), nil
}
