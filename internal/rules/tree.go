package rules

import "github.com/jask/bankcat/internal/ledger"

// DefaultPreviewLimit caps Preview when no limit is given.
const DefaultPreviewLimit = 10

// Evaluate walks a condition tree. Composites default to AND; an empty
// composite or an unknown operator is false.
func Evaluate(f Fields, n Node) bool {
	return evaluate(f, n, nil)
}

func evaluate(f Fields, n Node, p patterns) bool {
	if n.Leaf() {
		return evaluateCondition(f, n, p)
	}
	if len(n.Rules) == 0 {
		return false
	}
	switch n.compositeOperator() {
	case And:
		for _, child := range n.Rules {
			if !evaluate(f, child, p) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range n.Rules {
			if evaluate(f, child, p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Preview returns up to limit transactions matching n, in input order.
func Preview(n Node, txs []ledger.Transaction, limit int) []ledger.Transaction {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	var out []ledger.Transaction
	p := patterns{}
	for _, t := range txs {
		if !evaluate(t, n, p) {
			continue
		}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns how many transactions match n.
func Count(n Node, txs []ledger.Transaction) int {
	count := 0
	p := patterns{}
	for _, t := range txs {
		if evaluate(t, n, p) {
			count++
		}
	}
	return count
}
