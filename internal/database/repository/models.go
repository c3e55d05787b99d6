package repository

import "time"

// Label is one row of the labeled-transactions table. Source holds the
// categorization source of the label: "manual", "rule:<name>" or "ml".
type Label struct {
	TransactionID   string
	Category        string
	Subcategory     string
	DateCategorized time.Time
	Source          string
}

// RuleRun is one recorded categorization pass.
type RuleRun struct {
	ID              string
	StartedAt       time.Time
	Transactions    int
	RuleCategorized int
	MLCategorized   int
	Skipped         int
	Counts          []RuleRunCount
}

// RuleRunCount is the match count of one rule within a run.
type RuleRunCount struct {
	RuleID   string
	RuleName string
	Matched  int
	Error    *string
}
