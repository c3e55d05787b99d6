package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankcat/internal/ledger"
)

var (
	alwaysTrue  = Condition("x", OpEquals, "abc")
	alwaysFalse = Condition("x", OpEquals, "zzz")
	sample      = Map{"x": "abc"}
)

func TestTreeOperators(t *testing.T) {
	t.Parallel()

	require.False(t, Evaluate(sample, AllOf()))
	require.False(t, Evaluate(sample, AnyOf()))
	require.False(t, Evaluate(sample, Node{}))
	require.True(t, Evaluate(sample, AllOf(alwaysTrue, alwaysTrue)))
	require.False(t, Evaluate(sample, AllOf(alwaysTrue, alwaysFalse)))
	require.True(t, Evaluate(sample, AnyOf(alwaysFalse, alwaysTrue)))
	require.False(t, Evaluate(sample, AnyOf(alwaysFalse, alwaysFalse)))
	require.True(t, Evaluate(sample, Node{Rules: []Node{alwaysTrue}}), "operator defaults to AND")
	require.False(t, Evaluate(sample, Node{Operator: "XOR", Rules: []Node{alwaysTrue}}))
	require.True(t, Evaluate(sample, AllOf(alwaysTrue, AnyOf(alwaysFalse, AllOf(alwaysTrue)))))
}

func TestCaseSensitivity(t *testing.T) {
	t.Parallel()

	c := Condition("x", OpEquals, "ABC")
	require.True(t, EvaluateCondition(sample, c))
	c.CaseSensitive = true
	require.False(t, EvaluateCondition(sample, c))
}

func TestConditionOperators(t *testing.T) {
	t.Parallel()

	tx := ledger.Transaction{
		ID:           "TXN_00000001",
		Date:         time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount:       -12.5,
		Description:  "ALBERT HEIJN 1234 AMSTERDAM",
		Counterparty: "Albert Heijn",
	}

	cases := []struct {
		name string
		node Node
		want bool
	}{
		{"contains", Condition("description", OpContains, "albert heijn"), true},
		{"starts_with", Condition("Description", OpStartsWith, "albert"), true},
		{"ends_with", Condition("description", OpEndsWith, "amsterdam"), true},
		{"equals number as string", Condition("amount", OpEquals, "-12.5"), true},
		{"greater_than", Condition("amount", OpGreaterThan, -20.0), true},
		{"greater_than string value", Condition("amount", OpGreaterThan, "-20"), true},
		{"less_than", Condition("amount", OpLessThan, -20), false},
		{"less_than non-numeric field", Condition("description", OpLessThan, 5), false},
		{"between inclusive low", Condition("amount", OpBetween, []any{-12.5, 0.0}), true},
		{"between inclusive high", Condition("amount", OpBetween, []float64{-50, -12.5}), true},
		{"between outside", Condition("amount", OpBetween, []any{0.0, 10.0}), false},
		{"between malformed", Condition("amount", OpBetween, []any{0.0}), false},
		{"between non-numeric", Condition("amount", OpBetween, []any{"low", "high"}), false},
		{"regex search", Condition("description", OpRegex, `heijn \d+`), true},
		{"regex case sensitive", Node{Field: "description", Operator: OpRegex, Value: `heijn`, CaseSensitive: true}, false},
		{"regex keeps classes", Condition("description", OpRegex, `^\D+\d{4}`), true},
		{"regex invalid", Condition("description", OpRegex, `([`), false},
		{"in list", Condition("counterparty", OpIn, []any{"jumbo", "ALBERT HEIJN"}), true},
		{"in list miss", Condition("counterparty", OpIn, []string{"jumbo", "lidl"}), false},
		{"in scalar behaves as equals", Condition("counterparty", OpIn, "albert heijn"), true},
		{"date as text", Condition("date", OpStartsWith, "2024-01"), true},
		{"absent field", Condition("currency", OpEquals, ""), false},
		{"unknown field", Condition("merchant", OpContains, "a"), false},
		{"unknown operator", Condition("description", "sounds_like", "albert"), false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Evaluate(tx, tc.node), tc.name)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(AllOf(
		Condition("description", OpContains, "AH"),
		AnyOf(Condition("amount", OpBetween, []any{-50.0, 0.0}), Condition("amount", OpLessThan, -100)),
	)))

	bad := []Node{
		{},
		{Operator: "NAND", Rules: []Node{alwaysTrue}},
		Condition("amount", OpBetween, 5),
		Condition("amount", OpGreaterThan, "lots"),
		Condition("description", OpRegex, "(["),
		Condition("description", "sounds_like", "x"),
		Condition("description", OpContains, nil),
		AllOf(alwaysTrue, Condition("amount", OpLessThan, "x")),
	}
	for i, n := range bad {
		err := Validate(n)
		var ce *ConditionError
		require.True(t, errors.As(err, &ce), "case %d", i)
	}

	err := Validate(AllOf(alwaysTrue, Condition("amount", OpLessThan, "x")))
	var ce *ConditionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "$.rules[1]", ce.Path)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	n := AllOf(
		Condition("description", OpContains, "ALBERT HEIJN"),
		AnyOf(Condition("amount", OpLessThan, -10), Condition("counterparty", OpIn, []string{"AH", "Jumbo"})),
	)
	require.Equal(t,
		`(description contains "ALBERT HEIJN" AND (amount less_than -10 OR counterparty in ["AH", "Jumbo"]))`,
		Describe(n))
	require.Equal(t, "(no conditions)", Describe(Node{}))
}

func TestRuleJSON(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"id": "groceries_1a2b3c4d",
		"name": "Groceries",
		"category": "Food",
		"subcategory": "Groceries",
		"priority": 90,
		"conditions": {"operator": "OR", "rules": [
			{"field": "description", "operator": "contains", "value": "ALBERT HEIJN"},
			{"field": "amount", "operator": "between", "value": [-100, -1]}
		]}
	}`)
	var r Rule
	require.NoError(t, json.Unmarshal(doc, &r))
	require.True(t, r.Active, "missing active defaults to true")
	require.Equal(t, 90, r.Priority)
	require.Len(t, r.Conditions.Rules, 2)

	tx := ledger.Transaction{Description: "JUMBO", Amount: -12.5, Date: time.Now()}
	require.True(t, Evaluate(tx, r.Conditions), "between decoded from JSON numbers")

	var inactive Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","active":false}`), &inactive))
	require.False(t, inactive.Active)
}

func TestNewID(t *testing.T) {
	t.Parallel()

	id := NewID(" Weekly Groceries ")
	require.Regexp(t, `^weekly_groceries_[0-9a-f]{8}$`, id)
	require.NotEqual(t, id, NewID("Weekly Groceries"))
}

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestEngineEndToEnd(t *testing.T) {
	t.Parallel()

	txs := []ledger.Transaction{
		{ID: "TXN_A", Date: day(5), Amount: -12.5, Description: "ALBERT HEIJN 1234"},
		{ID: "TXN_B", Date: day(6), Amount: -45, Description: "NETFLIX.COM"},
	}
	rule := Rule{
		ID: "groceries_00000000", Name: "Groceries", Category: "Food", Subcategory: "Groceries",
		Priority: 90, Active: true,
		Conditions: Condition("description", OpContains, "ALBERT HEIJN"),
	}

	var buf bytes.Buffer
	e := NewEngine(zerolog.New(&buf))
	out, counts := e.Categorize(txs, []Rule{rule})

	require.Equal(t, "Food", out[0].Category)
	require.Equal(t, "Groceries", out[0].Subcategory)
	require.Equal(t, "rule:Groceries", out[0].CategorizationSource)
	require.False(t, out[1].Categorized())
	require.Empty(t, out[1].CategorizationSource)
	require.Equal(t, MatchCounts{"groceries_00000000": 1}, counts)

	require.Empty(t, txs[0].Category, "input left untouched")
}

func TestEnginePriorityAndTies(t *testing.T) {
	t.Parallel()

	txs := []ledger.Transaction{{ID: "TXN_A", Date: day(5), Amount: -12.5, Description: "ALBERT HEIJN 1234"}}
	match := Condition("description", OpContains, "albert")
	rulesIn := []Rule{
		{ID: "low", Name: "Low", Category: "Misc", Priority: 10, Active: true, Conditions: match},
		{ID: "first", Name: "First", Category: "Food", Subcategory: "Groceries", Priority: 50, Active: true, Conditions: match},
		{ID: "second", Name: "Second", Category: "Food", Subcategory: "Takeaway", Priority: 50, Active: true, Conditions: match},
		{ID: "off", Name: "Off", Category: "Never", Priority: 100, Active: false, Conditions: match},
		{ID: "empty", Name: "Empty", Category: "Never", Priority: 99, Active: true},
	}
	out, counts := NewEngine(zerolog.Nop()).Categorize(txs, rulesIn)

	require.Equal(t, "Groceries", out[0].Subcategory)
	require.Equal(t, "rule:First", out[0].CategorizationSource)
	require.Equal(t, MatchCounts{"low": 0, "first": 1, "second": 0, "empty": 0}, counts)
}

func TestEngineSkipsCategorized(t *testing.T) {
	t.Parallel()

	txs := []ledger.Transaction{{
		ID: "TXN_A", Date: day(5), Description: "ALBERT HEIJN",
		Category: "Gifts", CategorizationSource: ledger.SourceManual,
	}}
	r := Rule{ID: "r", Name: "R", Category: "Food", Priority: 50, Active: true, Conditions: Condition("description", OpContains, "albert")}
	run := NewEngine(zerolog.Nop()).Run(txs, []Rule{r})

	require.Equal(t, "Gifts", run.Transactions[0].Category)
	require.Equal(t, ledger.SourceManual, run.Transactions[0].CategorizationSource)
	require.Equal(t, 1, run.Summary.Skipped)
	require.Zero(t, run.Counts()["r"])
}

func TestEngineReportsMalformedRules(t *testing.T) {
	t.Parallel()

	txs := []ledger.Transaction{
		{ID: "TXN_A", Date: day(5), Amount: -12.5, Description: "ALBERT HEIJN"},
		{ID: "TXN_B", Date: day(6), Amount: -45, Description: "NETFLIX.COM"},
	}
	rulesIn := []Rule{
		{ID: "broken", Name: "Broken", Category: "X", Priority: 90, Active: true,
			Conditions: AnyOf(Condition("description", OpRegex, "(["), Condition("description", OpContains, "netflix"))},
		{ID: "ok", Name: "Ok", Category: "Food", Priority: 10, Active: true, Conditions: Condition("amount", OpLessThan, 0)},
	}
	run := NewEngine(zerolog.Nop()).Run(txs, rulesIn)

	require.Equal(t, 1, run.Summary.FailedRules)
	require.NotEmpty(t, run.Outcomes[0].Error)
	require.Equal(t, "Food", run.Transactions[0].Category)
	// the valid branch of a malformed tree still matches
	require.Equal(t, "X", run.Transactions[1].Category)
	require.Equal(t, []string{"TXN_B"}, run.Outcomes[0].Samples)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	var txs []ledger.Transaction
	for i := 1; i <= 15; i++ {
		txs = append(txs, ledger.Transaction{ID: "TXN", Date: day(i), Amount: float64(-i), Description: "KOFFIE"})
	}
	n := Condition("amount", OpLessThan, -2)
	require.Len(t, Preview(n, txs, 0), DefaultPreviewLimit)
	got := Preview(n, txs, 3)
	require.Len(t, got, 3)
	require.Equal(t, -3.0, got[0].Amount)
	require.Equal(t, 13, Count(n, txs))
}

func TestPatternsScopedToPass(t *testing.T) {
	t.Parallel()

	p := patterns{}
	a, err := p.get(`heijn \d+`, false)
	require.NoError(t, err)
	b, err := p.get(`heijn \d+`, false)
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Len(t, p, 1)

	sensitive, err := p.get(`heijn \d+`, true)
	require.NoError(t, err)
	require.NotSame(t, a, sensitive)
	require.Len(t, p, 2)

	_, err = p.get(`([`, false)
	require.Error(t, err)
	_, err = p.get(`([`, false)
	require.Error(t, err)

	var none patterns
	fresh, err := none.get(`heijn \d+`, false)
	require.NoError(t, err)
	require.NotSame(t, a, fresh)
	require.True(t, fresh.MatchString("ALBERT HEIJN 1234"))

	// the exported evaluators keep no state between calls
	tx := ledger.Transaction{ID: "TXN_A", Description: "ALBERT HEIJN 1234"}
	n := Condition("description", OpRegex, `heijn \d+`)
	require.True(t, Evaluate(tx, n))
	require.True(t, Evaluate(tx, n))
	require.Equal(t, 1, Count(n, []ledger.Transaction{tx}))
}
