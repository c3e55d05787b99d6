package repository

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/bankcat/internal/database"
	"github.com/jask/bankcat/internal/ledger"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "nested", "bankcat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func TestTransactionsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := NewTransactionRepo(openDB(t))

	balance := 812.5
	txs := []ledger.Transaction{
		{
			ID: "TXN_00000002", Date: day(3), Amount: -25.4, Description: "ALBERT HEIJN 1234",
			Counterparty: "Albert Heijn", Account: "NL01RABO0123456789", Currency: "EUR",
			Sequence: "000002", SourceFile: "rabo/jan.csv", BalanceAfter: &balance,
			Extra: map[string]string{"Code": "bc"},
		},
		{
			ID: "TXN_00000001", Date: day(1), Amount: 2500, Description: "SALARIS",
			Category: "Income", Subcategory: "Salary", CategorizationSource: ledger.SourceManual,
		},
	}
	require.NoError(t, repo.ReplaceAll(ctx, txs))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	all, err := repo.List(ctx, TransactionFilters{})
	require.NoError(t, err)
	require.Equal(t, txs, all, "order is insertion order")

	got, err := repo.Get(ctx, "TXN_00000002")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 812.5, *got.BalanceAfter)
	require.Equal(t, "bc", got.Extra["Code"])

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	// replacing drops the previous contents
	require.NoError(t, repo.ReplaceAll(ctx, txs[:1]))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTransactionFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewTransactionRepo(openDB(t))
	require.NoError(t, repo.ReplaceAll(ctx, []ledger.Transaction{
		{ID: "a", Date: day(1), Amount: -1, Description: "JUMBO CITY", Category: "Food"},
		{ID: "b", Date: day(5), Amount: -2, Description: "NETFLIX.COM"},
		{ID: "c", Date: day(9), Amount: -3, Description: "SHELL", Counterparty: "Jumbo Fuel"},
	}))

	ids := func(f TransactionFilters) []string {
		txs, err := repo.List(ctx, f)
		require.NoError(t, err)
		var out []string
		for _, tx := range txs {
			out = append(out, tx.ID)
		}
		return out
	}

	require.Equal(t, []string{"a"}, ids(TransactionFilters{Category: "Food"}))
	require.Equal(t, []string{"b", "c"}, ids(TransactionFilters{Uncategorized: true}))
	require.Equal(t, []string{"b", "c"}, ids(TransactionFilters{From: day(5)}))
	require.Equal(t, []string{"a", "b"}, ids(TransactionFilters{To: day(5)}))
	require.Equal(t, []string{"a", "c"}, ids(TransactionFilters{Search: "jumbo"}))
	require.Equal(t, []string{"a"}, ids(TransactionFilters{Limit: 1}))
}

func TestUpdateCategories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewTransactionRepo(openDB(t))
	require.NoError(t, repo.ReplaceAll(ctx, []ledger.Transaction{
		{ID: "a", Date: day(1), Amount: -1, Description: "JUMBO"},
	}))
	require.NoError(t, repo.UpdateCategories(ctx, []ledger.Transaction{
		{ID: "a", Category: "Food", Subcategory: "Groceries", CategorizationSource: ledger.RuleSource("Jumbo")},
	}))
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "Food", got.Category)
	require.Equal(t, "rule:Jumbo", got.CategorizationSource)
	require.Equal(t, "JUMBO", got.Description)
}

func TestAutomatedLabelsNeverOverwriteManual(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewLabelRepo(openDB(t))
	when := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertManual(ctx, []Label{
		{TransactionID: "a", Category: "Food", Subcategory: "Dining", DateCategorized: when},
	}))
	written, err := repo.UpsertAutomated(ctx, []Label{
		{TransactionID: "a", Category: "Food", Subcategory: "Groceries", DateCategorized: when, Source: "rule:AH"},
		{TransactionID: "b", Category: "Leisure", DateCategorized: when, Source: ledger.SourceML},
	})
	require.NoError(t, err)
	require.Equal(t, 1, written)

	a, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "Dining", a.Subcategory)
	require.Equal(t, ledger.SourceManual, a.Source)
	require.True(t, when.Equal(a.DateCategorized))

	// automated labels can be refreshed
	written, err = repo.UpsertAutomated(ctx, []Label{
		{TransactionID: "b", Category: "Transport", DateCategorized: when, Source: "rule:NS"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// manual overrides anything
	require.NoError(t, repo.UpsertManual(ctx, []Label{
		{TransactionID: "b", Category: "Travel", DateCategorized: when},
	}))
	manual, err := repo.List(ctx, ledger.SourceManual)
	require.NoError(t, err)
	require.Len(t, manual, 2)

	_, err = repo.UpsertAutomated(ctx, []Label{{TransactionID: "c", Category: "X", Source: ledger.SourceManual}})
	require.Error(t, err)

	require.NoError(t, repo.Delete(ctx, "a"))
	gone, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestRuleRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRuleRunRepo(openDB(t))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	msg := "regex: missing closing )"
	first := &RuleRun{StartedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), Transactions: 3, RuleCategorized: 1, Skipped: 1}
	require.NoError(t, repo.Record(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &RuleRun{
		StartedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), Transactions: 4, RuleCategorized: 2, MLCategorized: 1,
		Counts: []RuleRunCount{
			{RuleID: "ah", RuleName: "AH", Matched: 2},
			{RuleID: "bad", RuleName: "Bad", Error: &msg},
		},
	}
	require.NoError(t, repo.Record(ctx, second))

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, 1, latest.MLCategorized)
	require.Len(t, latest.Counts, 2)
	require.Equal(t, "ah", latest.Counts[0].RuleID)
	require.Nil(t, latest.Counts[0].Error)
	require.Equal(t, msg, *latest.Counts[1].Error)

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, first.ID, runs[1].ID)
}

func TestLabelsCSV(t *testing.T) {
	t.Parallel()

	in := "\ufeffTransaction_ID,Category,Subcategory,Date_Categorized,Source\n" +
		"TXN_1,Food,Groceries,2024-03-01 10:00:00,Manual\n" +
		"TXN_2,Leisure,,2024-03-01 11:00:00,rule:Cinema\n" +
		",Food,,,\n" +
		"TXN_1,Food,Dining,2024-03-02 09:00:00,Manual\n"
	labels, err := ReadLabelsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, labels, 2)
	require.Equal(t, "Dining", labels[0].Subcategory, "later rows replace earlier ones")
	require.Equal(t, ledger.SourceManual, labels[0].Source)
	require.Equal(t, "rule:Cinema", labels[1].Source)

	var buf bytes.Buffer
	require.NoError(t, WriteLabelsCSV(&buf, labels))
	again, err := ReadLabelsCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, labels, again)

	_, err = ReadLabelsCSV(strings.NewReader("id,label\n1,x\n"))
	require.Error(t, err)
}
