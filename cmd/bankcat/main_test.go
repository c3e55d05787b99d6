package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/testdata"
)

type harness struct {
	t    *testing.T
	data string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BANKCAT_CONFIG", filepath.Join(dir, "missing.toml"))
	return &harness{t: t, data: filepath.Join(dir, "data")}
}

// run executes a command against the harness data dir and returns its exit
// code and stdout.
func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	code := run(append([]string{"-data", h.data}, args...), strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (h *harness) ok(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run("", args...)
	require.Equal(h.t, 0, code, "stderr: %s", errOut)
	return out
}

func (h *harness) writeExport(rows []testdata.Row) {
	h.t.Helper()
	dir := filepath.Join(h.data, "exports", "rabo")
	require.NoError(h.t, os.MkdirAll(dir, 0o755))
	require.NoError(h.t, os.WriteFile(filepath.Join(dir, "jan.csv"), testdata.RabobankCSV(rows), 0o600))
}

func (h *harness) table() []ledger.Transaction {
	h.t.Helper()
	f, err := os.Open(filepath.Join(h.data, "combined_transactions.csv"))
	require.NoError(h.t, err)
	defer f.Close()
	txs, err := ledger.ReadCSV(f)
	require.NoError(h.t, err)
	return txs
}

func TestUsage(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "categorize")

	code, _, errOut = h.run("", "frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "unknown command")

	code, _, errOut = h.run("", "label", "only-an-id")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "usage: bankcat label")
}

func TestImportCategorizeLabel(t *testing.T) {
	h := newHarness(t)
	h.ok("categories", "seed")
	h.writeExport(testdata.Sample(30, 3, "NL01RABO0123456789"))

	out := h.ok("import")
	require.Contains(t, out, "imported")
	txs := h.table()
	require.NotEmpty(t, txs)

	out = h.ok("rules", "add", "-name", "Albert Heijn", "-category", "Food", "-subcategory", "Groceries",
		"-priority", "90", "-value", "ALBERT HEIJN")
	require.Contains(t, out, "created albert_heijn_")

	out = h.ok("rules", "preview", "-value", "ALBERT HEIJN")
	require.Contains(t, out, "matches")

	out = h.ok("categorize", "-save-labels")
	require.Contains(t, out, "Albert Heijn")
	require.Contains(t, out, "coverage")
	require.Contains(t, out, "no trained model")

	var target ledger.Transaction
	for _, tx := range txs {
		if strings.Contains(tx.Description, "NETFLIX") {
			target = tx
			break
		}
	}
	if target.ID == "" {
		target = txs[0]
	}
	out = h.ok("label", target.ID, "Fixed Costs", "Subscriptions")
	require.Contains(t, out, "labeled Fixed Costs > Subscriptions")

	code, _, errOut := h.run("", "label", "TXN_MISSING", "Food", "Groceries")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "unknown transaction")

	code, _, _ = h.run("", "label", target.ID, "Nope", "Nothing")
	require.Equal(t, 1, code)

	out = h.ok("suggest", target.ID)
	require.Contains(t, out, target.Description)

	out = h.ok("stats")
	require.Contains(t, out, "recent runs")

	export := filepath.Join(t.TempDir(), "labels.csv")
	out = h.ok("label", "-export", export)
	require.Contains(t, out, "exported")
	raw, err := os.ReadFile(export)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "Transaction_ID,Category,Subcategory,Date_Categorized,Source"))
	require.Contains(t, string(raw), target.ID)
}

func TestRuleDeleteConfirmation(t *testing.T) {
	h := newHarness(t)
	h.ok("categories", "seed")
	h.ok("rules", "add", "-name", "Shell", "-category", "Transport", "-subcategory", "Fuel", "-value", "SHELL")
	h.ok("categories", "list")

	list := h.ok("rules", "list")
	require.Contains(t, list, "shell_")
	start := strings.Index(list, "shell_")
	id := strings.Fields(list[start:])[0]

	code, _, errOut := h.run("wrong-token\n", "rules", "delete", id)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "confirmation token")
	require.Contains(t, h.ok("rules", "list"), id)

	code, _, errOut = h.run("", "rules", "delete", id)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "confirmation")

	h.ok("rules", "delete", "-yes", id)
	require.NotContains(t, h.ok("rules", "list"), id)
}

func TestCategoryCommands(t *testing.T) {
	h := newHarness(t)
	h.ok("categories", "add", "-description", "hobbies", "Hobby")
	h.ok("categories", "add-sub", "Hobby", "Climbing")
	h.ok("categories", "rename-sub", "Hobby", "Climbing", "Bouldering")
	h.ok("categories", "rename", "Hobby", "Sport")
	h.ok("categories", "toggle", "Sport", "Bouldering")

	out := h.ok("categories", "list")
	require.Contains(t, out, "Sport")
	require.Contains(t, out, "Bouldering")
	require.NotContains(t, out, "Hobby ")

	out = h.ok("categories", "seed")
	require.Contains(t, out, "already present")

	code, _, _ := h.run("", "categories", "add", "Sport")
	require.Equal(t, 1, code)

	h.ok("categories", "delete", "-yes", "Sport")
	require.NotContains(t, h.ok("categories", "list"), "Sport")
}

func TestBackupRestoreReset(t *testing.T) {
	h := newHarness(t)
	h.ok("categories", "seed")
	h.writeExport(testdata.Sample(10, 5, "NL01RABO0123456789"))
	h.ok("import")
	h.ok("rules", "add", "-name", "Spotify", "-category", "Fixed Costs", "-subcategory", "Subscriptions", "-value", "SPOTIFY")

	out := h.ok("backup")
	require.Contains(t, out, "backup written to")
	entries, err := os.ReadDir(filepath.Join(h.data, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	pkg := filepath.Join(h.data, "backups", entries[0].Name())

	code, _, _ := h.run("no\n", "reset")
	require.Equal(t, 1, code)
	h.ok("reset", "-yes")
	require.Contains(t, h.ok("stats"), "0 of 0 categorized")

	h.ok("categories", "delete", "-yes", "Fixed Costs")
	out = h.ok("restore", "-transactions", pkg)
	require.Contains(t, out, "restored")
	require.Contains(t, h.ok("categories", "list"), "Fixed Costs")
	require.Contains(t, h.ok("rules", "list"), "Spotify")
	require.NotContains(t, h.ok("stats"), "of 0 categorized")

	code, _, _ = h.run("", "restore", filepath.Join(h.data, "missing.zip"))
	require.Equal(t, 1, code)
}
