// Package normalize turns heterogeneous bank exports into canonical
// transactions.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jask/bankcat/internal/ledger"
)

// IDPrefix starts every transaction id.
const IDPrefix = "TXN_"

// Source is one raw export.
type Source struct {
	Name string
	Data []byte
}

// Result is the canonical table plus diagnostics for the batch.
type Result struct {
	Transactions      []ledger.Transaction
	FilesLoaded       int
	FilesSkipped      int
	LoadErrors        []*LoadError
	RowsDropped       int
	ParseErrors       []*ParseError
	DuplicatesRemoved int
}

// Normalizer maps source exports onto ledger.Transaction.
type Normalizer struct {
	Aliases []Alias
	Logger  zerolog.Logger
}

// New returns a normalizer with the default alias table.
func New(log zerolog.Logger) *Normalizer {
	return &Normalizer{Aliases: DefaultAliases, Logger: log}
}

// LoadDir reads every *.csv file under dir, recursively and in lexical order.
// Unreadable files are reported as LoadErrors.
func (n *Normalizer) LoadDir(dir string) (Result, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	sources := make([]Source, 0, len(paths))
	var res Result
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			res.addLoadError(n.Logger, &LoadError{Source: p, Err: err})
			continue
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		sources = append(sources, Source{Name: filepath.ToSlash(rel), Data: data})
	}
	out := n.Normalize(sources)
	out.FilesSkipped += res.FilesSkipped
	out.LoadErrors = append(res.LoadErrors, out.LoadErrors...)
	return out, nil
}

// Normalize builds one canonical table from sources. Per-file and per-row
// problems are recorded in the result and never abort the batch.
func (n *Normalizer) Normalize(sources []Source) Result {
	aliases := n.Aliases
	if aliases == nil {
		aliases = DefaultAliases
	}
	var res Result
	var all []ledger.Transaction
	for _, src := range sources {
		tbl, err := detectTable(src.Data)
		if err != nil {
			res.addLoadError(n.Logger, &LoadError{Source: src.Name, Err: err})
			continue
		}
		cm := mapColumns(tbl.header, aliases)
		if !cm.has(colDate) || !cm.has(colAmount) {
			res.addLoadError(n.Logger, &LoadError{Source: src.Name, Err: errors.New("no date or amount column")})
			continue
		}
		res.FilesLoaded++
		n.Logger.Debug().
			Str("source", src.Name).
			Str("encoding", string(tbl.encoding)).
			Str("separator", strconv.QuoteRune(tbl.separator)).
			Int("rows", len(tbl.rows)).
			Msg("source detected")

		for i, rec := range tbl.rows {
			tx, perr := buildTransaction(src.Name, cm, rec)
			if perr != nil {
				// header is line 1
				perr.Line = i + 2
				res.RowsDropped++
				res.ParseErrors = append(res.ParseErrors, perr)
				n.Logger.Debug().Err(perr).Msg("row dropped")
				continue
			}
			all = append(all, tx)
		}
	}

	all, removed := Dedup(all)
	res.DuplicatesRemoved = removed
	AssignIDs(all)
	SortByDate(all)
	res.Transactions = all

	n.Logger.Info().
		Int("transactions", len(all)).
		Int("files_loaded", res.FilesLoaded).
		Int("files_skipped", res.FilesSkipped).
		Int("rows_dropped", res.RowsDropped).
		Int("duplicates_removed", removed).
		Msg("normalized")
	return res
}

func (r *Result) addLoadError(log zerolog.Logger, err *LoadError) {
	r.FilesSkipped++
	r.LoadErrors = append(r.LoadErrors, err)
	log.Warn().Err(err).Msg("source skipped")
}

func buildTransaction(source string, cm columnMap, rec []string) (ledger.Transaction, *ParseError) {
	rawDate := cm.value(rec, colDate)
	date, err := ParseDate(rawDate)
	if err != nil {
		return ledger.Transaction{}, &ParseError{Source: source, Field: ledger.FieldDate, Value: rawDate, Err: err}
	}
	rawAmount := cm.value(rec, colAmount)
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return ledger.Transaction{}, &ParseError{Source: source, Field: ledger.FieldAmount, Value: rawAmount, Err: err}
	}

	tx := ledger.Transaction{
		Date:   date,
		Amount: amount,
		Description: JoinDescription(
			cm.value(rec, colDescription),
			cm.value(rec, colDescription2),
			cm.value(rec, colDescription3),
		),
		Counterparty:        CleanText(cm.value(rec, colCounterparty)),
		CounterpartyAccount: cm.value(rec, colCounterpartyAccount),
		Account:             cm.value(rec, colAccount),
		Reference:           cm.value(rec, colReference),
		Currency:            cm.value(rec, colCurrency),
		Sequence:            cm.value(rec, colSequence),
		SourceFile:          source,
	}
	// an unparseable balance only loses the balance
	if raw := cm.value(rec, colBalanceAfter); raw != "" {
		if v, err := ParseAmount(raw); err == nil {
			tx.BalanceAfter = &v
		}
	}
	for i, name := range cm.extra {
		if i >= len(rec) {
			continue
		}
		if tx.Extra == nil {
			tx.Extra = make(map[string]string, len(cm.extra))
		}
		tx.Extra[name] = strings.TrimSpace(rec[i])
	}
	return tx, nil
}

type dedupKey struct {
	date        time.Time
	amount      float64
	description string
	sequence    string
}

// Dedup drops rows repeating an earlier row's date, amount, description and
// source sequence number, keeping the first. It returns the number removed.
// Rows without a sequence number collapse on date, amount and description
// alone. Rows from a numbered source collapse only when their sequence
// numbers are identical too, so two equal purchases a bank numbers apart
// are both kept.
func Dedup(txs []ledger.Transaction) ([]ledger.Transaction, int) {
	seen := make(map[dedupKey]struct{}, len(txs))
	out := make([]ledger.Transaction, 0, len(txs))
	for _, t := range txs {
		k := dedupKey{date: t.Date, amount: t.Amount, description: t.Description, sequence: t.Sequence}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out, len(txs) - len(out)
}

// ContentID derives the stable identifier from a transaction's content.
func ContentID(t ledger.Transaction) string {
	joined := strings.Join([]string{
		t.Date.Format(ledger.DateLayout),
		strconv.FormatFloat(t.Amount, 'f', 2, 64),
		t.Description,
		t.Counterparty,
		t.Account,
		t.Sequence,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return IDPrefix + strings.ToUpper(hex.EncodeToString(sum[:4]))
}

// AssignIDs sets ContentID on every transaction. Repeated ids within the
// batch get _1, _2, ... suffixes in slice order.
func AssignIDs(txs []ledger.Transaction) {
	seen := make(map[string]int, len(txs))
	for i := range txs {
		id := ContentID(txs[i])
		n := seen[id]
		seen[id] = n + 1
		if n > 0 {
			id = fmt.Sprintf("%s_%d", id, n)
		}
		txs[i].ID = id
	}
}

// SortByDate orders ascending by date, keeping input order for equal dates.
func SortByDate(txs []ledger.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.Before(txs[j].Date)
	})
}
