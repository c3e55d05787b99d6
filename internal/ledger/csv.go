package ledger

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExtraColumn holds a row's unmapped source columns as a JSON object.
const ExtraColumn = "extra"

// WriteCSV writes the canonical table followed by the extra column.
func WriteCSV(w io.Writer, txs []Transaction) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, Fields...), ExtraColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txs {
		balance := ""
		if t.BalanceAfter != nil {
			balance = strconv.FormatFloat(*t.BalanceAfter, 'f', 2, 64)
		}
		date := ""
		if !t.Date.IsZero() {
			date = t.Date.Format(DateLayout)
		}
		rec := []string{
			t.ID, date, strconv.FormatFloat(t.Amount, 'f', 2, 64), t.Description, t.Counterparty,
			t.CounterpartyAccount, t.Account, t.Reference, balance,
			t.Currency, t.Sequence, t.SourceFile, t.Category, t.Subcategory,
			t.CategorizationSource, "",
		}
		if len(t.Extra) > 0 {
			b, err := json.Marshal(t.Extra)
			if err != nil {
				return fmt.Errorf("%s extra: %w", t.ID, err)
			}
			rec[len(rec)-1] = string(b)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table produced by WriteCSV. Columns are matched by header
// name so older files with fewer columns still load. A leading BOM is
// ignored.
func ReadCSV(r io.Reader) ([]Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := pos[FieldID]; !ok {
		return nil, fmt.Errorf("missing %s column", FieldID)
	}

	var out []Transaction
	line := 1
	for {
		line++
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(field string) string {
			i, ok := pos[field]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		t := Transaction{
			ID:                   get(FieldID),
			Description:          get(FieldDescription),
			Counterparty:         get(FieldCounterparty),
			CounterpartyAccount:  get(FieldCounterpartyAccount),
			Account:              get(FieldAccount),
			Reference:            get(FieldReference),
			Currency:             get(FieldCurrency),
			Sequence:             get(FieldSequence),
			SourceFile:           get(FieldSourceFile),
			Category:             get(FieldCategory),
			Subcategory:          get(FieldSubcategory),
			CategorizationSource: get(FieldCategorizationSource),
		}
		if s := get(FieldDate); s != "" {
			d, err := time.Parse(DateLayout, s)
			if err != nil {
				return nil, fmt.Errorf("line %d date: %w", line, err)
			}
			t.Date = d
		}
		if s := get(FieldAmount); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d amount: %w", line, err)
			}
			t.Amount = v
		}
		if s := get(FieldBalanceAfter); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d balance_after: %w", line, err)
			}
			t.BalanceAfter = &v
		}
		if s := get(ExtraColumn); s != "" {
			if err := json.Unmarshal([]byte(s), &t.Extra); err != nil {
				return nil, fmt.Errorf("line %d extra: %w", line, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
