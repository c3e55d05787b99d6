package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jask/bankcat/internal/ledger"
)

// LabelColumns is the header of the labeled dataset file.
var LabelColumns = []string{"Transaction_ID", "Category", "Subcategory", "Date_Categorized", "Source"}

// LabelTimeLayout is the timestamp format of Date_Categorized.
const LabelTimeLayout = "2006-01-02 15:04:05"

// WriteLabelsCSV writes labels as the labeled dataset file.
func WriteLabelsCSV(w io.Writer, labels []Label) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LabelColumns); err != nil {
		return err
	}
	for _, l := range labels {
		if err := cw.Write([]string{
			l.TransactionID, l.Category, l.Subcategory,
			l.DateCategorized.UTC().Format(LabelTimeLayout), l.Source,
		}); err != nil {
			return fmt.Errorf("write label %s: %w", l.TransactionID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLabelsCSV reads a labeled dataset file. Headers match case-insensitively,
// rows without a transaction id or category are skipped and a later row for
// the same id replaces an earlier one.
func ReadLabelsCSV(r io.Reader) ([]Label, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := map[string]int{}
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range []string{"transaction_id", "category"} {
		if _, ok := pos[col]; !ok {
			return nil, fmt.Errorf("missing %s column", col)
		}
	}
	get := func(rec []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Label
	seen := map[string]int{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		l := Label{
			TransactionID: get(rec, "transaction_id"),
			Category:      get(rec, "category"),
			Subcategory:   get(rec, "subcategory"),
			Source:        normalizeSource(get(rec, "source")),
		}
		if l.TransactionID == "" || l.Category == "" {
			continue
		}
		if ts := get(rec, "date_categorized"); ts != "" {
			l.DateCategorized, err = parseLabelTime(ts)
			if err != nil {
				return nil, fmt.Errorf("line %d date_categorized: %w", line, err)
			}
		}
		if i, ok := seen[l.TransactionID]; ok {
			out[i] = l
			continue
		}
		seen[l.TransactionID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func normalizeSource(s string) string {
	switch {
	case s == "", strings.EqualFold(s, ledger.SourceManual):
		return ledger.SourceManual
	case strings.EqualFold(s, ledger.SourceML):
		return ledger.SourceML
	}
	return s
}

func parseLabelTime(s string) (time.Time, error) {
	for _, layout := range []string{LabelTimeLayout, time.RFC3339, ledger.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
