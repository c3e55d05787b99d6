package normalize

import "strings"

// Canonical column keys produced by header mapping. The three description
// keys are merged into ledger.Transaction.Description.
const (
	colDate                = "date"
	colAmount              = "amount"
	colDescription         = "description"
	colDescription2        = "description_2"
	colDescription3        = "description_3"
	colCounterparty        = "counterparty"
	colCounterpartyAccount = "counterparty_account"
	colAccount             = "account"
	colReference           = "reference"
	colBalanceAfter        = "balance_after"
	colCurrency            = "currency"
	colSequence            = "sequence"
)

// Alias lists a canonical column and the source headers known to carry it.
type Alias struct {
	Column  string
	Headers []string
}

// DefaultAliases covers Rabobank and ABN AMRO exports (Dutch) and generic
// English exports. Order matters: within a column the first alias present in
// the file wins.
var DefaultAliases = []Alias{
	{Column: colDate, Headers: []string{
		"Datum", "Transactiedatum", "Boekdatum", "Date", "Transaction Date", "Booking Date",
		"Valutadatum", "Rentedatum",
	}},
	{Column: colAmount, Headers: []string{
		"Bedrag", "Transactiebedrag", "Amount", "Transaction Amount", "Value", "Mutatie",
	}},
	{Column: colDescription, Headers: []string{
		"Omschrijving-1", "Omschrijving", "Description", "Details", "Memo", "Mededelingen",
	}},
	{Column: colDescription2, Headers: []string{"Omschrijving-2", "Description 2"}},
	{Column: colDescription3, Headers: []string{"Omschrijving-3", "Description 3"}},
	{Column: colCounterparty, Headers: []string{
		"Naam tegenpartij", "Tegenpartij", "Counterparty", "Counterparty Name", "Beneficiary", "Payee",
	}},
	{Column: colCounterpartyAccount, Headers: []string{
		"Tegenrekening IBAN/BBAN", "Tegenrekening", "Counterparty Account",
	}},
	{Column: colAccount, Headers: []string{
		"IBAN/BBAN", "Rekeningnummer", "Rekening", "Account", "Account Number", "IBAN",
	}},
	{Column: colReference, Headers: []string{
		"Betalingskenmerk", "Transactiereferentie", "Reference", "Payment Reference",
	}},
	{Column: colBalanceAfter, Headers: []string{
		"Saldo na trn", "Saldo", "Eindsaldo", "Balance", "Balance After",
	}},
	{Column: colCurrency, Headers: []string{"Munt", "Muntsoort", "Valuta", "Currency"}},
	{Column: colSequence, Headers: []string{"Volgnr", "Volgnummer", "Sequence", "Sequence Number"}},
}

// columnMap maps header positions to canonical columns; unmapped positions
// keep their original header.
type columnMap struct {
	canonical map[string]int
	extra     map[int]string
}

func mapColumns(header []string, aliases []Alias) columnMap {
	cm := columnMap{canonical: map[string]int{}, extra: map[int]string{}}
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}
	taken := make(map[int]bool, len(header))
	for _, a := range aliases {
	aliasLoop:
		for _, alias := range a.Headers {
			want := strings.ToLower(strings.TrimSpace(alias))
			for i, h := range normalized {
				if taken[i] || h != want {
					continue
				}
				cm.canonical[a.Column] = i
				taken[i] = true
				break aliasLoop
			}
		}
	}
	for i, h := range header {
		if taken[i] {
			continue
		}
		name := strings.TrimSpace(h)
		if name == "" {
			continue
		}
		cm.extra[i] = name
	}
	return cm
}

func (cm columnMap) value(rec []string, column string) string {
	i, ok := cm.canonical[column]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (cm columnMap) has(column string) bool {
	_, ok := cm.canonical[column]
	return ok
}
