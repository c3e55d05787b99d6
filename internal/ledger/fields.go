package ledger

import "strings"

// Canonical field names used by rule conditions.
const (
	FieldID                   = "transaction_id"
	FieldDate                 = "date"
	FieldAmount               = "amount"
	FieldDescription          = "description"
	FieldCounterparty         = "counterparty"
	FieldCounterpartyAccount  = "counterparty_account"
	FieldAccount              = "account"
	FieldReference            = "reference"
	FieldBalanceAfter         = "balance_after"
	FieldCurrency             = "currency"
	FieldSequence             = "sequence"
	FieldSourceFile           = "source_file"
	FieldCategory             = "category"
	FieldSubcategory          = "subcategory"
	FieldCategorizationSource = "categorization_source"
)

// Fields lists the canonical fields in table order.
var Fields = []string{
	FieldID, FieldDate, FieldAmount, FieldDescription, FieldCounterparty,
	FieldCounterpartyAccount, FieldAccount, FieldReference, FieldBalanceAfter,
	FieldCurrency, FieldSequence, FieldSourceFile, FieldCategory, FieldSubcategory,
	FieldCategorizationSource,
}

// legacyFieldNames maps the rule editor's display names onto canonical names.
var legacyFieldNames = map[string]string{
	"transaction_id":        FieldID,
	"id":                    FieldID,
	"counterparty_name":     FieldCounterparty,
	"account_number":        FieldAccount,
	"transaction_reference": FieldReference,
	"payment_reference":     FieldReference,
	"sequence_number":       FieldSequence,
	"balance":               FieldBalanceAfter,
}

// CanonicalField resolves a user-supplied field name. The second return is
// false when the name is not one of the canonical fields.
func CanonicalField(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	if mapped, ok := legacyFieldNames[key]; ok {
		return mapped, true
	}
	for _, f := range Fields {
		if f == key {
			return f, true
		}
	}
	return "", false
}

// Field returns the value of a named field. Absent optional values report
// false so condition evaluation can treat them as non-matching.
func (t Transaction) Field(name string) (any, bool) {
	canonical, ok := CanonicalField(name)
	if !ok {
		return t.extraField(name)
	}
	switch canonical {
	case FieldID:
		return nonEmpty(t.ID)
	case FieldDate:
		if t.Date.IsZero() {
			return nil, false
		}
		return t.Date, true
	case FieldAmount:
		return t.Amount, true
	case FieldDescription:
		return nonEmpty(t.Description)
	case FieldCounterparty:
		return nonEmpty(t.Counterparty)
	case FieldCounterpartyAccount:
		return nonEmpty(t.CounterpartyAccount)
	case FieldAccount:
		return nonEmpty(t.Account)
	case FieldReference:
		return nonEmpty(t.Reference)
	case FieldBalanceAfter:
		if t.BalanceAfter == nil {
			return nil, false
		}
		return *t.BalanceAfter, true
	case FieldCurrency:
		return nonEmpty(t.Currency)
	case FieldSequence:
		return nonEmpty(t.Sequence)
	case FieldSourceFile:
		return nonEmpty(t.SourceFile)
	case FieldCategory:
		return nonEmpty(t.Category)
	case FieldSubcategory:
		return nonEmpty(t.Subcategory)
	case FieldCategorizationSource:
		return nonEmpty(t.CategorizationSource)
	}
	return nil, false
}

func (t Transaction) extraField(name string) (any, bool) {
	if len(t.Extra) == 0 {
		return nil, false
	}
	if v, ok := t.Extra[name]; ok {
		return nonEmpty(v)
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for k, v := range t.Extra {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return nonEmpty(v)
		}
	}
	return nil, false
}

func nonEmpty(s string) (any, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	return s, true
}

// LabelSeparator joins category and subcategory into one classifier label.
const LabelSeparator = " > "

// JoinLabel builds a composite "Category > Subcategory" label.
func JoinLabel(category, subcategory string) string {
	category = strings.TrimSpace(category)
	subcategory = strings.TrimSpace(subcategory)
	if subcategory == "" {
		return category
	}
	return category + LabelSeparator + subcategory
}

// SplitLabel is the inverse of JoinLabel.
func SplitLabel(label string) (category, subcategory string) {
	parts := strings.SplitN(label, ">", 2)
	category = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		subcategory = strings.TrimSpace(parts[1])
	}
	return category, subcategory
}
