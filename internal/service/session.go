package service

import (
	"github.com/jask/bankcat/internal/ledger"
)

// Session is the state of one working session: the loaded transactions,
// the last categorization outcome and the manual labeling cursor. It is
// owned by the caller and passed to the services that need it.
type Session struct {
	Transactions []ledger.Transaction
	Outcome      *Outcome

	cursor int
}

// NewSession starts a session over txs.
func NewSession(txs []ledger.Transaction) *Session {
	return &Session{Transactions: txs}
}

// Loaded reports whether transactions have been loaded.
func (s *Session) Loaded() bool { return s != nil && s.Transactions != nil }

// Apply replaces the session's transactions with the outcome's.
func (s *Session) Apply(o Outcome) {
	s.Outcome = &o
	s.Transactions = o.Transactions
	s.cursor = 0
}

// NextUncategorized returns the next uncategorized transaction at or after
// the cursor and moves the cursor onto it.
func (s *Session) NextUncategorized() (ledger.Transaction, bool) {
	for i := s.cursor; i < len(s.Transactions); i++ {
		if !s.Transactions[i].Categorized() {
			s.cursor = i
			return s.Transactions[i], true
		}
	}
	s.cursor = len(s.Transactions)
	return ledger.Transaction{}, false
}

// Skip moves the cursor past the current transaction.
func (s *Session) Skip() {
	if s.cursor < len(s.Transactions) {
		s.cursor++
	}
}

// Mark records a manual label on the session copy of transaction id.
func (s *Session) Mark(id, category, subcategory string) bool {
	for i := range s.Transactions {
		if s.Transactions[i].ID == id {
			s.Transactions[i].Category = category
			s.Transactions[i].Subcategory = subcategory
			s.Transactions[i].CategorizationSource = ledger.SourceManual
			return true
		}
	}
	return false
}

// Rewind resets the labeling cursor.
func (s *Session) Rewind() { s.cursor = 0 }
