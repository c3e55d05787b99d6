package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jask/bankcat/internal/database"
	"github.com/jask/bankcat/internal/ledger"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	Category      string
	Uncategorized bool
	From, To      time.Time // inclusive calendar dates; zero = open
	Search        string
	Limit         int
}

// TransactionRepo stores the canonical transaction table.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, date, amount, description, counterparty, counterparty_account, account,
	reference, balance_after, currency, sequence, source_file, category, subcategory,
	categorization_source, extra`

// ReplaceAll swaps the whole table for txs, keeping their order.
func (r *TransactionRepo) ReplaceAll(ctx context.Context, txs []ledger.Transaction) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions(position, `+transactionColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, t := range txs {
			extra, err := encodeExtra(t.Extra)
			if err != nil {
				return fmt.Errorf("%s extra: %w", t.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, i,
				t.ID, t.Date.Format(ledger.DateLayout), t.Amount, t.Description,
				nullable(t.Counterparty), nullable(t.CounterpartyAccount), nullable(t.Account),
				nullable(t.Reference), t.BalanceAfter, nullable(t.Currency), nullable(t.Sequence),
				nullable(t.SourceFile), nullable(t.Category), nullable(t.Subcategory),
				nullable(t.CategorizationSource), extra); err != nil {
				return fmt.Errorf("insert %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// UpdateCategories writes the category columns of txs back by id.
func (r *TransactionRepo) UpdateCategories(ctx context.Context, txs []ledger.Transaction) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions SET category = ?, subcategory = ?, categorization_source = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range txs {
			if _, err := stmt.ExecContext(ctx, nullable(t.Category), nullable(t.Subcategory),
				nullable(t.CategorizationSource), t.ID); err != nil {
				return fmt.Errorf("update %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]ledger.Transaction, error) {
	var where []string
	var args []interface{}

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Uncategorized {
		where = append(where, "(category IS NULL OR category = '')")
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.Format(ledger.DateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.Format(ledger.DateLayout))
	}
	if f.Search != "" {
		where = append(where, "(description LIKE ? OR counterparty LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY position"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns the transaction with id, or nil when there is none.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*ledger.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Count returns the number of stored transactions.
func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// scanner covers both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var date string
	var counterparty, counterpartyAccount, account, reference, currency, sequence sql.NullString
	var sourceFile, category, subcategory, source, extra sql.NullString
	var balance sql.NullFloat64
	if err := row.Scan(&t.ID, &date, &t.Amount, &t.Description, &counterparty, &counterpartyAccount,
		&account, &reference, &balance, &currency, &sequence, &sourceFile, &category, &subcategory,
		&source, &extra); err != nil {
		return ledger.Transaction{}, err
	}
	d, err := time.Parse(ledger.DateLayout, date)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	t.Date = d
	t.Counterparty = counterparty.String
	t.CounterpartyAccount = counterpartyAccount.String
	t.Account = account.String
	t.Reference = reference.String
	t.Currency = currency.String
	t.Sequence = sequence.String
	t.SourceFile = sourceFile.String
	t.Category = category.String
	t.Subcategory = subcategory.String
	t.CategorizationSource = source.String
	if balance.Valid {
		v := balance.Float64
		t.BalanceAfter = &v
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &t.Extra); err != nil {
			return ledger.Transaction{}, fmt.Errorf("transaction %s extra: %w", t.ID, err)
		}
	}
	return t, nil
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func encodeExtra(extra map[string]string) (*string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
