package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jask/bankcat/internal/database"
	"github.com/jask/bankcat/internal/ledger"
)

// LabelRepo stores the labeled-transactions table used for training.
type LabelRepo struct {
	db *sql.DB
}

func NewLabelRepo(db *sql.DB) *LabelRepo { return &LabelRepo{db: db} }

const labelTimeLayout = time.RFC3339

// UpsertManual writes manual labels, replacing any existing label for the
// same transaction.
func (r *LabelRepo) UpsertManual(ctx context.Context, labels []Label) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO labeled_transactions(transaction_id, category, subcategory, date_categorized, source)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			date_categorized = excluded.date_categorized,
			source = excluded.source`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, l := range labels {
			if _, err := stmt.ExecContext(ctx, l.TransactionID, l.Category, l.Subcategory,
				l.DateCategorized.UTC().Format(labelTimeLayout), ledger.SourceManual); err != nil {
				return fmt.Errorf("label %s: %w", l.TransactionID, err)
			}
		}
		return nil
	})
}

// UpsertAutomated writes rule or ML labels. Rows already labeled manually
// are left as they are. It returns the number of rows written.
func (r *LabelRepo) UpsertAutomated(ctx context.Context, labels []Label) (int, error) {
	written := 0
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO labeled_transactions(transaction_id, category, subcategory, date_categorized, source)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			date_categorized = excluded.date_categorized,
			source = excluded.source
		WHERE labeled_transactions.source != 'manual'`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, l := range labels {
			if l.Source == ledger.SourceManual {
				return fmt.Errorf("label %s: automated upsert with manual source", l.TransactionID)
			}
			res, err := stmt.ExecContext(ctx, l.TransactionID, l.Category, l.Subcategory,
				l.DateCategorized.UTC().Format(labelTimeLayout), l.Source)
			if err != nil {
				return fmt.Errorf("label %s: %w", l.TransactionID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	return written, err
}

// List returns every label ordered by transaction id. A non-empty source
// restricts the result to that source.
func (r *LabelRepo) List(ctx context.Context, source string) ([]Label, error) {
	query := `SELECT transaction_id, category, subcategory, date_categorized, source FROM labeled_transactions`
	var args []interface{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY transaction_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Get returns the label for id, or nil when the transaction is unlabeled.
func (r *LabelRepo) Get(ctx context.Context, id string) (*Label, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT transaction_id, category, subcategory, date_categorized, source
	FROM labeled_transactions WHERE transaction_id = ?`, id)
	l, err := scanLabel(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *LabelRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM labeled_transactions WHERE transaction_id = ?`, id)
	return err
}

func scanLabel(row scanner) (Label, error) {
	var l Label
	var when string
	if err := row.Scan(&l.TransactionID, &l.Category, &l.Subcategory, &when, &l.Source); err != nil {
		return Label{}, err
	}
	t, err := time.Parse(labelTimeLayout, when)
	if err != nil {
		return Label{}, fmt.Errorf("label %s date: %w", l.TransactionID, err)
	}
	l.DateCategorized = t
	return l, nil
}
