package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jask/bankcat/internal/database"
)

// RuleRunRepo keeps the history of categorization passes.
type RuleRunRepo struct {
	db *sql.DB
}

func NewRuleRunRepo(db *sql.DB) *RuleRunRepo { return &RuleRunRepo{db: db} }

// Record stores run and its per-rule counts. An empty ID is filled in.
func (r *RuleRunRepo) Record(ctx context.Context, run *RuleRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = database.Now()
	}
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO rule_runs(id, started_at, transactions, rule_categorized, ml_categorized, skipped)
		VALUES(?, ?, ?, ?, ?, ?)`,
			run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.Transactions,
			run.RuleCategorized, run.MLCategorized, run.Skipped); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, c := range run.Counts {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_run_counts(run_id, rule_id, rule_name, matched, error)
			VALUES(?, ?, ?, ?, ?)`, run.ID, c.RuleID, c.RuleName, c.Matched, c.Error); err != nil {
				return fmt.Errorf("insert count %s: %w", c.RuleID, err)
			}
		}
		return nil
	})
}

// List returns up to limit runs, newest first, without their counts.
func (r *RuleRunRepo) List(ctx context.Context, limit int) ([]RuleRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, started_at, transactions, rule_categorized, ml_categorized, skipped
	FROM rule_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleRun
	for rows.Next() {
		run, err := scanRuleRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Latest returns the most recent run with its counts, or nil when no run
// has been recorded.
func (r *RuleRunRepo) Latest(ctx context.Context) (*RuleRun, error) {
	runs, err := r.List(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	run := runs[0]
	rows, err := r.db.QueryContext(ctx, `
	SELECT rule_id, rule_name, matched, error FROM rule_run_counts
	WHERE run_id = ? ORDER BY matched DESC, rule_name`, run.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c RuleRunCount
		var msg sql.NullString
		if err := rows.Scan(&c.RuleID, &c.RuleName, &c.Matched, &msg); err != nil {
			return nil, err
		}
		if msg.Valid {
			s := msg.String
			c.Error = &s
		}
		run.Counts = append(run.Counts, c)
	}
	return &run, rows.Err()
}

func scanRuleRun(row scanner) (RuleRun, error) {
	var run RuleRun
	var started string
	if err := row.Scan(&run.ID, &started, &run.Transactions, &run.RuleCategorized,
		&run.MLCategorized, &run.Skipped); err != nil {
		return RuleRun{}, err
	}
	t, err := time.Parse(time.RFC3339, started)
	if err != nil {
		return RuleRun{}, fmt.Errorf("run %s started_at: %w", run.ID, err)
	}
	run.StartedAt = t
	return run, nil
}
