package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/bankcat/internal/database"
)

// MaintenanceService houses destructive actions.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes the transaction table, the labeled dataset and the run
// history. The schema and the categories and rules documents are kept.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"rule_run_counts",
			"rule_runs",
			"labeled_transactions",
			"transactions",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
