package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/logger"
	"github.com/jask/bankcat/internal/normalize"
)

// IngestService normalizes a directory of bank exports into the canonical
// table.
type IngestService struct {
	Normalizer   *normalize.Normalizer
	Transactions *repository.TransactionRepo
	// TablePath, when set, also receives the table as CSV.
	TablePath string
}

// Import normalizes every export under dir and replaces the canonical table
// with the result. Unreadable files and rows are reported in the result,
// not as an error.
func (s *IngestService) Import(ctx context.Context, dir string) (normalize.Result, error) {
	log := logger.FromContext(ctx)
	n := s.Normalizer
	if n == nil {
		n = normalize.New(log)
	}
	res, err := n.LoadDir(dir)
	if err != nil {
		return normalize.Result{}, err
	}
	if err := s.Transactions.ReplaceAll(ctx, res.Transactions); err != nil {
		return normalize.Result{}, fmt.Errorf("store transactions: %w", err)
	}
	if s.TablePath != "" {
		if err := writeTable(s.TablePath, res.Transactions); err != nil {
			return normalize.Result{}, err
		}
	}
	log.Info().
		Int("files", res.FilesLoaded).
		Int("skipped_files", res.FilesSkipped).
		Int("transactions", len(res.Transactions)).
		Int("dropped_rows", res.RowsDropped).
		Int("duplicates", res.DuplicatesRemoved).
		Msg("import complete")
	return res, nil
}

func writeTable(path string, txs []ledger.Transaction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".table-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := ledger.WriteCSV(tmp, txs); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
