package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jask/bankcat/internal/backup"
	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/logger"
	"github.com/jask/bankcat/internal/prefs"
)

// BackupService creates and restores backup packages.
type BackupService struct {
	Categories   *prefs.CategoryStore
	Rules        *prefs.RuleStore
	Transactions *repository.TransactionRepo
	Labels       *repository.LabelRepo
	Dir          string
	Now          func() time.Time
}

func (s *BackupService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create writes a package into Dir and returns its path.
func (s *BackupService) Create(ctx context.Context) (string, backup.Manifest, error) {
	c := backup.Contents{
		Categories: s.Categories.Load(),
		Rules:      s.Rules.Load(),
	}
	if s.Transactions != nil {
		txs, err := s.Transactions.List(ctx, repository.TransactionFilters{})
		if err != nil {
			return "", backup.Manifest{}, err
		}
		if len(txs) > 0 {
			c.Transactions = txs
		}
	}
	if s.Labels != nil {
		labels, err := s.Labels.List(ctx, "")
		if err != nil {
			return "", backup.Manifest{}, err
		}
		if len(labels) > 0 {
			c.Labels = labels
		}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", backup.Manifest{}, fmt.Errorf("create backup dir: %w", err)
	}
	now := s.now()
	path := filepath.Join(s.Dir, backup.FileName(now))
	m, err := backup.CreateFile(path, c, now)
	if err != nil {
		return "", backup.Manifest{}, fmt.Errorf("backup: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("path", path).Strs("files", m.FilesIncluded).Msg("backup created")
	return path, m, nil
}

// RestoreOptions select what a restore replaces besides the documents.
type RestoreOptions struct {
	Transactions bool
	Labels       bool
}

// Restore replaces the live categories and rules documents with the ones
// in the package at path. Both documents are validated before either is
// written.
func (s *BackupService) Restore(ctx context.Context, path string, opts RestoreOptions) (backup.Manifest, error) {
	a, err := backup.OpenFile(path)
	if err != nil {
		return backup.Manifest{}, err
	}
	defer a.Close()

	cats, rs, err := a.Documents()
	if err != nil {
		return backup.Manifest{}, err
	}
	if opts.Transactions && a.Has(backup.TransactionsFile) {
		txs, err := a.Transactions()
		if err != nil {
			return backup.Manifest{}, err
		}
		if err := s.Transactions.ReplaceAll(ctx, txs); err != nil {
			return backup.Manifest{}, err
		}
	}
	if opts.Labels && a.Has(backup.LabelsFile) {
		labels, err := a.Labels()
		if err != nil {
			return backup.Manifest{}, err
		}
		svc := LabelService{Labels: s.Labels, Now: s.Now}
		if err := svc.restore(ctx, labels); err != nil {
			return backup.Manifest{}, err
		}
	}
	if err := s.Categories.Save(cats); err != nil {
		return backup.Manifest{}, err
	}
	if err := s.Rules.Save(rs); err != nil {
		return backup.Manifest{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("path", path).Msg("backup restored")
	return a.Manifest(), nil
}
