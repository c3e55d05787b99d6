package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/jask/bankcat/internal/classifier"
	"github.com/jask/bankcat/internal/config"
	"github.com/jask/bankcat/internal/database"
	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/logger"
	"github.com/jask/bankcat/internal/normalize"
	"github.com/jask/bankcat/internal/prefs"
	"github.com/jask/bankcat/internal/rules"
	"github.com/jask/bankcat/internal/service"
)

// app wires the stores and services for one command invocation.
type app struct {
	cfg config.Config
	log zerolog.Logger
	db  *sql.DB
	in  io.Reader
	out io.Writer

	transactions *repository.TransactionRepo
	labels       *repository.LabelRepo
	runs         *repository.RuleRunRepo
	categories   *prefs.CategoryStore
	rules        *prefs.RuleStore
}

func newApp(cfg config.Config, log zerolog.Logger, in io.Reader, out io.Writer) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	cats := prefs.NewCategoryStore(cfg.Documents.Categories, log)
	return &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		in:           in,
		out:          out,
		transactions: repository.NewTransactionRepo(db),
		labels:       repository.NewLabelRepo(db),
		runs:         repository.NewRuleRunRepo(db),
		categories:   cats,
		rules:        prefs.NewRuleStore(cfg.Documents.Rules, cats, log),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}

func (a *app) ingester() *service.IngestService {
	return &service.IngestService{
		Normalizer:   normalize.New(a.log),
		Transactions: a.transactions,
		TablePath:    a.cfg.Import.Table,
	}
}

func (a *app) trainer() *service.TrainingService {
	return &service.TrainingService{
		Transactions:     a.transactions,
		Labels:           a.labels,
		ModelPath:        a.cfg.Model.Path,
		IncludeAutomated: a.cfg.ML.IncludeAutomated,
		Options: classifier.Options{
			TestSize:       a.cfg.ML.TestSize,
			Seed:           a.cfg.ML.RandomState,
			AmountFeatures: a.cfg.ML.AmountFeatures,
			Logger:         a.log,
		},
	}
}

func (a *app) maintenance() *service.MaintenanceService {
	return &service.MaintenanceService{DB: a.db}
}

func (a *app) suggester() *service.SuggestService {
	return &service.SuggestService{Transactions: a.transactions, Labels: a.labels}
}

func (a *app) categorizer(ctx context.Context) *service.CategorizerService {
	return &service.CategorizerService{
		Transactions: a.transactions,
		Labels:       a.labels,
		Runs:         a.runs,
		Rules:        a.rules,
		Categories:   a.categories,
		Engine:       rules.NewEngine(a.log),
		Model:        a.trainer().Load(ctx),
		Threshold:    a.cfg.ML.ConfidenceThreshold,
	}
}

func (a *app) labeler() *service.LabelService {
	return &service.LabelService{Labels: a.labels, Transactions: a.transactions, Categories: a.categories}
}

func (a *app) backups() *service.BackupService {
	return &service.BackupService{
		Categories:   a.categories,
		Rules:        a.rules,
		Transactions: a.transactions,
		Labels:       a.labels,
		Dir:          a.cfg.Backup.Dir,
	}
}
