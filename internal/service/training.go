package service

import (
	"context"

	"github.com/jask/bankcat/internal/classifier"
	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/logger"
)

// TrainingService builds the statistical model from the labeled dataset.
type TrainingService struct {
	Transactions *repository.TransactionRepo
	Labels       *repository.LabelRepo
	// ModelPath, when set, is where Train saves and Load reads the model.
	ModelPath        string
	IncludeAutomated bool
	Options          classifier.Options
}

// Examples joins labels to their canonical transactions. Labels whose
// transaction is no longer in the table are dropped.
func (s *TrainingService) Examples(ctx context.Context) ([]classifier.Example, error) {
	source := ledger.SourceManual
	if s.IncludeAutomated {
		source = ""
	}
	labels, err := s.Labels.List(ctx, source)
	if err != nil {
		return nil, err
	}
	txs, err := s.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return nil, err
	}
	idx := ledger.IndexByID(txs)
	out := make([]classifier.Example, 0, len(labels))
	missing := 0
	for _, l := range labels {
		i, ok := idx[l.TransactionID]
		if !ok {
			missing++
			continue
		}
		out = append(out, classifier.Example{
			Transaction: txs[i],
			Label:       ledger.JoinLabel(l.Category, l.Subcategory),
		})
	}
	if missing > 0 {
		log := logger.FromContext(ctx)
		log.Warn().Int("labels", missing).Msg("labels without a matching transaction ignored")
	}
	return out, nil
}

// Train fits a model on the labeled dataset and saves it to ModelPath.
func (s *TrainingService) Train(ctx context.Context) (*classifier.Model, classifier.Summary, error) {
	examples, err := s.Examples(ctx)
	if err != nil {
		return nil, classifier.Summary{}, err
	}
	opts := s.Options
	opts.Logger = logger.FromContext(ctx)
	model, summary, err := classifier.Train(examples, opts)
	if err != nil {
		return nil, classifier.Summary{}, err
	}
	if s.ModelPath != "" {
		if err := model.SaveFile(s.ModelPath); err != nil {
			return nil, classifier.Summary{}, err
		}
	}
	return model, summary, nil
}

// Load reads the saved model. Failures are logged and reported as a nil
// model so callers fall back to rules only.
func (s *TrainingService) Load(ctx context.Context) *classifier.Model {
	if s.ModelPath == "" {
		return nil
	}
	m, err := classifier.LoadFile(s.ModelPath)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("path", s.ModelPath).Msg("model not loaded, rules only")
		return nil
	}
	return m
}
