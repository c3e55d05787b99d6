package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/logger"
	"github.com/jask/bankcat/internal/prefs"
)

var ErrUnknownTransaction = errors.New("unknown transaction")

// LabelService maintains the labeled dataset.
type LabelService struct {
	Labels       *repository.LabelRepo
	Transactions *repository.TransactionRepo
	// Categories, when set, validates manual labels.
	Categories *prefs.CategoryStore
	Now        func() time.Time
}

func (s *LabelService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Label records a manual label for transaction id and writes it onto the
// canonical row.
func (s *LabelService) Label(ctx context.Context, id, category, subcategory string) error {
	category, subcategory = strings.TrimSpace(category), strings.TrimSpace(subcategory)
	tx, err := s.Transactions.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if s.Categories != nil {
		if err := s.Categories.Load().ValidatePair(category, subcategory); err != nil {
			return err
		}
	}
	if err := s.Labels.UpsertManual(ctx, []repository.Label{{
		TransactionID: id, Category: category, Subcategory: subcategory, DateCategorized: s.now(),
	}}); err != nil {
		return err
	}
	tx.Category, tx.Subcategory, tx.CategorizationSource = category, subcategory, ledger.SourceManual
	return s.Transactions.UpdateCategories(ctx, []ledger.Transaction{*tx})
}

// MergeOutcome adds the rule and ML results of o to the labeled dataset.
// Transactions labeled manually keep their manual label. It returns the
// number of labels written.
func (s *LabelService) MergeOutcome(ctx context.Context, o Outcome) (int, error) {
	now := s.now()
	var labels []repository.Label
	for _, t := range o.Transactions {
		if !t.Categorized() || t.Manual() || t.CategorizationSource == "" {
			continue
		}
		labels = append(labels, repository.Label{
			TransactionID:   t.ID,
			Category:        t.Category,
			Subcategory:     t.Subcategory,
			DateCategorized: now,
			Source:          t.CategorizationSource,
		})
	}
	n, err := s.Labels.UpsertAutomated(ctx, labels)
	if err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	log.Info().Int("candidates", len(labels)).Int("written", n).Msg("automated labels merged")
	return n, nil
}

// Export writes the labeled dataset as CSV.
func (s *LabelService) Export(ctx context.Context, w io.Writer) (int, error) {
	labels, err := s.Labels.List(ctx, "")
	if err != nil {
		return 0, err
	}
	if err := repository.WriteLabelsCSV(w, labels); err != nil {
		return 0, err
	}
	return len(labels), nil
}

// Import reads a labeled dataset CSV. Manual rows replace existing labels;
// other rows never replace a manual label.
func (s *LabelService) Import(ctx context.Context, r io.Reader) (int, error) {
	labels, err := repository.ReadLabelsCSV(r)
	if err != nil {
		return 0, err
	}
	if err := s.restore(ctx, labels); err != nil {
		return 0, err
	}
	return len(labels), nil
}

func (s *LabelService) restore(ctx context.Context, labels []repository.Label) error {
	now := s.now()
	var manual, automated []repository.Label
	for _, l := range labels {
		if l.DateCategorized.IsZero() {
			l.DateCategorized = now
		}
		if l.Source == ledger.SourceManual {
			manual = append(manual, l)
		} else {
			automated = append(automated, l)
		}
	}
	if err := s.Labels.UpsertManual(ctx, manual); err != nil {
		return err
	}
	_, err := s.Labels.UpsertAutomated(ctx, automated)
	return err
}
