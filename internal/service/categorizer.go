package service

import (
	"context"
	"errors"
	"time"

	"github.com/jask/bankcat/internal/classifier"
	"github.com/jask/bankcat/internal/database/repository"
	"github.com/jask/bankcat/internal/ledger"
	"github.com/jask/bankcat/internal/logger"
	"github.com/jask/bankcat/internal/prefs"
	"github.com/jask/bankcat/internal/rules"
)

// CategorizerService applies categorization precedence: manual labels, then
// rules, then the statistical model.
type CategorizerService struct {
	Transactions *repository.TransactionRepo
	Labels       *repository.LabelRepo
	Runs         *repository.RuleRunRepo
	Rules        *prefs.RuleStore
	Categories   *prefs.CategoryStore
	Engine       *rules.Engine
	// Model may be nil, in which case only rules apply.
	Model     *classifier.Model
	Threshold float64
	Now       func() time.Time
}

// Outcome is the result of one categorization pass.
type Outcome struct {
	Transactions []ledger.Transaction
	MatchCounts  rules.MatchCounts
	Rules        []rules.RuleOutcome
	// Decisions holds the composed result of every row not labeled
	// manually, keyed by transaction id.
	Decisions   map[string]Decision
	Stats       Stats
	MLAvailable bool
	RunID       string
}

// Run categorizes the session's transactions, loading them from the
// database when the session is empty. Previous rule and ML results are
// recomputed; manual labels are kept.
func (s *CategorizerService) Run(ctx context.Context, sess *Session) (Outcome, error) {
	log := logger.FromContext(ctx)

	var txs []ledger.Transaction
	if sess.Loaded() {
		txs = sess.Transactions
	} else {
		var err error
		txs, err = s.Transactions.List(ctx, repository.TransactionFilters{})
		if err != nil {
			return Outcome{}, err
		}
	}

	work := ledger.CloneAll(txs)
	for i := range work {
		if !work[i].Manual() {
			work[i].Category, work[i].Subcategory, work[i].CategorizationSource = "", "", ""
		}
	}
	if s.Labels != nil {
		manual, err := s.Labels.List(ctx, ledger.SourceManual)
		if err != nil {
			return Outcome{}, err
		}
		idx := ledger.IndexByID(work)
		for _, l := range manual {
			if i, ok := idx[l.TransactionID]; ok {
				work[i].Category, work[i].Subcategory = l.Category, l.Subcategory
				work[i].CategorizationSource = ledger.SourceManual
			}
		}
	}

	var ruleList []rules.Rule
	if s.Rules != nil {
		ruleList = s.Rules.List()
		if s.Categories != nil {
			for _, stale := range s.Rules.StaleReferences(s.Categories.Load()) {
				log.Warn().Err(stale.Err).Str("rule_id", stale.RuleID).Str("rule", stale.RuleName).Msg("rule references a missing or inactive category")
			}
		}
	}
	engine := s.Engine
	if engine == nil {
		engine = rules.NewEngine(log)
	}
	run := engine.Run(work, ruleList)

	out := Outcome{
		Transactions: run.Transactions,
		MatchCounts:  run.Counts(),
		Rules:        run.Outcomes,
		Decisions:    map[string]Decision{},
	}
	predictions := s.predict(ctx, out.Transactions)
	out.MLAvailable = predictions != nil

	mlCount := 0
	for i := range out.Transactions {
		t := &out.Transactions[i]
		if t.Manual() {
			continue
		}
		rulePrediction := ""
		if t.Categorized() {
			rulePrediction = ledger.JoinLabel(t.Category, t.Subcategory)
		}
		p := predictions[t.ID]
		d := Compose(rulePrediction, p.Label, p.Confidence, s.Threshold)
		out.Decisions[t.ID] = d
		if d.Method == MethodML {
			t.Category, t.Subcategory = ledger.SplitLabel(d.Label)
			t.CategorizationSource = ledger.SourceML
			mlCount++
		}
	}
	out.Stats = ComputeStats(out.Transactions)

	if s.Transactions != nil {
		if err := s.Transactions.UpdateCategories(ctx, out.Transactions); err != nil {
			return Outcome{}, err
		}
	}
	if s.Runs != nil {
		rec := &repository.RuleRun{
			StartedAt:       s.now(),
			Transactions:    run.Summary.Transactions,
			RuleCategorized: run.Summary.Categorized,
			MLCategorized:   mlCount,
			Skipped:         run.Summary.Skipped,
		}
		for _, o := range run.Outcomes {
			c := repository.RuleRunCount{RuleID: o.RuleID, RuleName: o.RuleName, Matched: o.Matched}
			if o.Error != "" {
				msg := o.Error
				c.Error = &msg
			}
			rec.Counts = append(rec.Counts, c)
		}
		if err := s.Runs.Record(ctx, rec); err != nil {
			return Outcome{}, err
		}
		out.RunID = rec.ID
	}

	log.Info().
		Int("transactions", out.Stats.Total).
		Int("rule", run.Summary.Categorized).
		Int("ml", mlCount).
		Int("uncategorized", out.Stats.Uncategorized).
		Msg("categorization complete")
	if sess != nil {
		sess.Apply(out)
	}
	return out, nil
}

// predict returns ML predictions for uncategorized rows keyed by id, or nil
// when no model is available.
func (s *CategorizerService) predict(ctx context.Context, txs []ledger.Transaction) map[string]classifier.Prediction {
	var pending []ledger.Transaction
	for _, t := range txs {
		if !t.Categorized() {
			pending = append(pending, t)
		}
	}
	preds, err := s.Model.Predict(pending)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			log := logger.FromContext(ctx)
			log.Debug().Msg("no model loaded, rules only")
		} else {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("prediction failed, rules only")
		}
		return nil
	}
	out := make(map[string]classifier.Prediction, len(preds))
	for _, p := range preds {
		out[p.TransactionID] = p
	}
	return out
}

func (s *CategorizerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
