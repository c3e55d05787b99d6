package classifier

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankcat/internal/ledger"
)

func example(desc string, amount float64, label string) Example {
	return Example{
		Transaction: ledger.Transaction{
			ID:          desc,
			Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			Amount:      amount,
			Description: desc,
		},
		Label: label,
	}
}

func corpus() []Example {
	var out []Example
	for _, d := range []string{"ALBERT HEIJN 1234", "ALBERT HEIJN 5678", "AH TO GO", "JUMBO SUPERMARKT", "ALBERT HEIJN XL", "JUMBO CITY"} {
		out = append(out, example(d, -25, "Food > Groceries"))
	}
	for _, d := range []string{"NETFLIX.COM", "NETFLIX INTERNATIONAL", "SPOTIFY AB", "SPOTIFY PREMIUM", "NETFLIX MONTHLY", "DISNEY PLUS"} {
		out = append(out, example(d, -12.99, "Fixed Costs > Subscriptions"))
	}
	return out
}

func TestTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"albert", "heijn", "1234", "albert heijn", "heijn 1234"}, Tokens("ALBERT  HEIJN/1234"))
	require.Empty(t, Tokens(" -- "))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	f := Extract(ledger.Transaction{
		Date:         time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		Amount:       600,
		Description:  "SALARIS  ACME",
		Counterparty: "Acme BV",
	})
	require.Equal(t, "salaris acme acme bv", f.Text)
	require.True(t, f.IsIncome)
	require.True(t, f.IsLargeAmount)
	require.True(t, f.IsWeekend)
	require.Equal(t, 5, f.DayOfWeek)
	require.Equal(t, 1, f.Month)
	require.InDelta(t, 6.398, f.AmountLog, 0.001)

	f = Extract(ledger.Transaction{Date: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Amount: -500})
	require.False(t, f.IsIncome)
	require.False(t, f.IsLargeAmount)
	require.False(t, f.IsWeekend)
	require.Zero(t, f.DayOfWeek)
}

func TestTrainAndPredict(t *testing.T) {
	t.Parallel()

	model, summary, err := Train(corpus(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.False(t, summary.SmallDataset)
	require.Equal(t, 10, summary.TrainingSamples)
	require.Equal(t, 2, summary.TestSamples)
	require.Equal(t, []string{"Fixed Costs > Subscriptions", "Food > Groceries"}, summary.Labels)
	require.Equal(t, ModelType, summary.ModelType)

	preds, err := model.Predict([]ledger.Transaction{
		{ID: "a", Description: "ALBERT HEIJN 9999"},
		{ID: "b", Description: "NETFLIX.COM"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	require.Equal(t, "a", preds[0].TransactionID)
	require.Equal(t, "Food > Groceries", preds[0].Label)
	require.Greater(t, preds[0].Confidence, 0.7)
	require.LessOrEqual(t, preds[0].Confidence, 1.0)
	require.Equal(t, "Fixed Costs > Subscriptions", preds[1].Label)
}

func TestTrainSmallDataset(t *testing.T) {
	t.Parallel()

	examples := []Example{
		example("ALBERT HEIJN", -10, "Groceries"),
		example("JUMBO", -10, "Groceries"),
		example("NETFLIX", -10, "Streaming"),
		example("SPOTIFY", -10, "Streaming"),
		example("MYSTERY", -10, "unknown"),
		example("BLANK", -10, ""),
	}
	_, summary, err := Train(examples, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.True(t, summary.SmallDataset)
	require.Equal(t, 4, summary.TrainingSamples)
	require.Equal(t, 4, summary.TestSamples)
	require.Equal(t, 1.0, summary.Accuracy)
	require.Equal(t, 2, summary.PerClass["Groceries"].Support)
}

func TestTrainErrors(t *testing.T) {
	t.Parallel()

	_, _, err := Train(nil, Options{})
	require.ErrorIs(t, err, ErrNoTrainingData)

	_, _, err = Train([]Example{example("X", 1, "unknown"), example("Y", 1, " ")}, Options{})
	require.ErrorIs(t, err, ErrNoTrainingData)

	_, _, err = Train([]Example{example("X", 1, "Food"), example("Y", 1, "Food")}, Options{})
	require.ErrorIs(t, err, ErrTooFewClasses)
}

func TestStratifiedSplit(t *testing.T) {
	t.Parallel()

	var samples []sample
	for i := 0; i < 20; i++ {
		samples = append(samples, sample{doc: []string{"a"}, label: "A"})
	}
	for i := 0; i < 10; i++ {
		samples = append(samples, sample{doc: []string{"b"}, label: "B"})
	}
	samples = append(samples, sample{doc: []string{"c"}, label: "C"})

	train, test := stratifiedSplit(samples, []string{"A", "B", "C"}, 0.2, 42)
	count := func(set []sample, label string) int {
		n := 0
		for _, s := range set {
			if s.label == label {
				n++
			}
		}
		return n
	}
	require.Equal(t, 4, count(test, "A"))
	require.Equal(t, 2, count(test, "B"))
	require.Zero(t, count(test, "C"), "singleton classes stay in training")
	require.Equal(t, 16, count(train, "A"))
	require.Equal(t, 1, count(train, "C"))
}

func TestReport(t *testing.T) {
	t.Parallel()

	s := report(
		[]string{"A", "A", "A", "B"},
		[]string{"A", "A", "B", "B"},
	)
	require.Equal(t, 0.75, s.Accuracy)
	require.Equal(t, 1.0, s.PerClass["A"].Precision)
	require.InDelta(t, 2.0/3.0, s.PerClass["A"].Recall, 1e-9)
	require.Equal(t, 0.5, s.PerClass["B"].Precision)
	require.Equal(t, 1.0, s.PerClass["B"].Recall)
	require.InDelta(t, (1.0+0.5)/2, s.MacroAvg.Precision, 1e-9)
	require.InDelta(t, (3*1.0+1*0.5)/4, s.WeightedAvg.Precision, 1e-9)
	require.Equal(t, 4, s.WeightedAvg.Support)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	model, _, err := Train(corpus(), Options{Logger: zerolog.Nop(), AmountFeatures: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, model.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	require.Equal(t, model.Labels(), loaded.Labels())
	require.Equal(t, model.Summary(), loaded.Summary())

	txs := []ledger.Transaction{{ID: "x", Description: "JUMBO 42", Amount: -30}}
	want, err := model.Predict(txs)
	require.NoError(t, err)
	got, err := loaded.Predict(txs)
	require.NoError(t, err)
	require.Equal(t, want[0].Label, got[0].Label)
	require.InDelta(t, want[0].Confidence, got[0].Confidence, 1e-12)

	path := filepath.Join(t.TempDir(), "models", "model.gob")
	require.NoError(t, model.SaveFile(path))
	fromFile, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, model.Labels(), fromFile.Labels())
}

func TestModelUnavailable(t *testing.T) {
	t.Parallel()

	var m *Model
	_, err := m.Predict([]ledger.Transaction{{ID: "x"}})
	require.ErrorIs(t, err, ErrModelUnavailable)

	dir := t.TempDir()
	_, err = LoadFile(filepath.Join(dir, "missing.gob"))
	require.ErrorIs(t, err, ErrModelUnavailable)

	corrupt := filepath.Join(dir, "corrupt.gob")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a model"), 0o644))
	_, err = LoadFile(corrupt)
	require.ErrorIs(t, err, ErrModelUnavailable)
}
