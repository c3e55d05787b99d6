package classifier

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jask/bankcat/internal/ledger"
)

// ModelType names the trained model in summaries.
const ModelType = "tfidf-naive-bayes"

// smallDataset is the example count below which training and evaluation
// share the same rows.
const smallDataset = 10

var (
	ErrNoTrainingData = errors.New("no labeled transactions to train on")
	ErrTooFewClasses  = errors.New("at least two distinct labels are required")
)

// UnknownLabel marks rows that are not labeled.
const UnknownLabel = "unknown"

// Example is one labeled transaction.
type Example struct {
	Transaction ledger.Transaction
	Label       string
}

// Options tune training.
type Options struct {
	// TestSize is the held-out fraction. Zero means 0.2.
	TestSize float64
	// Seed drives the split shuffle. Zero means 42.
	Seed int64
	// AmountFeatures adds amount and weekday tokens to each document.
	AmountFeatures bool
	Logger         zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.TestSize <= 0 || o.TestSize >= 1 {
		o.TestSize = 0.2
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return o
}

// ClassMetrics is one row of the classification report.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Summary describes a training run.
type Summary struct {
	ModelType       string
	TrainingSamples int
	TestSamples     int
	Labels          []string
	Accuracy        float64
	PerClass        map[string]ClassMetrics
	MacroAvg        ClassMetrics
	WeightedAvg     ClassMetrics
	// SmallDataset is set when evaluation reused the training rows.
	SmallDataset bool
}

type sample struct {
	doc   []string
	label string
}

// Train fits a model on examples and evaluates it on a stratified held-out
// split. With fewer than ten usable examples it evaluates on the training
// rows instead.
func Train(examples []Example, opts Options) (*Model, Summary, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	var samples []sample
	for _, ex := range examples {
		label := strings.TrimSpace(ex.Label)
		if label == "" || strings.EqualFold(label, UnknownLabel) {
			continue
		}
		doc := document(Extract(ex.Transaction), opts.AmountFeatures)
		if len(doc) == 0 {
			continue
		}
		samples = append(samples, sample{doc: doc, label: label})
	}
	if len(samples) == 0 {
		return nil, Summary{}, ErrNoTrainingData
	}
	labels := distinctLabels(samples)
	if len(labels) < 2 {
		return nil, Summary{}, ErrTooFewClasses
	}

	var train, test []sample
	small := len(samples) < smallDataset
	if small {
		log.Warn().Int("samples", len(samples)).Msg("small dataset: evaluating on training data")
		train, test = samples, samples
	} else {
		train, test = stratifiedSplit(samples, labels, opts.TestSize, opts.Seed)
	}

	// the split can leave a class only in the test partition
	trainLabels := distinctLabels(train)
	if len(trainLabels) < 2 {
		return nil, Summary{}, ErrTooFewClasses
	}
	model := fit(train, trainLabels, opts.AmountFeatures)

	predicted := make([]string, len(test))
	actual := make([]string, len(test))
	for i, s := range test {
		predicted[i], _ = model.classify(s.doc)
		actual[i] = s.label
	}
	summary := report(actual, predicted)
	summary.ModelType = ModelType
	summary.TrainingSamples = len(train)
	summary.TestSamples = len(test)
	summary.Labels = labels
	summary.SmallDataset = small
	model.summary = summary

	log.Info().
		Int("train", len(train)).
		Int("test", len(test)).
		Int("labels", len(labels)).
		Float64("accuracy", summary.Accuracy).
		Msg("model trained")
	return model, summary, nil
}

func distinctLabels(samples []sample) []string {
	seen := map[string]struct{}{}
	for _, s := range samples {
		seen[s.label] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// stratifiedSplit holds out testSize of every class. Classes with two or more
// rows keep at least one row on each side; singletons stay in training.
func stratifiedSplit(samples []sample, labels []string, testSize float64, seed int64) (train, test []sample) {
	rng := rand.New(rand.NewSource(seed))
	byLabel := make(map[string][]sample, len(labels))
	for _, s := range samples {
		byLabel[s.label] = append(byLabel[s.label], s)
	}
	for _, l := range labels {
		group := byLabel[l]
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		n := 0
		if len(group) >= 2 {
			n = int(math.Round(float64(len(group)) * testSize))
			n = max(1, min(n, len(group)-1))
		}
		test = append(test, group[:n]...)
		train = append(train, group[n:]...)
	}
	return train, test
}

func report(actual, predicted []string) Summary {
	classes := map[string]struct{}{}
	for i := range actual {
		classes[actual[i]] = struct{}{}
		classes[predicted[i]] = struct{}{}
	}
	tp := map[string]int{}
	predCount := map[string]int{}
	support := map[string]int{}
	correct := 0
	for i := range actual {
		support[actual[i]]++
		predCount[predicted[i]]++
		if actual[i] == predicted[i] {
			tp[actual[i]]++
			correct++
		}
	}

	s := Summary{PerClass: make(map[string]ClassMetrics, len(classes))}
	if len(actual) > 0 {
		s.Accuracy = float64(correct) / float64(len(actual))
	}
	total := 0
	for c := range classes {
		m := ClassMetrics{Support: support[c]}
		if predCount[c] > 0 {
			m.Precision = float64(tp[c]) / float64(predCount[c])
		}
		if support[c] > 0 {
			m.Recall = float64(tp[c]) / float64(support[c])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		s.PerClass[c] = m

		s.MacroAvg.Precision += m.Precision
		s.MacroAvg.Recall += m.Recall
		s.MacroAvg.F1 += m.F1
		s.WeightedAvg.Precision += m.Precision * float64(m.Support)
		s.WeightedAvg.Recall += m.Recall * float64(m.Support)
		s.WeightedAvg.F1 += m.F1 * float64(m.Support)
		total += m.Support
	}
	if n := float64(len(classes)); n > 0 {
		s.MacroAvg.Precision /= n
		s.MacroAvg.Recall /= n
		s.MacroAvg.F1 /= n
	}
	if total > 0 {
		s.WeightedAvg.Precision /= float64(total)
		s.WeightedAvg.Recall /= float64(total)
		s.WeightedAvg.F1 /= float64(total)
	}
	s.MacroAvg.Support = total
	s.WeightedAvg.Support = total
	return s
}
