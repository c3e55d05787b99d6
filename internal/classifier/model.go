package classifier

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/jbrukh/bayesian"

	"github.com/jask/bankcat/internal/ledger"
)

// ErrModelUnavailable is returned when no trained model is loaded.
var ErrModelUnavailable = errors.New("model unavailable")

// blobVersion is bumped when the serialized layout changes.
const blobVersion = 1

// Prediction is the label and posterior probability for one transaction.
type Prediction struct {
	TransactionID string
	Label         string
	Confidence    float64
}

// Model is a trained classifier. A nil *Model is valid and reports
// ErrModelUnavailable.
type Model struct {
	labels         []string
	cl             *bayesian.Classifier
	amountFeatures bool
	summary        Summary
	// training rows are kept so the model can be rebuilt on load
	docs      [][]string
	docLabels []string
}

func fit(train []sample, labels []string, amountFeatures bool) *Model {
	classes := make([]bayesian.Class, len(labels))
	for i, l := range labels {
		classes[i] = bayesian.Class(l)
	}
	cl := bayesian.NewClassifierTfIdf(classes...)
	m := &Model{labels: labels, cl: cl, amountFeatures: amountFeatures}
	for _, s := range train {
		cl.Learn(s.doc, bayesian.Class(s.label))
		m.docs = append(m.docs, s.doc)
		m.docLabels = append(m.docLabels, s.label)
	}
	cl.ConvertTermsFreqToTfIdf()
	return m
}

// classify returns the best label and its posterior, computed from log
// scores to avoid underflow on long documents.
func (m *Model) classify(doc []string) (string, float64) {
	scores, inx, _ := m.cl.LogScores(doc)
	best := scores[inx]
	sum := 0.0
	for _, s := range scores {
		sum += math.Exp(s - best)
	}
	return m.labels[inx], 1 / sum
}

// Labels returns the classes the model can predict.
func (m *Model) Labels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.labels...)
}

// Summary returns the training summary.
func (m *Model) Summary() Summary {
	if m == nil {
		return Summary{}
	}
	return m.summary
}

// Predict labels every transaction.
func (m *Model) Predict(txs []ledger.Transaction) ([]Prediction, error) {
	if m == nil || m.cl == nil {
		return nil, ErrModelUnavailable
	}
	out := make([]Prediction, len(txs))
	for i, t := range txs {
		label, conf := m.classify(document(Extract(t), m.amountFeatures))
		out[i] = Prediction{TransactionID: t.ID, Label: label, Confidence: conf}
	}
	return out, nil
}

type blob struct {
	Version        int
	Labels         []string
	AmountFeatures bool
	Docs           [][]string
	DocLabels      []string
	Summary        Summary
}

// Save writes the model as an opaque blob.
func (m *Model) Save(w io.Writer) error {
	if m == nil {
		return ErrModelUnavailable
	}
	b := blob{
		Version:        blobVersion,
		Labels:         m.labels,
		AmountFeatures: m.amountFeatures,
		Docs:           m.docs,
		DocLabels:      m.docLabels,
		Summary:        m.summary,
	}
	if err := gob.NewEncoder(w).Encode(b); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a blob written by Save.
func Load(r io.Reader) (*Model, error) {
	var b blob
	if err := gob.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if b.Version != blobVersion {
		return nil, fmt.Errorf("model version %d, want %d", b.Version, blobVersion)
	}
	if len(b.Labels) < 2 || len(b.Docs) == 0 || len(b.Docs) != len(b.DocLabels) {
		return nil, errors.New("corrupt model")
	}
	known := make(map[string]bool, len(b.Labels))
	for _, l := range b.Labels {
		if known[l] {
			return nil, errors.New("corrupt model: duplicate label")
		}
		known[l] = true
	}
	train := make([]sample, len(b.Docs))
	for i := range b.Docs {
		if !known[b.DocLabels[i]] {
			return nil, fmt.Errorf("corrupt model: unknown label %q", b.DocLabels[i])
		}
		train[i] = sample{doc: b.Docs[i], label: b.DocLabels[i]}
	}
	m := fit(train, b.Labels, b.AmountFeatures)
	m.summary = b.Summary
	return m, nil
}

// SaveFile writes the model to path through a temporary file.
func (m *Model) SaveFile(path string) error {
	if m == nil {
		return ErrModelUnavailable
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile reads a model from path. Any failure wraps ErrModelUnavailable.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer f.Close()
	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return m, nil
}
