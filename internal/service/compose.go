package service

import (
	"strings"

	"github.com/jask/bankcat/internal/classifier"
)

// Composition methods.
const (
	MethodRule = "rule"
	MethodML   = "ml"
)

// DefaultConfidenceThreshold is the ML confidence needed to accept a
// prediction when no rule matched.
const DefaultConfidenceThreshold = 0.7

// Decision is the composed label for one transaction. An unresolved
// decision has an empty Label and still reports MethodRule, the fallback
// method, rather than a method of its own; use Resolved to tell it apart
// from a rule match.
type Decision struct {
	Label      string
	Method     string
	Confidence float64
}

func (d Decision) Resolved() bool { return d.Label != "" }

// Compose picks between a rule prediction and an ML prediction. Rules win
// whenever they produced a label; otherwise the ML label is taken when its
// confidence reaches threshold. Threshold <= 0 means the default.
func Compose(rulePrediction, mlPrediction string, mlConfidence, threshold float64) Decision {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if present(rulePrediction) {
		return Decision{Label: rulePrediction, Method: MethodRule}
	}
	if present(mlPrediction) && mlConfidence >= threshold {
		return Decision{Label: mlPrediction, Method: MethodML, Confidence: mlConfidence}
	}
	return Decision{Method: MethodRule, Confidence: mlConfidence}
}

func present(label string) bool {
	label = strings.TrimSpace(label)
	return label != "" && !strings.EqualFold(label, classifier.UnknownLabel)
}
