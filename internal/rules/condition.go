package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jask/bankcat/internal/ledger"
)

// EvaluateCondition applies one leaf condition. Absent or null fields,
// values that do not convert, invalid patterns and unknown operators all
// evaluate false.
func EvaluateCondition(f Fields, c Node) bool {
	return evaluateCondition(f, c, nil)
}

func evaluateCondition(f Fields, c Node, p patterns) bool {
	raw, ok := f.Field(c.Field)
	if !ok || isNull(raw) {
		return false
	}

	switch c.Operator {
	case OpGreaterThan, OpLessThan:
		fv, ok1 := toFloat(raw)
		cv, ok2 := toFloat(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		if c.Operator == OpGreaterThan {
			return fv > cv
		}
		return fv < cv
	case OpBetween:
		list, ok := asList(c.Value)
		if !ok || len(list) != 2 {
			return false
		}
		fv, ok1 := toFloat(raw)
		lo, ok2 := toFloat(list[0])
		hi, ok3 := toFloat(list[1])
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		return lo <= fv && fv <= hi
	case OpRegex:
		re, err := p.get(toString(c.Value), c.CaseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(toString(raw))
	}

	field := fold(toString(raw), c.CaseSensitive)
	switch c.Operator {
	case OpContains:
		return strings.Contains(field, fold(toString(c.Value), c.CaseSensitive))
	case OpEquals:
		return field == fold(toString(c.Value), c.CaseSensitive)
	case OpStartsWith:
		return strings.HasPrefix(field, fold(toString(c.Value), c.CaseSensitive))
	case OpEndsWith:
		return strings.HasSuffix(field, fold(toString(c.Value), c.CaseSensitive))
	case OpIn:
		list, ok := asList(c.Value)
		if !ok {
			return field == fold(toString(c.Value), c.CaseSensitive)
		}
		for _, item := range list {
			if field == fold(toString(item), c.CaseSensitive) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case *float64:
		return x == nil || math.IsNaN(*x)
	case time.Time:
		return x.IsZero()
	}
	return false
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// patterns holds the regex conditions compiled during one pass, keyed by
// their final source. A nil set compiles on every call.
type patterns map[string]compiled

func (p patterns) get(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	if p == nil {
		return regexp.Compile(pattern)
	}
	if c, ok := p[pattern]; ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(pattern)
	p[pattern] = compiled{re: re, err: err}
	return re, err
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case *float64:
		if x == nil {
			return ""
		}
		return strconv.FormatFloat(*x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(ledger.DateLayout)
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
