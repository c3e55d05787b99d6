// Package rules evaluates user-authored condition trees against
// transactions and applies prioritized, first-match-wins categorization.
package rules

import (
	"fmt"
	"strings"
)

// Leaf operators.
const (
	OpContains    = "contains"
	OpEquals      = "equals"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpBetween     = "between"
	OpRegex       = "regex"
	OpIn          = "in"
)

// Composite operators.
const (
	And = "AND"
	Or  = "OR"
)

// LeafOperators lists every operator a condition may use.
var LeafOperators = []string{
	OpContains, OpEquals, OpStartsWith, OpEndsWith,
	OpGreaterThan, OpLessThan, OpBetween, OpRegex, OpIn,
}

// Node is either a condition (Field set) or a composite of child nodes.
// Value holds a scalar, or a list for in and between.
type Node struct {
	Field         string `json:"field,omitempty"`
	Operator      string `json:"operator,omitempty"`
	Value         any    `json:"value,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Rules         []Node `json:"rules,omitempty"`
}

// Leaf reports whether n is a single condition.
func (n Node) Leaf() bool { return n.Field != "" }

// Empty reports whether n has neither a field nor children.
func (n Node) Empty() bool { return !n.Leaf() && len(n.Rules) == 0 }

func (n Node) compositeOperator() string {
	if n.Operator == "" {
		return And
	}
	return n.Operator
}

// Condition builds a leaf node.
func Condition(field, operator string, value any) Node {
	return Node{Field: field, Operator: operator, Value: value}
}

// AllOf builds an AND composite.
func AllOf(children ...Node) Node { return Node{Operator: And, Rules: children} }

// AnyOf builds an OR composite.
func AnyOf(children ...Node) Node { return Node{Operator: Or, Rules: children} }

// Fields is anything a condition can read a named value from.
type Fields interface {
	Field(name string) (any, bool)
}

// Map adapts a plain map; lookups are exact.
type Map map[string]any

func (m Map) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// ConditionError describes a malformed condition. Evaluation treats the
// condition as false; Validate returns it.
type ConditionError struct {
	Path     string
	Field    string
	Operator string
	Reason   string
}

func (e *ConditionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("condition %s: operator %q: %s", e.Path, e.Operator, e.Reason)
	}
	return fmt.Sprintf("condition %s: %s %s: %s", e.Path, e.Field, e.Operator, e.Reason)
}

// Validate walks the tree and returns the first malformed node. An empty
// tree is reported too since it can never match.
func Validate(n Node) error {
	return validate(n, "$")
}

func validate(n Node, path string) error {
	if n.Leaf() {
		return validateCondition(n, path)
	}
	op := n.compositeOperator()
	if op != And && op != Or {
		return &ConditionError{Path: path, Operator: op, Reason: "unknown composite operator"}
	}
	if len(n.Rules) == 0 {
		return &ConditionError{Path: path, Operator: op, Reason: "no conditions"}
	}
	for i, child := range n.Rules {
		if err := validate(child, fmt.Sprintf("%s.rules[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(n Node, path string) error {
	fail := func(reason string) error {
		return &ConditionError{Path: path, Field: n.Field, Operator: n.Operator, Reason: reason}
	}
	switch n.Operator {
	case OpContains, OpEquals, OpStartsWith, OpEndsWith, OpIn:
		if n.Value == nil {
			return fail("missing value")
		}
	case OpGreaterThan, OpLessThan:
		if _, ok := toFloat(n.Value); !ok {
			return fail("value is not a number")
		}
	case OpBetween:
		list, ok := asList(n.Value)
		if !ok || len(list) != 2 {
			return fail("value must be [low, high]")
		}
		if _, ok := toFloat(list[0]); !ok {
			return fail("low bound is not a number")
		}
		if _, ok := toFloat(list[1]); !ok {
			return fail("high bound is not a number")
		}
	case OpRegex:
		if _, err := patterns(nil).get(toString(n.Value), n.CaseSensitive); err != nil {
			return fail("invalid pattern: " + err.Error())
		}
	default:
		return fail("unknown operator")
	}
	return nil
}

// Describe renders the tree as readable text.
func Describe(n Node) string {
	if n.Leaf() {
		s := fmt.Sprintf("%s %s %s", n.Field, n.Operator, describeValue(n.Value))
		if n.CaseSensitive {
			s += " (case sensitive)"
		}
		return s
	}
	if len(n.Rules) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, len(n.Rules))
	for i, child := range n.Rules {
		parts[i] = Describe(child)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+n.compositeOperator()+" ") + ")"
}

func describeValue(v any) string {
	if list, ok := asList(v); ok {
		items := make([]string, len(list))
		for i, item := range list {
			items[i] = describeValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return toString(v)
}
