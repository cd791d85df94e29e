// Package condition evaluates field/operator/value comparisons against a lead.
// Evaluation is pure and safe for concurrent use.
package condition

import (
	"errors"
	"strings"
)

// Operator names a comparison. The set is open: unknown names are tolerated at
// evaluation time and rejected by Validate.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"

	// DefaultOperator applies when a condition carries no operator.
	DefaultOperator = OpEquals
)

// ErrUnknownOperator is returned by Validate for operators outside the dispatch table.
var ErrUnknownOperator = errors.New("unknown operator")

var operatorAliases = map[string]Operator{
	"=":   OpEquals,
	"==":  OpEquals,
	"eq":  OpEquals,
	"!=":  OpNotEquals,
	"<>":  OpNotEquals,
	"neq": OpNotEquals,
	">":   OpGreaterThan,
	"gt":  OpGreaterThan,
	"<":   OpLessThan,
	"lt":  OpLessThan,
	">=":  OpGreaterThanOrEqual,
	"gte": OpGreaterThanOrEqual,
	"<=":  OpLessThanOrEqual,
	"lte": OpLessThanOrEqual,
}

// Normalize lowercases op, resolves symbolic aliases and applies the default.
func (op Operator) Normalize() Operator {
	name := strings.ToLower(strings.TrimSpace(string(op)))
	if name == "" {
		return DefaultOperator
	}
	if alias, ok := operatorAliases[name]; ok {
		return alias
	}
	return Operator(name)
}

// Known reports whether op (after normalization) is in the dispatch table.
func (op Operator) Known() bool {
	_, ok := operators[op.Normalize()]
	return ok
}

// Operators lists every supported operator in a stable order.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual,
		OpIn, OpNotIn, OpIsEmpty, OpIsNotEmpty,
	}
}

// valueShape describes what a condition's value must look like for an operator.
type valueShape int

const (
	shapeScalar valueShape = iota
	shapeNumber
	shapeList
	shapeNone
)

type operatorSpec struct {
	shape valueShape
	apply func(actual any, present bool, expected any) bool
}

var operators = map[Operator]operatorSpec{
	OpEquals:             {shape: shapeScalar, apply: equalsOp},
	OpNotEquals:          {shape: shapeScalar, apply: negate(equalsOp)},
	OpContains:           {shape: shapeScalar, apply: containsOp},
	OpNotContains:        {shape: shapeScalar, apply: negate(containsOp)},
	OpStartsWith:         {shape: shapeScalar, apply: textOp(strings.HasPrefix)},
	OpEndsWith:           {shape: shapeScalar, apply: textOp(strings.HasSuffix)},
	OpGreaterThan:        {shape: shapeNumber, apply: numberOp(func(a, b float64) bool { return a > b })},
	OpLessThan:           {shape: shapeNumber, apply: numberOp(func(a, b float64) bool { return a < b })},
	OpGreaterThanOrEqual: {shape: shapeNumber, apply: numberOp(func(a, b float64) bool { return a >= b })},
	OpLessThanOrEqual:    {shape: shapeNumber, apply: numberOp(func(a, b float64) bool { return a <= b })},
	OpIn:                 {shape: shapeList, apply: inOp},
	OpNotIn:              {shape: shapeList, apply: negate(inOp)},
	OpIsEmpty:            {shape: shapeNone, apply: isEmptyOp},
	OpIsNotEmpty:         {shape: shapeNone, apply: negate(isEmptyOp)},
}

func negate(fn func(any, bool, any) bool) func(any, bool, any) bool {
	return func(actual any, present bool, expected any) bool {
		return !fn(actual, present, expected)
	}
}

func equalsOp(actual any, present bool, expected any) bool {
	if !present {
		return isBlank(expected)
	}
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if sameValue(item, expected) {
				return true
			}
		}
		return false
	}
	return sameValue(actual, expected)
}

func containsOp(actual any, present bool, expected any) bool {
	if !present {
		return false
	}
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if sameValue(item, expected) {
				return true
			}
		}
		return false
	}
	needle := normalizedText(expected)
	if needle == "" {
		return false
	}
	return strings.Contains(normalizedText(actual), needle)
}

func textOp(fn func(s, affix string) bool) func(any, bool, any) bool {
	return func(actual any, present bool, expected any) bool {
		if !present {
			return false
		}
		affix := normalizedText(expected)
		if affix == "" {
			return false
		}
		return fn(normalizedText(actual), affix)
	}
}

func numberOp(cmp func(a, b float64) bool) func(any, bool, any) bool {
	return func(actual any, present bool, expected any) bool {
		if !present {
			return false
		}
		a, ok := toNumber(actual)
		if !ok {
			return false
		}
		b, ok := toNumber(expected)
		if !ok {
			return false
		}
		return cmp(a, b)
	}
}

func inOp(actual any, present bool, expected any) bool {
	if !present {
		return false
	}
	for _, candidate := range toList(expected) {
		if sameValue(actual, candidate) {
			return true
		}
	}
	return false
}

func isEmptyOp(actual any, present bool, _ any) bool {
	if !present {
		return true
	}
	return isBlank(actual)
}
