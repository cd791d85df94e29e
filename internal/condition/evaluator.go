package condition

import (
	"fmt"

	"lead_automation_backend/platform/logger"
)

// Record is anything conditions can read fields from.
type Record interface {
	Lookup(field string) (any, bool)
}

// Condition is a single field/operator/value comparison.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// Outcome is the explained result of one condition.
type Outcome struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Expected any      `json:"expected,omitempty"`
	Actual   any      `json:"actual,omitempty"`
	Matched  bool     `json:"matched"`
	Reason   string   `json:"reason,omitempty"`
}

// Evaluator applies conditions. A nil logger silences unknown-operator warnings.
type Evaluator struct {
	log *logger.Logger
}

// New creates an Evaluator.
func New(log *logger.Logger) *Evaluator {
	return &Evaluator{log: log}
}

// Evaluate AND-combines conditions with short-circuit. An empty list matches.
func (e *Evaluator) Evaluate(conditions []Condition, record Record) bool {
	for _, c := range conditions {
		if !e.Match(c, record) {
			return false
		}
	}
	return true
}

// Match evaluates a single condition. Unknown operators never match.
func (e *Evaluator) Match(c Condition, record Record) bool {
	op := c.Operator.Normalize()
	def, ok := operators[op]
	if !ok {
		e.warnUnknown(c)
		return false
	}
	actual, present := record.Lookup(c.Field)
	return def.apply(actual, present, c.Value)
}

// Explain evaluates every condition without short-circuit and reports each outcome.
func (e *Evaluator) Explain(conditions []Condition, record Record) []Outcome {
	outcomes := make([]Outcome, 0, len(conditions))
	for _, c := range conditions {
		op := c.Operator.Normalize()
		actual, present := record.Lookup(c.Field)
		out := Outcome{Field: c.Field, Operator: op, Expected: c.Value, Actual: actual}

		def, ok := operators[op]
		switch {
		case !ok:
			e.warnUnknown(c)
			out.Reason = "unknown operator"
		default:
			out.Matched = def.apply(actual, present, c.Value)
			if !present {
				out.Reason = "field missing"
			}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// AllMatched reports whether every outcome matched.
func AllMatched(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Matched {
			return false
		}
	}
	return true
}

// Validate checks a condition at save time.
func Validate(c Condition) error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	op := c.Operator.Normalize()
	def, ok := operators[op]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownOperator, c.Operator)
	}

	switch def.shape {
	case shapeNumber:
		if _, ok := toNumber(c.Value); !ok {
			return fmt.Errorf("operator %s requires a numeric value", op)
		}
	case shapeList:
		if len(toList(c.Value)) == 0 {
			return fmt.Errorf("operator %s requires a non-empty list value", op)
		}
	case shapeScalar:
		switch c.Value.(type) {
		case []any, map[string]any:
			return fmt.Errorf("operator %s requires a scalar value", op)
		}
		if (op == OpContains || op == OpNotContains || op == OpStartsWith || op == OpEndsWith) && isBlank(c.Value) {
			return fmt.Errorf("operator %s requires a value", op)
		}
	}
	return nil
}

// ValidateAll validates conditions in order and reports the first failing index.
func ValidateAll(conditions []Condition) error {
	for i, c := range conditions {
		if err := Validate(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

func (e *Evaluator) warnUnknown(c Condition) {
	if e == nil || e.log == nil {
		return
	}
	e.log.Warn("unknown condition operator", "field", c.Field, "operator", string(c.Operator))
}
