package condition

import (
	"errors"
	"sync"
	"testing"
)

type record map[string]any

func (r record) Lookup(field string) (any, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func TestEvaluateEmptyConditionListMatches(t *testing.T) {
	e := New(nil)
	if !e.Evaluate(nil, record{}) {
		t.Fatal("expected empty condition list to match")
	}
	if !e.Evaluate([]Condition{}, record{"country_id": int64(5)}) {
		t.Fatal("expected empty condition list to match any lead")
	}
}

func TestEvaluateIsConjunctive(t *testing.T) {
	e := New(nil)
	lead := record{"country_id": int64(5), "source_id": int64(2)}

	both := []Condition{
		{Field: "country_id", Operator: OpEquals, Value: "5"},
		{Field: "source_id", Operator: OpEquals, Value: float64(2)},
	}
	if !e.Evaluate(both, lead) {
		t.Fatal("expected both conditions to match")
	}

	oneFails := []Condition{
		{Field: "country_id", Operator: OpEquals, Value: "5"},
		{Field: "source_id", Operator: OpEquals, Value: "3"},
	}
	if e.Evaluate(oneFails, lead) {
		t.Fatal("expected AND semantics to reject when one condition fails")
	}
}

func TestOperatorTable(t *testing.T) {
	lead := record{
		"priority":    "High",
		"status_code": "qualified",
		"lead_score":  42,
		"budget":      "1500.50",
		"email":       "jan@example.com",
		"tags":        []any{"vip", "returning"},
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"default operator is equals", Condition{Field: "priority", Value: "high"}, true},
		{"equals is case insensitive", Condition{Field: "priority", Operator: OpEquals, Value: " HIGH "}, true},
		{"equals numeric across types", Condition{Field: "lead_score", Operator: OpEquals, Value: "42.0"}, true},
		{"not_equals", Condition{Field: "status_code", Operator: OpNotEquals, Value: "cold"}, true},
		{"contains substring", Condition{Field: "email", Operator: OpContains, Value: "EXAMPLE"}, true},
		{"contains list element", Condition{Field: "tags", Operator: OpContains, Value: "vip"}, true},
		{"not_contains", Condition{Field: "email", Operator: OpNotContains, Value: "gmail"}, true},
		{"starts_with", Condition{Field: "email", Operator: OpStartsWith, Value: "jan@"}, true},
		{"ends_with", Condition{Field: "email", Operator: OpEndsWith, Value: ".com"}, true},
		{"greater_than", Condition{Field: "lead_score", Operator: OpGreaterThan, Value: 40}, true},
		{"greater_than string number", Condition{Field: "budget", Operator: OpGreaterThan, Value: "1000"}, true},
		{"less_than false", Condition{Field: "lead_score", Operator: OpLessThan, Value: 42}, false},
		{"greater_than_or_equal boundary", Condition{Field: "lead_score", Operator: OpGreaterThanOrEqual, Value: 42}, true},
		{"less_than_or_equal boundary", Condition{Field: "lead_score", Operator: OpLessThanOrEqual, Value: "42"}, true},
		{"greater_than on text never matches", Condition{Field: "priority", Operator: OpGreaterThan, Value: 1}, false},
		{"in list", Condition{Field: "status_code", Operator: OpIn, Value: []any{"new", "qualified"}}, true},
		{"in comma string", Condition{Field: "status_code", Operator: OpIn, Value: "new, qualified"}, true},
		{"not_in", Condition{Field: "status_code", Operator: OpNotIn, Value: []any{"lost"}}, true},
		{"is_empty on missing", Condition{Field: "phone", Operator: OpIsEmpty}, true},
		{"is_not_empty", Condition{Field: "email", Operator: OpIsNotEmpty}, true},
		{"symbolic alias", Condition{Field: "lead_score", Operator: ">=", Value: 10}, true},
	}

	e := New(nil)
	for _, tc := range cases {
		if got := e.Match(tc.cond, lead); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMissingFieldIsNonMatchNotError(t *testing.T) {
	e := New(nil)
	lead := record{}

	if e.Match(Condition{Field: "country_id", Operator: OpEquals, Value: "5"}, lead) {
		t.Fatal("expected missing field not to equal a value")
	}
	if e.Match(Condition{Field: "lead_score", Operator: OpGreaterThan, Value: 0}, lead) {
		t.Fatal("expected missing field to fail numeric comparison")
	}
	if e.Match(Condition{Field: "status_code", Operator: OpIn, Value: "new"}, lead) {
		t.Fatal("expected missing field not to be in list")
	}
	if !e.Match(Condition{Field: "status_code", Operator: OpNotIn, Value: "new"}, lead) {
		t.Fatal("expected missing field to satisfy not_in")
	}
}

func TestUnknownOperatorFailsOnlyThatCondition(t *testing.T) {
	e := New(nil)
	lead := record{"priority": "high"}

	if e.Match(Condition{Field: "priority", Operator: "matches_regex", Value: "h.*"}, lead) {
		t.Fatal("expected unknown operator to evaluate false")
	}

	outcomes := e.Explain([]Condition{
		{Field: "priority", Operator: "matches_regex", Value: "h.*"},
		{Field: "priority", Operator: OpEquals, Value: "high"},
	}, lead)
	if len(outcomes) != 2 {
		t.Fatalf("expected two outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Matched || outcomes[0].Reason != "unknown operator" {
		t.Fatalf("unexpected first outcome %+v", outcomes[0])
	}
	if !outcomes[1].Matched {
		t.Fatal("expected explain to keep evaluating after an unknown operator")
	}
	if AllMatched(outcomes) {
		t.Fatal("expected AllMatched to be false")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		cond    Condition
		wantErr bool
	}{
		{Condition{Field: "country_id", Value: 5}, false},
		{Condition{Field: "", Value: 5}, true},
		{Condition{Field: "x", Operator: "between", Value: 5}, true},
		{Condition{Field: "x", Operator: OpGreaterThan, Value: "abc"}, true},
		{Condition{Field: "x", Operator: OpIn, Value: []any{}}, true},
		{Condition{Field: "x", Operator: OpContains, Value: ""}, true},
		{Condition{Field: "x", Operator: OpIsEmpty}, false},
		{Condition{Field: "x", Operator: OpEquals, Value: []any{"a"}}, true},
	}

	for i, tc := range cases {
		err := Validate(tc.cond)
		if (err != nil) != tc.wantErr {
			t.Fatalf("case %d: expected error=%v, got %v", i, tc.wantErr, err)
		}
	}

	if err := Validate(Condition{Field: "x", Operator: "between"}); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestEvaluateIsSafeForConcurrentUse(t *testing.T) {
	e := New(nil)
	conds := []Condition{{Field: "priority", Value: "high"}, {Field: "lead_score", Operator: OpGreaterThan, Value: 10}}
	lead := record{"priority": "high", "lead_score": 20}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !e.Evaluate(conds, lead) {
				t.Error("expected concurrent evaluation to match")
			}
		}()
	}
	wg.Wait()
}
