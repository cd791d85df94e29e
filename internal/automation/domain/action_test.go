package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"lead_automation_backend/internal/condition"
)

func TestDecodeKnownActions(t *testing.T) {
	cases := []struct {
		raw  RawAction
		want ActionType
	}{
		{RawAction{Type: ActionAssignRoundRobin, Config: json.RawMessage(`{"agent_ids":[10,11]}`)}, ActionAssignRoundRobin},
		{RawAction{Type: ActionAssignRoundRobin}, ActionAssignRoundRobin},
		{RawAction{Type: ActionAssignWeighted, Config: json.RawMessage(`{"weights":{"1":1,"2":3}}`)}, ActionAssignWeighted},
		{RawAction{Type: ActionSendWhatsApp, Config: json.RawMessage(`{"message":"Hi {{lead.first_name}}"}`)}, ActionSendWhatsApp},
		{RawAction{Type: ActionSendEmail, Config: json.RawMessage(`{"template":"welcome"}`)}, ActionSendEmail},
	}

	for _, tc := range cases {
		action, err := Decode(tc.raw)
		if err != nil {
			t.Fatalf("decode %s: unexpected error %v", tc.raw.Type, err)
		}
		if action.Type() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, action.Type())
		}
	}
}

func TestDecodeWeightedKeepsIntegerKeys(t *testing.T) {
	action, err := Decode(RawAction{Type: ActionAssignWeighted, Config: json.RawMessage(`{"weights":{"7":2,"3":1}}`)})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	weighted, ok := action.(AssignWeighted)
	if !ok {
		t.Fatalf("expected AssignWeighted, got %T", action)
	}
	ids := weighted.AgentIDs()
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Fatalf("expected sorted agent ids [3 7], got %v", ids)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode(RawAction{Type: "create_task"})
	if !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("expected ErrUnknownActionType, got %v", err)
	}
}

func TestDecodeRejectsInvalidConfigs(t *testing.T) {
	cases := []RawAction{
		{Type: ActionAssignWeighted, Config: json.RawMessage(`{"weights":{}}`)},
		{Type: ActionAssignWeighted, Config: json.RawMessage(`{"weights":{"1":0}}`)},
		{Type: ActionAssignRoundRobin, Config: json.RawMessage(`{"agent_ids":"10"}`)},
		{Type: ActionSendWhatsApp, Config: json.RawMessage(`{}`)},
		{Type: ActionSendWhatsApp, Config: json.RawMessage(`{"message":"a","template":"b"}`)},
		{Type: ActionSendEmail, Config: json.RawMessage(`{"message":"no subject"}`)},
	}

	for _, raw := range cases {
		if _, err := Decode(raw); !errors.Is(err, ErrInvalidActionConfig) {
			t.Fatalf("%s %s: expected ErrInvalidActionConfig, got %v", raw.Type, raw.Config, err)
		}
	}
}

func TestEncodeRoundTripsThroughDecode(t *testing.T) {
	raw, err := Encode(AssignRoundRobin{AgentIDs: []int64{10, 11}, OnlyUnassigned: true})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	action, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	rr := action.(AssignRoundRobin)
	if !rr.OnlyUnassigned || len(rr.AgentIDs) != 2 {
		t.Fatalf("unexpected decoded action %+v", rr)
	}
}

func TestRuleValidateRejectsUnknownActionAndOperator(t *testing.T) {
	rule := Rule{
		Name:         "Route NL leads",
		TriggerEvent: "new_lead",
		Conditions:   []condition.Condition{{Field: "country_id", Operator: "approximately", Value: 5}},
		Actions:      []RawAction{{Type: "launch_rocket"}},
	}

	err := rule.Validate()
	if !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("expected unknown action type in %v", err)
	}
	if !errors.Is(err, condition.ErrUnknownOperator) {
		t.Fatalf("expected unknown operator in %v", err)
	}
}

func TestRuleValidateAcceptsWellFormedRule(t *testing.T) {
	rule := Rule{
		Name:          "Route NL leads",
		TriggerEvent:  "new_lead",
		TriggerEntity: EntityLead,
		Conditions:    []condition.Condition{{Field: "country_id", Value: 5}},
		Actions:       []RawAction{{Type: ActionAssignRoundRobin, Config: json.RawMessage(`{"agent_ids":[10,11]}`)}},
	}
	if err := rule.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
}

func TestSortRulesByPriorityThenID(t *testing.T) {
	rules := []Rule{{ID: 5, Priority: 2}, {ID: 3, Priority: 1}, {ID: 1, Priority: 2}, {ID: 9, Priority: 0}}
	SortRules(rules)

	want := []int64{9, 3, 1, 5}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("position %d: expected rule %d, got %d", i, id, rules[i].ID)
		}
	}
}

func TestCursorKey(t *testing.T) {
	if got := CursorKey(12, 0); got != "rule:12:action:0" {
		t.Fatalf("unexpected cursor key %q", got)
	}
}
