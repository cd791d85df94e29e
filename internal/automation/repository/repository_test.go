package repository

import (
	"strings"
	"testing"

	"lead_automation_backend/internal/automation/domain"
)

func TestActiveRulesAreOrderedByPriorityThenID(t *testing.T) {
	if !strings.Contains(listActiveByTriggerQuery, "ORDER BY priority ASC, id ASC") {
		t.Fatalf("expected deterministic rule order, got %s", listActiveByTriggerQuery)
	}
	if !strings.Contains(listActiveByTriggerQuery, "is_active = true") {
		t.Fatal("expected only active rules to be loaded")
	}
}

func TestBuildLogFilterNumbersPlaceholders(t *testing.T) {
	ruleID := int64(3)
	leadID := int64(9)
	where, args := buildLogFilter(domain.LogFilter{RuleID: &ruleID, LeadID: &leadID, Status: "failed"})

	want := " WHERE rule_id = $1 AND lead_id = $2 AND status = $3"
	if where != want {
		t.Fatalf("expected %q, got %q", want, where)
	}
	if len(args) != 3 || args[0] != ruleID || args[1] != leadID || args[2] != "failed" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildLogFilterEmpty(t *testing.T) {
	where, args := buildLogFilter(domain.LogFilter{})
	if where != "" || len(args) != 0 {
		t.Fatalf("expected no filter, got %q %v", where, args)
	}
}

func TestNormalizePageClamps(t *testing.T) {
	page, size := normalizePage(0, 1000)
	if page != 1 || size != 200 {
		t.Fatalf("expected 1/200, got %d/%d", page, size)
	}
	page, size = normalizePage(3, 0)
	if page != 3 || size != 50 {
		t.Fatalf("expected 3/50, got %d/%d", page, size)
	}
}
