package domain

import "testing"

func TestLookupResolvesTypedFieldsAndAliases(t *testing.T) {
	country := int64(5)
	lead := Snapshot{ID: 1, StatusCode: "qualified", CountryID: &country, Priority: "high"}

	if v, ok := lead.Lookup("country_id"); !ok || v != int64(5) {
		t.Fatalf("expected country_id 5, got %v (%v)", v, ok)
	}
	if v, ok := lead.Lookup("Status"); !ok || v != "qualified" {
		t.Fatalf("expected status alias to resolve, got %v (%v)", v, ok)
	}
	if _, ok := lead.Lookup("source_id"); ok {
		t.Fatal("expected nil source_id to be reported missing")
	}
	if _, ok := lead.Lookup("email"); ok {
		t.Fatal("expected blank email to be reported missing")
	}
}

func TestLookupFallsBackToAttributes(t *testing.T) {
	lead := Snapshot{Attributes: map[string]any{"budget": 2500.0, "campaign": nil}}

	if v, ok := lead.Lookup("budget"); !ok || v != 2500.0 {
		t.Fatalf("expected budget attribute, got %v (%v)", v, ok)
	}
	if _, ok := lead.Lookup("campaign"); ok {
		t.Fatal("expected null attribute to be reported missing")
	}
	if _, ok := lead.Lookup("unknown"); ok {
		t.Fatal("expected unknown field to be reported missing")
	}
}

func TestWithAssignedToDoesNotMutateOriginal(t *testing.T) {
	lead := Snapshot{ID: 3}
	assigned := lead.WithAssignedTo(10)

	if lead.IsAssigned() {
		t.Fatal("original snapshot must stay unassigned")
	}
	if !assigned.IsAssigned() || *assigned.AssignedTo != 10 {
		t.Fatalf("expected copy assigned to 10, got %v", assigned.AssignedTo)
	}
}

func TestTextRendersNumbers(t *testing.T) {
	lead := Snapshot{LeadScore: 35, Attributes: map[string]any{"budget": 12.5}}
	if got := lead.Text("score"); got != "35" {
		t.Fatalf("expected 35, got %q", got)
	}
	if got := lead.Text("budget"); got != "12.5" {
		t.Fatalf("expected 12.5, got %q", got)
	}
}
