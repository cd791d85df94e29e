package events

import "testing"

func TestNewLeadLifecycleEventMapsTriggers(t *testing.T) {
	cases := map[string]string{
		TriggerNewLead:             LeadCreated{}.EventName(),
		TriggerStatusChange:        LeadStatusChanged{}.EventName(),
		TriggerCommunicationLogged: CommunicationLogged{}.EventName(),
	}

	for trigger, name := range cases {
		evt, err := NewLeadLifecycleEvent(trigger, 9, map[string]any{"new_status": "qualified"})
		if err != nil {
			t.Fatalf("trigger %s: unexpected error %v", trigger, err)
		}
		if evt.EventName() != name {
			t.Fatalf("trigger %s: expected %s, got %s", trigger, name, evt.EventName())
		}
		if evt.Trigger() != trigger || evt.Lead() != 9 {
			t.Fatalf("trigger %s: unexpected trigger/lead %s/%d", trigger, evt.Trigger(), evt.Lead())
		}
	}
}

func TestNewLeadLifecycleEventWrapsCustomTrigger(t *testing.T) {
	evt, err := NewLeadLifecycleEvent("quote_sent", 1, map[string]any{"amount": 10})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if evt.EventName() != (LeadTriggered{}).EventName() || evt.Trigger() != "quote_sent" {
		t.Fatalf("expected generic trigger event, got %s/%s", evt.EventName(), evt.Trigger())
	}
}

func TestNewLeadLifecycleEventRejectsBlankTriggerAndLead(t *testing.T) {
	if _, err := NewLeadLifecycleEvent(" ", 1, nil); err == nil {
		t.Fatal("expected error for blank trigger")
	}
	if _, err := NewLeadLifecycleEvent(TriggerNewLead, 0, nil); err == nil {
		t.Fatal("expected error for missing lead id")
	}
}

func TestStatusChangedMetaCarriesTransition(t *testing.T) {
	evt := LeadStatusChanged{LeadID: 1, OldStatus: "new", NewStatus: "contacted"}
	meta := evt.Meta()
	if meta["old_status"] != "new" || meta["new_status"] != "contacted" {
		t.Fatalf("unexpected meta %v", meta)
	}
}
