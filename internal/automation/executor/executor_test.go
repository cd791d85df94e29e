package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lead_automation_backend/internal/automation/assignment"
	"lead_automation_backend/internal/automation/domain"
	leadsdomain "lead_automation_backend/internal/leads/domain"
	"lead_automation_backend/internal/messaging"
)

type fakeLeads struct {
	mu        sync.Mutex
	agents    []int64
	listErr   error
	updateErr error
	updates   map[int64]leadsdomain.Update
}

func (f *fakeLeads) UpdateLead(_ context.Context, leadID int64, update leadsdomain.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[int64]leadsdomain.Update{}
	}
	f.updates[leadID] = update
	return nil
}

func (f *fakeLeads) ListActiveAgents(_ context.Context, filter leadsdomain.AgentFilter) ([]int64, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(filter.IDs) == 0 {
		return f.agents, nil
	}
	active := map[int64]bool{}
	for _, id := range f.agents {
		active[id] = true
	}
	var out []int64
	for _, id := range filter.IDs {
		if active[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu        sync.Mutex
	messages  []messaging.Message
	templates []messaging.TemplateMessage
	err       error
	block     bool
}

func (s *fakeSender) SendMessage(ctx context.Context, msg messaging.Message) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *fakeSender) SendTemplate(_ context.Context, msg messaging.TemplateMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, msg)
	return s.err
}

type panicSender struct{}

func (panicSender) SendMessage(context.Context, messaging.Message) error {
	panic("boom")
}

func (panicSender) SendTemplate(context.Context, messaging.TemplateMessage) error {
	panic("boom")
}

func raw(t *testing.T, typ domain.ActionType, cfg any) domain.RawAction {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return domain.RawAction{Type: typ, Config: data}
}

func newExecutor(leads *fakeLeads, whatsapp, email messaging.Sender) *Executor {
	return New(Deps{
		Leads:    leads,
		Assigner: assignment.NewAssigner(assignment.NewMemoryStore()),
		WhatsApp: whatsapp,
		Email:    email,
		Timeout:  time.Second,
	})
}

func testLead() leadsdomain.Snapshot {
	return leadsdomain.Snapshot{ID: 7, FirstName: "Anna", LastName: "Jansen", Phone: "+31612345678", Email: "anna@example.com"}
}

func TestRoundRobinAssignsAndUpdatesLead(t *testing.T) {
	leads := &fakeLeads{agents: []int64{10, 11, 12}}
	exec := newExecutor(leads, nil, nil)
	action := raw(t, domain.ActionAssignRoundRobin, map[string]any{"agent_ids": []int64{11, 10}})

	first := exec.Execute(context.Background(), Invocation{RuleID: 1}, action, testLead())
	second := exec.Execute(context.Background(), Invocation{RuleID: 1}, action, testLead())

	if first.Status != domain.StatusSuccess || first.AgentID == nil || *first.AgentID != 10 {
		t.Fatalf("expected first assignment to agent 10, got %+v", first)
	}
	if second.AgentID == nil || *second.AgentID != 11 {
		t.Fatalf("expected second assignment to agent 11, got %+v", second)
	}
	if got := leads.updates[7].AssignedTo; got == nil || *got != 11 {
		t.Fatalf("expected lead updated to agent 11, got %v", got)
	}
	if first.Duration == "" {
		t.Fatal("expected duration to be recorded")
	}
}

func TestOnlyUnassignedSkipsAssignedLead(t *testing.T) {
	leads := &fakeLeads{agents: []int64{10}}
	exec := newExecutor(leads, nil, nil)
	lead := testLead().WithAssignedTo(3)

	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionAssignRoundRobin, map[string]any{"only_unassigned": true}), lead)
	if result.Status != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", result)
	}
	if len(leads.updates) != 0 {
		t.Fatal("expected no lead update")
	}
}

func TestEmptyPoolIsSkippedNotFailed(t *testing.T) {
	exec := newExecutor(&fakeLeads{}, nil, nil)
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionAssignRoundRobin, map[string]any{"pool": "sales"}), testLead())
	if result.Status != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", result)
	}
}

func TestWeightedIgnoresInactiveAgents(t *testing.T) {
	leads := &fakeLeads{agents: []int64{2}}
	exec := newExecutor(leads, nil, nil)
	action := raw(t, domain.ActionAssignWeighted, map[string]any{"weights": map[string]int{"1": 5, "2": 1}})

	for i := 0; i < 3; i++ {
		result := exec.Execute(context.Background(), Invocation{RuleID: 2}, action, testLead())
		if result.AgentID == nil || *result.AgentID != 2 {
			t.Fatalf("expected only active agent 2, got %+v", result)
		}
	}
}

func TestUpdateFailureIsFailedResult(t *testing.T) {
	leads := &fakeLeads{agents: []int64{10}, updateErr: errors.New("db down")}
	exec := newExecutor(leads, nil, nil)
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionAssignRoundRobin, map[string]any{}), testLead())
	if !result.Failed() || !strings.Contains(result.Detail, "db down") {
		t.Fatalf("expected failed result mentioning cause, got %+v", result)
	}
	if result.AgentID != nil {
		t.Fatal("expected no agent on failure")
	}
}

func TestFailedUpdateKeepsRoundRobinTurn(t *testing.T) {
	leads := &fakeLeads{agents: []int64{10, 11}, updateErr: errors.New("db down")}
	exec := newExecutor(leads, nil, nil)
	action := raw(t, domain.ActionAssignRoundRobin, map[string]any{})

	if result := exec.Execute(context.Background(), Invocation{RuleID: 1}, action, testLead()); !result.Failed() {
		t.Fatalf("expected failed assignment, got %+v", result)
	}

	leads.updateErr = nil
	var got []int64
	for i := 0; i < 4; i++ {
		result := exec.Execute(context.Background(), Invocation{RuleID: 1}, action, testLead())
		if result.AgentID == nil {
			t.Fatalf("expected assignment, got %+v", result)
		}
		got = append(got, *result.AgentID)
	}
	want := []int64{10, 11, 10, 11}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v after failed write, got %v", want, got)
		}
	}
}

func TestFailedUpdateKeepsWeightedTurn(t *testing.T) {
	leads := &fakeLeads{agents: []int64{1, 2}}
	exec := newExecutor(leads, nil, nil)
	action := raw(t, domain.ActionAssignWeighted, map[string]any{"weights": map[string]int{"1": 2, "2": 1}})

	expected := exec.Execute(context.Background(), Invocation{RuleID: 3}, action, testLead())
	if expected.AgentID == nil {
		t.Fatalf("expected assignment, got %+v", expected)
	}

	fresh := newExecutor(leads, nil, nil)
	leads.updateErr = errors.New("db down")
	if result := fresh.Execute(context.Background(), Invocation{RuleID: 3}, action, testLead()); !result.Failed() {
		t.Fatalf("expected failed assignment, got %+v", result)
	}
	leads.updateErr = nil
	retried := fresh.Execute(context.Background(), Invocation{RuleID: 3}, action, testLead())
	if retried.AgentID == nil || *retried.AgentID != *expected.AgentID {
		t.Fatalf("expected retry to pick agent %d again, got %+v", *expected.AgentID, retried)
	}
}

func TestUnknownActionTypeFails(t *testing.T) {
	exec := newExecutor(&fakeLeads{}, nil, nil)
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, domain.RawAction{Type: "launch_rocket"}, testLead())
	if !result.Failed() || result.Type != "launch_rocket" {
		t.Fatalf("expected failed result for unknown type, got %+v", result)
	}
}

func TestWhatsAppLiteralRendersPlaceholders(t *testing.T) {
	sender := &fakeSender{}
	exec := newExecutor(&fakeLeads{}, sender, nil)
	action := raw(t, domain.ActionSendWhatsApp, map[string]any{
		"message": "Hi {{lead.first_name}}, from {{param.team}}",
		"params":  map[string]string{"team": "Sales"},
	})

	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, action, testLead())
	if result.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sender.messages) != 1 || sender.messages[0].Body != "Hi Anna, from Sales" || sender.messages[0].Recipient != "+31612345678" {
		t.Fatalf("unexpected message %+v", sender.messages)
	}
}

func TestWhatsAppWithoutPhoneFails(t *testing.T) {
	sender := &fakeSender{}
	exec := newExecutor(&fakeLeads{}, sender, nil)
	lead := testLead()
	lead.Phone = ""

	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionSendWhatsApp, map[string]any{"message": "hi"}), lead)
	if !result.Failed() || len(sender.messages) != 0 {
		t.Fatalf("expected failed result without send, got %+v", result)
	}
}

func TestEmailTemplateGetsLeadDefaults(t *testing.T) {
	sender := &fakeSender{}
	exec := newExecutor(&fakeLeads{}, nil, sender)

	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionSendEmail, map[string]any{"template": "follow_up"}), testLead())
	if result.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sender.templates) != 1 || sender.templates[0].Params["first_name"] != "Anna" {
		t.Fatalf("expected first_name param, got %+v", sender.templates)
	}
}

func TestSenderErrorIsFailedResult(t *testing.T) {
	exec := newExecutor(&fakeLeads{}, nil, nil)
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionSendEmail, map[string]any{"subject": "Hi", "message": "Hello"}), testLead())
	if !result.Failed() || !strings.Contains(result.Detail, "not_configured") {
		t.Fatalf("expected not configured failure, got %+v", result)
	}
}

func TestActionTimeoutIsFailedResult(t *testing.T) {
	exec := New(Deps{Leads: &fakeLeads{}, WhatsApp: &fakeSender{block: true}, Timeout: 20 * time.Millisecond})
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionSendWhatsApp, map[string]any{"message": "hi"}), testLead())
	if !result.Failed() || !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	exec := newExecutor(&fakeLeads{}, panicSender{}, nil)
	result := exec.Execute(context.Background(), Invocation{RuleID: 1}, raw(t, domain.ActionSendWhatsApp, map[string]any{"message": "hi"}), testLead())
	if !result.Failed() || !strings.Contains(result.Detail, "panicked") {
		t.Fatalf("expected recovered panic, got %+v", result)
	}
}
