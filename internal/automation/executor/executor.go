// Package executor runs a single automation action against a lead snapshot.
// Every failure, including panics and timeouts, becomes a failed ActionResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lead_automation_backend/internal/automation/assignment"
	"lead_automation_backend/internal/automation/domain"
	"lead_automation_backend/internal/events"
	leadsdomain "lead_automation_backend/internal/leads/domain"
	"lead_automation_backend/internal/leads/ports"
	"lead_automation_backend/internal/messaging"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/metrics"
	"lead_automation_backend/platform/phone"
)

// DefaultTimeout bounds collaborator calls when none is configured.
const DefaultTimeout = 10 * time.Second

const releaseTimeout = 5 * time.Second

// Invocation identifies which action of which rule is running.
type Invocation struct {
	RuleID      int64
	ActionIndex int
	Trigger     string
}

// Leads is the part of the lead-storage collaborator actions need.
type Leads interface {
	ports.LeadWriter
	ports.AgentDirectory
}

// Deps holds the executor collaborators.
type Deps struct {
	Leads    Leads
	Assigner *assignment.Assigner
	WhatsApp messaging.Sender
	Email    messaging.Sender
	Bus      events.Bus
	Metrics  *metrics.Metrics
	Timeout  time.Duration
	Log      *logger.Logger
}

// Executor runs actions. It is safe for concurrent use.
type Executor struct {
	leads    Leads
	assigner *assignment.Assigner
	whatsapp messaging.Sender
	email    messaging.Sender
	bus      events.Bus
	metrics  *metrics.Metrics
	timeout  time.Duration
	log      *logger.Logger
}

// New creates an Executor. Missing senders behave as unconfigured channels.
func New(deps Deps) *Executor {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	whatsapp := deps.WhatsApp
	if whatsapp == nil {
		whatsapp = messaging.Disabled{Channel: messaging.ChannelWhatsApp}
	}
	email := deps.Email
	if email == nil {
		email = messaging.Disabled{Channel: messaging.ChannelEmail}
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		leads:    deps.Leads,
		assigner: deps.Assigner,
		whatsapp: whatsapp,
		email:    email,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		timeout:  timeout,
		log:      log.WithComponent("automation.executor"),
	}
}

// Execute decodes and runs raw. It never returns an error and never panics.
func (e *Executor) Execute(ctx context.Context, inv Invocation, raw domain.RawAction, lead leadsdomain.Snapshot) (result domain.ActionResult) {
	start := time.Now()
	result = domain.ActionResult{Index: inv.ActionIndex, Type: raw.Type}

	defer func() {
		if rec := recover(); rec != nil {
			result.Status = domain.StatusFailed
			result.Detail = fmt.Sprintf("action panicked: %v", rec)
			result.AgentID = nil
		}
		elapsed := time.Since(start)
		result.Duration = elapsed.String()
		e.metrics.RecordAction(string(result.Type), result.Status, elapsed)
		if result.Failed() {
			e.log.WithContext(ctx).Warn("automation action failed",
				"rule_id", inv.RuleID,
				"lead_id", lead.ID,
				"action_index", inv.ActionIndex,
				"action_type", result.Type,
				"detail", result.Detail,
			)
		}
	}()

	action, err := domain.Decode(raw)
	if err != nil {
		return failed(result, err.Error())
	}

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch a := action.(type) {
	case domain.AssignRoundRobin:
		return e.assignRoundRobin(actx, inv, a, lead, result)
	case domain.AssignWeighted:
		return e.assignWeighted(actx, inv, a, lead, result)
	case domain.SendWhatsApp:
		return e.sendWhatsApp(actx, a, lead, result)
	case domain.SendEmail:
		return e.sendEmail(actx, a, lead, result)
	default:
		return failed(result, fmt.Sprintf("%s %q", domain.ErrUnknownActionType, raw.Type))
	}
}

func (e *Executor) assignRoundRobin(ctx context.Context, inv Invocation, a domain.AssignRoundRobin, lead leadsdomain.Snapshot, result domain.ActionResult) domain.ActionResult {
	if a.OnlyUnassigned && lead.IsAssigned() {
		return skipped(result, "lead already assigned")
	}
	if e.assigner == nil || e.leads == nil {
		return failed(result, "assignment is not configured")
	}

	agents, err := e.leads.ListActiveAgents(ctx, leadsdomain.AgentFilter{Pool: a.Pool, IDs: a.AgentIDs})
	if err != nil {
		return failed(result, describe("list agents", err))
	}

	pick, err := e.assigner.PickRoundRobin(ctx, domain.CursorKey(inv.RuleID, inv.ActionIndex), agents)
	return e.finishAssignment(ctx, inv, assignment.StrategyRoundRobin, pick, err, lead, result)
}

func (e *Executor) assignWeighted(ctx context.Context, inv Invocation, a domain.AssignWeighted, lead leadsdomain.Snapshot, result domain.ActionResult) domain.ActionResult {
	if a.OnlyUnassigned && lead.IsAssigned() {
		return skipped(result, "lead already assigned")
	}
	if e.assigner == nil || e.leads == nil {
		return failed(result, "assignment is not configured")
	}

	active, err := e.leads.ListActiveAgents(ctx, leadsdomain.AgentFilter{IDs: a.AgentIDs()})
	if err != nil {
		return failed(result, describe("list agents", err))
	}
	weights := make(map[int64]int, len(active))
	for _, id := range active {
		if w, ok := a.Weights[id]; ok {
			weights[id] = w
		}
	}

	pick, err := e.assigner.PickWeighted(ctx, domain.CursorKey(inv.RuleID, inv.ActionIndex), weights)
	return e.finishAssignment(ctx, inv, assignment.StrategyWeighted, pick, err, lead, result)
}

func (e *Executor) finishAssignment(ctx context.Context, inv Invocation, strategy string, pick assignment.Pick, pickErr error, lead leadsdomain.Snapshot, result domain.ActionResult) domain.ActionResult {
	if errors.Is(pickErr, assignment.ErrNoAgents) {
		e.log.WithContext(ctx).Info("no eligible agents for assignment", "rule_id", inv.RuleID, "lead_id", lead.ID, "strategy", strategy)
		return skipped(result, "no eligible agents")
	}
	if pickErr != nil {
		return failed(result, describe("advance cursor", pickErr))
	}

	agentID := pick.AgentID
	if err := e.leads.UpdateLead(ctx, lead.ID, leadsdomain.Update{AssignedTo: &agentID}); err != nil {
		e.releasePick(ctx, inv, lead.ID, pick)
		return failed(result, describe("update lead", err))
	}

	e.metrics.RecordAssignment(strategy)
	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			AgentID:   agentID,
			RuleID:    inv.RuleID,
			Strategy:  strategy,
		})
	}

	result.Status = domain.StatusSuccess
	result.AgentID = &agentID
	result.Detail = fmt.Sprintf("assigned to agent %d", agentID)
	return result
}

// releasePick gives the agent its turn back after the lead write failed. It
// runs detached from the action deadline, which may be what failed the write.
func (e *Executor) releasePick(ctx context.Context, inv Invocation, leadID int64, pick assignment.Pick) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := e.assigner.Release(rctx, pick)
	switch {
	case err != nil:
		e.log.WithContext(ctx).Error("failed to release assignment cursor",
			"rule_id", inv.RuleID, "lead_id", leadID, "agent_id", pick.AgentID, "error", err)
	case !released:
		e.log.WithContext(ctx).Warn("assignment cursor moved before release",
			"rule_id", inv.RuleID, "lead_id", leadID, "agent_id", pick.AgentID)
	}
}

func (e *Executor) sendWhatsApp(ctx context.Context, a domain.SendWhatsApp, lead leadsdomain.Snapshot, result domain.ActionResult) domain.ActionResult {
	recipient, err := phone.ParseE164(lead.Phone, phone.DefaultRegion)
	if err != nil {
		return failed(result, "lead has no valid phone number")
	}

	params := templateParams(a.Params, lead)
	if strings.TrimSpace(a.Template) != "" {
		err = e.whatsapp.SendTemplate(ctx, messaging.TemplateMessage{Recipient: recipient, Template: a.Template, Params: params})
	} else {
		err = e.whatsapp.SendMessage(ctx, messaging.Message{Recipient: recipient, Body: messaging.Render(a.Message, lead, params)})
	}
	if err != nil {
		return failed(result, describe("send whatsapp", err))
	}

	result.Status = domain.StatusSuccess
	result.Detail = "whatsapp sent to " + recipient
	return result
}

func (e *Executor) sendEmail(ctx context.Context, a domain.SendEmail, lead leadsdomain.Snapshot, result domain.ActionResult) domain.ActionResult {
	recipient := strings.TrimSpace(lead.Email)
	if recipient == "" {
		return failed(result, "lead has no email address")
	}

	var err error
	params := templateParams(a.Params, lead)
	if strings.TrimSpace(a.Template) != "" {
		err = e.email.SendTemplate(ctx, messaging.TemplateMessage{Recipient: recipient, Template: a.Template, Params: params})
	} else {
		err = e.email.SendMessage(ctx, messaging.Message{
			Recipient: recipient,
			Subject:   messaging.Render(a.Subject, lead, params),
			Body:      messaging.Render(a.Message, lead, params),
		})
	}
	if err != nil {
		return failed(result, describe("send email", err))
	}

	result.Status = domain.StatusSuccess
	result.Detail = "email sent to " + recipient
	return result
}

// templateParams renders configured params against the lead and fills the
// common lead fields templates rely on when the rule does not set them.
func templateParams(configured map[string]string, lead leadsdomain.Snapshot) map[string]string {
	params := messaging.RenderParams(configured, lead)
	defaults := map[string]string{
		"first_name": lead.FirstName,
		"last_name":  lead.LastName,
		"full_name":  lead.FullName(),
	}
	for k, v := range defaults {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}
	return params
}

func describe(op string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return op + ": timed out"
	}
	return fmt.Sprintf("%s: %v", op, err)
}

func failed(result domain.ActionResult, detail string) domain.ActionResult {
	result.Status = domain.StatusFailed
	result.Detail = detail
	return result
}

func skipped(result domain.ActionResult, detail string) domain.ActionResult {
	result.Status = domain.StatusSkipped
	result.Detail = detail
	return result
}
