package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ActionType tags an action variant.
type ActionType string

const (
	ActionAssignRoundRobin ActionType = "assign_round_robin"
	ActionAssignWeighted   ActionType = "assign_weighted"
	ActionSendWhatsApp     ActionType = "send_whatsapp"
	ActionSendEmail        ActionType = "send_email"
)

// ErrUnknownActionType is returned when an action's type has no decoder.
var ErrUnknownActionType = errors.New("unknown action type")

// ErrInvalidActionConfig wraps malformed or incomplete action configs.
var ErrInvalidActionConfig = errors.New("invalid action config")

// RawAction is the persisted {type, config} form of an action.
type RawAction struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Action is a decoded, validated action variant.
type Action interface {
	Type() ActionType
	validate() error
}

// AssignRoundRobin rotates through agents in id order.
// With neither AgentIDs nor Pool every active agent is eligible.
type AssignRoundRobin struct {
	AgentIDs       []int64 `json:"agent_ids,omitempty"`
	Pool           string  `json:"pool,omitempty"`
	OnlyUnassigned bool    `json:"only_unassigned,omitempty"`
}

func (AssignRoundRobin) Type() ActionType { return ActionAssignRoundRobin }

func (a AssignRoundRobin) validate() error {
	for _, id := range a.AgentIDs {
		if id <= 0 {
			return fmt.Errorf("agent_ids must be positive, got %d", id)
		}
	}
	return nil
}

// AssignWeighted distributes leads proportionally to per-agent weights.
type AssignWeighted struct {
	Weights        map[int64]int `json:"weights"`
	OnlyUnassigned bool          `json:"only_unassigned,omitempty"`
}

func (AssignWeighted) Type() ActionType { return ActionAssignWeighted }

func (a AssignWeighted) validate() error {
	if len(a.Weights) == 0 {
		return errors.New("weights are required")
	}
	for id, w := range a.Weights {
		if id <= 0 {
			return fmt.Errorf("agent id must be positive, got %d", id)
		}
		if w <= 0 {
			return fmt.Errorf("weight for agent %d must be positive", id)
		}
	}
	return nil
}

// AgentIDs returns the weighted agents sorted by id.
func (a AssignWeighted) AgentIDs() []int64 {
	ids := make([]int64, 0, len(a.Weights))
	for id := range a.Weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SendWhatsApp sends a literal message or a named template to the lead's phone.
type SendWhatsApp struct {
	Message  string            `json:"message,omitempty"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (SendWhatsApp) Type() ActionType { return ActionSendWhatsApp }

func (a SendWhatsApp) validate() error {
	return requireBody(a.Message, a.Template)
}

// SendEmail sends a literal message or a named template to the lead's email.
type SendEmail struct {
	Subject  string            `json:"subject,omitempty"`
	Message  string            `json:"message,omitempty"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (SendEmail) Type() ActionType { return ActionSendEmail }

func (a SendEmail) validate() error {
	if err := requireBody(a.Message, a.Template); err != nil {
		return err
	}
	if strings.TrimSpace(a.Template) == "" && strings.TrimSpace(a.Subject) == "" {
		return errors.New("subject is required for literal email messages")
	}
	return nil
}

func requireBody(message, template string) error {
	hasMessage := strings.TrimSpace(message) != ""
	hasTemplate := strings.TrimSpace(template) != ""
	switch {
	case !hasMessage && !hasTemplate:
		return errors.New("message or template is required")
	case hasMessage && hasTemplate:
		return errors.New("message and template are mutually exclusive")
	}
	return nil
}

var decoders = map[ActionType]func() Action{
	ActionAssignRoundRobin: func() Action { return &AssignRoundRobin{} },
	ActionAssignWeighted:   func() Action { return &AssignWeighted{} },
	ActionSendWhatsApp:     func() Action { return &SendWhatsApp{} },
	ActionSendEmail:        func() Action { return &SendEmail{} },
}

// ActionTypes lists every known action type in a stable order.
func ActionTypes() []ActionType {
	return []ActionType{ActionAssignRoundRobin, ActionAssignWeighted, ActionSendWhatsApp, ActionSendEmail}
}

// Decode turns a raw action into its typed variant. Unknown types yield
// ErrUnknownActionType; bad configs yield ErrInvalidActionConfig.
func Decode(raw RawAction) (Action, error) {
	newAction, ok := decoders[ActionType(strings.TrimSpace(string(raw.Type)))]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownActionType, raw.Type)
	}

	target := newAction()
	cfg := bytes.TrimSpace(raw.Config)
	if len(cfg) > 0 && !bytes.Equal(cfg, []byte("null")) {
		if err := json.Unmarshal(cfg, target); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidActionConfig, err)
		}
	}

	action := deref(target)
	if err := action.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidActionConfig, err)
	}
	return action, nil
}

// Encode is the inverse of Decode.
func Encode(action Action) (RawAction, error) {
	cfg, err := json.Marshal(action)
	if err != nil {
		return RawAction{}, err
	}
	return RawAction{Type: action.Type(), Config: cfg}, nil
}

func deref(a Action) Action {
	switch typed := a.(type) {
	case *AssignRoundRobin:
		return *typed
	case *AssignWeighted:
		return *typed
	case *SendWhatsApp:
		return *typed
	case *SendEmail:
		return *typed
	default:
		return a
	}
}
