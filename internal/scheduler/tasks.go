package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAutomationDispatch = "automation.dispatch"

const TaskScoringBulkRecalculate = "scoring.bulk_recalculate"

type AutomationDispatchPayload struct {
	Event    string         `json:"event"`
	LeadID   int64          `json:"leadId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ScoringBulkRecalculatePayload struct {
	LeadIDs []int64 `json:"leadIds,omitempty"`
	All     bool    `json:"all,omitempty"`
	Source  string  `json:"source,omitempty"`
}

func NewAutomationDispatchTask(payload AutomationDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationDispatch, data), nil
}

func ParseAutomationDispatchPayload(task *asynq.Task) (AutomationDispatchPayload, error) {
	var payload AutomationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AutomationDispatchPayload{}, err
	}
	return payload, nil
}

func NewScoringBulkRecalculateTask(payload ScoringBulkRecalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScoringBulkRecalculate, data), nil
}

func ParseScoringBulkRecalculatePayload(task *asynq.Task) (ScoringBulkRecalculatePayload, error) {
	var payload ScoringBulkRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ScoringBulkRecalculatePayload{}, err
	}
	return payload, nil
}
