package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusPartial ExecutionStatus = "partial"
	StatusError   ExecutionStatus = "error"
	StatusSkipped ExecutionStatus = "skipped"
)

type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailure ActionOutcome = "failure"
	OutcomeSkipped ActionOutcome = "skipped"
)

type ActionResult struct {
	Type     ActionType    `json:"type"`
	Outcome  ActionOutcome `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

const TriggerEntityTransaction = "transaction"

// ExecutionLog is the audit record of one rule evaluation for one trigger event.
// Rows are append-only.
type ExecutionLog struct {
	ID                uuid.UUID       `json:"id"`
	RuleID            int64           `json:"rule_id"`
	TriggerEntityType string          `json:"trigger_entity_type"`
	TriggerEntityID   int64           `json:"trigger_entity_id"`
	ActionsExecuted   []ActionResult  `json:"actions_executed"`
	Status            ExecutionStatus `json:"status"`
	ErrorMessage      *string         `json:"error_message"`
	CreatedAt         time.Time       `json:"created_at"`
}
