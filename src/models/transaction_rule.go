package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TriggerType string

const (
	TriggerTransactionCreate TriggerType = "on_transaction_create"
	TriggerTransactionUpdate TriggerType = "on_transaction_update"
)

func (t TriggerType) Valid() bool {
	return t == TriggerTransactionCreate || t == TriggerTransactionUpdate
}

// ActionType is the closed set of rule actions.
type ActionType string

const (
	ActionSetCategory    ActionType = "set_category"
	ActionAddTags        ActionType = "add_tags"
	ActionSetDescription ActionType = "set_description"
	ActionSetAmount      ActionType = "set_amount"
	ActionCreateTransfer ActionType = "create_transfer"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionSetCategory, ActionAddTags, ActionSetDescription, ActionSetAmount, ActionCreateTransfer:
		return true
	}
	return false
}

// Action is a tagged variant: Type selects which of the parameter fields apply.
type Action struct {
	Type          ActionType       `json:"type"`
	CategoryID    *int64           `json:"category_id,omitempty"`
	TagIDs        []int64          `json:"tag_ids,omitempty"`
	Template      string           `json:"template,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	AmountFormula string           `json:"amount_formula,omitempty"`
	FromAccountID *int64           `json:"from_account_id,omitempty"`
	ToAccountID   *int64           `json:"to_account_id,omitempty"`
}

const (
	MinRulePriority = 1
	MaxRulePriority = 100
)

type TransactionRule struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"-"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	TriggerType    TriggerType    `json:"trigger_type"`
	Priority       int            `json:"priority"`
	Conditions     ConditionGroup `json:"conditions"`
	Actions        []Action       `json:"actions"`
	IsActive       bool           `json:"is_active"`
	StopProcessing bool           `json:"stop_processing"`
	RunsCount      int64          `json:"runs_count"`
	LastRunAt      *time.Time     `json:"last_run_at"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
}
