package rules

import (
	"budgee-automation/src/models"
	"context"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

// RuleStore supplies rule definitions and records runs. RecordRun must be an
// atomic increment of runs_count.
type RuleStore interface {
	ListActive(ctx context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error)
	RecordRun(ctx context.Context, ruleID int64, at time.Time) error
}

// EntityRepository reads the records a snapshot is built from and applies
// action mutations. CreateTransfer must lock both account rows the same way the
// manual transfer path does.
type EntityRepository interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	GetTags(ctx context.Context, ids []int64) ([]models.Tag, error)

	SetCategory(ctx context.Context, txnID, categoryID int64) error
	AddTags(ctx context.Context, txnID int64, tagIDs []int64) error
	SetDescription(ctx context.Context, txnID int64, description string) error
	SetAmount(ctx context.Context, txnID int64, amount decimal.Decimal) error
	CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error)
}

// ExecutionLogStore persists execution logs. Rows are never updated.
type ExecutionLogStore interface {
	Append(ctx context.Context, entry models.ExecutionLog) error
}
