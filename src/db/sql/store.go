package db

import (
	"budgee-automation/src/models"
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store exposes the SQL functions of this package as the rule engine's
// RuleStore, EntityRepository and ExecutionLogStore.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListActive(ctx context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error) {
	return GetActiveTransactionRules(ctx, s.pool, userID, trigger)
}

func (s *Store) RecordRun(ctx context.Context, ruleID int64, at time.Time) error {
	return RecordTransactionRuleRun(ctx, s.pool, ruleID, at)
}

func (s *Store) Append(ctx context.Context, entry models.ExecutionLog) error {
	return AppendExecutionLog(ctx, s.pool, entry)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	return GetTransactionByID(ctx, s.pool, id)
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return GetAccountByID(ctx, s.pool, id)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return GetCategoryByID(ctx, s.pool, id)
}

func (s *Store) GetTags(ctx context.Context, ids []int64) ([]models.Tag, error) {
	return GetTagsByIDs(ctx, s.pool, ids)
}

func (s *Store) SetCategory(ctx context.Context, txnID, categoryID int64) error {
	return SetTransactionCategory(ctx, s.pool, txnID, categoryID)
}

func (s *Store) AddTags(ctx context.Context, txnID int64, tagIDs []int64) error {
	return AddTransactionTags(ctx, s.pool, txnID, tagIDs)
}

func (s *Store) SetDescription(ctx context.Context, txnID int64, description string) error {
	return SetTransactionDescription(ctx, s.pool, txnID, description)
}

func (s *Store) SetAmount(ctx context.Context, txnID int64, amount decimal.Decimal) error {
	return SetTransactionAmount(ctx, s.pool, txnID, amount)
}

func (s *Store) CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error) {
	return CreateTransfer(ctx, s.pool, req)
}
