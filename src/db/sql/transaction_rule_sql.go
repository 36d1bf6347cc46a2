package db

import (
	"budgee-automation/src/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ruleColumns = `id, user_id, name, description, trigger_type, priority, conditions, actions,
	is_active, stop_processing, runs_count, last_run_at, created_at, updated_at`

func scanRule(row pgx.Row) (*models.TransactionRule, error) {
	var (
		r          models.TransactionRule
		conditions []byte
		actions    []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Description, &r.TriggerType, &r.Priority, &conditions, &actions,
		&r.IsActive, &r.StopProcessing, &r.RunsCount, &r.LastRunAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of rule %d: %w", r.ID, err)
	}
	if err := json.Unmarshal(actions, &r.Actions); err != nil {
		return nil, fmt.Errorf("decode actions of rule %d: %w", r.ID, err)
	}
	return &r, nil
}

func queryRules(ctx context.Context, pool *pgxpool.Pool, query string, args ...interface{}) ([]models.TransactionRule, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.TransactionRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func encodeRuleBody(rule *models.TransactionRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	return conditions, actions, nil
}

func CreateTransactionRule(ctx context.Context, pool *pgxpool.Pool, rule *models.TransactionRule) (*models.TransactionRule, error) {
	conditions, actions, err := encodeRuleBody(rule)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO transaction_rules (user_id, name, description, trigger_type, priority, conditions, actions, is_active, stop_processing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + ruleColumns
	return scanRule(pool.QueryRow(ctx, query, rule.UserID, rule.Name, rule.Description, rule.TriggerType, rule.Priority,
		conditions, actions, rule.IsActive, rule.StopProcessing))
}

func GetTransactionRuleByID(ctx context.Context, pool *pgxpool.Pool, userID, ruleID int64) (*models.TransactionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE id = $1 AND user_id = $2`
	r, err := scanRule(pool.QueryRow(ctx, query, ruleID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction rule %d: %w", ruleID, models.ErrNotFound)
	}
	return r, err
}

func GetAllTransactionRules(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.TransactionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE user_id = $1 ORDER BY priority, id`
	return queryRules(ctx, pool, query, userID)
}

// GetActiveTransactionRules returns the rules the dispatcher evaluates for one
// trigger, already in evaluation order.
func GetActiveTransactionRules(ctx context.Context, pool *pgxpool.Pool, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM transaction_rules
		WHERE user_id = $1 AND trigger_type = $2 AND is_active
		ORDER BY priority, id
	`
	return queryRules(ctx, pool, query, userID, trigger)
}

func UpdateTransactionRule(ctx context.Context, pool *pgxpool.Pool, rule *models.TransactionRule) (*models.TransactionRule, error) {
	conditions, actions, err := encodeRuleBody(rule)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE transaction_rules
		SET name = $1, description = $2, trigger_type = $3, priority = $4, conditions = $5, actions = $6,
			is_active = $7, stop_processing = $8, updated_at = NOW()
		WHERE id = $9 AND user_id = $10
		RETURNING ` + ruleColumns
	r, err := scanRule(pool.QueryRow(ctx, query, rule.Name, rule.Description, rule.TriggerType, rule.Priority,
		conditions, actions, rule.IsActive, rule.StopProcessing, rule.ID, rule.UserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction rule %d: %w", rule.ID, models.ErrNotFound)
	}
	return r, err
}

func DeleteTransactionRule(ctx context.Context, pool *pgxpool.Pool, userID, ruleID int64) error {
	query := `DELETE FROM transaction_rules WHERE id = $1 AND user_id = $2`
	cmd, err := pool.Exec(ctx, query, ruleID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction rule %d: %w", ruleID, models.ErrNotFound)
	}
	return nil
}

// RecordTransactionRuleRun bumps runs_count in a single statement so that
// concurrent dispatches never lose an increment.
func RecordTransactionRuleRun(ctx context.Context, pool *pgxpool.Pool, ruleID int64, at time.Time) error {
	query := `UPDATE transaction_rules SET runs_count = runs_count + 1, last_run_at = $1 WHERE id = $2`
	cmd, err := pool.Exec(ctx, query, at, ruleID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction rule %d: %w", ruleID, models.ErrNotFound)
	}
	return nil
}
