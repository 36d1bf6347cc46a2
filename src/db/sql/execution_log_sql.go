package db

import (
	"budgee-automation/src/models"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func AppendExecutionLog(ctx context.Context, pool *pgxpool.Pool, entry models.ExecutionLog) error {
	actions, err := json.Marshal(entry.ActionsExecuted)
	if err != nil {
		return fmt.Errorf("encode actions_executed: %w", err)
	}
	query := `
		INSERT INTO rule_execution_logs (id, rule_id, trigger_entity_type, trigger_entity_id, actions_executed, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = pool.Exec(ctx, query, entry.ID, entry.RuleID, entry.TriggerEntityType, entry.TriggerEntityID, actions,
		entry.Status, entry.ErrorMessage, entry.CreatedAt)
	return err
}

// ExecutionLogFilter narrows an execution log listing. Zero values match everything.
type ExecutionLogFilter struct {
	RuleID        int64
	TransactionID int64
	Status        models.ExecutionStatus
	Limit         int
}

// GetExecutionLogs lists a user's execution logs, newest first.
func GetExecutionLogs(ctx context.Context, pool *pgxpool.Pool, userID int64, filter ExecutionLogFilter) ([]models.ExecutionLog, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	query := `
		SELECT l.id, l.rule_id, l.trigger_entity_type, l.trigger_entity_id, l.actions_executed, l.status, l.error_message, l.created_at
		FROM rule_execution_logs l
		JOIN transaction_rules r ON r.id = l.rule_id
		WHERE r.user_id = $1
			AND ($2::bigint = 0 OR l.rule_id = $2)
			AND ($3::bigint = 0 OR (l.trigger_entity_type = 'transaction' AND l.trigger_entity_id = $3))
			AND ($4::text = '' OR l.status = $4)
		ORDER BY l.created_at DESC
		LIMIT $5
	`
	rows, err := pool.Query(ctx, query, userID, filter.RuleID, filter.TransactionID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.ExecutionLog{}
	for rows.Next() {
		var (
			l       models.ExecutionLog
			actions []byte
		)
		err := rows.Scan(&l.ID, &l.RuleID, &l.TriggerEntityType, &l.TriggerEntityID, &actions, &l.Status, &l.ErrorMessage, &l.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actions, &l.ActionsExecuted); err != nil {
			return nil, fmt.Errorf("decode actions_executed of log %s: %w", l.ID, err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
