package rules

import (
	"budgee-automation/src/models"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ExecutionLogger writes one audit row per rule evaluation and bumps the rule's
// run statistics after matched executions. Storage failures are logged and
// swallowed: auditing must not break the write that triggered the rules.
type ExecutionLogger struct {
	Logs    ExecutionLogStore
	Rules   RuleStore
	Metrics *Metrics
	Now     func() time.Time
}

// Record builds and stores the execution log for one rule.
func (l *ExecutionLogger) Record(ctx context.Context, rule models.TransactionRule, ev Event, status models.ExecutionStatus, results []models.ActionResult, message string, matched bool) models.ExecutionLog {
	now := l.now()
	entry := models.ExecutionLog{
		ID:                uuid.New(),
		RuleID:            rule.ID,
		TriggerEntityType: models.TriggerEntityTransaction,
		TriggerEntityID:   ev.TransactionID,
		ActionsExecuted:   results,
		Status:            status,
		CreatedAt:         now,
	}
	if entry.ActionsExecuted == nil {
		entry.ActionsExecuted = []models.ActionResult{}
	}
	if message != "" {
		msg := message
		entry.ErrorMessage = &msg
	}

	if err := l.Logs.Append(ctx, entry); err != nil {
		log.Error().Err(err).Int64("rule_id", rule.ID).Int64("transaction_id", ev.TransactionID).
			Msg("Failed to append rule execution log")
	}
	if matched {
		if err := l.Rules.RecordRun(ctx, rule.ID, now); err != nil {
			log.Error().Err(err).Int64("rule_id", rule.ID).Msg("Failed to record rule run")
		}
	}
	l.Metrics.observeEvaluation(status)

	event := log.Info()
	if status == models.StatusError || status == models.StatusPartial {
		event = log.Warn()
	} else if status == models.StatusSkipped {
		event = log.Debug()
	}
	event.Int64("rule_id", rule.ID).Str("rule", rule.Name).Int64("transaction_id", ev.TransactionID).
		Str("trigger", string(ev.Type)).Str("status", string(status)).Str("detail", message).
		Msg("Rule evaluated")
	return entry
}

func (l *ExecutionLogger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
