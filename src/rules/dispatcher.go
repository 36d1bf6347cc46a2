package rules

import (
	"budgee-automation/src/models"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	msgConditionsNotMet = "conditions not met"
	msgRecursionGuard   = "recursion-guard"
)

// Event is one trigger: a transaction was created or updated. Depth counts how
// many rule-created transactions led to it; writes by users start at 0.
type Event struct {
	Type          models.TriggerType
	UserID        int64
	TransactionID int64
	Depth         int
}

type Config struct {
	// AbortOnError stops a rule's action list at the first failed action.
	AbortOnError bool
	// LogSkipped writes a skipped execution log for rules whose conditions do not match.
	LogSkipped bool
	// RuleTimeout bounds the action list of a single rule.
	RuleTimeout time.Duration
	// MaxDepth is the deepest rule-created transaction that is still dispatched.
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{
		AbortOnError: false,
		LogSkipped:   true,
		RuleTimeout:  5 * time.Second,
		MaxDepth:     1,
	}
}

// Dispatcher evaluates a user's rules for one trigger event at a time. It keeps
// no state between calls, so Dispatch may run concurrently for different events.
type Dispatcher struct {
	rules    RuleStore
	repo     EntityRepository
	executor *Executor
	logger   *ExecutionLogger
	metrics  *Metrics
	cfg      Config
}

func NewDispatcher(rules RuleStore, repo EntityRepository, logs ExecutionLogStore, cfg Config, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		rules: rules,
		repo:  repo,
		executor: &Executor{
			Repo:         repo,
			AbortOnError: cfg.AbortOnError,
			Metrics:      metrics,
		},
		logger: &ExecutionLogger{
			Logs:    logs,
			Rules:   rules,
			Metrics: metrics,
		},
		metrics: metrics,
		cfg:     cfg,
	}
}

// SetClock overrides the timestamp source of execution logs.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.logger.Now = now
}

// SortRules orders rules by priority, lowest number first, then by id.
func SortRules(rules []models.TransactionRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// Dispatch runs the event through the user's active rules and returns the
// execution logs written for it. Rule failures are recorded in the logs and
// never returned; an error means the rules or the transaction could not be
// loaded at all.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) ([]models.ExecutionLog, error) {
	started := time.Now()
	defer d.metrics.observeDispatch(started)

	candidates, err := d.rules.ListActive(ctx, ev.UserID, ev.Type)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	active := make([]models.TransactionRule, 0, len(candidates))
	for _, r := range candidates {
		if r.IsActive && r.TriggerType == ev.Type {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	SortRules(active)

	if ev.Depth > d.cfg.MaxDepth {
		d.metrics.incRecursionGuarded()
		log.Warn().Int64("transaction_id", ev.TransactionID).Int("depth", ev.Depth).
			Msg("Skipping rule dispatch for transaction created by a rule")
		logs := make([]models.ExecutionLog, 0, len(active))
		for _, rule := range active {
			logs = append(logs, d.logger.Record(ctx, rule, ev, models.StatusSkipped, nil, msgRecursionGuard, false))
		}
		return logs, nil
	}

	var (
		logs []models.ExecutionLog
		snap *Snapshot
	)
	for _, rule := range active {
		if snap == nil {
			snap, err = BuildSnapshot(ctx, d.repo, ev.TransactionID)
			if err != nil {
				return logs, fmt.Errorf("build snapshot: %w", err)
			}
		}

		res := d.runRule(ctx, rule, snap, ev)
		if res.entry != nil {
			logs = append(logs, *res.entry)
		}
		// Any rule that ran actions may have moved money or changed the
		// transaction, so the next rule reads a fresh snapshot.
		if res.matched || res.outcome.Mutated {
			snap = nil
		}
		for _, transfer := range res.outcome.Transfers {
			d.dispatchTransfer(ctx, ev, transfer)
		}

		if res.matched && rule.StopProcessing && res.status != models.StatusError {
			log.Debug().Int64("rule_id", rule.ID).Int64("transaction_id", ev.TransactionID).
				Msg("Rule stopped further processing")
			break
		}
	}
	return logs, nil
}

type ruleResult struct {
	entry   *models.ExecutionLog
	matched bool
	status  models.ExecutionStatus
	outcome Outcome
}

// runRule evaluates a single rule. A panic anywhere in it becomes an error log
// for this rule only.
func (d *Dispatcher) runRule(ctx context.Context, rule models.TransactionRule, snap *Snapshot, ev Event) (res ruleResult) {
	defer func() {
		if p := recover(); p != nil {
			err := &FaultError{Value: p}
			log.Error().Interface("panic", p).Int64("rule_id", rule.ID).Msg("Rule panicked")
			res.status = models.StatusError
			res.outcome.Mutated = true
			entry := d.logger.Record(ctx, rule, ev, models.StatusError, res.outcome.Results, err.Error(), res.matched)
			res.entry = &entry
		}
	}()

	if !Matches(rule.Conditions, snap.Fields) {
		res.status = models.StatusSkipped
		if d.cfg.LogSkipped {
			entry := d.logger.Record(ctx, rule, ev, models.StatusSkipped, nil, msgConditionsNotMet, false)
			res.entry = &entry
		}
		return res
	}
	res.matched = true

	ruleCtx := ctx
	if d.cfg.RuleTimeout > 0 {
		var cancel context.CancelFunc
		ruleCtx, cancel = context.WithTimeout(ctx, d.cfg.RuleTimeout)
		defer cancel()
	}

	res.outcome = d.executor.Execute(ruleCtx, rule.Actions, snap)
	res.status = res.outcome.Status()
	entry := d.logger.Record(ctx, rule, ev, res.status, res.outcome.Results, res.outcome.ErrorMessage(), true)
	res.entry = &entry
	return res
}

func (d *Dispatcher) dispatchTransfer(ctx context.Context, parent Event, transfer models.Transaction) {
	child := Event{
		Type:          models.TriggerTransactionCreate,
		UserID:        parent.UserID,
		TransactionID: transfer.ID,
		Depth:         parent.Depth + 1,
	}
	if _, err := d.Dispatch(ctx, child); err != nil {
		log.Error().Err(err).Int64("transaction_id", transfer.ID).Msg("Failed to dispatch rules for rule-created transfer")
	}
}
