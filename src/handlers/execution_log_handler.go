package handlers

import (
	db "budgee-automation/src/db/sql"
	"budgee-automation/src/middleware"
	"budgee-automation/src/models"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

func parseLogFilter(q url.Values) (db.ExecutionLogFilter, error) {
	var (
		filter db.ExecutionLogFilter
		err    error
	)
	if raw := q.Get("rule_id"); raw != "" {
		if filter.RuleID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return filter, fmt.Errorf("invalid rule_id %q", raw)
		}
	}
	if raw := q.Get("transaction_id"); raw != "" {
		if filter.TransactionID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return filter, fmt.Errorf("invalid transaction_id %q", raw)
		}
	}
	if raw := q.Get("status"); raw != "" {
		switch status := models.ExecutionStatus(raw); status {
		case models.StatusSuccess, models.StatusPartial, models.StatusError, models.StatusSkipped:
			filter.Status = status
		default:
			return filter, fmt.Errorf("invalid status %q", raw)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
	}
	return filter, nil
}

func GetExecutionLogs(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		filter, err := parseLogFilter(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logs, err := db.GetExecutionLogs(r.Context(), pool, userID, filter)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get rule execution logs")
			http.Error(w, "failed to get execution logs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// GetRuleExecutionLogs lists the logs of the rule named in the path.
func GetRuleExecutionLogs(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		ruleID, err := int64Param(r, "rule_id")
		if err != nil {
			http.Error(w, "invalid rule id", http.StatusBadRequest)
			return
		}
		filter, err := parseLogFilter(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.RuleID = ruleID
		logs, err := db.GetExecutionLogs(r.Context(), pool, userID, filter)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("rule_id", ruleID).Msg("Failed to get rule execution logs")
			http.Error(w, "failed to get execution logs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}
