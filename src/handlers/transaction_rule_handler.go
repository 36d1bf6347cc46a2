package handlers

import (
	db "budgee-automation/src/db/sql"
	"budgee-automation/src/middleware"
	"budgee-automation/src/models"
	"budgee-automation/src/rules"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const defaultRulePriority = 50

type transactionRuleRequest struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	TriggerType    models.TriggerType    `json:"trigger_type"`
	Priority       *int                  `json:"priority"`
	Conditions     models.ConditionGroup `json:"conditions"`
	Actions        []models.Action       `json:"actions"`
	IsActive       *bool                 `json:"is_active"`
	StopProcessing bool                  `json:"stop_processing"`
}

func (req transactionRuleRequest) toRule(userID int64) *models.TransactionRule {
	rule := &models.TransactionRule{
		UserID:         userID,
		Name:           req.Name,
		Description:    req.Description,
		TriggerType:    req.TriggerType,
		Priority:       defaultRulePriority,
		Conditions:     req.Conditions,
		Actions:        req.Actions,
		IsActive:       true,
		StopProcessing: req.StopProcessing,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

// decodeRule reads and validates a rule body. It writes the error response
// itself and returns nil when the body is unusable.
func decodeRule(w http.ResponseWriter, r *http.Request, userID int64) *models.TransactionRule {
	var req transactionRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode transaction rule request body")
		http.Error(w, "invalid request", http.StatusBadRequest)
		return nil
	}
	rule := req.toRule(userID)
	if err := rules.ValidateRule(*rule); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid rule", "problems": verr.Problems})
			return nil
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	return rule
}

func CreateTransactionRule(pool *pgxpool.Pool, cache RuleInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		rule := decodeRule(w, r, userID)
		if rule == nil {
			return
		}
		created, err := db.CreateTransactionRule(r.Context(), pool, rule)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to create transaction rule")
			http.Error(w, "failed to create transaction rule", http.StatusInternalServerError)
			return
		}
		cache.InvalidateUser(userID)
		log.Info().Int64("rule_id", created.ID).Int64("user_id", userID).Str("name", created.Name).Msg("Created transaction rule")
		writeJSON(w, http.StatusCreated, created)
	}
}

// ValidateTransactionRule checks a rule body without storing it.
func ValidateTransactionRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if rule := decodeRule(w, r, userID); rule != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
		}
	}
}

func GetTransactionRuleByID(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		ruleID, err := int64Param(r, "rule_id")
		if err != nil {
			http.Error(w, "invalid rule id", http.StatusBadRequest)
			return
		}
		rule, err := db.GetTransactionRuleByID(r.Context(), pool, userID, ruleID)
		if err != nil {
			log.Error().Err(err).Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Failed to get transaction rule")
			http.Error(w, "transaction rule not found", statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func GetAllTransactionRules(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		list, err := db.GetAllTransactionRules(r.Context(), pool, userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get transaction rules")
			http.Error(w, "failed to get transaction rules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func UpdateTransactionRule(pool *pgxpool.Pool, cache RuleInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		ruleID, err := int64Param(r, "rule_id")
		if err != nil {
			http.Error(w, "invalid rule id", http.StatusBadRequest)
			return
		}
		rule := decodeRule(w, r, userID)
		if rule == nil {
			return
		}
		rule.ID = ruleID
		updated, err := db.UpdateTransactionRule(r.Context(), pool, rule)
		if err != nil {
			log.Error().Err(err).Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Failed to update transaction rule")
			http.Error(w, "failed to update transaction rule", statusFor(err))
			return
		}
		cache.InvalidateUser(userID)
		log.Info().Int64("rule_id", updated.ID).Int64("user_id", userID).Msg("Updated transaction rule")
		writeJSON(w, http.StatusOK, updated)
	}
}

func DeleteTransactionRule(pool *pgxpool.Pool, cache RuleInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		ruleID, err := int64Param(r, "rule_id")
		if err != nil {
			http.Error(w, "invalid rule id", http.StatusBadRequest)
			return
		}
		if err := db.DeleteTransactionRule(r.Context(), pool, userID, ruleID); err != nil {
			log.Error().Err(err).Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Failed to delete transaction rule")
			http.Error(w, "failed to delete transaction rule", statusFor(err))
			return
		}
		cache.InvalidateUser(userID)
		log.Info().Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Deleted transaction rule")
		writeJSON(w, http.StatusOK, map[string]string{"message": "transaction rule deleted"})
	}
}

// TriggerTransactionRules re-runs the user's on_transaction_update rules over
// all of their transactions.
func TriggerTransactionRules(pool *pgxpool.Pool, dispatcher *rules.Dispatcher, concurrency int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		ids, err := db.GetTransactionIDsForUser(r.Context(), pool, userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list transactions for rule trigger")
			http.Error(w, "failed to trigger transaction rules", http.StatusInternalServerError)
			return
		}
		result, err := rules.Reapply(r.Context(), dispatcher, userID, ids, concurrency)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to trigger transaction rules")
			http.Error(w, "failed to trigger transaction rules", http.StatusInternalServerError)
			return
		}
		log.Info().Int64("user_id", userID).Int("transactions", result.Transactions).Int("matched", result.Matched).
			Int("failed", result.Failed).Msg("Triggered transaction rules")
		writeJSON(w, http.StatusOK, result)
	}
}
