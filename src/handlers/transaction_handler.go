package handlers

import (
	db "budgee-automation/src/db/sql"
	"budgee-automation/src/middleware"
	"budgee-automation/src/models"
	"budgee-automation/src/rules"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const defaultTransactionLimit = 100

type transactionResponse struct {
	Transaction    *models.Transaction   `json:"transaction"`
	RuleExecutions []models.ExecutionLog `json:"rule_executions"`
}

// runRules dispatches ev and re-reads the transaction so the response shows
// what the rules changed. The write is already committed, so the dispatch is
// detached from request cancellation and a dispatch failure never fails the
// request.
func runRules(ctx context.Context, dispatcher *rules.Dispatcher, reload transactionLoader, ev rules.Event, txn *models.Transaction) transactionResponse {
	ctx = context.WithoutCancel(ctx)
	resp := transactionResponse{Transaction: txn, RuleExecutions: []models.ExecutionLog{}}
	logs, err := dispatcher.Dispatch(ctx, ev)
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", ev.TransactionID).Str("trigger", string(ev.Type)).
			Msg("Failed to run transaction rules")
		return resp
	}
	if logs != nil {
		resp.RuleExecutions = logs
	}
	if refreshed, err := reload(ctx, txn.ID); err == nil {
		resp.Transaction = refreshed
	}
	return resp
}

type transactionLoader func(ctx context.Context, id int64) (*models.Transaction, error)

func poolLoader(pool *pgxpool.Pool) transactionLoader {
	return func(ctx context.Context, id int64) (*models.Transaction, error) {
		return db.GetTransactionByID(ctx, pool, id)
	}
}

func CreateTransaction(pool *pgxpool.Pool, dispatcher *rules.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		var req models.CreateTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode create transaction request body")
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		date, _ := time.Parse(models.DateLayout, req.Date)
		currency := strings.ToUpper(req.Currency)
		if currency == "" {
			currency = "USD"
		}
		created, err := db.CreateTransaction(r.Context(), pool, &models.Transaction{
			UserID:       userID,
			AccountID:    req.AccountID,
			CategoryID:   req.CategoryID,
			Type:         req.Type,
			Amount:       req.Amount.Round(2),
			Description:  req.Description,
			MerchantName: req.MerchantName,
			Currency:     currency,
			Date:         date,
			TagIDs:       req.TagIDs,
		})
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("account_id", req.AccountID).Msg("Failed to create transaction")
			http.Error(w, "failed to create transaction", statusFor(err))
			return
		}
		log.Info().Int64("transaction_id", created.ID).Int64("user_id", userID).Msg("Created transaction")

		resp := runRules(r.Context(), dispatcher, poolLoader(pool), rules.Event{
			Type:          models.TriggerTransactionCreate,
			UserID:        userID,
			TransactionID: created.ID,
		}, created)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func UpdateTransaction(pool *pgxpool.Pool, dispatcher *rules.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		txnID, err := int64Param(r, "transaction_id")
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		var req models.UpdateTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode update transaction request body")
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		updated, err := db.UpdateTransaction(r.Context(), pool, userID, txnID, req)
		if err != nil {
			log.Error().Err(err).Int64("transaction_id", txnID).Int64("user_id", userID).Msg("Failed to update transaction")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		log.Info().Int64("transaction_id", txnID).Int64("user_id", userID).Msg("Updated transaction")

		resp := runRules(r.Context(), dispatcher, poolLoader(pool), rules.Event{
			Type:          models.TriggerTransactionUpdate,
			UserID:        userID,
			TransactionID: updated.ID,
		}, updated)
		writeJSON(w, http.StatusOK, resp)
	}
}

func GetTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		limit := defaultTransactionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		transactions, err := db.GetTransactionsForUser(r.Context(), pool, userID, limit)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get transactions")
			http.Error(w, "failed to get transactions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, transactions)
	}
}

func DeleteTransaction(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		txnID, err := int64Param(r, "transaction_id")
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}
		if err := db.DeleteTransaction(r.Context(), pool, userID, txnID); err != nil {
			log.Error().Err(err).Int64("transaction_id", txnID).Int64("user_id", userID).Msg("Failed to delete transaction")
			http.Error(w, "failed to delete transaction", statusFor(err))
			return
		}
		log.Info().Int64("transaction_id", txnID).Int64("user_id", userID).Msg("Deleted transaction")
		writeJSON(w, http.StatusOK, map[string]string{"message": "transaction deleted"})
	}
}

func GetAccounts(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		accounts, err := db.GetAccountsForUser(r.Context(), pool, userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get accounts")
			http.Error(w, "failed to get accounts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}
