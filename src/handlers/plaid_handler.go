package handlers

import (
	db "budgee-automation/src/db/sql"
	"budgee-automation/src/middleware"
	plaidsync "budgee-automation/src/plaid"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/rs/zerolog/log"
)

const (
	maxWebhookBody     = 1 << 20
	webhookSyncTimeout = 2 * time.Minute
)

func CreateLinkToken(plaidClient *plaid.APIClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		user := plaid.LinkTokenCreateRequestUser{
			ClientUserId: strconv.FormatInt(userID, 10),
		}
		request := plaid.NewLinkTokenCreateRequest(
			"Budgee",
			"en",
			[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		)
		request.SetUser(user)
		request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
		resp, _, err := plaidClient.PlaidApi.LinkTokenCreate(r.Context()).LinkTokenCreateRequest(*request).Execute()
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Plaid link token creation failed")
			http.Error(w, "failed to create link token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"link_token": resp.GetLinkToken()})
	}
}

// ExchangePublicToken stores the linked item and runs a first sync so the
// user's rules see the imported transactions straight away.
func ExchangePublicToken(plaidClient *plaid.APIClient, pool *pgxpool.Pool, syncer *plaidsync.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode exchange public token request body")
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		exchangeReq := plaid.NewItemPublicTokenExchangeRequest(req.PublicToken)
		exchangeResp, _, err := plaidClient.PlaidApi.ItemPublicTokenExchange(r.Context()).ItemPublicTokenExchangeRequest(*exchangeReq).Execute()
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Plaid public token exchange failed")
			http.Error(w, "failed to exchange public token", http.StatusInternalServerError)
			return
		}
		accessToken := exchangeResp.GetAccessToken()
		itemID := exchangeResp.GetItemId()

		// Institution details are optional.
		var institutionID, institutionName string
		itemResp, _, err := plaidClient.PlaidApi.ItemGet(r.Context()).ItemGetRequest(*plaid.NewItemGetRequest(accessToken)).Execute()
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Str("item_id", itemID).Msg("Failed to fetch Plaid item details")
		} else {
			item := itemResp.GetItem()
			if item.InstitutionId.IsSet() && item.InstitutionId.Get() != nil {
				institutionID = *item.InstitutionId.Get()
			}
			institutionName, _ = item.AdditionalProperties["institution_name"].(string)
		}

		id, err := db.SavePlaidItem(r.Context(), pool, userID, itemID, accessToken, institutionID, institutionName)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to save Plaid item")
			http.Error(w, "failed to save plaid item", http.StatusInternalServerError)
			return
		}
		log.Info().Int64("user_id", userID).Str("item_id", itemID).Msg("Exchanged public token and saved Plaid item")

		item, err := db.GetPlaidItem(r.Context(), pool, userID, id)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("item_id", id).Msg("Failed to reload Plaid item")
			http.Error(w, "failed to load plaid item", http.StatusInternalServerError)
			return
		}
		result, err := syncer.SyncItem(r.Context(), item)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("item_id", id).Msg("Initial Plaid sync failed")
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"item": item, "sync": result})
	}
}

func GetPlaidItems(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		items, err := db.GetPlaidItemsSQL(r.Context(), pool, userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get Plaid items")
			http.Error(w, "failed to retrieve plaid items", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func SyncTransactions(pool *pgxpool.Pool, syncer *plaidsync.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		itemID, err := int64Param(r, "item_id")
		if err != nil {
			http.Error(w, "invalid item id", http.StatusBadRequest)
			return
		}
		item, err := db.GetPlaidItem(r.Context(), pool, userID, itemID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("item_id", itemID).Msg("Failed to get Plaid item")
			http.Error(w, "plaid item not found", statusFor(err))
			return
		}
		result, err := syncer.SyncItem(r.Context(), item)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int64("item_id", itemID).Msg("Plaid sync failed")
			http.Error(w, "failed to sync transactions", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type plaidWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// PlaidWebhook accepts verified webhooks and starts a sync in the background
// when Plaid reports new transactions.
func PlaidWebhook(pool *pgxpool.Pool, verifier *plaidsync.WebhookVerifier, syncer *plaidsync.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := verifier.Verify(r.Context(), r.Header, body); err != nil {
			log.Warn().Err(err).Msg("Rejected Plaid webhook")
			http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
			return
		}

		var hook plaidWebhook
		if err := json.Unmarshal(body, &hook); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		log.Info().Str("webhook_type", hook.WebhookType).Str("webhook_code", hook.WebhookCode).
			Str("item_id", hook.ItemID).Msg("Received Plaid webhook")

		if hook.WebhookType != "TRANSACTIONS" || hook.WebhookCode != "SYNC_UPDATES_AVAILABLE" {
			w.WriteHeader(http.StatusOK)
			return
		}
		item, err := db.GetPlaidItemByPlaidID(r.Context(), pool, hook.ItemID)
		if err != nil {
			log.Error().Err(err).Str("item_id", hook.ItemID).Msg("Webhook for unknown Plaid item")
			w.WriteHeader(http.StatusOK)
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), webhookSyncTimeout)
			defer cancel()
			if _, err := syncer.SyncItem(ctx, item); err != nil {
				log.Error().Err(err).Int64("item_id", item.ID).Msg("Webhook-triggered Plaid sync failed")
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	}
}
