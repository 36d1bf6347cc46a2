package handlers

import (
	"budgee-automation/src/middleware"
	"budgee-automation/src/models"
	plaidsync "budgee-automation/src/plaid"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	users []int64
}

func (r *recordingInvalidator) InvalidateUser(userID int64) {
	r.users = append(r.users, userID)
}

// serve routes a single request through chi as user 7. Handlers under test
// must answer before they touch the database.
func serve(t *testing.T, method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), 7)))
		})
	})
	router.MethodFunc(method, pattern, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

const validRuleBody = `{
	"name": "Rides",
	"trigger_type": "on_transaction_create",
	"conditions": {"match": "all", "conditions": [{"field": "description", "op": "contains", "value": "uber"}]},
	"actions": [{"type": "set_category", "category_id": 3}]
}`

func TestCreateTransactionRule_RejectsInvalidRules(t *testing.T) {
	cache := &recordingInvalidator{}
	body := `{"name": "", "trigger_type": "on_transaction_create", "priority": 500,
		"conditions": {"match": "all", "conditions": []}, "actions": [{"type": "launch_rocket"}]}`

	rec := serve(t, http.MethodPost, "/rules", "/rules", body, CreateTransactionRule(nil, cache))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error    string   `json:"error"`
		Problems []string `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid rule", resp.Error)
	assert.Contains(t, resp.Problems, "name is required")
	assert.Contains(t, resp.Problems, "priority must be between 1 and 100")
	assert.Contains(t, resp.Problems, "at least one condition is required")
	assert.Empty(t, cache.users)
}

func TestCreateTransactionRule_RejectsMalformedJSON(t *testing.T) {
	rec := serve(t, http.MethodPost, "/rules", "/rules", `{"name":`, CreateTransactionRule(nil, &recordingInvalidator{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateTransactionRule(t *testing.T) {
	rec := serve(t, http.MethodPost, "/rules/validate", "/rules/validate", validRuleBody, ValidateTransactionRule())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid": true}`, rec.Body.String())

	rec = serve(t, http.MethodPost, "/rules/validate", "/rules/validate",
		strings.Replace(validRuleBody, `"on_transaction_create"`, `"on_budget_exceeded"`, 1), ValidateTransactionRule())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `unknown trigger_type \"on_budget_exceeded\"`)
}

func TestTransactionRuleRequest_Defaults(t *testing.T) {
	var req transactionRuleRequest
	require.NoError(t, json.Unmarshal([]byte(validRuleBody), &req))

	rule := req.toRule(7)
	assert.Equal(t, int64(7), rule.UserID)
	assert.Equal(t, defaultRulePriority, rule.Priority)
	assert.True(t, rule.IsActive)

	inactive := false
	priority := 3
	req.IsActive, req.Priority = &inactive, &priority
	rule = req.toRule(7)
	assert.False(t, rule.IsActive)
	assert.Equal(t, 3, rule.Priority)
}

func TestHandlers_RejectBadPathIDs(t *testing.T) {
	cache := &recordingInvalidator{}
	tests := []struct {
		name    string
		method  string
		pattern string
		handler http.HandlerFunc
	}{
		{"get rule", http.MethodGet, "/rules/{rule_id}", GetTransactionRuleByID(nil)},
		{"update rule", http.MethodPut, "/rules/{rule_id}", UpdateTransactionRule(nil, cache)},
		{"delete rule", http.MethodDelete, "/rules/{rule_id}", DeleteTransactionRule(nil, cache)},
		{"rule logs", http.MethodGet, "/rules/{rule_id}", GetRuleExecutionLogs(nil)},
		{"update transaction", http.MethodPatch, "/rules/{transaction_id}", UpdateTransaction(nil, nil)},
		{"delete transaction", http.MethodDelete, "/rules/{transaction_id}", DeleteTransaction(nil)},
		{"sync item", http.MethodPost, "/rules/{item_id}", SyncTransactions(nil, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, tt.method, tt.pattern, "/rules/abc", validRuleBody, tt.handler)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, cache.users)
}

func TestCreateTransaction_ValidatesBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"amount": }`, "invalid request"},
		{"missing account", `{"type": "expense", "amount": "5", "date": "2024-03-01"}`, "account_id is required"},
		{"transfer type", `{"account_id": 1, "type": "transfer", "amount": "5", "date": "2024-03-01"}`, "type must be income or expense"},
		{"zero amount", `{"account_id": 1, "type": "income", "amount": "0", "date": "2024-03-01"}`, "amount must be positive"},
		{"bad date", `{"account_id": 1, "type": "income", "amount": "5", "date": "03/01/2024"}`, "date must be YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, "/transactions", "/transactions", tt.body, CreateTransaction(nil, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestGetTransactions_RejectsBadLimit(t *testing.T) {
	rec := serve(t, http.MethodGet, "/transactions", "/transactions?limit=-1", "", GetTransactions(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseLogFilter(t *testing.T) {
	filter, err := parseLogFilter(url.Values{
		"rule_id":        {"4"},
		"transaction_id": {"12"},
		"status":         {"partial"},
		"limit":          {"20"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), filter.RuleID)
	assert.Equal(t, int64(12), filter.TransactionID)
	assert.Equal(t, models.StatusPartial, filter.Status)
	assert.Equal(t, 20, filter.Limit)

	filter, err = parseLogFilter(url.Values{})
	require.NoError(t, err)
	assert.Zero(t, filter)

	for _, q := range []url.Values{
		{"rule_id": {"x"}},
		{"transaction_id": {"1.5"}},
		{"status": {"done"}},
		{"limit": {"0"}},
	} {
		_, err := parseLogFilter(q)
		assert.Error(t, err, q.Encode())
	}
}

func TestGetExecutionLogs_RejectsBadFilter(t *testing.T) {
	rec := serve(t, http.MethodGet, "/logs", "/logs?status=done", "", GetExecutionLogs(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `invalid status "done"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("rule 3: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad date", models.ErrInvalidRequest), http.StatusBadRequest},
		{models.ErrInvalidTransfer, http.StatusBadRequest},
		{fmt.Errorf("account 1: %w", models.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestPlaidWebhook_RejectsUnsignedRequests(t *testing.T) {
	verifier := plaidsync.NewWebhookVerifier(nil)
	rec := serve(t, http.MethodPost, "/webhook", "/webhook",
		`{"webhook_type": "TRANSACTIONS", "webhook_code": "SYNC_UPDATES_AVAILABLE", "item_id": "item-1"}`,
		PlaidWebhook(nil, verifier, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
