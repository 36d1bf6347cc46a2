package api

import (
	"budgee-automation/src/config"
	"budgee-automation/src/middleware"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-secret"

func newTestRouter() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return NewRouter(Deps{
		Config:   config.Config{JWTSecret: testSecret, AllowedOrigins: []string{"https://budgeeapp.com"}},
		Registry: reg,
	})
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter()

	rec := do(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_RequiresToken(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{"/api/transactions", "/api/transaction-rules", "/api/rule-executions"} {
		rec := do(t, router, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_AuthenticatedValidate(t *testing.T) {
	router := newTestRouter()
	token, err := middleware.IssueToken(testSecret, 5, time.Minute)
	require.NoError(t, err)

	body := `{"name": "Rides", "trigger_type": "on_transaction_create",
		"conditions": {"match": "any", "conditions": [{"field": "amount", "op": "gt", "value": 10}]},
		"actions": [{"type": "add_tags", "tag_ids": [1]}]}`
	rec := do(t, router, http.MethodPost, "/api/transaction-rules/validate", body, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid": true}`, rec.Body.String())
}

func TestRouter_PlaidRoutesDisabledWithoutClient(t *testing.T) {
	router := newTestRouter()
	token, err := middleware.IssueToken(testSecret, 5, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/plaid/webhook", "{}", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/plaid/items", "", token).Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "https://budgeeapp.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://budgeeapp.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
