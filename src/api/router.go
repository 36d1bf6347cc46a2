package api

import (
	"budgee-automation/src/config"
	"budgee-automation/src/db"
	"budgee-automation/src/handlers"
	"budgee-automation/src/middleware"
	plaidsync "budgee-automation/src/plaid"
	"budgee-automation/src/rules"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Deps is everything the HTTP layer needs. PlaidClient is nil when Plaid is
// not configured; the Plaid routes are then left out.
type Deps struct {
	Config      config.Config
	Pool        *pgxpool.Pool
	Dispatcher  *rules.Dispatcher
	RuleCache   *db.RuleCache
	Registry    *prometheus.Registry
	PlaidClient *plaid.APIClient
}

func NewRouter(deps Deps) *chi.Mux {
	pool := deps.Pool
	cfg := deps.Config

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	var syncer *plaidsync.Syncer
	if deps.PlaidClient != nil {
		syncer = &plaidsync.Syncer{Client: deps.PlaidClient, Pool: pool, Dispatcher: deps.Dispatcher}
	}

	r.Route("/api", func(r chi.Router) {
		if syncer != nil {
			verifier := plaidsync.NewWebhookVerifier(deps.PlaidClient)
			r.Post("/plaid/webhook", handlers.PlaidWebhook(pool, verifier, syncer))
		}

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(cfg.JWTSecret)).Group(func(r chi.Router) {
			// Accounts and transactions
			r.Get("/accounts", handlers.GetAccounts(pool))
			r.Get("/transactions", handlers.GetTransactions(pool))
			r.Post("/transactions", handlers.CreateTransaction(pool, deps.Dispatcher))
			r.Patch("/transactions/{transaction_id}", handlers.UpdateTransaction(pool, deps.Dispatcher))
			r.Delete("/transactions/{transaction_id}", handlers.DeleteTransaction(pool))

			// Transaction Rules
			r.Post("/transaction-rules", handlers.CreateTransactionRule(pool, deps.RuleCache))
			r.Post("/transaction-rules/validate", handlers.ValidateTransactionRule())
			r.Post("/transaction-rules/trigger", handlers.TriggerTransactionRules(pool, deps.Dispatcher, cfg.Rules.ReapplyConcurrency))
			r.Get("/transaction-rules", handlers.GetAllTransactionRules(pool))
			r.Get("/transaction-rules/{rule_id}", handlers.GetTransactionRuleByID(pool))
			r.Get("/transaction-rules/{rule_id}/executions", handlers.GetRuleExecutionLogs(pool))
			r.Put("/transaction-rules/{rule_id}", handlers.UpdateTransactionRule(pool, deps.RuleCache))
			r.Delete("/transaction-rules/{rule_id}", handlers.DeleteTransactionRule(pool, deps.RuleCache))

			// Execution logs
			r.Get("/rule-executions", handlers.GetExecutionLogs(pool))

			// Plaid
			if syncer != nil {
				r.Post("/plaid/create-link-token", handlers.CreateLinkToken(deps.PlaidClient))
				r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(deps.PlaidClient, pool, syncer))
				r.Get("/plaid/items", handlers.GetPlaidItems(pool))
				r.Post("/plaid/items/{item_id}/sync", handlers.SyncTransactions(pool, syncer))
			}
		})
	})

	if syncer == nil {
		log.Info().Msg("Plaid is not configured, Plaid routes are disabled")
	}
	return r
}
