package cli

import (
	"budgee-automation/src/api"
	"budgee-automation/src/config"
	"budgee-automation/src/db"
	dbsql "budgee-automation/src/db/sql"
	plaidclient "budgee-automation/src/plaid"
	"budgee-automation/src/rules"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

Configuration comes from the environment (and a .env file when present):
DATABASE_URL and JWT_SECRET are required, PLAID_CLIENT_ID and PLAID_SECRET
enable the Plaid routes, RULES_* variables tune the rule engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-format") {
				cfg.LogLevel, cfg.LogFormat = rootOpts.LogLevel, rootOpts.LogFormat
			}
			config.SetupLogging(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// engineConfig maps the environment settings onto the dispatcher's.
func engineConfig(cfg config.RulesConfig) rules.Config {
	return rules.Config{
		AbortOnError: cfg.AbortOnError,
		LogSkipped:   cfg.LogSkipped,
		RuleTimeout:  cfg.RuleTimeout,
		MaxDepth:     cfg.MaxDepth,
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn)
	if err != nil {
		return fmt.Errorf("DB connection failed: %w", err)
	}
	defer pool.Close()

	store := dbsql.NewStore(pool)
	cache, err := db.NewRuleCache(store, cfg.Rules.CacheTTL)
	if err != nil {
		return err
	}
	defer cache.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatcher := rules.NewDispatcher(cache, store, store, engineConfig(cfg.Rules), rules.NewMetrics(registry))

	var plaidClient *plaid.APIClient
	if cfg.PlaidEnabled() {
		plaidClient, err = plaidclient.NewClient(plaidclient.ClientOptions{
			ClientID:    cfg.PlaidClientID,
			Secret:      cfg.PlaidSecret,
			Environment: cfg.PlaidEnv,
			Timeout:     cfg.PlaidTimeout,
		})
		if err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		Pool:        pool,
		Dispatcher:  dispatcher,
		RuleCache:   cache,
		Registry:    registry,
		PlaidClient: plaidClient,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Bool("plaid", plaidClient != nil).Msg("API server running")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
