package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "PORT", "PLAID_ENV", "CORS_ALLOWED_ORIGINS", "RULES_ABORT_ON_ERROR", "RULES_LOG_SKIPPED",
		"RULES_RULE_TIMEOUT", "RULES_MAX_DEPTH", "RULES_CACHE_TTL", "RULES_REAPPLY_CONCURRENCY")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sandbox", cfg.PlaidEnv)
	assert.Equal(t, []string{"https://budgeeapp.com", "https://www.budgeeapp.com"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Rules.AbortOnError)
	assert.True(t, cfg.Rules.LogSkipped)
	assert.Equal(t, 1, cfg.Rules.MaxDepth)
	assert.Equal(t, 5*time.Second, cfg.Rules.RuleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Rules.CacheTTL)
	assert.Equal(t, 4, cfg.Rules.ReapplyConcurrency)
}

func TestLoad_ParsesRuleSettings(t *testing.T) {
	t.Setenv("RULES_ABORT_ON_ERROR", "true")
	t.Setenv("RULES_LOG_SKIPPED", "false")
	t.Setenv("RULES_RULE_TIMEOUT", "250ms")
	t.Setenv("RULES_MAX_DEPTH", "0")
	t.Setenv("RULES_REAPPLY_CONCURRENCY", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, ,https://app.example.com")

	cfg := Load()

	assert.True(t, cfg.Rules.AbortOnError)
	assert.False(t, cfg.Rules.LogSkipped)
	assert.Equal(t, 250*time.Millisecond, cfg.Rules.RuleTimeout)
	assert.Equal(t, 0, cfg.Rules.MaxDepth)
	assert.Equal(t, 8, cfg.Rules.ReapplyConcurrency)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RULES_ABORT_ON_ERROR", "sometimes")
	t.Setenv("RULES_RULE_TIMEOUT", "soon")
	t.Setenv("RULES_MAX_DEPTH", "deep")

	cfg := Load()

	assert.False(t, cfg.Rules.AbortOnError)
	assert.Equal(t, 5*time.Second, cfg.Rules.RuleTimeout)
	assert.Equal(t, 1, cfg.Rules.MaxDepth)
}

func TestValidateServer(t *testing.T) {
	cfg := Config{PlaidEnv: "sandbox"}
	err := cfg.ValidateServer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET is required")

	cfg.DatabaseURL = "postgres://localhost/budgee"
	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.ValidateServer())

	cfg.PlaidClientID = "client"
	cfg.PlaidEnv = "Production"
	assert.NoError(t, cfg.ValidateServer())

	cfg.PlaidEnv = "staging"
	assert.Error(t, cfg.ValidateServer())
}

func TestSetupLogging(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	SetupLogging("warn", "json", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("rule", "uber").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"rule":"uber"`)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
