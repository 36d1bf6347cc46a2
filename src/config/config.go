package config

import (
	plaidclient "budgee-automation/src/plaid"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port            string
	DatabaseURL     string
	DatabaseMaxConn int32
	JWTSecret       string
	AllowedOrigins  []string

	PlaidClientID string
	PlaidSecret   string
	PlaidEnv      string
	PlaidTimeout  time.Duration

	LogLevel  string
	LogFormat string

	Rules RulesConfig
}

// RulesConfig tunes the rule engine.
type RulesConfig struct {
	AbortOnError       bool
	LogSkipped         bool
	RuleTimeout        time.Duration
	MaxDepth           int
	CacheTTL           time.Duration
	ReapplyConcurrency int
}

func Load() Config {
	// Load .env file if present
	_ = godotenv.Load()

	return Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseMaxConn: int32(getEnvInt("DATABASE_MAX_CONNS", 0)),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://budgeeapp.com", "https://www.budgeeapp.com"}),

		PlaidClientID: getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:   getEnv("PLAID_SECRET", ""),
		PlaidEnv:      getEnv("PLAID_ENV", "sandbox"),
		PlaidTimeout:  getEnvDuration("PLAID_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Rules: RulesConfig{
			AbortOnError:       getEnvBool("RULES_ABORT_ON_ERROR", false),
			LogSkipped:         getEnvBool("RULES_LOG_SKIPPED", true),
			RuleTimeout:        getEnvDuration("RULES_RULE_TIMEOUT", 5*time.Second),
			MaxDepth:           getEnvInt("RULES_MAX_DEPTH", 1),
			CacheTTL:           getEnvDuration("RULES_CACHE_TTL", 5*time.Minute),
			ReapplyConcurrency: getEnvInt("RULES_REAPPLY_CONCURRENCY", 4),
		},
	}
}

// ValidateServer reports settings the HTTP server cannot run without.
func (c Config) ValidateServer() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.PlaidClientID != "" {
		if _, err := plaidclient.Environment(c.PlaidEnv); err != nil {
			problems = append(problems, "PLAID_ENV must be sandbox or production")
		}
	}
	if c.Rules.MaxDepth < 0 {
		problems = append(problems, "RULES_MAX_DEPTH must not be negative")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// PlaidEnabled reports whether Plaid credentials are configured.
func (c Config) PlaidEnabled() bool {
	return c.PlaidClientID != "" && c.PlaidSecret != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean in environment, using default")
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
