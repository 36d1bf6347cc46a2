package plaid

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/rs/zerolog/log"
)

const defaultClientTimeout = 30 * time.Second

// ClientOptions holds the credentials and host selection for the Plaid API.
type ClientOptions struct {
	ClientID    string
	Secret      string
	Environment string
	Timeout     time.Duration
}

// Environment maps a PLAID_ENV value to the Plaid API host.
func Environment(name string) (plaid.Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sandbox":
		return plaid.Sandbox, nil
	case "production":
		return plaid.Production, nil
	}
	return "", fmt.Errorf("invalid Plaid environment %q: must be sandbox or production", name)
}

func NewClient(opts ClientOptions) (*plaid.APIClient, error) {
	if opts.ClientID == "" || opts.Secret == "" {
		return nil, errors.New("plaid client id and secret are required")
	}
	env, err := Environment(opts.Environment)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", opts.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", opts.Secret)
	configuration.UseEnvironment(env)
	configuration.UserAgent = "budgee-automation"
	configuration.HTTPClient = &http.Client{Timeout: timeout}

	log.Info().Str("environment", strings.ToLower(strings.TrimSpace(opts.Environment))).Dur("timeout", timeout).
		Msg("Plaid client configured")
	return plaid.NewAPIClient(configuration), nil
}
