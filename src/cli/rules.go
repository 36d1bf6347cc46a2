package cli

import (
	"budgee-automation/src/db/memory"
	"budgee-automation/src/models"
	"budgee-automation/src/rules"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Check rule definitions offline",
	}
	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	cmd.AddCommand(newRulesEvalCommand(rootOpts))
	return cmd
}

func newRulesValidateCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Report every problem in a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := LoadRuleFile(args[0])
			if err != nil {
				return err
			}
			invalid := 0
			for _, def := range file.Rules {
				err := rules.ValidateRule(def.toRule(defaultFixtureUser))
				var verr *rules.ValidationError
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "ok    %d %s\n", def.ID, def.Name)
				case errors.As(err, &verr):
					invalid++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %d %s\n", def.ID, def.Name)
					for _, p := range verr.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "      - %s\n", p)
					}
				default:
					return err
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d rules are invalid", invalid, len(file.Rules))
			}
			return nil
		},
	}
}

// EvalReport is the JSON output of rules eval.
type EvalReport struct {
	Executions   []models.ExecutionLog `json:"executions"`
	Transactions []models.Transaction  `json:"transactions"`
	Accounts     []models.Account      `json:"accounts"`
}

func newRulesEvalCommand(_ *RootOptions) *cobra.Command {
	var (
		rulesPath    string
		fixturePath  string
		abortOnError bool
		maxDepth     int
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Dry-run rules against fixture data",
		Long: `Dry-run rules against fixture data.

Loads the rules and fixture into memory, dispatches the fixture events (one
on_transaction_create per transaction when none are listed) and prints the
execution logs with the resulting transactions and accounts as JSON.

Example:
  budgee-automation rules eval --rules rules.yaml --fixture fixture.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rules.DefaultConfig()
			cfg.AbortOnError = abortOnError
			cfg.MaxDepth = maxDepth
			report, err := evalRules(cmd, rulesPath, fixturePath, cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule file (YAML or JSON)")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "fixture file (YAML or JSON)")
	cmd.Flags().BoolVar(&abortOnError, "abort-on-error", false, "stop a rule at its first failed action")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 1, "deepest rule-created transaction that is dispatched")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

func evalRules(cmd *cobra.Command, rulesPath, fixturePath string, cfg rules.Config) (*EvalReport, error) {
	file, err := LoadRuleFile(rulesPath)
	if err != nil {
		return nil, err
	}
	fixture, err := LoadFixture(fixturePath)
	if err != nil {
		return nil, err
	}

	store := memory.New()
	for _, def := range file.Rules {
		rule := def.toRule(fixture.UserID)
		if err := rules.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d %q: %w", rule.ID, rule.Name, err)
		}
		store.PutRule(rule)
	}
	if err := fixture.Seed(store); err != nil {
		return nil, err
	}

	dispatcher := rules.NewDispatcher(store, store, store, cfg, nil)
	for _, ev := range fixture.EventsOrDefault() {
		_, err := dispatcher.Dispatch(cmd.Context(), rules.Event{
			Type:          ev.Type,
			UserID:        fixture.UserID,
			TransactionID: ev.TransactionID,
		})
		if err != nil {
			return nil, fmt.Errorf("dispatch %s for transaction %d: %w", ev.Type, ev.TransactionID, err)
		}
	}

	report := &EvalReport{
		Executions:   store.Logs(),
		Transactions: store.Transactions(),
		Accounts:     []models.Account{},
	}
	for _, a := range fixture.Accounts {
		account, err := store.GetAccount(cmd.Context(), a.ID)
		if err != nil {
			return nil, err
		}
		report.Accounts = append(report.Accounts, *account)
	}
	if report.Executions == nil {
		report.Executions = []models.ExecutionLog{}
	}
	log.Debug().Int("rules", len(file.Rules)).Int("executions", len(report.Executions)).Msg("Evaluated rules")
	return report, nil
}
