package rules

import (
	"budgee-automation/src/models"
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Executor applies a rule's actions to the triggering transaction.
//
// By default a failed action does not stop the actions after it: the rule ends
// up partial and every failure is visible in the execution log. With
// AbortOnError set, the first failure stops the list and the remaining actions
// are recorded as skipped.
type Executor struct {
	Repo         EntityRepository
	AbortOnError bool
	Metrics      *Metrics
}

// Outcome is what one run of an action list produced.
type Outcome struct {
	Results []models.ActionResult
	// Mutated is set when the triggering transaction was changed.
	Mutated bool
	// Transfers holds transactions created by create_transfer, to be dispatched
	// one level deeper.
	Transfers []models.Transaction
	// Err is set when the run was cut short by its context.
	Err error
}

// Status maps the per-action results onto an execution status.
func (o Outcome) Status() models.ExecutionStatus {
	if o.Err != nil {
		return models.StatusError
	}
	succeeded := 0
	for _, r := range o.Results {
		if r.Outcome == models.OutcomeSuccess {
			succeeded++
		}
	}
	switch {
	case len(o.Results) > 0 && succeeded == len(o.Results):
		return models.StatusSuccess
	case succeeded > 0:
		return models.StatusPartial
	}
	return models.StatusError
}

// ErrorMessage summarises why a run was not fully successful.
func (o Outcome) ErrorMessage() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	failed := 0
	first := ""
	for _, r := range o.Results {
		if r.Outcome == models.OutcomeFailure {
			if failed == 0 {
				first = fmt.Sprintf("%s: %s", r.Type, r.Detail)
			}
			failed++
		}
	}
	switch failed {
	case 0:
		return ""
	case 1:
		return first
	}
	return fmt.Sprintf("%s (and %d more failed actions)", first, failed-1)
}

// Execute runs actions in order. Each action sees the effects of the ones
// before it through a private copy of the snapshot.
func (e *Executor) Execute(ctx context.Context, actions []models.Action, snap *Snapshot) Outcome {
	state := &actionState{
		txn:    snap.Transaction,
		fields: snap.Fields.Clone(),
	}
	state.txn.TagIDs = append([]int64(nil), snap.Transaction.TagIDs...)

	var out Outcome
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			out.Err = fmt.Errorf("rule interrupted before %s: %w", action.Type, err)
			out.Results = append(out.Results, skippedResults(actions[i:], "rule interrupted")...)
			break
		}

		result := e.apply(ctx, action, state, &out)
		out.Results = append(out.Results, result)
		e.Metrics.observeAction(result)

		if result.Outcome == models.OutcomeFailure && e.AbortOnError {
			out.Results = append(out.Results, skippedResults(actions[i+1:], "aborted after failed action")...)
			break
		}
	}
	if err := ctx.Err(); err != nil && out.Err == nil {
		out.Err = fmt.Errorf("rule interrupted: %w", err)
	}
	return out
}

func skippedResults(actions []models.Action, detail string) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(actions))
	for _, a := range actions {
		results = append(results, models.ActionResult{Type: a.Type, Outcome: models.OutcomeSkipped, Detail: detail})
	}
	return results
}

type actionState struct {
	txn    models.Transaction
	fields FieldMap
}

func (e *Executor) apply(ctx context.Context, action models.Action, state *actionState, out *Outcome) models.ActionResult {
	var (
		detail   string
		warnings []string
		err      error
	)
	switch action.Type {
	case models.ActionSetCategory:
		detail, err = e.setCategory(ctx, action, state)
	case models.ActionAddTags:
		detail, err = e.addTags(ctx, action, state)
	case models.ActionSetDescription:
		detail, warnings, err = e.setDescription(ctx, action, state)
	case models.ActionSetAmount:
		detail, err = e.setAmount(ctx, action, state)
	case models.ActionCreateTransfer:
		var created *models.Transaction
		created, detail, warnings, err = e.createTransfer(ctx, action, state)
		if created != nil {
			out.Transfers = append(out.Transfers, *created)
		}
	default:
		log.Warn().Str("action_type", string(action.Type)).Int64("transaction_id", state.txn.ID).
			Msg("Refusing to execute unsupported rule action")
		err = &ActionError{Message: fmt.Sprintf("unsupported action type %q", action.Type)}
	}

	if err != nil {
		return models.ActionResult{
			Type:     action.Type,
			Outcome:  models.OutcomeFailure,
			Detail:   fmt.Sprintf("%s: %v", KindOf(err), err),
			Warnings: warnings,
		}
	}
	if action.Type != models.ActionCreateTransfer {
		out.Mutated = true
	}
	return models.ActionResult{Type: action.Type, Outcome: models.OutcomeSuccess, Detail: detail, Warnings: warnings}
}

func (e *Executor) setCategory(ctx context.Context, action models.Action, state *actionState) (string, error) {
	if action.CategoryID == nil {
		return "", &ActionError{Message: "category_id is required"}
	}
	txn := &state.txn
	if txn.Type == models.TransactionTransfer {
		return "", &ActionError{Message: "transfers cannot be categorised"}
	}

	category, err := e.Repo.GetCategory(ctx, *action.CategoryID)
	if err != nil {
		return "", fmt.Errorf("load category %d: %w", *action.CategoryID, err)
	}
	if category.UserID != txn.UserID {
		return "", &ActionError{Message: fmt.Sprintf("category %d does not belong to the transaction owner", category.ID)}
	}
	if string(category.Type) != string(txn.Type) {
		return "", &ActionError{Message: fmt.Sprintf("category %q is %s but transaction is %s", category.Name, category.Type, txn.Type)}
	}

	if txn.CategoryID != nil && *txn.CategoryID == category.ID {
		setCategoryFields(state.fields, category)
		return fmt.Sprintf("category already %d", category.ID), nil
	}
	if err := e.Repo.SetCategory(ctx, txn.ID, category.ID); err != nil {
		return "", fmt.Errorf("set category: %w", err)
	}
	id := category.ID
	txn.CategoryID = &id
	setCategoryFields(state.fields, category)
	return fmt.Sprintf("category set to %d", category.ID), nil
}

func (e *Executor) addTags(ctx context.Context, action models.Action, state *actionState) (string, error) {
	if len(action.TagIDs) == 0 {
		return "", &ActionError{Message: "tag_ids is required"}
	}
	txn := &state.txn

	present := make(map[int64]bool, len(txn.TagIDs))
	for _, id := range txn.TagIDs {
		present[id] = true
	}
	var missing []int64
	for _, id := range action.TagIDs {
		if !present[id] {
			present[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return "tags already present", nil
	}

	tags, err := e.Repo.GetTags(ctx, missing)
	if err != nil {
		return "", fmt.Errorf("load tags: %w", err)
	}
	found := make(map[int64]bool, len(tags))
	for _, t := range tags {
		if t.UserID == txn.UserID {
			found[t.ID] = true
		}
	}
	for _, id := range missing {
		if !found[id] {
			return "", &ActionError{Message: fmt.Sprintf("tag %d not found", id)}
		}
	}

	if err := e.Repo.AddTags(ctx, txn.ID, missing); err != nil {
		return "", fmt.Errorf("add tags: %w", err)
	}

	txn.TagIDs = append(txn.TagIDs, missing...)
	ids, _ := state.fields["tag_ids"].([]interface{})
	names, _ := state.fields["tags"].([]interface{})
	for _, t := range tags {
		ids = append(ids, t.ID)
		names = append(names, t.Name)
	}
	state.fields["tag_ids"] = ids
	state.fields["tags"] = names
	return fmt.Sprintf("added %d tag(s)", len(missing)), nil
}

func (e *Executor) setDescription(ctx context.Context, action models.Action, state *actionState) (string, []string, error) {
	if action.Template == "" {
		return "", nil, &ActionError{Message: "template is required"}
	}
	rendered, unknown := Render(action.Template, state.fields)
	warnings := placeholderWarnings(unknown, state.txn.ID)

	if err := e.Repo.SetDescription(ctx, state.txn.ID, rendered); err != nil {
		return "", warnings, fmt.Errorf("set description: %w", err)
	}
	state.txn.Description = rendered
	state.fields["description"] = rendered
	return fmt.Sprintf("description set to %q", rendered), warnings, nil
}

func (e *Executor) setAmount(ctx context.Context, action models.Action, state *actionState) (string, error) {
	amount, err := resolveAmount(action, state.fields)
	if err != nil {
		return "", err
	}
	if err := e.Repo.SetAmount(ctx, state.txn.ID, amount); err != nil {
		return "", fmt.Errorf("set amount: %w", err)
	}
	state.txn.Amount = amount
	state.fields["amount"] = amount
	return fmt.Sprintf("amount set to %s", amount.StringFixed(2)), nil
}

func (e *Executor) createTransfer(ctx context.Context, action models.Action, state *actionState) (*models.Transaction, string, []string, error) {
	txn := &state.txn
	if action.ToAccountID == nil {
		return nil, "", nil, &ActionError{Message: "to_account_id is required"}
	}
	from := txn.AccountID
	if action.FromAccountID != nil {
		from = *action.FromAccountID
	}
	to := *action.ToAccountID
	if from == to {
		return nil, "", nil, &ActionError{Message: "cannot transfer to the same account"}
	}

	amount, err := resolveAmount(action, state.fields)
	if err != nil {
		return nil, "", nil, err
	}

	description := fmt.Sprintf("Automatic transfer for transaction %d", txn.ID)
	var warnings []string
	if action.Template != "" {
		var unknown []string
		description, unknown = Render(action.Template, state.fields)
		warnings = placeholderWarnings(unknown, txn.ID)
	}

	created, err := e.Repo.CreateTransfer(ctx, models.TransferRequest{
		UserID:        txn.UserID,
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Description:   description,
		Date:          txn.Date,
		SourceID:      txn.ID,
	})
	if err != nil {
		return nil, "", warnings, fmt.Errorf("create transfer: %w", err)
	}

	if balance, ok := toDecimal(state.fields["account.balance"]); ok {
		switch txn.AccountID {
		case from:
			state.fields["account.balance"] = balance.Sub(amount)
		case to:
			state.fields["account.balance"] = balance.Add(amount)
		}
	}
	return created, fmt.Sprintf("transfer %d of %s from account %d to %d", created.ID, amount.StringFixed(2), from, to), warnings, nil
}

// resolveAmount reads a literal amount or evaluates amount_formula. The result
// is rounded to cents and must be positive.
func resolveAmount(action models.Action, fields FieldMap) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch {
	case action.Amount != nil && action.AmountFormula != "":
		return decimal.Zero, &ActionError{Message: "set either amount or amount_formula, not both"}
	case action.AmountFormula != "":
		v, err := Evaluate(action.AmountFormula, fields)
		if err != nil {
			return decimal.Zero, err
		}
		amount = v
	case action.Amount != nil:
		amount = *action.Amount
	default:
		return decimal.Zero, &ActionError{Message: "amount or amount_formula is required"}
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, &ActionError{Message: fmt.Sprintf("amount must be positive, got %s", amount.String())}
	}
	return amount, nil
}

func placeholderWarnings(unknown []string, txnID int64) []string {
	if len(unknown) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(unknown))
	for _, name := range unknown {
		warnings = append(warnings, fmt.Sprintf("unknown placeholder {{%s}} left as is", name))
	}
	log.Warn().Strs("placeholders", unknown).Int64("transaction_id", txnID).Msg("Template references unknown fields")
	return warnings
}
