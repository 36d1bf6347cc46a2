package rules

import (
	"budgee-automation/src/db/memory"
	"budgee-automation/src/models"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeOn(t *testing.T, s *memory.Store, txnID int64, exec *Executor, actions ...models.Action) Outcome {
	t.Helper()
	snap, err := BuildSnapshot(context.Background(), s, txnID)
	require.NoError(t, err)
	return exec.Execute(context.Background(), actions, snap)
}

func storedTxn(t *testing.T, s *memory.Store, id int64) *models.Transaction {
	t.Helper()
	txn, err := s.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return txn
}

func TestExecutor_SetCategory(t *testing.T) {
	t.Run("assigns a matching category", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(transportCatID)})

		require.Len(t, out.Results, 1)
		assert.Equal(t, models.OutcomeSuccess, out.Results[0].Outcome)
		assert.Equal(t, models.StatusSuccess, out.Status())
		assert.True(t, out.Mutated)
		require.NotNil(t, storedTxn(t, s, id).CategoryID)
		assert.Equal(t, transportCatID, *storedTxn(t, s, id).CategoryID)
	})

	t.Run("rejects a category of the other type", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(salaryCatID)})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, string(KindValidation))
		assert.Contains(t, out.Results[0].Detail, "income")
		assert.Equal(t, models.StatusError, out.Status())
		assert.Nil(t, storedTxn(t, s, id).CategoryID)
	})

	t.Run("rejects another user's category", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(foreignCatID)})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Nil(t, storedTxn(t, s, id).CategoryID)
	})

	t.Run("missing category is an external failure", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(999)})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, string(KindExternal))
		assert.Contains(t, out.Results[0].Detail, "not found")
	})

	t.Run("transfers cannot be categorised", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s, func(txn *models.Transaction) { txn.Type = models.TransactionTransfer })

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(transportCatID)})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
	})
}

func TestExecutor_AddTagsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	id := seedTransaction(s, func(txn *models.Transaction) { txn.TagIDs = []int64{workTagID} })
	action := models.Action{Type: models.ActionAddTags, TagIDs: []int64{workTagID, travelTagID, travelTagID}}
	exec := &Executor{Repo: s}

	first := executeOn(t, s, id, exec, action)
	require.Equal(t, models.OutcomeSuccess, first.Results[0].Outcome)
	afterOnce := storedTxn(t, s, id).TagIDs

	second := executeOn(t, s, id, exec, action)
	require.Equal(t, models.OutcomeSuccess, second.Results[0].Outcome)
	assert.Equal(t, "tags already present", second.Results[0].Detail)

	assert.ElementsMatch(t, []int64{workTagID, travelTagID}, afterOnce)
	assert.ElementsMatch(t, afterOnce, storedTxn(t, s, id).TagIDs)
}

func TestExecutor_AddTagsRejectsUnknownTags(t *testing.T) {
	s := newTestStore(t)
	id := seedTransaction(s)

	out := executeOn(t, s, id, &Executor{Repo: s},
		models.Action{Type: models.ActionAddTags, TagIDs: []int64{travelTagID, foreignTagID}})

	assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
	assert.Empty(t, storedTxn(t, s, id).TagIDs)
}

func TestExecutor_SetDescription(t *testing.T) {
	s := newTestStore(t)
	id := seedTransaction(s)

	out := executeOn(t, s, id, &Executor{Repo: s},
		models.Action{Type: models.ActionSetDescription, Template: "{{description}} ({{amount}} from {{account.name}}) {{counterparty}}"})

	require.Equal(t, models.OutcomeSuccess, out.Results[0].Outcome)
	assert.Equal(t, "Uber ride (25.50 from Checking) {{counterparty}}", storedTxn(t, s, id).Description)
	require.Len(t, out.Results[0].Warnings, 1)
	assert.Contains(t, out.Results[0].Warnings[0], "{{counterparty}}")
}

func TestExecutor_SetAmount(t *testing.T) {
	t.Run("formula result is stored and visible to later actions", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetAmount, AmountFormula: "amount * 2"},
			models.Action{Type: models.ActionSetDescription, Template: "Doubled to {{amount}}"},
		)

		assert.Equal(t, models.StatusSuccess, out.Status())
		txn := storedTxn(t, s, id)
		assert.Equal(t, "51.00", txn.Amount.StringFixed(2))
		assert.Equal(t, "Doubled to 51", txn.Description)
	})

	t.Run("literal amount", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetAmount, Amount: decPtr("9.99")})

		assert.Equal(t, models.StatusSuccess, out.Status())
		assert.True(t, storedTxn(t, s, id).Amount.Equal(decimal.RequireFromString("9.99")))
	})

	t.Run("unknown formula field fails the action", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetAmount, AmountFormula: "price * qty"})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, string(ErrCodeUnknownField))
		assert.Equal(t, models.StatusError, out.Status())
		assert.Equal(t, "25.50", storedTxn(t, s, id).Amount.StringFixed(2))
	})

	t.Run("non positive result fails the action", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionSetAmount, AmountFormula: "amount - 100"})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, "must be positive")
	})
}

func TestExecutor_CreateTransfer(t *testing.T) {
	t.Run("moves money and reports the new transaction", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionCreateTransfer, ToAccountID: int64Ptr(savingsID), AmountFormula: "amount * 0.1", Template: "Round-up for {{description}}"})

		require.Equal(t, models.StatusSuccess, out.Status(), out.ErrorMessage())
		require.Len(t, out.Transfers, 1)
		transfer := out.Transfers[0]
		assert.Equal(t, models.TransactionTransfer, transfer.Type)
		assert.Equal(t, "2.55", transfer.Amount.StringFixed(2))
		assert.Equal(t, "Round-up for Uber ride", transfer.Description)
		assert.False(t, out.Mutated)

		checking, _ := s.GetAccount(context.Background(), checkingID)
		savings, _ := s.GetAccount(context.Background(), savingsID)
		assert.Equal(t, "997.45", checking.Balance.StringFixed(2))
		assert.Equal(t, "2.55", savings.Balance.StringFixed(2))
	})

	t.Run("insufficient funds is an external failure", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionCreateTransfer, ToAccountID: int64Ptr(savingsID), Amount: decPtr("5000")})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, string(KindExternal))
		assert.Contains(t, out.Results[0].Detail, "insufficient funds")
		assert.Empty(t, out.Transfers)
	})

	t.Run("same account is rejected", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionCreateTransfer, ToAccountID: int64Ptr(checkingID), Amount: decPtr("1")})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
	})

	t.Run("another user's account is rejected", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s},
			models.Action{Type: models.ActionCreateTransfer, ToAccountID: int64Ptr(foreignAcctID), Amount: decPtr("1")})

		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		foreign, _ := s.GetAccount(context.Background(), foreignAcctID)
		assert.Equal(t, "50.00", foreign.Balance.StringFixed(2))
	})
}

func TestExecutor_FailurePolicy(t *testing.T) {
	actions := []models.Action{
		{Type: "delete_everything"},
		{Type: models.ActionSetDescription, Template: "still runs"},
	}

	t.Run("continues after a failed action by default", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s}, actions...)

		require.Len(t, out.Results, 2)
		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Contains(t, out.Results[0].Detail, "unsupported action type")
		assert.Equal(t, models.OutcomeSuccess, out.Results[1].Outcome)
		assert.Equal(t, models.StatusPartial, out.Status())
		assert.Equal(t, "still runs", storedTxn(t, s, id).Description)
	})

	t.Run("abort on error skips the rest", func(t *testing.T) {
		s := newTestStore(t)
		id := seedTransaction(s)

		out := executeOn(t, s, id, &Executor{Repo: s, AbortOnError: true}, actions...)

		require.Len(t, out.Results, 2)
		assert.Equal(t, models.OutcomeFailure, out.Results[0].Outcome)
		assert.Equal(t, models.OutcomeSkipped, out.Results[1].Outcome)
		assert.Equal(t, models.StatusError, out.Status())
		assert.Equal(t, "Uber ride", storedTxn(t, s, id).Description)
	})
}

func TestExecutor_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	id := seedTransaction(s)
	snap, err := BuildSnapshot(context.Background(), s, id)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := (&Executor{Repo: s}).Execute(ctx, []models.Action{
		{Type: models.ActionSetDescription, Template: "never"},
	}, snap)

	require.Error(t, out.Err)
	assert.Equal(t, models.StatusError, out.Status())
	assert.Equal(t, models.OutcomeSkipped, out.Results[0].Outcome)
	assert.Equal(t, "Uber ride", storedTxn(t, s, id).Description)
}

func TestOutcome_Status(t *testing.T) {
	ok := models.ActionResult{Outcome: models.OutcomeSuccess}
	failed := models.ActionResult{Type: models.ActionSetAmount, Outcome: models.OutcomeFailure, Detail: "boom"}

	assert.Equal(t, models.StatusSuccess, Outcome{Results: []models.ActionResult{ok, ok}}.Status())
	assert.Equal(t, models.StatusPartial, Outcome{Results: []models.ActionResult{ok, failed}}.Status())
	assert.Equal(t, models.StatusError, Outcome{Results: []models.ActionResult{failed}}.Status())
	assert.Equal(t, models.StatusError, Outcome{}.Status())

	msg := Outcome{Results: []models.ActionResult{failed, ok, failed}}.ErrorMessage()
	assert.Equal(t, "set_amount: boom (and 1 more failed actions)", msg)
}
