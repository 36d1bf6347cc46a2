package plaid

import (
	db "budgee-automation/src/db/sql"
	"budgee-automation/src/models"
	"budgee-automation/src/rules"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// maxSyncPages bounds one sync run; the stored cursor lets the next run continue.
const maxSyncPages = 20

// SyncPage is the accumulated result of paging through /transactions/sync.
type SyncPage struct {
	Added      []plaid.Transaction
	Modified   []plaid.Transaction
	Removed    []string
	NextCursor string
}

// FetchTransactions pages through /transactions/sync from cursor until Plaid
// reports no more updates.
func FetchTransactions(ctx context.Context, client *plaid.APIClient, accessToken, cursor string) (*SyncPage, error) {
	page := &SyncPage{NextCursor: cursor}
	for i := 0; i < maxSyncPages; i++ {
		request := plaid.NewTransactionsSyncRequest(accessToken)
		if page.NextCursor != "" {
			request.SetCursor(page.NextCursor)
		}

		resp, _, err := client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
		if err != nil {
			return nil, fmt.Errorf("transactions sync: %w", err)
		}

		page.Added = append(page.Added, resp.GetAdded()...)
		page.Modified = append(page.Modified, resp.GetModified()...)
		for _, removed := range resp.GetRemoved() {
			page.Removed = append(page.Removed, removed.GetTransactionId())
		}
		page.NextCursor = resp.GetNextCursor()

		if !resp.GetHasMore() {
			break
		}
	}
	return page, nil
}

// ToTransaction maps a Plaid transaction onto a local one. Plaid reports money
// leaving the account as a positive amount.
func ToTransaction(txn plaid.Transaction, userID, accountID int64) (models.Transaction, error) {
	date, err := time.Parse(models.DateLayout, txn.GetDate())
	if err != nil {
		return models.Transaction{}, fmt.Errorf("transaction %s: bad date %q: %w", txn.GetTransactionId(), txn.GetDate(), err)
	}

	amount := decimal.NewFromFloat(txn.GetAmount()).Round(2)
	txnType := models.TransactionExpense
	if amount.IsNegative() {
		txnType = models.TransactionIncome
		amount = amount.Neg()
	}
	if amount.IsZero() {
		return models.Transaction{}, fmt.Errorf("transaction %s: zero amount", txn.GetTransactionId())
	}

	currency := strings.ToUpper(txn.GetIsoCurrencyCode())
	if currency == "" {
		currency = "USD"
	}

	plaidID := txn.GetTransactionId()
	out := models.Transaction{
		UserID:             userID,
		AccountID:          accountID,
		Type:               txnType,
		Amount:             amount,
		Description:        txn.GetName(),
		Currency:           currency,
		Date:               date,
		PlaidTransactionID: &plaidID,
	}
	if merchant := txn.GetMerchantName(); merchant != "" {
		out.MerchantName = &merchant
	}
	return out, nil
}

// ToAccount maps a Plaid account onto the row the account upsert writes.
func ToAccount(acc plaid.AccountBase) db.PlaidAccount {
	balances := acc.GetBalances()
	out := db.PlaidAccount{
		PlaidAccountID: acc.GetAccountId(),
		Name:           acc.GetName(),
		Type:           string(acc.GetType()),
		Currency:       strings.ToUpper(balances.GetIsoCurrencyCode()),
	}
	if current, ok := balances.GetCurrentOk(); ok && current != nil {
		out.Balance = decimal.NewFromFloat(*current).Round(2)
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}
	return out
}

// SyncResult summarises one item sync.
type SyncResult struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
	Skipped  int `json:"skipped"`
}

// Syncer pulls an item's transactions from Plaid, stores them and runs the
// owner's rules on every stored transaction.
type Syncer struct {
	Client     *plaid.APIClient
	Pool       *pgxpool.Pool
	Dispatcher *rules.Dispatcher
}

func (s *Syncer) SyncItem(ctx context.Context, item *models.PlaidItem) (SyncResult, error) {
	var result SyncResult

	accountsResp, _, err := s.Client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*plaid.NewAccountsGetRequest(item.AccessToken)).Execute()
	if err != nil {
		return result, fmt.Errorf("fetch accounts: %w", err)
	}
	var accounts []db.PlaidAccount
	for _, acc := range accountsResp.GetAccounts() {
		accounts = append(accounts, ToAccount(acc))
	}
	accountIDs, err := db.SaveAccounts(ctx, s.Pool, item.UserID, item.ID, accounts)
	if err != nil {
		return result, err
	}

	cursor, err := db.GetSyncCursor(ctx, s.Pool, item.ID)
	if err != nil {
		return result, fmt.Errorf("load sync cursor: %w", err)
	}
	page, err := FetchTransactions(ctx, s.Client, item.AccessToken, cursor)
	if err != nil {
		return result, err
	}

	var events []rules.Event
	for _, txn := range append(page.Added, page.Modified...) {
		accountID, ok := accountIDs[txn.GetAccountId()]
		if !ok {
			result.Skipped++
			log.Warn().Str("plaid_transaction_id", txn.GetTransactionId()).Str("plaid_account_id", txn.GetAccountId()).
				Msg("Synced transaction belongs to an unknown account")
			continue
		}
		local, err := ToTransaction(txn, item.UserID, accountID)
		if err != nil {
			result.Skipped++
			log.Warn().Err(err).Msg("Skipping synced transaction")
			continue
		}
		id, inserted, err := db.UpsertPlaidTransaction(ctx, s.Pool, &local)
		if err != nil {
			return result, fmt.Errorf("save transaction %s: %w", txn.GetTransactionId(), err)
		}
		trigger := models.TriggerTransactionUpdate
		if inserted {
			trigger = models.TriggerTransactionCreate
			result.Added++
		} else {
			result.Modified++
		}
		events = append(events, rules.Event{Type: trigger, UserID: item.UserID, TransactionID: id})
	}

	removed, err := db.DeletePlaidTransactions(ctx, s.Pool, item.UserID, page.Removed)
	if err != nil {
		return result, fmt.Errorf("delete removed transactions: %w", err)
	}
	result.Removed = int(removed)

	if err := db.UpdateSyncCursor(ctx, s.Pool, item.ID, page.NextCursor); err != nil {
		return result, fmt.Errorf("update sync cursor: %w", err)
	}

	for _, ev := range events {
		if _, err := s.Dispatcher.Dispatch(ctx, ev); err != nil {
			log.Error().Err(err).Int64("transaction_id", ev.TransactionID).Str("trigger", string(ev.Type)).
				Msg("Failed to run rules for synced transaction")
		}
	}

	log.Info().Int64("user_id", item.UserID).Int64("item_id", item.ID).Int("added", result.Added).
		Int("modified", result.Modified).Int("removed", result.Removed).Msg("Synced Plaid transactions")
	return result, nil
}
