package db

import (
	"budgee-automation/src/models"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const plaidItemColumns = `id, user_id, access_token, item_id, institution_id, institution_name, created_at`

func scanPlaidItem(row pgx.Row) (*models.PlaidItem, error) {
	var item models.PlaidItem
	err := row.Scan(&item.ID, &item.UserID, &item.AccessToken, &item.ItemID, &item.InstitutionID, &item.InstitutionName, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetPlaidItemsSQL(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE user_id = $1 ORDER BY id`

	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.PlaidItem{}
	for rows.Next() {
		item, err := scanPlaidItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func GetPlaidItem(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64) (*models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE user_id = $1 AND id = $2`
	item, err := scanPlaidItem(pool.QueryRow(ctx, query, userID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plaid item %d: %w", itemID, models.ErrNotFound)
	}
	return item, err
}

// GetPlaidItemByPlaidID looks an item up by the id Plaid assigned to it, as
// carried by webhooks.
func GetPlaidItemByPlaidID(ctx context.Context, pool *pgxpool.Pool, plaidItemID string) (*models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE item_id = $1`
	item, err := scanPlaidItem(pool.QueryRow(ctx, query, plaidItemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plaid item %s: %w", plaidItemID, models.ErrNotFound)
	}
	return item, err
}

func SavePlaidItem(ctx context.Context, pool *pgxpool.Pool, userID int64, itemID, accessToken, institutionID, institutionName string) (int64, error) {
	query := `
		INSERT INTO plaid_items (user_id, item_id, access_token, institution_id, institution_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET access_token = EXCLUDED.access_token
		RETURNING id
	`
	var id int64
	err := pool.QueryRow(ctx, query, userID, itemID, accessToken, institutionID, institutionName).Scan(&id)
	return id, err
}

func GetSyncCursor(ctx context.Context, pool *pgxpool.Pool, itemID int64) (string, error) {
	query := `SELECT COALESCE(sync_cursor, '') FROM plaid_items WHERE id = $1`
	var cursor string
	err := pool.QueryRow(ctx, query, itemID).Scan(&cursor)
	if err != nil {
		return "", err
	}
	return cursor, nil
}

func UpdateSyncCursor(ctx context.Context, pool *pgxpool.Pool, itemID int64, cursor string) error {
	query := `UPDATE plaid_items SET sync_cursor = $1 WHERE id = $2`
	_, err := pool.Exec(ctx, query, cursor, itemID)
	return err
}

// PlaidAccount is an account as reported by Plaid, ready to be upserted.
type PlaidAccount struct {
	PlaidAccountID string
	Name           string
	Type           string
	Balance        decimal.Decimal
	Currency       string
}

// SaveAccounts upserts the accounts of an item and returns the local account id
// for every Plaid account id.
func SaveAccounts(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64, accounts []PlaidAccount) (map[string]int64, error) {
	query := `
		INSERT INTO accounts (user_id, plaid_item_id, plaid_account_id, name, type, balance, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (plaid_account_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			balance = EXCLUDED.balance
		RETURNING id
	`
	ids := make(map[string]int64, len(accounts))
	for _, acc := range accounts {
		var id int64
		err := pool.QueryRow(ctx, query, userID, itemID, acc.PlaidAccountID, acc.Name, acc.Type, acc.Balance, acc.Currency).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("save account %s: %w", acc.PlaidAccountID, err)
		}
		ids[acc.PlaidAccountID] = id
	}
	return ids, nil
}

// UpsertPlaidTransaction stores a synced transaction keyed by its Plaid id and
// reports whether the row was newly inserted. Balances of Plaid accounts come
// from Plaid itself and are not adjusted here. Category and tags set locally,
// by the user or by rules, survive re-syncs.
func UpsertPlaidTransaction(ctx context.Context, pool *pgxpool.Pool, txn *models.Transaction) (int64, bool, error) {
	query := `
		INSERT INTO transactions (user_id, account_id, type, amount, description, merchant_name, currency, date, plaid_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (plaid_transaction_id) DO UPDATE SET
			type = EXCLUDED.type,
			amount = EXCLUDED.amount,
			merchant_name = EXCLUDED.merchant_name,
			date = EXCLUDED.date,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`
	var (
		id       int64
		inserted bool
	)
	err := pool.QueryRow(ctx, query, txn.UserID, txn.AccountID, txn.Type, txn.Amount, txn.Description, txn.MerchantName,
		txn.Currency, txn.Date, txn.PlaidTransactionID).Scan(&id, &inserted)
	return id, inserted, err
}

func DeletePlaidTransactions(ctx context.Context, pool *pgxpool.Pool, userID int64, plaidTransactionIDs []string) (int64, error) {
	if len(plaidTransactionIDs) == 0 {
		return 0, nil
	}
	cmd, err := pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND plaid_transaction_id = ANY($2)`, userID, plaidTransactionIDs)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
