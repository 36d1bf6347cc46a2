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

const transactionColumns = `t.id, t.user_id, t.account_id, t.to_account_id, t.category_id, t.type, t.amount,
	t.description, t.merchant_name, t.currency, t.date, t.plaid_transaction_id, t.created_at, t.updated_at,
	COALESCE((SELECT array_agg(tt.tag_id ORDER BY tt.tag_id) FROM transaction_tags tt WHERE tt.transaction_id = t.id), '{}')`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.ToAccountID, &t.CategoryID, &t.Type, &t.Amount,
		&t.Description, &t.MerchantName, &t.Currency, &t.Date, &t.PlaidTransactionID, &t.CreatedAt, &t.UpdatedAt,
		&t.TagIDs)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func GetTransactionByID(ctx context.Context, pool *pgxpool.Pool, txnID int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`
	t, err := scanTransaction(pool.QueryRow(ctx, query, txnID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", txnID, models.ErrNotFound)
	}
	return t, err
}

func GetTransactionsForUser(ctx context.Context, pool *pgxpool.Pool, userID int64, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.user_id = $1
		ORDER BY t.date DESC, t.id DESC
		LIMIT $2
	`
	rows, err := pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// GetTransactionIDsForUser lists every non-transfer transaction of a user, the
// input of a bulk rule re-run.
func GetTransactionIDsForUser(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]int64, error) {
	query := `SELECT id FROM transactions WHERE user_id = $1 AND type <> 'transfer' ORDER BY id`
	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// CreateTransaction inserts an income or expense transaction and applies it to
// the account balance.
func CreateTransaction(ctx context.Context, pool *pgxpool.Pool, txn *models.Transaction) (*models.Transaction, error) {
	var id int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var accountOwner int64
		err := tx.QueryRow(ctx, `SELECT user_id FROM accounts WHERE id = $1 FOR UPDATE`, txn.AccountID).Scan(&accountOwner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && accountOwner != txn.UserID) {
			return fmt.Errorf("account %d: %w", txn.AccountID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		query := `
			INSERT INTO transactions (user_id, account_id, category_id, type, amount, description, merchant_name, currency, date, plaid_transaction_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`
		err = tx.QueryRow(ctx, query, txn.UserID, txn.AccountID, txn.CategoryID, txn.Type, txn.Amount, txn.Description,
			txn.MerchantName, txn.Currency, txn.Date, txn.PlaidTransactionID).Scan(&id)
		if err != nil {
			return err
		}
		if err := insertTags(ctx, tx, id, txn.TagIDs); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, signedAmount(txn.Type, txn.Amount), txn.AccountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetTransactionByID(ctx, pool, id)
}

// UpdateTransaction rewrites the user-editable fields of a transaction and moves
// the balance difference onto the account.
func UpdateTransaction(ctx context.Context, pool *pgxpool.Pool, userID, txnID int64, req models.UpdateTransactionRequest) (*models.Transaction, error) {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		current, err := scanTransaction(tx.QueryRow(ctx,
			`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = $1 AND t.user_id = $2 FOR UPDATE`, txnID, userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", txnID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if current.Type == models.TransactionTransfer {
			return fmt.Errorf("transaction %d is a transfer: %w", txnID, models.ErrInvalidTransfer)
		}

		updated, err := req.Apply(*current)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
		}
		query := `
			UPDATE transactions
			SET category_id = $1, type = $2, amount = $3, description = $4, merchant_name = $5, date = $6, updated_at = NOW()
			WHERE id = $7
		`
		_, err = tx.Exec(ctx, query, updated.CategoryID, updated.Type, updated.Amount, updated.Description,
			updated.MerchantName, updated.Date, txnID)
		if err != nil {
			return err
		}
		delta := signedAmount(updated.Type, updated.Amount).Sub(signedAmount(current.Type, current.Amount))
		if !delta.IsZero() {
			_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, delta, current.AccountID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetTransactionByID(ctx, pool, txnID)
}

func DeleteTransaction(ctx context.Context, pool *pgxpool.Pool, userID, txnID int64) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var (
			accountID int64
			toAccount *int64
			txnType   models.TransactionType
			amount    decimal.Decimal
		)
		err := tx.QueryRow(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2 RETURNING account_id, to_account_id, type, amount`,
			txnID, userID).Scan(&accountID, &toAccount, &txnType, &amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", txnID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if txnType == models.TransactionTransfer && toAccount != nil {
			_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, amount, accountID)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE id = $2`, amount, *toAccount)
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE id = $2`, signedAmount(txnType, amount), accountID)
		return err
	})
}

func SetTransactionCategory(ctx context.Context, pool *pgxpool.Pool, txnID, categoryID int64) error {
	return execOne(ctx, pool, txnID, `UPDATE transactions SET category_id = $1, updated_at = NOW() WHERE id = $2`, categoryID, txnID)
}

func SetTransactionDescription(ctx context.Context, pool *pgxpool.Pool, txnID int64, description string) error {
	return execOne(ctx, pool, txnID, `UPDATE transactions SET description = $1, updated_at = NOW() WHERE id = $2`, description, txnID)
}

// SetTransactionAmount changes the amount and moves the difference onto the
// account balance.
func SetTransactionAmount(ctx context.Context, pool *pgxpool.Pool, txnID int64, amount decimal.Decimal) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var (
			accountID int64
			txnType   models.TransactionType
			old       decimal.Decimal
		)
		err := tx.QueryRow(ctx, `SELECT account_id, type, amount FROM transactions WHERE id = $1 FOR UPDATE`, txnID).
			Scan(&accountID, &txnType, &old)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", txnID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if txnType == models.TransactionTransfer {
			return fmt.Errorf("transaction %d is a transfer: %w", txnID, models.ErrInvalidTransfer)
		}
		if _, err := tx.Exec(ctx, `UPDATE transactions SET amount = $1, updated_at = NOW() WHERE id = $2`, amount, txnID); err != nil {
			return err
		}
		delta := signedAmount(txnType, amount).Sub(signedAmount(txnType, old))
		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, delta, accountID)
		return err
	})
}

func AddTransactionTags(ctx context.Context, pool *pgxpool.Pool, txnID int64, tagIDs []int64) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := insertTags(ctx, tx, txnID, tagIDs); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE transactions SET updated_at = NOW() WHERE id = $1`, txnID)
		return err
	})
}

func insertTags(ctx context.Context, tx pgx.Tx, txnID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO transaction_tags (transaction_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	_, err := tx.Exec(ctx, query, txnID, tagIDs)
	return err
}

func execOne(ctx context.Context, pool *pgxpool.Pool, txnID int64, query string, args ...interface{}) error {
	cmd, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", txnID, models.ErrNotFound)
	}
	return nil
}

// signedAmount is the effect of a transaction on its own account balance.
func signedAmount(t models.TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t == models.TransactionIncome {
		return amount
	}
	return amount.Neg()
}
