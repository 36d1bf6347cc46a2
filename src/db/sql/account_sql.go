package db

import (
	"budgee-automation/src/models"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func GetAccountByID(ctx context.Context, pool *pgxpool.Pool, accountID int64) (*models.Account, error) {
	query := `SELECT id, user_id, plaid_account_id, name, type, balance, currency, created_at FROM accounts WHERE id = $1`
	var a models.Account
	err := pool.QueryRow(ctx, query, accountID).
		Scan(&a.ID, &a.UserID, &a.PlaidAccountID, &a.Name, &a.Type, &a.Balance, &a.Currency, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", accountID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func GetAccountsForUser(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.Account, error) {
	query := `SELECT id, user_id, plaid_account_id, name, type, balance, currency, created_at FROM accounts WHERE user_id = $1 ORDER BY id`
	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.PlaidAccountID, &a.Name, &a.Type, &a.Balance, &a.Currency, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func GetCategoryByID(ctx context.Context, pool *pgxpool.Pool, categoryID int64) (*models.Category, error) {
	query := `SELECT id, user_id, name, type FROM categories WHERE id = $1`
	var c models.Category
	err := pool.QueryRow(ctx, query, categoryID).Scan(&c.ID, &c.UserID, &c.Name, &c.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", categoryID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetTagsByIDs returns the tags that exist among ids; missing ids are silently
// left out.
func GetTagsByIDs(ctx context.Context, pool *pgxpool.Pool, ids []int64) ([]models.Tag, error) {
	query := `SELECT id, user_id, name FROM tags WHERE id = ANY($1) ORDER BY id`
	rows, err := pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTransfer moves money between two accounts of the same user and records
// the movement as a transfer transaction. Both account rows are locked in id
// order for the duration of the transaction.
func CreateTransfer(ctx context.Context, pool *pgxpool.Pool, req models.TransferRequest) (*models.Transaction, error) {
	if req.FromAccountID == req.ToAccountID || !req.Amount.IsPositive() {
		return nil, models.ErrInvalidTransfer
	}

	var id int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, user_id, balance, currency FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
			[]int64{req.FromAccountID, req.ToAccountID})
		if err != nil {
			return err
		}
		locked := map[int64]models.Account{}
		for rows.Next() {
			var a models.Account
			if err := rows.Scan(&a.ID, &a.UserID, &a.Balance, &a.Currency); err != nil {
				rows.Close()
				return err
			}
			locked[a.ID] = a
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		from, ok := locked[req.FromAccountID]
		if !ok || from.UserID != req.UserID {
			return fmt.Errorf("account %d: %w", req.FromAccountID, models.ErrNotFound)
		}
		to, ok := locked[req.ToAccountID]
		if !ok || to.UserID != req.UserID {
			return fmt.Errorf("account %d: %w", req.ToAccountID, models.ErrNotFound)
		}
		if from.Balance.LessThan(req.Amount) {
			return fmt.Errorf("account %d has %s: %w", from.ID, from.Balance.StringFixed(2), models.ErrInsufficientFunds)
		}

		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE id = $2`, req.Amount, from.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, req.Amount, to.ID); err != nil {
			return err
		}

		var source *int64
		if req.SourceID != 0 {
			source = &req.SourceID
		}
		query := `
			INSERT INTO transactions (user_id, account_id, to_account_id, type, amount, description, currency, date, source_transaction_id)
			VALUES ($1, $2, $3, 'transfer', $4, $5, $6, $7, $8)
			RETURNING id
		`
		return tx.QueryRow(ctx, query, req.UserID, from.ID, to.ID, req.Amount, req.Description, from.Currency, req.Date, source).Scan(&id)
	})
	if err != nil {
		return nil, err
	}
	return GetTransactionByID(ctx, pool, id)
}
