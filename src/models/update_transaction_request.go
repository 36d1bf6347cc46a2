package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateTransactionRequest is the body of a manual income or expense entry.
type CreateTransactionRequest struct {
	AccountID    int64           `json:"account_id"`
	CategoryID   *int64          `json:"category_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	MerchantName *string         `json:"merchant_name"`
	Currency     string          `json:"currency"`
	Date         string          `json:"date"`
	TagIDs       []int64         `json:"tag_ids"`
}

// UpdateTransactionRequest carries only the fields being changed.
type UpdateTransactionRequest struct {
	CategoryID   *int64           `json:"category_id"`
	Type         *TransactionType `json:"type"`
	Amount       *decimal.Decimal `json:"amount"`
	Description  *string          `json:"description"`
	MerchantName *string          `json:"merchant_name"`
	Date         *string          `json:"date"`
}

const DateLayout = "2006-01-02"

// Validate reports the first malformed field of the request.
func (r CreateTransactionRequest) Validate() error {
	if r.AccountID == 0 {
		return errors.New("account_id is required")
	}
	if r.Type != TransactionIncome && r.Type != TransactionExpense {
		return fmt.Errorf("type must be income or expense, got %q", r.Type)
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// Apply returns txn with the requested changes.
func (r UpdateTransactionRequest) Apply(txn Transaction) (Transaction, error) {
	if r.Type != nil {
		if *r.Type != TransactionIncome && *r.Type != TransactionExpense {
			return txn, fmt.Errorf("type must be income or expense, got %q", *r.Type)
		}
		txn.Type = *r.Type
	}
	if r.Amount != nil {
		if !r.Amount.IsPositive() {
			return txn, errors.New("amount must be positive")
		}
		txn.Amount = *r.Amount
	}
	if r.Date != nil {
		date, err := time.Parse(DateLayout, *r.Date)
		if err != nil {
			return txn, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		txn.Date = date
	}
	if r.CategoryID != nil {
		id := *r.CategoryID
		txn.CategoryID = &id
	}
	if r.Description != nil {
		txn.Description = *r.Description
	}
	if r.MerchantName != nil {
		name := *r.MerchantName
		txn.MerchantName = &name
	}
	return txn, nil
}
