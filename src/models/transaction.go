package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense || t == TransactionTransfer
}

type Transaction struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	AccountID          int64           `json:"account_id"`
	ToAccountID        *int64          `json:"to_account_id,omitempty"`
	CategoryID         *int64          `json:"category_id"`
	Type               TransactionType `json:"type"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
	MerchantName       *string         `json:"merchant_name"`
	Currency           string          `json:"currency"`
	Date               time.Time       `json:"date"`
	TagIDs             []int64         `json:"tag_ids"`
	PlaidTransactionID *string         `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TransferRequest asks the repository to move money between two accounts and
// record it as a transfer transaction.
type TransferRequest struct {
	UserID        int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Description   string
	Date          time.Time
	SourceID      int64
}
