package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	PlaidAccountID *string         `json:"-"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
}
