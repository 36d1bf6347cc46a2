package models

import "time"

// PlaidItem is a linked bank login. Accounts and transactions synced through it
// carry their Plaid ids so repeated syncs upsert instead of duplicating.
type PlaidItem struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	AccessToken     string    `json:"-"`
	ItemID          string    `json:"item_id"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	CreatedAt       time.Time `json:"created_at"`
}
