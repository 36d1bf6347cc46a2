package rules

import (
	"budgee-automation/src/models"
	"context"
	"errors"
	"fmt"
)

// FieldMap is the flattened view of an entity that conditions, formulas and
// templates read from. Keys are dotted paths such as "category.type".
type FieldMap map[string]interface{}

// Lookup returns the value stored under path and whether the path exists.
func (m FieldMap) Lookup(path string) (interface{}, bool) {
	v, ok := m[path]
	return v, ok
}

// Clone copies the map and any list values so the copy can be updated freely.
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		if list, ok := v.([]interface{}); ok {
			v = append([]interface{}(nil), list...)
		}
		out[k] = v
	}
	return out
}

// Snapshot is the read-only input to one rule evaluation.
type Snapshot struct {
	Transaction models.Transaction
	Fields      FieldMap
}

// BuildSnapshot loads the transaction and its account, category and tags.
// Related records that no longer exist are left out of the field map.
func BuildSnapshot(ctx context.Context, repo EntityRepository, txnID int64) (*Snapshot, error) {
	txn, err := repo.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %d: %w", txnID, err)
	}

	account, err := repo.GetAccount(ctx, txn.AccountID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load account %d: %w", txn.AccountID, err)
	}

	var category *models.Category
	if txn.CategoryID != nil {
		category, err = repo.GetCategory(ctx, *txn.CategoryID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("load category %d: %w", *txn.CategoryID, err)
		}
	}

	var tags []models.Tag
	if len(txn.TagIDs) > 0 {
		tags, err = repo.GetTags(ctx, txn.TagIDs)
		if err != nil {
			return nil, fmt.Errorf("load tags: %w", err)
		}
	}

	return NewSnapshot(*txn, account, category, tags), nil
}

// NewSnapshot flattens already loaded records.
func NewSnapshot(txn models.Transaction, account *models.Account, category *models.Category, tags []models.Tag) *Snapshot {
	fields := FieldMap{
		"id":          txn.ID,
		"type":        string(txn.Type),
		"amount":      txn.Amount,
		"description": txn.Description,
		"currency":    txn.Currency,
		"date":        txn.Date,
		"account_id":  txn.AccountID,
	}
	if txn.MerchantName != nil {
		fields["merchant_name"] = *txn.MerchantName
	} else {
		fields["merchant_name"] = nil
	}
	if txn.CategoryID != nil {
		fields["category_id"] = *txn.CategoryID
	} else {
		fields["category_id"] = nil
	}
	if account != nil {
		fields["account.name"] = account.Name
		fields["account.type"] = account.Type
		fields["account.balance"] = account.Balance
	}
	if category != nil {
		setCategoryFields(fields, category)
	}

	tagIDs := make([]interface{}, 0, len(txn.TagIDs))
	for _, id := range txn.TagIDs {
		tagIDs = append(tagIDs, id)
	}
	fields["tag_ids"] = tagIDs
	names := make([]interface{}, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	fields["tags"] = names

	txn.TagIDs = append([]int64(nil), txn.TagIDs...)
	return &Snapshot{Transaction: txn, Fields: fields}
}

func setCategoryFields(fields FieldMap, category *models.Category) {
	fields["category_id"] = category.ID
	fields["category.name"] = category.Name
	fields["category.type"] = string(category.Type)
}
