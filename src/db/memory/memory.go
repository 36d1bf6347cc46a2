// Package memory holds in-process implementations of the rule engine's stores.
// They back the rules CLI dry runs and the engine tests.
package memory

import (
	"budgee-automation/src/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.Mutex
	rules        map[int64]models.TransactionRule
	transactions map[int64]models.Transaction
	accounts     map[int64]models.Account
	categories   map[int64]models.Category
	tags         map[int64]models.Tag
	logs         []models.ExecutionLog
	nextTxnID    int64
}

func New() *Store {
	return &Store{
		rules:        map[int64]models.TransactionRule{},
		transactions: map[int64]models.Transaction{},
		accounts:     map[int64]models.Account{},
		categories:   map[int64]models.Category{},
		tags:         map[int64]models.Tag{},
		nextTxnID:    1,
	}
}

func (s *Store) PutRule(rule models.TransactionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
}

func (s *Store) PutAccount(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

func (s *Store) PutCategory(category models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[category.ID] = category
}

func (s *Store) PutTag(tag models.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[tag.ID] = tag
}

// PutTransaction stores txn, assigning an id when it has none, and returns the id.
func (s *Store) PutTransaction(txn models.Transaction) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.ID == 0 {
		txn.ID = s.nextTxnID
	}
	if txn.ID >= s.nextTxnID {
		s.nextTxnID = txn.ID + 1
	}
	txn.TagIDs = append([]int64(nil), txn.TagIDs...)
	s.transactions[txn.ID] = txn
	return txn.ID
}

// Rule returns a copy of the stored rule.
func (s *Store) Rule(id int64) (models.TransactionRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	return r, ok
}

// Transactions returns every stored transaction ordered by id.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Logs returns the execution logs in append order.
func (s *Store) Logs() []models.ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ExecutionLog(nil), s.logs...)
}

func (s *Store) ListActive(_ context.Context, userID int64, trigger models.TriggerType) ([]models.TransactionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransactionRule
	for _, r := range s.rules {
		if r.UserID == userID && r.TriggerType == trigger && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RecordRun(_ context.Context, ruleID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %d: %w", ruleID, models.ErrNotFound)
	}
	r.RunsCount++
	at = at.UTC()
	r.LastRunAt = &at
	s.rules[ruleID] = r
	return nil
}

func (s *Store) Append(_ context.Context, entry models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	t.TagIDs = append([]int64(nil), t.TagIDs...)
	return &t, nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, models.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) GetTags(_ context.Context, ids []int64) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tag
	for _, id := range ids {
		if t, ok := s.tags[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) update(id int64, fn func(*models.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	fn(&t)
	t.UpdatedAt = time.Now().UTC()
	s.transactions[id] = t
	return nil
}

func (s *Store) SetCategory(_ context.Context, txnID, categoryID int64) error {
	return s.update(txnID, func(t *models.Transaction) { t.CategoryID = &categoryID })
}

func (s *Store) AddTags(_ context.Context, txnID int64, tagIDs []int64) error {
	return s.update(txnID, func(t *models.Transaction) {
		have := map[int64]bool{}
		for _, id := range t.TagIDs {
			have[id] = true
		}
		for _, id := range tagIDs {
			if !have[id] {
				have[id] = true
				t.TagIDs = append(t.TagIDs, id)
			}
		}
	})
}

func (s *Store) SetDescription(_ context.Context, txnID int64, description string) error {
	return s.update(txnID, func(t *models.Transaction) { t.Description = description })
}

func (s *Store) SetAmount(_ context.Context, txnID int64, amount decimal.Decimal) error {
	return s.update(txnID, func(t *models.Transaction) { t.Amount = amount })
}

func (s *Store) CreateTransfer(_ context.Context, req models.TransferRequest) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.accounts[req.FromAccountID]
	if !ok || from.UserID != req.UserID {
		return nil, fmt.Errorf("account %d: %w", req.FromAccountID, models.ErrNotFound)
	}
	to, ok := s.accounts[req.ToAccountID]
	if !ok || to.UserID != req.UserID {
		return nil, fmt.Errorf("account %d: %w", req.ToAccountID, models.ErrNotFound)
	}
	if from.ID == to.ID || !req.Amount.IsPositive() {
		return nil, models.ErrInvalidTransfer
	}
	if from.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("account %d has %s: %w", from.ID, from.Balance.StringFixed(2), models.ErrInsufficientFunds)
	}

	from.Balance = from.Balance.Sub(req.Amount)
	to.Balance = to.Balance.Add(req.Amount)
	s.accounts[from.ID] = from
	s.accounts[to.ID] = to

	now := time.Now().UTC()
	toID := to.ID
	txn := models.Transaction{
		ID:          s.nextTxnID,
		UserID:      req.UserID,
		AccountID:   from.ID,
		ToAccountID: &toID,
		Type:        models.TransactionTransfer,
		Amount:      req.Amount,
		Description: req.Description,
		Currency:    from.Currency,
		Date:        req.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextTxnID++
	s.transactions[txn.ID] = txn
	return &txn, nil
}
