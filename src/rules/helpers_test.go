package rules

import (
	"budgee-automation/src/db/memory"
	"budgee-automation/src/models"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	testUserID     int64 = 1
	checkingID     int64 = 10
	savingsID      int64 = 11
	foreignAcctID  int64 = 12
	transportCatID int64 = 7
	salaryCatID    int64 = 8
	foreignCatID   int64 = 9
	workTagID      int64 = 3
	travelTagID    int64 = 4
	foreignTagID   int64 = 5
)

func int64Ptr(v int64) *int64 { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.PutAccount(models.Account{ID: checkingID, UserID: testUserID, Name: "Checking", Type: "depository", Balance: decimal.NewFromInt(1000), Currency: "USD"})
	s.PutAccount(models.Account{ID: savingsID, UserID: testUserID, Name: "Savings", Type: "depository", Balance: decimal.Zero, Currency: "USD"})
	s.PutAccount(models.Account{ID: foreignAcctID, UserID: 2, Name: "Someone else", Type: "depository", Balance: decimal.NewFromInt(50), Currency: "USD"})
	s.PutCategory(models.Category{ID: transportCatID, UserID: testUserID, Name: "Transport", Type: models.CategoryExpense})
	s.PutCategory(models.Category{ID: salaryCatID, UserID: testUserID, Name: "Salary", Type: models.CategoryIncome})
	s.PutCategory(models.Category{ID: foreignCatID, UserID: 2, Name: "Theirs", Type: models.CategoryExpense})
	s.PutTag(models.Tag{ID: workTagID, UserID: testUserID, Name: "work"})
	s.PutTag(models.Tag{ID: travelTagID, UserID: testUserID, Name: "travel"})
	s.PutTag(models.Tag{ID: foreignTagID, UserID: 2, Name: "theirs"})
	return s
}

func seedTransaction(s *memory.Store, mutate ...func(*models.Transaction)) int64 {
	txn := models.Transaction{
		UserID:      testUserID,
		AccountID:   checkingID,
		Type:        models.TransactionExpense,
		Amount:      decimal.RequireFromString("25.50"),
		Description: "Uber ride",
		Currency:    "USD",
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	for _, fn := range mutate {
		fn(&txn)
	}
	return s.PutTransaction(txn)
}

func descriptionContains(s string) models.ConditionGroup {
	return models.ConditionGroup{
		Match:      models.MatchAll,
		Conditions: []models.Condition{{Field: "description", Op: models.OpContains, Value: s}},
	}
}

func newRule(id int64, priority int, conditions models.ConditionGroup, actions ...models.Action) models.TransactionRule {
	return models.TransactionRule{
		ID:          id,
		UserID:      testUserID,
		Name:        fmt.Sprintf("rule %d", id),
		TriggerType: models.TriggerTransactionCreate,
		Priority:    priority,
		Conditions:  conditions,
		Actions:     actions,
		IsActive:    true,
	}
}

func newTestDispatcher(s *memory.Store, cfg Config) *Dispatcher {
	return NewDispatcher(s, s, s, cfg, NewMetrics(prometheus.NewRegistry()))
}

func createEvent(txnID int64) Event {
	return Event{Type: models.TriggerTransactionCreate, UserID: testUserID, TransactionID: txnID}
}
