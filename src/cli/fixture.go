package cli

import (
	"budgee-automation/src/db/memory"
	"budgee-automation/src/models"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const defaultFixtureUser = 1

// RuleFile is a YAML (or JSON) list of rule definitions.
type RuleFile struct {
	Rules []RuleDefinition `json:"rules"`
}

// RuleDefinition is a rule as written by hand. Omitted priority and
// is_active take the same defaults as the API.
type RuleDefinition struct {
	ID             int64                 `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	TriggerType    models.TriggerType    `json:"trigger_type"`
	Priority       *int                  `json:"priority"`
	Conditions     models.ConditionGroup `json:"conditions"`
	Actions        []models.Action       `json:"actions"`
	IsActive       *bool                 `json:"is_active"`
	StopProcessing bool                  `json:"stop_processing"`
}

func (d RuleDefinition) toRule(userID int64) models.TransactionRule {
	rule := models.TransactionRule{
		ID:             d.ID,
		UserID:         userID,
		Name:           d.Name,
		Description:    d.Description,
		TriggerType:    d.TriggerType,
		Priority:       50,
		Conditions:     d.Conditions,
		Actions:        d.Actions,
		IsActive:       true,
		StopProcessing: d.StopProcessing,
	}
	if d.Priority != nil {
		rule.Priority = *d.Priority
	}
	if d.IsActive != nil {
		rule.IsActive = *d.IsActive
	}
	return rule
}

// Fixture is the data a dry run evaluates rules against.
type Fixture struct {
	UserID       int64                `json:"user_id"`
	Accounts     []models.Account     `json:"accounts"`
	Categories   []models.Category    `json:"categories"`
	Tags         []models.Tag         `json:"tags"`
	Transactions []FixtureTransaction `json:"transactions"`
	Events       []FixtureEvent       `json:"events"`
}

type FixtureTransaction struct {
	ID           int64                  `json:"id"`
	AccountID    int64                  `json:"account_id"`
	CategoryID   *int64                 `json:"category_id"`
	Type         models.TransactionType `json:"type"`
	Amount       decimal.Decimal        `json:"amount"`
	Description  string                 `json:"description"`
	MerchantName *string                `json:"merchant_name"`
	Currency     string                 `json:"currency"`
	Date         string                 `json:"date"`
	TagIDs       []int64                `json:"tag_ids"`
}

type FixtureEvent struct {
	Type          models.TriggerType `json:"type"`
	TransactionID int64              `json:"transaction_id"`
}

// decodeFile reads YAML into v. The document goes through JSON so that the
// models' JSON tags and decimal decoding apply unchanged.
func decodeFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := json.Unmarshal(encoded, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func LoadRuleFile(path string) (*RuleFile, error) {
	var f RuleFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	for i := range f.Rules {
		if f.Rules[i].ID == 0 {
			f.Rules[i].ID = int64(i + 1)
		}
	}
	return &f, nil
}

func LoadFixture(path string) (*Fixture, error) {
	var f Fixture
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	if f.UserID == 0 {
		f.UserID = defaultFixtureUser
	}
	return &f, nil
}

// Seed fills store with the fixture, owned by the fixture user.
func (f *Fixture) Seed(store *memory.Store) error {
	for _, a := range f.Accounts {
		a.UserID = f.UserID
		if a.Currency == "" {
			a.Currency = "USD"
		}
		store.PutAccount(a)
	}
	for _, c := range f.Categories {
		c.UserID = f.UserID
		store.PutCategory(c)
	}
	for _, t := range f.Tags {
		t.UserID = f.UserID
		store.PutTag(t)
	}
	for i, t := range f.Transactions {
		txn, err := t.toTransaction(f.UserID)
		if err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}
		f.Transactions[i].ID = store.PutTransaction(txn)
	}
	return nil
}

func (t FixtureTransaction) toTransaction(userID int64) (models.Transaction, error) {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if t.Date != "" {
		parsed, err := time.Parse(models.DateLayout, t.Date)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		date = parsed
	}
	if !t.Type.Valid() {
		return models.Transaction{}, fmt.Errorf("unknown transaction type %q", t.Type)
	}
	currency := t.Currency
	if currency == "" {
		currency = "USD"
	}
	return models.Transaction{
		ID:           t.ID,
		UserID:       userID,
		AccountID:    t.AccountID,
		CategoryID:   t.CategoryID,
		Type:         t.Type,
		Amount:       t.Amount,
		Description:  t.Description,
		MerchantName: t.MerchantName,
		Currency:     currency,
		Date:         date,
		TagIDs:       t.TagIDs,
	}, nil
}

// EventsOrDefault returns the fixture events, or one create event per
// transaction when none are listed.
func (f *Fixture) EventsOrDefault() []FixtureEvent {
	if len(f.Events) > 0 {
		return f.Events
	}
	events := make([]FixtureEvent, 0, len(f.Transactions))
	for _, t := range f.Transactions {
		events = append(events, FixtureEvent{Type: models.TriggerTransactionCreate, TransactionID: t.ID})
	}
	return events
}
