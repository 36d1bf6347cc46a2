package rules

import (
	"budgee-automation/src/models"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() models.TransactionRule {
	return newRule(1, 10, descriptionContains("uber"),
		models.Action{Type: models.ActionSetCategory, CategoryID: int64Ptr(transportCatID)})
}

func TestValidateRule_AcceptsWellFormedRules(t *testing.T) {
	rule := validRule()
	rule.Conditions = models.ConditionGroup{
		Match: models.MatchAny,
		Conditions: []models.Condition{
			{Field: "amount", Op: models.OpGte, Value: "10.5"},
			{Field: "merchant_name", Op: models.OpIsNull},
			{Field: "description", Op: models.OpRegex, Value: `^uber\s`},
			{Field: "category_id", Op: models.OpIn, Value: []interface{}{1, 2}},
		},
	}
	rule.Actions = append(rule.Actions,
		models.Action{Type: models.ActionSetAmount, AmountFormula: "amount * 1.1"},
		models.Action{Type: models.ActionCreateTransfer, ToAccountID: int64Ptr(savingsID), Amount: decPtr("5")},
	)

	assert.NoError(t, ValidateRule(rule))
}

func TestValidateRule_ReportsEveryProblem(t *testing.T) {
	rule := models.TransactionRule{
		Name:        " ",
		TriggerType: "on_account_create",
		Priority:    0,
		Conditions: models.ConditionGroup{
			Match: "most",
			Conditions: []models.Condition{
				{Field: "amount", Op: "approximately", Value: 1},
				{Field: "description", Op: models.OpRegex, Value: "(unclosed"},
				{Field: "amount", Op: models.OpGt, Value: "lots"},
				{Field: "category_id", Op: models.OpIn, Value: 7},
			},
		},
		Actions: []models.Action{
			{Type: models.ActionSetAmount, Amount: decPtr("5"), AmountFormula: "amount"},
			{Type: models.ActionSetAmount, AmountFormula: "amount +"},
			{Type: models.ActionCreateTransfer, FromAccountID: int64Ptr(1), ToAccountID: int64Ptr(1), Amount: decPtr("-1")},
			{Type: "send_email"},
		},
	}

	err := ValidateRule(rule)
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindValidation, KindOf(err))

	expected := []string{
		"name is required",
		`unknown trigger_type "on_account_create"`,
		"priority must be between 1 and 100",
		"conditions.match must be all or any",
		`conditions[0]: unknown op "approximately"`,
		"conditions[1]: invalid regex",
		"conditions[2]: gt requires a numeric value",
		"conditions[3]: in requires a list value",
		"actions[0]: set either amount or amount_formula, not both",
		"actions[1]: invalid amount_formula",
		"actions[2]: from_account_id and to_account_id must differ",
		"actions[2]: amount must be positive",
		`actions[3]: unknown action type "send_email"`,
	}
	for _, want := range expected {
		assert.Contains(t, err.Error(), want)
	}
	assert.Len(t, verr.Problems, len(expected))
}

func TestValidateRule_RequiresConditionsAndActions(t *testing.T) {
	rule := validRule()
	rule.Conditions.Conditions = nil
	rule.Actions = nil

	err := ValidateRule(rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one condition is required")
	assert.Contains(t, err.Error(), "at least one action is required")
}

func TestValidateRule_ActionParameters(t *testing.T) {
	tests := []struct {
		name   string
		action models.Action
		want   string
	}{
		{"category", models.Action{Type: models.ActionSetCategory}, "set_category requires category_id"},
		{"tags", models.Action{Type: models.ActionAddTags}, "add_tags requires tag_ids"},
		{"description", models.Action{Type: models.ActionSetDescription, Template: "  "}, "set_description requires template"},
		{"amount", models.Action{Type: models.ActionSetAmount}, "set_amount requires amount or amount_formula"},
		{"transfer", models.Action{Type: models.ActionCreateTransfer, Amount: decPtr("1")}, "create_transfer requires to_account_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			rule.Actions = []models.Action{tt.action}

			err := ValidateRule(rule)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
