package rules

import (
	"budgee-automation/src/models"
	"fmt"
	"regexp"
	"strings"
)

// ValidateRule checks a rule definition and reports every problem at once.
// It does not check that referenced categories, tags or accounts exist.
func ValidateRule(rule models.TransactionRule) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(rule.Name) == "" {
		add("name is required")
	}
	if !rule.TriggerType.Valid() {
		add("unknown trigger_type %q", rule.TriggerType)
	}
	if rule.Priority < models.MinRulePriority || rule.Priority > models.MaxRulePriority {
		add("priority must be between %d and %d", models.MinRulePriority, models.MaxRulePriority)
	}

	group := rule.Conditions
	if group.Match != models.MatchAll && group.Match != models.MatchAny {
		add("conditions.match must be all or any")
	}
	if len(group.Conditions) == 0 {
		add("at least one condition is required")
	}
	for i, c := range group.Conditions {
		for _, p := range validateCondition(c) {
			add("conditions[%d]: %s", i, p)
		}
	}

	if len(rule.Actions) == 0 {
		add("at least one action is required")
	}
	for i, a := range rule.Actions {
		for _, p := range validateAction(a) {
			add("actions[%d]: %s", i, p)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateCondition(c models.Condition) []string {
	var problems []string
	if strings.TrimSpace(c.Field) == "" {
		problems = append(problems, "field is required")
	}
	if !c.Op.Valid() {
		return append(problems, fmt.Sprintf("unknown op %q", c.Op))
	}
	switch c.Op {
	case models.OpIn:
		if _, ok := asList(c.Value); !ok {
			problems = append(problems, "in requires a list value")
		}
	case models.OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			problems = append(problems, "regex requires a string pattern")
		} else if _, err := regexp.Compile(pattern); err != nil {
			problems = append(problems, fmt.Sprintf("invalid regex: %v", err))
		}
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if _, ok := toDecimal(c.Value); !ok {
			problems = append(problems, fmt.Sprintf("%s requires a numeric value", c.Op))
		}
	case models.OpEq, models.OpNeq, models.OpContains:
		if c.Value == nil {
			problems = append(problems, fmt.Sprintf("%s requires a value", c.Op))
		}
	}
	return problems
}

func validateAction(a models.Action) []string {
	var problems []string
	switch a.Type {
	case models.ActionSetCategory:
		if a.CategoryID == nil {
			problems = append(problems, "set_category requires category_id")
		}
	case models.ActionAddTags:
		if len(a.TagIDs) == 0 {
			problems = append(problems, "add_tags requires tag_ids")
		}
	case models.ActionSetDescription:
		if strings.TrimSpace(a.Template) == "" {
			problems = append(problems, "set_description requires template")
		}
	case models.ActionSetAmount:
		problems = append(problems, validateAmount(a)...)
	case models.ActionCreateTransfer:
		if a.ToAccountID == nil {
			problems = append(problems, "create_transfer requires to_account_id")
		}
		if a.FromAccountID != nil && a.ToAccountID != nil && *a.FromAccountID == *a.ToAccountID {
			problems = append(problems, "from_account_id and to_account_id must differ")
		}
		problems = append(problems, validateAmount(a)...)
	default:
		problems = append(problems, fmt.Sprintf("unknown action type %q", a.Type))
	}
	return problems
}

func validateAmount(a models.Action) []string {
	switch {
	case a.Amount != nil && a.AmountFormula != "":
		return []string{"set either amount or amount_formula, not both"}
	case a.Amount == nil && a.AmountFormula == "":
		return []string{fmt.Sprintf("%s requires amount or amount_formula", a.Type)}
	case a.Amount != nil && !a.Amount.IsPositive():
		return []string{"amount must be positive"}
	case a.AmountFormula != "":
		if _, err := ParseFormula(a.AmountFormula); err != nil {
			return []string{fmt.Sprintf("invalid amount_formula: %v", err)}
		}
	}
	return nil
}
