package rules

import (
	"budgee-automation/src/models"
	"regexp"
	"strings"
)

// Matches evaluates a condition group. "all" stops at the first false
// condition, "any" at the first true one. Unknown match modes never match.
func Matches(group models.ConditionGroup, fields FieldMap) bool {
	switch group.Match {
	case models.MatchAll:
		for _, c := range group.Conditions {
			if !EvaluateCondition(c, fields) {
				return false
			}
		}
		return true
	case models.MatchAny:
		for _, c := range group.Conditions {
			if EvaluateCondition(c, fields) {
				return true
			}
		}
		return false
	}
	return false
}

// EvaluateCondition evaluates one condition. It never fails: a missing field,
// a type mismatch or an unknown operator all evaluate to false, except is_null
// which is true for a missing field.
func EvaluateCondition(cond models.Condition, fields FieldMap) bool {
	fieldValue, exists := fields.Lookup(cond.Field)

	switch cond.Op {
	case models.OpIsNull:
		return !exists || isEmpty(fieldValue)
	case models.OpIsNotNull:
		return exists && !isEmpty(fieldValue)
	}
	if !exists {
		return false
	}

	switch cond.Op {
	case models.OpEq:
		return valuesEqual(fieldValue, cond.Value)
	case models.OpNeq:
		return !valuesEqual(fieldValue, cond.Value)
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		return compareNumbers(cond.Op, fieldValue, cond.Value)
	case models.OpContains:
		if list, ok := asList(fieldValue); ok {
			return listContains(list, cond.Value)
		}
		s, ok := fieldValue.(string)
		if !ok || cond.Value == nil {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(stringify(cond.Value)))
	case models.OpIn:
		list, ok := asList(cond.Value)
		if !ok {
			return false
		}
		return listContains(list, fieldValue)
	case models.OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok || fieldValue == nil {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(fieldValue))
	}
	return false
}

func compareNumbers(op models.Operator, left, right interface{}) bool {
	l, okL := toDecimal(left)
	r, okR := toDecimal(right)
	if !okL || !okR {
		return false
	}
	switch op {
	case models.OpGt:
		return l.GreaterThan(r)
	case models.OpGte:
		return l.GreaterThanOrEqual(r)
	case models.OpLt:
		return l.LessThan(r)
	case models.OpLte:
		return l.LessThanOrEqual(r)
	}
	return false
}

func listContains(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if list, ok := asList(v); ok {
		return len(list) == 0
	}
	return false
}
