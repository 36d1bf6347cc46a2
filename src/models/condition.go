package models

// MatchMode says how the conditions of a group combine.
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// Operator is the closed set of condition operators. Adding one is a breaking change.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpContains  Operator = "contains"
	OpIn        Operator = "in"
	OpRegex     Operator = "regex"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpIn: true, OpRegex: true, OpIsNull: true, OpIsNotNull: true,
}

func (o Operator) Valid() bool {
	return knownOperators[o]
}

type Condition struct {
	Field string      `json:"field"`
	Op    Operator    `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

type ConditionGroup struct {
	Match      MatchMode   `json:"match"`
	Conditions []Condition `json:"conditions"`
}
