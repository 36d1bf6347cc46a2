package models

type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

type Category struct {
	ID     int64        `json:"id"`
	UserID int64        `json:"user_id"`
	Name   string       `json:"name"`
	Type   CategoryType `json:"type"`
}

type Tag struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}
