package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Run("substitutes known fields", func(t *testing.T) {
		out, unknown := Render("Paid {{amount}} to {{counterparty}}", FieldMap{"amount": 50, "counterparty": "Bob"})
		assert.Equal(t, "Paid 50 to Bob", out)
		assert.Empty(t, unknown)
	})

	t.Run("leaves unknown placeholders verbatim", func(t *testing.T) {
		out, unknown := Render("Hello {{missing}} and {{missing}}", FieldMap{})
		assert.Equal(t, "Hello {{missing}} and {{missing}}", out)
		assert.Equal(t, []string{"missing"}, unknown)
	})

	t.Run("allows whitespace and dotted names", func(t *testing.T) {
		out, _ := Render("{{ category.name }}!", FieldMap{"category.name": "Transport"})
		assert.Equal(t, "Transport!", out)
	})

	t.Run("does not evaluate expressions", func(t *testing.T) {
		out, unknown := Render("{{ 1+1 }} {{amount * 2}}", FieldMap{"amount": 3})
		assert.Equal(t, "{{ 1+1 }} {{amount * 2}}", out)
		assert.Empty(t, unknown)
	})

	t.Run("formats values", func(t *testing.T) {
		fields := FieldMap{
			"price": decimal.RequireFromString("12.5"),
			"exact": decimal.RequireFromString("0.125"),
			"date":  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
			"tags":  []interface{}{"work", "travel"},
			"none":  nil,
		}
		out, unknown := Render("{{price}}|{{exact}}|{{date}}|{{tags}}|{{none}}", fields)
		assert.Equal(t, "12.50|0.125|2024-03-05|work, travel|", out)
		assert.Empty(t, unknown)
	})
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"amount", "account.name"}, Placeholders("{{amount}} from {{ account.name }}"))
	assert.Empty(t, Placeholders("no placeholders"))
}
