// Package columns infers which sheet columns play the category and amount roles.
package columns

import "strings"

// Roles names the columns selected for aggregation. An empty string means the
// role was not found, which is a valid outcome: aggregation is unavailable.
type Roles struct {
	Category string `json:"category_column,omitempty"`
	Amount   string `json:"amount_column,omitempty"`
}

// HasCategory reports whether a category column was found.
func (r Roles) HasCategory() bool { return r.Category != "" }

// HasAmount reports whether an amount column was found.
func (r Roles) HasAmount() bool { return r.Amount != "" }

// Complete reports whether both roles are present.
func (r Roles) Complete() bool { return r.HasCategory() && r.HasAmount() }

// categoryKeyword marks a category column.
const categoryKeyword = "category"

// amountKeywords are checked in priority order against each column name.
var amountKeywords = []string{"amount", "expense", "income"}

// Infer selects the first column containing "category" and the first column
// containing one of "amount", "expense" or "income". Matching is
// case-insensitive and the result depends only on the order of columns.
func Infer(columns []string) Roles {
	var roles Roles
	for _, col := range columns {
		lower := strings.ToLower(col)
		if roles.Category == "" && strings.Contains(lower, categoryKeyword) {
			roles.Category = col
		}
		if roles.Amount == "" && matchesAny(lower, amountKeywords) {
			roles.Amount = col
		}
		if roles.Complete() {
			break
		}
	}
	return roles
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
