package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	incomeKeywords   = []string{"income", "revenue", "credit", "earning"}
	expenseKeywords  = []string{"expense", "cost", "debit", "spending", "payment"}
	categoryKeywords = []string{"category", "type", "description", "name"}
)

// FinancialColumns are the columns used for the financial summary. Empty
// means not found.
type FinancialColumns struct {
	Income   string `json:"income_column,omitempty"`
	Expense  string `json:"expense_column,omitempty"`
	Category string `json:"category_column,omitempty"`
}

// Found reports whether any financial column was detected.
func (f FinancialColumns) Found() bool {
	return f.Income != "" || f.Expense != "" || f.Category != ""
}

// DetectFinancialColumns classifies each column as income, expense or
// category, checked in that order. A later column of the same kind replaces
// an earlier one. customKeywords, comma separated, extend the category list.
func DetectFinancialColumns(columns []string, customKeywords string) FinancialColumns {
	catKeywords := append(append([]string(nil), categoryKeywords...), ParseKeywords(customKeywords)...)

	var fc FinancialColumns
	for _, col := range columns {
		lower := strings.ToLower(col)
		switch {
		case containsAny(lower, incomeKeywords):
			fc.Income = col
		case containsAny(lower, expenseKeywords):
			fc.Expense = col
		case containsAny(lower, catKeywords):
			fc.Category = col
		}
	}
	return fc
}

// ParseKeywords splits a comma-separated hint into lowercase keywords.
func ParseKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Summarize totals the income and expense columns when they are numeric and
// counts the category values. It returns nil when no financial column exists.
func Summarize(fc FinancialColumns, records []domain.Record, numeric map[string]bool) *domain.FinancialSummary {
	if !fc.Found() {
		return nil
	}

	income := decimal.Zero
	if fc.Income != "" && numeric[fc.Income] {
		income = sumColumn(fc.Income, records)
	}
	expenses := decimal.Zero
	if fc.Expense != "" && numeric[fc.Expense] {
		expenses = sumColumn(fc.Expense, records)
	}

	summary := &domain.FinancialSummary{
		TotalIncome:   income.InexactFloat64(),
		TotalExpenses: expenses.InexactFloat64(),
		NetBalance:    income.Sub(expenses).InexactFloat64(),
		Categories:    []domain.CategoryCount{},
	}
	if fc.Category != "" {
		summary.Categories = countValues(fc.Category, records)
	}
	return summary
}

func sumColumn(col string, records []domain.Record) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		d, _ := aggregate.ParseAmount(rec[col])
		total = total.Add(d)
	}
	return total
}

// countValues counts non-empty values, most frequent first. Ties keep first
// encounter order.
func countValues(col string, records []domain.Record) []domain.CategoryCount {
	var counts []domain.CategoryCount
	index := make(map[string]int)
	for _, rec := range records {
		v := rec[col]
		if v == nil {
			continue
		}
		name := domain.CellString(v)
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			counts[i].Count++
			continue
		}
		index[name] = len(counts)
		counts = append(counts, domain.CategoryCount{Name: name, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}
