// Package aggregate turns sheet records into chart-ready category totals.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/dvloznov/cellsense/internal/columns"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

// OtherLabel is used for records with a missing or empty category.
const OtherLabel = "Other"

// ByCategory sums the amount column per category label and returns the
// magnitude of each signed total, in first-encounter order of the labels.
// Income and expenses under the same label net out before the magnitude is
// taken. An empty slice means there is nothing to chart.
func ByCategory(records []domain.Record, roles columns.Roles) []domain.CategoryAggregate {
	if !roles.Complete() || len(records) == 0 {
		return []domain.CategoryAggregate{}
	}

	var order []string
	sums := make(map[string]decimal.Decimal)

	for _, rec := range records {
		label := Label(rec[roles.Category])
		amount, _ := ParseAmount(rec[roles.Amount])

		if _, seen := sums[label]; !seen {
			order = append(order, label)
		}
		sums[label] = sums[label].Add(amount)
	}

	out := make([]domain.CategoryAggregate, 0, len(order))
	for _, label := range order {
		out = append(out, domain.CategoryAggregate{
			Name:  label,
			Value: sums[label].Abs().InexactFloat64(),
		})
	}
	return out
}

// Label returns the category label for a cell value.
func Label(v any) string {
	s := domain.CellString(v)
	if s == "" {
		return OtherLabel
	}
	return s
}

// ParseAmount converts a cell value to a decimal. Unparseable or missing
// values yield zero and false.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case decimal.Decimal:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		d, err := decimal.NewFromString(strings.TrimSpace(domain.CellString(val)))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
}
