package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

// MonthValue is the total of the first numeric column for one calendar month.
type MonthValue struct {
	Month string  `json:"month"`
	Value float64 `json:"value"`
}

// CategoryTotal is the signed total of the first numeric column for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Trends groups sheet values over time.
type Trends struct {
	ByMonth    []MonthValue    `json:"by_month"`
	ByCategory []CategoryTotal `json:"by_category"`
}

// Report is the detailed analysis of a stored dataset.
type Report struct {
	Summary    domain.Analysis `json:"summary"`
	Trends     Trends          `json:"trends"`
	Categories []CategoryTotal `json:"categories"`
}

// BuildReport recomputes the analysis of ds and adds trends and category totals.
func BuildReport(ds *domain.Dataset) Report {
	summary := Analyze(ds.Columns, ds.Records, "")
	return Report{
		Summary:    summary,
		Trends:     MonthlyTrends(ds.Columns, ds.Records, summary.NumericColumns),
		Categories: CategoryTotals(ds.Columns, ds.Records, summary.NumericColumns),
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"01-02-06",
	"1/2/06",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// ParseDate accepts ISO dates plus the common layouts excelize renders.
func ParseDate(v any) (civil.Date, error) {
	s := strings.TrimSpace(domain.CellString(v))
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("ParseDate: unrecognized date %q", s)
}

// dateColumn returns the first column named like a date whose non-empty
// values all parse, together with the parsed dates per record index.
func dateColumn(columns []string, records []domain.Record) (string, map[int]civil.Date) {
	for _, col := range columns {
		if !strings.Contains(strings.ToLower(col), "date") {
			continue
		}
		dates := make(map[int]civil.Date, len(records))
		ok := true
		for i, rec := range records {
			v := rec[col]
			if v == nil || v == "" {
				continue
			}
			d, err := ParseDate(v)
			if err != nil {
				ok = false
				break
			}
			dates[i] = d
		}
		if ok {
			return col, dates
		}
	}
	return "", nil
}

// MonthlyTrends sums the first numeric column per month of the first
// date-like column, in ascending month order.
func MonthlyTrends(columns []string, records []domain.Record, numeric []domain.NumericColumnStat) Trends {
	trends := Trends{ByMonth: []MonthValue{}, ByCategory: []CategoryTotal{}}
	if len(numeric) == 0 {
		return trends
	}
	col, dates := dateColumn(columns, records)
	if col == "" {
		return trends
	}

	valueCol := numeric[0].Column
	sums := make(map[string]decimal.Decimal)
	for i, rec := range records {
		d, ok := dates[i]
		if !ok {
			continue
		}
		key := fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
		amount, _ := aggregate.ParseAmount(rec[valueCol])
		sums[key] = sums[key].Add(amount)
	}

	months := make([]string, 0, len(sums))
	for m := range sums {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		trends.ByMonth = append(trends.ByMonth, MonthValue{Month: m, Value: sums[m].InexactFloat64()})
	}
	return trends
}

// CategoryTotals sums the first numeric column per value of the first column
// named like "category", sorted by category.
func CategoryTotals(columns []string, records []domain.Record, numeric []domain.NumericColumnStat) []CategoryTotal {
	out := []CategoryTotal{}
	if len(numeric) == 0 {
		return out
	}
	var catCol string
	for _, col := range columns {
		if strings.Contains(strings.ToLower(col), "category") {
			catCol = col
			break
		}
	}
	if catCol == "" {
		return out
	}

	valueCol := numeric[0].Column
	sums := make(map[string]decimal.Decimal)
	for _, rec := range records {
		v := rec[catCol]
		if v == nil {
			continue
		}
		amount, _ := aggregate.ParseAmount(rec[valueCol])
		key := domain.CellString(v)
		sums[key] = sums[key].Add(amount)
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, CategoryTotal{Category: k, Amount: sums[k].InexactFloat64()})
	}
	return out
}
