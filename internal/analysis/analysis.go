// Package analysis computes the summary statistics returned with an upload.
package analysis

import (
	"math"

	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

// Analyze builds the upload analysis for a sheet. customKeywords is the
// optional comma-separated hint supplied with the upload.
func Analyze(columns []string, records []domain.Record, customKeywords string) domain.Analysis {
	numeric := NumericColumns(columns, records)
	fin := DetectFinancialColumns(columns, customKeywords)

	return domain.Analysis{
		TotalRows:        len(records),
		Columns:          append([]string(nil), columns...),
		NumericColumns:   numeric,
		FinancialSummary: Summarize(fin, records, numericSet(numeric)),
	}
}

// NumericColumns returns statistics for every column whose non-empty values
// are all numbers. Columns with no values at all are not numeric.
func NumericColumns(columns []string, records []domain.Record) []domain.NumericColumnStat {
	stats := make([]domain.NumericColumnStat, 0)
	for _, col := range columns {
		values, ok := columnValues(col, records)
		if !ok {
			continue
		}
		stats = append(stats, describe(col, values))
	}
	return stats
}

// columnValues returns the parsed non-empty values of col, and false when any
// of them is not a number.
func columnValues(col string, records []domain.Record) ([]decimal.Decimal, bool) {
	var values []decimal.Decimal
	for _, rec := range records {
		v, present := rec[col]
		if !present || v == nil {
			continue
		}
		if _, isNum := v.(float64); !isNum {
			return nil, false
		}
		d, _ := aggregate.ParseAmount(v)
		values = append(values, d)
	}
	return values, len(values) > 0
}

func describe(col string, values []decimal.Decimal) domain.NumericColumnStat {
	sum := decimal.Sum(values[0], values[1:]...)
	n := decimal.NewFromInt(int64(len(values)))
	mean := sum.Div(n)

	stat := domain.NumericColumnStat{
		Column: col,
		Sum:    sum.InexactFloat64(),
		Mean:   mean.InexactFloat64(),
		Min:    decimal.Min(values[0], values[1:]...).InexactFloat64(),
		Max:    decimal.Max(values[0], values[1:]...).InexactFloat64(),
	}

	// Sample standard deviation; undefined for a single value and reported as 0.
	if len(values) > 1 {
		sq := decimal.Zero
		for _, v := range values {
			diff := v.Sub(mean)
			sq = sq.Add(diff.Mul(diff))
		}
		variance := sq.Div(decimal.NewFromInt(int64(len(values) - 1)))
		stat.Std = math.Sqrt(variance.InexactFloat64())
	}
	return stat
}

func numericSet(stats []domain.NumericColumnStat) map[string]bool {
	set := make(map[string]bool, len(stats))
	for _, s := range stats {
		set[s.Column] = true
	}
	return set
}
