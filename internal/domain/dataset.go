package domain

import (
	"time"
)

// Record is one row of an uploaded sheet keyed by column name.
// Values are string, float64 or nil.
type Record map[string]any

// Clone returns a shallow copy of the record. Values are scalars, so this is
// sufficient to detach the copy from the original.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CloneRecords copies every record in rs.
func CloneRecords(rs []Record) []Record {
	if rs == nil {
		return nil
	}
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// CategoryCount is the number of rows carrying a category value.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FinancialSummary holds totals derived from the detected income and expense columns.
type FinancialSummary struct {
	TotalIncome   float64         `json:"total_income"`
	TotalExpenses float64         `json:"total_expenses"`
	NetBalance    float64         `json:"net_balance"`
	Categories    []CategoryCount `json:"categories,omitempty"`
}

// NumericColumnStat describes one numeric column of the sheet.
type NumericColumnStat struct {
	Column string  `json:"column"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Std    float64 `json:"std"`
}

// Analysis is the precomputed summary returned with an upload.
type Analysis struct {
	TotalRows        int                 `json:"total_rows"`
	Columns          []string            `json:"columns"`
	NumericColumns   []NumericColumnStat `json:"numeric_columns"`
	FinancialSummary *FinancialSummary   `json:"financial_summary,omitempty"`
}

// Dataset is the result of one upload.
// It is immutable once stored; table sessions work on their own copy of Records.
type Dataset struct {
	ID         string    `json:"data_id"`
	Filename   string    `json:"filename"`
	Columns    []string  `json:"columns"`
	RowCount   int       `json:"row_count"`
	Records    []Record  `json:"data"`
	Analysis   Analysis  `json:"analysis"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DatasetInfo is the listing view of a dataset, without records.
type DatasetInfo struct {
	ID         string    `json:"data_id"`
	Filename   string    `json:"filename"`
	RowCount   int       `json:"row_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Info returns the listing view of d.
func (d *Dataset) Info() DatasetInfo {
	return DatasetInfo{
		ID:         d.ID,
		Filename:   d.Filename,
		RowCount:   d.RowCount,
		UploadedAt: d.UploadedAt,
	}
}

// CategoryAggregate is one bar or slice of a category chart.
type CategoryAggregate struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}
