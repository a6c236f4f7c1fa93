package bigquery

import (
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/cellsense/internal/analysis"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

// DatasetSummaryRow is one archived upload in <project>.<dataset>.dataset_summaries.
type DatasetSummaryRow struct {
	DatasetID string `bigquery:"dataset_id"` // REQUIRED
	Filename  string `bigquery:"filename"`   // REQUIRED
	GCSURI    string `bigquery:"gcs_uri"`    // NULLABLE

	RowCount    int64 `bigquery:"row_count"`    // REQUIRED
	ColumnCount int64 `bigquery:"column_count"` // REQUIRED

	TotalIncome   *big.Rat `bigquery:"total_income"`   // NULLABLE NUMERIC
	TotalExpenses *big.Rat `bigquery:"total_expenses"` // NULLABLE NUMERIC
	NetBalance    *big.Rat `bigquery:"net_balance"`    // NULLABLE NUMERIC

	PeriodStart bigquery.NullDate `bigquery:"period_start"` // NULLABLE, first month with dated rows
	PeriodEnd   bigquery.NullDate `bigquery:"period_end"`   // NULLABLE, last month with dated rows

	Categories bigquery.NullJSON `bigquery:"categories"` // NULLABLE, [{name,count}]

	UploadTS   time.Time `bigquery:"upload_ts"`   // REQUIRED
	ArchivedTS time.Time `bigquery:"archived_ts"` // REQUIRED
}

// NewSummaryRow flattens a dataset and its report into a warehouse row.
func NewSummaryRow(ds *domain.Dataset, report analysis.Report, gcsURI string, archivedAt time.Time) *DatasetSummaryRow {
	row := &DatasetSummaryRow{
		DatasetID:   ds.ID,
		Filename:    ds.Filename,
		GCSURI:      gcsURI,
		RowCount:    int64(ds.RowCount),
		ColumnCount: int64(len(ds.Columns)),
		UploadTS:    ds.UploadedAt.UTC(),
		ArchivedTS:  archivedAt.UTC(),
	}

	if fs := ds.Analysis.FinancialSummary; fs != nil {
		row.TotalIncome = numeric(fs.TotalIncome)
		row.TotalExpenses = numeric(fs.TotalExpenses)
		row.NetBalance = numeric(fs.NetBalance)

		if len(fs.Categories) > 0 {
			if b, err := json.Marshal(fs.Categories); err == nil {
				row.Categories = bigquery.NullJSON{JSONVal: string(b), Valid: true}
			}
		}
	}

	if months := report.Trends.ByMonth; len(months) > 0 {
		row.PeriodStart = monthStart(months[0].Month)
		row.PeriodEnd = monthStart(months[len(months)-1].Month)
	}

	return row
}

// numeric rounds to the 9 fractional digits a BigQuery NUMERIC holds.
func numeric(f float64) *big.Rat {
	return decimal.NewFromFloat(f).Round(9).Rat()
}

func monthStart(month string) bigquery.NullDate {
	d, err := civil.ParseDate(month + "-01")
	if err != nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: d, Valid: true}
}

// SummaryView is the JSON shape of an archived summary.
type SummaryView struct {
	DatasetID     string          `json:"data_id"`
	Filename      string          `json:"filename"`
	GCSURI        string          `json:"gcs_uri,omitempty"`
	RowCount      int64           `json:"row_count"`
	ColumnCount   int64           `json:"column_count"`
	TotalIncome   *float64        `json:"total_income,omitempty"`
	TotalExpenses *float64        `json:"total_expenses,omitempty"`
	NetBalance    *float64        `json:"net_balance,omitempty"`
	PeriodStart   string          `json:"period_start,omitempty"`
	PeriodEnd     string          `json:"period_end,omitempty"`
	Categories    json.RawMessage `json:"categories,omitempty"`
	UploadedAt    time.Time       `json:"uploaded_at"`
	ArchivedAt    time.Time       `json:"archived_at"`
}

// View converts the row for API responses.
func (r *DatasetSummaryRow) View() SummaryView {
	v := SummaryView{
		DatasetID:     r.DatasetID,
		Filename:      r.Filename,
		GCSURI:        r.GCSURI,
		RowCount:      r.RowCount,
		ColumnCount:   r.ColumnCount,
		TotalIncome:   ratFloat(r.TotalIncome),
		TotalExpenses: ratFloat(r.TotalExpenses),
		NetBalance:    ratFloat(r.NetBalance),
		UploadedAt:    r.UploadTS,
		ArchivedAt:    r.ArchivedTS,
	}
	if r.PeriodStart.Valid {
		v.PeriodStart = r.PeriodStart.Date.String()
	}
	if r.PeriodEnd.Valid {
		v.PeriodEnd = r.PeriodEnd.Date.String()
	}
	if r.Categories.Valid && json.Valid([]byte(r.Categories.JSONVal)) {
		v.Categories = json.RawMessage(r.Categories.JSONVal)
	}
	return v
}

func ratFloat(r *big.Rat) *float64 {
	if r == nil {
		return nil
	}
	f, _ := r.Float64()
	return &f
}
