package analysis

import (
	"math"
	"reflect"
	"testing"

	"github.com/dvloznov/cellsense/internal/domain"
)

func sampleRecords() ([]string, []domain.Record) {
	cols := []string{"Date", "Description", "Category", "Income", "Expense"}
	recs := []domain.Record{
		{"Date": "2024-01-03", "Description": "Salary", "Category": "Work", "Income": 2000.0, "Expense": 0.0},
		{"Date": "2024-01-10", "Description": "Tesco", "Category": "Food", "Income": 0.0, "Expense": 55.5},
		{"Date": "2024-02-01", "Description": "Rent", "Category": "Housing", "Income": 0.0, "Expense": 900.0},
		{"Date": "2024-02-14", "Description": "Dinner", "Category": "Food", "Income": nil, "Expense": 44.5},
	}
	return cols, recs
}

func TestNumericColumns(t *testing.T) {
	cols, recs := sampleRecords()
	stats := NumericColumns(cols, recs)

	if len(stats) != 2 {
		t.Fatalf("got %d numeric columns, want 2: %+v", len(stats), stats)
	}

	income := stats[0]
	if income.Column != "Income" || income.Sum != 2000 || income.Min != 0 || income.Max != 2000 {
		t.Errorf("income stats = %+v", income)
	}
	// Nil values are skipped: mean over three values.
	if math.Abs(income.Mean-666.6666666666666) > 1e-9 {
		t.Errorf("income mean = %v", income.Mean)
	}

	expense := stats[1]
	if expense.Sum != 1000 || expense.Mean != 250 {
		t.Errorf("expense stats = %+v", expense)
	}
	// Sample std of 0, 55.5, 900, 44.5.
	if math.Abs(expense.Std-433.9971198061) > 1e-6 {
		t.Errorf("expense std = %v", expense.Std)
	}
}

func TestNumericColumns_MixedIsNotNumeric(t *testing.T) {
	recs := []domain.Record{{"A": 1.0}, {"A": "two"}}
	if got := NumericColumns([]string{"A"}, recs); len(got) != 0 {
		t.Errorf("mixed column reported numeric: %+v", got)
	}
}

func TestNumericColumns_SingleValueStd(t *testing.T) {
	got := NumericColumns([]string{"A"}, []domain.Record{{"A": 5.0}})
	if len(got) != 1 || got[0].Std != 0 {
		t.Errorf("single value stats = %+v", got)
	}
}

func TestDetectFinancialColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		custom  string
		want    FinancialColumns
	}{
		{
			name:    "basic",
			columns: []string{"Date", "Category", "Income", "Expense"},
			want:    FinancialColumns{Income: "Income", Expense: "Expense", Category: "Category"},
		},
		{
			name:    "income checked before expense",
			columns: []string{"Credit Card Payment"},
			want:    FinancialColumns{Income: "Credit Card Payment"},
		},
		{
			name:    "last match wins",
			columns: []string{"Description", "Category", "Cost", "Debit"},
			want:    FinancialColumns{Expense: "Debit", Category: "Category"},
		},
		{
			name:    "custom keyword extends category",
			columns: []string{"Merchant", "Amount"},
			custom:  " merchant , ",
			want:    FinancialColumns{Category: "Merchant"},
		},
		{
			name:    "nothing found",
			columns: []string{"Date", "Amount"},
			want:    FinancialColumns{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFinancialColumns(tt.columns, tt.custom)
			if got != tt.want {
				t.Errorf("DetectFinancialColumns() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAnalyze_FinancialSummary(t *testing.T) {
	cols, recs := sampleRecords()
	a := Analyze(cols, recs, "")

	if a.TotalRows != 4 {
		t.Errorf("TotalRows = %d", a.TotalRows)
	}
	fs := a.FinancialSummary
	if fs == nil {
		t.Fatal("FinancialSummary is nil")
	}
	if fs.TotalIncome != 2000 || fs.TotalExpenses != 1000 || fs.NetBalance != 1000 {
		t.Errorf("summary = %+v", fs)
	}
	wantCats := []domain.CategoryCount{
		{Name: "Food", Count: 2},
		{Name: "Work", Count: 1},
		{Name: "Housing", Count: 1},
	}
	if !reflect.DeepEqual(fs.Categories, wantCats) {
		t.Errorf("categories = %+v, want %+v", fs.Categories, wantCats)
	}
}

func TestAnalyze_NoFinancialColumns(t *testing.T) {
	a := Analyze([]string{"Date", "Amount"}, []domain.Record{{"Date": "2024-01-01", "Amount": 3.0}}, "")
	if a.FinancialSummary != nil {
		t.Errorf("FinancialSummary = %+v, want nil", a.FinancialSummary)
	}
	if len(a.NumericColumns) != 1 {
		t.Errorf("NumericColumns = %+v", a.NumericColumns)
	}
}

func TestMonthlyTrends(t *testing.T) {
	cols, recs := sampleRecords()
	numeric := NumericColumns(cols, recs)

	got := MonthlyTrends(cols, recs, numeric)
	want := []MonthValue{
		{Month: "2024-01", Value: 2000},
		{Month: "2024-02", Value: 0},
	}
	if !reflect.DeepEqual(got.ByMonth, want) {
		t.Errorf("ByMonth = %+v, want %+v", got.ByMonth, want)
	}
}

func TestMonthlyTrends_UnparseableDateColumn(t *testing.T) {
	recs := []domain.Record{{"Date": "soon", "Amount": 1.0}}
	cols := []string{"Date", "Amount"}
	got := MonthlyTrends(cols, recs, NumericColumns(cols, recs))
	if len(got.ByMonth) != 0 {
		t.Errorf("ByMonth = %+v, want empty", got.ByMonth)
	}
}

func TestCategoryTotals(t *testing.T) {
	cols, recs := sampleRecords()
	got := CategoryTotals(cols, recs, NumericColumns(cols, recs))
	want := []CategoryTotal{
		{Category: "Food", Amount: 0},
		{Category: "Housing", Amount: 0},
		{Category: "Work", Amount: 2000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CategoryTotals() = %+v, want %+v", got, want)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      any
		want    string
		wantErr bool
	}{
		{"2024-03-05", "2024-03-05", false},
		{"03/05/2024", "2024-03-05", false},
		{"03-05-24", "2024-03-05", false},
		{"2024-03-05T10:00:00Z", "2024-03-05", false},
		{"yesterday", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.String() != tt.want {
			t.Errorf("ParseDate(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
