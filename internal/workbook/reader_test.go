package workbook

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestCheckExtension(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"budget.xlsx", false},
		{"BUDGET.XLS", false},
		{"archive.tar.xlsx", false},
		{"budget.csv", true},
		{"budget.xlsx.pdf", true},
		{"budget", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := CheckExtension(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckExtension(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnsupportedFileType) {
				t.Errorf("error %v is not ErrUnsupportedFileType", err)
			}
		})
	}
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func TestRead(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Date", "", "Category", "Amount"},
		{"2024-01-05", "Tesco", "Food", -20.5},
		{"2024-01-06", "Salary", "Income", 1500},
		{},
		{"2024-01-07", "", "", "n/a"},
	})

	sheet, err := Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	wantCols := []string{"Date", "Column_2", "Category", "Amount"}
	if !reflect.DeepEqual(sheet.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", sheet.Columns, wantCols)
	}
	if len(sheet.Records) != 3 {
		t.Fatalf("got %d records, want 3 (blank row skipped)", len(sheet.Records))
	}

	first := sheet.Records[0]
	if first["Amount"] != -20.5 {
		t.Errorf("Amount = %#v, want -20.5", first["Amount"])
	}
	if first["Column_2"] != "Tesco" {
		t.Errorf("Column_2 = %#v, want Tesco", first["Column_2"])
	}
	if first["Date"] != "2024-01-05" {
		t.Errorf("Date = %#v, want string date", first["Date"])
	}

	last := sheet.Records[2]
	if last["Category"] != nil {
		t.Errorf("empty cell = %#v, want nil", last["Category"])
	}
	if last["Amount"] != "n/a" {
		t.Errorf("text cell = %#v, want n/a", last["Amount"])
	}
}

func TestRead_DuplicateHeaders(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Amount", "Amount"},
		{1, 2},
	})
	sheet, err := Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"Amount", "Amount.1"}
	if !reflect.DeepEqual(sheet.Columns, want) {
		t.Errorf("Columns = %v, want %v", sheet.Columns, want)
	}
}

func TestRead_NotAWorkbook(t *testing.T) {
	_, err := Read(bytes.NewBufferString("definitely not a zip"))
	if err == nil {
		t.Fatal("expected error for non-workbook input")
	}
}

func TestCellValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"12", 12.0},
		{"1,234.50", 1234.5},
		{"-3.5", -3.5},
		{"  ", nil},
		{"NaN", "NaN"},
		{"Inf", "Inf"},
		{"2024-01-01", "2024-01-01"},
		{"Food", "Food"},
	}
	for _, tt := range tests {
		if got := cellValue(tt.in); got != tt.want {
			t.Errorf("cellValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
