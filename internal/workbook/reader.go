// Package workbook reads uploaded spreadsheets into records.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFileType is returned for anything other than .xlsx or .xls.
var ErrUnsupportedFileType = errors.New("Only Excel files (.xlsx, .xls) are supported")

// ErrEmptySheet is returned when the first sheet has no header row.
var ErrEmptySheet = errors.New("sheet is empty")

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
}

// CheckExtension rejects files that are not Excel workbooks by name alone.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return ErrUnsupportedFileType
	}
	return nil
}

// Sheet is the parsed content of the first worksheet.
type Sheet struct {
	Name    string
	Columns []string
	Records []domain.Record
}

// Read parses the first worksheet of an xlsx workbook. The first row is the
// header; blank header cells become Column_N. Numeric cells become float64 and
// empty cells become nil.
func Read(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("Read: open workbook: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, fmt.Errorf("Read: %w", ErrEmptySheet)
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("Read: rows of %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Read: %w", ErrEmptySheet)
	}

	columns := headerColumns(rows[0])
	records := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(domain.Record, len(columns))
		for i, col := range columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			rec[col] = cellValue(cell)
		}
		records = append(records, rec)
	}

	return &Sheet{Name: name, Columns: columns, Records: records}, nil
}

func headerColumns(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		// Duplicate headers get a numeric suffix so every column stays addressable.
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		columns[i] = h
	}
	return columns
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cellValue(cell string) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil && looksNumeric(s) {
		return f
	}
	return s
}

// looksNumeric excludes strings ParseFloat accepts but a sheet user would not
// call a number, such as "NaN", "Inf" or hex.
func looksNumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == ',', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}
