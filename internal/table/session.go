// Package table implements the searchable, paginated and editable record grid.
package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/cellsense/internal/domain"
)

// PageSize is the fixed number of rows per page.
const PageSize = 10

var (
	// ErrRowOutOfRange is returned when a page-relative row is outside the visible window.
	ErrRowOutOfRange = errors.New("row outside current page")
	// ErrUnknownColumn is returned when an edit names a column not in the sheet.
	ErrUnknownColumn = errors.New("unknown column")
)

// EditingCell identifies the cell being edited. RowIndex is relative to the
// current page, not the record sequence.
type EditingCell struct {
	RowIndex int    `json:"row_index"`
	Column   string `json:"column"`
}

// ViewState is the observable table state.
type ViewState struct {
	SearchTerm  string       `json:"search_term"`
	CurrentPage int          `json:"current_page"`
	EditingCell *EditingCell `json:"editing_cell,omitempty"`
	TotalPages  int          `json:"total_pages"`
	Filtered    int          `json:"filtered_count"`
}

// Session owns a working copy of the dataset records and the grid view state.
// It is not safe for concurrent use; callers serialize access.
type Session struct {
	columns []string
	records []domain.Record

	searchTerm  string
	currentPage int
	editing     *EditingCell
}

// New seeds a session with a copy of records.
func New(columns []string, records []domain.Record) *Session {
	s := &Session{}
	s.Replace(columns, records)
	return s
}

// Replace discards the working copy and view state and seeds them from records.
func (s *Session) Replace(columns []string, records []domain.Record) {
	s.columns = append([]string(nil), columns...)
	s.records = domain.CloneRecords(records)
	s.searchTerm = ""
	s.currentPage = 1
	s.editing = nil
}

// Records returns a copy of the working copy.
func (s *Session) Records() []domain.Record {
	return domain.CloneRecords(s.records)
}

// Columns returns the sheet columns.
func (s *Session) Columns() []string {
	return append([]string(nil), s.columns...)
}

// SetSearchTerm replaces the search term and returns to the first page.
// Any pending edit is dropped since its row index no longer applies.
func (s *Session) SetSearchTerm(term string) {
	s.searchTerm = term
	s.currentPage = 1
	s.editing = nil
}

// SearchTerm returns the current search term.
func (s *Session) SearchTerm() string { return s.searchTerm }

// CurrentPage returns the 1-based page cursor.
func (s *Session) CurrentPage() int { return s.currentPage }

// FilteredRecords returns the records where any field contains the search
// term, ignoring case. The returned records alias the working copy.
func (s *Session) FilteredRecords() []domain.Record {
	if s.searchTerm == "" {
		return s.records
	}
	needle := strings.ToLower(s.searchTerm)
	var out []domain.Record
	for _, rec := range s.records {
		if matches(rec, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec domain.Record, needle string) bool {
	for _, v := range rec {
		if v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(domain.CellString(v)), needle) {
			return true
		}
	}
	return false
}

// PagedRecords returns the current page of the filtered records. Out of range
// pages give an empty slice.
func (s *Session) PagedRecords() []domain.Record {
	filtered := s.FilteredRecords()
	start := (s.currentPage - 1) * PageSize
	if start < 0 || start >= len(filtered) {
		return []domain.Record{}
	}
	end := start + PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return domain.CloneRecords(filtered[start:end])
}

// TotalPages is ceil(len(filtered)/PageSize); zero when nothing matches.
func (s *Session) TotalPages() int {
	n := len(s.FilteredRecords())
	return (n + PageSize - 1) / PageSize
}

// GoToPage moves the cursor, clamped to [1, max(1, TotalPages)].
func (s *Session) GoToPage(p int) {
	last := s.TotalPages()
	if last < 1 {
		last = 1
	}
	switch {
	case p < 1:
		p = 1
	case p > last:
		p = last
	}
	if p != s.currentPage {
		s.editing = nil
	}
	s.currentPage = p
}

// BeginEdit marks a cell of the current page as being edited, replacing any
// previous edit.
func (s *Session) BeginEdit(rowIndex int, column string) error {
	if err := s.checkCell(rowIndex, column); err != nil {
		return fmt.Errorf("BeginEdit: %w", err)
	}
	s.editing = &EditingCell{RowIndex: rowIndex, Column: column}
	return nil
}

// CommitEdit writes value into the filtered record at
// (currentPage-1)*PageSize + rowIndex and clears the edit. The edit is
// cleared even when the cell is rejected.
func (s *Session) CommitEdit(rowIndex int, column string, value any) error {
	defer func() { s.editing = nil }()

	if err := s.checkCell(rowIndex, column); err != nil {
		return fmt.Errorf("CommitEdit: %w", err)
	}

	filtered := s.FilteredRecords()
	idx := (s.currentPage-1)*PageSize + rowIndex
	filtered[idx][column] = value
	return nil
}

// CancelEdit clears the edit without writing.
func (s *Session) CancelEdit() {
	s.editing = nil
}

// Editing returns the cell being edited, or nil.
func (s *Session) Editing() *EditingCell {
	if s.editing == nil {
		return nil
	}
	c := *s.editing
	return &c
}

// State returns a snapshot of the view state.
func (s *Session) State() ViewState {
	return ViewState{
		SearchTerm:  s.searchTerm,
		CurrentPage: s.currentPage,
		EditingCell: s.Editing(),
		TotalPages:  s.TotalPages(),
		Filtered:    len(s.FilteredRecords()),
	}
}

func (s *Session) checkCell(rowIndex int, column string) error {
	if !s.hasColumn(column) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	visible := len(s.PagedRecords())
	if rowIndex < 0 || rowIndex >= visible {
		return fmt.Errorf("%w: row %d of %d", ErrRowOutOfRange, rowIndex, visible)
	}
	return nil
}

func (s *Session) hasColumn(column string) bool {
	for _, c := range s.columns {
		if c == column {
			return true
		}
	}
	return false
}
