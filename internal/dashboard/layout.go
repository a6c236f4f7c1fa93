// Package dashboard holds the widget layout and its edit-mode lock.
package dashboard

import (
	"errors"
	"fmt"
)

// ErrLocked is returned when a layout change arrives outside edit mode.
var ErrLocked = errors.New("dashboard is locked")

// ErrInvalidLayout is returned for entries that break size or id constraints.
var ErrInvalidLayout = errors.New("invalid layout")

// Widget ids of the default layout.
const (
	WidgetSummary = "summary"
	WidgetChart1  = "chart1"
	WidgetChart2  = "chart2"
	WidgetTable   = "table"
)

// Entry is the position and size of one widget on the grid.
type Entry struct {
	ID   string `json:"i"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
	MinW int    `json:"minW"`
	MinH int    `json:"minH"`
}

// DefaultLayout returns the layout a new dashboard starts with.
func DefaultLayout() []Entry {
	return []Entry{
		{ID: WidgetSummary, X: 0, Y: 0, W: 12, H: 2, MinW: 6, MinH: 2},
		{ID: WidgetChart1, X: 0, Y: 2, W: 6, H: 4, MinW: 3, MinH: 3},
		{ID: WidgetChart2, X: 6, Y: 2, W: 6, H: 4, MinW: 3, MinH: 3},
		{ID: WidgetTable, X: 0, Y: 6, W: 12, H: 5, MinW: 6, MinH: 4},
	}
}

// Validate checks the size minimums and id uniqueness. Overlap is not checked.
func Validate(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidLayout, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidLayout, e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.W < e.MinW {
			return fmt.Errorf("%w: %q width %d below minimum %d", ErrInvalidLayout, e.ID, e.W, e.MinW)
		}
		if e.H < e.MinH {
			return fmt.Errorf("%w: %q height %d below minimum %d", ErrInvalidLayout, e.ID, e.H, e.MinH)
		}
	}
	return nil
}

// Dashboard is the layout plus the edit-mode flag. Not safe for concurrent use.
type Dashboard struct {
	layout   []Entry
	editMode bool
}

// New returns a locked dashboard with the default layout.
func New() *Dashboard {
	return &Dashboard{layout: DefaultLayout()}
}

// EditMode reports whether layout changes are accepted.
func (d *Dashboard) EditMode() bool { return d.editMode }

// ToggleEditMode flips edit mode and returns the new value.
func (d *Dashboard) ToggleEditMode() bool {
	d.editMode = !d.editMode
	return d.editMode
}

// Layout returns a copy of the current layout.
func (d *Dashboard) Layout() []Entry {
	return append([]Entry(nil), d.layout...)
}

// UpdateLayout replaces the whole layout. Last write wins.
func (d *Dashboard) UpdateLayout(entries []Entry) error {
	if !d.editMode {
		return ErrLocked
	}
	if err := Validate(entries); err != nil {
		return fmt.Errorf("UpdateLayout: %w", err)
	}
	d.layout = append([]Entry(nil), entries...)
	return nil
}
