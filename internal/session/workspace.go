// Package session hosts live dashboard sessions. A Workspace bundles the
// dataset with its table, conversation and dashboard models and serializes
// access to them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/columns"
	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/dashboard"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/table"
	"github.com/rs/zerolog"
)

// ErrNoDataset is returned by operations that need an installed dataset.
var ErrNoDataset = errors.New("no dataset installed")

// Charts is the chart-ready view of the working records.
type Charts struct {
	Roles      columns.Roles              `json:"roles"`
	Categories []domain.CategoryAggregate `json:"categories"`
}

// TablePage is the visible part of the record grid.
type TablePage struct {
	Columns []string        `json:"columns"`
	Records []domain.Record `json:"records"`
	State   table.ViewState `json:"state"`
}

// Snapshot is the full observable state of a workspace.
type Snapshot struct {
	ID               string              `json:"session_id"`
	Dataset          *domain.DatasetInfo `json:"dataset,omitempty"`
	Analysis         *domain.Analysis    `json:"analysis,omitempty"`
	Table            TablePage           `json:"table"`
	Charts           Charts              `json:"charts"`
	Transcript       []conversation.Turn `json:"transcript"`
	Pending          bool                `json:"pending"`
	SuggestedPrompts []string            `json:"suggested_prompts,omitempty"`
	Layout           []dashboard.Entry   `json:"layout"`
	EditMode         bool                `json:"edit_mode"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Workspace is one user's dashboard session.
type Workspace struct {
	id        string
	asker     conversation.Asker
	log       zerolog.Logger
	createdAt time.Time

	mu      sync.Mutex
	dataset *domain.Dataset
	table   *table.Session
	conv    *conversation.Session
	dash    *dashboard.Dashboard
}

// NewWorkspace creates an empty workspace.
func NewWorkspace(id string, asker conversation.Asker, log zerolog.Logger) *Workspace {
	w := &Workspace{
		id:        id,
		asker:     asker,
		log:       log.With().Str("session_id", id).Logger(),
		createdAt: time.Now(),
	}
	w.resetLocked()
	return w
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string { return w.id }

// Install makes ds the workspace dataset and reseeds the table working copy.
// The transcript and layout are kept.
func (w *Workspace) Install(ds *domain.Dataset) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dataset = ds
	w.table.Replace(ds.Columns, ds.Records)
	w.conv.SetDataset(ds.ID)
	w.log.Info().Str("dataset_id", ds.ID).Int("rows", ds.RowCount).Msg("Dataset installed")
}

// Reset discards the dataset and all session state.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	w.log.Info().Msg("Session reset")
}

func (w *Workspace) resetLocked() {
	w.dataset = nil
	w.table = table.New(nil, nil)
	w.conv = conversation.New(w.asker, "", w.log)
	w.dash = dashboard.New()
}

// Dataset returns the installed dataset or nil.
func (w *Workspace) Dataset() *domain.Dataset {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataset
}

// SetSearchTerm filters the grid and returns to page one.
func (w *Workspace) SetSearchTerm(term string) TablePage {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table.SetSearchTerm(term)
	return w.pageLocked()
}

// GoToPage moves the grid cursor, clamped to the available pages.
func (w *Workspace) GoToPage(p int) TablePage {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table.GoToPage(p)
	return w.pageLocked()
}

// Page returns the visible grid page.
func (w *Workspace) Page() TablePage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pageLocked()
}

func (w *Workspace) pageLocked() TablePage {
	return TablePage{
		Columns: w.table.Columns(),
		Records: w.table.PagedRecords(),
		State:   w.table.State(),
	}
}

// BeginEdit starts editing a cell of the visible page.
func (w *Workspace) BeginEdit(row int, column string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.table.BeginEdit(row, column)
}

// CommitEdit writes a cell of the visible page.
func (w *Workspace) CommitEdit(row int, column string, value any) (TablePage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.table.CommitEdit(row, column, value)
	return w.pageLocked(), err
}

// CancelEdit abandons the current edit.
func (w *Workspace) CancelEdit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table.CancelEdit()
}

// Charts aggregates the working copy, so edits show up in the charts.
func (w *Workspace) Charts() Charts {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chartsLocked()
}

func (w *Workspace) chartsLocked() Charts {
	roles := columns.Infer(w.table.Columns())
	return Charts{
		Roles:      roles,
		Categories: aggregate.ByCategory(w.table.Records(), roles),
	}
}

// Ask submits a question about the installed dataset. It reports whether the
// question was accepted.
func (w *Workspace) Ask(ctx context.Context, text string) (bool, error) {
	w.mu.Lock()
	conv, ds := w.conv, w.dataset
	w.mu.Unlock()

	if ds == nil {
		return false, ErrNoDataset
	}
	return conv.Submit(ctx, text), nil
}

// WaitForAnswer blocks until the outstanding question, if any, is answered.
func (w *Workspace) WaitForAnswer(ctx context.Context) error {
	w.mu.Lock()
	conv := w.conv
	w.mu.Unlock()
	return conv.Wait(ctx)
}

// Transcript returns the conversation turns.
func (w *Workspace) Transcript() []conversation.Turn {
	w.mu.Lock()
	conv := w.conv
	w.mu.Unlock()
	return conv.Transcript()
}

// ToggleEditMode flips the dashboard lock and returns the new edit mode.
func (w *Workspace) ToggleEditMode() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dash.ToggleEditMode()
}

// UpdateLayout replaces the widget layout while in edit mode.
func (w *Workspace) UpdateLayout(entries []dashboard.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dash.UpdateLayout(entries)
}

// Snapshot returns the full workspace state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		ID:               w.id,
		Table:            w.pageLocked(),
		Charts:           w.chartsLocked(),
		Transcript:       w.conv.Transcript(),
		Pending:          w.conv.Pending(),
		SuggestedPrompts: w.conv.SuggestedPrompts(),
		Layout:           w.dash.Layout(),
		EditMode:         w.dash.EditMode(),
		CreatedAt:        w.createdAt,
	}
	if w.dataset != nil {
		info := w.dataset.Info()
		analysis := w.dataset.Analysis
		snap.Dataset = &info
		snap.Analysis = &analysis
	}
	return snap
}
