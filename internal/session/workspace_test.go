package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/dashboard"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/rs/zerolog"
)

func testDataset(rows int) *domain.Dataset {
	recs := make([]domain.Record, rows)
	for i := range recs {
		recs[i] = domain.Record{
			"Category":    []string{"Food", "Rent", "Fun"}[i%3],
			"Amount":      float64(-(i + 1)),
			"Description": fmt.Sprintf("txn %d", i),
		}
	}
	return &domain.Dataset{
		ID:       "ds-test",
		Filename: "test.xlsx",
		Columns:  []string{"Description", "Category", "Amount"},
		RowCount: rows,
		Records:  recs,
	}
}

func echoAsker() conversation.Asker {
	return conversation.AskerFunc(func(ctx context.Context, datasetID, question string) (conversation.Answer, error) {
		return conversation.Answer{Text: datasetID + ": " + question, Source: "test"}, nil
	})
}

func waitAnswer(t *testing.T, w *Workspace) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.WaitForAnswer(ctx); err != nil {
		t.Fatalf("WaitForAnswer: %v", err)
	}
}

func TestWorkspace_UploadToPages(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	w.Install(testDataset(25))

	page := w.Page()
	if page.State.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.State.TotalPages)
	}
	if len(page.Records) != 10 {
		t.Errorf("page has %d records, want 10", len(page.Records))
	}

	page = w.SetSearchTerm("no such thing")
	if page.State.TotalPages != 0 || len(page.Records) != 0 {
		t.Errorf("empty search: pages=%d records=%d", page.State.TotalPages, len(page.Records))
	}
}

func TestWorkspace_EditFeedsCharts(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	w.Install(testDataset(3))

	before := w.Charts()
	if len(before.Categories) != 3 || before.Categories[0].Value != 1 {
		t.Fatalf("charts before edit = %+v", before.Categories)
	}

	if err := w.BeginEdit(0, "Amount"); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	if _, err := w.CommitEdit(0, "Amount", "-10"); err != nil {
		t.Fatalf("CommitEdit: %v", err)
	}

	after := w.Charts()
	if after.Categories[0].Name != "Food" || after.Categories[0].Value != 10 {
		t.Errorf("charts after edit = %+v", after.Categories)
	}
	if w.Dataset().Records[0]["Amount"] != -1.0 {
		t.Error("edit leaked into the installed dataset")
	}
}

func TestWorkspace_AskRequiresDataset(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	if _, err := w.Ask(context.Background(), "hi"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Ask without dataset error = %v, want ErrNoDataset", err)
	}

	w.Install(testDataset(1))
	ok, err := w.Ask(context.Background(), "total?")
	if err != nil || !ok {
		t.Fatalf("Ask = %v, %v", ok, err)
	}
	waitAnswer(t, w)

	tr := w.Transcript()
	if len(tr) != 2 || tr[1].Text != "ds-test: total?" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestWorkspace_Reset(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	w.Install(testDataset(12))
	w.SetSearchTerm("food")
	w.ToggleEditMode()
	_ = w.UpdateLayout([]dashboard.Entry{{ID: "only", W: 1, H: 1}})
	_, _ = w.Ask(context.Background(), "q")
	waitAnswer(t, w)

	w.Reset()

	snap := w.Snapshot()
	if snap.Dataset != nil || snap.Analysis != nil {
		t.Error("dataset survived reset")
	}
	if len(snap.Transcript) != 0 || snap.Pending {
		t.Error("transcript survived reset")
	}
	if snap.EditMode || len(snap.Layout) != 4 {
		t.Errorf("dashboard not reset: edit=%v layout=%d", snap.EditMode, len(snap.Layout))
	}
	if snap.Table.State.SearchTerm != "" || snap.Table.State.Filtered != 0 {
		t.Errorf("table not reset: %+v", snap.Table.State)
	}
	if len(snap.SuggestedPrompts) != 5 {
		t.Errorf("suggested prompts = %v", snap.SuggestedPrompts)
	}
}

func TestWorkspace_InstallKeepsTranscript(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	w.Install(testDataset(2))
	_, _ = w.Ask(context.Background(), "first")
	waitAnswer(t, w)

	next := testDataset(4)
	next.ID = "ds-next"
	w.Install(next)

	_, _ = w.Ask(context.Background(), "second")
	waitAnswer(t, w)

	tr := w.Transcript()
	if len(tr) != 4 {
		t.Fatalf("transcript has %d turns, want 4", len(tr))
	}
	if tr[3].Text != "ds-next: second" {
		t.Errorf("answer used dataset %q", tr[3].Text)
	}
	if w.Page().State.Filtered != 4 {
		t.Error("table not reseeded by Install")
	}
}

func TestWorkspace_LayoutLocked(t *testing.T) {
	w := NewWorkspace("s1", echoAsker(), zerolog.New(io.Discard))
	err := w.UpdateLayout(dashboard.DefaultLayout())
	if !errors.Is(err, dashboard.ErrLocked) {
		t.Errorf("UpdateLayout while locked error = %v", err)
	}
}

func TestManager(t *testing.T) {
	m := NewManager(echoAsker(), zerolog.New(io.Discard))
	a := m.Create()
	b := m.Create()

	if a.ID() == b.ID() {
		t.Fatal("duplicate session IDs")
	}
	got, err := m.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if len(m.IDs()) != 2 {
		t.Errorf("IDs = %v", m.IDs())
	}

	if err := m.Delete(a.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get deleted error = %v", err)
	}
	if err := m.Delete(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete error = %v", err)
	}
}
