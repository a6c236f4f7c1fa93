package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/store"
)

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	ds := &domain.Dataset{
		ID:       "ds-1",
		Filename: "jan.xlsx",
		Columns:  []string{"Category"},
		Records:  []domain.Record{{"Category": "Food"}},
		RowCount: 1,
	}
	if err := s.Save(ctx, ds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	ds.Records[0]["Category"] = "Changed"

	got, err := s.Get(ctx, "ds-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Records[0]["Category"] != "Food" {
		t.Errorf("stored record = %v, want Food", got.Records[0]["Category"])
	}

	got.Records[0]["Category"] = "Again"
	again, _ := s.Get(ctx, "ds-1")
	if again.Records[0]["Category"] != "Food" {
		t.Error("Get returned a shared record")
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	if err := NewStore().Save(context.Background(), &domain.Dataset{}); err == nil {
		t.Error("expected error for empty ID")
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		err := s.Save(ctx, &domain.Dataset{ID: id, UploadedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"all", store.Filter{}, []string{"c", "b", "a"}},
		{"limit", store.Filter{Limit: 2}, []string{"c", "b"}},
		{"offset", store.Filter{Offset: 1}, []string{"b", "a"}},
		{"offset past end", store.Filter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infos, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(infos) != len(tt.want) {
				t.Fatalf("List returned %d, want %d", len(infos), len(tt.want))
			}
			for i, id := range tt.want {
				if infos[i].ID != id {
					t.Errorf("infos[%d] = %s, want %s", i, infos[i].ID, id)
				}
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.Save(ctx, &domain.Dataset{ID: "x"})

	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Delete error = %v", err)
	}
}
