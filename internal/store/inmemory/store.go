package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/store"
)

// Store is an in-memory implementation of store.DatasetStore.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*domain.Dataset
}

// NewStore creates an empty in-memory dataset store.
func NewStore() *Store {
	return &Store{
		datasets: make(map[string]*domain.Dataset),
	}
}

// Save implements store.DatasetStore.
func (s *Store) Save(ctx context.Context, ds *domain.Dataset) error {
	if ds.ID == "" {
		return fmt.Errorf("dataset ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[ds.ID] = copyDataset(ds)
	return nil
}

// Get implements store.DatasetStore.
func (s *Store) Get(ctx context.Context, id string) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("Get %s: %w", id, store.ErrNotFound)
	}
	return copyDataset(ds), nil
}

// List implements store.DatasetStore.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]domain.DatasetInfo, error) {
	s.mu.RLock()
	infos := make([]domain.DatasetInfo, 0, len(s.datasets))
	for _, ds := range s.datasets {
		infos = append(infos, ds.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].UploadedAt.Equal(infos[j].UploadedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].UploadedAt.After(infos[j].UploadedAt)
	})
	return filter.Apply(infos), nil
}

// Delete implements store.DatasetStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return fmt.Errorf("Delete %s: %w", id, store.ErrNotFound)
	}
	delete(s.datasets, id)
	return nil
}

func copyDataset(ds *domain.Dataset) *domain.Dataset {
	c := *ds
	c.Columns = append([]string(nil), ds.Columns...)
	c.Records = domain.CloneRecords(ds.Records)
	return &c
}

// Ensure Store implements store.DatasetStore.
var _ store.DatasetStore = (*Store)(nil)
