// Package store defines persistence for uploaded datasets.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/cellsense/internal/domain"
)

// ErrNotFound is returned when a dataset ID is unknown.
var ErrNotFound = errors.New("Data not found")

// DatasetStore persists uploaded datasets. Implementations must return
// copies so callers cannot mutate stored records.
type DatasetStore interface {
	// Save stores ds under ds.ID, replacing any previous dataset with that ID.
	Save(ctx context.Context, ds *domain.Dataset) error

	// Get returns the dataset with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Dataset, error)

	// List returns dataset infos, newest first.
	List(ctx context.Context, filter Filter) ([]domain.DatasetInfo, error)

	// Delete removes a dataset. Deleting an unknown ID returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Filter limits List results.
type Filter struct {
	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Apply pages infos according to the filter.
func (f Filter) Apply(infos []domain.DatasetInfo) []domain.DatasetInfo {
	if f.Offset > 0 {
		if f.Offset >= len(infos) {
			return []domain.DatasetInfo{}
		}
		infos = infos[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(infos) {
		infos = infos[:f.Limit]
	}
	return infos
}
