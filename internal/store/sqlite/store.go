// Package sqlite persists datasets in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/store"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so uploaded_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite implementation of store.DatasetStore. Records, columns
// and analysis are stored as JSON documents.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at dbPath, creating its directory, and applies
// migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("NewStore: create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("NewStore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewStore: ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save implements store.DatasetStore.
func (s *Store) Save(ctx context.Context, ds *domain.Dataset) error {
	if ds.ID == "" {
		return fmt.Errorf("Save: dataset ID is required")
	}

	columns, err := json.Marshal(ds.Columns)
	if err != nil {
		return fmt.Errorf("Save: encode columns: %w", err)
	}
	records, err := json.Marshal(ds.Records)
	if err != nil {
		return fmt.Errorf("Save: encode records: %w", err)
	}
	analysis, err := json.Marshal(ds.Analysis)
	if err != nil {
		return fmt.Errorf("Save: encode analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, filename, row_count, columns_json, records_json, analysis_json, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			row_count = excluded.row_count,
			columns_json = excluded.columns_json,
			records_json = excluded.records_json,
			analysis_json = excluded.analysis_json,
			uploaded_at = excluded.uploaded_at`,
		ds.ID, ds.Filename, ds.RowCount, string(columns), string(records), string(analysis),
		ds.UploadedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("Save: insert dataset %s: %w", ds.ID, err)
	}
	return nil
}

// Get implements store.DatasetStore.
func (s *Store) Get(ctx context.Context, id string) (*domain.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, row_count, columns_json, records_json, analysis_json, uploaded_at
		FROM datasets WHERE id = ?`, id)

	var (
		ds                         domain.Dataset
		columns, records, analysis string
		uploadedAt                 string
	)
	err := row.Scan(&ds.ID, &ds.Filename, &ds.RowCount, &columns, &records, &analysis, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: scan: %w", id, err)
	}

	if err := json.Unmarshal([]byte(columns), &ds.Columns); err != nil {
		return nil, fmt.Errorf("Get %s: decode columns: %w", id, err)
	}
	if err := json.Unmarshal([]byte(records), &ds.Records); err != nil {
		return nil, fmt.Errorf("Get %s: decode records: %w", id, err)
	}
	if err := json.Unmarshal([]byte(analysis), &ds.Analysis); err != nil {
		return nil, fmt.Errorf("Get %s: decode analysis: %w", id, err)
	}
	if ds.UploadedAt, err = time.Parse(timeLayout, uploadedAt); err != nil {
		return nil, fmt.Errorf("Get %s: parse uploaded_at: %w", id, err)
	}
	return &ds, nil
}

// List implements store.DatasetStore.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]domain.DatasetInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, row_count, uploaded_at
		FROM datasets
		ORDER BY uploaded_at DESC, id ASC
		LIMIT ? OFFSET ?`, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("List: query: %w", err)
	}
	defer rows.Close()

	infos := []domain.DatasetInfo{}
	for rows.Next() {
		var (
			info       domain.DatasetInfo
			uploadedAt string
		)
		if err := rows.Scan(&info.ID, &info.Filename, &info.RowCount, &uploadedAt); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		if info.UploadedAt, err = time.Parse(timeLayout, uploadedAt); err != nil {
			return nil, fmt.Errorf("List: parse uploaded_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return infos, nil
}

// Delete implements store.DatasetStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("Delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("Delete %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Ensure Store implements store.DatasetStore.
var _ store.DatasetStore = (*Store)(nil)
