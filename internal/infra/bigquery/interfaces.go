package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultDatasetID is the BigQuery dataset holding the summaries table.
const DefaultDatasetID = "cellsense"

// SummaryRepository provides an interface for the archived summary table.
type SummaryRepository interface {
	// InsertDatasetSummary appends one archived dataset summary.
	InsertDatasetSummary(ctx context.Context, row *DatasetSummaryRow) error

	// ListDatasetSummaries lists archived summaries, newest first.
	ListDatasetSummaries(ctx context.Context, limit int) ([]*DatasetSummaryRow, error)

	// FindDatasetSummary returns the latest summary for a dataset or nil.
	FindDatasetSummary(ctx context.Context, datasetID string) (*DatasetSummaryRow, error)
}

// BigQuerySummaryRepository is the concrete implementation of SummaryRepository.
// It holds a shared BigQuery client to avoid creating a new connection for
// each operation.
type BigQuerySummaryRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQuerySummaryRepository creates a repository for projectID.datasetID.
// An empty datasetID selects DefaultDatasetID.
func NewBigQuerySummaryRepository(ctx context.Context, projectID, datasetID string) (*BigQuerySummaryRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewBigQuerySummaryRepository: project ID is required")
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySummaryRepository: creating client: %w", err)
	}
	return &BigQuerySummaryRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQuerySummaryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertDatasetSummary delegates to InsertDatasetSummaryWithClient with the shared client.
func (r *BigQuerySummaryRepository) InsertDatasetSummary(ctx context.Context, row *DatasetSummaryRow) error {
	return InsertDatasetSummaryWithClient(ctx, r.client, r.datasetID, row)
}

// ListDatasetSummaries delegates to ListDatasetSummariesWithClient with the shared client.
func (r *BigQuerySummaryRepository) ListDatasetSummaries(ctx context.Context, limit int) ([]*DatasetSummaryRow, error) {
	return ListDatasetSummariesWithClient(ctx, r.client, r.projectID, r.datasetID, limit)
}

// FindDatasetSummary delegates to FindDatasetSummaryWithClient with the shared client.
func (r *BigQuerySummaryRepository) FindDatasetSummary(ctx context.Context, datasetID string) (*DatasetSummaryRow, error) {
	return FindDatasetSummaryWithClient(ctx, r.client, r.projectID, r.datasetID, datasetID)
}

var _ SummaryRepository = (*BigQuerySummaryRepository)(nil)
