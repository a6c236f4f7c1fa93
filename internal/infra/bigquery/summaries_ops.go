package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const summariesTable = "dataset_summaries"

const summaryColumns = `
			dataset_id,
			filename,
			gcs_uri,
			row_count,
			column_count,
			total_income,
			total_expenses,
			net_balance,
			period_start,
			period_end,
			categories,
			upload_ts,
			archived_ts`

// InsertDatasetSummaryWithClient streams a single row into dataset_summaries.
func InsertDatasetSummaryWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *DatasetSummaryRow) error {
	inserter := client.Dataset(datasetID).Table(summariesTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertDatasetSummary: inserting row: %w", err)
	}
	return nil
}

// ListDatasetSummariesWithClient returns archived summaries, newest first.
// A limit of 0 returns every row.
func ListDatasetSummariesWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, limit int) ([]*DatasetSummaryRow, error) {
	query := fmt.Sprintf(`
		SELECT`+summaryColumns+`
		FROM `+"`%s.%s.%s`"+`
		ORDER BY archived_ts DESC
	`, projectID, datasetID, summariesTable)
	if limit > 0 {
		query += fmt.Sprintf("LIMIT %d\n", limit)
	}

	it, err := client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDatasetSummariesWithClient: reading query: %w", err)
	}

	var rows []*DatasetSummaryRow
	for {
		var row DatasetSummaryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDatasetSummariesWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

// FindDatasetSummaryWithClient returns the latest summary archived for a
// dataset, or nil when it has never been archived.
func FindDatasetSummaryWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, id string) (*DatasetSummaryRow, error) {
	query := fmt.Sprintf(`
		SELECT`+summaryColumns+`
		FROM `+"`%s.%s.%s`"+`
		WHERE dataset_id = @dataset_id
		ORDER BY archived_ts DESC
		LIMIT 1
	`, projectID, datasetID, summariesTable)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "dataset_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindDatasetSummaryWithClient: reading query: %w", err)
	}

	var row DatasetSummaryRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindDatasetSummaryWithClient: reading row: %w", err)
	}

	return &row, nil
}
