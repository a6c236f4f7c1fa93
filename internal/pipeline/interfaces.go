package pipeline

import (
	"context"

	"github.com/dvloznov/cellsense/internal/domain"
	infra "github.com/dvloznov/cellsense/internal/infra/bigquery"
)

// DatasetSource is the read side of the dataset store.
type DatasetSource interface {
	Get(ctx context.Context, id string) (*domain.Dataset, error)
}

// StorageService uploads spooled workbooks to object storage.
type StorageService interface {
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// SummaryWriter records archived dataset summaries.
type SummaryWriter interface {
	InsertDatasetSummary(ctx context.Context, row *infra.DatasetSummaryRow) error
}
