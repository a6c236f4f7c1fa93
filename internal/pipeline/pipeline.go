// Package pipeline archives uploaded datasets: the raw workbook goes to
// object storage and a summary row goes to the warehouse.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/cellsense/internal/analysis"
	"github.com/dvloznov/cellsense/internal/gcsuploader"
	infra "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/rs/zerolog"
)

// Archiver runs archive jobs.
type Archiver struct {
	datasets  DatasetSource
	spool     *Spool
	storage   StorageService
	summaries SummaryWriter
	bucket    string
	log       zerolog.Logger
	now       func() time.Time

	// KeepSpool leaves the local copy in place after a successful archive.
	KeepSpool bool
}

// NewArchiver wires an archiver. storage may be nil when no bucket is
// configured, in which case only the summary is written.
func NewArchiver(datasets DatasetSource, spool *Spool, storage StorageService, bucket string, summaries SummaryWriter, log zerolog.Logger) *Archiver {
	return &Archiver{
		datasets:  datasets,
		spool:     spool,
		storage:   storage,
		summaries: summaries,
		bucket:    bucket,
		log:       log,
		now:       time.Now,
	}
}

// Handle implements jobs.JobHandler.
func (a *Archiver) Handle(ctx context.Context, job jobs.Job) error {
	archiveJob, ok := job.(*jobs.ArchiveDatasetJob)
	if !ok {
		return fmt.Errorf("unexpected job type: %T", job)
	}
	return a.ArchiveDataset(ctx, archiveJob)
}

// ArchiveDataset processes a single archive job. On success job.ObjectURI is
// set when the workbook was uploaded.
func (a *Archiver) ArchiveDataset(ctx context.Context, job *jobs.ArchiveDatasetJob) error {
	log := a.log.With().Str("job_id", job.JobID).Str("dataset_id", job.DatasetID).Logger()

	// 1. Load the stored dataset.
	ds, err := a.datasets.Get(ctx, job.DatasetID)
	if err != nil {
		return fmt.Errorf("ArchiveDataset: loading dataset: %w", err)
	}

	filename := job.Filename
	if filename == "" {
		filename = ds.Filename
	}

	// 2. Upload the spooled workbook.
	var uri string
	if a.storage != nil && a.bucket != "" {
		object := gcsuploader.ObjectName(ds.ID, filename)
		if err := a.storage.UploadFile(ctx, a.bucket, object, a.spool.Path(ds.ID, filename)); err != nil {
			return fmt.Errorf("ArchiveDataset: uploading workbook: %w", err)
		}
		uri = gcsuploader.URI(a.bucket, object)
		job.ObjectURI = uri
		log.Info().Str("gcs_uri", uri).Msg("Workbook uploaded")
	}

	// 3. Record the summary.
	if a.summaries != nil {
		row := infra.NewSummaryRow(ds, analysis.BuildReport(ds), uri, a.now())
		if err := a.summaries.InsertDatasetSummary(ctx, row); err != nil {
			return fmt.Errorf("ArchiveDataset: inserting summary: %w", err)
		}
	}

	// 4. Drop the local copy once it lives in the bucket.
	if uri != "" && !a.KeepSpool {
		if err := a.spool.Remove(ds.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to remove spooled workbook")
		}
	}

	log.Info().Msg("Dataset archived")
	return nil
}
