package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/cellsense/internal/config"
	"github.com/dvloznov/cellsense/internal/gcsuploader"
	infraBQ "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/jobs/amqp"
	jobsinmemory "github.com/dvloznov/cellsense/internal/jobs/inmemory"
	"github.com/dvloznov/cellsense/internal/logger"
	"github.com/dvloznov/cellsense/internal/pipeline"
	"github.com/dvloznov/cellsense/internal/store/sqlite"
)

// The worker consumes archive jobs from RabbitMQ. It shares the dataset
// database and upload directory with the API server, so it only runs with
// STORE_BACKEND=sqlite and QUEUE_BACKEND=amqp.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.Configure(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON}).
		With().Str("service", "worker").Logger()

	if cfg.StoreBackend != config.BackendSQLite || cfg.QueueBackend != config.BackendAMQP {
		log.Fatal().
			Str("store", cfg.StoreBackend).
			Str("queue", cfg.QueueBackend).
			Msg("Worker requires STORE_BACKEND=sqlite and QUEUE_BACKEND=amqp")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	datasets, err := sqlite.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("Failed to open dataset store")
	}
	defer datasets.Close()

	var (
		storage pipeline.StorageService
		writer  pipeline.SummaryWriter
	)
	if cfg.GCSBucket != "" {
		storage = gcsuploader.NewGCSStorageService()
	}
	if cfg.BigQueryProject != "" {
		repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create summary repository")
		}
		defer repo.Close()
		writer = repo
	}

	archiver := pipeline.NewArchiver(datasets, pipeline.NewSpool(cfg.UploadDir), storage, cfg.GCSBucket, writer, log)

	jobQueue, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, jobsinmemory.NewStore(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}

	log.Info().Str("queue", cfg.AMQPQueue).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, archiver.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
