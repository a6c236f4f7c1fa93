package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/cellsense/internal/api/handlers"
	"github.com/dvloznov/cellsense/internal/api/middleware"
	"github.com/dvloznov/cellsense/internal/assistant"
	"github.com/dvloznov/cellsense/internal/config"
	"github.com/dvloznov/cellsense/internal/gcsuploader"
	infraBQ "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/dvloznov/cellsense/internal/jobs/amqp"
	jobsinmemory "github.com/dvloznov/cellsense/internal/jobs/inmemory"
	"github.com/dvloznov/cellsense/internal/logger"
	"github.com/dvloznov/cellsense/internal/pipeline"
	"github.com/dvloznov/cellsense/internal/session"
	"github.com/dvloznov/cellsense/internal/store"
	storeinmemory "github.com/dvloznov/cellsense/internal/store/inmemory"
	"github.com/dvloznov/cellsense/internal/store/sqlite"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// queue is both ends of the archive job queue.
type queue interface {
	jobs.Publisher
	jobs.Consumer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	log := logger.Configure(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	ctx := context.Background()

	// Dataset store
	datasets, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open dataset store")
	}
	defer closeStore()

	// Question answering
	answerers := []assistant.Answerer{}
	if cfg.GeminiEnabled() {
		gen, err := assistant.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		answerers = append(answerers, assistant.NewModelAnswerer(gen))
	} else {
		log.Warn().Msg("No GEMINI_API_KEY configured - questions are answered by the rule-based assistant")
	}
	answerers = append(answerers, assistant.NewRuleBased())
	asker := assistant.NewService(datasets, log, answerers...)

	sessions := session.NewManager(asker, log)

	// Archive infrastructure
	var (
		storage   pipeline.StorageService
		summaries infraBQ.SummaryRepository
		writer    pipeline.SummaryWriter
	)
	if cfg.GCSBucket != "" {
		storage = gcsuploader.NewGCSStorageService()
	} else {
		log.Warn().Msg("No GCS bucket configured - workbooks will not be uploaded")
	}
	if cfg.BigQueryProject != "" {
		repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create summary repository")
		}
		defer repo.Close()
		summaries, writer = repo, repo
	}

	spool := pipeline.NewSpool(cfg.UploadDir)
	archiver := pipeline.NewArchiver(datasets, spool, storage, cfg.GCSBucket, writer, log)

	// Job infrastructure
	jobStore := jobsinmemory.NewStore()
	jobQueue, err := openQueue(cfg, jobStore, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.QueueBackend).Msg("Failed to open job queue")
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, archiver.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	var (
		publisher jobs.Publisher
		uploads   *pipeline.Spool
	)
	if cfg.ArchiveEnabled() {
		publisher, uploads = jobQueue, spool
	} else {
		log.Warn().Msg("Archiving disabled - set GCS_BUCKET or BIGQUERY_PROJECT to enable it")
	}

	// Handlers
	datasetsHandler := handlers.NewDatasetsHandler(datasets, asker, publisher, uploads, cfg.MaxUploadBytes, log)
	sessionsHandler := handlers.NewSessionsHandler(sessions, datasets, cfg.AskTimeout, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, summaries, log)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSOrigins...))
	r.Use(middleware.Auth(cfg.APIKey, "/", "/health", "/ping"))
	r.Use(chimw.Heartbeat("/ping"))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "CellSense API is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	datasetsHandler.RegisterRoutes(r)
	sessionsHandler.RegisterRoutes(r)
	jobsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AskTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", *port).
			Str("store", cfg.StoreBackend).
			Str("queue", cfg.QueueBackend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func openStore(cfg *config.Config) (store.DatasetStore, func(), error) {
	if cfg.StoreBackend == config.BackendSQLite {
		s, err := sqlite.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return storeinmemory.NewStore(), func() {}, nil
}

func openQueue(cfg *config.Config, jobStore jobs.JobStore, log zerolog.Logger) (queue, error) {
	if cfg.QueueBackend == config.BackendAMQP {
		return amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, jobStore, log)
	}
	return jobsinmemory.NewQueue(100, jobStore).WithWorkers(cfg.Workers).WithLogger(log), nil
}
