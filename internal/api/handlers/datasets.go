package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dvloznov/cellsense/internal/analysis"
	"github.com/dvloznov/cellsense/internal/api/middleware"
	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/dvloznov/cellsense/internal/pipeline"
	"github.com/dvloznov/cellsense/internal/store"
	"github.com/dvloznov/cellsense/internal/workbook"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxUploadBytes bounds multipart uploads when no limit is configured.
const DefaultMaxUploadBytes = 32 << 20

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Message string `json:"message"`
	*domain.Dataset
	JobID string `json:"job_id,omitempty"`
}

// DatasetsHandler handles upload, retrieval, analysis and Q&A endpoints.
type DatasetsHandler struct {
	store     store.DatasetStore
	asker     conversation.Asker
	publisher jobs.Publisher
	spool     *pipeline.Spool
	maxBytes  int64
	log       zerolog.Logger
	newID     func() string
	now       func() time.Time
}

// NewDatasetsHandler creates a new datasets handler. publisher and spool may
// be nil, which disables archiving.
func NewDatasetsHandler(datasets store.DatasetStore, asker conversation.Asker, publisher jobs.Publisher, spool *pipeline.Spool, maxBytes int64, log zerolog.Logger) *DatasetsHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DatasetsHandler{
		store:     datasets,
		asker:     asker,
		publisher: publisher,
		spool:     spool,
		maxBytes:  maxBytes,
		log:       log,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// RegisterRoutes mounts the dataset endpoints on r.
func (h *DatasetsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/upload", h.Upload)
	r.Get("/api/data/{id}", h.GetData)
	r.Get("/api/analyze/{id}", h.Analyze)
	r.Post("/api/analyze", h.AnalyzeByBody)
	r.Get("/api/datasets", h.ListDatasets)
	r.Delete("/api/datasets/{id}", h.DeleteDataset)
	r.Post("/api/ask-ai", h.AskAI)
}

// Upload handles POST /api/upload
func (h *DatasetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if err := workbook.CheckExtension(filename); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("Failed to read upload")
		middleware.WriteDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	sheet, err := workbook.Read(bytes.NewReader(raw))
	if err != nil {
		h.log.Warn().Err(err).Str("filename", filename).Msg("Failed to parse workbook")
		middleware.WriteDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	ds := &domain.Dataset{
		ID:         h.newID(),
		Filename:   filename,
		Columns:    sheet.Columns,
		RowCount:   len(sheet.Records),
		Records:    sheet.Records,
		Analysis:   analysis.Analyze(sheet.Columns, sheet.Records, r.FormValue("custom_keywords")),
		UploadedAt: h.now().UTC(),
	}

	spooled, err := h.persist(ctx, ds, raw)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.ID).Msg("Failed to store dataset")
		middleware.WriteDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	resp := UploadResponse{Message: "File uploaded successfully", Dataset: ds}
	if spooled {
		resp.JobID = h.enqueueArchive(ctx, ds)
	}

	h.log.Info().
		Str("dataset_id", ds.ID).
		Str("filename", filename).
		Int("rows", ds.RowCount).
		Int("columns", len(ds.Columns)).
		Msg("Workbook uploaded")

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// persist saves the dataset and spools the raw workbook concurrently. Only a
// store failure fails the upload, and it discards whatever was spooled; a
// spool failure just skips archiving.
func (h *DatasetsHandler) persist(ctx context.Context, ds *domain.Dataset, raw []byte) (bool, error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.store.Save(gctx, ds)
	})

	spooled := false
	if h.publisher != nil && h.spool != nil {
		g.Go(func() error {
			if _, err := h.spool.Write(ds.ID, ds.Filename, bytes.NewReader(raw)); err != nil {
				h.log.Warn().Err(err).Str("dataset_id", ds.ID).Msg("Failed to spool workbook, archive skipped")
				return nil
			}
			spooled = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if h.spool != nil {
			if rmErr := h.spool.Remove(ds.ID); rmErr != nil {
				h.log.Warn().Err(rmErr).Str("dataset_id", ds.ID).Msg("Failed to remove spooled workbook")
			}
		}
		return false, err
	}
	return spooled, nil
}

func (h *DatasetsHandler) enqueueArchive(ctx context.Context, ds *domain.Dataset) string {
	job := &jobs.ArchiveDatasetJob{DatasetID: ds.ID, Filename: ds.Filename}
	if err := h.publisher.PublishArchiveDataset(ctx, job); err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.ID).Msg("Failed to enqueue archive job")
		return ""
	}
	h.log.Info().Str("job_id", job.JobID).Str("dataset_id", ds.ID).Msg("Archive job enqueued")
	return job.JobID
}

// GetData handles GET /api/data/{id}
func (h *DatasetsHandler) GetData(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.loadDataset(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ds)
}

// Analyze handles GET /api/analyze/{id}
func (h *DatasetsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.loadDataset(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, analysis.BuildReport(ds))
}

// AnalyzeByBody handles POST /api/analyze with {"data_id": ...}
func (h *DatasetsHandler) AnalyzeByBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataID string `json:"data_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ds, ok := h.loadDataset(w, r, req.DataID)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, analysis.BuildReport(ds))
}

// ListDatasets handles GET /api/datasets
func (h *DatasetsHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.Filter{}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	infos, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list datasets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list datasets")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": infos,
		"count":    len(infos),
	})
}

// DeleteDataset handles DELETE /api/datasets/{id}
func (h *DatasetsHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteDetail(w, http.StatusNotFound, store.ErrNotFound.Error())
			return
		}
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to delete dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete dataset")
		return
	}

	if h.spool != nil {
		if err := h.spool.Remove(id); err != nil {
			h.log.Warn().Err(err).Str("dataset_id", id).Msg("Failed to remove spooled workbook")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// AskAI handles POST /api/ask-ai
func (h *DatasetsHandler) AskAI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataID   string `json:"data_id"`
		Question string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DataID == "" || isBlank(req.Question) {
		middleware.WriteDetail(w, http.StatusBadRequest, "data_id and question are required")
		return
	}

	answer, err := h.asker.Ask(r.Context(), req.DataID, req.Question)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteDetail(w, http.StatusNotFound, store.ErrNotFound.Error())
			return
		}
		h.log.Error().Err(err).Str("dataset_id", req.DataID).Msg("Failed to answer question")
		middleware.WriteDetail(w, http.StatusInternalServerError, "Error answering question")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, answer)
}

func (h *DatasetsHandler) loadDataset(w http.ResponseWriter, r *http.Request, id string) (*domain.Dataset, bool) {
	ds, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteDetail(w, http.StatusNotFound, store.ErrNotFound.Error())
			return nil, false
		}
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to load dataset")
		middleware.WriteDetail(w, http.StatusInternalServerError, "Failed to load dataset")
		return nil, false
	}
	return ds, true
}
