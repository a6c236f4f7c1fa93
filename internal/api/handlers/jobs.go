package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/cellsense/internal/api/middleware"
	infra "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	summaries infra.SummaryRepository
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler. summaries may be nil when no
// warehouse is configured.
func NewJobsHandler(store jobs.JobStore, summaries infra.SummaryRepository, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:     store,
		summaries: summaries,
		log:       log,
	}
}

// RegisterRoutes mounts the job and archive endpoints on r.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/jobs", h.ListJobs)
	r.Get("/api/jobs/{id}", h.GetJob)
	r.Get("/api/archive", h.ListArchived)
	r.Get("/api/archive/{id}", h.GetArchived)
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		DatasetID: query.Get("dataset_id"),
		Status:    jobs.JobStatus(query.Get("status")),
		Limit:     queryInt(query.Get("limit")),
		Offset:    queryInt(query.Get("offset")),
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// ListArchived handles GET /api/archive
func (h *JobsHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		middleware.WriteError(w, http.StatusNotImplemented, "Archive warehouse is not configured")
		return
	}

	rows, err := h.summaries.ListDatasetSummaries(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list archived datasets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list archived datasets")
		return
	}

	views := make([]infra.SummaryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.View())
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": views,
		"count":     len(views),
	})
}

// GetArchived handles GET /api/archive/{id}
func (h *JobsHandler) GetArchived(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		middleware.WriteError(w, http.StatusNotImplemented, "Archive warehouse is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	row, err := h.summaries.FindDatasetSummary(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to find archived dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to find archived dataset")
		return
	}
	if row == nil {
		middleware.WriteError(w, http.StatusNotFound, "Dataset not archived")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, row.View())
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
