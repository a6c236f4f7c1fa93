package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/cellsense/internal/api/middleware"
	"github.com/dvloznov/cellsense/internal/dashboard"
	"github.com/dvloznov/cellsense/internal/session"
	"github.com/dvloznov/cellsense/internal/store"
	"github.com/dvloznov/cellsense/internal/table"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SessionsHandler exposes dashboard sessions over JSON.
type SessionsHandler struct {
	manager    *session.Manager
	datasets   store.DatasetStore
	askTimeout time.Duration
	log        zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler. askTimeout bounds how
// long a question submitted with "wait" blocks the request.
func NewSessionsHandler(manager *session.Manager, datasets store.DatasetStore, askTimeout time.Duration, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		manager:    manager,
		datasets:   datasets,
		askTimeout: askTimeout,
		log:        log,
	}
}

// RegisterRoutes mounts the session endpoints on r.
func (h *SessionsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)

		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.ResetSession)
			r.Put("/dataset", h.InstallDataset)
			r.Put("/search", h.SetSearch)
			r.Put("/page", h.GoToPage)
			r.Get("/records", h.GetRecords)
			r.Post("/edit", h.BeginEdit)
			r.Put("/edit", h.CommitEdit)
			r.Delete("/edit", h.CancelEdit)
			r.Get("/charts", h.GetCharts)
			r.Post("/questions", h.AskQuestion)
			r.Get("/transcript", h.GetTranscript)
			r.Post("/layout/toggle", h.ToggleEditMode)
			r.Put("/layout", h.UpdateLayout)
		})
	})
}

// CreateSession handles POST /api/sessions
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataID string `json:"data_id"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	ws := h.manager.Create()
	if req.DataID != "" {
		if !h.install(w, r, ws, req.DataID) {
			_ = h.manager.Delete(ws.ID())
			return
		}
	}

	middleware.WriteJSON(w, http.StatusCreated, ws.Snapshot())
}

// ListSessions handles GET /api/sessions
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.manager.IDs()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": ids,
		"count":    len(ids),
	})
}

// GetSession handles GET /api/sessions/{sid}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ws.Snapshot())
}

// ResetSession handles DELETE /api/sessions/{sid}. The session is reset to
// the upload screen; ?close=true also forgets it.
func (h *SessionsHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("close") == "true" {
		if err := h.manager.Delete(ws.ID()); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			h.log.Error().Err(err).Str("session_id", ws.ID()).Msg("Failed to close session")
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ws.Reset()
	middleware.WriteJSON(w, http.StatusOK, ws.Snapshot())
}

// InstallDataset handles PUT /api/sessions/{sid}/dataset
func (h *SessionsHandler) InstallDataset(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req struct {
		DataID string `json:"data_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DataID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "data_id is required")
		return
	}

	if !h.install(w, r, ws, req.DataID) {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ws.Snapshot())
}

// SetSearch handles PUT /api/sessions/{sid}/search
func (h *SessionsHandler) SetSearch(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Term string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ws.SetSearchTerm(req.Term))
}

// GoToPage handles PUT /api/sessions/{sid}/page
func (h *SessionsHandler) GoToPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ws.GoToPage(req.Page))
}

// GetRecords handles GET /api/sessions/{sid}/records
func (h *SessionsHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ws.Page())
}

type cellRequest struct {
	RowIndex int    `json:"row_index"`
	Column   string `json:"column"`
	Value    any    `json:"value"`
}

// BeginEdit handles POST /api/sessions/{sid}/edit
func (h *SessionsHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req cellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.BeginEdit(req.RowIndex, req.Column); err != nil {
		writeCellError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ws.Page())
}

// CommitEdit handles PUT /api/sessions/{sid}/edit
func (h *SessionsHandler) CommitEdit(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req cellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	page, err := ws.CommitEdit(req.RowIndex, req.Column, req.Value)
	if err != nil {
		writeCellError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// CancelEdit handles DELETE /api/sessions/{sid}/edit
func (h *SessionsHandler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.CancelEdit()
	middleware.WriteJSON(w, http.StatusOK, ws.Page())
}

// GetCharts handles GET /api/sessions/{sid}/charts
func (h *SessionsHandler) GetCharts(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ws.Charts())
}

// AskQuestion handles POST /api/sessions/{sid}/questions. The answer arrives
// asynchronously unless "wait" is set.
func (h *SessionsHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Question string `json:"question"`
		Wait     bool   `json:"wait"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accepted, err := ws.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, session.ErrNoDataset) {
			middleware.WriteError(w, http.StatusConflict, "No dataset installed")
			return
		}
		h.log.Error().Err(err).Str("session_id", ws.ID()).Msg("Failed to submit question")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to submit question")
		return
	}

	status := http.StatusAccepted
	if accepted && req.Wait {
		ctx, cancel := context.WithTimeout(r.Context(), h.askTimeout)
		defer cancel()
		if err := ws.WaitForAnswer(ctx); err != nil {
			h.log.Warn().Err(err).Str("session_id", ws.ID()).Msg("Answer not ready before timeout")
		} else {
			status = http.StatusOK
		}
	}

	snap := ws.Snapshot()
	middleware.WriteJSON(w, status, map[string]interface{}{
		"accepted":   accepted,
		"pending":    snap.Pending,
		"transcript": snap.Transcript,
	})
}

// GetTranscript handles GET /api/sessions/{sid}/transcript
func (h *SessionsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	snap := ws.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transcript":        snap.Transcript,
		"pending":           snap.Pending,
		"suggested_prompts": snap.SuggestedPrompts,
	})
}

// ToggleEditMode handles POST /api/sessions/{sid}/layout/toggle
func (h *SessionsHandler) ToggleEditMode(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	editMode := ws.ToggleEditMode()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"edit_mode": editMode,
		"layout":    ws.Snapshot().Layout,
	})
}

// UpdateLayout handles PUT /api/sessions/{sid}/layout
func (h *SessionsHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var req struct {
		Layout []dashboard.Entry `json:"layout"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.UpdateLayout(req.Layout); err != nil {
		switch {
		case errors.Is(err, dashboard.ErrLocked):
			middleware.WriteError(w, http.StatusConflict, "Dashboard is locked")
		case errors.Is(err, dashboard.ErrInvalidLayout):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("session_id", ws.ID()).Msg("Failed to update layout")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to update layout")
		}
		return
	}

	snap := ws.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"edit_mode": snap.EditMode,
		"layout":    snap.Layout,
	})
}

func (h *SessionsHandler) workspace(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	ws, err := h.manager.Get(chi.URLParam(r, "sid"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return ws, true
}

// install loads a stored dataset into ws. The workspace is untouched when the
// dataset cannot be loaded.
func (h *SessionsHandler) install(w http.ResponseWriter, r *http.Request, ws *session.Workspace, dataID string) bool {
	ds, err := h.datasets.Get(r.Context(), dataID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteDetail(w, http.StatusNotFound, store.ErrNotFound.Error())
			return false
		}
		h.log.Error().Err(err).Str("dataset_id", dataID).Msg("Failed to load dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load dataset")
		return false
	}
	ws.Install(ds)
	return true
}

func writeCellError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, table.ErrRowOutOfRange), errors.Is(err, table.ErrUnknownColumn):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to edit cell")
	}
}

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
