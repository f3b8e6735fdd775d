package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/middleware"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// SessionHandler handles chat session endpoints.
type SessionHandler struct {
	store  *service.SessionStore
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store *service.SessionStore, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		store:  store,
		logger: log,
	}
}

// List handles GET /api/v1/sessions. ?q= filters by fuzzy title match.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Search(r.URL.Query().Get("q")))
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.store.Create(r.Context())
	writeJSON(w, http.StatusCreated, sess)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, found := h.store.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Active handles GET /api/v1/sessions/active
func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	sess, found := h.store.Active()
	if !found {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if !h.store.Delete(r.Context(), id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/v1/sessions/{id}/activate
func (h *SessionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if !h.store.SetActive(r.Context(), id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, h.store.List())
}

// Rename handles PUT /api/v1/sessions/{id}/title
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req model.RenameSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.store.Rename(r.Context(), id, req.Title) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, _ := h.store.Get(id)
	writeJSON(w, http.StatusOK, sess)
}

// Export handles GET /api/v1/sessions/{id}/export?format=json|yaml|markdown
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, found := h.store.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	out, err := service.ExportSession(sess, r.URL.Query().Get("format"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to export session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export session")
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.%s"`, id, out.Extension))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
