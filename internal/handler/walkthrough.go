package handler

import (
	"net/http"

	"github.com/capitalize-ai/voicechat/internal/service"
)

// WalkthroughHandler handles the guided tour endpoints.
type WalkthroughHandler struct {
	walkthrough *service.Walkthrough
}

// NewWalkthroughHandler creates a new walkthrough handler.
func NewWalkthroughHandler(w *service.Walkthrough) *WalkthroughHandler {
	return &WalkthroughHandler{walkthrough: w}
}

// State handles GET /api/v1/walkthrough
func (h *WalkthroughHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.walkthrough.State())
}

// Start handles POST /api/v1/walkthrough/start
func (h *WalkthroughHandler) Start(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.walkthrough.Start(r.Context()))
}

// Next handles POST /api/v1/walkthrough/next
func (h *WalkthroughHandler) Next(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.walkthrough.Next(r.Context()))
}

// Back handles POST /api/v1/walkthrough/back
func (h *WalkthroughHandler) Back(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.walkthrough.Back(r.Context()))
}

// Skip handles POST /api/v1/walkthrough/skip
func (h *WalkthroughHandler) Skip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.walkthrough.Skip(r.Context()))
}
