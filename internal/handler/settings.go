package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/internal/voice"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// SettingsHandler handles the credential, model and mute settings.
type SettingsHandler struct {
	settings *service.Settings
	speaker  *voice.Speaker
	provider string
	logger   *logger.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings *service.Settings, speaker *voice.Speaker, provider string, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		speaker:  speaker,
		provider: provider,
		logger:   log,
	}
}

// Get handles GET /api/v1/settings. The credential itself is never
// returned.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

// Update handles PUT /api/v1/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Model != nil {
		if err := h.settings.SetModel(ctx, *req.Model); err != nil {
			if errors.Is(err, service.ErrInvalidModel) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.Error("failed to save model", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	if req.Credential != nil {
		if err := h.settings.SetCredential(ctx, *req.Credential); err != nil {
			h.logger.Error("failed to save credential", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	if req.Muted != nil {
		h.speaker.SetMuted(ctx, *req.Muted)
	}

	writeJSON(w, http.StatusOK, h.current())
}

func (h *SettingsHandler) current() model.Settings {
	return model.Settings{
		Model:         h.settings.Model(),
		Muted:         h.speaker.Muted(),
		HasCredential: h.settings.HasCredential(),
		Provider:      h.provider,
	}
}
