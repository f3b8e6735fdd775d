package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/middleware"
	"github.com/capitalize-ai/voicechat/internal/voice"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// DefaultMaxAudioSize caps an uploaded audio clip.
const DefaultMaxAudioSize = 25 << 20

// TranscriptResponse reports what a recognition result caused.
type TranscriptResponse struct {
	Submitted string `json:"submitted,omitempty"`
}

// RecognitionErrorRequest reports a browser recognition failure.
type RecognitionErrorRequest struct {
	Error string `json:"error"`
}

// VoiceHandler handles speech recognition and synthesis endpoints.
type VoiceHandler struct {
	bridge  *voice.Bridge
	speaker *voice.Speaker
	caps    voice.Capabilities
	logger  *logger.Logger
}

// NewVoiceHandler creates a new voice handler.
func NewVoiceHandler(bridge *voice.Bridge, speaker *voice.Speaker, caps voice.Capabilities, log *logger.Logger) *VoiceHandler {
	return &VoiceHandler{
		bridge:  bridge,
		speaker: speaker,
		caps:    caps,
		logger:  log,
	}
}

// Capabilities handles GET /api/v1/capabilities
func (h *VoiceHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.caps.Model())
}

// Start handles POST /api/v1/voice/start
func (h *VoiceHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Start(r.Context()); err != nil {
		if errors.Is(err, voice.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start listening")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"listening": true})
}

// Stop handles POST /api/v1/voice/stop
func (h *VoiceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.bridge.Stop(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"listening": false})
}

// Transcript handles POST /api/v1/voice/transcript
func (h *VoiceHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	var req voice.Transcript
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateTranscript(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submitted, err := h.bridge.Accept(context.WithoutCancel(r.Context()), req)
	h.writeAccepted(w, submitted, err)
}

// Audio handles POST /api/v1/voice/audio with an "audio" file part.
func (h *VoiceHandler) Audio(w http.ResponseWriter, r *http.Request) {
	if !h.caps.Transcription.Supported() {
		writeError(w, http.StatusNotImplemented, h.caps.Transcription.Require().Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxAudioSize)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	submitted, err := h.bridge.AcceptAudio(context.WithoutCancel(r.Context()), header.Filename, file)
	h.writeAccepted(w, submitted, err)
}

// Error handles POST /api/v1/voice/error
func (h *VoiceHandler) Error(w http.ResponseWriter, r *http.Request) {
	var req RecognitionErrorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Error == "" {
		req.Error = "recognition error"
	}
	h.bridge.Fail(r.Context(), errors.New(req.Error))
	writeJSON(w, http.StatusOK, map[string]bool{"listening": false})
}

// SpeechDone handles POST /api/v1/voice/speech/{id}/done
func (h *VoiceHandler) SpeechDone(w http.ResponseWriter, r *http.Request) {
	h.speaker.Finished(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// CancelSpeech handles POST /api/v1/voice/speech/cancel
func (h *VoiceHandler) CancelSpeech(w http.ResponseWriter, r *http.Request) {
	h.speaker.Cancel(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *VoiceHandler) writeAccepted(w http.ResponseWriter, submitted string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, TranscriptResponse{Submitted: submitted})
	case errors.Is(err, voice.ErrNotListening):
		writeIgnored(w, http.StatusOK, "not listening")
	case errors.Is(err, voice.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, voice.ErrNoCredential):
		writeErrorCode(w, http.StatusPreconditionRequired, CodeCredentialRequired, "credential required")
	case submitted != "":
		writeSendError(w, err, h.logger)
	default:
		h.logger.Error("failed to process speech", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to process speech")
	}
}
