package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/middleware"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// Response codes for requests the engine declined.
const (
	CodeCredentialRequired = "credential_required"
	ReasonBlank            = "blank"
	ReasonBusy             = "busy"
)

// ChatHandler handles chat message endpoints.
type ChatHandler struct {
	engine *service.Engine
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(engine *service.Engine, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		logger: log,
	}
}

// Send handles POST /api/v1/chat. The exchange is not cancelled when the
// client disconnects; its result is also delivered over the event stream.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.engine.Send(context.WithoutCancel(r.Context()), req.Content)
	if err != nil {
		writeSendError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// State handles GET /api/v1/chat/state
func (h *ChatHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.EngineStateEvent{State: h.engine.State()})
}

// writeSendError maps engine errors to responses. It is shared with the
// voice transcript endpoint, which submits through the same engine.
func writeSendError(w http.ResponseWriter, err error, log *logger.Logger) {
	switch {
	case errors.Is(err, service.ErrBlankInput):
		writeIgnored(w, http.StatusOK, ReasonBlank)
	case errors.Is(err, service.ErrBusy):
		writeIgnored(w, http.StatusAccepted, ReasonBusy)
	case errors.Is(err, service.ErrMissingCredential):
		writeErrorCode(w, http.StatusPreconditionRequired, CodeCredentialRequired, "credential required")
	default:
		log.Error("failed to send message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
	}
}
