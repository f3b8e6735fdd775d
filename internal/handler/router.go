package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/voicechat/internal/middleware"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Health      *HealthHandler
	Sessions    *SessionHandler
	Chat        *ChatHandler
	Documents   *DocumentHandler
	Settings    *SettingsHandler
	Voice       *VoiceHandler
	Walkthrough *WalkthroughHandler
	Stream      *StreamHandler
}

// NewRouter wires the handlers and middleware into a chi router.
func NewRouter(cfg RouterConfig, h Handlers, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Get("/events", h.Stream.Events)
		r.Get("/capabilities", h.Voice.Capabilities)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.Sessions.List)
			r.Post("/", h.Sessions.Create)
			r.Get("/active", h.Sessions.Active)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Sessions.Get)
				r.Delete("/", h.Sessions.Delete)
				r.Post("/activate", h.Sessions.Activate)
				r.Put("/title", h.Sessions.Rename)
				r.Get("/export", h.Sessions.Export)
			})
		})

		r.Post("/chat", h.Chat.Send)
		r.Get("/chat/state", h.Chat.State)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.Documents.List)
			r.Post("/", h.Documents.Upload)
			r.Get("/status", h.Documents.Status)
			r.Delete("/{name}", h.Documents.Delete)
		})

		r.Get("/settings", h.Settings.Get)
		r.Put("/settings", h.Settings.Update)

		r.Route("/voice", func(r chi.Router) {
			r.Post("/start", h.Voice.Start)
			r.Post("/stop", h.Voice.Stop)
			r.Post("/transcript", h.Voice.Transcript)
			r.Post("/audio", h.Voice.Audio)
			r.Post("/error", h.Voice.Error)
			r.Post("/speech/cancel", h.Voice.CancelSpeech)
			r.Post("/speech/{id}/done", h.Voice.SpeechDone)
		})

		r.Route("/walkthrough", func(r chi.Router) {
			r.Get("/", h.Walkthrough.State)
			r.Post("/start", h.Walkthrough.Start)
			r.Post("/next", h.Walkthrough.Next)
			r.Post("/back", h.Walkthrough.Back)
			r.Post("/skip", h.Walkthrough.Skip)
		})
	})

	return r
}
