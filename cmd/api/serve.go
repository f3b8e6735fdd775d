package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/config"
	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/handler"
	"github.com/capitalize-ai/voicechat/internal/llm"
	natsclient "github.com/capitalize-ai/voicechat/internal/nats"
	"github.com/capitalize-ai/voicechat/internal/rag"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/internal/storage"
	"github.com/capitalize-ai/voicechat/internal/voice"
	"github.com/capitalize-ai/voicechat/pkg/logger"
	"github.com/capitalize-ai/voicechat/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting voicechat", zap.String("version", version))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "voicechat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.WithoutCancel(ctx), tp)
		}
	}

	kv, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.StorageDriver,
		SQLitePath:    cfg.SQLitePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()
	log.Info("storage opened", zap.String("driver", cfg.StorageDriver))

	checks := map[string]handler.Check{"storage": kv.Ping}

	bus := events.NewBus(log)
	defer bus.Close()

	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()

		streams := natsclient.NewStreamManager(nc)
		ensureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = streams.EnsureStream(ensureCtx)
		cancel()
		if err != nil {
			log.Warn("event mirror disabled", zap.Error(err))
		} else {
			bus.AddMirror(streams)
		}
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	provider := llm.ProviderName(cfg.LLMProvider)
	factory := &llm.Factory{
		Provider:           provider,
		BaseURL:            cfg.OpenAIBaseURL,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingAPIKey:    cfg.EmbeddingAPIKey,
		TranscriptionModel: cfg.TranscriptionModel,
	}

	fallbackCredential := cfg.OpenAIAPIKey
	if provider == llm.ProviderAnthropic {
		fallbackCredential = cfg.AnthropicAPIKey
	}
	settingsRepo := storage.NewSettingsRepository(kv, storage.NewSealer(cfg.StoragePassphrase))
	settings := service.NewSettings(ctx, settingsRepo, cfg.DefaultModel, fallbackCredential, log)

	builder := rag.NewBuilder(factory, settings, bus, rag.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.RetrievalTopK,
		CacheTTL:     cfg.EmbeddingCacheTTL,
	}, log)
	defer builder.Wait()

	documents := service.NewDocumentStore(builder, bus, log)
	sessions := service.NewSessionStore(ctx, storage.NewSessionRepository(kv), bus, log)

	caps := voice.Resolve(voice.CapabilityOptions{
		SpeechRecognition: cfg.SpeechRecognition,
		SpeechSynthesis:   cfg.SpeechSynthesis,
		Transcription:     cfg.TranscriptionModel != "" && (provider != llm.ProviderAnthropic || cfg.EmbeddingAPIKey != ""),
	})
	speaker := voice.NewSpeaker(caps.Synthesis, false, bus, log)

	engine := service.NewEngine(sessions, factory, builder, settings, speaker, bus, service.EngineOptions{
		TitleModel:     cfg.TitleModel,
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	defer engine.Drain()

	var transcribers voice.TranscriberFactory
	if caps.Transcription.Supported() {
		transcribers = factory
	}
	bridge := voice.NewBridge(engine, caps.Recognition, transcribers, settings, bus, log)
	walkthrough := service.NewWalkthrough(service.DefaultWalkthrough, bus, log)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, handler.Handlers{
		Health:      handler.NewHealthHandler(checks),
		Sessions:    handler.NewSessionHandler(sessions, log),
		Chat:        handler.NewChatHandler(engine, log),
		Documents:   handler.NewDocumentHandler(documents, builder, handler.DefaultMaxDocumentSize, log),
		Settings:    handler.NewSettingsHandler(settings, speaker, cfg.LLMProvider, log),
		Voice:       handler.NewVoiceHandler(bridge, speaker, caps, log),
		Walkthrough: handler.NewWalkthroughHandler(walkthrough),
		Stream:      handler.NewStreamHandler(bus, sessions, documents, builder, engine, walkthrough, handler.DefaultHeartbeat, log),
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.LogFile != "" {
		return logger.NewWithFile(cfg.LogLevel, cfg.LogFile)
	}
	return logger.New(cfg.LogLevel)
}
