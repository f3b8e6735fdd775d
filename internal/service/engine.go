package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/llm"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/rag"
	"github.com/capitalize-ai/voicechat/pkg/logger"
	"github.com/capitalize-ai/voicechat/pkg/metrics"
)

var (
	// ErrBlankInput is returned for input that is empty or whitespace.
	ErrBlankInput = errors.New("message is blank")
	// ErrBusy is returned while a previous message is still being answered.
	ErrBusy = errors.New("a reply is already in progress")
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("API key required")
)

const (
	// FallbackReply is appended in place of a reply when the request fails.
	FallbackReply = "Sorry, something went wrong."

	// ContextSeparator joins retrieved chunks in the context block.
	ContextSeparator = "\n\n---\n\n"

	personaPrompt = "You are a helpful, friendly assistant. Answer clearly and concisely."

	contextPrompt = "Answer the user's question using only the context below. " +
		"If the answer is not in the context, say that you don't know.\n\nContext:\n%s"

	titlePrompt = "Write a short title, at most six words, for a conversation that starts " +
		"with the following message. Reply with the title only."

	titleQuotes = "\"'`“”‘’"
)

// Engine states reported in engine_state events.
const (
	StateIdle    = "idle"
	StateSending = "sending"
)

// ChatClients creates completion clients for a credential.
type ChatClients interface {
	Chat(apiKey string) (llm.Client, error)
}

// Retriever returns context chunks for a query. ok is false when there is
// no index to search.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (results []rag.Result, ok bool, err error)
}

// Speaker reads replies aloud.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// SettingsSource provides the credential and selected model.
type SettingsSource interface {
	Credential() string
	Model() string
}

// EngineOptions configures the conversation engine.
type EngineOptions struct {
	TitleModel     string
	MaxTokens      int
	TitleMaxTokens int
	// RequestTimeout bounds each completion request; zero means no limit.
	RequestTimeout time.Duration
}

// Engine sends chat messages to the language model. One message may be in
// flight at a time; further submissions are rejected until it completes.
type Engine struct {
	sessions  *SessionStore
	clients   ChatClients
	retriever Retriever
	settings  SettingsSource
	speaker   Speaker
	publisher events.Publisher
	logger    *logger.Logger
	opts      EngineOptions

	inFlight atomic.Bool
	titles   sync.WaitGroup
}

// NewEngine creates a conversation engine.
func NewEngine(
	sessions *SessionStore,
	clients ChatClients,
	retriever Retriever,
	settings SettingsSource,
	speaker Speaker,
	publisher events.Publisher,
	opts EngineOptions,
	log *logger.Logger,
) *Engine {
	if opts.TitleModel == "" {
		opts.TitleModel = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.TitleMaxTokens <= 0 {
		opts.TitleMaxTokens = 32
	}
	return &Engine{
		sessions:  sessions,
		clients:   clients,
		retriever: retriever,
		settings:  settings,
		speaker:   speaker,
		publisher: publisher,
		logger:    log.Named("engine"),
		opts:      opts,
	}
}

// sendCommand captures everything a send needs at submission time so that
// later session or settings changes do not affect it.
type sendCommand struct {
	sessionID  string
	text       string
	history    []model.Message
	model      string
	credential string
}

// State returns the engine state.
func (e *Engine) State() string {
	if e.inFlight.Load() {
		return StateSending
	}
	return StateIdle
}

// Send appends text to the active session (creating one if needed), asks the
// model for a reply and appends it. Request failures are not returned: the
// fallback reply is appended instead and the response is marked failed.
func (e *Engine) Send(ctx context.Context, text string) (*model.SendMessageResponse, error) {
	if model.IsBlank(text) {
		metrics.SendsTotal.WithLabelValues("blank").Inc()
		return nil, ErrBlankInput
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		metrics.SendsTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	var sessionID string
	defer func() {
		e.inFlight.Store(false)
		if sessionID != "" {
			e.publishState(context.WithoutCancel(ctx), StateIdle, sessionID)
		}
	}()

	credential := e.settings.Credential()
	if credential == "" {
		metrics.SendsTotal.WithLabelValues("no_credential").Inc()
		e.publish(ctx, model.TopicEngine, model.EventCredentialNeeded, "", nil)
		return nil, ErrMissingCredential
	}

	ctx, span := otel.Tracer("voicechat/engine").Start(ctx, "engine.send")
	defer span.End()

	sess, ok := e.sessions.Active()
	if !ok {
		sess = e.sessions.Create(ctx)
	}
	sessionID = sess.ID
	span.SetAttributes(attribute.String("session.id", sessionID))
	e.publishState(ctx, StateSending, sessionID)

	userMsg := model.NewUserMessage(text)
	e.sessions.AppendMessage(ctx, sessionID, userMsg)

	history := append(sess.Messages, userMsg)
	if current, ok := e.sessions.Get(sessionID); ok {
		history = current.Messages
	}
	cmd := sendCommand{
		sessionID:  sessionID,
		text:       text,
		history:    history,
		model:      e.settings.Model(),
		credential: credential,
	}

	if len(cmd.history) == 1 {
		e.titles.Add(1)
		go func() {
			defer e.titles.Done()
			e.generateTitle(context.WithoutCancel(ctx), cmd)
		}()
	}

	reply, err := e.reply(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply failed")
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		e.logger.Error("chat request failed",
			zap.String("session_id", sessionID),
			zap.String("model", cmd.model),
			zap.Error(err),
		)
		fallback := model.NewAssistantMessage(FallbackReply)
		e.sessions.AppendMessage(ctx, sessionID, fallback)
		e.speaker.Speak(ctx, fallback.Content)
		return &model.SendMessageResponse{SessionID: sessionID, Reply: &fallback, Failed: true}, nil
	}

	assistantMsg := model.NewAssistantMessage(reply)
	e.sessions.AppendMessage(ctx, sessionID, assistantMsg)
	e.speaker.Speak(ctx, assistantMsg.Content)
	metrics.SendsTotal.WithLabelValues("completed").Inc()

	return &model.SendMessageResponse{SessionID: sessionID, Reply: &assistantMsg}, nil
}

// Drain waits for background title requests to finish.
func (e *Engine) Drain() {
	e.titles.Wait()
}

func (e *Engine) reply(ctx context.Context, cmd sendCommand) (string, error) {
	system, err := e.systemPrompt(ctx, cmd.text)
	if err != nil {
		return "", err
	}

	messages := make([]llm.ChatMessage, 0, len(cmd.history)+1)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	for _, m := range cmd.history {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := e.complete(ctx, cmd.credential, "reply", &llm.CompletionRequest{
		Model:     cmd.model,
		Messages:  messages,
		MaxTokens: e.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// systemPrompt returns the context-only instruction when an index is
// available and the default persona otherwise.
func (e *Engine) systemPrompt(ctx context.Context, query string) (string, error) {
	if e.retriever == nil {
		return personaPrompt, nil
	}

	results, ok, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	if !ok {
		return personaPrompt, nil
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	return fmt.Sprintf(contextPrompt, strings.Join(parts, ContextSeparator)), nil
}

func (e *Engine) generateTitle(ctx context.Context, cmd sendCommand) {
	resp, err := e.complete(ctx, cmd.credential, "title", &llm.CompletionRequest{
		Model: e.opts.TitleModel,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleSystem), Content: titlePrompt},
			{Role: string(model.RoleUser), Content: cmd.text},
		},
		MaxTokens: e.opts.TitleMaxTokens,
	})
	if err != nil {
		e.logger.Warn("title generation failed",
			zap.String("session_id", cmd.sessionID),
			zap.Error(err),
		)
		return
	}

	title := CleanTitle(resp.Content)
	if title == "" {
		return
	}
	e.sessions.Rename(ctx, cmd.sessionID, title)
}

// CleanTitle trims whitespace and surrounding quote characters.
func CleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), titleQuotes))
}

func (e *Engine) complete(ctx context.Context, credential, purpose string, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := e.clients.Chat(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	if e.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		metrics.RecordLLMRequest(req.Model, purpose, "error", time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMRequest(req.Model, purpose, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func (e *Engine) publishState(ctx context.Context, state, sessionID string) {
	e.publish(ctx, model.TopicEngine, model.EventEngineState, sessionID, model.EngineStateEvent{
		State:     state,
		SessionID: sessionID,
	})
}

func (e *Engine) publish(ctx context.Context, topic model.Topic, typ model.EventType, sessionID string, data any) {
	if err := e.publisher.Publish(ctx, events.New(topic, typ, sessionID, data)); err != nil {
		e.logger.Warn("failed to publish engine event", zap.Error(err))
	}
}
