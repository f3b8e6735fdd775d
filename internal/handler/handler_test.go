package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/llm"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/internal/storage"
	"github.com/capitalize-ai/voicechat/internal/voice"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

type stubLLM struct {
	reply string
}

func (s *stubLLM) Chat(string) (llm.Client, error) { return s, nil }

func (s *stubLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.reply, Model: req.Model}, nil
}

func (s *stubLLM) Name() string     { return "stub" }
func (s *stubLLM) Models() []string { return nil }

type stubIndex struct {
	mu     sync.Mutex
	docs   []model.LoadedDocument
	status model.IndexStatus
}

func (s *stubIndex) Rebuild(docs []model.LoadedDocument) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.status = model.IndexStatus{State: model.IndexReady, Documents: len(docs)}
	return 1
}

func (s *stubIndex) Status() model.IndexStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

type testApp struct {
	router   http.Handler
	sessions *service.SessionStore
	settings *service.Settings
	engine   *service.Engine
	index    *stubIndex
	bus      *events.Bus
}

func newTestApp(t *testing.T, caps voice.Capabilities, checks map[string]Check) *testApp {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()

	bus := events.NewBus(log)
	t.Cleanup(func() { bus.Close() })

	kv := storage.NewMemory()
	sessions := service.NewSessionStore(ctx, storage.NewSessionRepository(kv), bus, log)
	settings := service.NewSettings(ctx, storage.NewSettingsRepository(kv, storage.NewSealer("")), "main-model", "", log)
	index := &stubIndex{status: model.IndexStatus{State: model.IndexEmpty, Message: "No documents loaded."}}
	documents := service.NewDocumentStore(index, bus, log)
	speaker := voice.NewSpeaker(caps.Synthesis, false, bus, log)
	engine := service.NewEngine(sessions, &stubLLM{reply: "Hello!"}, nil, settings, speaker, bus,
		service.EngineOptions{TitleModel: "title-model"}, log)
	t.Cleanup(engine.Drain)
	bridge := voice.NewBridge(engine, caps.Recognition, nil, settings, bus, log)
	walkthrough := service.NewWalkthrough(service.DefaultWalkthrough, bus, log)

	if checks == nil {
		checks = map[string]Check{"storage": kv.Ping}
	}

	router := NewRouter(RouterConfig{}, Handlers{
		Health:      NewHealthHandler(checks),
		Sessions:    NewSessionHandler(sessions, log),
		Chat:        NewChatHandler(engine, log),
		Documents:   NewDocumentHandler(documents, index, 0, log),
		Settings:    NewSettingsHandler(settings, speaker, "openai", log),
		Voice:       NewVoiceHandler(bridge, speaker, caps, log),
		Walkthrough: NewWalkthroughHandler(walkthrough),
		Stream:      NewStreamHandler(bus, sessions, documents, index, engine, walkthrough, 0, log),
	}, log)

	return &testApp{
		router:   router,
		sessions: sessions,
		settings: settings,
		engine:   engine,
		index:    index,
		bus:      bus,
	}
}

func allVoice() voice.Capabilities {
	return voice.Resolve(voice.CapabilityOptions{SpeechRecognition: true, SpeechSynthesis: true})
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/ready", nil).Code)

	failing := newTestApp(t, allVoice(), map[string]Check{
		"nats": func(context.Context) error { return errors.New("not connected") },
	})
	rec := failing.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "nats: not connected")
}

func TestSessionEndpoints(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	rec := app.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.ChatSession](t, rec)
	assert.Equal(t, model.DefaultSessionTitle, created.Title)

	list := decode[model.ListSessionsResponse](t, app.do(t, http.MethodGet, "/api/v1/sessions", nil))
	require.Equal(t, 2, list.Total)
	assert.Equal(t, created.ID, list.ActiveID)
	older := list.Sessions[1].ID

	rec = app.do(t, http.MethodPost, "/api/v1/sessions/"+older+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, older, app.sessions.ActiveID())

	active := decode[model.ChatSession](t, app.do(t, http.MethodGet, "/api/v1/sessions/active", nil))
	assert.Equal(t, older, active.ID)

	rec = app.do(t, http.MethodPut, "/api/v1/sessions/"+created.ID+"/title", model.RenameSessionRequest{Title: "Trip to Porto"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Trip to Porto", decode[model.ChatSession](t, rec).Title)

	search := decode[model.ListSessionsResponse](t, app.do(t, http.MethodGet, "/api/v1/sessions?q=porto", nil))
	require.Len(t, search.Sessions, 1)
	assert.Equal(t, created.ID, search.Sessions[0].ID)

	rec = app.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID+"/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), created.ID+".md")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Trip to Porto"))

	assert.Equal(t, http.StatusBadRequest,
		app.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID+"/export?format=pdf", nil).Code)

	rec = app.do(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil).Code)
}

func TestChatEndpoint(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	rec := app.do(t, http.MethodPost, "/api/v1/chat", model.SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, CodeCredentialRequired, decode[ErrorResponse](t, rec).Code)

	key := "sk-test"
	rec = app.do(t, http.MethodPut, "/api/v1/settings", model.UpdateSettingsRequest{Credential: &key})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Settings](t, rec).HasCredential)

	rec = app.do(t, http.MethodPost, "/api/v1/chat", model.SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[model.SendMessageResponse](t, rec)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "Hello!", resp.Reply.Content)
	assert.Equal(t, app.sessions.ActiveID(), resp.SessionID)

	rec = app.do(t, http.MethodPost, "/api/v1/chat", model.SendMessageRequest{Content: "   "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, IgnoredResponse{Ignored: true, Reason: ReasonBlank}, decode[IgnoredResponse](t, rec))

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/v1/chat", nil).Code)

	state := decode[model.EngineStateEvent](t, app.do(t, http.MethodGet, "/api/v1/chat/state", nil))
	assert.Equal(t, service.StateIdle, state.State)
}

func TestSettingsEndpoint(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	settings := decode[model.Settings](t, app.do(t, http.MethodGet, "/api/v1/settings", nil))
	assert.Equal(t, model.Settings{Model: "main-model", Provider: "openai"}, settings)

	modelID := "gpt-4o-mini"
	muted := true
	rec := app.do(t, http.MethodPut, "/api/v1/settings", model.UpdateSettingsRequest{Model: &modelID, Muted: &muted})
	require.Equal(t, http.StatusOK, rec.Code)
	settings = decode[model.Settings](t, rec)
	assert.Equal(t, "gpt-4o-mini", settings.Model)
	assert.True(t, settings.Muted)

	blank := " "
	assert.Equal(t, http.StatusBadRequest,
		app.do(t, http.MethodPut, "/api/v1/settings", model.UpdateSettingsRequest{Model: &blank}).Code)
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDocumentEndpoints(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"notes.txt": []byte("Meeting notes: ship on Friday."),
		"page.html": []byte("<!DOCTYPE html><html><body><p>Hello</p></body></html>"),
		"image.png": png,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upload := decode[UploadResponse](t, rec)
	require.Len(t, upload.Results, 3)
	byName := map[string]model.UploadResult{}
	for _, r := range upload.Results {
		byName[r.Name] = r
	}
	assert.True(t, byName["notes.txt"].Added)
	assert.True(t, byName["page.html"].Added)
	assert.False(t, byName["image.png"].Added)
	assert.Contains(t, byName["image.png"].Skipped, "image/png")
	assert.Len(t, upload.Documents, 2)
	assert.Len(t, app.index.docs, 2)

	body, contentType = multipartBody(t, "files", map[string][]byte{"notes.txt": []byte("changed")})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	dup := decode[UploadResponse](t, rec)
	assert.Equal(t, service.SkipDuplicate, dup.Results[0].Skipped)

	status := decode[model.IndexStatus](t, app.do(t, http.MethodGet, "/api/v1/documents/status", nil))
	assert.Equal(t, model.IndexReady, status.State)

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/api/v1/documents/notes.txt", nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/api/v1/documents/notes.txt", nil).Code)

	docs := decode[[]model.DocumentSummary](t, app.do(t, http.MethodGet, "/api/v1/documents", nil))
	require.Len(t, docs, 1)
	assert.Equal(t, "page.html", docs[0].Name)
}

func TestVoiceEndpoints(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)
	key := "sk-test"
	app.do(t, http.MethodPut, "/api/v1/settings", model.UpdateSettingsRequest{Credential: &key})

	caps := decode[model.Capabilities](t, app.do(t, http.MethodGet, "/api/v1/capabilities", nil))
	assert.True(t, caps.SpeechRecognition)
	assert.False(t, caps.AudioUpload)

	rec := app.do(t, http.MethodPost, "/api/v1/voice/transcript", voice.Transcript{Text: "hello send", Final: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[IgnoredResponse](t, rec).Ignored)

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/v1/voice/start", nil).Code)

	rec = app.do(t, http.MethodPost, "/api/v1/voice/transcript", voice.Transcript{Text: "what is the weather", Final: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[TranscriptResponse](t, rec).Submitted)

	rec = app.do(t, http.MethodPost, "/api/v1/voice/transcript", voice.Transcript{Text: "send", Final: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is the weather", decode[TranscriptResponse](t, rec).Submitted)

	active, ok := app.sessions.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "what is the weather", active.Messages[0].Content)

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/v1/voice/error", RecognitionErrorRequest{Error: "no-speech"}).Code)
	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodPost, "/api/v1/voice/speech/cancel", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, app.do(t, http.MethodPost, "/api/v1/voice/audio", nil).Code)
}

func TestVoiceUnsupported(t *testing.T) {
	app := newTestApp(t, voice.Resolve(voice.CapabilityOptions{}), nil)

	caps := decode[model.Capabilities](t, app.do(t, http.MethodGet, "/api/v1/capabilities", nil))
	assert.Equal(t, model.Capabilities{}, caps)
	assert.Equal(t, http.StatusNotImplemented, app.do(t, http.MethodPost, "/api/v1/voice/start", nil).Code)
}

func TestWalkthroughEndpoints(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)

	state := decode[model.WalkthroughState](t, app.do(t, http.MethodPost, "/api/v1/walkthrough/start", nil))
	require.True(t, state.Active)
	assert.Equal(t, 0, state.Index)

	state = decode[model.WalkthroughState](t, app.do(t, http.MethodPost, "/api/v1/walkthrough/next", nil))
	assert.Equal(t, 1, state.Index)

	state = decode[model.WalkthroughState](t, app.do(t, http.MethodPost, "/api/v1/walkthrough/skip", nil))
	assert.False(t, state.Active)
}
