package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/rag"
	"github.com/capitalize-ai/voicechat/internal/storage"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

type engineFixture struct {
	engine    *Engine
	store     *SessionStore
	llm       *fakeLLM
	retriever *fakeRetriever
	speaker   *fakeSpeaker
	events    *events.Recorder
}

func newEngineFixture(t *testing.T, credential string) *engineFixture {
	t.Helper()

	rec := &events.Recorder{}
	store := NewSessionStore(context.Background(),
		storage.NewSessionRepository(storage.NewMemory()), rec, logger.Nop())

	f := &engineFixture{
		store:     store,
		llm:       &fakeLLM{reply: "Hi there!", title: `"Friendly Greeting"`},
		retriever: &fakeRetriever{},
		speaker:   &fakeSpeaker{},
		events:    rec,
	}
	f.engine = NewEngine(store, f.llm, f.retriever,
		fakeSettings{credential: credential, model: "main-model"},
		f.speaker, rec, EngineOptions{TitleModel: testTitleModel}, logger.Nop())
	return f
}

func TestEngine_FirstExchange(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	active, _ := f.store.Active()

	resp, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.engine.Drain()

	assert.Equal(t, active.ID, resp.SessionID)
	assert.False(t, resp.Failed)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "Hi there!", resp.Reply.Content)

	sess, ok := f.store.Get(active.ID)
	require.True(t, ok)
	assert.Equal(t, []model.Message{
		model.NewUserMessage("hello"),
		model.NewAssistantMessage("Hi there!"),
	}, sess.Messages)

	titleCalls := f.llm.calls(testTitleModel)
	require.Len(t, titleCalls, 1)
	assert.Equal(t, "hello", titleCalls[0].Messages[len(titleCalls[0].Messages)-1].Content)
	assert.Equal(t, "Friendly Greeting", sess.Title)

	assert.Equal(t, []string{"Hi there!"}, f.speaker.spoken)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestEngine_LaterExchangeKeepsTitle(t *testing.T) {
	f := newEngineFixture(t, "sk-test")

	_, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	_, err = f.engine.Send(context.Background(), "and again")
	require.NoError(t, err)
	f.engine.Drain()

	assert.Len(t, f.llm.calls(testTitleModel), 1)

	main := f.llm.calls("main-model")
	require.Len(t, main, 2)
	second := main[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, "system", second[0].Role)
	assert.Equal(t, "hello", second[1].Content)
	assert.Equal(t, "Hi there!", second[2].Content)
	assert.Equal(t, "and again", second[3].Content)
}

func TestEngine_BlankInput(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	active, _ := f.store.Active()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.engine.Send(context.Background(), text)
		assert.ErrorIs(t, err, ErrBlankInput)
	}

	sess, _ := f.store.Get(active.ID)
	assert.Empty(t, sess.Messages)
	assert.Zero(t, f.llm.total())
}

func TestEngine_MissingCredential(t *testing.T) {
	f := newEngineFixture(t, "")
	active, _ := f.store.Active()

	_, err := f.engine.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMissingCredential)

	sess, _ := f.store.Get(active.ID)
	assert.Empty(t, sess.Messages)
	assert.Zero(t, f.llm.total())
	assert.Len(t, f.events.Events(model.EventCredentialNeeded), 1)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestEngine_RejectsWhileInFlight(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	f.llm.block = make(chan struct{})
	f.llm.started = make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.engine.Send(context.Background(), "first")
		assert.NoError(t, err)
	}()

	<-f.llm.started
	assert.Equal(t, StateSending, f.engine.State())

	_, err := f.engine.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(f.llm.block)
	wg.Wait()
	f.engine.Drain()

	active, _ := f.store.Active()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "first", active.Messages[0].Content)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestEngine_FailureAppendsFallback(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	f.llm.replyErr = errUpstream

	resp, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.engine.Drain()

	assert.True(t, resp.Failed)
	active, _ := f.store.Active()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, model.NewAssistantMessage(FallbackReply), active.Messages[1])
	assert.Equal(t, []string{FallbackReply}, f.speaker.spoken)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestEngine_TitleFailureIsIgnored(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	f.llm.titleErr = errUpstream

	resp, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.engine.Drain()

	assert.False(t, resp.Failed)
	active, _ := f.store.Active()
	assert.Equal(t, model.DefaultSessionTitle, active.Title)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "Hi there!", active.Messages[1].Content)
}

func TestEngine_CreatesSessionWhenNoneActive(t *testing.T) {
	f := newEngineFixture(t, "sk-test")
	only, _ := f.store.Active()
	f.store.Delete(context.Background(), only.ID)

	resp, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.engine.Drain()

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, active.ID, resp.SessionID)
	assert.Len(t, active.Messages, 2)
}

func TestEngine_SystemPrompt(t *testing.T) {
	t.Run("persona without index", func(t *testing.T) {
		f := newEngineFixture(t, "sk-test")

		_, err := f.engine.Send(context.Background(), "hello")
		require.NoError(t, err)
		f.engine.Drain()

		main := f.llm.calls("main-model")
		require.Len(t, main, 1)
		assert.Equal(t, personaPrompt, main[0].Messages[0].Content)
		assert.Equal(t, []string{"hello"}, f.retriever.queries)
	})

	t.Run("context block with index", func(t *testing.T) {
		f := newEngineFixture(t, "sk-test")
		f.retriever.present = true
		f.retriever.results = []rag.Result{
			{Chunk: rag.Chunk{Document: "a.txt", Text: "best chunk"}, Score: 0.9},
			{Chunk: rag.Chunk{Document: "b.txt", Text: "second chunk"}, Score: 0.5},
		}

		_, err := f.engine.Send(context.Background(), "what is in the docs?")
		require.NoError(t, err)
		f.engine.Drain()

		main := f.llm.calls("main-model")
		require.Len(t, main, 1)
		system := main[0].Messages[0]
		assert.Equal(t, "system", system.Role)
		assert.Contains(t, system.Content, "best chunk"+ContextSeparator+"second chunk")
		assert.NotEqual(t, personaPrompt, system.Content)
		assert.Equal(t, "what is in the docs?", main[0].Messages[1].Content)
	})

	t.Run("retrieval failure falls back", func(t *testing.T) {
		f := newEngineFixture(t, "sk-test")
		f.retriever.present = true
		f.retriever.err = errUpstream

		resp, err := f.engine.Send(context.Background(), "hello")
		require.NoError(t, err)
		f.engine.Drain()

		assert.True(t, resp.Failed)
		assert.Empty(t, f.llm.calls("main-model"))
	})
}

func TestEngine_PublishesStateTransitions(t *testing.T) {
	f := newEngineFixture(t, "sk-test")

	_, err := f.engine.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.engine.Drain()

	var states []string
	for _, ev := range f.events.Events(model.EventEngineState) {
		states = append(states, strings.Trim(string(ev.Data), "{}"))
	}
	require.Len(t, states, 2)
	assert.Contains(t, states[0], `"state":"sending"`)
	assert.Contains(t, states[1], `"state":"idle"`)
}

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		`"Weather Talk"`: "Weather Talk",
		`'Go Tips'`:      "Go Tips",
		"  “Curly”  ":    "Curly",
		"Plain":          "Plain",
		`""`:             "",
		"`Backticks`\n":  "Backticks",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanTitle(in), in)
	}
}
