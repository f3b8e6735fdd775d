package service

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/voicechat/internal/llm"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/rag"
)

const testTitleModel = "title-model"

var errUpstream = errors.New("upstream unavailable")

// fakeLLM answers title and reply requests separately, keyed by model.
type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	keys     []string

	reply    string
	replyErr error
	title    string
	titleErr error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeLLM) Chat(apiKey string) (llm.Client, error) {
	f.mu.Lock()
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	return f, nil
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	msgs := make([]llm.ChatMessage, len(req.Messages))
	copy(msgs, req.Messages)
	r := *req
	r.Messages = msgs
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	if req.Model == testTitleModel {
		if f.titleErr != nil {
			return nil, f.titleErr
		}
		return &llm.CompletionResponse{Content: f.title, Model: req.Model}, nil
	}

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return &llm.CompletionResponse{Content: f.reply, Model: req.Model}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"main-model"} }

func (f *fakeLLM) calls(modelID string) []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []llm.CompletionRequest
	for _, r := range f.requests {
		if r.Model == modelID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeLLM) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeRetriever struct {
	results []rag.Result
	present bool
	err     error
	queries []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string) ([]rag.Result, bool, error) {
	r.queries = append(r.queries, query)
	return r.results, r.present, r.err
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
}

type fakeSettings struct {
	credential string
	model      string
}

func (s fakeSettings) Credential() string { return s.credential }
func (s fakeSettings) Model() string      { return s.model }

type failingRepo struct {
	loadErr error
	saves   int
}

func (r *failingRepo) Load(context.Context) (model.SessionSnapshot, error) {
	return model.SessionSnapshot{}, r.loadErr
}

func (r *failingRepo) Save(context.Context, model.SessionSnapshot) error {
	r.saves++
	return nil
}

type recordingRebuilder struct {
	mu    sync.Mutex
	calls [][]model.LoadedDocument
}

func (r *recordingRebuilder) Rebuild(docs []model.LoadedDocument) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, docs)
	return uint64(len(r.calls))
}
