// Package llm provides language-model, embedding and transcription clients.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("empty response from model")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Embedder turns text into embedding vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// ProviderName is the type of LLM provider.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider ProviderName, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI, "":
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// Factory builds clients for a credential supplied at runtime. The chat
// credential is user-entered and may change while the process runs, so
// clients are created per use rather than once at startup.
type Factory struct {
	Provider           ProviderName
	BaseURL            string
	EmbeddingModel     string
	EmbeddingAPIKey    string
	TranscriptionModel string
}

// Chat returns a completion client for apiKey.
func (f *Factory) Chat(apiKey string) (Client, error) {
	if f.Provider == ProviderOpenAI || f.Provider == "" {
		return NewOpenAIClientWithBaseURL(apiKey, f.BaseURL)
	}
	return NewClient(f.Provider, apiKey)
}

// Embedder returns an embedding client. Embeddings always use the OpenAI
// API; with another chat provider EmbeddingAPIKey must be configured.
func (f *Factory) Embedder(apiKey string) (Embedder, error) {
	c, err := NewOpenAIClientWithBaseURL(f.openAIKey(apiKey), f.BaseURL)
	if err != nil {
		return nil, err
	}
	return c.WithEmbeddingModel(f.EmbeddingModel), nil
}

// Transcriber returns a speech-to-text client using the same key rules as
// Embedder.
func (f *Factory) Transcriber(apiKey string) (Transcriber, error) {
	c, err := NewOpenAIClientWithBaseURL(f.openAIKey(apiKey), f.BaseURL)
	if err != nil {
		return nil, err
	}
	return c.WithTranscriptionModel(f.TranscriptionModel), nil
}

func (f *Factory) openAIKey(chatKey string) string {
	if f.EmbeddingAPIKey != "" {
		return f.EmbeddingAPIKey
	}
	if f.Provider == ProviderOpenAI || f.Provider == "" {
		return chatKey
	}
	return ""
}
