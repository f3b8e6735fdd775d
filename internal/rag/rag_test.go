package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/capitalize-ai/voicechat/internal/llm"
)

var keywords = []string{"apple", "banana", "cherry", "durian"}

// keywordEmbedder maps text to keyword counts so similarity is predictable.
type keywordEmbedder struct {
	calls  atomic.Int32
	texts  atomic.Int32
	err    error
	block  chan struct{}
	marker string

	mu   sync.Mutex
	seen []string
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int32(len(texts)))

	e.mu.Lock()
	e.seen = append(e.seen, texts...)
	e.mu.Unlock()

	if e.block != nil && e.marker != "" {
		for _, t := range texts {
			if strings.Contains(t, e.marker) {
				select {
				case <-e.block:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				break
			}
		}
	}
	if e.err != nil {
		return nil, e.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := make([]float32, len(keywords)+1)
		for j, k := range keywords {
			v[j] = float32(strings.Count(lower, k))
		}
		v[len(keywords)] = 0.01
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Model() string { return "keyword" }

type staticFactory struct {
	embedder llm.Embedder
	err      error
	keys     []string
	mu       sync.Mutex
}

func (f *staticFactory) Embedder(apiKey string) (llm.Embedder, error) {
	f.mu.Lock()
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.embedder, nil
}

type staticCredential string

func (c staticCredential) Credential() string { return string(c) }

var errEmbed = errors.New("embedding service unavailable")

// rotatingCredential is a credential the test can replace.
type rotatingCredential struct {
	mu  sync.Mutex
	key string
}

func (c *rotatingCredential) Credential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

func (c *rotatingCredential) set(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}
