package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/llm"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
	"github.com/capitalize-ai/voicechat/pkg/metrics"
)

// ErrNoCredential is returned when a rebuild runs without an API credential.
var ErrNoCredential = errors.New("API key required to build the document index")

const statusNoDocuments = "No documents loaded."

// EmbedderFactory creates an embedding client for a credential.
type EmbedderFactory interface {
	Embedder(apiKey string) (llm.Embedder, error)
}

// CredentialSource provides the current API credential.
type CredentialSource interface {
	Credential() string
}

// Options configures chunking and retrieval.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	CacheTTL     time.Duration
}

// DefaultOptions returns the default chunking and retrieval settings.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, ChunkOverlap: 200, TopK: 4, CacheTTL: time.Hour}
}

// Builder rebuilds the retrieval index whenever the document set changes.
// Each rebuild gets a generation number; only the latest generation may
// publish its result and older in-flight rebuilds are cancelled.
type Builder struct {
	embedders   EmbedderFactory
	credentials CredentialSource
	cache       *EmbeddingCache
	publisher   events.Publisher
	logger      *logger.Logger
	opts        Options

	mu         sync.Mutex
	index      *Index
	status     model.IndexStatus
	generation uint64
	cancel     context.CancelFunc

	wg sync.WaitGroup
}

// NewBuilder creates a builder with no index.
func NewBuilder(
	embedders EmbedderFactory,
	credentials CredentialSource,
	publisher events.Publisher,
	opts Options,
	log *logger.Logger,
) *Builder {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Builder{
		embedders:   embedders,
		credentials: credentials,
		cache:       NewEmbeddingCache(opts.CacheTTL),
		publisher:   publisher,
		logger:      log.Named("rag"),
		opts:        opts,
		status:      model.IndexStatus{State: model.IndexEmpty, Message: statusNoDocuments},
	}
}

// Rebuild starts building an index for docs and returns its generation. An
// empty document set clears the index synchronously.
func (b *Builder) Rebuild(docs []model.LoadedDocument) uint64 {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}

	if len(docs) == 0 {
		b.index = nil
		b.status = model.IndexStatus{State: model.IndexEmpty, Message: statusNoDocuments, Generation: gen}
		status := b.status
		b.mu.Unlock()

		metrics.IndexChunks.Set(0)
		b.publish(status)
		return gen
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.status = model.IndexStatus{
		State:      model.IndexBuilding,
		Message:    fmt.Sprintf("Processing %d documents...", len(docs)),
		Documents:  len(docs),
		Generation: gen,
	}
	status := b.status
	b.mu.Unlock()

	b.publish(status)

	snapshot := make([]model.LoadedDocument, len(docs))
	copy(snapshot, docs)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()

		idx, err := b.build(ctx, snapshot)
		b.finish(gen, idx, err)
	}()

	return gen
}

// Wait blocks until all started rebuilds have finished.
func (b *Builder) Wait() {
	b.wg.Wait()
}

// Index returns the published index, or nil when there is none.
func (b *Builder) Index() *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index
}

// Status returns the current index status.
func (b *Builder) Status() model.IndexStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Retrieve returns the top-ranked chunks for query. ok is false when no
// index is published. The query is embedded with the current credential.
func (b *Builder) Retrieve(ctx context.Context, query string) (results []Result, ok bool, err error) {
	idx := b.Index()
	if idx == nil {
		return nil, false, nil
	}

	credential := b.credentials.Credential()
	if credential == "" {
		return nil, true, ErrNoCredential
	}
	embedder, err := b.embedders.Embedder(credential)
	if err != nil {
		return nil, true, fmt.Errorf("failed to create embedder: %w", err)
	}

	results, err = idx.Search(ctx, embedder, query, b.opts.TopK)
	if err != nil {
		return nil, true, err
	}
	return results, true, nil
}

func (b *Builder) build(ctx context.Context, docs []model.LoadedDocument) (*Index, error) {
	ctx, span := otel.Tracer("voicechat/rag").Start(ctx, "rag.rebuild")
	defer span.End()
	span.SetAttributes(attribute.Int("documents", len(docs)))

	credential := b.credentials.Credential()
	if credential == "" {
		return nil, ErrNoCredential
	}

	embedder, err := b.embedders.Embedder(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var chunks []Chunk
	for _, doc := range docs {
		text := PlainText(doc.Name, doc.Content)
		for i, part := range SplitText(text, b.opts.ChunkSize, b.opts.ChunkOverlap) {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, Chunk{Document: doc.Name, Index: i, Text: part})
		}
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	vectors := make([][]float32, len(chunks))
	var missing []int
	var missingText []string
	for i, c := range chunks {
		if v, ok := b.cache.Get(embedder.Model(), c.Text); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
		missingText = append(missingText, c.Text)
	}

	if len(missing) > 0 {
		embedded, err := embedder.Embed(ctx, missingText)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedding failed")
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embedded) != len(missing) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(embedded))
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
			b.cache.Set(embedder.Model(), chunks[i].Text, embedded[j])
		}
	}

	return NewIndex(chunks, vectors, embedder.Model(), len(docs))
}

func (b *Builder) finish(gen uint64, idx *Index, err error) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		metrics.IndexRebuildsTotal.WithLabelValues("superseded").Inc()
		b.logger.Debug("discarding superseded index rebuild", zap.Uint64("generation", gen))
		return
	}
	b.cancel = nil

	if err != nil {
		b.status = model.IndexStatus{
			State:      model.IndexError,
			Message:    "Error building index: " + err.Error(),
			Generation: gen,
		}
		if b.index != nil {
			b.status.Documents = b.index.Documents()
			b.status.Chunks = b.index.Len()
		}
	} else {
		b.index = idx
		b.status = model.IndexStatus{
			State:      model.IndexReady,
			Message:    fmt.Sprintf("Ready: %d documents loaded.", idx.Documents()),
			Documents:  idx.Documents(),
			Chunks:     idx.Len(),
			Generation: gen,
		}
	}
	status := b.status
	b.mu.Unlock()

	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues("error").Inc()
		b.logger.Error("index rebuild failed", zap.Uint64("generation", gen), zap.Error(err))
	} else {
		metrics.IndexRebuildsTotal.WithLabelValues("success").Inc()
		metrics.IndexChunks.Set(float64(idx.Len()))
		b.logger.Info("index rebuilt",
			zap.Uint64("generation", gen),
			zap.Int("documents", idx.Documents()),
			zap.Int("chunks", idx.Len()),
		)
	}

	b.publish(status)
}

func (b *Builder) publish(status model.IndexStatus) {
	ev := events.New(model.TopicIndex, model.EventIndexStatus, "", status)
	if err := b.publisher.Publish(context.Background(), ev); err != nil {
		b.logger.Warn("failed to publish index status", zap.Error(err))
	}
}
