package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// Skip reasons reported in model.UploadResult.
const (
	SkipDuplicate = "duplicate"
	SkipEmptyName = "empty name"
)

// Rebuilder rebuilds the retrieval index for a document set.
type Rebuilder interface {
	Rebuild(docs []model.LoadedDocument) uint64
}

// DocumentStore holds uploaded documents in memory, unique by name, and
// triggers an index rebuild whenever the set changes.
type DocumentStore struct {
	rebuilder Rebuilder
	publisher events.Publisher
	logger    *logger.Logger

	// rebuildMu orders rebuilds by mutation without holding mu while the
	// rebuilder publishes. Acquired before mu.
	rebuildMu sync.Mutex
	mu        sync.RWMutex
	docs      []model.LoadedDocument
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore(rebuilder Rebuilder, publisher events.Publisher, log *logger.Logger) *DocumentStore {
	return &DocumentStore{
		rebuilder: rebuilder,
		publisher: publisher,
		logger:    log.Named("documents"),
	}
}

// Add stores docs in order. A document whose name is already loaded is
// skipped. One rebuild is triggered when at least one document was added.
func (s *DocumentStore) Add(ctx context.Context, docs ...model.LoadedDocument) []model.UploadResult {
	results := make([]model.UploadResult, len(docs))

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	s.mu.Lock()
	added := 0
	for i, doc := range docs {
		results[i].Name = doc.Name
		switch {
		case strings.TrimSpace(doc.Name) == "":
			results[i].Skipped = SkipEmptyName
		case s.find(doc.Name) >= 0:
			results[i].Skipped = SkipDuplicate
		default:
			s.docs = append(s.docs, doc)
			results[i].Added = true
			added++
		}
	}
	var snapshot []model.LoadedDocument
	if added > 0 {
		snapshot = s.snapshot()
	}
	s.mu.Unlock()

	if added > 0 {
		s.rebuilder.Rebuild(snapshot)
		s.logger.Info("documents added", zap.Int("added", added), zap.Int("skipped", len(docs)-added))
		s.publish(ctx)
	}
	return results
}

// Remove drops a document by name and reports whether it existed.
func (s *DocumentStore) Remove(ctx context.Context, name string) bool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	s.mu.Lock()
	i := s.find(name)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	snapshot := s.snapshot()
	s.mu.Unlock()

	s.rebuilder.Rebuild(snapshot)

	s.logger.Info("document removed", zap.String("name", name))
	s.publish(ctx)
	return true
}

// List returns summaries of the loaded documents in upload order.
func (s *DocumentStore) List() []model.DocumentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DocumentSummary, len(s.docs))
	for i, d := range s.docs {
		out[i] = model.DocumentSummary{Name: d.Name, Size: len(d.Content)}
	}
	return out
}

// Len returns the number of loaded documents.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *DocumentStore) find(name string) int {
	for i, d := range s.docs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (s *DocumentStore) snapshot() []model.LoadedDocument {
	out := make([]model.LoadedDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *DocumentStore) publish(ctx context.Context) {
	ev := events.New(model.TopicDocuments, model.EventDocumentsChanged, "", s.List())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish documents event", zap.Error(err))
	}
}
