// Package service implements the chat client's stateful components: sessions,
// documents, settings, the conversation engine and the guided walkthrough.
package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
	"github.com/capitalize-ai/voicechat/pkg/metrics"
)

// SessionRepository loads and saves the full session list.
type SessionRepository interface {
	Load(ctx context.Context) (model.SessionSnapshot, error)
	Save(ctx context.Context, snap model.SessionSnapshot) error
}

// SessionStore holds the ordered chat sessions, newest first, and the
// active session. Every mutation is persisted through the repository.
type SessionStore struct {
	repo      SessionRepository
	publisher events.Publisher
	logger    *logger.Logger

	mu       sync.RWMutex
	sessions []*model.ChatSession
	activeID string
}

// NewSessionStore rehydrates the store from repo. When nothing is stored, or
// the stored active session no longer exists, a fresh session is created
// and made active.
func NewSessionStore(ctx context.Context, repo SessionRepository, publisher events.Publisher, log *logger.Logger) *SessionStore {
	s := &SessionStore{
		repo:      repo,
		publisher: publisher,
		logger:    log.Named("sessions"),
	}

	snap, err := repo.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load sessions, starting fresh", zap.Error(err))
		snap = model.SessionSnapshot{}
	}

	for i := range snap.Sessions {
		sess := snap.Sessions[i].Clone()
		if sess.ID == "" {
			continue
		}
		s.sessions = append(s.sessions, &sess)
	}
	s.activeID = snap.ActiveID

	if len(s.sessions) == 0 || s.find(s.activeID) < 0 {
		s.mu.Lock()
		s.create(ctx)
		s.mu.Unlock()
	}

	s.logger.Info("sessions loaded",
		zap.Int("count", len(s.sessions)),
		zap.String("active_session_id", s.activeID),
	)

	return s
}

// Create inserts a new empty session at the head of the list and makes it
// active.
func (s *SessionStore) Create(ctx context.Context) model.ChatSession {
	s.mu.Lock()
	sess := s.create(ctx)
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", sess.ID))
	s.publish(ctx, model.EventSessionsChanged, sess.ID, nil)
	return sess
}

func (s *SessionStore) create(ctx context.Context) model.ChatSession {
	sess := &model.ChatSession{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Title:    model.DefaultSessionTitle,
		Messages: []model.Message{},
	}

	s.sessions = append([]*model.ChatSession{sess}, s.sessions...)
	s.activeID = sess.ID
	s.persist(ctx)

	metrics.SessionsTotal.Inc()
	return sess.Clone()
}

// Delete removes a session. Deleting the active session activates the new
// head of the list, or nothing when the list becomes empty. Unknown ids are
// ignored and reported as false.
func (s *SessionStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		}
	}
	s.persist(ctx)
	s.mu.Unlock()

	s.logger.Info("session deleted", zap.String("session_id", id))
	s.publish(ctx, model.EventSessionsChanged, id, nil)
	return true
}

// SetActive makes id the active session. Unknown ids leave the state
// unchanged and report false.
func (s *SessionStore) SetActive(ctx context.Context, id string) bool {
	s.mu.Lock()
	if s.find(id) < 0 {
		s.mu.Unlock()
		return false
	}
	s.activeID = id
	s.persist(ctx)
	s.mu.Unlock()

	s.publish(ctx, model.EventSessionsChanged, id, nil)
	return true
}

// AppendMessage adds msg to the end of a session. It reports false, and
// does nothing, when the session does not exist.
func (s *SessionStore) AppendMessage(ctx context.Context, id string, msg model.Message) bool {
	s.mu.Lock()
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debug("append to unknown session ignored", zap.String("session_id", id))
		return false
	}
	sess := s.sessions[i]
	sess.Messages = append(sess.Messages, msg)
	s.persist(ctx)
	s.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	s.publish(ctx, model.EventMessageAppended, id, msg)
	return true
}

// Rename sets the title of a session.
func (s *SessionStore) Rename(ctx context.Context, id, title string) bool {
	s.mu.Lock()
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.sessions[i].Title = title
	s.persist(ctx)
	s.mu.Unlock()

	s.logger.Info("session renamed", zap.String("session_id", id), zap.String("title", title))
	s.publish(ctx, model.EventSessionRenamed, id, model.RenameSessionRequest{Title: title})
	return true
}

// Get returns a copy of a session.
func (s *SessionStore) Get(id string) (model.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.find(id)
	if i < 0 {
		return model.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// Active returns a copy of the active session.
func (s *SessionStore) Active() (model.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.find(s.activeID)
	if i < 0 {
		return model.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// ActiveID returns the id of the active session, or "".
func (s *SessionStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// List returns summaries of all sessions in display order.
func (s *SessionStore) List() *model.ListSessionsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]model.SessionSummary, len(s.sessions))
	for i, sess := range s.sessions {
		summaries[i] = s.summary(sess)
	}

	return &model.ListSessionsResponse{
		Sessions: summaries,
		ActiveID: s.activeID,
		Total:    len(summaries),
	}
}

// Search returns sessions whose titles fuzzily match query, best match
// first. An empty query lists every session.
func (s *SessionStore) Search(query string) *model.ListSessionsResponse {
	if query == "" {
		return s.List()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := fuzzy.FindFrom(query, titles(s.sessions))
	summaries := make([]model.SessionSummary, len(matches))
	for i, m := range matches {
		summaries[i] = s.summary(s.sessions[m.Index])
	}

	return &model.ListSessionsResponse{
		Sessions: summaries,
		ActiveID: s.activeID,
		Total:    len(summaries),
	}
}

// Snapshot returns a copy of the full store state.
func (s *SessionStore) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *SessionStore) summary(sess *model.ChatSession) model.SessionSummary {
	return model.SessionSummary{
		ID:           sess.ID,
		Title:        sess.Title,
		MessageCount: len(sess.Messages),
		Active:       sess.ID == s.activeID,
	}
}

func (s *SessionStore) find(id string) int {
	if id == "" {
		return -1
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *SessionStore) snapshot() model.SessionSnapshot {
	sessions := make([]model.ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		sessions[i] = sess.Clone()
	}
	return model.SessionSnapshot{Sessions: sessions, ActiveID: s.activeID}
}

// persist must be called with mu held so saves happen in mutation order.
func (s *SessionStore) persist(ctx context.Context) {
	if err := s.repo.Save(context.WithoutCancel(ctx), s.snapshot()); err != nil {
		s.logger.Error("failed to persist sessions", zap.Error(err))
	}
}

func (s *SessionStore) publish(ctx context.Context, typ model.EventType, sessionID string, data any) {
	ev := events.New(model.TopicSession, typ, sessionID, data)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish session event", zap.Error(err))
	}
}

// titles adapts a session list to fuzzy.Source.
type titles []*model.ChatSession

func (t titles) String(i int) string { return t[i].Title }
func (t titles) Len() int            { return len(t) }
