package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// Speaker asks the browser to read text aloud. At most one utterance plays
// at a time; a new one cancels the current.
type Speaker struct {
	synthesis Capability
	publisher events.Publisher
	logger    *logger.Logger

	mu      sync.Mutex
	muted   bool
	current string
}

// NewSpeaker creates a speaker.
func NewSpeaker(synthesis Capability, muted bool, publisher events.Publisher, log *logger.Logger) *Speaker {
	return &Speaker{
		synthesis: synthesis,
		muted:     muted,
		publisher: publisher,
		logger:    log.Named("speaker"),
	}
}

// Speak starts a new utterance, cancelling any in progress. Nothing is
// spoken while muted or when synthesis is unsupported.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" || !s.synthesis.Supported() {
		return
	}

	s.mu.Lock()
	if s.muted {
		s.mu.Unlock()
		return
	}
	previous := s.current
	s.current = uuid.NewString()
	id := s.current
	s.mu.Unlock()

	if previous != "" {
		s.publish(ctx, model.EventSpeakCancel, model.SpeakEvent{UtteranceID: previous})
	}
	s.publish(ctx, model.EventSpeak, model.SpeakEvent{UtteranceID: id, Text: text})
}

// Cancel stops the current utterance.
func (s *Speaker) Cancel(ctx context.Context) {
	s.mu.Lock()
	id := s.current
	s.current = ""
	s.mu.Unlock()

	if id != "" {
		s.publish(ctx, model.EventSpeakCancel, model.SpeakEvent{UtteranceID: id})
	}
}

// Finished records that the browser finished utterance id.
func (s *Speaker) Finished(id string) {
	s.mu.Lock()
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
}

// Current returns the id of the utterance in progress, or "".
func (s *Speaker) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetMuted turns speech output off or on. Muting cancels the current
// utterance.
func (s *Speaker) SetMuted(ctx context.Context, muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()

	if muted {
		s.Cancel(ctx)
	}
}

// Muted reports whether speech output is off.
func (s *Speaker) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Speaker) publish(ctx context.Context, typ model.EventType, data model.SpeakEvent) {
	if err := s.publisher.Publish(ctx, events.New(model.TopicVoice, typ, "", data)); err != nil {
		s.logger.Warn("failed to publish speech event", zap.Error(err))
	}
}
