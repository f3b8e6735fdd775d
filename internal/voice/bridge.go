package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/llm"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

var (
	// ErrNotListening is returned for transcripts received while stopped.
	ErrNotListening = errors.New("not listening")
	// ErrNoCredential is returned when audio arrives without an API key.
	ErrNoCredential = errors.New("API key required for transcription")
)

// sendCommand matches the spoken submit word at the end of an utterance.
var sendCommand = regexp.MustCompile(`(?i)\s(send|sent)$`)

// Submitter receives utterances as if they had been typed.
type Submitter interface {
	Send(ctx context.Context, text string) (*model.SendMessageResponse, error)
}

// TranscriberFactory creates speech-to-text clients.
type TranscriberFactory interface {
	Transcriber(apiKey string) (llm.Transcriber, error)
}

// CredentialSource provides the current API credential.
type CredentialSource interface {
	Credential() string
}

// Transcript is one recognition result.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Bridge accumulates recognition results into an utterance and submits it
// when it ends with the spoken send command.
type Bridge struct {
	submitter    Submitter
	recognition  Capability
	transcribers TranscriberFactory
	credentials  CredentialSource
	publisher    events.Publisher
	logger       *logger.Logger

	mu        sync.Mutex
	listening bool
	utterance string
	interim   string
}

// NewBridge creates a bridge. transcribers may be nil when server-side
// transcription is unavailable.
func NewBridge(
	submitter Submitter,
	recognition Capability,
	transcribers TranscriberFactory,
	credentials CredentialSource,
	publisher events.Publisher,
	log *logger.Logger,
) *Bridge {
	return &Bridge{
		submitter:    submitter,
		recognition:  recognition,
		transcribers: transcribers,
		credentials:  credentials,
		publisher:    publisher,
		logger:       log.Named("voice"),
	}
}

// Start begins listening.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.recognition.Require(); err != nil {
		return err
	}

	b.mu.Lock()
	b.listening = true
	b.utterance = ""
	b.interim = ""
	b.mu.Unlock()

	b.publish(ctx, model.EventListening, model.ListeningEvent{Listening: true})
	return nil
}

// Stop ends listening and discards any partial utterance.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	wasListening := b.listening
	b.listening = false
	b.utterance = ""
	b.interim = ""
	b.mu.Unlock()

	if wasListening {
		b.publish(ctx, model.EventListening, model.ListeningEvent{Listening: false})
	}
}

// Fail ends listening because recognition reported an error.
func (b *Bridge) Fail(ctx context.Context, cause error) {
	b.mu.Lock()
	b.listening = false
	b.utterance = ""
	b.interim = ""
	b.mu.Unlock()

	b.logger.Warn("speech recognition failed", zap.Error(cause))
	b.publish(ctx, model.EventListening, model.ListeningEvent{Listening: false, Error: cause.Error()})
}

// Listening reports whether the bridge accepts transcripts.
func (b *Bridge) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// Accept handles a recognition result. Interim text only updates the live
// transcript. A final result is appended to the utterance; when the
// utterance then ends with "send" or "sent" the command word is removed and
// the rest is submitted. The returned text is what was submitted, if
// anything.
func (b *Bridge) Accept(ctx context.Context, t Transcript) (string, error) {
	b.mu.Lock()
	if !b.listening {
		b.mu.Unlock()
		return "", ErrNotListening
	}

	if !t.Final {
		b.interim = t.Text
		live := model.TranscriptEvent{Utterance: b.utterance, Interim: b.interim}
		b.mu.Unlock()

		b.publish(ctx, model.EventTranscript, live)
		return "", nil
	}

	b.interim = ""
	b.utterance = joinUtterance(b.utterance, t.Text)

	var submit string
	matched := false
	trimmed := strings.TrimRightFunc(b.utterance, unicode.IsSpace)
	if sendCommand.MatchString(trimmed) {
		matched = true
		submit = strings.TrimSpace(sendCommand.ReplaceAllString(trimmed, ""))
		b.utterance = ""
	}
	live := model.TranscriptEvent{Utterance: b.utterance}
	b.mu.Unlock()

	b.publish(ctx, model.EventTranscript, live)

	if !matched || submit == "" {
		return "", nil
	}

	b.logger.Debug("voice command submitted", zap.Int("length", len(submit)))
	if _, err := b.submitter.Send(ctx, submit); err != nil {
		return submit, err
	}
	return submit, nil
}

// AcceptAudio transcribes recorded speech and handles the text as a final
// recognition result.
func (b *Bridge) AcceptAudio(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if b.transcribers == nil {
		return "", Unsupported{Feature: "audio transcription"}.Require()
	}
	if !b.Listening() {
		return "", ErrNotListening
	}

	credential := b.credentials.Credential()
	if credential == "" {
		return "", ErrNoCredential
	}

	transcriber, err := b.transcribers.Transcriber(credential)
	if err != nil {
		return "", fmt.Errorf("failed to create transcriber: %w", err)
	}

	text, err := transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return b.Accept(ctx, Transcript{Text: text, Final: true})
}

func joinUtterance(buffer, text string) string {
	if buffer == "" {
		return text
	}
	if text == "" || unicode.IsSpace(rune(text[0])) || strings.HasSuffix(buffer, " ") {
		return buffer + text
	}
	return buffer + " " + text
}

func (b *Bridge) publish(ctx context.Context, typ model.EventType, data any) {
	if err := b.publisher.Publish(ctx, events.New(model.TopicVoice, typ, "", data)); err != nil {
		b.logger.Warn("failed to publish voice event", zap.Error(err))
	}
}
