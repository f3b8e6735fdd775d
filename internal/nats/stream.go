package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/voicechat/internal/model"
)

const (
	// StreamName is the name of the event stream.
	StreamName = "VOICECHAT"

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix = "voicechat"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the event stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.client.JetStream().CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    256 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat client state-change events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(topic model.Topic, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, topic, eventType)
}

// PublishEvent queues event on the stream without waiting for the broker's
// ack, so a slow or absent broker does not hold up the in-process bus. Ack
// failures are logged by the client.
func (m *StreamManager) PublishEvent(_ context.Context, event *model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(event.Topic, event.Type)
	if _, err := m.client.JetStream().PublishAsync(subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
