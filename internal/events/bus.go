// Package events distributes state-change events from the chat components to
// the presentation layer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// busTopic is the single watermill topic all events travel on; subscribers
// filter by model.Event.Topic.
const busTopic = "voicechat.events"

// Publisher publishes state-change events.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

// Mirror receives a copy of every published event, e.g. an external broker.
type Mirror interface {
	PublishEvent(ctx context.Context, event *model.Event) error
}

// New builds an event with a fresh id. data is JSON-encoded; nil is allowed.
func New(topic model.Topic, typ model.EventType, sessionID string, data any) *model.Event {
	ev := &model.Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Topic:     topic,
		Type:      typ,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Bus is an in-process publish/subscribe hub. Events from one publisher
// reach every subscriber in publish order: Publish returns only after each
// subscriber has taken the event.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *logger.Logger

	mu      sync.RWMutex
	mirrors []Mirror
}

// NewBus creates an in-process bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		logger: log,
	}
}

// AddMirror forwards every subsequent event to m as well.
func (b *Bus) AddMirror(m Mirror) {
	b.mu.Lock()
	b.mirrors = append(b.mirrors, m)
	b.mu.Unlock()
}

// Publish sends event to all current subscribers and mirrors. Mirror
// failures are logged, not returned.
func (b *Bus) Publish(ctx context.Context, event *model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	if err := b.pubsub.Publish(busTopic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.mu.RLock()
	mirrors := b.mirrors
	b.mu.RUnlock()

	for _, m := range mirrors {
		if err := m.PublishEvent(ctx, event); err != nil {
			b.logger.Warn("failed to mirror event",
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}

	return nil
}

// Subscribe returns a channel of events published after the call, in
// publish order. A subscriber that stops reading holds up publishers until
// ctx is done. The channel is closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *model.Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, busTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *model.Event, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var event model.Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops the bus and closes all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, *model.Event) error { return nil }

// Recorder is a Publisher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *Recorder) Publish(_ context.Context, event *model.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Events returns the recorded events of the given type, or all when typ is "".
func (r *Recorder) Events(typ model.EventType) []*model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Event
	for _, ev := range r.events {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
