package model

import (
	"encoding/json"
	"time"
)

// Topic groups state-change events by the component that produced them.
type Topic string

const (
	TopicSession     Topic = "session"
	TopicDocuments   Topic = "documents"
	TopicIndex       Topic = "index"
	TopicEngine      Topic = "engine"
	TopicVoice       Topic = "voice"
	TopicWalkthrough Topic = "walkthrough"
)

// EventType names a state change.
type EventType string

const (
	EventSessionsChanged   EventType = "sessions_changed"
	EventMessageAppended   EventType = "message_appended"
	EventSessionRenamed    EventType = "session_renamed"
	EventDocumentsChanged  EventType = "documents_changed"
	EventIndexStatus       EventType = "index_status"
	EventEngineState       EventType = "engine_state"
	EventCredentialNeeded  EventType = "credential_required"
	EventTranscript        EventType = "transcript"
	EventListening         EventType = "listening"
	EventSpeak             EventType = "speak"
	EventSpeakCancel       EventType = "speak_cancel"
	EventWalkthroughStep   EventType = "walkthrough_step"
	EventWalkthroughClosed EventType = "walkthrough_closed"
)

// Event is a state change pushed to the presentation layer.
type Event struct {
	ID        string          `json:"id"`
	Topic     Topic           `json:"topic"`
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EngineStateEvent is the payload of EventEngineState.
type EngineStateEvent struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// TranscriptEvent is the payload of EventTranscript.
type TranscriptEvent struct {
	Utterance string `json:"utterance"`
	Interim   string `json:"interim,omitempty"`
}

// ListeningEvent is the payload of EventListening.
type ListeningEvent struct {
	Listening bool   `json:"listening"`
	Error     string `json:"error,omitempty"`
}

// SpeakEvent is the payload of EventSpeak and EventSpeakCancel.
type SpeakEvent struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text,omitempty"`
}

// ErrorEvent represents an error pushed over the event stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
