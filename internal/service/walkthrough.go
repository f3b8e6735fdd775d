package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/events"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// DefaultWalkthrough is the guided tour shown to first-time users.
var DefaultWalkthrough = []model.WalkthroughStep{
	{
		ID:    "welcome",
		Title: "Welcome",
		Body:  "Chat with a language model, ground answers in your own documents and talk instead of typing.",
	},
	{
		ID:     "api-key",
		Title:  "Add your API key",
		Body:   "Open settings and paste your API key. It is stored locally and used only for requests you make.",
		Target: "settings",
	},
	{
		ID:     "sessions",
		Title:  "Conversations",
		Body:   "Each conversation is kept in the sidebar. New chats are titled automatically after your first message.",
		Target: "sidebar",
	},
	{
		ID:     "documents",
		Title:  "Upload documents",
		Body:   "Upload text or HTML files. While documents are loaded, answers are based on their content.",
		Target: "documents",
	},
	{
		ID:     "voice",
		Title:  "Talk to it",
		Body:   "Press the microphone and speak. Say \"send\" at the end of a sentence to submit it. Replies are read aloud unless muted.",
		Target: "microphone",
	},
}

// Walkthrough steps through a fixed product tour.
type Walkthrough struct {
	steps     []model.WalkthroughStep
	publisher events.Publisher
	logger    *logger.Logger

	mu     sync.Mutex
	active bool
	index  int
}

// NewWalkthrough creates a tour over steps.
func NewWalkthrough(steps []model.WalkthroughStep, publisher events.Publisher, log *logger.Logger) *Walkthrough {
	return &Walkthrough{
		steps:     steps,
		publisher: publisher,
		logger:    log.Named("walkthrough"),
	}
}

// Start opens the tour at its first step.
func (w *Walkthrough) Start(ctx context.Context) model.WalkthroughState {
	w.mu.Lock()
	w.active = len(w.steps) > 0
	w.index = 0
	state := w.state()
	w.mu.Unlock()

	w.publish(ctx, state)
	return state
}

// Next advances the tour. Advancing past the last step closes it.
func (w *Walkthrough) Next(ctx context.Context) model.WalkthroughState {
	w.mu.Lock()
	if w.active {
		if w.index+1 < len(w.steps) {
			w.index++
		} else {
			w.active = false
			w.index = 0
		}
	}
	state := w.state()
	w.mu.Unlock()

	w.publish(ctx, state)
	return state
}

// Back returns to the previous step. It stays on the first step.
func (w *Walkthrough) Back(ctx context.Context) model.WalkthroughState {
	w.mu.Lock()
	if w.active && w.index > 0 {
		w.index--
	}
	state := w.state()
	w.mu.Unlock()

	w.publish(ctx, state)
	return state
}

// Skip closes the tour.
func (w *Walkthrough) Skip(ctx context.Context) model.WalkthroughState {
	w.mu.Lock()
	w.active = false
	w.index = 0
	state := w.state()
	w.mu.Unlock()

	w.publish(ctx, state)
	return state
}

// State returns the current tour position.
func (w *Walkthrough) State() model.WalkthroughState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state()
}

func (w *Walkthrough) state() model.WalkthroughState {
	state := model.WalkthroughState{Active: w.active, Index: w.index, Total: len(w.steps)}
	if w.active {
		step := w.steps[w.index]
		state.Step = &step
	}
	return state
}

func (w *Walkthrough) publish(ctx context.Context, state model.WalkthroughState) {
	typ := model.EventWalkthroughStep
	if !state.Active {
		typ = model.EventWalkthroughClosed
	}
	if err := w.publisher.Publish(ctx, events.New(model.TopicWalkthrough, typ, "", state)); err != nil {
		w.logger.Warn("failed to publish walkthrough event", zap.Error(err))
	}
}
