package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// ErrInvalidModel is returned when a blank model id is selected.
var ErrInvalidModel = errors.New("model id must not be blank")

// SettingsRepository persists the credential and model selection.
type SettingsRepository interface {
	Credential(ctx context.Context) (string, error)
	SetCredential(ctx context.Context, credential string) error
	Model(ctx context.Context) (string, error)
	SetModel(ctx context.Context, modelID string) error
}

// Settings holds the API credential and the selected chat model. Values are
// cached in memory and written through to the repository.
type Settings struct {
	repo         SettingsRepository
	defaultModel string
	logger       *logger.Logger

	mu         sync.RWMutex
	credential string
	model      string
}

// NewSettings loads stored settings. fallbackCredential is used, without
// being persisted, when no credential has been stored.
func NewSettings(ctx context.Context, repo SettingsRepository, defaultModel, fallbackCredential string, log *logger.Logger) *Settings {
	s := &Settings{
		repo:         repo,
		defaultModel: defaultModel,
		logger:       log.Named("settings"),
	}

	credential, err := repo.Credential(ctx)
	if err != nil {
		s.logger.Warn("failed to load stored credential", zap.Error(err))
	}
	if credential == "" {
		credential = fallbackCredential
	}
	s.credential = credential

	modelID, err := repo.Model(ctx)
	if err != nil {
		s.logger.Warn("failed to load selected model", zap.Error(err))
	}
	s.model = modelID

	return s
}

// Credential returns the current API credential, or "".
func (s *Settings) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// HasCredential reports whether a credential is configured.
func (s *Settings) HasCredential() bool {
	return s.Credential() != ""
}

// SetCredential stores a credential. An empty value clears it.
func (s *Settings) SetCredential(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if err := s.repo.SetCredential(ctx, credential); err != nil {
		return err
	}

	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()

	s.logger.Info("credential updated", zap.Bool("set", credential != ""))
	return nil
}

// Model returns the selected chat model, or the default when none was
// chosen.
func (s *Settings) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == "" {
		return s.defaultModel
	}
	return s.model
}

// SetModel selects the chat model used for replies.
func (s *Settings) SetModel(ctx context.Context, modelID string) error {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return ErrInvalidModel
	}
	if err := s.repo.SetModel(ctx, modelID); err != nil {
		return err
	}

	s.mu.Lock()
	s.model = modelID
	s.mu.Unlock()

	s.logger.Info("model selected", zap.String("model", modelID))
	return nil
}
