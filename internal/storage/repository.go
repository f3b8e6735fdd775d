package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/voicechat/internal/model"
)

// SessionRepository owns the persisted format of the session list.
type SessionRepository struct {
	kv KV
}

// NewSessionRepository creates a repository over kv.
func NewSessionRepository(kv KV) *SessionRepository {
	return &SessionRepository{kv: kv}
}

// Load reads the persisted session list and active id. A store that has
// never been written yields an empty snapshot.
func (r *SessionRepository) Load(ctx context.Context) (model.SessionSnapshot, error) {
	var snap model.SessionSnapshot

	raw, ok, err := r.kv.Get(ctx, KeySessions)
	if err != nil {
		return snap, err
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Sessions); err != nil {
			return model.SessionSnapshot{}, fmt.Errorf("failed to decode sessions: %w", err)
		}
	}

	activeID, _, err := r.kv.Get(ctx, KeyActiveSession)
	if err != nil {
		return snap, err
	}
	snap.ActiveID = activeID

	return snap, nil
}

// Save writes the full session list and active id.
func (r *SessionRepository) Save(ctx context.Context, snap model.SessionSnapshot) error {
	sessions := snap.Sessions
	if sessions == nil {
		sessions = []model.ChatSession{}
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	if err := r.kv.Set(ctx, KeySessions, string(data)); err != nil {
		return err
	}
	if snap.ActiveID == "" {
		return r.kv.Delete(ctx, KeyActiveSession)
	}
	return r.kv.Set(ctx, KeyActiveSession, snap.ActiveID)
}

// SettingsRepository persists the API credential and the selected model.
type SettingsRepository struct {
	kv     KV
	sealer *Sealer
}

// NewSettingsRepository creates a repository over kv. The credential is
// sealed with sealer when it is enabled.
func NewSettingsRepository(kv KV, sealer *Sealer) *SettingsRepository {
	return &SettingsRepository{kv: kv, sealer: sealer}
}

// Credential returns the stored credential, or "" when none is set.
func (r *SettingsRepository) Credential(ctx context.Context) (string, error) {
	raw, ok, err := r.kv.Get(ctx, KeyCredential)
	if err != nil || !ok {
		return "", err
	}
	return r.sealer.Open(raw)
}

// SetCredential stores the credential; an empty value clears it.
func (r *SettingsRepository) SetCredential(ctx context.Context, credential string) error {
	if credential == "" {
		return r.kv.Delete(ctx, KeyCredential)
	}
	sealed, err := r.sealer.Seal(credential)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, KeyCredential, sealed)
}

// Model returns the selected model id, or "" when none was chosen.
func (r *SettingsRepository) Model(ctx context.Context) (string, error) {
	value, _, err := r.kv.Get(ctx, KeyModel)
	return value, err
}

// SetModel stores the selected model id.
func (r *SettingsRepository) SetModel(ctx context.Context, modelID string) error {
	return r.kv.Set(ctx, KeyModel, modelID)
}
