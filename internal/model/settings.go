package model

// Settings is the user-visible configuration of the client.
type Settings struct {
	Model         string `json:"model"`
	Muted         bool   `json:"muted"`
	HasCredential bool   `json:"has_credential"`
	Provider      string `json:"provider"`
}

// UpdateSettingsRequest changes any subset of the settings. An empty
// credential clears the stored one.
type UpdateSettingsRequest struct {
	Credential *string `json:"api_key,omitempty"`
	Model      *string `json:"model,omitempty"`
	Muted      *bool   `json:"muted,omitempty"`
}

// Capabilities reports which voice features the host supports.
type Capabilities struct {
	SpeechRecognition bool `json:"speech_recognition"`
	SpeechSynthesis   bool `json:"speech_synthesis"`
	AudioUpload       bool `json:"audio_upload"`
}
