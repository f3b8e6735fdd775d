package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.RetrievalTopK)
	assert.True(t, cfg.SpeechRecognition)
}

func TestLoadFileOverlayAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicechat.toml")
	content := `
log_level = "debug"

[llm]
default_model = "gpt-4o-mini"
provider = "anthropic"

[rag]
chunk_size = 500

[voice]
recognition = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("RAG_CHUNK_OVERLAP", "50")
	t.Setenv("LLM_REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.SpeechRecognition)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestTypedEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getIntEnv("X_INT", 7))
	assert.True(t, getBoolEnv("X_BOOL", true))
	assert.Equal(t, time.Second, getDurationEnv("X_DUR", time.Second))
}

func TestListEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://localhost:3000, ,https://chat.example.com ")
	assert.Equal(t, []string{"http://localhost:3000", "https://chat.example.com"}, getListEnv("CORS_ORIGINS"))

	t.Setenv("CORS_ORIGINS", "")
	assert.Nil(t, getListEnv("CORS_ORIGINS"))
}
