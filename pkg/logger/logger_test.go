package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicechat.log")

	log, err := NewWithFile("debug", path)
	require.NoError(t, err)
	log.Info("hello")
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	n := Nop()
	SetGlobal(n)
	assert.Same(t, n, Global())
}
