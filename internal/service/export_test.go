package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/voicechat/internal/model"
)

func exportFixture() model.ChatSession {
	return model.ChatSession{
		ID:    "0190f3a4-0000-7000-8000-000000000001",
		Title: "Weather",
		Messages: []model.Message{
			model.NewUserMessage("What is the weather?"),
			model.NewAssistantMessage("Sunny."),
		},
	}
}

func TestExportSession(t *testing.T) {
	sess := exportFixture()

	t.Run("json", func(t *testing.T) {
		out, err := ExportSession(sess, "json")
		require.NoError(t, err)
		assert.Equal(t, "application/json", out.ContentType)

		var got model.ChatSession
		require.NoError(t, json.Unmarshal(out.Data, &got))
		assert.Equal(t, sess, got)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := ExportSession(sess, "YAML")
		require.NoError(t, err)
		assert.Equal(t, "yaml", out.Extension)

		var got model.ChatSession
		require.NoError(t, yaml.Unmarshal(out.Data, &got))
		assert.Equal(t, sess, got)
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := ExportSession(sess, "md")
		require.NoError(t, err)
		assert.Equal(t, "# Weather\n\n## You\n\nWhat is the weather?\n\n## Assistant\n\nSunny.\n", string(out.Data))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ExportSession(sess, "pdf")
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})
}
