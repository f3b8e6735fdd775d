package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "voicechat.index.index_status", EventSubject(model.TopicIndex, model.EventIndexStatus))
	assert.Equal(t, "voicechat.voice.speak", EventSubject(model.TopicVoice, model.EventSpeak))
}

func TestConnectOptions(t *testing.T) {
	log := logger.Nop()

	base := len(connectOptions(Config{URL: "nats://localhost:4222"}, log))
	assert.Equal(t, base+1, len(connectOptions(Config{Token: "t"}, log)))
	assert.Equal(t, base+1, len(connectOptions(Config{CAFile: "ca.pem"}, log)))
	assert.Equal(t, base, len(connectOptions(Config{CertFile: "cert.pem"}, log)), "client cert needs both files")
	assert.Equal(t, base+2, len(connectOptions(Config{CertFile: "cert.pem", KeyFile: "key.pem", Token: "t"}, log)))
}

func TestConnectUnreachableBrokerDoesNotFail(t *testing.T) {
	client, err := Connect(context.Background(), Config{URL: "nats://127.0.0.1:1"}, logger.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.IsConnected())
}
