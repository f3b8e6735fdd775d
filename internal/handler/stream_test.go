package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/voicechat/internal/model"
)

type sseEvent struct {
	name string
	data string
}

// openStream connects to the event feed and returns its lines.
func openStream(t *testing.T, ctx context.Context, srv *httptest.Server) <-chan string {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// readEvent returns the next SSE event on the stream.
func readEvent(t *testing.T, lines <-chan string) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)

	var ev sseEvent
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed")
			if name, found := strings.CutPrefix(line, "event: "); found {
				ev.name = name
			}
			if data, found := strings.CutPrefix(line, "data: "); found {
				ev.data = data
			}
			if line == "" && ev.name != "" {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return ev
		}
	}
}

func engineState(t *testing.T, ev sseEvent) string {
	t.Helper()
	var event model.Event
	require.NoError(t, json.Unmarshal([]byte(ev.data), &event))
	var state model.EngineStateEvent
	require.NoError(t, json.Unmarshal(event.Data, &state))
	return state.State
}

// readUntilIdle collects event names up to and including the engine
// returning to idle. Title renames run in the background and are skipped.
func readUntilIdle(t *testing.T, lines <-chan string) []string {
	t.Helper()
	var names []string
	for i := 0; i < 50; i++ {
		ev := readEvent(t, lines)
		if ev.name == string(model.EventSessionRenamed) {
			continue
		}
		if ev.name == string(model.EventEngineState) {
			state := engineState(t, ev)
			names = append(names, ev.name+":"+state)
			if state == "idle" {
				return names
			}
			continue
		}
		names = append(names, ev.name)
	}
	t.Fatal("engine never returned to idle")
	return nil
}

func TestStreamHandler_Events(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := openStream(t, ctx, srv)
	assert.Equal(t, "snapshot", readEvent(t, lines).name)

	createResp, err := srv.Client().Post(srv.URL+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	createResp.Body.Close()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	assert.Equal(t, "sessions_changed", readEvent(t, lines).name)
}

func TestStreamHandler_SendEventsArriveInOrder(t *testing.T) {
	app := newTestApp(t, allVoice(), nil)
	require.NoError(t, app.settings.SetCredential(context.Background(), "sk-test"))

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := openStream(t, ctx, srv)
	require.Equal(t, "snapshot", readEvent(t, lines).name)

	send := func(text string) {
		body := strings.NewReader(`{"content":"` + text + `"}`)
		resp, err := srv.Client().Post(srv.URL+"/api/v1/chat", "application/json", body)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	send("hello")
	assert.Equal(t, []string{
		"engine_state:sending",
		"message_appended",
		"message_appended",
		"speak",
		"engine_state:idle",
	}, readUntilIdle(t, lines))

	send("again")
	assert.Equal(t, []string{
		"engine_state:sending",
		"message_appended",
		"message_appended",
		"speak_cancel",
		"speak",
		"engine_state:idle",
	}, readUntilIdle(t, lines))
}
