package ha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "ws://ha.local:8123/api/websocket", deriveWSURL("http://ha.local:8123/"))
	assert.Equal(t, "wss://ha.example.com/api/websocket", deriveWSURL("https://ha.example.com"))
	assert.Equal(t, "ws://already/api/websocket", deriveWSURL("ws://already/api/websocket"))
}

// wsTestServer speaks just enough of the Home Assistant websocket
// protocol to drive the listener through auth and one event.
func wsTestServer(t *testing.T, token string, events []map[string]any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth_required"}))

		var auth struct {
			Type        string `json:"type"`
			AccessToken string `json:"access_token"`
		}
		require.NoError(t, conn.ReadJSON(&auth))
		if auth.AccessToken != token {
			conn.WriteJSON(map[string]any{"type": "auth_invalid"})
			return
		}
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth_ok"}))

		var sub struct {
			ID        int    `json:"id"`
			Type      string `json:"type"`
			EventType string `json:"event_type"`
		}
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe_events", sub.Type)
		require.NoError(t, conn.WriteJSON(map[string]any{"id": sub.ID, "type": "result", "success": true}))

		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(map[string]any{
				"id": sub.ID, "type": "event",
				"event": map[string]any{"data": ev},
			}))
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
}

func TestEventListenerReceivesKeypadEvents(t *testing.T) {
	srv := wsTestServer(t, "secret", []map[string]any{
		{"key_code": 79},
		{"key_name": "KEY_ENTER"},
	})
	defer srv.Close()

	got := make(chan KeypadEvent, 4)
	l := NewEventListener(srv.URL, "secret", "keyboard_remote_command_received", func(ev KeypadEvent) {
		got <- ev
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	select {
	case ev := <-got:
		require.NotNil(t, ev.KeyCode)
		assert.Equal(t, 79, *ev.KeyCode)
	case <-time.After(2 * time.Second):
		t.Fatal("no keypad event received")
	}

	select {
	case ev := <-got:
		assert.Equal(t, "KEY_ENTER", ev.KeyName)
	case <-time.After(2 * time.Second):
		t.Fatal("second keypad event not received")
	}
}

func TestEventListenerAuthRejected(t *testing.T) {
	srv := wsTestServer(t, "secret", nil)
	defer srv.Close()

	l := NewEventListener(srv.URL, "wrong", "keyboard_remote_command_received", func(KeypadEvent) {})
	err := l.listen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth rejected")
}
