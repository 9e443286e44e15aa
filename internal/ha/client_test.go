package ha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path    string
	auth    string
	payload map[string]any
}

func newTestServer(t *testing.T, state string, calls *[]recordedCall) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"state": state})
			return
		}
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		*calls = append(*calls, recordedCall{
			path:    r.URL.Path,
			auth:    r.Header.Get("Authorization"),
			payload: payload,
		})
		w.Write([]byte("[]"))
	}))
}

func TestClientTurnOnCallsSwitchService(t *testing.T) {
	var calls []recordedCall
	srv := newTestServer(t, "", &calls)
	defer srv.Close()

	c := NewClient(srv.URL, "token123", time.Second)
	require.NoError(t, c.TurnOn(context.Background(), "switch.machine_1"))

	require.Len(t, calls, 1)
	assert.Equal(t, "/api/services/switch/turn_on", calls[0].path)
	assert.Equal(t, "Bearer token123", calls[0].auth)
	assert.Equal(t, "switch.machine_1", calls[0].payload["entity_id"])
}

func TestClientState(t *testing.T) {
	srv := newTestServer(t, "on", nil)
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	state, err := c.State(context.Background(), "binary_sensor.machine_1_busy")
	require.NoError(t, err)
	assert.Equal(t, "on", state)
}

func TestClientStateEmptyIsUnknown(t *testing.T) {
	srv := newTestServer(t, "", nil)
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	state, err := c.State(context.Background(), "binary_sensor.machine_9_busy")
	require.NoError(t, err)
	assert.Equal(t, "unknown", state)
}

func TestClientCallServiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", time.Second)
	err := c.TurnOff(context.Background(), "switch.machine_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClientSpeakModernAndLegacyPayloads(t *testing.T) {
	var calls []recordedCall
	srv := newTestServer(t, "", &calls)
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)

	require.NoError(t, c.Speak(context.Background(), "hello", "", "media_player.hall"))
	require.NoError(t, c.Speak(context.Background(), "hello", "tts.google_translate_say", "media_player.hall"))

	require.Len(t, calls, 2)
	assert.Equal(t, "/api/services/tts/speak", calls[0].path)
	assert.Equal(t, "media_player.hall", calls[0].payload["media_player_entity_id"])

	assert.Equal(t, "/api/services/tts/google_translate_say", calls[1].path)
	assert.Equal(t, "media_player.hall", calls[1].payload["entity_id"])
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient("", "", time.Second)
	assert.False(t, c.Configured())
	assert.Error(t, c.TurnOn(context.Background(), "switch.machine_1"))
	_, err := c.State(context.Background(), "binary_sensor.x")
	assert.Error(t, err)
}
