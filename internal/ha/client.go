// Package ha is a lightweight Home Assistant HTTP client covering the
// service calls and entity state reads the charge flow needs, plus the
// WebSocket keypad event stream.
package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the Home Assistant REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the given base URL and long-lived token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has both an endpoint and a token.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != ""
}

// CallService invokes POST /api/services/{domain}/{service}.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	if !c.Configured() {
		return fmt.Errorf("ha client not configured")
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call %s.%s: unexpected status %d", domain, service, resp.StatusCode)
	}
	return nil
}

// State returns the state string of an entity, e.g. "on" / "off".
func (c *Client) State(ctx context.Context, entityID string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("ha client not configured")
	}
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("state %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("state %s: unexpected status %d", entityID, resp.StatusCode)
	}

	var payload struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("state %s: %w", entityID, err)
	}
	if payload.State == "" {
		return "unknown", nil
	}
	return payload.State, nil
}

// TurnOn switches a switch entity on.
func (c *Client) TurnOn(ctx context.Context, entityID string) error {
	return c.CallService(ctx, "switch", "turn_on", map[string]any{"entity_id": entityID})
}

// TurnOff switches a switch entity off.
func (c *Client) TurnOff(ctx context.Context, entityID string) error {
	return c.CallService(ctx, "switch", "turn_off", map[string]any{"entity_id": entityID})
}

// Speak plays a TTS message. It accepts both the new "tts.speak" service
// (media_player_entity_id payload) and legacy "tts.*_say" services
// (entity_id payload).
func (c *Client) Speak(ctx context.Context, message, ttsService, mediaPlayer string) error {
	domain, service := "tts", "speak"
	if ttsService != "" {
		if i := strings.IndexByte(ttsService, '.'); i > 0 {
			domain, service = ttsService[:i], ttsService[i+1:]
		} else {
			service = ttsService
		}
	}

	payload := map[string]any{"message": message}
	if domain == "tts" && service == "speak" {
		if mediaPlayer != "" {
			payload["media_player_entity_id"] = mediaPlayer
		}
	} else if mediaPlayer != "" {
		payload["entity_id"] = mediaPlayer
	}
	return c.CallService(ctx, domain, service, payload)
}
