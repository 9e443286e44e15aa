package ha

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// KeypadEvent carries the key fields a remote keyboard event may
// populate. Integrations disagree on which one they send.
type KeypadEvent struct {
	KeyCode *int   `json:"key_code"`
	Key     string `json:"key"`
	KeyName string `json:"key_name"`
}

// KeypadHandler receives each keyboard event from the stream.
type KeypadHandler func(KeypadEvent)

// EventListener subscribes to a Home Assistant event type over the
// websocket API and feeds keyboard events to a handler.
type EventListener struct {
	url       string
	token     string
	eventType string
	handler   KeypadHandler

	dialer  *websocket.Dialer
	backoff time.Duration
}

// NewEventListener builds a listener for the given base URL. An http(s)
// URL has the websocket endpoint derived from it; a ws(s) URL is dialed
// as given.
func NewEventListener(baseURL, token, eventType string, handler KeypadHandler) *EventListener {
	return &EventListener{
		url:       deriveWSURL(baseURL),
		token:     token,
		eventType: eventType,
		handler:   handler,
		dialer:    &websocket.Dialer{HandshakeTimeout: 8 * time.Second},
		backoff:   5 * time.Second,
	}
}

func deriveWSURL(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://") + "/api/websocket"
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://") + "/api/websocket"
	}
	return u
}

// Run connects and consumes events until the context is cancelled,
// reconnecting after transient failures.
func (l *EventListener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			log.Printf("ha events: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

type wsMessage struct {
	ID      int    `json:"id,omitempty"`
	Type    string `json:"type"`
	Success *bool  `json:"success,omitempty"`
	Event   *struct {
		Data KeypadEvent `json:"data"`
	} `json:"event,omitempty"`
}

func (l *EventListener) listen(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	defer conn.Close()

	// Server closes on ctx cancel via this watcher; the blocked read
	// below then returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := l.authenticate(conn); err != nil {
		return err
	}
	if err := conn.WriteJSON(map[string]any{"id": 1, "type": "subscribe_events", "event_type": l.eventType}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("ha events: subscribed to %s", l.eventType)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if msg.Type != "event" || msg.Event == nil {
			continue
		}
		l.handler(msg.Event.Data)
	}
}

func (l *EventListener) authenticate(conn *websocket.Conn) error {
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("auth hello: %w", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": l.token}); err != nil {
		return fmt.Errorf("auth send: %w", err)
	}
	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		return fmt.Errorf("auth rejected: %s", reply.Type)
	}
	return nil
}
