package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"sapa/internal/ws"

	"github.com/gorilla/websocket"
)

// Event is the wire envelope as received; payload decoding is deferred
// until the type is known.
type Event struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Session is one live socket connection. Incoming events are dispatched
// into the Chat from a single read loop.
type Session struct {
	conn *websocket.Conn
	chat *Chat

	writeMu sync.Mutex
	done    chan struct{}
}

// Connect dials the socket endpoint, authenticating with the cookie jar
// the REST client logged in with, and starts the event loop.
func Connect(ctx context.Context, baseURL string, jar http.CookieJar, chat *Chat) (*Session, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{Jar: jar}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("socket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}

	s := &Session{
		conn: conn,
		chat: chat,
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// ConnectREST is a convenience for callers holding a *restClient.
func ConnectREST(ctx context.Context, baseURL string, rest *restClient, chat *Chat) (*Session, error) {
	return Connect(ctx, baseURL, rest.http.Jar, chat)
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		var evt Event
		if err := s.conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[socket] read error: %v", err)
			}
			return
		}
		s.chat.HandleEvent(evt)
	}
}

// SendTyping emits a typing or stopTyping indicator for the receiver.
// Pair it with a TypingNotifier to get the debounce behavior.
func (s *Session) SendTyping(receiverID string, stop bool) error {
	evtType := ws.EventTyping
	if stop {
		evtType = ws.EventStopTyping
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(ws.Event{
		Type:    evtType,
		Payload: ws.TypingPayload{ReceiverID: receiverID},
	})
}

// Close shuts the connection down and waits for the read loop to exit.
func (s *Session) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

// Done is closed when the read loop has exited (connection lost or closed).
func (s *Session) Done() <-chan struct{} {
	return s.done
}
