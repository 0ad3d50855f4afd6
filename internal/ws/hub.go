package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// PresenceRecorder persists presence side effects of connect/disconnect.
// store.Store satisfies it.
type PresenceRecorder interface {
	TouchLastSeen(ctx context.Context, id string) error
}

// Hub maintains the presence map: user id to at most one live connection.
// It is the only process-wide mutable shared resource; all map mutation
// happens in Run, and dispatch takes the read lock.
type Hub struct {
	// Registered clients mapped by user ID, zero or one per user
	clients map[string]*Client

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	presence PresenceRecorder

	mu sync.RWMutex
}

// NewHub creates a new hub. presence may be nil in tests.
func NewHub(presence PresenceRecorder) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		presence:   presence,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	// A user holds at most one live connection; a new one replaces the old.
	if existing, ok := h.clients[client.UserID]; ok {
		close(existing.Send)
	}
	h.clients[client.UserID] = client
	h.mu.Unlock()

	h.touch(client.UserID)
	h.broadcastOnlineUsers()
	log.Printf("[ws] client connected: %s", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.UserID]
	if ok && current == client {
		delete(h.clients, client.UserID)
		close(client.Send)
	}
	h.mu.Unlock()
	if !ok || current != client {
		return
	}

	h.touch(client.UserID)
	h.broadcastOnlineUsers()
	log.Printf("[ws] client disconnected: %s", client.UserID)
}

func (h *Hub) touch(userID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.TouchLastSeen(context.Background(), userID); err != nil {
		log.Printf("[ws] failed to update last seen for %s: %v", userID, err)
	}
}

// EmitToUser delivers an event to the user's live connection, if any.
// Offline users are silently skipped: the store is the source of truth and
// a missed event is picked up by the next paginated read.
func (h *Hub) EmitToUser(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[userID]; ok {
		select {
		case client.Send <- data:
		default:
			log.Printf("[ws] dropped slow client for user %s", userID)
		}
	}
}

// EmitToUsers delivers the same event to each listed user's connection.
func (h *Hub) EmitToUsers(userIDs []string, event Event) {
	for _, id := range userIDs {
		h.EmitToUser(id, event)
	}
}

// broadcastOnlineUsers pushes the current online id list to every client.
func (h *Hub) broadcastOnlineUsers() {
	data, err := json.Marshal(Event{Type: EventOnlineUsers, Payload: h.OnlineUsers()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			log.Printf("[ws] dropped slow client for user %s", id)
		}
	}
}

// IsUserOnline checks if a user is currently connected.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the ids of currently connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// OnlineCount returns the number of currently connected clients.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
