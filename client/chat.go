package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"sapa/internal/models"
	"sapa/internal/ws"

	"github.com/google/uuid"
)

var (
	// ErrEmptyMessage is returned before any optimistic insert happens.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrNoConversation is returned when sending without a selected partner.
	ErrNoConversation = errors.New("no conversation selected")
)

// DefaultPageLimit is the page size used for conversation reads.
const DefaultPageLimit = 50

// Chat owns the consumer-side state of the active conversation: the
// timeline view, provisional sends awaiting confirmation, per-partner
// unseen counters, the partner's typing flag and the online id set. All
// state is guarded by one mutex; live-event callbacks and API calls may
// interleave freely.
type Chat struct {
	mu sync.Mutex

	api    API
	selfID string

	activeID string
	timeline *Timeline

	unseen  map[string]int
	typing  bool
	online  map[string]bool

	pageLimit int
}

func NewChat(api API, selfID string) *Chat {
	return &Chat{
		api:       api,
		selfID:    selfID,
		timeline:  NewTimeline(),
		unseen:    make(map[string]int),
		online:    make(map[string]bool),
		pageLimit: DefaultPageLimit,
	}
}

// LoadUsers fetches the sidebar listing and seeds the unseen counters.
func (c *Chat) LoadUsers(ctx context.Context) ([]SidebarUser, error) {
	users, unseen, err := c.api.Users(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for id, n := range unseen {
		c.unseen[id] = n
	}
	c.mu.Unlock()
	return users, nil
}

// Select activates the conversation with userID: all previous view state is
// discarded, the unseen badge is zeroed immediately (client-predicted, in
// parallel with the server-side bulk seen-flag the page-1 read performs)
// and the first page is fetched.
func (c *Chat) Select(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.activeID = userID
	c.timeline.Reset()
	c.typing = false
	c.unseen[userID] = 0
	c.timeline.BeginLoad(1)
	c.mu.Unlock()

	res, err := c.api.Messages(ctx, userID, 1, c.pageLimit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != userID {
		// Conversation changed while the fetch was in flight; the page
		// belongs to a discarded view.
		return nil
	}
	if err != nil {
		c.timeline.EndLoad()
		return err
	}
	c.timeline.ApplyPage(1, res.Messages, res.HasMore)
	return nil
}

// LoadOlder fetches the next older page when the scroll position reaches
// the oldest loaded message. Duplicate triggers while a fetch is in flight
// are absorbed by the timeline latch; a failed fetch unlatches so scrolling
// again retries.
func (c *Chat) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	userID := c.activeID
	if userID == "" {
		c.mu.Unlock()
		return nil
	}
	page := c.timeline.Page() + 1
	if !c.timeline.BeginLoad(page) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	res, err := c.api.Messages(ctx, userID, page, c.pageLimit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != userID {
		return nil
	}
	if err != nil {
		c.timeline.EndLoad()
		return err
	}
	c.timeline.ApplyPage(page, res.Messages, res.HasMore)
	return nil
}

// Send performs an optimistic write: a provisional entry appears at the
// head of the view before the network round trip, and is reconciled by the
// newMessage self-echo or rolled back on failure. Validation runs before
// the insert so an empty payload never creates a provisional entry.
func (c *Chat) Send(ctx context.Context, text string, att *Attachment) error {
	if text == "" && att == nil {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	receiverID := c.activeID
	if receiverID == "" {
		c.mu.Unlock()
		return ErrNoConversation
	}

	key := uuid.New().String()
	entry := Entry{
		Message: models.Message{
			ID:         key, // temporary id until the durable record arrives
			SenderID:   c.selfID,
			ReceiverID: receiverID,
			Text:       text,
			CreatedAt:  time.Now(),
		},
		CorrelationKey: key,
	}
	if att != nil {
		entry.Image = att.LocalURI
	}
	c.timeline.InsertPending(entry)
	c.mu.Unlock()

	_, err := c.api.Send(ctx, receiverID, text, att)
	if err != nil {
		c.mu.Lock()
		if c.activeID == receiverID {
			c.timeline.RemoveByKey(key)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Delete soft-deletes a message. The view is updated from the response; a
// failed delete leaves the message unchanged.
func (c *Chat) Delete(ctx context.Context, messageID string) error {
	msg, err := c.api.Delete(ctx, messageID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.timeline.UpdateByID(msg)
	c.mu.Unlock()
	return nil
}

// ToggleReaction toggles the caller's emoji reaction on a message.
func (c *Chat) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	msg, err := c.api.ToggleReaction(ctx, messageID, emoji)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.timeline.UpdateByID(msg)
	c.mu.Unlock()
	return nil
}

// HandleEvent applies one live event to the local state. It is safe to
// call from the socket read loop while REST calls are in flight.
func (c *Chat) HandleEvent(evt Event) {
	switch evt.Type {
	case ws.EventNewMessage:
		var m models.Message
		if err := json.Unmarshal(evt.Payload, &m); err != nil {
			log.Printf("[chat] bad newMessage payload: %v", err)
			return
		}
		c.handleNewMessage(m)

	case ws.EventMessageSeen, ws.EventMessageDeleted, ws.EventMessageReactionUpdated:
		var m models.Message
		if err := json.Unmarshal(evt.Payload, &m); err != nil {
			log.Printf("[chat] bad %s payload: %v", evt.Type, err)
			return
		}
		c.mu.Lock()
		c.timeline.UpdateByID(m)
		c.mu.Unlock()

	case ws.EventTyping, ws.EventStopTyping:
		var p ws.TypingPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		if p.UserID == c.activeID {
			c.typing = evt.Type == ws.EventTyping
		}
		c.mu.Unlock()

	case ws.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(evt.Payload, &ids); err != nil {
			return
		}
		c.mu.Lock()
		c.online = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.online[id] = true
		}
		c.mu.Unlock()
	}
}

func (c *Chat) handleNewMessage(m models.Message) {
	var markSeenID string

	c.mu.Lock()
	switch {
	case m.SenderID == c.activeID:
		// Partner wrote into the open conversation: show it and
		// acknowledge immediately.
		c.timeline.PushHead(m)
		c.unseen[c.activeID] = 0
		markSeenID = m.ID
	case m.SenderID == c.selfID && m.ReceiverID == c.activeID:
		// Self-echo confirming one of our provisional entries.
		c.timeline.ConfirmPending(m)
	case m.SenderID != c.selfID:
		// Message for a background conversation: bump its badge.
		c.unseen[m.SenderID]++
	}
	c.mu.Unlock()

	if markSeenID != "" {
		go func() {
			if _, err := c.api.MarkSeen(context.Background(), markSeenID); err != nil {
				log.Printf("[chat] mark seen failed: %v", err)
			}
		}()
	}
}

// Entries returns the active conversation view, newest first.
func (c *Chat) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Entries()
}

// ActiveConversation returns the selected partner id, or "".
func (c *Chat) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// HasMore reports whether older pages remain to be loaded.
func (c *Chat) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.HasMore()
}

// UnseenCount returns the unseen badge for a partner.
func (c *Chat) UnseenCount(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unseen[userID]
}

// PartnerTyping reports whether the active partner is typing.
func (c *Chat) PartnerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// IsOnline reports whether a user currently holds a live connection.
func (c *Chat) IsOnline(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}
