package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sapa/internal/models"
	"sapa/internal/ws"
)

// fakeAPI substitutes the REST surface. Unset hooks return zero values.
type fakeAPI struct {
	usersFn    func() ([]SidebarUser, map[string]int, error)
	messagesFn func(userID string, page, limit int) (PageResult, error)
	sendFn     func(receiverID, text string, att *Attachment) (models.Message, error)
	deleteFn   func(id string) (models.Message, error)
	reactFn    func(id, emoji string) (models.Message, error)

	markSeenCh chan string
}

func (f *fakeAPI) Users(ctx context.Context) ([]SidebarUser, map[string]int, error) {
	if f.usersFn != nil {
		return f.usersFn()
	}
	return nil, nil, nil
}

func (f *fakeAPI) Messages(ctx context.Context, userID string, page, limit int) (PageResult, error) {
	if f.messagesFn != nil {
		return f.messagesFn(userID, page, limit)
	}
	return PageResult{Page: page, Limit: limit}, nil
}

func (f *fakeAPI) MessageDetail(ctx context.Context, id string) (models.Message, error) {
	return models.Message{ID: id}, nil
}

func (f *fakeAPI) MarkSeen(ctx context.Context, id string) (models.Message, error) {
	if f.markSeenCh != nil {
		f.markSeenCh <- id
	}
	return models.Message{ID: id, Seen: true}, nil
}

func (f *fakeAPI) Send(ctx context.Context, receiverID, text string, att *Attachment) (models.Message, error) {
	if f.sendFn != nil {
		return f.sendFn(receiverID, text, att)
	}
	return models.Message{}, nil
}

func (f *fakeAPI) Delete(ctx context.Context, id string) (models.Message, error) {
	if f.deleteFn != nil {
		return f.deleteFn(id)
	}
	return models.Message{}, nil
}

func (f *fakeAPI) ToggleReaction(ctx context.Context, id, emoji string) (models.Message, error) {
	if f.reactFn != nil {
		return f.reactFn(id, emoji)
	}
	return models.Message{}, nil
}

func liveEvent(t *testing.T, typ ws.EventType, payload interface{}) Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Event{Type: typ, Payload: raw}
}

func pageOf(msgs []models.Message, hasMore bool) PageResult {
	return PageResult{Messages: msgs, Total: len(msgs), HasMore: hasMore}
}

func TestSelectLoadsFirstPage(t *testing.T) {
	fake := &fakeAPI{
		usersFn: func() ([]SidebarUser, map[string]int, error) {
			return []SidebarUser{}, map[string]int{"bob": 3}, nil
		},
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			return pageOf([]models.Message{msg("m2", "bob"), msg("m1", "me")}, false), nil
		},
	}
	chat := NewChat(fake, "me")

	if _, err := chat.LoadUsers(context.Background()); err != nil {
		t.Fatalf("LoadUsers failed: %v", err)
	}
	if chat.UnseenCount("bob") != 3 {
		t.Fatalf("unseen badge = %d, want 3", chat.UnseenCount("bob"))
	}

	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if chat.ActiveConversation() != "bob" {
		t.Fatalf("active = %q, want bob", chat.ActiveConversation())
	}
	wantIDs(t, chat.Entries(), "m2", "m1")

	// Opening the conversation clears its badge without waiting for the
	// server round trip.
	if chat.UnseenCount("bob") != 0 {
		t.Fatalf("unseen badge = %d after select, want 0", chat.UnseenCount("bob"))
	}
}

func TestSelectFailureAllowsRetry(t *testing.T) {
	calls := 0
	fake := &fakeAPI{
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			calls++
			if calls == 1 {
				return PageResult{}, errors.New("network down")
			}
			return pageOf([]models.Message{msg("m1", "bob")}, false), nil
		},
	}
	chat := NewChat(fake, "me")

	if err := chat.Select(context.Background(), "bob"); err == nil {
		t.Fatal("expected error from first select")
	}
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	wantIDs(t, chat.Entries(), "m1")
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	fake := &fakeAPI{
		sendFn: func(receiverID, text string, att *Attachment) (models.Message, error) {
			return msg("real1", "me"), nil
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	entries := chat.Entries()
	if len(entries) != 1 || !entries[0].Pending {
		t.Fatalf("expected one pending entry, got %+v", entries)
	}
	key := entries[0].CorrelationKey
	if key == "" {
		t.Fatal("pending entry has no correlation key")
	}

	// The self-echo confirms the provisional entry in place.
	confirmed := msg("real1", "me")
	confirmed.ReceiverID = "bob"
	chat.HandleEvent(liveEvent(t, ws.EventNewMessage, confirmed))

	entries = chat.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry after confirm, got %d", len(entries))
	}
	got := entries[0]
	if got.Pending || got.ID != "real1" || got.CorrelationKey != key {
		t.Fatalf("confirmed entry wrong: %+v", got)
	}
}

func TestSendEmptyNeverInsertsPending(t *testing.T) {
	chat := NewChat(&fakeAPI{}, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.Send(context.Background(), "", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("got %v, want ErrEmptyMessage", err)
	}
	if len(chat.Entries()) != 0 {
		t.Fatal("empty send left an entry behind")
	}
}

func TestSendWithoutConversation(t *testing.T) {
	chat := NewChat(&fakeAPI{}, "me")
	if err := chat.Send(context.Background(), "hi", nil); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("got %v, want ErrNoConversation", err)
	}
}

func TestSendRollbackOnFailure(t *testing.T) {
	fake := &fakeAPI{
		sendFn: func(receiverID, text string, att *Attachment) (models.Message, error) {
			return models.Message{}, errors.New("rejected")
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.Send(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected send error")
	}
	if len(chat.Entries()) != 0 {
		t.Fatalf("failed send left entries: %+v", chat.Entries())
	}
}

func TestIncomingFromActivePartner(t *testing.T) {
	fake := &fakeAPI{markSeenCh: make(chan string, 1)}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	incoming := msg("m1", "bob")
	incoming.ReceiverID = "me"
	chat.HandleEvent(liveEvent(t, ws.EventNewMessage, incoming))

	wantIDs(t, chat.Entries(), "m1")
	if chat.UnseenCount("bob") != 0 {
		t.Fatalf("badge = %d for open conversation, want 0", chat.UnseenCount("bob"))
	}

	// The message is acknowledged to the server in the background.
	select {
	case id := <-fake.markSeenCh:
		if id != "m1" {
			t.Fatalf("marked %q seen, want m1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("mark seen never called")
	}
}

func TestIncomingForBackgroundConversation(t *testing.T) {
	fake := &fakeAPI{markSeenCh: make(chan string, 1)}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	incoming := msg("m1", "carol")
	incoming.ReceiverID = "me"
	chat.HandleEvent(liveEvent(t, ws.EventNewMessage, incoming))
	chat.HandleEvent(liveEvent(t, ws.EventNewMessage, func() models.Message {
		m := msg("m2", "carol")
		m.ReceiverID = "me"
		return m
	}()))

	if len(chat.Entries()) != 0 {
		t.Fatalf("background message leaked into active view: %+v", chat.Entries())
	}
	if chat.UnseenCount("carol") != 2 {
		t.Fatalf("badge = %d, want 2", chat.UnseenCount("carol"))
	}
	select {
	case id := <-fake.markSeenCh:
		t.Fatalf("background message %q marked seen", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSeenAndDeleteEventsMutateInPlace(t *testing.T) {
	fake := &fakeAPI{
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			return pageOf([]models.Message{msg("m2", "me"), msg("m1", "bob")}, false), nil
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	seen := msg("m2", "me")
	seen.Seen = true
	chat.HandleEvent(liveEvent(t, ws.EventMessageSeen, seen))

	deleted := msg("m1", "bob")
	deleted.Deleted = true
	deleted.Text = models.DeletedPlaceholder
	chat.HandleEvent(liveEvent(t, ws.EventMessageDeleted, deleted))

	entries := chat.Entries()
	wantIDs(t, entries, "m2", "m1")
	if !entries[0].Seen {
		t.Fatalf("seen event not applied: %+v", entries[0])
	}
	if !entries[1].Deleted || entries[1].Text != models.DeletedPlaceholder {
		t.Fatalf("delete event not applied: %+v", entries[1])
	}
}

func TestTypingFlagTracksActivePartner(t *testing.T) {
	chat := NewChat(&fakeAPI{}, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	chat.HandleEvent(liveEvent(t, ws.EventTyping, ws.TypingPayload{UserID: "carol", ReceiverID: "me"}))
	if chat.PartnerTyping() {
		t.Fatal("typing flag set by a non-active partner")
	}

	chat.HandleEvent(liveEvent(t, ws.EventTyping, ws.TypingPayload{UserID: "bob", ReceiverID: "me"}))
	if !chat.PartnerTyping() {
		t.Fatal("typing flag not set")
	}

	chat.HandleEvent(liveEvent(t, ws.EventStopTyping, ws.TypingPayload{UserID: "bob", ReceiverID: "me"}))
	if chat.PartnerTyping() {
		t.Fatal("typing flag not cleared")
	}

	// Switching conversations clears the flag.
	chat.HandleEvent(liveEvent(t, ws.EventTyping, ws.TypingPayload{UserID: "bob", ReceiverID: "me"}))
	if err := chat.Select(context.Background(), "carol"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if chat.PartnerTyping() {
		t.Fatal("typing flag survived a conversation switch")
	}
}

func TestOnlineRoster(t *testing.T) {
	chat := NewChat(&fakeAPI{}, "me")

	chat.HandleEvent(liveEvent(t, ws.EventOnlineUsers, []string{"bob", "carol"}))
	if !chat.IsOnline("bob") || !chat.IsOnline("carol") {
		t.Fatal("roster not applied")
	}

	// The roster is replaced wholesale on every broadcast.
	chat.HandleEvent(liveEvent(t, ws.EventOnlineUsers, []string{"carol"}))
	if chat.IsOnline("bob") {
		t.Fatal("stale online entry survived")
	}
	if !chat.IsOnline("carol") {
		t.Fatal("roster replacement dropped carol")
	}
}

func TestLoadOlderAppendsPage(t *testing.T) {
	fake := &fakeAPI{
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			switch page {
			case 1:
				return PageResult{Messages: []models.Message{msg("m3", "bob")}, Total: 3, HasMore: true}, nil
			case 2:
				return PageResult{Messages: []models.Message{msg("m2", "me")}, Total: 3, HasMore: true}, nil
			default:
				return PageResult{Messages: []models.Message{msg("m1", "bob")}, Total: 3, HasMore: false}, nil
			}
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder failed: %v", err)
	}
	if err := chat.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder failed: %v", err)
	}
	wantIDs(t, chat.Entries(), "m3", "m2", "m1")
	if chat.HasMore() {
		t.Fatal("hasMore still set after the last page")
	}

	// Scrolling further is a no-op.
	if err := chat.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder failed: %v", err)
	}
	wantIDs(t, chat.Entries(), "m3", "m2", "m1")
}

func TestLatePageForOldConversationDiscarded(t *testing.T) {
	var chat *Chat
	fake := &fakeAPI{}
	fake.messagesFn = func(userID string, page, limit int) (PageResult, error) {
		if userID == "bob" && page == 1 {
			return PageResult{Messages: []models.Message{msg("b2", "bob")}, Total: 2, HasMore: true}, nil
		}
		if userID == "bob" && page == 2 {
			// The user switched conversations while this fetch was in
			// flight.
			if err := chat.Select(context.Background(), "carol"); err != nil {
				t.Errorf("nested select failed: %v", err)
			}
			return PageResult{Messages: []models.Message{msg("b1", "me")}, Total: 2, HasMore: false}, nil
		}
		// carol's page 1
		return pageOf([]models.Message{msg("c1", "carol")}, false), nil
	}
	chat = NewChat(fake, "me")

	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := chat.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder failed: %v", err)
	}

	// The stale page must not bleed into carol's view.
	if chat.ActiveConversation() != "carol" {
		t.Fatalf("active = %q, want carol", chat.ActiveConversation())
	}
	wantIDs(t, chat.Entries(), "c1")
}

func TestDeleteUpdatesFromResponse(t *testing.T) {
	deleted := msg("m1", "me")
	deleted.Deleted = true
	deleted.Text = models.DeletedPlaceholder
	fake := &fakeAPI{
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			return pageOf([]models.Message{msg("m1", "me")}, false), nil
		},
		deleteFn: func(id string) (models.Message, error) {
			return deleted, nil
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.Delete(context.Background(), "m1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	entries := chat.Entries()
	if !entries[0].Deleted || entries[0].Text != models.DeletedPlaceholder {
		t.Fatalf("delete response not applied: %+v", entries[0])
	}
}

func TestToggleReactionUpdatesFromResponse(t *testing.T) {
	reacted := msg("m1", "bob")
	reacted.Reactions = []models.Reaction{{UserID: "me", Emoji: "👍"}}
	fake := &fakeAPI{
		messagesFn: func(userID string, page, limit int) (PageResult, error) {
			return pageOf([]models.Message{msg("m1", "bob")}, false), nil
		},
		reactFn: func(id, emoji string) (models.Message, error) {
			return reacted, nil
		},
	}
	chat := NewChat(fake, "me")
	if err := chat.Select(context.Background(), "bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if err := chat.ToggleReaction(context.Background(), "m1", "👍"); err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	entries := chat.Entries()
	if !entries[0].HasReaction("me", "👍") {
		t.Fatalf("reaction not applied: %+v", entries[0])
	}
}
