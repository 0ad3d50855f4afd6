// Package storetest holds the conformance suite every store.Store driver
// must pass. Driver packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"sapa/internal/models"
	"sapa/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the full store contract against the given driver.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateUser", func(t *testing.T) { testCreateUser(t, factory(t)) })
	t.Run("AppendEmptyMessage", func(t *testing.T) { testAppendEmpty(t, factory(t)) })
	t.Run("AppendAndFetch", func(t *testing.T) { testAppendAndFetch(t, factory(t)) })
	t.Run("MarkSeenIdempotent", func(t *testing.T) { testMarkSeen(t, factory(t)) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, factory(t)) })
	t.Run("ToggleReaction", func(t *testing.T) { testToggleReaction(t, factory(t)) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, factory(t)) })
	t.Run("FirstPageFlagsSeen", func(t *testing.T) { testFirstPageFlagsSeen(t, factory(t)) })
	t.Run("LastMessageTimes", func(t *testing.T) { testLastMessageTimes(t, factory(t)) })
}

func mustUser(t *testing.T, s store.Store, email, name string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, name, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return u
}

func mustSend(t *testing.T, s store.Store, from, to, text string) models.Message {
	t.Helper()
	m, err := s.AppendMessage(context.Background(), from, to, text, "")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	return m
}

func testCreateUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "x@example.com", "X")
	if u.ID == "" {
		t.Fatal("expected user id, got empty")
	}

	if _, err := s.CreateUser(ctx, "x@example.com", "X2", "hash"); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("duplicate email: got %v, want ErrEmailTaken", err)
	}

	got, err := s.UserByEmail(ctx, "x@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("UserByEmail: got %v (%v), want id %s", got.ID, err, u.ID)
	}
	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UserByID(missing): got %v, want ErrNotFound", err)
	}

	y := mustUser(t, s, "y@example.com", "Y")
	others, err := s.UsersExcept(ctx, u.ID)
	if err != nil {
		t.Fatalf("UsersExcept failed: %v", err)
	}
	if len(others) != 1 || others[0].ID != y.ID {
		t.Fatalf("UsersExcept: got %d users, want only %s", len(others), y.ID)
	}
}

func testAppendEmpty(t *testing.T, s store.Store) {
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")

	_, err := s.AppendMessage(context.Background(), x.ID, y.ID, "", "")
	if !errors.Is(err, store.ErrEmptyMessage) {
		t.Fatalf("empty append: got %v, want ErrEmptyMessage", err)
	}

	page, err := s.Conversation(context.Background(), x.ID, y.ID, 1, 50)
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("empty append persisted something: total=%d", page.Total)
	}
}

func testAppendAndFetch(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")

	m := mustSend(t, s, x.ID, y.ID, "hi")
	if m.ID == "" || m.Seen || m.Deleted {
		t.Fatalf("fresh message has wrong flags: %+v", m)
	}
	if m.SenderID != x.ID || m.ReceiverID != y.ID {
		t.Fatalf("participants wrong: %+v", m)
	}
	if len(m.Reactions) != 0 {
		t.Fatalf("fresh message has reactions: %+v", m.Reactions)
	}

	got, err := s.MessageByID(ctx, m.ID)
	if err != nil || got.Text != "hi" {
		t.Fatalf("MessageByID: got %+v (%v)", got, err)
	}
	if _, err := s.MessageByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("MessageByID(missing): got %v, want ErrNotFound", err)
	}
}

func testMarkSeen(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")
	m := mustSend(t, s, x.ID, y.ID, "hi")

	first, err := s.MarkSeen(ctx, m.ID)
	if err != nil || !first.Seen {
		t.Fatalf("MarkSeen: got %+v (%v)", first, err)
	}
	second, err := s.MarkSeen(ctx, m.ID)
	if err != nil || !second.Seen {
		t.Fatalf("second MarkSeen: got %+v (%v)", second, err)
	}
	if _, err := s.MarkSeen(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("MarkSeen(missing): got %v, want ErrNotFound", err)
	}
}

func testSoftDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")

	// Image-only message: after delete the text shows the placeholder and
	// the image is gone.
	m, err := s.AppendMessage(ctx, x.ID, y.ID, "", "/uploads/images/pic.png")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if _, err := s.SoftDelete(ctx, m.ID, y.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("non-sender delete: got %v, want ErrForbidden", err)
	}
	kept, err := s.MessageByID(ctx, m.ID)
	if err != nil || kept.Deleted {
		t.Fatalf("forbidden delete changed state: %+v (%v)", kept, err)
	}

	del, err := s.SoftDelete(ctx, m.ID, x.ID)
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if !del.Deleted || del.Text != models.DeletedPlaceholder || del.Image != "" {
		t.Fatalf("SoftDelete result wrong: %+v", del)
	}

	again, err := s.MessageByID(ctx, m.ID)
	if err != nil || !again.Deleted || again.Text != models.DeletedPlaceholder || again.Image != "" {
		t.Fatalf("delete not durable: %+v (%v)", again, err)
	}

	if _, err := s.SoftDelete(ctx, "missing", x.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SoftDelete(missing): got %v, want ErrNotFound", err)
	}
}

func testToggleReaction(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")
	m := mustSend(t, s, x.ID, y.ID, "hi")

	on, err := s.ToggleReaction(ctx, m.ID, x.ID, "👍")
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if len(on.Reactions) != 1 || !on.HasReaction(x.ID, "👍") {
		t.Fatalf("toggle on: got %+v", on.Reactions)
	}

	// Second reaction with a different emoji coexists.
	two, err := s.ToggleReaction(ctx, m.ID, x.ID, "❤️")
	if err != nil || len(two.Reactions) != 2 {
		t.Fatalf("second emoji: got %+v (%v)", two.Reactions, err)
	}

	// Same (user, emoji) again toggles it off, leaving the other intact.
	off, err := s.ToggleReaction(ctx, m.ID, x.ID, "👍")
	if err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if len(off.Reactions) != 1 || off.HasReaction(x.ID, "👍") || !off.HasReaction(x.ID, "❤️") {
		t.Fatalf("toggle off: got %+v", off.Reactions)
	}

	if _, err := s.ToggleReaction(ctx, "missing", x.ID, "👍"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ToggleReaction(missing): got %v, want ErrNotFound", err)
	}
}

func testPagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")
	z := mustUser(t, s, "z@example.com", "Z")

	for i := 0; i < 7; i++ {
		from, to := x.ID, y.ID
		if i%2 == 1 {
			from, to = y.ID, x.ID
		}
		mustSend(t, s, from, to, "msg")
	}
	// Noise in another conversation must not leak in.
	mustSend(t, s, x.ID, z.ID, "other")

	seen := make(map[string]bool)
	page := 1
	for {
		res, err := s.Conversation(ctx, x.ID, y.ID, page, 3)
		if err != nil {
			t.Fatalf("Conversation page %d failed: %v", page, err)
		}
		if res.Total != 7 {
			t.Fatalf("page %d: total=%d, want 7", page, res.Total)
		}
		for i := range res.Messages {
			m := &res.Messages[i]
			if seen[m.ID] {
				t.Fatalf("duplicate message %s across pages", m.ID)
			}
			seen[m.ID] = true
			if i > 0 && res.Messages[i-1].CreatedAt.Before(m.CreatedAt) {
				t.Fatalf("page %d not in descending order", page)
			}
		}
		if !res.HasMore {
			break
		}
		page++
	}
	if page != 3 {
		t.Fatalf("expected 3 pages of size 3 for 7 messages, got %d", page)
	}
	if len(seen) != 7 {
		t.Fatalf("union of pages has %d messages, want 7", len(seen))
	}
}

func testFirstPageFlagsSeen(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustSend(t, s, x.ID, y.ID, "hello").ID)
	}

	counts, err := s.UnseenCounts(ctx, y.ID)
	if err != nil || counts[x.ID] != 3 {
		t.Fatalf("UnseenCounts before read: got %v (%v), want 3 from %s", counts, err, x.ID)
	}
	// The sender's own view shows nothing unseen.
	senderCounts, err := s.UnseenCounts(ctx, x.ID)
	if err != nil || len(senderCounts) != 0 {
		t.Fatalf("sender UnseenCounts: got %v (%v)", senderCounts, err)
	}

	// Reading page 1 as the receiver clears the whole backlog in the same
	// logical read.
	if _, err := s.Conversation(ctx, y.ID, x.ID, 1, 50); err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}

	counts, err = s.UnseenCounts(ctx, y.ID)
	if err != nil || counts[x.ID] != 0 {
		t.Fatalf("UnseenCounts after read: got %v (%v), want 0", counts, err)
	}
	for _, id := range ids {
		m, err := s.MessageByID(ctx, id)
		if err != nil || !m.Seen {
			t.Fatalf("message %s not flagged seen: %+v (%v)", id, m, err)
		}
	}

	// Reading a later page must not flag anything.
	m2 := mustSend(t, s, x.ID, y.ID, "again")
	if _, err := s.Conversation(ctx, y.ID, x.ID, 2, 2); err != nil {
		t.Fatalf("Conversation page 2 failed: %v", err)
	}
	got, err := s.MessageByID(ctx, m2.ID)
	if err != nil || got.Seen {
		t.Fatalf("page-2 read flagged message seen: %+v (%v)", got, err)
	}
}

func testLastMessageTimes(t *testing.T, s store.Store) {
	ctx := context.Background()
	x := mustUser(t, s, "x@example.com", "X")
	y := mustUser(t, s, "y@example.com", "Y")
	z := mustUser(t, s, "z@example.com", "Z")

	mustSend(t, s, x.ID, y.ID, "first")
	latest := mustSend(t, s, y.ID, x.ID, "second")
	mustSend(t, s, z.ID, x.ID, "from z")

	last, err := s.LastMessageTimes(ctx, x.ID)
	if err != nil {
		t.Fatalf("LastMessageTimes failed: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("got %d partners, want 2", len(last))
	}
	if !last[y.ID].Equal(latest.CreatedAt) {
		t.Fatalf("last time for %s: got %v, want %v", y.ID, last[y.ID], latest.CreatedAt)
	}
}
