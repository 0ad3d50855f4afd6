package client

import (
	"fmt"
	"testing"
	"time"

	"sapa/internal/models"
)

func msg(id, sender string) models.Message {
	return models.Message{ID: id, SenderID: sender, ReceiverID: "other", Text: "t-" + id, CreatedAt: time.Now()}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func wantIDs(t *testing.T, entries []Entry, want ...string) {
	t.Helper()
	got := ids(entries)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestApplyPagesNewestFirst(t *testing.T) {
	tl := NewTimeline()

	if !tl.BeginLoad(1) {
		t.Fatal("first load refused")
	}
	tl.ApplyPage(1, []models.Message{msg("m5", "a"), msg("m4", "b")}, true)
	if !tl.Ready() || !tl.HasMore() || tl.Page() != 1 {
		t.Fatalf("after page 1: ready=%v hasMore=%v page=%d", tl.Ready(), tl.HasMore(), tl.Page())
	}

	if !tl.BeginLoad(2) {
		t.Fatal("second load refused")
	}
	tl.ApplyPage(2, []models.Message{msg("m3", "a"), msg("m2", "b")}, false)

	// Older pages extend the tail; the view stays newest first.
	wantIDs(t, tl.Entries(), "m5", "m4", "m3", "m2")
	if tl.HasMore() {
		t.Fatal("hasMore should be false after the last page")
	}
	if tl.BeginLoad(3) {
		t.Fatal("load allowed past the last page")
	}
}

func TestBeginLoadLatch(t *testing.T) {
	tl := NewTimeline()
	if !tl.BeginLoad(1) {
		t.Fatal("first load refused")
	}
	// Duplicate scroll triggers while the fetch is in flight are absorbed.
	if tl.BeginLoad(1) || tl.BeginLoad(2) {
		t.Fatal("latch did not hold")
	}

	// A failed fetch unlatches without touching the view.
	tl.EndLoad()
	if !tl.BeginLoad(1) {
		t.Fatal("retry refused after EndLoad")
	}
	tl.ApplyPage(1, []models.Message{msg("m1", "a")}, true)

	// Out-of-sequence pages are refused.
	if tl.BeginLoad(4) {
		t.Fatal("out-of-sequence load allowed")
	}
}

func TestApplyPageSkipsDuplicates(t *testing.T) {
	tl := NewTimeline()
	tl.BeginLoad(1)
	tl.ApplyPage(1, []models.Message{msg("m3", "a"), msg("m2", "b")}, true)

	// A new message arrived between fetches, shifting page boundaries; the
	// refetched overlap must not duplicate m2.
	tl.BeginLoad(2)
	tl.ApplyPage(2, []models.Message{msg("m2", "b"), msg("m1", "a")}, false)

	wantIDs(t, tl.Entries(), "m3", "m2", "m1")
}

func TestPushHead(t *testing.T) {
	tl := NewTimeline()
	tl.BeginLoad(1)
	tl.ApplyPage(1, []models.Message{msg("m1", "a")}, false)

	tl.PushHead(msg("m2", "a"))
	wantIDs(t, tl.Entries(), "m2", "m1")

	// Same id again is a no-op.
	tl.PushHead(msg("m2", "a"))
	wantIDs(t, tl.Entries(), "m2", "m1")
}

func TestConfirmPendingReplacesOldestFirst(t *testing.T) {
	tl := NewTimeline()
	tl.BeginLoad(1)
	tl.ApplyPage(1, []models.Message{msg("m1", "me")}, false)

	// Two rapid sends leave two provisional entries, newest at the head.
	tl.InsertPending(Entry{Message: msg("tmp1", "me"), CorrelationKey: "k1"})
	tl.InsertPending(Entry{Message: msg("tmp2", "me"), CorrelationKey: "k2"})
	if tl.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", tl.PendingCount())
	}

	// The first confirmation belongs to the first send, the oldest pending.
	tl.ConfirmPending(msg("real1", "me"))
	entries := tl.Entries()
	wantIDs(t, entries, "tmp2", "real1", "m1")
	if entries[1].Pending || entries[1].CorrelationKey != "k1" {
		t.Fatalf("confirmed entry: %+v", entries[1])
	}
	if entries[0].CorrelationKey != "k2" || !entries[0].Pending {
		t.Fatalf("remaining pending entry: %+v", entries[0])
	}

	tl.ConfirmPending(msg("real2", "me"))
	wantIDs(t, tl.Entries(), "real2", "real1", "m1")
	if tl.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", tl.PendingCount())
	}

	// A confirmation already applied is ignored.
	tl.ConfirmPending(msg("real2", "me"))
	wantIDs(t, tl.Entries(), "real2", "real1", "m1")

	// With no pending entry left, a stray confirmation falls back to a push.
	tl.ConfirmPending(msg("real3", "me"))
	wantIDs(t, tl.Entries(), "real3", "real2", "real1", "m1")
}

func TestRemoveByKey(t *testing.T) {
	tl := NewTimeline()
	tl.InsertPending(Entry{Message: msg("tmp1", "me"), CorrelationKey: "k1"})

	if !tl.RemoveByKey("k1") {
		t.Fatal("rollback did not find the entry")
	}
	if tl.Len() != 0 {
		t.Fatalf("Len = %d after rollback, want 0", tl.Len())
	}
	if tl.RemoveByKey("k1") {
		t.Fatal("second rollback reported success")
	}
}

func TestUpdateByID(t *testing.T) {
	tl := NewTimeline()
	tl.BeginLoad(1)
	var page []models.Message
	for i := 3; i >= 1; i-- {
		page = append(page, msg(fmt.Sprintf("m%d", i), "a"))
	}
	tl.ApplyPage(1, page, false)

	deleted := msg("m2", "a")
	deleted.Deleted = true
	deleted.Text = models.DeletedPlaceholder
	tl.UpdateByID(deleted)

	// Position is preserved; only the record changes.
	entries := tl.Entries()
	wantIDs(t, entries, "m3", "m2", "m1")
	if !entries[1].Deleted || entries[1].Text != models.DeletedPlaceholder {
		t.Fatalf("update not applied: %+v", entries[1])
	}

	// Unknown ids are ignored.
	tl.UpdateByID(msg("ghost", "a"))
	wantIDs(t, tl.Entries(), "m3", "m2", "m1")
}

func TestResetClearsEverything(t *testing.T) {
	tl := NewTimeline()
	tl.BeginLoad(1)
	tl.ApplyPage(1, []models.Message{msg("m1", "a")}, true)
	tl.InsertPending(Entry{Message: msg("tmp", "me"), CorrelationKey: "k"})

	tl.Reset()
	if tl.Len() != 0 || tl.Ready() || tl.HasMore() || tl.Page() != 0 {
		t.Fatalf("reset left state behind: %+v", tl)
	}
	if !tl.BeginLoad(1) {
		t.Fatal("fresh load refused after reset")
	}
}
