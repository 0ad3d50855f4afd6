package client

import (
	"sapa/internal/models"
)

// Entry is one element of a conversation view: either a durable message or
// a provisional one awaiting server confirmation. The correlation key is a
// locally generated id that survives the pending entry being replaced by
// its confirmed record.
type Entry struct {
	models.Message
	Pending        bool   `json:"pending,omitempty"`
	CorrelationKey string `json:"correlationKey,omitempty"`
}

// Timeline assembles paginated fetches into one logically continuous,
// newest-first view of a single conversation. It is not safe for concurrent
// use on its own; Chat serializes access to it.
type Timeline struct {
	entries []Entry
	page    int  // highest page applied so far
	hasMore bool
	loading bool // load-older latch, set while a fetch is in flight
	ready   bool // page 1 applied
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Reset discards all state, returning the timeline to Idle.
func (t *Timeline) Reset() {
	t.entries = nil
	t.page = 0
	t.hasMore = false
	t.loading = false
	t.ready = false
}

// Entries returns a copy of the flattened newest-first view.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int      { return len(t.entries) }
func (t *Timeline) Ready() bool   { return t.ready }
func (t *Timeline) HasMore() bool { return t.hasMore }
func (t *Timeline) Page() int     { return t.page }

// BeginLoad latches the load guard for the given page. It reports false if
// a fetch is already in flight, the page is out of sequence, or there is
// nothing more to load; callers must not fetch in that case. The latch
// absorbs duplicate triggers from a jittery scroll signal.
func (t *Timeline) BeginLoad(page int) bool {
	if t.loading {
		return false
	}
	if page != t.page+1 {
		return false
	}
	if t.ready && !t.hasMore {
		return false
	}
	t.loading = true
	return true
}

// EndLoad unlatches the guard without applying anything (failed or
// abandoned fetch). The flattened list is left untouched so the caller may
// retry.
func (t *Timeline) EndLoad() {
	t.loading = false
}

// ApplyPage appends one fetched page at the tail (older end) of the view
// and unlatches the guard. Messages already present are skipped, so an
// overlapping refetch cannot introduce duplicates.
func (t *Timeline) ApplyPage(page int, msgs []models.Message, hasMore bool) {
	t.loading = false
	if page != t.page+1 {
		return
	}

	seen := make(map[string]bool, len(t.entries))
	for i := range t.entries {
		seen[t.entries[i].ID] = true
	}
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		t.entries = append(t.entries, Entry{Message: m})
	}

	t.page = page
	t.hasMore = hasMore
	t.ready = true
}

// PushHead inserts a live-event message at position 0. Live events always
// carry messages newer than anything loaded, so no re-sort is needed. A
// message already present by id is ignored.
func (t *Timeline) PushHead(m models.Message) {
	if t.indexByID(m.ID) >= 0 {
		return
	}
	t.entries = append([]Entry{{Message: m}}, t.entries...)
}

// InsertPending prepends a provisional entry ahead of everything loaded.
func (t *Timeline) InsertPending(e Entry) {
	e.Pending = true
	t.entries = append([]Entry{e}, t.entries...)
}

// ConfirmPending reconciles a server-confirmed message with its provisional
// entry: the oldest still-pending entry from the same sender is replaced in
// place, keeping its correlation key so identity-keyed consumers stay
// stable. If no pending entry exists (e.g. local state was wiped), the
// message is pushed at the head unless already present.
func (t *Timeline) ConfirmPending(m models.Message) {
	if t.indexByID(m.ID) >= 0 {
		return
	}
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := &t.entries[i]
		if e.Pending && e.SenderID == m.SenderID {
			key := e.CorrelationKey
			*e = Entry{Message: m, CorrelationKey: key}
			return
		}
	}
	t.PushHead(m)
}

// RemoveByKey rolls back the provisional entry with the given correlation
// key. It reports whether an entry was removed.
func (t *Timeline) RemoveByKey(key string) bool {
	for i := range t.entries {
		if t.entries[i].Pending && t.entries[i].CorrelationKey == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateByID replaces an existing message in place by durable id. Seen,
// delete and reaction events mutate records without changing order.
func (t *Timeline) UpdateByID(m models.Message) {
	if i := t.indexByID(m.ID); i >= 0 {
		key := t.entries[i].CorrelationKey
		t.entries[i] = Entry{Message: m, CorrelationKey: key}
	}
}

// PendingCount returns how many provisional entries are awaiting
// confirmation.
func (t *Timeline) PendingCount() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Pending {
			n++
		}
	}
	return n
}

func (t *Timeline) indexByID(id string) int {
	for i := range t.entries {
		if !t.entries[i].Pending && t.entries[i].ID == id {
			return i
		}
	}
	return -1
}
