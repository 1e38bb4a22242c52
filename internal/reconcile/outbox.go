package reconcile

import (
	"sync"
	"time"

	"github.com/vpaa/eventcore/internal/model"
)

// Kind names the mutation an outbox entry carries.
type Kind string

const (
	KindJoin        Kind = "join"
	KindCheckIn     Kind = "check_in"
	KindAttendance  Kind = "mark_attendance"
	KindEvaluation  Kind = "evaluation"
	KindCertificate Kind = "certificate"
	KindCheckOut    Kind = "check_out"
)

// EntryStatus is the position of an outbox entry in its lifecycle.
type EntryStatus string

const (
	// EntryPending: submitted, and either not yet acknowledged or not yet
	// visible in a refresh.
	EntryPending EntryStatus = "pending"
	// EntryConfirmed: a refresh contained the acknowledged record. The
	// entry is dropped by the following refresh.
	EntryConfirmed EntryStatus = "confirmed"
	// EntryStale: acknowledged, but no refresh within the grace window
	// contained it.
	EntryStale EntryStatus = "stale"
)

// Entry is one mutation in the outbox.
type Entry struct {
	// Key is the content-addressed mutation key.
	Key     string `json:"key"`
	Kind    Kind   `json:"kind"`
	EventID string `json:"event_id"`

	// Record is the optimistic record until Acked, the authority's after.
	Record model.Participant `json:"record"`

	Status      EntryStatus `json:"status"`
	Acked       bool        `json:"acked"`
	Attempts    int         `json:"attempts"`
	SubmittedAt time.Time   `json:"submitted_at"`
	AckedAt     time.Time   `json:"acked_at,omitzero"`
	Error       string      `json:"error,omitempty"`
}

// outbox is a thread-safe, insertion-ordered set of entries keyed by
// mutation key.
//
// Thread-safety is provided for readers (Snapshot, Outbox, Stale) running
// beside the single mutating operation.
type outbox struct {
	mu      sync.Mutex
	entries []*Entry
	byKey   map[string]*Entry
}

func newOutbox() *outbox {
	return &outbox{
		entries: make([]*Entry, 0, 16),
		byKey:   make(map[string]*Entry),
	}
}

// put adds an entry, replacing any entry with the same key.
func (o *outbox) put(e Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if old, ok := o.byKey[e.Key]; ok {
		*old = e
		return
	}
	entry := e
	o.entries = append(o.entries, &entry)
	o.byKey[e.Key] = &entry
}

// get returns a copy of the entry for key.
func (o *outbox) get(key string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// update applies fn to the entry for key. Returns false if absent.
func (o *outbox) update(key string, fn func(*Entry)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.byKey[key]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// remove drops the entry for key.
func (o *outbox) remove(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.byKey[key]; !ok {
		return
	}
	delete(o.byKey, key)
	for i, e := range o.entries {
		if e.Key == key {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			break
		}
	}
}

// list returns copies of entries with the given status, in insertion order.
// An empty status selects every entry.
func (o *outbox) list(status EntryStatus) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Entry, 0, len(o.entries))
	for _, e := range o.entries {
		if status == "" || e.Status == status {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// overlay returns the records of pending entries, in insertion order.
func (o *outbox) overlay() []model.Participant {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []model.Participant
	for _, e := range o.entries {
		if e.Status == EntryPending {
			out = append(out, e.Record)
		}
	}
	return out
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Record = e.Record.Clone()
	return out
}
