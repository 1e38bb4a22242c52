package reconcile

import (
	"time"

	"github.com/vpaa/eventcore/internal/model"
)

// Snapshot is an immutable view of events and their participants.
// Accessors return copies; nothing reachable from a Snapshot is ever
// mutated after construction.
type Snapshot struct {
	version     int64
	refreshedAt time.Time
	events      []model.Event
	byID        map[string]int
}

func newSnapshot(version int64, refreshedAt time.Time, events []model.Event) *Snapshot {
	s := &Snapshot{
		version:     version,
		refreshedAt: refreshedAt,
		events:      make([]model.Event, len(events)),
		byID:        make(map[string]int, len(events)),
	}
	for i, e := range events {
		s.events[i] = cloneEvent(e)
		s.events[i].ParticipantsCount = len(s.events[i].Participants)
		s.byID[e.ID] = i
	}
	return s
}

// Version numbers the committed layer this snapshot was built from.
// Zero means no refresh has succeeded yet.
func (s *Snapshot) Version() int64 { return s.version }

// RefreshedAt is when the committed layer was last replaced by a refresh.
func (s *Snapshot) RefreshedAt() time.Time { return s.refreshedAt }

// Events returns every event, in authority order.
func (s *Snapshot) Events() []model.Event {
	out := make([]model.Event, len(s.events))
	for i, e := range s.events {
		out[i] = cloneEvent(e)
	}
	return out
}

// Event returns one event with its participants.
func (s *Snapshot) Event(id string) (model.Event, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Event{}, false
	}
	return cloneEvent(s.events[i]), true
}

// Participant returns a participant and the event it belongs to.
func (s *Snapshot) Participant(id string) (model.Participant, model.Event, bool) {
	for _, e := range s.events {
		for _, p := range e.Participants {
			if p.ID == id {
				return p.Clone(), cloneEvent(e), true
			}
		}
	}
	return model.Participant{}, model.Event{}, false
}

// FindIdentity returns the participant recorded for an identity in an event.
func (s *Snapshot) FindIdentity(eventID string, id model.Identity) (model.Participant, bool) {
	i, ok := s.byID[eventID]
	if !ok {
		return model.Participant{}, false
	}
	for _, p := range s.events[i].Participants {
		if model.MatchesIdentity(p, id) {
			return p.Clone(), true
		}
	}
	return model.Participant{}, false
}

// withRecords returns a new snapshot with records merged in. The receiver
// is untouched. Records for unknown events are ignored.
func (s *Snapshot) withRecords(version int64, records []model.Participant, keepCovering bool) *Snapshot {
	events := make([]model.Event, len(s.events))
	copy(events, s.events)
	touched := make(map[int]bool)

	for _, rec := range records {
		i, ok := s.byID[rec.EventID]
		if !ok {
			continue
		}
		if !touched[i] {
			events[i].Participants = append([]model.Participant(nil), events[i].Participants...)
			touched[i] = true
		}
		events[i].Participants = mergeRecord(events[i].Participants, rec, keepCovering)
	}

	next := &Snapshot{
		version:     version,
		refreshedAt: s.refreshedAt,
		events:      events,
		byID:        s.byID,
	}
	for i := range touched {
		next.events[i].ParticipantsCount = len(next.events[i].Participants)
	}
	return next
}

// mergeRecord places rec into list, matching by id first and then by
// identity. With keepCovering, an existing record that already covers rec
// wins; otherwise rec replaces it. Unmatched records are appended.
func mergeRecord(list []model.Participant, rec model.Participant, keepCovering bool) []model.Participant {
	for i, p := range list {
		if p.ID == rec.ID || model.SameIdentity(p, rec) {
			if keepCovering && p.Covers(rec) {
				return list
			}
			list[i] = rec.Clone()
			return list
		}
	}
	return append(list, rec.Clone())
}

func cloneEvent(e model.Event) model.Event {
	out := e
	if e.Participants != nil {
		out.Participants = make([]model.Participant, len(e.Participants))
		for i, p := range e.Participants {
			out.Participants[i] = p.Clone()
		}
	}
	return out
}
