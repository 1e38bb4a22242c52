package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/model"
)

// CreateEvent stores an event. The id is generated when empty; an event
// whose id already exists is returned unchanged.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return model.Event{}, model.NewError(model.ErrCodeInvalidRequest, "event title is required")
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.Status == "" {
		e.Status = model.EventUpcoming
	}
	reqs, err := marshalRequirements(e.Requirements)
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, title, description, date, time_start, time_end, location, status, requirements, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events))
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Title, e.Description, e.Date, e.TimeStart, e.TimeEnd, e.Location, string(e.Status), reqs)
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}

	out, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event ready", "event", out.ID, "title", out.Title)
	return out, nil
}

// GetEvent returns one event with its participants.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	e, ok, err := getEvent(ctx, s.db, id)
	if err != nil {
		return model.Event{}, err
	}
	if !ok {
		return model.Event{}, eventNotFound(id)
	}
	e.Participants, err = listParticipants(ctx, s.db, id)
	if err != nil {
		return model.Event{}, err
	}
	e.ParticipantsCount = len(e.Participants)
	return e, nil
}

// ListEvents returns the full snapshot: every event with its participants.
// Results are ordered by creation; participants by join order.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelect+`
		ORDER BY e.seq ASC, e.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	rows.Close()

	for i := range events {
		events[i].Participants, err = listParticipants(ctx, s.db, events[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

// DeleteEvent removes an event; its participants and certificates cascade.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return eventNotFound(id)
	}
	s.logger.Info("event deleted", "event", id)
	return nil
}

// eventSelect derives participants_count with COUNT.
const eventSelect = `
	SELECT e.id, e.title, e.description, e.date, e.time_start, e.time_end,
	       e.location, e.status, e.requirements,
	       (SELECT COUNT(*) FROM participants p WHERE p.event_id = e.id)
	FROM events e
`

func scanEvent(row scanner) (model.Event, error) {
	var (
		e      model.Event
		status string
		reqs   string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.TimeStart, &e.TimeEnd,
		&e.Location, &status, &reqs, &e.ParticipantsCount); err != nil {
		return model.Event{}, err
	}
	e.Status = model.EventStatus(status)
	r, err := unmarshalRequirements(reqs)
	if err != nil {
		return model.Event{}, err
	}
	e.Requirements = r
	return e, nil
}

func getEvent(ctx context.Context, q querier, id string) (model.Event, bool, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, eventSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, false, nil
	}
	if err != nil {
		return model.Event{}, false, fmt.Errorf("query event: %w", err)
	}
	return e, true, nil
}

func eventNotFound(id string) *model.Error {
	err := model.NewError(model.ErrCodeNotFound, fmt.Sprintf("event %s not found", id))
	err.EventID = id
	return err
}
