package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/checkin"
	"github.com/vpaa/eventcore/internal/lifecycle"
	"github.com/vpaa/eventcore/internal/model"
)

// Join registers an identity for an event. When the identity already has a
// record in the event (same account OR same normalized email), that record
// is returned with Duplicate set and nothing is written.
func (s *Store) Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	var res model.JoinResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = s.joinTx(ctx, tx, eventID, req)
		return err
	})
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}
	s.logger.Info("participant joined",
		"event", eventID, "participant", res.Participant.ID, "duplicate", res.Duplicate)
	return res, nil
}

// ImportRoster joins many identities in one transaction. Rows that already
// have a record are counted as existing; any invalid row aborts the import.
func (s *Store) ImportRoster(ctx context.Context, eventID string, rows []model.JoinRequest) (model.RosterResult, error) {
	out := model.RosterResult{Participants: []model.Participant{}}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i, row := range rows {
			res, err := s.joinTx(ctx, tx, eventID, row)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			if res.Duplicate {
				out.Existing++
			} else {
				out.Added++
			}
			out.Participants = append(out.Participants, res.Participant)
		}
		return nil
	})
	if err != nil {
		return model.RosterResult{}, fmt.Errorf("import roster: %w", err)
	}
	s.logger.Info("roster imported", "event", eventID, "added", out.Added, "existing", out.Existing)
	return out, nil
}

func (s *Store) joinTx(ctx context.Context, tx *sql.Tx, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	if _, ok, err := getEvent(ctx, tx, eventID); err != nil {
		return model.JoinResult{}, err
	} else if !ok {
		return model.JoinResult{}, eventNotFound(eventID)
	}
	if err := req.Validate(); err != nil {
		return model.JoinResult{}, err
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	var user string

	switch id := req.ResolvedIdentity().(type) {
	case model.ByAccount:
		acct, ok, err := getAccount(ctx, tx, id.Ref)
		if err != nil {
			return model.JoinResult{}, err
		}
		if !ok {
			return model.JoinResult{}, model.NewError(model.ErrCodeNotFound, fmt.Sprintf("account %s not found", id.Ref))
		}
		user = acct.ID
		if name == "" {
			name = acct.Name
		}
		if email == "" {
			email = acct.Email
		}
	case model.ByEmail:
		email = strings.TrimSpace(id.Address)
	}
	if name == "" {
		name = email
	}
	emailKey := model.NormalizeEmail(email)

	existing, err := s.findByIdentity(ctx, tx, eventID, user, emailKey)
	if err != nil {
		return model.JoinResult{}, err
	}
	if existing != nil {
		return model.JoinResult{Participant: *existing, Duplicate: true}, nil
	}

	p := model.Participant{
		ID:      s.newID(),
		EventID: eventID,
		User:    user,
		Name:    name,
		Email:   email,
		Status:  model.StatusRegistered,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants
		(id, event_id, user_id, name, email, email_key, status, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM participants))
	`, p.ID, p.EventID, nullString(p.User), p.Name, p.Email, emailKey, string(p.Status))
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("insert participant: %w", err)
	}
	return model.JoinResult{Participant: p}, nil
}

// findByIdentity applies the identity match inside one event.
func (s *Store) findByIdentity(ctx context.Context, q querier, eventID, user, emailKey string) (*model.Participant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx, participantSelect+`
		WHERE p.event_id = ?
		  AND ((? <> '' AND p.user_id = ?) OR (? <> '' AND p.email_key = ?))
		ORDER BY p.seq ASC
		LIMIT 1
	`, eventID, user, user, emailKey, emailKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	return &p, nil
}

// GetParticipant returns one participant by id.
func (s *Store) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	p, err := getParticipant(ctx, s.db, id)
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// MarkAttendance checks in a participant chosen by id (manual attendance).
func (s *Store) MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error) {
	var res model.CheckInResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		res, err = checkin.Apply(p, p.EventID, s.now())
		if err != nil {
			return err
		}
		if res.AlreadyCheckedIn {
			return nil
		}
		return updateParticipant(ctx, tx, res.Participant)
	})
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("mark attendance: %w", err)
	}
	s.logger.Info("attendance marked",
		"participant", participantID, "already_checked_in", res.AlreadyCheckedIn)
	return res, nil
}

// ScanQR validates a check-in token against an event and checks the
// designated participant in. Validation order: token shape, event,
// participant resolution, transition.
func (s *Store) ScanQR(ctx context.Context, raw, eventID string) (model.CheckInResult, error) {
	tok, err := checkin.Parse(raw)
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("scan: %w", err)
	}

	var res model.CheckInResult
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, ok, err := getEvent(ctx, tx, eventID); err != nil {
			return err
		} else if !ok {
			return eventNotFound(eventID)
		}
		roster, err := listParticipants(ctx, tx, eventID)
		if err != nil {
			return err
		}
		acct, found, err := getAccount(ctx, tx, tok.IdentityID)
		if err != nil {
			return err
		}
		lookup := func(id string) (model.Account, bool) {
			return acct, found && id == acct.ID
		}

		res, err = checkin.Scan(raw, eventID, roster, lookup, s.now())
		if err != nil {
			return err
		}
		if res.AlreadyCheckedIn {
			return nil
		}
		return updateParticipant(ctx, tx, res.Participant)
	})
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("scan: %w", err)
	}
	s.logger.Info("token scanned",
		"event", eventID, "participant", res.Participant.ID, "already_checked_in", res.AlreadyCheckedIn)
	return res, nil
}

// SubmitEvaluation records a participant's evaluation payload.
func (s *Store) SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error) {
	var out model.Participant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		out, err = lifecycle.SubmitEvaluation(p, p.EventID, data)
		if err != nil {
			return err
		}
		return updateParticipant(ctx, tx, out)
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}
	s.logger.Info("evaluation submitted", "participant", participantID)
	return out, nil
}

// CheckOut records when an attended participant left. Repeated calls keep
// the first time.
func (s *Store) CheckOut(ctx context.Context, participantID string) (model.Participant, error) {
	var out model.Participant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		next, outcome, err := lifecycle.CheckOut(p, p.EventID, s.now())
		if err != nil {
			return err
		}
		out = next
		if outcome == lifecycle.AlreadyApplied {
			return nil
		}
		return updateParticipant(ctx, tx, out)
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("check out: %w", err)
	}
	s.logger.Info("participant checked out", "participant", participantID)
	return out, nil
}

func getParticipant(ctx context.Context, q querier, id string) (model.Participant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx, participantSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, model.NotFound(id, "")
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("query participant: %w", err)
	}
	return p, nil
}

func listParticipants(ctx context.Context, q querier, eventID string) ([]model.Participant, error) {
	rows, err := q.QueryContext(ctx, participantSelect+`
		WHERE p.event_id = ?
		ORDER BY p.seq ASC, p.id COLLATE BINARY ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// updateParticipant writes the mutable lifecycle columns. Identity columns
// never change after insert.
func updateParticipant(ctx context.Context, q querier, p model.Participant) error {
	evaluation, err := marshalEvaluation(p.EvaluationData)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE participants
		SET status = ?, check_in_time = ?, check_out_time = ?, has_evaluated = ?, evaluation_data = ?
		WHERE id = ?
	`, string(p.Status), nullTime(p.CheckInTime), nullTime(p.CheckOutTime),
		boolInt(p.HasEvaluated), evaluation, p.ID)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}
