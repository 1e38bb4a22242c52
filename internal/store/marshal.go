package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vpaa/eventcore/internal/model"
)

// Timestamps are stored as RFC 3339 text in UTC with nanosecond precision.
const timeLayout = time.RFC3339Nano

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalRequirements(r model.Requirements) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal requirements: %w", err)
	}
	return string(b), nil
}

func unmarshalRequirements(s string) (model.Requirements, error) {
	var r model.Requirements
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return r, fmt.Errorf("unmarshal requirements: %w", err)
	}
	return r, nil
}

func marshalEvaluation(d model.EvaluationData) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal evaluation: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalEvaluation(ns sql.NullString) (model.EvaluationData, error) {
	if !ns.Valid {
		return nil, nil
	}
	var d model.EvaluationData
	if err := json.Unmarshal([]byte(ns.String), &d); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return d, nil
}

const participantSelect = `
	SELECT p.id, p.event_id, p.user_id, p.name, p.email, p.status,
	       p.check_in_time, p.check_out_time, p.has_evaluated, p.evaluation_data,
	       c.certificate_number, c.verification_code, c.issued_at, c.emailed, c.emailed_at
	FROM participants p
	LEFT JOIN certificates c ON c.participant_id = p.id
`

func scanParticipant(row scanner) (model.Participant, error) {
	var (
		p            model.Participant
		user         sql.NullString
		status       string
		checkIn      sql.NullString
		checkOut     sql.NullString
		evaluated    int
		evaluation   sql.NullString
		certNumber   sql.NullString
		verification sql.NullString
		issuedAt     sql.NullString
		emailed      sql.NullInt64
		emailedAt    sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.EventID, &user, &p.Name, &p.Email, &status,
		&checkIn, &checkOut, &evaluated, &evaluation,
		&certNumber, &verification, &issuedAt, &emailed, &emailedAt,
	); err != nil {
		return model.Participant{}, err
	}

	p.User = user.String
	p.Status = model.Status(status)
	p.HasEvaluated = evaluated != 0

	var err error
	if p.CheckInTime, err = parseNullTime(checkIn); err != nil {
		return model.Participant{}, err
	}
	if p.CheckOutTime, err = parseNullTime(checkOut); err != nil {
		return model.Participant{}, err
	}
	if p.EvaluationData, err = unmarshalEvaluation(evaluation); err != nil {
		return model.Participant{}, err
	}

	if certNumber.Valid {
		issued, err := parseTime(issuedAt.String)
		if err != nil {
			return model.Participant{}, err
		}
		at, err := parseNullTime(emailedAt)
		if err != nil {
			return model.Participant{}, err
		}
		p.Certificate = &model.Certificate{
			ParticipantID:     p.ID,
			CertificateNumber: certNumber.String,
			VerificationCode:  verification.String,
			IssuedAt:          issued,
			Emailed:           emailed.Int64 != 0,
			EmailedAt:         at,
		}
	}
	return p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
