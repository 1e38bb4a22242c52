package model

import (
	"encoding/json"
	"time"
)

// Status is a participant's position in the attendance lifecycle.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusAttended   Status = "attended"
	StatusCompleted  Status = "completed"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusRegistered:
		return 1
	case StatusAttended:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the three lifecycle statuses.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// CheckedIn reports whether the status implies a recorded check-in.
func (s Status) CheckedIn() bool {
	return s == StatusAttended || s == StatusCompleted
}

// EventStatus is the scheduling state of an event. Opaque to the core.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
)

// Requirements declares which gates a participant must pass for certification.
type Requirements struct {
	Attendance bool `json:"attendance"`
	Evaluation bool `json:"evaluation"`
	Quiz       bool `json:"quiz"`
}

// Event is a scheduled activity. Display fields are passed through untouched.
type Event struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	Date              string        `json:"date,omitempty"`
	TimeStart         string        `json:"time_start,omitempty"`
	TimeEnd           string        `json:"time_end,omitempty"`
	Location          string        `json:"location,omitempty"`
	Status            EventStatus   `json:"status"`
	Requirements      Requirements  `json:"requirements"`
	ParticipantsCount int           `json:"participants_count"`
	Participants      []Participant `json:"participants,omitempty"`
}

// EvaluationData is the opaque structured payload of a post-event evaluation.
type EvaluationData map[string]any

// Clone returns a deep copy made through a JSON round trip.
// Returns nil for a nil payload.
func (d EvaluationData) Clone() EvaluationData {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		out := make(EvaluationData, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	var out EvaluationData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Participant is the per-event registration record of one identity.
type Participant struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event"`
	User           string         `json:"user,omitempty"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Status         Status         `json:"status"`
	CheckInTime    *time.Time     `json:"check_in_time"`
	CheckOutTime   *time.Time     `json:"check_out_time"`
	HasEvaluated   bool           `json:"has_evaluated"`
	EvaluationData EvaluationData `json:"evaluation_data"`
	Certificate    *Certificate   `json:"certificate"`
}

// Clone returns a copy that shares no mutable state with p.
func (p Participant) Clone() Participant {
	out := p
	if p.CheckInTime != nil {
		t := *p.CheckInTime
		out.CheckInTime = &t
	}
	if p.CheckOutTime != nil {
		t := *p.CheckOutTime
		out.CheckOutTime = &t
	}
	if p.Certificate != nil {
		c := *p.Certificate
		out.Certificate = &c
	}
	out.EvaluationData = p.EvaluationData.Clone()
	return out
}

// Covers reports whether p reflects at least the progress recorded in other:
// the same or a later status, the evaluation if other has one, and the
// certificate if other has one. Used to decide whether a refreshed record
// already contains an acknowledged write.
func (p Participant) Covers(other Participant) bool {
	if p.Status.Rank() < other.Status.Rank() {
		return false
	}
	if other.HasEvaluated && !p.HasEvaluated {
		return false
	}
	if other.Certificate != nil && p.Certificate == nil {
		return false
	}
	if other.CheckOutTime != nil && p.CheckOutTime == nil {
		return false
	}
	return true
}

// Certificate is minted by the authority when a participant completes.
type Certificate struct {
	ParticipantID     string     `json:"participant"`
	CertificateNumber string     `json:"certificate_number"`
	VerificationCode  string     `json:"verification_code"`
	IssuedAt          time.Time  `json:"issued_at"`
	Emailed           bool       `json:"emailed"`
	EmailedAt         *time.Time `json:"emailed_at,omitempty"`
}

// Account is an authenticated identity holding a check-in token.
type Account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	QRCode string `json:"qr_code"`
}

// JoinRequest carries the identity a participant joins with.
// Name and Email may be empty for ByAccount joins; the authority fills them
// from the account.
type JoinRequest struct {
	Identity Identity
	Name     string
	Email    string
}

// JoinResult is the authority's answer to a join.
// Duplicate is the soft DuplicateRegistration signal: the record existed.
type JoinResult struct {
	Participant Participant `json:"participant"`
	Duplicate   bool        `json:"duplicate"`
}

// CheckInResult is the answer to a scan or attendance mark.
// AlreadyCheckedIn is the soft AlreadyCheckedIn signal.
type CheckInResult struct {
	Participant      Participant `json:"participant"`
	AlreadyCheckedIn bool        `json:"already_checked_in"`
	Message          string      `json:"message,omitempty"`
}

// IssueResult is the answer to a certificate issuance.
// Reissued is true when the participant already held the certificate.
type IssueResult struct {
	Certificate Certificate `json:"certificate"`
	Participant Participant `json:"participant"`
	Reissued    bool        `json:"reissued"`
}

// Verification is the public answer to a certificate lookup.
type Verification struct {
	Certificate Certificate `json:"certificate"`
	Participant Participant `json:"participant"`
	EventTitle  string      `json:"event_title"`
	EventDate   string      `json:"event_date,omitempty"`
}

// EventReport aggregates attendance and evaluation figures for one event.
type EventReport struct {
	EventID       string   `json:"event_id"`
	Title         string   `json:"title"`
	Total         int      `json:"total"`
	Registered    int      `json:"registered"`
	Attended      int      `json:"attended"`
	Completed     int      `json:"completed"`
	CheckedOut    int      `json:"checked_out"`
	Evaluated     int      `json:"evaluated"`
	Pending       int      `json:"pending"`
	AverageRating *float64 `json:"average_rating"`
}

// RosterResult summarizes a bulk roster import.
type RosterResult struct {
	Added        int           `json:"added"`
	Existing     int           `json:"existing"`
	Participants []Participant `json:"participants"`
}
