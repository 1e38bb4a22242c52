package api

import (
	"strings"

	"github.com/vpaa/eventcore/internal/model"
)

// JoinBody is the body of POST /events/:id/join. Either User or Email is
// required.
type JoinBody struct {
	User  string `json:"user,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// Request converts the body into a core join request.
func (b JoinBody) Request() model.JoinRequest {
	req := model.JoinRequest{Name: strings.TrimSpace(b.Name), Email: strings.TrimSpace(b.Email)}
	if user := strings.TrimSpace(b.User); user != "" {
		req.Identity = model.ByAccount{Ref: user}
	}
	return req
}

// JoinBodyFrom converts a core join request into a body.
func JoinBodyFrom(req model.JoinRequest) JoinBody {
	b := JoinBody{Name: req.Name, Email: req.Email}
	switch id := req.Identity.(type) {
	case model.ByAccount:
		b.User = id.Ref
	case model.ByEmail:
		b.Email = id.Address
	}
	return b
}

// ScanBody is the body of POST /scan/qr.
type ScanBody struct {
	QRData  string `json:"qr_data" validate:"required"`
	EventID string `json:"event_id" validate:"required"`
}

// EvaluationBody is the body of POST /participants/:id/submit_evaluation.
type EvaluationBody struct {
	EvaluationData model.EvaluationData `json:"evaluation_data" validate:"required"`
}

// EventBody is the body of POST /events/.
type EventBody struct {
	ID           string             `json:"id,omitempty"`
	Title        string             `json:"title" validate:"required"`
	Description  string             `json:"description,omitempty"`
	Date         string             `json:"date,omitempty"`
	TimeStart    string             `json:"time_start,omitempty"`
	TimeEnd      string             `json:"time_end,omitempty"`
	Location     string             `json:"location,omitempty"`
	Status       string             `json:"status,omitempty" validate:"omitempty,oneof=upcoming ongoing completed"`
	Requirements model.Requirements `json:"requirements"`
}

// Event converts the body into an event.
func (b EventBody) Event() model.Event {
	return model.Event{
		ID:           b.ID,
		Title:        b.Title,
		Description:  b.Description,
		Date:         b.Date,
		TimeStart:    b.TimeStart,
		TimeEnd:      b.TimeEnd,
		Location:     b.Location,
		Status:       model.EventStatus(b.Status),
		Requirements: b.Requirements,
	}
}

// EventBodyFrom converts an event into a body.
func EventBodyFrom(e model.Event) EventBody {
	return EventBody{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Date:         e.Date,
		TimeStart:    e.TimeStart,
		TimeEnd:      e.TimeEnd,
		Location:     e.Location,
		Status:       string(e.Status),
		Requirements: e.Requirements,
	}
}

// RosterBody is the body of POST /events/:id/roster: pre-parsed rows.
type RosterBody struct {
	Rows []JoinBody `json:"rows" validate:"required,min=1,dive"`
}

// AccountBody is the body of POST /accounts/.
type AccountBody struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email" validate:"required,email"`
}

// ErrorBody is every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
