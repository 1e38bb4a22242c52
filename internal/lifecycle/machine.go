package lifecycle

import (
	"fmt"
	"time"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
)

// Outcome reports whether a transition changed the participant.
type Outcome int

const (
	// Applied means the transition produced a new state.
	Applied Outcome = iota + 1
	// AlreadyApplied means the participant was already past this transition.
	AlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already_applied"
	default:
		return "unknown"
	}
}

// Minter mints a certificate for a participant. Only the authority supplies
// one; certificate numbers and verification codes are never client-made.
type Minter func(p model.Participant) (model.Certificate, error)

// belongs enforces the NotFound rule shared by every transition.
func belongs(p model.Participant, eventID string) error {
	if p.ID == "" {
		return model.NotFound("", eventID)
	}
	if eventID != "" && p.EventID != eventID {
		return model.NotFound(p.ID, eventID)
	}
	return nil
}

// CheckIn moves a registered participant to attended, stamping the check-in
// time with at, which must come from the authority's clock.
func CheckIn(p model.Participant, eventID string, at time.Time) (model.Participant, Outcome, error) {
	if err := belongs(p, eventID); err != nil {
		return p, 0, err
	}
	switch p.Status {
	case model.StatusAttended, model.StatusCompleted:
		return p, AlreadyApplied, nil
	case model.StatusRegistered:
		next := p.Clone()
		next.Status = model.StatusAttended
		stamp := at
		next.CheckInTime = &stamp
		return next, Applied, nil
	default:
		return p, 0, model.InvalidTransition(p.ID, p.Status, "check in")
	}
}

// CheckOut records when an attended participant left. Only the first
// check-out is kept.
func CheckOut(p model.Participant, eventID string, at time.Time) (model.Participant, Outcome, error) {
	if err := belongs(p, eventID); err != nil {
		return p, 0, err
	}
	if !p.Status.CheckedIn() {
		return p, 0, model.InvalidTransition(p.ID, p.Status, "check out")
	}
	if p.CheckOutTime != nil {
		return p, AlreadyApplied, nil
	}
	next := p.Clone()
	stamp := at
	next.CheckOutTime = &stamp
	return next, Applied, nil
}

// SubmitEvaluation records an evaluation. Legal from attended or completed;
// the status itself does not change. Resubmission replaces the payload.
func SubmitEvaluation(p model.Participant, eventID string, data model.EvaluationData) (model.Participant, error) {
	if err := belongs(p, eventID); err != nil {
		return p, err
	}
	if !p.Status.CheckedIn() {
		return p, model.InvalidTransition(p.ID, p.Status, "submit evaluation")
	}
	next := p.Clone()
	next.HasEvaluated = true
	next.EvaluationData = data.Clone()
	if next.EvaluationData == nil {
		next.EvaluationData = model.EvaluationData{}
	}
	return next, nil
}

// IssueCertificate completes a certifiable participant and mints its
// certificate. A participant that already holds a certificate gets the same
// one back with AlreadyApplied.
func IssueCertificate(p model.Participant, e model.Event, ev eligibility.Evaluator, mint Minter) (model.Participant, model.Certificate, Outcome, error) {
	if err := belongs(p, e.ID); err != nil {
		return p, model.Certificate{}, 0, err
	}
	if p.Status == model.StatusCompleted && p.Certificate != nil {
		return p, *p.Certificate, AlreadyApplied, nil
	}
	if !ev.IsCertifiable(p, e) {
		return p, model.Certificate{}, 0, model.InvalidTransition(p.ID, p.Status, "issue certificate")
	}
	if mint == nil {
		return p, model.Certificate{}, 0, fmt.Errorf("issue certificate: no minter")
	}
	cert, err := mint(p)
	if err != nil {
		return p, model.Certificate{}, 0, fmt.Errorf("issue certificate: %w", err)
	}
	cert.ParticipantID = p.ID

	next := p.Clone()
	next.Status = model.StatusCompleted
	issued := cert
	next.Certificate = &issued
	return next, cert, Applied, nil
}

// CheckInvariants verifies the check-in and certificate rules on a single record.
func CheckInvariants(p model.Participant) error {
	if !p.Status.Valid() {
		return fmt.Errorf("participant %s: unknown status %q", p.ID, p.Status)
	}
	if p.Status.CheckedIn() != (p.CheckInTime != nil) {
		return fmt.Errorf("participant %s: check-in time inconsistent with status %q", p.ID, p.Status)
	}
	if p.Certificate != nil && p.Status != model.StatusCompleted {
		return fmt.Errorf("participant %s: certificate present on status %q", p.ID, p.Status)
	}
	return nil
}
