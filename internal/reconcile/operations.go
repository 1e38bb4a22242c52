package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/checkin"
	"github.com/vpaa/eventcore/internal/lifecycle"
	"github.com/vpaa/eventcore/internal/model"
)

// Join registers an identity for an event. A record already visible for the
// identity is returned with Duplicate set and nothing is sent.
func (e *Engine) Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := req.Validate(); err != nil {
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}
	ev, err := e.ensureEvent(ctx, eventID)
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}

	identity := req.ResolvedIdentity()
	if p, ok := findJoined(ev, identity, req.Email); ok {
		e.logger.Info("join deduplicated locally", "event", eventID, "participant", p.ID)
		return model.JoinResult{Participant: p, Duplicate: true}, nil
	}

	key, err := model.MutationKey(string(KindJoin), eventID, identity.Key(), nil)
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}
	optimistic := model.Participant{
		ID:      e.newLocal(),
		EventID: eventID,
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Status:  model.StatusRegistered,
	}
	switch id := identity.(type) {
	case model.ByAccount:
		optimistic.User = id.Ref
	case model.ByEmail:
		optimistic.Email = strings.TrimSpace(id.Address)
	}
	e.submit(key, KindJoin, eventID, optimistic)

	var res model.JoinResult
	attempts, err := e.sendCounted(ctx, "join", e.serverSideDedup, func(ctx context.Context) error {
		var err error
		res, err = e.collab.Join(ctx, eventID, req)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}

	e.acknowledge(key, KindJoin, eventID, res.Participant, attempts)
	e.commit(res.Participant)
	e.logger.Info("participant joined",
		"event", eventID, "participant", res.Participant.ID, "duplicate", res.Duplicate)
	e.afterWrite(ctx)
	return res, nil
}

// findJoined applies the identity match against the visible roster.
func findJoined(ev model.Event, identity model.Identity, email string) (model.Participant, bool) {
	var byEmail model.Identity
	if strings.Contains(email, "@") {
		byEmail = model.ByEmail{Address: email}
	}
	for _, p := range ev.Participants {
		if model.MatchesIdentity(p, identity) || (byEmail != nil && model.MatchesIdentity(p, byEmail)) {
			return p, true
		}
	}
	return model.Participant{}, false
}

// CheckIn validates a scanned token and checks its participant in.
// A malformed token fails before anything is sent.
func (e *Engine) CheckIn(ctx context.Context, token, eventID string) (model.CheckInResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	tok, err := checkin.Parse(token)
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("check in: %w", err)
	}
	ev, err := e.ensureEvent(ctx, eventID)
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("check in: %w", err)
	}

	key, err := model.MutationKey(string(KindCheckIn), eventID, tok.String(), nil)
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("check in: %w", err)
	}

	// Local resolution knows no account emails, so a miss here is not
	// definitive; the authority resolves the rest.
	if p, err := checkin.Resolve(tok, eventID, ev.Participants, nil); err == nil {
		if res, err := checkin.Apply(p, eventID, e.clock.Now()); err == nil && !res.AlreadyCheckedIn {
			e.submit(key, KindCheckIn, eventID, res.Participant)
		}
	}

	var res model.CheckInResult
	attempts, err := e.sendCounted(ctx, "check in", true, func(ctx context.Context) error {
		var err error
		res, err = e.collab.ScanQR(ctx, tok.String(), eventID)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.CheckInResult{}, fmt.Errorf("check in: %w", err)
	}

	e.acknowledge(key, KindCheckIn, eventID, res.Participant, attempts)
	e.commit(res.Participant)
	e.logger.Info("participant checked in",
		"event", eventID, "participant", res.Participant.ID, "already_checked_in", res.AlreadyCheckedIn)
	e.afterWrite(ctx)
	return res, nil
}

// MarkAttendance checks in a participant chosen by id.
func (e *Engine) MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	p, _, err := e.localParticipant(ctx, participantID, func(p model.Participant, _ model.Event) error {
		_, _, err := lifecycle.CheckIn(p, p.EventID, e.clock.Now())
		return err
	})
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("mark attendance: %w", err)
	}

	key, err := model.MutationKey(string(KindAttendance), p.EventID, p.ID, nil)
	if err != nil {
		return model.CheckInResult{}, fmt.Errorf("mark attendance: %w", err)
	}
	if next, outcome, err := lifecycle.CheckIn(p, p.EventID, e.clock.Now()); err == nil && outcome == lifecycle.Applied {
		e.submit(key, KindAttendance, p.EventID, next)
	}

	var res model.CheckInResult
	attempts, err := e.sendCounted(ctx, "mark attendance", true, func(ctx context.Context) error {
		var err error
		res, err = e.collab.MarkAttendance(ctx, participantID)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.CheckInResult{}, fmt.Errorf("mark attendance: %w", err)
	}

	e.acknowledge(key, KindAttendance, p.EventID, res.Participant, attempts)
	e.commit(res.Participant)
	e.logger.Info("attendance marked",
		"participant", participantID, "already_checked_in", res.AlreadyCheckedIn)
	e.afterWrite(ctx)
	return res, nil
}

// SubmitEvaluation records an evaluation for a checked-in participant.
func (e *Engine) SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	p, _, err := e.localParticipant(ctx, participantID, func(p model.Participant, _ model.Event) error {
		_, err := lifecycle.SubmitEvaluation(p, p.EventID, data)
		return err
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}

	key, err := model.MutationKey(string(KindEvaluation), p.EventID, p.ID, data)
	if err != nil {
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}
	optimistic, err := lifecycle.SubmitEvaluation(p, p.EventID, data)
	if err != nil {
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}
	e.submit(key, KindEvaluation, p.EventID, optimistic)

	var out model.Participant
	attempts, err := e.sendCounted(ctx, "submit evaluation", true, func(ctx context.Context) error {
		var err error
		out, err = e.collab.SubmitEvaluation(ctx, participantID, data)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}

	e.acknowledge(key, KindEvaluation, p.EventID, out, attempts)
	e.commit(out)
	e.logger.Info("evaluation submitted", "participant", participantID)
	e.afterWrite(ctx)
	return out, nil
}

// IssueCertificate issues the certificate of an eligible participant. A
// participant that already holds one gets it back without a request.
func (e *Engine) IssueCertificate(ctx context.Context, participantID string) (model.Certificate, error) {
	res, err := e.issue(ctx, participantID)
	if err != nil {
		return model.Certificate{}, err
	}
	return res.Certificate, nil
}

func (e *Engine) issue(ctx context.Context, participantID string) (model.IssueResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	p, ev, err := e.localParticipant(ctx, participantID, func(p model.Participant, ev model.Event) error {
		if p.Status == model.StatusCompleted && p.Certificate != nil {
			return nil
		}
		if !e.evaluator.IsCertifiable(p, ev) {
			return model.InvalidTransition(p.ID, p.Status, "issue certificate")
		}
		return nil
	})
	if err != nil {
		return model.IssueResult{}, fmt.Errorf("issue certificate: %w", err)
	}
	if p.Status == model.StatusCompleted && p.Certificate != nil {
		return model.IssueResult{Certificate: *p.Certificate, Participant: p, Reissued: true}, nil
	}

	key, err := model.MutationKey(string(KindCertificate), ev.ID, p.ID, nil)
	if err != nil {
		return model.IssueResult{}, fmt.Errorf("issue certificate: %w", err)
	}
	// Certificates are minted only by the authority: the optimistic record
	// is completed but carries no certificate.
	optimistic := p.Clone()
	optimistic.Status = model.StatusCompleted
	e.submit(key, KindCertificate, ev.ID, optimistic)

	var res model.IssueResult
	attempts, err := e.sendCounted(ctx, "issue certificate", true, func(ctx context.Context) error {
		var err error
		res, err = e.collab.IssueCertificate(ctx, participantID)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.IssueResult{}, fmt.Errorf("issue certificate: %w", err)
	}

	e.acknowledge(key, KindCertificate, ev.ID, res.Participant, attempts)
	e.commit(res.Participant)
	e.logger.Info("certificate issued",
		"participant", participantID, "number", res.Certificate.CertificateNumber, "reissued", res.Reissued)
	e.afterWrite(ctx)
	return res, nil
}

// CheckOut records when a checked-in participant left.
func (e *Engine) CheckOut(ctx context.Context, participantID string) (model.Participant, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	p, _, err := e.localParticipant(ctx, participantID, func(p model.Participant, _ model.Event) error {
		_, _, err := lifecycle.CheckOut(p, p.EventID, e.clock.Now())
		return err
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("check out: %w", err)
	}

	key, err := model.MutationKey(string(KindCheckOut), p.EventID, p.ID, nil)
	if err != nil {
		return model.Participant{}, fmt.Errorf("check out: %w", err)
	}
	if next, outcome, err := lifecycle.CheckOut(p, p.EventID, e.clock.Now()); err == nil && outcome == lifecycle.Applied {
		e.submit(key, KindCheckOut, p.EventID, next)
	}

	var out model.Participant
	attempts, err := e.sendCounted(ctx, "check out", true, func(ctx context.Context) error {
		var err error
		out, err = e.collab.CheckOut(ctx, participantID)
		return err
	})
	if err != nil {
		e.outbox.remove(key)
		return model.Participant{}, fmt.Errorf("check out: %w", err)
	}

	e.acknowledge(key, KindCheckOut, p.EventID, out, attempts)
	e.commit(out)
	e.logger.Info("participant checked out", "participant", participantID)
	e.afterWrite(ctx)
	return out, nil
}

// BulkResult reports an IssuePending pass.
type BulkResult struct {
	Issued []model.IssueResult `json:"issued"`
	Failed map[string]string   `json:"failed,omitempty"`
}

// IssuePending issues certificates to every participant in the event's
// pending-certification list. Failures for one participant do not stop the
// pass; they are collected and returned joined.
func (e *Engine) IssuePending(ctx context.Context, eventID string) (BulkResult, error) {
	e.opMu.Lock()
	ev, err := e.ensureEvent(ctx, eventID)
	e.opMu.Unlock()
	if err != nil {
		return BulkResult{}, fmt.Errorf("issue pending: %w", err)
	}

	out := BulkResult{Issued: []model.IssueResult{}}
	var errs []error
	for _, p := range e.evaluator.Pending(ev.Participants, ev) {
		res, err := e.issue(ctx, p.ID)
		if err != nil {
			if out.Failed == nil {
				out.Failed = make(map[string]string)
			}
			out.Failed[p.ID] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out.Issued = append(out.Issued, res)
	}
	e.logger.Info("pending certificates issued",
		"event", eventID, "issued", len(out.Issued), "failed", len(out.Failed))
	return out, errors.Join(errs...)
}

// submit records an optimistic entry before the request goes out.
func (e *Engine) submit(key string, kind Kind, eventID string, rec model.Participant) {
	e.outbox.put(Entry{
		Key:         key,
		Kind:        kind,
		EventID:     eventID,
		Record:      rec.Clone(),
		Status:      EntryPending,
		SubmittedAt: e.clock.Now(),
	})
}

// ensureEvent finds an event in the view, refreshing once if it is unknown.
func (e *Engine) ensureEvent(ctx context.Context, eventID string) (model.Event, error) {
	if ev, ok := e.Snapshot().Event(eventID); ok {
		return ev, nil
	}
	if _, err := e.refreshLocked(ctx); err != nil {
		return model.Event{}, err
	}
	if ev, ok := e.Snapshot().Event(eventID); ok {
		return ev, nil
	}
	nf := model.NewError(model.ErrCodeNotFound, fmt.Sprintf("event %s not found", eventID))
	nf.EventID = eventID
	return model.Event{}, nf
}

// localParticipant finds a participant in the view and validates the
// intended transition. When the participant is unknown or the check fails,
// the view may simply be behind another device's writes, so it refreshes
// once and checks again before giving up.
func (e *Engine) localParticipant(ctx context.Context, id string, check func(model.Participant, model.Event) error) (model.Participant, model.Event, error) {
	attemptCheck := func() (model.Participant, model.Event, error) {
		p, ev, ok := e.Snapshot().Participant(id)
		if !ok {
			return model.Participant{}, model.Event{}, model.NotFound(id, "")
		}
		if err := check(p, ev); err != nil {
			return model.Participant{}, model.Event{}, err
		}
		return p, ev, nil
	}

	p, ev, err := attemptCheck()
	if err == nil {
		return p, ev, nil
	}
	if _, rerr := e.refreshLocked(ctx); rerr != nil {
		e.logger.Debug("refresh before local validation failed", "error", rerr)
		return model.Participant{}, model.Event{}, err
	}
	return attemptCheck()
}
