package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/reconcile"
)

// Assertion validates the final state of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Device selects the engine for view, outbox and pending assertions.
	Device string `yaml:"device,omitempty"`

	// Event, User and Email address a participant.
	Event string `yaml:"event,omitempty"`
	User  string `yaml:"user,omitempty"`
	Email string `yaml:"email,omitempty"`

	// Status filters outbox entries.
	Status string `yaml:"status,omitempty"`

	// Call names the authority operation for calls assertions.
	Call string `yaml:"call,omitempty"`

	// Count is the expected number for count-based assertions.
	Count *int `yaml:"count,omitempty"`

	// Expect is checked against a participant record.
	Expect *ParticipantExpect `yaml:"expect,omitempty"`
}

// ParticipantExpect is a subset match on a participant. Unset fields are
// not checked.
type ParticipantExpect struct {
	Present      *bool  `yaml:"present,omitempty"`
	Status       string `yaml:"status,omitempty"`
	HasEvaluated *bool  `yaml:"has_evaluated,omitempty"`
	Certified    *bool  `yaml:"certified,omitempty"`
	CheckedOut   *bool  `yaml:"checked_out,omitempty"`
	Placeholder  *bool  `yaml:"placeholder,omitempty"`
}

// Assertion types.
const (
	// AssertParticipants counts the authority's records for an event.
	AssertParticipants = "participants"
	// AssertParticipant checks the authority's record for an identity.
	AssertParticipant = "participant"
	// AssertView checks a device's view of an identity.
	AssertView = "view"
	// AssertOutbox counts a device's outbox entries, optionally by status.
	AssertOutbox = "outbox"
	// AssertPending counts participants a device lists as pending.
	AssertPending = "pending"
	// AssertCalls counts authority calls of one operation.
	AssertCalls = "calls"
)

func validateAssertion(i int, a Assertion, devices map[string]bool) error {
	at := fmt.Sprintf("assertions[%d]", i)
	if a.Device != "" && !devices[a.Device] {
		return fmt.Errorf("%s: unknown device %q", at, a.Device)
	}
	switch a.Type {
	case AssertParticipants, AssertPending:
		if a.Event == "" || a.Count == nil {
			return fmt.Errorf("%s: event and count are required for %s", at, a.Type)
		}
	case AssertParticipant, AssertView:
		if a.Event == "" || (a.User == "" && a.Email == "") {
			return fmt.Errorf("%s: event and user or email are required for %s", at, a.Type)
		}
		if a.Expect == nil {
			return fmt.Errorf("%s: expect is required for %s", at, a.Type)
		}
	case AssertOutbox:
		if a.Count == nil {
			return fmt.Errorf("%s: count is required for outbox", at)
		}
	case AssertCalls:
		if a.Call == "" || a.Count == nil {
			return fmt.Errorf("%s: call and count are required for calls", at)
		}
	case "":
		return fmt.Errorf("%s: type is required", at)
	default:
		return fmt.Errorf("%s: unknown assertion type %q", at, a.Type)
	}
	return nil
}

// evaluateAssertions returns one message per failed assertion.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func (h *Harness) engine(a Assertion) *reconcile.Engine {
	if a.Device != "" {
		return h.engines[a.Device]
	}
	return h.engines[h.devices[0]]
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	identity := model.Identity(model.ByEmail{Address: a.Email})
	if a.User != "" {
		identity = model.ByAccount{Ref: a.User}
	}

	switch a.Type {
	case AssertParticipants:
		e, err := h.authority.Store.GetEvent(ctx, a.Event)
		if err != nil {
			return err
		}
		return compareCount(*a.Count, e.ParticipantsCount)

	case AssertParticipant:
		e, err := h.authority.Store.GetEvent(ctx, a.Event)
		if err != nil {
			return err
		}
		var found *model.Participant
		for _, p := range e.Participants {
			if model.MatchesIdentity(p, identity) {
				found = &p
				break
			}
		}
		return matchParticipant(found, *a.Expect)

	case AssertView:
		var found *model.Participant
		if p, ok := h.engine(a).Snapshot().FindIdentity(a.Event, identity); ok {
			found = &p
		}
		return matchParticipant(found, *a.Expect)

	case AssertOutbox:
		n := 0
		for _, entry := range h.engine(a).Outbox() {
			if a.Status == "" || string(entry.Status) == a.Status {
				n++
			}
		}
		return compareCount(*a.Count, n)

	case AssertPending:
		eng := h.engine(a)
		e, ok := eng.Snapshot().Event(a.Event)
		if !ok {
			return fmt.Errorf("event %s not in view", a.Event)
		}
		n := 0
		for _, p := range e.Participants {
			if eng.IsPending(p, e) {
				n++
			}
		}
		return compareCount(*a.Count, n)

	case AssertCalls:
		return compareCount(*a.Count, h.authority.count(a.Call))
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func compareCount(want, got int) error {
	if want != got {
		return fmt.Errorf("expected count %d, got %d", want, got)
	}
	return nil
}

func matchParticipant(p *model.Participant, exp ParticipantExpect) error {
	present := p != nil
	if exp.Present != nil && *exp.Present != present {
		return fmt.Errorf("expected present=%t, got %t", *exp.Present, present)
	}
	if !present {
		if exp.Present == nil || *exp.Present {
			return fmt.Errorf("participant not found")
		}
		return nil
	}
	if exp.Status != "" && string(p.Status) != exp.Status {
		return fmt.Errorf("expected status %s, got %s", exp.Status, p.Status)
	}
	if exp.HasEvaluated != nil && p.HasEvaluated != *exp.HasEvaluated {
		return fmt.Errorf("expected has_evaluated=%t, got %t", *exp.HasEvaluated, p.HasEvaluated)
	}
	if exp.Certified != nil && (p.Certificate != nil) != *exp.Certified {
		return fmt.Errorf("expected certified=%t, got %t", *exp.Certified, p.Certificate != nil)
	}
	if exp.CheckedOut != nil && (p.CheckOutTime != nil) != *exp.CheckedOut {
		return fmt.Errorf("expected checked_out=%t, got %t", *exp.CheckedOut, p.CheckOutTime != nil)
	}
	if exp.Placeholder != nil {
		placeholder := strings.HasPrefix(p.ID, reconcile.PlaceholderPrefix)
		if placeholder != *exp.Placeholder {
			return fmt.Errorf("expected placeholder=%t, got id %s", *exp.Placeholder, p.ID)
		}
	}
	return nil
}
