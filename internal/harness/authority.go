package harness

import (
	"context"
	"sync"

	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/store"
)

// Authority operation names, as used by fail steps and calls assertions.
const (
	CallListEvents     = "list_events"
	CallJoin           = "join"
	CallScan           = "scan"
	CallMarkAttendance = "mark_attendance"
	CallEvaluate       = "evaluate"
	CallIssue          = "issue"
	CallCheckOut       = "check_out"
)

type fault struct {
	mode  string
	times int
}

// authority wraps the store with call counting, fault injection and read
// lag. It is shared by every device in a scenario.
type authority struct {
	*store.Store

	mu      sync.Mutex
	calls   map[string]int
	faults  map[string]*fault
	lagging bool
	frozen  []model.Event
}

func newAuthority(s *store.Store) *authority {
	return &authority{
		Store:  s,
		calls:  make(map[string]int),
		faults: make(map[string]*fault),
	}
}

func (a *authority) failNext(op, mode string, times int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mode == "" {
		mode = ModeDrop
	}
	a.faults[op] = &fault{mode: mode, times: times}
}

func (a *authority) lag(ctx context.Context) error {
	events, err := a.Store.ListEvents(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lagging = true
	a.frozen = events
	return nil
}

func (a *authority) resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lagging = false
	a.frozen = nil
}

func (a *authority) count(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *authority) resetCounts() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = make(map[string]int)
}

// enter counts a call and reports the fault mode to apply, if any.
func (a *authority) enter(op string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
	f, ok := a.faults[op]
	if !ok {
		return ""
	}
	f.times--
	if f.times <= 0 {
		delete(a.faults, op)
	}
	return f.mode
}

func networkFailure(op string) error {
	return model.NewError(model.ErrCodeNetworkFailure, "injected failure: "+op)
}

// call runs fn under the fault configured for op.
func call[T any](a *authority, op string, fn func() (T, error)) (T, error) {
	var zero T
	switch a.enter(op) {
	case ModeDrop:
		return zero, networkFailure(op)
	case ModeLoseReply:
		if _, err := fn(); err != nil {
			return zero, err
		}
		return zero, networkFailure(op)
	}
	return fn()
}

func (a *authority) ListEvents(ctx context.Context) ([]model.Event, error) {
	return call(a, CallListEvents, func() ([]model.Event, error) {
		a.mu.Lock()
		if a.lagging {
			frozen := a.frozen
			a.mu.Unlock()
			return frozen, nil
		}
		a.mu.Unlock()
		return a.Store.ListEvents(ctx)
	})
}

func (a *authority) Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	return call(a, CallJoin, func() (model.JoinResult, error) {
		return a.Store.Join(ctx, eventID, req)
	})
}

func (a *authority) ScanQR(ctx context.Context, token, eventID string) (model.CheckInResult, error) {
	return call(a, CallScan, func() (model.CheckInResult, error) {
		return a.Store.ScanQR(ctx, token, eventID)
	})
}

func (a *authority) MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error) {
	return call(a, CallMarkAttendance, func() (model.CheckInResult, error) {
		return a.Store.MarkAttendance(ctx, participantID)
	})
}

func (a *authority) SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error) {
	return call(a, CallEvaluate, func() (model.Participant, error) {
		return a.Store.SubmitEvaluation(ctx, participantID, data)
	})
}

func (a *authority) IssueCertificate(ctx context.Context, participantID string) (model.IssueResult, error) {
	return call(a, CallIssue, func() (model.IssueResult, error) {
		return a.Store.IssueCertificate(ctx, participantID)
	})
}

func (a *authority) CheckOut(ctx context.Context, participantID string) (model.Participant, error) {
	return call(a, CallCheckOut, func() (model.Participant, error) {
		return a.Store.CheckOut(ctx, participantID)
	})
}
