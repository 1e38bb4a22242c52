package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/store"
	"github.com/vpaa/eventcore/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openAuthority opens a deterministic store sharing clock with the engines.
func openAuthority(t *testing.T, clock *testutil.ManualClock) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "authority.db"),
		store.WithClock(clock),
		store.WithIDGenerator(testutil.NewSequence("id").Next),
		store.WithCodeGenerator(testutil.NewCodeSequence("C").Next),
		store.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(collab Collaborator, clock *testutil.ManualClock, opts ...Option) *Engine {
	base := []Option{
		WithLogger(discardLogger()),
		WithClock(clock),
		WithPlaceholderIDs(testutil.NewSequence(PlaceholderPrefix + "p").Next),
		WithBackoff(func(int) time.Duration { return 0 }),
		WithServerSideDedup(true),
		WithGraceWindow(time.Minute),
	}
	return New(collab, append(base, opts...)...)
}

// recorder wraps a collaborator, counting calls and injecting failures and
// write-then-read lag.
type recorder struct {
	Collaborator

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	lagging  bool
	frozen   []model.Event
	block    map[string]bool
}

func newRecorder(c Collaborator) *recorder {
	return &recorder{
		Collaborator: c,
		calls:        make(map[string]int),
		failures:     make(map[string][]error),
		block:        make(map[string]bool),
	}
}

// failNext queues errors returned by the next calls of op, in order.
func (r *recorder) failNext(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = append(r.failures[op], errs...)
}

// freeze makes ListEvents return the authority's current state until thaw.
func (r *recorder) freeze(ctx context.Context) error {
	events, err := r.Collaborator.ListEvents(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lagging = true
	r.frozen = events
	return nil
}

func (r *recorder) thaw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lagging = false
	r.frozen = nil
}

func (r *recorder) blockUntilCancelled(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block[op] = true
}

func (r *recorder) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *recorder) enter(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls[op]++
	blocked := r.block[op]
	var err error
	if q := r.failures[op]; len(q) > 0 {
		err, r.failures[op] = q[0], q[1:]
	}
	r.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (r *recorder) ListEvents(ctx context.Context) ([]model.Event, error) {
	if err := r.enter(ctx, "list"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.lagging {
		frozen := r.frozen
		r.mu.Unlock()
		return frozen, nil
	}
	r.mu.Unlock()
	return r.Collaborator.ListEvents(ctx)
}

func (r *recorder) Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	if err := r.enter(ctx, "join"); err != nil {
		return model.JoinResult{}, err
	}
	return r.Collaborator.Join(ctx, eventID, req)
}

func (r *recorder) ScanQR(ctx context.Context, token, eventID string) (model.CheckInResult, error) {
	if err := r.enter(ctx, "scan"); err != nil {
		return model.CheckInResult{}, err
	}
	return r.Collaborator.ScanQR(ctx, token, eventID)
}

func (r *recorder) MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error) {
	if err := r.enter(ctx, "attendance"); err != nil {
		return model.CheckInResult{}, err
	}
	return r.Collaborator.MarkAttendance(ctx, participantID)
}

func (r *recorder) SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error) {
	if err := r.enter(ctx, "evaluate"); err != nil {
		return model.Participant{}, err
	}
	return r.Collaborator.SubmitEvaluation(ctx, participantID, data)
}

func (r *recorder) IssueCertificate(ctx context.Context, participantID string) (model.IssueResult, error) {
	if err := r.enter(ctx, "issue"); err != nil {
		return model.IssueResult{}, err
	}
	return r.Collaborator.IssueCertificate(ctx, participantID)
}

func (r *recorder) CheckOut(ctx context.Context, participantID string) (model.Participant, error) {
	if err := r.enter(ctx, "checkout"); err != nil {
		return model.Participant{}, err
	}
	return r.Collaborator.CheckOut(ctx, participantID)
}

func networkFailure() error {
	return model.NewError(model.ErrCodeNetworkFailure, "connection reset")
}

type world struct {
	clock     *testutil.ManualClock
	authority *store.Store
	rec       *recorder
	engine    *Engine
}

// newWorld sets up an authority with event E1 (attendance + evaluation
// required) and one account, and an engine that has loaded the view.
func newWorld(t *testing.T, opts ...Option) world {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewManualClock(testutil.Epoch)
	authority := openAuthority(t, clock)

	_, err := authority.CreateEvent(ctx, model.Event{
		ID: "E1", Title: "Orientation",
		Requirements: model.Requirements{Attendance: true, Evaluation: true},
	})
	require.NoError(t, err)
	_, err = authority.CreateAccount(ctx, model.Account{ID: "42", Name: "Ana", Email: "ana@x.com", QRCode: "USER-42-ABC123"})
	require.NoError(t, err)

	rec := newRecorder(authority)
	engine := newEngine(rec, clock, opts...)
	_, err = engine.Refresh(ctx)
	require.NoError(t, err)
	return world{clock: clock, authority: authority, rec: rec, engine: engine}
}

func viewEvent(t *testing.T, e *Engine, id string) model.Event {
	t.Helper()
	ev, ok := e.Snapshot().Event(id)
	require.True(t, ok, "event %s not in view", id)
	return ev
}
