package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
)

const (
	// DefaultRequestTimeout bounds one collaborator call.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultRefreshInterval is the period of Run's refresh loop.
	DefaultRefreshInterval = 30 * time.Second

	// DefaultGraceWindow is how long an acknowledged write may be missing
	// from refreshes before it is reported stale.
	DefaultGraceWindow = DefaultRequestTimeout + DefaultRefreshInterval

	// DefaultMaxAttempts bounds retries of idempotent operations.
	DefaultMaxAttempts = 3

	// PlaceholderPrefix starts every optimistic participant id.
	PlaceholderPrefix = "local-"
)

// Engine reconciles a local view with an authoritative collaborator.
type Engine struct {
	collab    Collaborator
	evaluator eligibility.Evaluator
	logger    *slog.Logger
	clock     Clock
	newLocal  func() string

	requestTimeout  time.Duration
	graceWindow     time.Duration
	maxAttempts     int
	backoff         func(attempt int) time.Duration
	serverSideDedup bool
	trailingRefresh bool
	onRefresh       func(RefreshReport, error)

	opMu      sync.Mutex // serializes mutations and refreshes
	committed atomic.Pointer[Snapshot]
	versions  versionClock
	outbox    *outbox
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the wall clock used for acknowledgment and grace timing.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEvaluator sets the eligibility policy used for local validation.
func WithEvaluator(ev eligibility.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithRequestTimeout bounds each collaborator call.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.requestTimeout = d }
}

// WithGraceWindow sets how long acknowledged writes are re-inserted over
// refreshes that do not contain them yet.
func WithGraceWindow(d time.Duration) Option {
	return func(e *Engine) { e.graceWindow = d }
}

// WithMaxAttempts bounds attempts for idempotent operations.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithBackoff sets the wait before retry number attempt (1-based).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(e *Engine) { e.backoff = fn }
}

// WithServerSideDedup declares that the collaborator enforces one
// participant per identity, which makes joins safe to retry.
func WithServerSideDedup(enabled bool) Option {
	return func(e *Engine) { e.serverSideDedup = enabled }
}

// WithTrailingRefresh toggles the full refresh after every mutation.
func WithTrailingRefresh(enabled bool) Option {
	return func(e *Engine) { e.trailingRefresh = enabled }
}

// WithRefreshObserver sets a callback invoked by Run after every refresh,
// successful or not.
func WithRefreshObserver(fn func(RefreshReport, error)) Option {
	return func(e *Engine) { e.onRefresh = fn }
}

// WithPlaceholderIDs sets the generator for optimistic participant ids.
func WithPlaceholderIDs(fn func() string) Option {
	return func(e *Engine) { e.newLocal = fn }
}

// New creates an Engine over a collaborator. The view starts empty; call
// Refresh (or Run) to load it.
func New(collab Collaborator, opts ...Option) *Engine {
	e := &Engine{
		collab:          collab,
		logger:          slog.Default(),
		clock:           systemClock{},
		newLocal:        func() string { return PlaceholderPrefix + uuid.NewString() },
		requestTimeout:  DefaultRequestTimeout,
		graceWindow:     DefaultGraceWindow,
		maxAttempts:     DefaultMaxAttempts,
		backoff:         exponentialBackoff,
		trailingRefresh: true,
		outbox:          newOutbox(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 1
	}
	e.committed.Store(newSnapshot(0, time.Time{}, nil))
	return e
}

// Snapshot returns the current view: the committed layer with pending
// outbox records overlaid. Never blocks on a mutation in flight.
func (e *Engine) Snapshot() *Snapshot {
	base := e.committed.Load()
	records := e.outbox.overlay()
	if len(records) == 0 {
		return base
	}
	return base.withRecords(base.version, records, true)
}

// Committed returns the authority-confirmed layer only.
func (e *Engine) Committed() *Snapshot {
	return e.committed.Load()
}

// Outbox returns every outbox entry in submission order. Confirmed entries
// remain listed until the next refresh.
func (e *Engine) Outbox() []Entry {
	return e.outbox.list("")
}

// Stale returns entries whose acknowledged writes never appeared in a
// refresh within the grace window.
func (e *Engine) Stale() []Entry {
	return e.outbox.list(EntryStale)
}

// DismissStale removes a stale entry once it has been dealt with.
func (e *Engine) DismissStale(key string) bool {
	entry, ok := e.outbox.get(key)
	if !ok || entry.Status != EntryStale {
		return false
	}
	e.outbox.remove(key)
	return true
}

// IsCertifiable reports whether issuance for p is authorized under ev.
func (e *Engine) IsCertifiable(p model.Participant, ev model.Event) bool {
	return e.evaluator.IsCertifiable(p, ev)
}

// IsPending reports whether p belongs in the pending-certification list.
func (e *Engine) IsPending(p model.Participant, ev model.Event) bool {
	return e.evaluator.IsPending(p, ev)
}

// RefreshReport summarizes one refresh.
type RefreshReport struct {
	Version   int64   `json:"version"`
	Events    int     `json:"events"`
	Confirmed int     `json:"confirmed"`
	Pending   int     `json:"pending"`
	Stale     []Entry `json:"stale,omitempty"`
}

// Err reports newly stale writes as a STALE_WRITE error, nil if none.
func (r RefreshReport) Err() error {
	if len(r.Stale) == 0 {
		return nil
	}
	err := model.NewError(model.ErrCodeStaleWrite,
		fmt.Sprintf("%d acknowledged write(s) missing from refreshes after the grace window", len(r.Stale)))
	if len(r.Stale) == 1 {
		err.EventID = r.Stale[0].EventID
		err.ParticipantID = r.Stale[0].Record.ID
	}
	return err
}

// Refresh replaces the committed layer with the authority's full snapshot
// and reconciles the outbox against it.
func (e *Engine) Refresh(ctx context.Context) (RefreshReport, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.refreshLocked(ctx)
}

func (e *Engine) refreshLocked(ctx context.Context) (RefreshReport, error) {
	var events []model.Event
	err := e.send(ctx, "refresh", true, func(ctx context.Context) error {
		var err error
		events, err = e.collab.ListEvents(ctx)
		return err
	})
	if err != nil {
		return RefreshReport{}, fmt.Errorf("refresh: %w", err)
	}

	now := e.clock.Now()
	snap := newSnapshot(e.versions.Next(), now, events)
	report := RefreshReport{Version: snap.version, Events: len(events)}

	// Entries confirmed by the previous refresh have served their purpose.
	for _, entry := range e.outbox.list(EntryConfirmed) {
		e.outbox.remove(entry.Key)
	}

	for _, entry := range e.outbox.list(EntryPending) {
		if !entry.Acked {
			report.Pending++
			continue
		}
		if covered(snap, entry.Record) {
			e.outbox.update(entry.Key, func(en *Entry) { en.Status = EntryConfirmed })
			report.Confirmed++
			continue
		}
		if now.Sub(entry.AckedAt) > e.graceWindow {
			e.outbox.update(entry.Key, func(en *Entry) {
				en.Status = EntryStale
				en.Error = string(model.ErrCodeStaleWrite)
			})
			entry.Status = EntryStale
			entry.Error = string(model.ErrCodeStaleWrite)
			report.Stale = append(report.Stale, entry)
			e.logger.Warn("acknowledged write missing after grace window",
				"key", entry.Key, "kind", entry.Kind, "event", entry.EventID,
				"participant", entry.Record.ID, "acked_at", entry.AckedAt)
			continue
		}
		report.Pending++
	}

	e.committed.Store(snap)
	e.logger.Debug("refreshed",
		"version", snap.version, "events", report.Events,
		"confirmed", report.Confirmed, "pending", report.Pending, "stale", len(report.Stale))
	return report, nil
}

// covered reports whether snap already contains rec or something newer.
func covered(snap *Snapshot, rec model.Participant) bool {
	ev, ok := snap.Event(rec.EventID)
	if !ok {
		return false
	}
	for _, p := range ev.Participants {
		if p.ID == rec.ID || model.SameIdentity(p, rec) {
			return p.Covers(rec)
		}
	}
	return false
}

// Run refreshes every interval until ctx is cancelled.
// Refresh failures are logged and the loop continues.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	e.logger.Info("reconcile loop starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := e.Refresh(ctx)
		if e.onRefresh != nil && ctx.Err() == nil {
			e.onRefresh(report, err)
		}
		switch {
		case err != nil && ctx.Err() == nil:
			e.logger.Error("refresh failed", "error", err)
		case err == nil:
			if serr := report.Err(); serr != nil {
				e.logger.Warn("stale writes detected", "error", serr)
			}
		}

		select {
		case <-ctx.Done():
			e.logger.Info("reconcile loop stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// commit merges an authority record into the committed layer.
func (e *Engine) commit(rec model.Participant) {
	base := e.committed.Load()
	e.committed.Store(base.withRecords(e.versions.Next(), []model.Participant{rec}, false))
}

// acknowledge stores the authority's record in the outbox entry for key,
// creating the entry if the mutation had no optimistic record.
func (e *Engine) acknowledge(key string, kind Kind, eventID string, rec model.Participant, attempts int) {
	now := e.clock.Now()
	if e.outbox.update(key, func(en *Entry) {
		en.Record = rec.Clone()
		en.Acked = true
		en.AckedAt = now
		en.Attempts = attempts
		en.Status = EntryPending
		en.Error = ""
	}) {
		return
	}
	e.outbox.put(Entry{
		Key:         key,
		Kind:        kind,
		EventID:     eventID,
		Record:      rec.Clone(),
		Status:      EntryPending,
		Acked:       true,
		Attempts:    attempts,
		SubmittedAt: now,
		AckedAt:     now,
	})
}

// afterWrite runs the trailing refresh. Its failure does not fail the write,
// which the authority already acknowledged.
func (e *Engine) afterWrite(ctx context.Context) {
	if !e.trailingRefresh {
		return
	}
	report, err := e.refreshLocked(ctx)
	if err != nil {
		e.logger.Warn("trailing refresh failed", "error", err)
		return
	}
	if serr := report.Err(); serr != nil {
		e.logger.Warn("stale writes detected", "error", serr)
	}
}

// send calls the collaborator with a per-attempt timeout. Only idempotent
// calls are retried, and only on NETWORK_FAILURE.
func (e *Engine) send(ctx context.Context, op string, idempotent bool, call func(context.Context) error) error {
	_, err := e.sendCounted(ctx, op, idempotent, call)
	return err
}

func (e *Engine) sendCounted(ctx context.Context, op string, idempotent bool, call func(context.Context) error) (int, error) {
	limit := 1
	if idempotent {
		limit = e.maxAttempts
	}

	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			e.logger.Warn("retrying collaborator call", "op", op, "attempt", attempt, "error", err)
			timer := time.NewTimer(e.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, model.WrapError(model.ErrCodeNetworkFailure, op+": cancelled", ctx.Err())
			case <-timer.C:
			}
		}

		err = e.attempt(ctx, op, call)
		if err == nil {
			return attempt, nil
		}
		if !model.IsRetryable(err) || ctx.Err() != nil {
			return attempt, err
		}
	}
	return limit, err
}

func (e *Engine) attempt(ctx context.Context, op string, call func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	err := call(actx)
	if err == nil {
		return nil
	}
	var me *model.Error
	if !errors.As(err, &me) && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return model.WrapError(model.ErrCodeNetworkFailure, op+": request timed out", err)
	}
	return err
}

func exponentialBackoff(attempt int) time.Duration {
	d := 200 * time.Millisecond << (attempt - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
