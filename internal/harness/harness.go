package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vpaa/eventcore/internal/catalog"
	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/reconcile"
	"github.com/vpaa/eventcore/internal/store"
	"github.com/vpaa/eventcore/internal/testutil"
)

// DefaultGraceWindow is the engines' grace window unless a scenario sets one.
const DefaultGraceWindow = time.Minute

// Harness holds the components of one scenario run.
type Harness struct {
	authority *authority
	clock     *testutil.ManualClock
	engines   map[string]*reconcile.Engine
	devices   []string
	evaluator eligibility.Evaluator
	logger    *slog.Logger
}

// Run executes a scenario in a fresh in-memory authority.
//
// Execution flow:
//  1. Seed the authority from the scenario catalog
//  2. Attach one engine per device and load each view
//  3. Execute the flow, checking expect clauses
//  4. Evaluate assertions and render the authority's final roster
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	policy, err := eligibility.ParseQuizPolicy(scenario.QuizPolicy)
	if err != nil {
		return nil, err
	}
	evaluator := eligibility.Evaluator{Quiz: policy}
	grace := DefaultGraceWindow
	if scenario.GraceWindow != "" {
		if grace, err = time.ParseDuration(scenario.GraceWindow); err != nil {
			return nil, fmt.Errorf("grace_window: %w", err)
		}
	}

	clock := testutil.NewManualClock(testutil.Epoch)
	st, err := store.Open(":memory:",
		store.WithClock(clock),
		store.WithIDGenerator(testutil.NewSequence("id").Next),
		store.WithCodeGenerator(testutil.NewCodeSequence("C").Next),
		store.WithEvaluator(evaluator),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cat, err := catalog.Parse(scenario.Name+".cue", []byte(scenario.Catalog))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if _, err := catalog.Seed(ctx, st, cat, logger); err != nil {
		return nil, err
	}

	h := &Harness{
		authority: newAuthority(st),
		clock:     clock,
		engines:   make(map[string]*reconcile.Engine, len(scenario.Devices)),
		devices:   scenario.Devices,
		evaluator: evaluator,
		logger:    logger,
	}
	for _, d := range scenario.Devices {
		eng := reconcile.New(h.authority,
			reconcile.WithLogger(logger.With("device", d)),
			reconcile.WithClock(clock),
			reconcile.WithEvaluator(evaluator),
			reconcile.WithPlaceholderIDs(testutil.NewSequence(reconcile.PlaceholderPrefix+d).Next),
			reconcile.WithBackoff(func(int) time.Duration { return 0 }),
			reconcile.WithServerSideDedup(true),
			reconcile.WithGraceWindow(grace),
		)
		if _, err := eng.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("initial refresh for %s: %w", d, err)
		}
		h.engines[d] = eng
	}
	h.authority.resetCounts()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i+1, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	roster, err := h.roster(ctx)
	if err != nil {
		return nil, err
	}
	result.Roster = roster
	return result, nil
}

// outcome is what one operation produced.
type outcome struct {
	text        string
	participant *model.Participant
	duplicate   bool
	already     bool
	err         error
}

func (h *Harness) device(step Step) string {
	if step.Device != "" {
		return step.Device
	}
	return h.devices[0]
}

func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	if len(step.Parallel) > 0 {
		outs := make([]outcome, len(step.Parallel))
		var wg sync.WaitGroup
		for i, sub := range step.Parallel {
			wg.Add(1)
			go func(i int, sub Step) {
				defer wg.Done()
				outs[i] = h.execute(ctx, sub)
			}(i, sub)
		}
		wg.Wait()

		texts := make([]string, len(outs))
		ops := make([]string, len(outs))
		for i, out := range outs {
			texts[i] = out.text
			ops[i] = step.Parallel[i].Op
			h.check(n, step.Parallel[i], out, result)
		}
		sort.Strings(texts)
		result.Trace = append(result.Trace, TraceEvent{
			Step:    n,
			Device:  "parallel",
			Op:      strings.Join(ops, "+"),
			Outcome: strings.Join(texts, " | "),
		})
		return nil
	}

	out := h.execute(ctx, step)
	h.check(n, step, out, result)
	result.Trace = append(result.Trace, TraceEvent{
		Step:    n,
		Device:  h.device(step),
		Op:      step.Op,
		Outcome: out.text,
	})
	h.logger.Info("flow step completed", "step", n, "op", step.Op, "outcome", out.text)
	return nil
}

// execute runs one operation. Operation errors are part of the outcome,
// not failures of the harness.
func (h *Harness) execute(ctx context.Context, step Step) outcome {
	eng := h.engines[h.device(step)]

	switch step.Op {
	case OpJoin:
		req := model.JoinRequest{Name: step.Name, Email: step.Email}
		if step.User != "" {
			req.Identity = model.ByAccount{Ref: step.User}
		}
		res, err := eng.Join(ctx, step.Event, req)
		if err != nil {
			return failed(err)
		}
		return participantOutcome(res.Participant, res.Duplicate, false)

	case OpScan:
		res, err := eng.CheckIn(ctx, step.Token, step.Event)
		if err != nil {
			return failed(err)
		}
		return participantOutcome(res.Participant, false, res.AlreadyCheckedIn)

	case OpMarkAttendance:
		res, err := eng.MarkAttendance(ctx, h.participantID(eng, step))
		if err != nil {
			return failed(err)
		}
		return participantOutcome(res.Participant, false, res.AlreadyCheckedIn)

	case OpEvaluate:
		p, err := eng.SubmitEvaluation(ctx, h.participantID(eng, step), model.EvaluationData(step.Data))
		if err != nil {
			return failed(err)
		}
		return participantOutcome(p, false, false)

	case OpIssue:
		cert, err := eng.IssueCertificate(ctx, h.participantID(eng, step))
		if err != nil {
			return failed(err)
		}
		return outcome{text: "ok " + cert.CertificateNumber}

	case OpIssuePending:
		res, err := eng.IssuePending(ctx, step.Event)
		text := fmt.Sprintf("issued=%d failed=%d", len(res.Issued), len(res.Failed))
		if err != nil && len(res.Issued) == 0 && len(res.Failed) == 0 {
			return failed(err)
		}
		return outcome{text: "ok " + text, err: err}

	case OpCheckOut:
		p, err := eng.CheckOut(ctx, h.participantID(eng, step))
		if err != nil {
			return failed(err)
		}
		return participantOutcome(p, false, false)

	case OpRefresh:
		report, err := eng.Refresh(ctx)
		if err != nil {
			return failed(err)
		}
		return outcome{
			text: fmt.Sprintf("ok events=%d confirmed=%d pending=%d stale=%d",
				report.Events, report.Confirmed, report.Pending, len(report.Stale)),
			err: report.Err(),
		}

	case OpLag:
		if err := h.authority.lag(ctx); err != nil {
			return failed(err)
		}
		return outcome{text: "ok"}

	case OpResume:
		h.authority.resume()
		return outcome{text: "ok"}

	case OpFail:
		mode := step.Mode
		if mode == "" {
			mode = ModeDrop
		}
		h.authority.failNext(step.Target, mode, step.Times)
		return outcome{text: fmt.Sprintf("ok %s %s x%d", step.Target, mode, step.Times)}

	case OpAdvance:
		d, _ := time.ParseDuration(step.By)
		h.clock.Advance(d)
		return outcome{text: "ok " + d.String()}
	}
	return failed(fmt.Errorf("unknown op %q", step.Op))
}

func failed(err error) outcome {
	code := model.CodeOf(err)
	if code == "" {
		return outcome{text: "error " + err.Error(), err: err}
	}
	return outcome{text: "error " + string(code), err: err}
}

func participantOutcome(p model.Participant, duplicate, already bool) outcome {
	var b strings.Builder
	fmt.Fprintf(&b, "ok %s %s", p.ID, p.Status)
	if p.HasEvaluated {
		b.WriteString(" evaluated")
	}
	if p.CheckOutTime != nil {
		b.WriteString(" out")
	}
	if duplicate {
		b.WriteString(" duplicate")
	}
	if already {
		b.WriteString(" already")
	}
	return outcome{text: b.String(), participant: &p, duplicate: duplicate, already: already}
}

// participantID resolves the step's identity against the device's view.
// An unresolved identity yields "", which the engine reports as NOT_FOUND.
func (h *Harness) participantID(eng *reconcile.Engine, step Step) string {
	p, ok := eng.Snapshot().FindIdentity(step.Event, stepIdentity(step))
	if !ok {
		return ""
	}
	return p.ID
}

func stepIdentity(step Step) model.Identity {
	if step.User != "" {
		return model.ByAccount{Ref: step.User}
	}
	return model.ByEmail{Address: step.Email}
}

// check compares an outcome with the step's expect clause.
func (h *Harness) check(n int, step Step, out outcome, result *Result) {
	exp := step.Expect
	if exp == nil {
		return
	}
	at := fmt.Sprintf("step %d (%s)", n, step.Op)

	if exp.Error != "" {
		if got := string(model.CodeOf(out.err)); got != exp.Error {
			result.AddError(fmt.Sprintf("%s: expected error %s, got %q", at, exp.Error, out.text))
		}
		return
	}
	if out.err != nil && out.participant == nil && !strings.HasPrefix(out.text, "ok") {
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", at, out.err))
		return
	}
	if exp.Status != "" {
		if out.participant == nil || string(out.participant.Status) != exp.Status {
			result.AddError(fmt.Sprintf("%s: expected status %s, got %q", at, exp.Status, out.text))
		}
	}
	if exp.Duplicate != nil && out.duplicate != *exp.Duplicate {
		result.AddError(fmt.Sprintf("%s: expected duplicate=%t, got %q", at, *exp.Duplicate, out.text))
	}
	if exp.AlreadyCheckedIn != nil && out.already != *exp.AlreadyCheckedIn {
		result.AddError(fmt.Sprintf("%s: expected already_checked_in=%t, got %q", at, *exp.AlreadyCheckedIn, out.text))
	}
}

// roster renders the authority's final state, one line per participant.
func (h *Harness) roster(ctx context.Context) ([]string, error) {
	events, err := h.authority.Store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("final roster: %w", err)
	}
	lines := []string{}
	for _, e := range events {
		for _, p := range e.Participants {
			var b strings.Builder
			fmt.Fprintf(&b, "%s %s %s %s", e.ID, p.ID, p.Email, p.Status)
			if p.HasEvaluated {
				b.WriteString(" evaluated")
			}
			if p.CheckOutTime != nil {
				b.WriteString(" out")
			}
			if p.Certificate != nil {
				b.WriteString(" " + p.Certificate.CertificateNumber)
			}
			lines = append(lines, b.String())
		}
	}
	return lines, nil
}
